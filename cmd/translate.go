package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func NewTranslateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translate [KEY...]",
		Short: "Print the destination name of source keys",
		Long: `Print the destination name of each source key. Keys are read one per line
from standard input when none are given.`,
		RunE: translateHandler,
	}

	cmd.Flags().String("rules", "", "TOML file with key rewrite rules replacing the built-in table")
	cmd.Flags().Bool("json", false, "Print the key mapping document instead of a table")

	appendEnvDocs(cmd, envDocs("LORACONV_DEBUG", "LORACONV_RULES"))

	return cmd
}

func translateHandler(cmd *cobra.Command, args []string) error {
	t, err := newTranslator(cmd)
	if err != nil {
		return err
	}

	keys := args
	if len(keys) == 0 {
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			if key := strings.TrimSpace(scanner.Text()); key != "" {
				keys = append(keys, key)
			}
		}

		if err := scanner.Err(); err != nil {
			return err
		}
	}

	for _, key := range keys {
		t.Translate(key)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		bts, err := t.Cache().MarshalJSON()
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(bts))
		return err
	}

	var data [][]string
	for _, key := range keys {
		name, _ := t.Cache().Get(key)
		if !t.Recognized(key) {
			name += " (unrecognized)"
		}
		data = append(data, []string{key, name})
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"SOURCE", "DESTINATION"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoWrapText(false)
	table.AppendBulk(data)
	table.Render()

	return nil
}
