package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/fluxlora/loraconv/convert"
	"github.com/fluxlora/loraconv/envconfig"
)

func NewConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert INPUT",
		Short: "Convert slider LoRA state dicts to safetensors",
		Long: `Convert a torch.save LoRA state dict (.pt, .pth or .bin) to a safetensors
container with ostris key names. A key mapping document listing every
translated key is written next to the container.

INPUT may be a directory, in which case every state dict directly inside it
is converted and --output names the output directory.`,
		Args: cobra.ExactArgs(1),
		RunE: convertHandler,
	}

	cmd.Flags().StringP("output", "o", "", "Output file, or output directory when INPUT is a directory")
	cmd.Flags().Bool("strict", false, "Fail on destination key collisions and unrecognized keys")
	cmd.Flags().String("rules", "", "TOML file with key rewrite rules replacing the built-in table")
	cmd.Flags().String("mapping-ext", "", "Extension of the key mapping document (default \".json\")")

	appendEnvDocs(cmd, envDocs(
		"LORACONV_DEBUG",
		"LORACONV_STRICT",
		"LORACONV_PARALLEL",
		"LORACONV_MAPPING_EXT",
		"LORACONV_RULES",
	))

	return cmd
}

func convertHandler(cmd *cobra.Command, args []string) error {
	t, err := newTranslator(cmd)
	if err != nil {
		return err
	}

	strict, _ := cmd.Flags().GetBool("strict")
	ext, _ := cmd.Flags().GetString("mapping-ext")
	switch {
	case ext == "":
		ext = envconfig.MappingExt()
	case !strings.HasPrefix(ext, "."):
		ext = "." + ext
	}

	c := convert.New(t, convert.Options{
		Strict:     strict || envconfig.Strict(),
		MappingExt: ext,
	})

	output, _ := cmd.Flags().GetString("output")

	fi, err := os.Stat(args[0])
	if err != nil {
		return err
	}

	var reports []*convert.Report
	if fi.IsDir() {
		reports, err = c.ConvertDir(cmd.Context(), args[0], output, int(envconfig.Parallel()))
	} else {
		var report *convert.Report
		report, err = c.ConvertFile(cmd.Context(), args[0], output)
		reports = append(reports, report)
	}

	printReports(cmd.OutOrStdout(), reports)
	return err
}

func printReports(w io.Writer, reports []*convert.Report) {
	var data [][]string
	for _, r := range reports {
		switch {
		case r == nil:
		case r.Skipped:
			fmt.Fprintf(w, "%s is already in safetensors format, skipping\n", r.Input)
		case r.Output != "":
			data = append(data, []string{
				r.Output,
				strconv.Itoa(r.Tensors),
				strconv.Itoa(r.Written),
				strconv.Itoa(len(r.Unrecognized)),
				strconv.Itoa(len(r.Collisions)),
				r.Mapping,
			})
		}
	}

	if len(data) == 0 {
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"OUTPUT", "TENSORS", "WRITTEN", "UNRECOGNIZED", "COLLISIONS", "MAPPING"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoWrapText(false)
	table.AppendBulk(data)
	table.Render()
}
