package cmd

import (
	"fmt"
	"maps"
	"slices"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/fluxlora/loraconv/format"
	"github.com/fluxlora/loraconv/fs/safetensors"
)

func NewInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE",
		Short: "List the tensors of a safetensors container",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectHandler,
	}
}

func inspectHandler(cmd *cobra.Command, args []string) error {
	f, err := safetensors.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	w := cmd.OutOrStdout()
	for _, k := range slices.Sorted(maps.Keys(f.Metadata)) {
		fmt.Fprintf(w, "%s: %s\n", k, f.Metadata[k])
	}

	var data [][]string
	var params, size int64
	for _, name := range f.Names() {
		t := f.Tensor(name)
		params += safetensors.NumElements(t.Shape())
		size += t.Size()
		data = append(data, []string{name, t.DType().String(), format.Shape(t.Shape()), format.HumanBytes(t.Size())})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"NAME", "DTYPE", "SHAPE", "SIZE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoWrapText(false)
	table.AppendBulk(data)
	table.Render()

	fmt.Fprintf(w, "\n%d tensors, %s parameters, %s\n", len(data), format.HumanCount(params), format.HumanBytes(size))
	return nil
}
