package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tradeidea/market"
)

var (
	instrumentsFile string
	instrumentsYAML bool
)

var instrumentsCmd = &cobra.Command{
	Use:   "instruments [symbol]",
	Short: "List the instrument table or look up one symbol",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := loadInstruments(instrumentsFile)
		if err != nil {
			return err
		}
		list := table.All()
		if len(args) == 1 {
			list = []market.Instrument{table.Lookup(args[0])}
		}
		return printInstruments(cmd.OutOrStdout(), list, instrumentsYAML)
	},
}

func init() {
	instrumentsCmd.Flags().StringVar(&instrumentsFile, "file", "", "YAML instrument override file")
	instrumentsCmd.Flags().BoolVar(&instrumentsYAML, "yaml", false, "print as YAML (same format as the override file)")
}

func printInstruments(w io.Writer, list []market.Instrument, asYAML bool) error {
	if asYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(map[string][]market.Instrument{"instruments": list}); err != nil {
			return fmt.Errorf("encode instruments: %w", err)
		}
		return enc.Close()
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tKIND\tUNITS/LOT\tVALUE/UNIT\tPIP\tKNOWN")
	for _, inst := range list {
		fmt.Fprintf(tw, "%s\t%s\t%g\t%g\t%g\t%v\n",
			inst.Symbol, inst.Kind, inst.UnitsPerLot, inst.ValuePerUnit, inst.PipSize, inst.Known)
	}
	return tw.Flush()
}
