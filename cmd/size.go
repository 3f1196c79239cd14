package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tradeidea/config"
	"tradeidea/trader"
)

type sizeFlags struct {
	symbol      string
	side        string
	account     float64
	risk        float64
	entry       float64
	stop        float64
	tp1         float64
	tp2         float64
	instruments string
}

var sizeOpts sizeFlags

var sizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Compute position size and risk:reward for a trade",
	Example: `  tradeidea size --symbol XAUUSD --account 10000 --risk 2 --entry 2000 --stop 1980 --tp1 2040 --tp2 2060
  tradeidea size --symbol EURUSD --side sell --account 5000 --risk 1 --entry 1.1 --stop 1.105`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSize(cmd.OutOrStdout(), sizeOpts)
	},
}

func init() {
	f := sizeCmd.Flags()
	f.StringVar(&sizeOpts.symbol, "symbol", "", "instrument symbol, e.g. XAUUSD")
	f.StringVar(&sizeOpts.side, "side", "buy", "buy or sell")
	f.Float64Var(&sizeOpts.account, "account", 0, "account size")
	f.Float64Var(&sizeOpts.risk, "risk", 1, "risk per trade in percent")
	f.Float64Var(&sizeOpts.entry, "entry", 0, "entry price")
	f.Float64Var(&sizeOpts.stop, "stop", 0, "stop-loss price")
	f.Float64Var(&sizeOpts.tp1, "tp1", 0, "first take-profit (optional)")
	f.Float64Var(&sizeOpts.tp2, "tp2", 0, "second take-profit (optional)")
	f.StringVar(&sizeOpts.instruments, "instruments", "", "YAML instrument override file")
	_ = sizeCmd.MarkFlagRequired("symbol")
	_ = sizeCmd.MarkFlagRequired("account")
	_ = sizeCmd.MarkFlagRequired("entry")
	_ = sizeCmd.MarkFlagRequired("stop")
}

func runSize(w io.Writer, o sizeFlags) error {
	table, err := loadInstruments(o.instruments)
	if err != nil {
		return err
	}
	inst := table.Lookup(o.symbol)

	in := trader.RiskInputs{AccountSize: o.account, RiskPercent: o.risk}
	ps, err := trader.ComputeSizingFor(in, o.entry, o.stop, inst)
	if err != nil {
		return err
	}

	tp1, tp2 := o.tp1, o.tp2
	if tp1 <= 0 {
		tp1 = o.entry
	}
	if tp2 <= 0 {
		tp2 = o.entry
	}
	dm := trader.ComputeDerived(trader.ParseDirection(o.side), o.entry, o.stop, tp1, tp2, ps.Units, ps.RiskAmount, ps.ValuePerUnit)
	a := trader.Assess(in, ps, dm, config.DefaultRiskConfig())

	d, dd := ps.Display(), dm.Display()
	fmt.Fprintf(w, "%s %s (units/lot %g)\n", inst.Symbol, dm.Direction, ps.UnitsPerLot)
	fmt.Fprintf(w, "risk amount:   %.2f\n", d.RiskAmount)
	fmt.Fprintf(w, "stop distance: %g\n", d.StopDistance)
	fmt.Fprintf(w, "units:         %.2f\n", d.Units)
	fmt.Fprintf(w, "lots:          %.2f\n", d.Lots)
	if o.tp1 > 0 {
		fmt.Fprintf(w, "tp1 profit:    %.2f (R:R %.2f)\n", dd.ProfitAtTP1, dd.RiskRewardTP1)
	}
	if o.tp2 > 0 {
		fmt.Fprintf(w, "tp2 profit:    %.2f (R:R %.2f)\n", dd.ProfitAtTP2, dd.RiskRewardTP2)
	}
	fmt.Fprintf(w, "risk level:    %s\n", a.RiskLevel)
	for _, warn := range a.Warnings {
		fmt.Fprintf(w, "⚠️  %s\n", warn)
	}
	return nil
}
