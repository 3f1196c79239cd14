package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeidea/market"
	"tradeidea/trader"
)

func TestRunSizeGold(t *testing.T) {
	var buf bytes.Buffer
	err := runSize(&buf, sizeFlags{
		symbol: "XAUUSD", side: "buy", account: 10000, risk: 2,
		entry: 2000, stop: 1980, tp1: 2040, tp2: 2060,
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "XAUUSD buy (units/lot 100)")
	assert.Contains(t, out, "risk amount:   200.00")
	assert.Contains(t, out, "units:         10.00")
	assert.Contains(t, out, "lots:          0.10")
	assert.Contains(t, out, "tp1 profit:    400.00 (R:R 2.00)")
	assert.Contains(t, out, "tp2 profit:    600.00 (R:R 3.00)")
	assert.Contains(t, out, "risk level:    medium")
	assert.NotContains(t, out, "⚠️")
}

func TestRunSizeWithoutTargets(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runSize(&buf, sizeFlags{symbol: "ZZZFOO", account: 1000, risk: 5, entry: 10, stop: 10}))

	out := buf.String()
	assert.NotContains(t, out, "tp1 profit")
	assert.Contains(t, out, "units:         0.00")
	assert.Contains(t, out, "risk level:    aggressive")
	assert.Contains(t, out, "stop distance is zero")
}

func TestRunSizeRejectsInvalidRisk(t *testing.T) {
	err := runSize(&bytes.Buffer{}, sizeFlags{symbol: "XAUUSD", account: 10000, risk: 150, entry: 2000, stop: 1980})
	require.Error(t, err)
	assert.True(t, errors.Is(err, trader.ErrInvalidRequest))
}

func TestRunSizeUsesOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instruments.yaml")
	require.NoError(t, os.WriteFile(path, []byte("instruments:\n  - symbol: XAUUSD\n    kind: metal\n    units_per_lot: 10\n"), 0o600))

	var buf bytes.Buffer
	require.NoError(t, runSize(&buf, sizeFlags{
		symbol: "XAUUSD", account: 10000, risk: 2, entry: 2000, stop: 1980, instruments: path,
	}))
	assert.Contains(t, buf.String(), "lots:          1.00")
}

func TestPrintInstruments(t *testing.T) {
	table := market.NewInstrumentTable()

	var buf bytes.Buffer
	require.NoError(t, printInstruments(&buf, []market.Instrument{table.Lookup("EURUSD")}, false))
	assert.Contains(t, buf.String(), "SYMBOL")
	assert.Contains(t, buf.String(), "EURUSD")
	assert.Contains(t, buf.String(), "100000")

	buf.Reset()
	require.NoError(t, printInstruments(&buf, []market.Instrument{table.Lookup("XAUUSD")}, true))

	// YAML output is accepted back as an override file
	parsed, err := market.ParseInstrumentYAML(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 100.0, parsed.Lookup("XAUUSD").UnitsPerLot)
}

func TestRootHasSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "size", "instruments", "config"} {
		assert.True(t, names[want], want)
	}
}
