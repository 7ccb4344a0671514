package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-api/internal/backtest"
)

func sampleResult() backtest.Result {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return backtest.Result{
		InitialValue: 100,
		FinalValue:   110,
		ReturnPct:    10,
		Portfolio: []backtest.PortfolioPoint{
			{Timestamp: t0, Close: 10, Cash: 100, Value: 100},
			{Timestamp: t0.Add(time.Hour), Close: 10, Quantity: 10, Value: 100},
			{Timestamp: t0.Add(2 * time.Hour), Close: 11, Cash: 110, Value: 110},
		},
		Trades: []backtest.Trade{
			{Index: 1, Side: backtest.SideBuy, Price: 10, Quantity: 10, Value: 100},
			{Index: 2, Side: backtest.SideSell, Price: 11, Quantity: 10, Value: 110},
		},
	}
}

func TestWritePortfolio_Header(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePortfolio(&buf, sampleResult()))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 4)
	assert.Equal(t, "timestamp,close,cash,quantity,portfolio_value,trade", string(lines[0]))
	assert.Contains(t, string(lines[1]), "2024-03-01T00:00:00Z")
}

func TestSavePortfolio_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "curve.csv")
	require.NoError(t, SavePortfolio(path, sampleResult()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rows []PortfolioRow
	require.NoError(t, gocsv.UnmarshalBytes(data, &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "", rows[0].Trade)
	assert.Equal(t, string(backtest.SideBuy), rows[1].Trade)
	assert.Equal(t, string(backtest.SideSell), rows[2].Trade)
	assert.InDelta(t, 110, rows[2].Value, 1e-9)
}
