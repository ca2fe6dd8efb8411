package journal

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatOrderOrg(t *testing.T) {
	t.Parallel()

	submit := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := sampleOrder("01HX0000000000000000ABCDEF", submit)
	rec.Status = "filled"
	rec.FilledSize = dec("0.002")
	rec.FillPrice = dec("50000")
	rec.ResolvedTime = submit.Add(time.Minute)

	out := FormatOrderOrg(rec)

	assert.True(t, strings.HasPrefix(out, "** BUY BTC: FILLED (00ABCDEF)\n"))
	assert.Contains(t, out, ":ID: 01HX0000000000000000ABCDEF\n")
	assert.Contains(t, out, ":BROKER_ORDER_ID: b-01HX0000000000000000ABCDEF\n")
	assert.Contains(t, out, ":SUBMIT_TIME: 2024-01-02T03:04:05Z\n")
	assert.Contains(t, out, ":NOTIONAL: 100.00\n")
	assert.Contains(t, out, ":RESOLVED_TIME: 2024-01-02T03:05:05Z\n")
	assert.NotContains(t, out, ":ERROR:")
	assert.Contains(t, out, ":END:\n")
}

func TestFormatOrderOrg_Failed(t *testing.T) {
	t.Parallel()

	rec := sampleOrder("C9", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	rec.Status = "failed"
	rec.BrokerOrderID = ""
	rec.Error = "INSUFFICIENT_FUND"

	out := FormatOrderOrg(rec)
	assert.NotContains(t, out, ":BROKER_ORDER_ID:")
	assert.NotContains(t, out, ":FILLED_SIZE:")
	assert.Contains(t, out, ":ERROR: INSUFFICIENT_FUND\n")
}

func TestFormatOrdersOrg(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	out := FormatOrdersOrg([]OrderRecord{sampleOrder("A", at), sampleOrder("B", at)})
	assert.Equal(t, 2, strings.Count(out, ":PROPERTIES:"))
	assert.Contains(t, out, "\n\n\n** BUY BTC")
	assert.Empty(t, FormatOrdersOrg(nil))
}
