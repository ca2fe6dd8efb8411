package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatOrderOrg renders an OrderRecord as an Org-mode block suitable for
// pasting into a trading journal. Structured facts live in a PROPERTIES
// drawer; the headings below are left for notes.
func FormatOrderOrg(r OrderRecord) string {
	heading := fmt.Sprintf("** %s %s: %s (%s)", r.Side, r.Symbol, strings.ToUpper(r.Status), shortID(r.ClientOrderID))

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":ID: %s\n", r.ClientOrderID))
	b.WriteString(fmt.Sprintf(":LOG_NAME: %s\n", r.LogName))
	if r.BrokerOrderID != "" {
		b.WriteString(fmt.Sprintf(":BROKER_ORDER_ID: %s\n", r.BrokerOrderID))
	}
	b.WriteString(fmt.Sprintf(":SYMBOL: %s\n", r.Symbol))
	b.WriteString(fmt.Sprintf(":SIDE: %s\n", r.Side))
	b.WriteString(fmt.Sprintf(":SIZE: %s\n", r.Size))
	b.WriteString(fmt.Sprintf(":LIMIT_PRICE: %s\n", r.LimitPrice))
	b.WriteString(fmt.Sprintf(":SUBMIT_TIME: %s\n", r.SubmitTime.UTC().Format(time.RFC3339)))
	if r.FilledSize.IsPositive() {
		b.WriteString(fmt.Sprintf(":FILLED_SIZE: %s\n", r.FilledSize))
		b.WriteString(fmt.Sprintf(":FILL_PRICE: %s\n", r.FillPrice))
		b.WriteString(fmt.Sprintf(":NOTIONAL: %s\n", r.Notional().StringFixed(2)))
	}
	if !r.ResolvedTime.IsZero() {
		b.WriteString(fmt.Sprintf(":RESOLVED_TIME: %s\n", r.ResolvedTime.UTC().Format(time.RFC3339)))
	}
	if r.Error != "" {
		b.WriteString(fmt.Sprintf(":ERROR: %s\n", r.Error))
	}
	b.WriteString(":END:\n")
	b.WriteString("\n")
	b.WriteString("*** Signal\n- \n\n")
	b.WriteString("*** Review\n- \n")

	return b.String()
}

// FormatOrdersOrg renders multiple orders separated by blank lines.
func FormatOrdersOrg(orders []OrderRecord) string {
	var b strings.Builder
	for i, r := range orders {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatOrderOrg(r))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[len(full)-8:]
}
