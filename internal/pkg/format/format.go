// Package format renders balances, currency amounts and timestamps for the
// presentation layer.
package format

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var usdPrinter = message.NewPrinter(language.AmericanEnglish)

// USD formats an amount as a grouped US dollar string, e.g. "$1,234.56".
func USD(amount float64) string {
	return usdPrinter.Sprintf("$%.2f", amount)
}

// BTC formats a bitcoin amount with satoshi precision and trailing zeros
// trimmed. With symbol=true the BIP 177 currency symbol is appended.
func BTC(amount float64, symbol bool) string {
	s := strings.TrimRight(fmt.Sprintf("%.8f", amount), "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" {
		s = "0"
	}
	if symbol {
		return s + " ₿"
	}
	return s
}

// TimeAgo renders the elapsed time since t relative to now, coarsening from
// seconds through days.
func TimeAgo(t, now time.Time) string {
	secs := int64(now.Sub(t).Seconds())
	if secs < 0 {
		secs = 0
	}
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds ago", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm ago", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%dh ago", secs/3600)
	default:
		return fmt.Sprintf("%dd ago", secs/86400)
	}
}
