package loader

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

var (
	nonNumericRegex  = regexp.MustCompile(`[^0-9.]`)
	tradeTimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)
)

const tradeTimeLayout = "2006-01-02 15:04:05"

// CleanDecimal parses a string into a decimal.Decimal, removing non-numeric
// characters such as currency symbols and thousand separators.
func CleanDecimal(text string) (decimal.Decimal, error) {
	cleanText := nonNumericRegex.ReplaceAllString(text, "")
	if cleanText == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(cleanText)
	if err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// ParseTradeTime converts the fixed "YYYY-MM-DD HH:MM:SS" trade-time column
// both providers share into a Unix timestamp in local time. Anything that
// does not match the pattern returns 0, marking the row as non-data.
func ParseTradeTime(text string) int64 {
	if !tradeTimePattern.MatchString(text) {
		return 0
	}
	ts, err := time.ParseInLocation(tradeTimeLayout, text, time.Local)
	if err != nil {
		return 0
	}
	return ts.Unix()
}
