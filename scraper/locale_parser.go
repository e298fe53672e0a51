package scraper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// LocaleParser turns price strings from any of the supported retail
// locales into plain float values. Handles "$1,234.56", "49,99 €",
// "1.299,00" and bare numbers.
type LocaleParser struct {
	currencyPattern *regexp.Regexp
	numberPattern   *regexp.Regexp
}

var currencyCodes = map[string]string{
	"$": "USD",
	"£": "GBP",
	"€": "EUR",
	"¥": "JPY",
}

func NewLocaleParser() *LocaleParser {
	return &LocaleParser{
		currencyPattern: regexp.MustCompile(`[$£€¥]|(?i)\b(usd|eur|gbp|jpy)\b`),
		numberPattern:   regexp.MustCompile(`[0-9][0-9.,\s\x{00a0}\x{202f}]*[0-9]|[0-9]`),
	}
}

// ParsePrice extracts the first price from text and returns its value
// and currency code ("" when no currency marker is present)
func (lp *LocaleParser) ParsePrice(text string) (float64, string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, "", fmt.Errorf("empty price text")
	}

	currency := ""
	if symbol := lp.currencyPattern.FindString(text); symbol != "" {
		if code, ok := currencyCodes[symbol]; ok {
			currency = code
		} else {
			currency = strings.ToUpper(symbol)
		}
	}

	raw := lp.numberPattern.FindString(text)
	if raw == "" {
		return 0, "", fmt.Errorf("no number found in %q", text)
	}

	value, err := strconv.ParseFloat(lp.normalizeNumber(raw), 64)
	if err != nil {
		return 0, "", fmt.Errorf("unparseable price %q: %v", text, err)
	}

	return value, currency, nil
}

// normalizeNumber rewrites a locale-formatted number into the form
// strconv understands. The separator that appears last is taken as the
// decimal point; spaces and the other separator are grouping.
func (lp *LocaleParser) normalizeNumber(raw string) string {
	// Spaces, including the narrow variants, only ever group digits
	for _, sep := range []string{" ", " ", " "} {
		raw = strings.ReplaceAll(raw, sep, "")
	}

	lastDot := strings.LastIndex(raw, ".")
	lastComma := strings.LastIndex(raw, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			// European: 1.234,56
			raw = strings.ReplaceAll(raw, ".", "")
			raw = strings.Replace(raw, ",", ".", 1)
		} else {
			// US/UK: 1,234.56
			raw = strings.ReplaceAll(raw, ",", "")
		}

	case lastComma >= 0:
		if strings.Count(raw, ",") == 1 && len(raw)-lastComma-1 != 3 {
			// 49,99 is a decimal, 1,234 is grouping
			raw = strings.Replace(raw, ",", ".", 1)
		} else {
			raw = strings.ReplaceAll(raw, ",", "")
		}

	case strings.Count(raw, ".") > 1:
		// 1.234.567 can only be grouping
		raw = strings.ReplaceAll(raw, ".", "")
	}

	return raw
}
