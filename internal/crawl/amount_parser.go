package crawl

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// number followed by an optional scale word and a currency marker
	amountAfterRegex = regexp.MustCompile(`(?i)(\d[\d.,]*)\s*(mio\.?|millionen|million|tsd\.?|tausend)?\s*(€|eur\b|euro)`)
	// currency marker in front of the number
	amountBeforeRegex = regexp.MustCompile(`(?i)(€|eur\b)\s*(\d[\d.,]*)\s*(mio\.?|millionen|million|tsd\.?|tausend)?`)

	germanThousands  = regexp.MustCompile(`^\d{1,3}(\.\d{3})+(,\d+)?$`)
	englishThousands = regexp.MustCompile(`^\d{1,3}(,\d{3})+(\.\d+)?$`)
)

// parseAmount extracts euro min/max amounts from free text. A single amount
// counts as the maximum unless the text says "mindestens" or "at least".
// ok is false when no amount was found.
func parseAmount(text string) (minAmount, maxAmount float64, ok bool) {
	var amounts []float64
	for _, m := range amountAfterRegex.FindAllStringSubmatch(text, -1) {
		if v, ok := parseNumber(m[1], m[2]); ok {
			amounts = append(amounts, v)
		}
	}
	for _, m := range amountBeforeRegex.FindAllStringSubmatch(text, -1) {
		if v, ok := parseNumber(m[2], m[3]); ok {
			amounts = append(amounts, v)
		}
	}
	if len(amounts) == 0 {
		return 0, 0, false
	}

	lower := strings.ToLower(text)
	if len(amounts) == 1 {
		if strings.Contains(lower, "mindestens") || strings.Contains(lower, "at least") || strings.Contains(lower, "minimum") {
			return amounts[0], 0, true
		}
		return 0, amounts[0], true
	}

	minAmount, maxAmount = amounts[0], amounts[0]
	for _, a := range amounts[1:] {
		if a < minAmount {
			minAmount = a
		}
		if a > maxAmount {
			maxAmount = a
		}
	}
	if minAmount == maxAmount {
		return 0, maxAmount, true
	}
	return minAmount, maxAmount, true
}

// parseNumber reads German ("1.250.000,50"), English ("1,250,000.50") and
// plain numbers, then applies a scale word such as "Mio.".
func parseNumber(raw, scale string) (float64, bool) {
	raw = strings.Trim(raw, ".,")
	if raw == "" {
		return 0, false
	}

	var clean string
	switch {
	case germanThousands.MatchString(raw):
		clean = strings.ReplaceAll(strings.ReplaceAll(raw, ".", ""), ",", ".")
	case englishThousands.MatchString(raw):
		clean = strings.ReplaceAll(raw, ",", "")
	case strings.Count(raw, ",") == 1 && !strings.Contains(raw, "."):
		clean = strings.ReplaceAll(raw, ",", ".")
	default:
		clean = raw
	}

	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || v <= 0 {
		return 0, false
	}

	switch s := strings.ToLower(strings.TrimSuffix(scale, ".")); {
	case strings.HasPrefix(s, "mio") || strings.HasPrefix(s, "million"):
		v *= 1_000_000
	case strings.HasPrefix(s, "tsd") || strings.HasPrefix(s, "tausend"):
		v *= 1_000
	}
	return v, true
}
