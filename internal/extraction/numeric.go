package extraction

import (
	"math"
	"strconv"
	"strings"
)

// samplePrecision is the decimal precision stored sample values are rounded
// to so repeated imports of the same file stay byte-identical.
const samplePrecision = 8

// ParseLocaleFloat parses a numeric string accepting both '.' and ',' as
// decimal separator. When the string carries both, commas are treated as
// thousands separators and stripped.
func ParseLocaleFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		s = strings.ReplaceAll(s, ",", "")
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ",", ".")
	}
	return strconv.ParseFloat(s, 64)
}

// ParseSamples parses a raw sample payload into a scaled numeric sequence.
// It accepts a bracketed array-like string, a comma-delimited list, or a
// single scalar. Non-numeric tokens are dropped, every parsed value is
// multiplied by scale and rounded to a fixed precision.
func ParseSamples(raw string, scale float64) []float64 {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	var tokens []string
	switch {
	case strings.HasPrefix(trimmed, "["):
		trimmed = strings.TrimPrefix(trimmed, "[")
		trimmed = strings.TrimSuffix(trimmed, "]")
		tokens = strings.FieldsFunc(trimmed, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
	case strings.Contains(trimmed, ","):
		tokens = strings.Split(trimmed, ",")
	default:
		tokens = []string{trimmed}
	}

	samples := make([]float64, 0, len(tokens))
	for _, token := range tokens {
		value, err := strconv.ParseFloat(strings.TrimSpace(token), 64)
		if err != nil {
			continue
		}
		samples = append(samples, roundSample(value*scale))
	}
	return samples
}

func roundSample(v float64) float64 {
	scale := math.Pow10(samplePrecision)
	return math.Round(v*scale) / scale
}
