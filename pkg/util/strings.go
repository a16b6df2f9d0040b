package util

import (
	"strconv"
	"strings"
)

// ParseFloat parses a numeric string. Empty and malformed input report false.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// SplitCSV splits a comma separated list, dropping blanks.
func SplitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MaskKey keeps the first n characters of a secret for logging.
func MaskKey(key string, n int) string {
	if len(key) <= n {
		return key
	}
	return key[:n] + "..."
}
