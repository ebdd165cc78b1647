package middleware

import "strings"

// MaskKey masks tokens and API keys before they reach the log.
func MaskKey(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "***"
}
