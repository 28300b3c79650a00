package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log output.
const RedactedValue = "[REDACTED]"

// Keys whose values never reach the log: bearer tokens, signing secrets and
// database credentials.
var sensitiveKeys = []string{"authorization", "token", "secret", "password", "dsn"}

// Sensitive reports whether values logged under key are masked.
func Sensitive(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// MaskValue returns RedactedValue for non-empty values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns an attribute whose value is masked when key is
// sensitive.
func MaskField(key, value string) slog.Attr {
	if Sensitive(key) {
		return slog.String(key, MaskValue(value))
	}
	return slog.String(key, value)
}

func redact(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindGroup || !Sensitive(attr.Key) {
		return attr
	}
	return slog.String(attr.Key, MaskValue(attr.Value.String()))
}
