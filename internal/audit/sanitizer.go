package audit

import "strings"

// RedactedValue replaces every sensitive value in recorded details.
const RedactedValue = "[REDACTED]"

// sensitiveKeys is a substring deny-list applied to lowercased key names.
var sensitiveKeys = []string{
	"password",
	"token",
	"secret",
	"apikey",
	"creditcard",
}

// Sanitize returns a shallow copy of the payload with every value whose
// key contains a deny-listed substring replaced by RedactedValue. It
// never fails; values it does not understand pass through as-is. A nil
// payload stays nil.
func Sanitize(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}

	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if isSensitiveKey(k) {
			out[k] = RedactedValue
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
