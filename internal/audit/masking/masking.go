// Package masking redacts sensitive values before they reach the audit
// trail.
package masking

import "strings"

const maskToken = "****"

// keys whose values never land in audit metadata unmasked
var sensitiveKeys = map[string]struct{}{
	"email":  {},
	"token":  {},
	"secret": {},
}

// MaskSensitive redacts the value when its metadata key is sensitive.
func MaskSensitive(key string, value any) any {
	if _, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]; !ok {
		return value
	}
	raw, ok := value.(string)
	if !ok {
		return maskToken
	}
	return MaskSecret(raw)
}

// MaskSecret redacts a secret while keeping a minimal suffix for
// correlation.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}
