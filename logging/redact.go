package logging

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder replaces sensitive values in log output.
const RedactedPlaceholder = "[REDACTED]"

// sensitiveFieldNames are log field keys whose values are always redacted.
var sensitiveFieldNames = []string{
	"token",
	"api_key",
	"apikey",
	"authorization",
	"hf_token",
	"secret",
	"password",
}

// hfTokenPattern matches Hugging Face access tokens embedded in strings.
var hfTokenPattern = regexp.MustCompile(`hf_[A-Za-z0-9]{20,}`)

// bearerPattern matches Authorization header values embedded in strings.
var bearerPattern = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]+`)

// IsSensitiveField reports whether a log field key names a credential.
func IsSensitiveField(key string) bool {
	lower := strings.ToLower(key)
	for _, name := range sensitiveFieldNames {
		if lower == name || strings.HasSuffix(lower, "_"+name) {
			return true
		}
	}
	return false
}

// RedactSensitiveData replaces embedded tokens in a string value.
// Non-sensitive strings are returned unchanged.
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}
	value = hfTokenPattern.ReplaceAllString(value, RedactedPlaceholder)
	value = bearerPattern.ReplaceAllString(value, RedactedPlaceholder)
	return value
}
