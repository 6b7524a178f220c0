package pipeline

import "strings"

// IsPermanentError classifies an error message against the configured
// permanence patterns. A match means the content is structurally
// unprocessable and the filing must never be retried; everything else is
// treated as transient by omission, so the filing stays queued.
func IsPermanentError(message string, patterns []string) bool {
	lower := strings.ToLower(message)
	for _, pattern := range patterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
