// Package redact provides helpers for stripping sensitive values from log
// output and chat messages before they leave the process boundary.
//
// # Threat model
//
// The Instagram password a user types during login must never appear in:
//   - Log lines emitted by Sayuri
//   - Run records stored in SQLite
//   - Matrix room messages (error echoes included — Instagram error strings
//     occasionally quote the submitted credential back)
//
// Redaction is best-effort: it operates on string representations and relies
// on callers to pass the right set of sensitive terms.  It is NOT a substitute
// for keeping secrets out of log call-sites in the first place.
package redact

import (
	"strings"
)

const placeholder = "[REDACTED]"

// String replaces every occurrence of each sensitive value in s with
// [REDACTED].  Values shorter than 4 characters are skipped to avoid
// spurious redaction of common substrings.
//
// Example:
//
//	safe := redact.String(providerErr.Error(), password)
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// Error redacts sensitiveValues from err's message. A nil err yields "".
func Error(err error, sensitiveValues ...string) string {
	if err == nil {
		return ""
	}
	return String(err.Error(), sensitiveValues...)
}
