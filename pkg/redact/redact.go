// Package redact scrubs PII from transcript text before it reaches the logs.
// Recognized transcripts routinely contain spoken email addresses and phone
// numbers; redaction is off by default and enabled via privacy config.
package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	// Spoken numbers arrive grouped ("+62 812 3456 7890"); the optional
	// leading + sits outside the word boundary so international prefixes are
	// consumed with the number.
	phoneRe = regexp.MustCompile(`\+?\b\d[\d\s\-]{7,}\d\b`)
)

// SetEnabled toggles transcript redaction.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled returns true when redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text redacts emails and phone numbers when enabled.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[REDACTED_EMAIL]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	return out
}
