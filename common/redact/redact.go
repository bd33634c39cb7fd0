// Package redact provides helpers for stripping sensitive values from log
// output and error text before it leaves the process boundary.
//
// # Threat model
//
// The Telegram bot token must never appear in:
//   - Log lines emitted by Hikyaku
//   - History rows stored in SQLite
//   - Replies sent back into Telegram chats
//
// The token is especially leak-prone because the Bot API embeds it in file
// download URLs (https://api.telegram.org/file/bot<TOKEN>/...), so any
// transport error that quotes a URL quotes the token.
//
// Redaction is best-effort: it operates on string representations and relies
// on callers to pass the right set of sensitive terms.  It is NOT a substitute
// for keeping secrets out of log call-sites in the first place.
package redact

import (
	"errors"
	"strings"
)

const placeholder = "[REDACTED]"

// String replaces every occurrence of each sensitive value in s with
// [REDACTED].  Values shorter than 4 characters are skipped to avoid
// spurious redaction of common substrings.
//
// Example:
//
//	safe := redact.String(logLine, botToken)
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// Error returns err with its message redacted. The result no longer wraps the
// original error chain: redaction is for values crossing the process boundary
// (user replies, log lines), where unwrapping is over.
func Error(err error, sensitiveValues ...string) error {
	if err == nil {
		return nil
	}
	redacted := String(err.Error(), sensitiveValues...)
	if redacted == err.Error() {
		return err
	}
	return errors.New(redacted)
}
