package logger

import (
	"io"
	"regexp"
)

// Redactor scrubs credentials from log output. Telegram API errors embed
// the bot token in request URLs, so this runs on every log line.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor with the default patterns
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// Telegram bot tokens (also inside api.telegram.org URLs)
			regexp.MustCompile(`\d{8,10}:[a-zA-Z0-9_-]{30,}`),

			// OpenAI / Anthropic API keys
			regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
			regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),

			// Bearer tokens
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),
		},
	}
}

// Redact scrubs sensitive substrings from s
func (r *Redactor) Redact(s string) string {
	result := s
	for _, pattern := range r.patterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// Wrap wraps an io.Writer so everything written through it is redacted
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

func (w *redactingWriter) Write(p []byte) (int, error) {
	redacted := w.redactor.Redact(string(p))
	if _, err := w.writer.Write([]byte(redacted)); err != nil {
		return 0, err
	}
	return len(p), nil
}
