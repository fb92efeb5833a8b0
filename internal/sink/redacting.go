package sink

import (
	"regexp"

	"github.com/trevorwieland/rentl/internal/model"
)

// secretLikeKey matches data-map keys that commonly carry secrets. Values
// under these keys are replaced outright rather than pattern-scanned, since
// the core cannot know the secret's shape in advance.
var secretLikeKey = regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|authorization)`)

// secretLikePattern matches secret-shaped substrings inside free text
// (message fields), independent of any surrounding key name.
var secretLikePattern = regexp.MustCompile(`(?i)(bearer\s+[a-z0-9._-]+|sk-[a-z0-9]{10,})`)

const redactedPlaceholder = "[REDACTED]"

// RedactingLog wraps a LogSink and scrubs secret-shaped values from Message
// and Data before forwarding to the underlying sink. It is middleware, not
// a distinct sink type: any LogSink can be wrapped.
type RedactingLog struct {
	next LogSink
}

// NewRedactingLog wraps next with secret scrubbing.
func NewRedactingLog(next LogSink) *RedactingLog {
	return &RedactingLog{next: next}
}

// Append scrubs entry and forwards the scrubbed copy to the wrapped sink.
func (r *RedactingLog) Append(entry model.LogEntry) {
	entry.Message = secretLikePattern.ReplaceAllString(entry.Message, redactedPlaceholder)
	if entry.Data != nil {
		entry.Data = redactMap(entry.Data)
	}
	r.next.Append(entry)
}

// RedactingProgress wraps a ProgressSink and scrubs secret-shaped values
// from error summaries before forwarding.
type RedactingProgress struct {
	next ProgressSink
}

// NewRedactingProgress wraps next with secret scrubbing.
func NewRedactingProgress(next ProgressSink) *RedactingProgress {
	return &RedactingProgress{next: next}
}

// Append scrubs update and forwards the scrubbed copy to the wrapped sink.
func (r *RedactingProgress) Append(update model.ProgressUpdate) error {
	if update.Error != nil {
		scrubbed := *update.Error
		scrubbed.Message = secretLikePattern.ReplaceAllString(scrubbed.Message, redactedPlaceholder)
		if scrubbed.Details != nil {
			scrubbed.Details = redactMap(scrubbed.Details)
		}
		update.Error = &scrubbed
	}
	return r.next.Append(update)
}

// redactMap returns a copy of m with values under secret-like keys replaced
// and any string value containing a secret-like pattern replaced whole by
// the placeholder.
func redactMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if secretLikeKey.MatchString(k) {
			out[k] = redactedPlaceholder
			continue
		}
		if isStringSecretPattern(v) {
			out[k] = redactedPlaceholder
			continue
		}
		out[k] = v
	}
	return out
}

func isStringSecretPattern(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	return secretLikePattern.MatchString(s)
}
