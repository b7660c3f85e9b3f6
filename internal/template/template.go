// Package template resolves {{variable}} placeholders against a session snapshot.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"flowhook/internal/logging"
	"flowhook/internal/payload"
	"flowhook/internal/session"
)

// StateSentinel, as a whole body, is replaced by the answer history keyed by variable name.
const StateSentinel = "{{state}}"

var (
	placeholderRe    = regexp.MustCompile(`\{\{(.*?)\}\}`)
	singleVariableRe = regexp.MustCompile(`^\{\{.+\}\}$`)
)

// Options controls how substituted values are rendered.
type Options struct {
	// InsideJSON escapes strings for embedding in a JSON string literal and
	// inlines structured values as JSON.
	InsideJSON bool
}

// Resolve replaces every {{ident}} in tmpl with the value of the variable
// whose id or name equals the trimmed ident. Unknown or unset variables
// resolve to the empty string.
func Resolve(tmpl string, snap session.Snapshot, opts Options) string {
	if !HasPlaceholders(tmpl) {
		return tmpl
	}
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		ident := strings.TrimSpace(match[2 : len(match)-2])
		v, ok := snap.Lookup(ident)
		if !ok {
			logging.Logf(logging.Debug, "Template placeholder '%s' did not match any variable, using empty string", ident)
			return ""
		}
		return render(v.Value, opts)
	})
}

// ResolveBody resolves a request body template. A body equal to StateSentinel
// becomes the JSON answer history; a body that is a single placeholder is
// resolved without JSON escaping.
func ResolveBody(tmpl string, snap session.Snapshot, opts Options) string {
	if strings.TrimSpace(tmpl) == StateSentinel {
		b, err := payload.Marshal(snap.AnswersByName())
		if err != nil {
			logging.Logf(logging.Warning, "Could not serialize answer history: %v", err)
			return ""
		}
		return string(b)
	}
	if IsSingleVariable(tmpl) {
		opts.InsideJSON = false
	}
	return Resolve(tmpl, snap, opts)
}

// IsSingleVariable reports whether s is exactly one placeholder.
func IsSingleVariable(s string) bool {
	return singleVariableRe.MatchString(s)
}

// HasPlaceholders reports whether s contains at least one placeholder.
func HasPlaceholders(s string) bool {
	return placeholderRe.MatchString(s)
}

func render(value any, opts Options) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		if opts.InsideJSON {
			return escapeJSONString(v)
		}
		return v
	case json.Number:
		return v.String()
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(v)
	default:
		b, err := payload.Marshal(v)
		if err != nil {
			logging.Logf(logging.Debug, "Could not serialize variable value of type %T: %v", v, err)
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

// escapeJSONString returns s encoded as a JSON string literal without the surrounding quotes.
func escapeJSONString(s string) string {
	b, err := payload.Marshal(s)
	if err != nil || len(b) < 2 {
		return s
	}
	return string(b[1 : len(b)-1])
}
