package util

import (
	"os"
	"regexp"
	"strings"
	"unicode/utf8"
)

// SnippetMaxRunes bounds Snippet output.
const SnippetMaxRunes = 200

var windowsEnvVar = regexp.MustCompile(`%([A-Za-z0-9_]+)%`)

// ExpandEnvUniversal expands both Unix-style ($VAR, ${VAR}) and Windows-style (%VAR%) environment variables.
// Unset variables expand to the empty string in both styles.
func ExpandEnvUniversal(s string) string {
	unixExpanded := os.ExpandEnv(s)
	return windowsEnvVar.ReplaceAllStringFunc(unixExpanded, func(match string) string {
		if value, ok := os.LookupEnv(match[1 : len(match)-1]); ok {
			return value
		}
		return ""
	})
}

// Snippet returns a short prefix of a byte slice, useful for logging.
func Snippet(b []byte) string {
	if utf8.RuneCount(b) <= SnippetMaxRunes {
		return string(b)
	}
	runes := []rune(string(b))
	return string(runes[:SnippetMaxRunes]) + "..."
}

// FirstNonEmpty returns the first argument that is not blank after trimming.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// IsBodylessMethod reports whether requests with this method are sent without a body.
func IsBodylessMethod(method string) bool {
	switch strings.ToUpper(method) {
	case "GET", "HEAD":
		return true
	}
	return false
}
