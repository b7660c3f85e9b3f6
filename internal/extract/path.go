package extract

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a path: a property name or an array index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

func (s Segment) String() string {
	if s.IsIndex {
		return fmt.Sprintf("[%d]", s.Index)
	}
	return s.Key
}

// Path is a parsed body path such as data.items[0].protocol.
type Path []Segment

func (p Path) String() string {
	var b strings.Builder
	for i, s := range p {
		if !s.IsIndex && i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.String())
	}
	return b.String()
}

// gjsonPath translates p into gjson syntax. Identifiers never contain gjson
// metacharacters, so no escaping is needed.
func (p Path) gjsonPath() string {
	parts := make([]string, len(p))
	for i, s := range p {
		if s.IsIndex {
			parts[i] = strconv.Itoa(s.Index)
		} else {
			parts[i] = s.Key
		}
	}
	return strings.Join(parts, ".")
}

// ParsePath parses the restricted grammar
//
//	path  = ident ( "." ident | "[" digits "]" )*
//	ident = [A-Za-z_$][A-Za-z0-9_$]*
//
// Surrounding whitespace is ignored; anything else is rejected.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty path")
	}

	var path Path
	pos := 0
	ident, n := scanIdent(s)
	if n == 0 {
		return nil, fmt.Errorf("path '%s': expected identifier at position 0", s)
	}
	path = append(path, Segment{Key: ident})
	pos = n

	for pos < len(s) {
		switch s[pos] {
		case '.':
			ident, n := scanIdent(s[pos+1:])
			if n == 0 {
				return nil, fmt.Errorf("path '%s': expected identifier at position %d", s, pos+1)
			}
			path = append(path, Segment{Key: ident})
			pos += 1 + n
		case '[':
			end := strings.IndexByte(s[pos:], ']')
			if end < 0 {
				return nil, fmt.Errorf("path '%s': unterminated index at position %d", s, pos)
			}
			digits := s[pos+1 : pos+end]
			idx, err := parseIndex(digits)
			if err != nil {
				return nil, fmt.Errorf("path '%s': %w", s, err)
			}
			path = append(path, Segment{Index: idx, IsIndex: true})
			pos += end + 1
		default:
			return nil, fmt.Errorf("path '%s': unexpected character %q at position %d", s, s[pos], pos)
		}
	}
	return path, nil
}

func scanIdent(s string) (string, int) {
	i := 0
	for i < len(s) {
		c := s[i]
		isStart := c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if !isStart && (i == 0 || c < '0' || c > '9') {
			break
		}
		i++
	}
	return s[:i], i
}

func parseIndex(digits string) (int, error) {
	if digits == "" {
		return 0, fmt.Errorf("empty index")
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("index '%s' is not a non-negative integer", digits)
		}
	}
	if len(digits) > 1 && digits[0] == '0' {
		return 0, fmt.Errorf("index '%s' has a leading zero", digits)
	}
	idx, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("index '%s' out of range", digits)
	}
	return idx, nil
}
