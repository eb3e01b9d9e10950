// Package template fills parameter files that use "$name" placeholders.
//
// The syntax is deliberately small: "$name" and "${name}" are replaced by
// the named value, "$$" produces a literal "$". Names start with a letter or
// underscore followed by letters, digits or underscores. What happens to a
// placeholder without a value is decided by the Policy.
package template

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/beamline/autoproc/util/fsutil"
)

// Policy decides how placeholders without a value are handled.
type Policy int

const (
	// PassThrough leaves unresolved placeholders in the output verbatim.
	PassThrough Policy = iota
	// ErrorOnMissing fails on the first unresolved or malformed placeholder.
	ErrorOnMissing
)

// FileMode is the mode of files written by RenderFile.
const FileMode os.FileMode = 0777

// Values maps placeholder names to values. Values are formatted with
// Format.
type Values map[string]interface{}

// MissingError is returned under ErrorOnMissing for a placeholder without a value.
type MissingError struct {
	Name string
	Pos  int
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("no value for placeholder $%s at offset %d", e.Name, e.Pos)
}

// Render substitutes the placeholders in text. Rendering is pure: the same
// text and values always produce the same output.
func Render(text string, values Values, policy Policy) (string, error) {
	var b strings.Builder
	b.Grow(len(text))

	for i := 0; i < len(text); {
		c := text[i]
		if c != '$' {
			b.WriteByte(c)
			i++
			continue
		}

		// "$" at the very end
		if i+1 == len(text) {
			if policy == ErrorOnMissing {
				return "", fmt.Errorf("dangling $ at offset %d", i)
			}
			b.WriteByte(c)
			i++
			continue
		}

		next := text[i+1]
		switch {
		case next == '$':
			b.WriteByte('$')
			i += 2

		case next == '{':
			end := strings.IndexByte(text[i+2:], '}')
			name := ""
			if end >= 0 {
				name = text[i+2 : i+2+end]
			}
			if end < 0 || !isIdent(name) {
				if policy == ErrorOnMissing {
					return "", fmt.Errorf("malformed placeholder at offset %d", i)
				}
				b.WriteByte(c)
				i++
				continue
			}
			raw := text[i : i+3+end]
			if err := write(&b, name, raw, i, values, policy); err != nil {
				return "", err
			}
			i += len(raw)

		case isIdentStart(next):
			j := i + 2
			for j < len(text) && isIdentChar(text[j]) {
				j++
			}
			if err := write(&b, text[i+1:j], text[i:j], i, values, policy); err != nil {
				return "", err
			}
			i = j

		default:
			if policy == ErrorOnMissing {
				return "", fmt.Errorf("malformed placeholder at offset %d", i)
			}
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

// RenderFile renders text and writes the result to path with FileMode.
func RenderFile(path, text string, values Values, policy Policy) error {
	out, err := Render(text, values, policy)
	if err != nil {
		return fmt.Errorf("rendering %s: %w", path, err)
	}
	if err := fsutil.WriteFile(path, []byte(out), FileMode); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Placeholders returns the distinct placeholder names used in text, in
// order of first appearance.
func Placeholders(text string) []string {
	seen := map[string]bool{}
	var names []string
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	for i := 0; i+1 < len(text); i++ {
		if text[i] != '$' {
			continue
		}
		next := text[i+1]
		switch {
		case next == '$':
			i++
		case next == '{':
			end := strings.IndexByte(text[i+2:], '}')
			if end >= 0 && isIdent(text[i+2:i+2+end]) {
				add(text[i+2 : i+2+end])
				i += 2 + end
			}
		case isIdentStart(next):
			j := i + 2
			for j < len(text) && isIdentChar(text[j]) {
				j++
			}
			add(text[i+1 : j])
			i = j - 1
		}
	}
	return names
}

// Disabled renders an XDS keyword as a comment, which XDS ignores.
func Disabled(keyword string) string {
	return "!" + keyword
}

// Directive renders "KEYWORD = value", or the disabled keyword when value is empty.
func Directive(keyword, value string) string {
	if value == "" {
		return Disabled(keyword)
	}
	return keyword + " = " + value
}

// Format converts a value to its textual form in a rendered file.
func Format(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

func write(b *strings.Builder, name, raw string, pos int, values Values, policy Policy) error {
	v, ok := values[name]
	if !ok {
		if policy == ErrorOnMissing {
			return &MissingError{Name: name, Pos: pos}
		}
		b.WriteString(raw)
		return nil
	}
	b.WriteString(Format(v))
	return nil
}

func isIdent(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			return false
		}
	}
	return true
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
