// Package resolve maps requested identifiers onto the physical names a live
// schema actually uses. Upstream models frequently disagree with the
// database about case or punctuation (FormDeveloper vs Form_Developer); the
// resolver tries progressively looser matches before giving up.
package resolve

import (
	"fmt"
	"sort"
	"strings"
)

// IdentifierNotFoundError is returned when no known name matches the
// requested identifier under any rule.
type IdentifierNotFoundError struct {
	Requested string
	Known     []string
}

func (e *IdentifierNotFoundError) Error() string {
	known := append([]string(nil), e.Known...)
	sort.Strings(known)
	return fmt.Sprintf("identifier %q not found; known names: %s",
		e.Requested, strings.Join(known, ", "))
}

// Identifier resolves requested against known, in order: exact match,
// ASCII-case-insensitive match, canonical match (both sides stripped of
// non-alphanumerics and lowercased), and finally a camelCase-to-snake_case
// rewrite retried case-insensitively.
func Identifier(requested string, known []string) (string, error) {
	for _, name := range known {
		if name == requested {
			return name, nil
		}
	}
	for _, name := range known {
		if strings.EqualFold(name, requested) {
			return name, nil
		}
	}

	canon := Canonical(requested)
	for _, name := range known {
		if Canonical(name) == canon {
			return name, nil
		}
	}

	snake := CamelToSnake(requested)
	for _, name := range known {
		if strings.EqualFold(name, snake) {
			return name, nil
		}
	}

	return "", &IdentifierNotFoundError{Requested: requested, Known: known}
}

// Canonical strips every non-alphanumeric character and lowercases the rest.
func Canonical(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		}
	}
	return b.String()
}

// CamelToSnake inserts an underscore before every uppercase letter that
// follows a lowercase letter or digit.
func CamelToSnake(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)

	prevLowerOrDigit := false
	for _, r := range s {
		upper := r >= 'A' && r <= 'Z'
		if upper && prevLowerOrDigit {
			b.WriteByte('_')
		}
		b.WriteRune(r)
		prevLowerOrDigit = (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
	}
	return b.String()
}
