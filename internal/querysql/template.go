package querysql

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// SQL templates use composite-format placeholders: {0} and {1} stand for a
// literal "{" and "}", and {k} for k >= 2 is the parameter at position k-2.
// Every piece of user-controlled text written into a template (identifiers,
// literals) goes through Escape.

// FirstParameter is the template index of the first parameter.
const FirstParameter = 2

var braceEscaper = strings.NewReplacer("{", "{0}", "}", "{1}")

// Escape makes s safe to embed in a template.
func Escape(s string) string {
	if !strings.ContainsAny(s, "{}") {
		return s
	}
	return braceEscaper.Replace(s)
}

const precomputedPlaceholders = 64

var placeholders = sync.OnceValue(func() []string {
	table := make([]string, precomputedPlaceholders)
	for i := range table {
		table[i] = "{" + strconv.Itoa(i) + "}"
	}
	return table
})

// Placeholder returns the template token for parameter position i.
func Placeholder(i int) string {
	k := i + FirstParameter
	if k < precomputedPlaceholders {
		return placeholders()[k]
	}
	return "{" + strconv.Itoa(k) + "}"
}

// Format substitutes template tokens: {0} → "{", {1} → "}", {k} → names[k-2].
func Format(template string, names []string) (string, error) {
	var b strings.Builder
	b.Grow(len(template))
	for i := 0; i < len(template); i++ {
		c := template[i]
		if c == '}' {
			return "", fmt.Errorf("template: unmatched '}' at offset %d", i)
		}
		if c != '{' {
			b.WriteByte(c)
			continue
		}
		end := strings.IndexByte(template[i:], '}')
		if end < 0 {
			return "", fmt.Errorf("template: unterminated placeholder at offset %d", i)
		}
		k, err := strconv.Atoi(template[i+1 : i+end])
		if err != nil {
			return "", fmt.Errorf("template: bad placeholder %q", template[i:i+end+1])
		}
		switch {
		case k == 0:
			b.WriteByte('{')
		case k == 1:
			b.WriteByte('}')
		case k-FirstParameter < len(names):
			b.WriteString(names[k-FirstParameter])
		default:
			return "", fmt.Errorf("template: placeholder {%d} has no parameter", k)
		}
		i += end
	}
	return b.String(), nil
}
