package cypher

import (
	"fmt"
	"regexp"
	"strings"
)

// writer accumulates indented statement lines.
type writer struct {
	lines []string
	depth int
}

func (w *writer) line(format string, args ...any) {
	w.lines = append(w.lines, strings.Repeat("    ", w.depth)+fmt.Sprintf(format, args...))
}

func (w *writer) block(open, close string, body func()) {
	w.line("%s", open)
	w.depth++
	body()
	w.depth--
	w.line("%s", close)
}

func (w *writer) String() string {
	return strings.Join(w.lines, "\n")
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// escape quotes names that are not plain identifiers.
func escape(name string) string {
	if identifier.MatchString(name) {
		return name
	}
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// labelExpr renders `:A:B` for a label set.
func labelExpr(labels []string) string {
	var b strings.Builder
	for _, l := range labels {
		b.WriteString(":")
		b.WriteString(escape(l))
	}
	return b.String()
}

func property(variable, name string) string {
	return variable + "." + escape(name)
}
