package expr

import (
	"fmt"
	"strings"
)

// String renders n in a compact, lisp-like debugging notation. It is used in
// error messages and debug logs; it is not SQL.
func String(n Node) string {
	var b strings.Builder
	write(&b, n)
	return b.String()
}

func write(b *strings.Builder, n Node) {
	switch e := n.(type) {
	case nil:
		b.WriteString("<nil>")
	case *Constant:
		if s, ok := e.Value.(string); ok {
			fmt.Fprintf(b, "%q", s)
		} else {
			fmt.Fprintf(b, "%v", e.Value)
		}
	case *Parameter:
		b.WriteString(e.Name)
	case *Argument:
		if e.Name != "" {
			fmt.Fprintf(b, "@%s", e.Name)
		} else {
			fmt.Fprintf(b, "@%d", e.Index)
		}
	case *Unary:
		fmt.Fprintf(b, "(%s ", e.Op)
		write(b, e.Operand)
		b.WriteString(")")
	case *Binary:
		b.WriteString("(")
		write(b, e.Left)
		fmt.Fprintf(b, " %s ", e.Op)
		write(b, e.Right)
		b.WriteString(")")
	case *Conditional:
		b.WriteString("(if ")
		write(b, e.Test)
		b.WriteString(" ")
		write(b, e.IfTrue)
		b.WriteString(" ")
		write(b, e.IfFalse)
		b.WriteString(")")
	case *Member:
		write(b, e.Target)
		b.WriteString(".")
		b.WriteString(e.Name)
	case *New:
		b.WriteString("{")
		for i, name := range e.Names {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(name)
			b.WriteString(": ")
			write(b, e.Args[i])
		}
		b.WriteString("}")
	case *Call:
		if len(e.Args) > 0 {
			write(b, e.Args[0])
			b.WriteString(".")
		}
		b.WriteString(e.Method)
		b.WriteString("(")
		for i, a := range e.Args[min(1, len(e.Args)):] {
			if i > 0 {
				b.WriteString(", ")
			}
			write(b, a)
		}
		b.WriteString(")")
	case *Lambda:
		names := make([]string, len(e.Params))
		for i, p := range e.Params {
			names[i] = p.Name
		}
		b.WriteString(strings.Join(names, ", "))
		b.WriteString(" => ")
		write(b, e.Body)
	case *EntitySet:
		fmt.Fprintf(b, "From<%s>", e.Entity)
	case *Table:
		fmt.Fprintf(b, "table[%s]", e.Identity)
	case *Column:
		fmt.Fprintf(b, "table[%s].%s", e.Table.Identity, e.Meta.Name)
	case *Function:
		b.WriteString(string(e.Kind))
		b.WriteString("(")
		for i, a := range e.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			write(b, a)
		}
		b.WriteString(")")
	case *External:
		b.WriteString("ext(")
		write(b, e.Source)
		b.WriteString(")")
	case *Subquery:
		fmt.Fprintf(b, "subquery#%d", e.Scope)
	case *ReadColumn:
		fmt.Fprintf(b, "read[%d]", e.Index)
	case *ReadRow:
		fmt.Fprintf(b, "readrow[%s]", e.Table.Identity)
	default:
		fmt.Fprintf(b, "%T", n)
	}
}
