package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/orq/internal/expr"
	"github.com/roach88/orq/internal/queryir"
)

// Binder turns an external value into template text: a placeholder token
// for parameters, escaped literal text otherwise. Bind is called in emission
// order, which is the order parameters appear in the SQL text.
type Binder interface {
	Bind(ext *expr.External) (string, error)
}

// BinderFunc adapts a function to Binder.
type BinderFunc func(ext *expr.External) (string, error)

func (f BinderFunc) Bind(ext *expr.External) (string, error) { return f(ext) }

// Emitter renders a finalized query tree as a SQL template.
//
// CRITICAL: identifiers and literals are escaped with Escape; only binder
// placeholders reach the template unescaped.
type Emitter struct {
	dialect Dialect
	caps    Capabilities
	tree    *queryir.Tree
	binder  Binder

	// qualify renders columns as alias.column (or table.column).
	qualify bool
}

// NewEmitter returns an emitter for tree.
func NewEmitter(d Dialect, tree *queryir.Tree, b Binder) *Emitter {
	return &Emitter{
		dialect: d,
		caps:    d.Capabilities(),
		tree:    tree,
		binder:  b,
		qualify: len(tree.Tables()) > 1,
	}
}

func (e *Emitter) ident(name string) string {
	return Escape(e.dialect.QuoteIdentifier(name))
}

// Select renders the SELECT statement of scope s.
func (e *Emitter) Select(s *queryir.Scope) (string, error) {
	var b strings.Builder
	b.WriteString("SELECT ")
	if s.Distinct {
		b.WriteString("DISTINCT ")
	}

	if len(s.Outputs) == 0 {
		b.WriteString("1")
	}
	for i, out := range s.Outputs {
		if i > 0 {
			b.WriteString(", ")
		}
		text, err := e.value(out)
		if err != nil {
			return "", err
		}
		b.WriteString(text)
		if i < len(s.OutputAliases) && s.OutputAliases[i] != "" {
			b.WriteString(" AS ")
			b.WriteString(e.ident(s.OutputAliases[i]))
		}
	}

	if len(s.Tables) > 0 {
		from, err := e.from(s)
		if err != nil {
			return "", err
		}
		b.WriteString(" FROM ")
		b.WriteString(from)
	}

	if err := e.clauses(&b, s); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (e *Emitter) clauses(b *strings.Builder, s *queryir.Scope) error {
	where := s.Where
	if len(s.Tables) > 0 && s.Tables[0].Join != nil {
		// A leading table has no ON clause to carry its join condition.
		where = append([]expr.Node{s.Tables[0].Join}, where...)
	}
	if len(where) > 0 {
		text, err := e.conjunction(where)
		if err != nil {
			return err
		}
		b.WriteString(" WHERE ")
		b.WriteString(text)
	}

	if len(s.GroupBy) > 0 {
		parts := make([]string, len(s.GroupBy))
		for i, g := range s.GroupBy {
			text, err := e.value(g)
			if err != nil {
				return err
			}
			parts[i] = text
		}
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(parts, ", "))
	}

	if len(s.Having) > 0 {
		having, err := e.conjunction(s.Having)
		if err != nil {
			return err
		}
		b.WriteString(" HAVING ")
		b.WriteString(having)
	}

	switch {
	case len(s.OrderBy) > 0:
		parts := make([]string, len(s.OrderBy))
		for i, o := range s.OrderBy {
			text, err := e.value(o.Expr)
			if err != nil {
				return err
			}
			if o.Descending {
				text += " DESC"
			}
			parts[i] = text
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(parts, ", "))
	case s.ConstantOrder:
		b.WriteString(" ORDER BY (SELECT 1)")
	}

	return e.paging(b, s)
}

func (e *Emitter) paging(b *strings.Builder, s *queryir.Scope) error {
	if !s.Paged() {
		return nil
	}
	// Only the clauses a paging style prints are rendered, so the binder
	// never sees a value that is absent from the text.
	render := func(n expr.Node) (string, error) {
		if n == nil {
			return "", nil
		}
		return e.render(n, precAdd)
	}

	switch e.caps.Paging {
	case PagingOffsetFetch:
		offset, err := render(s.Offset)
		if err != nil {
			return err
		}
		if offset == "" {
			offset = "0"
		}
		b.WriteString(" OFFSET " + offset + " ROWS")
		if s.Limit != nil {
			limit, err := render(s.Limit)
			if err != nil {
				return err
			}
			b.WriteString(" FETCH NEXT " + limit + " ROWS ONLY")
		}
	case PagingRows:
		switch {
		case s.Offset == nil:
			limit, err := render(s.Limit)
			if err != nil {
				return err
			}
			b.WriteString(" ROWS 1 TO " + limit)
		case s.Limit == nil:
			offset, err := render(s.Offset)
			if err != nil {
				return err
			}
			b.WriteString(" ROWS " + offset + " + 1 TO 9223372036854775807")
		default:
			if s.Bound == nil {
				return fmt.Errorf("%s: row-range paging needs a derived bound", e.dialect.Name())
			}
			offset, err := render(s.Offset)
			if err != nil {
				return err
			}
			bound, err := render(s.Bound)
			if err != nil {
				return err
			}
			b.WriteString(" ROWS " + offset + " + 1 TO " + bound)
		}
	default:
		if s.Limit != nil {
			limit, err := render(s.Limit)
			if err != nil {
				return err
			}
			b.WriteString(" LIMIT " + limit)
		} else if e.dialect.UnboundedLimit() != "" {
			b.WriteString(" LIMIT " + e.dialect.UnboundedLimit())
		}
		if s.Offset != nil {
			offset, err := render(s.Offset)
			if err != nil {
				return err
			}
			b.WriteString(" OFFSET " + offset)
		}
	}
	return nil
}

func (e *Emitter) from(s *queryir.Scope) (string, error) {
	var b strings.Builder
	for i, tbl := range s.Tables {
		source, err := e.tableSource(tbl)
		if err != nil {
			return "", err
		}
		if i == 0 {
			b.WriteString(source)
			continue
		}
		if tbl.Join == nil {
			b.WriteString(" CROSS JOIN " + source)
			continue
		}
		kind := tbl.Kind
		if kind == expr.JoinNone {
			kind = expr.JoinInner
		}
		on, err := e.predicate(tbl.Join, precOr)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, " %s JOIN %s ON %s", kind, source, on)
	}
	return b.String(), nil
}

func (e *Emitter) tableSource(tbl *expr.Table) (string, error) {
	var source string
	if tbl.Derived != 0 {
		inner, err := e.Select(e.tree.Scope(tbl.Derived))
		if err != nil {
			return "", err
		}
		source = "(" + inner + ")"
	} else {
		source = e.ident(tbl.Entity.Table)
	}
	if tbl.Alias != "" {
		source += " AS " + e.ident(tbl.Alias)
	}
	return source, nil
}

func (e *Emitter) conjunction(preds []expr.Node) (string, error) {
	parts := make([]string, len(preds))
	for i, p := range preds {
		prec := precAnd
		if len(preds) == 1 {
			prec = precOr
		}
		text, err := e.predicate(p, prec)
		if err != nil {
			return "", err
		}
		parts[i] = text
	}
	return strings.Join(parts, " AND "), nil
}

// Operator precedence, loosest first.
const (
	precOr = iota + 1
	precAnd
	precNot
	precCompare
	precAdd
	precMul
	precUnary
	precAtom
)

func binaryPrec(op expr.BinaryOp) int {
	switch op {
	case expr.OpOr:
		return precOr
	case expr.OpAnd:
		return precAnd
	case expr.OpAdd, expr.OpSub:
		return precAdd
	case expr.OpMul, expr.OpDiv, expr.OpMod:
		return precMul
	case expr.OpCoalesce:
		return precAtom
	}
	return precCompare
}

// isPredicate reports whether n renders as a SQL condition rather than a
// value.
func isPredicate(n expr.Node) bool {
	switch x := n.(type) {
	case *expr.Binary:
		return x.Op.IsComparison() || x.Op.IsLogical()
	case *expr.Unary:
		return x.Op == expr.OpNot
	case *expr.Function:
		return x.Kind.IsPredicate()
	}
	return false
}

// predicate renders n in a condition position. A boolean value is compared
// with TRUE so every vendor accepts it.
func (e *Emitter) predicate(n expr.Node, parent int) (string, error) {
	if !isPredicate(n) {
		text, err := e.render(n, precCompare+1)
		if err != nil {
			return "", err
		}
		lit, err := e.dialect.FormatLiteral(true)
		if err != nil {
			return "", err
		}
		return wrap(text+" = "+lit, precCompare, parent), nil
	}
	return e.render(n, parent)
}

// value renders n in a value position (select list, grouping, ordering).
func (e *Emitter) value(n expr.Node) (string, error) {
	if isPredicate(n) && !e.caps.BooleanValues {
		cond, err := e.render(n, precOr)
		if err != nil {
			return "", err
		}
		one, _ := e.dialect.FormatLiteral(true)
		zero, _ := e.dialect.FormatLiteral(false)
		return "CASE WHEN " + cond + " THEN " + one + " ELSE " + zero + " END", nil
	}
	return e.render(n, precOr)
}

func wrap(text string, prec, parent int) string {
	if prec < parent {
		return "(" + text + ")"
	}
	return text
}

func isNullConstant(n expr.Node) bool {
	c, ok := n.(*expr.Constant)
	return ok && c.Value == nil
}

// render renders n, parenthesized when its precedence is lower than parent.
func (e *Emitter) render(n expr.Node, parent int) (string, error) {
	switch x := n.(type) {
	case *expr.Column:
		return e.column(x), nil

	case *expr.Constant:
		lit, err := e.dialect.FormatLiteral(x.Value)
		if err != nil {
			return "", err
		}
		return Escape(lit), nil

	case *expr.External:
		return e.binder.Bind(x)

	case *expr.Subquery:
		inner, err := e.Select(e.tree.Scope(x.Scope))
		if err != nil {
			return "", err
		}
		return "(" + inner + ")", nil

	case *expr.Binary:
		return e.binary(x, parent)

	case *expr.Unary:
		switch x.Op {
		case expr.OpNot:
			operand, err := e.predicate(x.Operand, precNot)
			if err != nil {
				return "", err
			}
			return wrap("NOT "+operand, precNot, parent), nil
		case expr.OpNegate:
			operand, err := e.render(x.Operand, precUnary)
			if err != nil {
				return "", err
			}
			// "--" opens a line comment.
			if strings.HasPrefix(operand, "-") {
				operand = "(" + operand + ")"
			}
			return wrap("-"+operand, precUnary, parent), nil
		default:
			return e.render(x.Operand, parent)
		}

	case *expr.Conditional:
		test, err := e.predicate(x.Test, precOr)
		if err != nil {
			return "", err
		}
		yes, err := e.value(x.IfTrue)
		if err != nil {
			return "", err
		}
		no, err := e.value(x.IfFalse)
		if err != nil {
			return "", err
		}
		return "CASE WHEN " + test + " THEN " + yes + " ELSE " + no + " END", nil

	case *expr.Function:
		return e.function(x, parent)
	}
	return "", fmt.Errorf("%s: cannot render %s in SQL", e.dialect.Name(), expr.String(n))
}

func (e *Emitter) column(c *expr.Column) string {
	name := e.ident(c.Name())
	if !e.qualify {
		return name
	}
	if c.Table.Alias != "" {
		return e.ident(c.Table.Alias) + "." + name
	}
	return e.ident(c.Table.Entity.Table) + "." + name
}

func (e *Emitter) binary(x *expr.Binary, parent int) (string, error) {
	if x.Op == expr.OpCoalesce {
		l, err := e.render(x.Left, precOr)
		if err != nil {
			return "", err
		}
		r, err := e.render(x.Right, precOr)
		if err != nil {
			return "", err
		}
		return "COALESCE(" + l + ", " + r + ")", nil
	}

	if (x.Op == expr.OpEqual || x.Op == expr.OpNotEqual) && (isNullConstant(x.Left) || isNullConstant(x.Right)) {
		operand := x.Left
		if isNullConstant(x.Left) {
			operand = x.Right
		}
		text, err := e.render(operand, precCompare+1)
		if err != nil {
			return "", err
		}
		if x.Op == expr.OpEqual {
			return wrap(text+" IS NULL", precCompare, parent), nil
		}
		return wrap(text+" IS NOT NULL", precCompare, parent), nil
	}

	prec := binaryPrec(x.Op)
	var l, r string
	var err error
	if x.Op.IsLogical() {
		if l, err = e.predicate(x.Left, prec); err != nil {
			return "", err
		}
		if r, err = e.predicate(x.Right, prec); err != nil {
			return "", err
		}
	} else {
		if l, err = e.render(x.Left, prec); err != nil {
			return "", err
		}
		rightPrec := prec + 1
		if x.Op == expr.OpAdd || x.Op == expr.OpMul {
			rightPrec = prec
		}
		if r, err = e.render(x.Right, rightPrec); err != nil {
			return "", err
		}
	}
	return wrap(l+" "+string(x.Op)+" "+r, prec, parent), nil
}

func (e *Emitter) function(f *expr.Function, parent int) (string, error) {
	prec := precAtom
	if f.Kind.IsPredicate() {
		prec = precCompare
	}

	switch f.Kind {
	case expr.FuncIn:
		item, err := e.render(f.Args[0], precCompare+1)
		if err != nil {
			return "", err
		}
		list := f.Args[1]
		text, err := e.render(list, precAtom)
		if err != nil {
			return "", err
		}
		if ext, ok := list.(*expr.External); ok && ext.Usage == expr.UsageParameter {
			return wrap(e.dialect.RenderArrayIn(item, text), prec, parent), nil
		}
		// x IN (NULL) is unknown rather than false, which breaks NOT.
		if text == emptyList {
			return wrap("1 = 0", prec, parent), nil
		}
		return wrap(item+" IN "+text, prec, parent), nil

	case expr.FuncExists:
		sub, err := e.render(f.Args[0], precAtom)
		if err != nil {
			return "", err
		}
		out, err := e.dialect.RenderFunction(f.Kind, []string{sub})
		if err != nil {
			return "", err
		}
		return wrap(out, prec, parent), nil
	}

	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		argPrec := precOr
		if f.Kind.IsPredicate() {
			argPrec = precCompare + 1
		}
		text, err := e.render(a, argPrec)
		if err != nil {
			return "", err
		}
		args[i] = text
	}
	out, err := e.dialect.RenderFunction(f.Kind, args)
	if err != nil {
		return "", err
	}
	return wrap(out, prec, parent), nil
}
