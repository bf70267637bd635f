package translate

import (
	"fmt"
	"reflect"

	"github.com/roach88/orq/internal/expr"
	"github.com/roach88/orq/internal/querysql"
	"github.com/roach88/orq/internal/readplan"
)

// Extractor reads a parameter value from the call-site arguments.
type Extractor func(args []any) (any, error)

// Parameter describes one bound parameter of a command.
type Parameter struct {
	// Name is the dialect's placeholder text for the parameter.
	Name string
	// Position is the zero-based parameter position; the template refers
	// to it as {Position+2}.
	Position int
	Type     reflect.Type
	Extract  Extractor

	// External is the id of the external value the parameter binds.
	External int
}

// binder classifies external values as they are emitted. Parameters get a
// placeholder; lists the dialect cannot bind are evaluated now and inlined.
type binder struct {
	c       *context
	params  []*Parameter
	byExt   map[*expr.External]int
	literal bool
}

func newBinder(c *context) *binder {
	return &binder{c: c, byExt: map[*expr.External]int{}}
}

func (b *binder) Bind(ext *expr.External) (string, error) {
	t := ext.Typ
	list := querysql.IsList(t)
	if b.c.dialect.IsParameterType(t) && (!list || b.c.arrays) {
		return b.parameter(ext)
	}
	if list {
		return b.inline(ext)
	}
	return "", failf(UnsupportedConstruct, "value %s of type %s cannot be sent to %s",
		expr.String(ext.Source), t, b.c.dialect.Name())
}

func (b *binder) parameter(ext *expr.External) (string, error) {
	ext.Usage = expr.UsageParameter
	if pos, ok := b.byExt[ext]; ok && !b.c.caps.PositionalParameters {
		return querysql.Placeholder(pos), nil
	}
	extract, err := extractor(ext)
	if err != nil {
		return "", err
	}
	pos := len(b.params)
	b.params = append(b.params, &Parameter{
		Name:     b.c.dialect.ParameterName(pos),
		Position: pos,
		Type:     ext.Typ,
		Extract:  extract,
		External: ext.ID,
	})
	b.byExt[ext] = pos
	return querysql.Placeholder(pos), nil
}

// inline evaluates a list against the actual arguments and splices it into
// the text. The command is then only valid for these arguments.
func (b *binder) inline(ext *expr.External) (string, error) {
	ext.Usage = expr.UsageLiteral
	b.literal = true
	extract, err := extractor(ext)
	if err != nil {
		return "", err
	}
	v, err := extract(b.c.args)
	if err != nil {
		return "", wrapf(UnsupportedConstruct, err, "evaluating list %s", expr.String(ext.Source))
	}
	lit, err := b.c.dialect.FormatLiteral(v)
	if err != nil {
		return "", wrapf(UnsupportedConstruct, err, "formatting list %s", expr.String(ext.Source))
	}
	return querysql.Escape(lit), nil
}

// extractor compiles the read of ext from the call-site arguments: a direct
// positional read for a bare argument, an evaluated plan otherwise.
func extractor(ext *expr.External) (Extractor, error) {
	if a, ok := ext.Source.(*expr.Argument); ok {
		idx, name := a.Index, a.Name
		return func(args []any) (any, error) {
			if idx >= len(args) {
				return nil, fmt.Errorf("argument %d (%s) not supplied", idx, name)
			}
			return args[idx], nil
		}, nil
	}
	node, err := readplan.CompileValue(ext.Source)
	if err != nil {
		return nil, wrapf(UnsupportedConstruct, err, "value %s", expr.String(ext.Source))
	}
	return func(args []any) (any, error) {
		return node.Read(nil, args)
	}, nil
}
