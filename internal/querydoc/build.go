package querydoc

import (
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/orq/internal/expr"
	"github.com/roach88/orq/internal/model"
	"github.com/roach88/orq/internal/queryir"
	"github.com/roach88/orq/internal/translate"
)

var (
	boolType  = reflect.TypeOf(false)
	int64Type = reflect.TypeOf(int64(0))
	floatType = reflect.TypeOf(0.0)
)

// Built is a document compiled against a model.
type Built struct {
	Query *expr.Query

	// Mutation is set for update, insert and delete documents.
	Mutation *translate.MutationSpec

	doc  *Document
	args []*expr.Argument
}

// row describes the values flowing through the chain at one point.
type row struct {
	typ    reflect.Type
	entity *model.Entity

	// fields holds member types of constructed rows, in member order.
	names  []string
	fields map[string]reflect.Type

	// group is the element row of a grouped sequence; key is the key type.
	group *row
	key   reflect.Type
}

func entityRow(e *model.Entity) *row { return &row{typ: e.Type(), entity: e} }

// binding is a lambda parameter in scope.
type binding struct {
	param *expr.Parameter
	row   *row
}

// env maps path prefixes to parameters; "" is the current row.
type env map[string]binding

type builder struct {
	model *model.Model
	args  map[string]*expr.Argument
}

// Build compiles the document into a query over m.
func (d *Document) Build(m *model.Model) (*Built, error) {
	b := &builder{model: m, args: map[string]*expr.Argument{}}
	out := &Built{doc: d}
	for i, a := range d.Args {
		t, err := argType(a.Type)
		if err != nil {
			return nil, err
		}
		arg := expr.Arg(i, a.Name, t)
		b.args[a.Name] = arg
		out.args = append(out.args, arg)
	}

	ent, ok := m.Entity(d.From)
	if !ok {
		return nil, &DecodeError{Code: ErrCodeInvalid, Message: "unknown entity " + strconv.Quote(d.From)}
	}
	var (
		src expr.Node = expr.From(ent.Name, ent.Type())
		cur           = entityRow(ent)
	)
	for i := range d.Ops {
		var err error
		if src, cur, err = b.op(src, cur, &d.Ops[i]); err != nil {
			return nil, err
		}
	}
	out.Query = expr.NewQuery(src, out.args...)

	if mu := d.Mutation; mu != nil {
		out.Mutation = &translate.MutationSpec{
			Kind:   queryir.MutationKind(strings.ToUpper(mu.Kind)),
			Target: mu.Target,
		}
	}
	return out, nil
}

// argType resolves "int64", "[]string" and the like.
func argType(name string) (reflect.Type, error) {
	if elem, isList := strings.CutPrefix(name, "[]"); isList {
		t, err := argType(elem)
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(t), nil
	}
	t, ok := model.ScalarType(name)
	if !ok {
		return nil, &DecodeError{Code: ErrCodeInvalid, Message: "unknown argument type " + strconv.Quote(name)}
	}
	return t, nil
}

// lambda builds a one-parameter function over rows of r.
func (b *builder) lambda(r *row, n *yaml.Node) (*expr.Lambda, *row, error) {
	p := expr.Param("it", r.typ)
	body, out, err := b.expr(env{"": {param: p, row: r}}, n)
	if err != nil {
		return nil, nil, err
	}
	return expr.Lam(body, p), out, nil
}

func (b *builder) op(src expr.Node, cur *row, op *Op) (expr.Node, *row, error) {
	ordered := func(build func(expr.Node, *expr.Lambda) *expr.Call, n *yaml.Node) (expr.Node, *row, error) {
		key, _, err := b.lambda(cur, n)
		if err != nil {
			return nil, nil, err
		}
		return build(src, key), cur, nil
	}

	switch {
	case op.Where != nil:
		pred, _, err := b.lambda(cur, op.Where)
		if err != nil {
			return nil, nil, err
		}
		return expr.Where(src, pred), cur, nil

	case op.Select != nil:
		sel, out, err := b.lambda(cur, op.Select)
		if err != nil {
			return nil, nil, err
		}
		return expr.Select(src, sel), out, nil

	case op.OrderBy != nil:
		return ordered(expr.OrderBy, op.OrderBy)
	case op.OrderByDesc != nil:
		return ordered(expr.OrderByDesc, op.OrderByDesc)
	case op.ThenBy != nil:
		return ordered(expr.ThenBy, op.ThenBy)
	case op.ThenByDesc != nil:
		return ordered(expr.ThenByDesc, op.ThenByDesc)

	case op.GroupBy != nil:
		key, keyRow, err := b.lambda(cur, op.GroupBy)
		if err != nil {
			return nil, nil, err
		}
		elemRow := cur
		var elem *expr.Lambda
		if op.Element != nil {
			if elem, elemRow, err = b.lambda(cur, op.Element); err != nil {
				return nil, nil, err
			}
		}
		g := &row{typ: expr.GroupingType, group: elemRow, key: keyRow.typ}
		return expr.GroupBy(src, key, elem), g, nil

	case op.Skip != nil, op.Take != nil:
		n := op.Skip
		build := expr.Skip
		if n == nil {
			n, build = op.Take, expr.Take
		}
		count, _, err := b.expr(env{}, n)
		if err != nil {
			return nil, nil, err
		}
		return build(src, count), cur, nil

	case op.Distinct:
		return expr.Distinct(src), cur, nil

	case op.Join != nil:
		return b.join(src, cur, op.Join)

	case op.Terminal != nil:
		var pred *expr.Lambda
		if op.Terminal.Where != nil {
			var err error
			if pred, _, err = b.lambda(cur, op.Terminal.Where); err != nil {
				return nil, nil, err
			}
		}
		call := expr.Terminal(op.Terminal.Method, src, pred)
		return call, &row{typ: call.Type()}, nil
	}
	return nil, nil, &DecodeError{Code: ErrCodeInvalid, Message: "empty operator", Line: op.line}
}

func (b *builder) join(src expr.Node, cur *row, j *JoinDecl) (expr.Node, *row, error) {
	ent, ok := b.model.Entity(j.Entity)
	if !ok {
		return nil, nil, invalidf(j.Result, "unknown join entity %q", j.Entity)
	}
	inner := entityRow(ent)
	outerKey, _, err := b.lambda(cur, j.OuterKey)
	if err != nil {
		return nil, nil, err
	}
	innerKey, _, err := b.lambda(inner, j.InnerKey)
	if err != nil {
		return nil, nil, err
	}

	o := expr.Param("outer", cur.typ)
	i := expr.Param("inner", inner.typ)
	body, out, err := b.expr(env{"outer": {param: o, row: cur}, "inner": {param: i, row: inner}}, j.Result)
	if err != nil {
		return nil, nil, err
	}
	return expr.Join(src, expr.From(ent.Name, ent.Type()), outerKey, innerKey, expr.Lam(body, o, i)), out, nil
}

var binaryOps = map[string]expr.BinaryOp{
	"eq": expr.OpEqual, "ne": expr.OpNotEqual,
	"lt": expr.OpLess, "le": expr.OpLessEq,
	"gt": expr.OpGreater, "ge": expr.OpGreaterEq,
	"add": expr.OpAdd, "sub": expr.OpSub, "mul": expr.OpMul, "div": expr.OpDiv,
	"and": expr.OpAnd, "or": expr.OpOr,
}

var aggregateNames = map[string]string{
	"count": "Count", "any": "Any", "all": "All",
	"sum": "Sum", "min": "Min", "max": "Max", "average": "Average",
}

// expr builds one expression and describes the values it yields.
func (b *builder) expr(e env, n *yaml.Node) (expr.Node, *row, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		c, err := constant(n)
		if err != nil {
			return nil, nil, err
		}
		return c, &row{typ: c.Type()}, nil
	case yaml.MappingNode:
	default:
		return nil, nil, invalidf(n, "expression must be a scalar or a single-key mapping")
	}
	if len(n.Content) != 2 {
		return nil, nil, invalidf(n, "expression must have exactly one key")
	}
	key, val := n.Content[0].Value, n.Content[1]

	if op, ok := binaryOps[key]; ok {
		operands, err := b.list(e, val)
		if err != nil {
			return nil, nil, err
		}
		logical := op == expr.OpAnd || op == expr.OpOr
		if len(operands) < 2 || (!logical && len(operands) != 2) {
			return nil, nil, invalidf(val, "%s takes two operands, got %d", key, len(operands))
		}
		acc := operands[0]
		for _, r := range operands[1:] {
			acc = expr.Bin(op, acc, r)
		}
		return acc, &row{typ: acc.Type()}, nil
	}
	if method, ok := aggregateNames[key]; ok {
		return b.aggregate(e, method, val)
	}

	switch key {
	case "field":
		return b.path(e, val)

	case "arg":
		a, ok := b.args[val.Value]
		if !ok {
			return nil, nil, invalidf(val, "undeclared argument %q", val.Value)
		}
		return a, &row{typ: a.Type()}, nil

	case "not":
		x, _, err := b.expr(e, val)
		if err != nil {
			return nil, nil, err
		}
		return expr.Not(x), &row{typ: boolType}, nil

	case "isNull":
		x, _, err := b.expr(e, val)
		if err != nil {
			return nil, nil, err
		}
		return expr.Eq(x, expr.ConstOf(nil, x.Type())), &row{typ: boolType}, nil

	case "if":
		parts, err := b.list(e, val)
		if err != nil {
			return nil, nil, err
		}
		if len(parts) != 3 {
			return nil, nil, invalidf(val, "if takes test, then and else")
		}
		c := expr.If(parts[0], parts[1], parts[2])
		return c, &row{typ: c.Type()}, nil

	case "record":
		return b.record(e, val)

	case "method":
		return b.method(e, val)
	}
	return nil, nil, invalidf(n.Content[0], "unknown expression %q", key)
}

func (b *builder) list(e env, n *yaml.Node) ([]expr.Node, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, invalidf(n, "expected a list of expressions")
	}
	out := make([]expr.Node, len(n.Content))
	for i, item := range n.Content {
		x, _, err := b.expr(e, item)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

func (b *builder) record(e env, n *yaml.Node) (expr.Node, *row, error) {
	if n.Kind != yaml.MappingNode {
		return nil, nil, invalidf(n, "record needs a mapping of members")
	}
	out := &row{typ: expr.RowType, fields: map[string]reflect.Type{}}
	var args []expr.Node
	for i := 0; i < len(n.Content); i += 2 {
		name := n.Content[i].Value
		x, _, err := b.expr(e, n.Content[i+1])
		if err != nil {
			return nil, nil, err
		}
		out.names = append(out.names, name)
		out.fields[name] = x.Type()
		args = append(args, x)
	}
	return expr.Record(out.names, args...), out, nil
}

type methodDecl struct {
	Name string      `yaml:"name"`
	Args []yaml.Node `yaml:"args"`
}

func (b *builder) method(e env, n *yaml.Node) (expr.Node, *row, error) {
	var decl methodDecl
	if err := n.Decode(&decl); err != nil {
		return nil, nil, invalidf(n, "method: %v", err)
	}
	if decl.Name == "" || len(decl.Args) == 0 {
		return nil, nil, invalidf(n, "method needs a name and a receiver")
	}
	args := make([]expr.Node, len(decl.Args))
	for i := range decl.Args {
		x, _, err := b.expr(e, &decl.Args[i])
		if err != nil {
			return nil, nil, err
		}
		args[i] = x
	}
	call := expr.Method(decl.Name, nil, args...)
	return call, &row{}, nil
}

type aggregateDecl struct {
	Of    string     `yaml:"of"`
	Where *yaml.Node `yaml:"where"`
	Value *yaml.Node `yaml:"value"`
}

// aggregate builds a quantifier or aggregate over a collection member or,
// without `of`, over the current group.
func (b *builder) aggregate(e env, method string, n *yaml.Node) (expr.Node, *row, error) {
	var decl aggregateDecl
	if n.Kind == yaml.MappingNode {
		if err := n.Decode(&decl); err != nil {
			return nil, nil, invalidf(n, "%s: %v", method, err)
		}
	} else if !(n.Kind == yaml.ScalarNode && n.Tag == "!!null") {
		return nil, nil, invalidf(n, "%s takes a mapping with of, where or value", method)
	}

	var (
		recv expr.Node
		elem *row
	)
	if decl.Of != "" {
		pathNode := &yaml.Node{Kind: yaml.ScalarNode, Value: decl.Of, Line: n.Line}
		x, r, err := b.path(e, pathNode)
		if err != nil {
			return nil, nil, err
		}
		if r.entity == nil || x.Type().Kind() != reflect.Slice {
			return nil, nil, invalidf(n, "%s is not a collection", decl.Of)
		}
		recv, elem = x, r
	} else {
		cur, ok := e[""]
		if !ok || cur.row.group == nil {
			return nil, nil, invalidf(n, "%s without of needs a grouped query", method)
		}
		recv, elem = cur.param, cur.row.group
	}

	var (
		fn  *yaml.Node
		typ reflect.Type
	)
	switch method {
	case "Count":
		fn, typ = decl.Where, int64Type
	case "Any", "All":
		fn, typ = decl.Where, boolType
		if method == "All" && fn == nil {
			return nil, nil, invalidf(n, "all needs a where predicate")
		}
	default:
		if decl.Value == nil {
			return nil, nil, invalidf(n, "%s needs a value", strings.ToLower(method))
		}
		fn = decl.Value
	}

	args := []expr.Node{recv}
	if fn != nil {
		l, r, err := b.lambda(elem, fn)
		if err != nil {
			return nil, nil, err
		}
		if typ == nil {
			typ = r.typ
			if method == "Average" {
				typ = floatType
			}
		}
		args = append(args, l)
	}
	return expr.Method(method, typ, args...), &row{typ: typ}, nil
}

// path resolves a dotted member path. A leading "outer" or "inner" selects
// a join parameter.
func (b *builder) path(e env, n *yaml.Node) (expr.Node, *row, error) {
	if n.Kind != yaml.ScalarNode || n.Value == "" {
		return nil, nil, invalidf(n, "field needs a member path")
	}
	segs := strings.Split(n.Value, ".")
	bind, ok := e[segs[0]]
	if ok {
		segs = segs[1:]
	} else if bind, ok = e[""]; !ok {
		return nil, nil, invalidf(n, "field %s is not available here", n.Value)
	}

	var (
		x expr.Node = bind.param
		r           = bind.row
	)
	for _, seg := range segs {
		next, nr, err := b.member(x, r, seg)
		if err != nil {
			return nil, nil, invalidf(n, "%s: %v", n.Value, err)
		}
		x, r = next, nr
	}
	return x, r, nil
}

func (b *builder) member(target expr.Node, r *row, name string) (expr.Node, *row, error) {
	switch {
	case r.entity != nil && target.Type().Kind() != reflect.Slice:
		e := r.entity
		if col, ok := e.Column(name); ok {
			return expr.FieldOf(target, name, col.Type), &row{typ: col.Type}, nil
		}
		if ref, ok := e.References[name]; ok {
			t, ok := b.model.Entity(ref.Target)
			if !ok {
				return nil, nil, &DecodeError{Code: ErrCodeInvalid, Message: "unknown entity " + ref.Target}
			}
			return expr.FieldOf(target, name, t.Type()), entityRow(t), nil
		}
		if coll, ok := e.Collections[name]; ok {
			t, ok := b.model.Entity(coll.Target)
			if !ok {
				return nil, nil, &DecodeError{Code: ErrCodeInvalid, Message: "unknown entity " + coll.Target}
			}
			return expr.FieldOf(target, name, reflect.SliceOf(t.Type())), entityRow(t), nil
		}
		return nil, nil, &DecodeError{Code: ErrCodeInvalid, Message: e.Name + " has no member " + name}

	case r.group != nil:
		if name != "Key" {
			return nil, nil, &DecodeError{Code: ErrCodeInvalid, Message: "groups only expose Key"}
		}
		return expr.FieldOf(target, name, r.key), &row{typ: r.key}, nil

	case r.fields != nil:
		t, ok := r.fields[name]
		if !ok {
			return nil, nil, &DecodeError{Code: ErrCodeInvalid, Message: "record has no member " + name}
		}
		return expr.FieldOf(target, name, t), &row{typ: t}, nil
	}
	return nil, nil, &DecodeError{Code: ErrCodeInvalid, Message: "member " + name + " of a scalar value"}
}

// constant converts a YAML scalar into a constant node.
func constant(n *yaml.Node) (*expr.Constant, error) {
	switch n.Tag {
	case "!!null":
		return expr.ConstOf(nil, nil), nil
	case "!!bool":
		v, err := strconv.ParseBool(n.Value)
		if err != nil {
			return nil, invalidf(n, "bad boolean %q", n.Value)
		}
		return expr.Const(v), nil
	case "!!int":
		v, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return nil, invalidf(n, "bad integer %q", n.Value)
		}
		return expr.Const(v), nil
	case "!!float":
		v, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return nil, invalidf(n, "bad number %q", n.Value)
		}
		return expr.Const(v), nil
	}
	return expr.Const(n.Value), nil
}
