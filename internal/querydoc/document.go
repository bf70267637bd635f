// Package querydoc decodes YAML query documents into query expressions.
//
// A document names a source entity and a chain of operators, optionally
// declares call-site arguments and marks the query as a mutation:
//
//	from: Book
//	args:
//	  - {name: category, type: string}
//	ops:
//	  - where: {eq: [{field: Category}, {arg: category}]}
//	  - orderBy: {field: Price}
//	  - select: {record: {Title: {field: Title}, Author: {field: Author.Name}}}
//	  - take: 10
//	values:
//	  category: Fiction
//
// Expressions are YAML scalars (constants) or single-key mappings:
//
//	field: Path.To.Member      member path from the current row
//	arg: name                  call-site argument
//	eq|ne|lt|le|gt|ge: [a, b]  comparisons
//	and|or: [a, b, ...]        logical operators
//	add|sub|mul|div: [a, b]    arithmetic
//	not: x / isNull: x / if: [test, then, else]
//	record: {Name: x, ...}     construction (member order is kept)
//	method: {name: StartsWith, args: [recv, ...]}
//	count|any|all: {of: Collection, where: predicate}
//	sum|min|max|average: {of: Collection, value: x}
//
// Inside a grouped query, aggregates without `of` range over the group and
// `field: Key` is the grouping key. In a join, `outer.` and `inner.` prefix
// paths of the joined rows.
package querydoc

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Error codes for document failures.
const (
	ErrCodeParse   = "E_PARSE"
	ErrCodeInvalid = "E_INVALID_DOCUMENT"
)

// DecodeError reports a malformed or inconsistent query document.
type DecodeError struct {
	Code    string
	Message string
	Line    int // 0 when unknown
}

func (e *DecodeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s", e.Code, e.Line, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func invalidf(n *yaml.Node, format string, args ...any) error {
	line := 0
	if n != nil {
		line = n.Line
	}
	return &DecodeError{Code: ErrCodeInvalid, Message: fmt.Sprintf(format, args...), Line: line}
}

// Document is a decoded query document.
type Document struct {
	// From is the source entity.
	From string `yaml:"from"`

	// Args declares call-site arguments in binding order.
	Args []ArgDecl `yaml:"args,omitempty"`

	// Ops is the operator chain applied to the source, in order.
	Ops []Op `yaml:"ops,omitempty"`

	// Mutation turns the query into an UPDATE, INSERT or DELETE.
	Mutation *MutationDecl `yaml:"mutation,omitempty"`

	// Values holds default argument values by name.
	Values map[string]yaml.Node `yaml:"values,omitempty"`
}

// ArgDecl declares one call-site argument. Type is a model scalar type
// name, or "[]" followed by one for a list.
type ArgDecl struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// MutationDecl selects the statement kind of a non-query document.
type MutationDecl struct {
	Kind   string `yaml:"kind"` // update, insert or delete
	Target string `yaml:"target,omitempty"`
}

// Op is one chain operator. Exactly one operator field is set; Element
// may accompany GroupBy.
type Op struct {
	Where       *yaml.Node `yaml:"where,omitempty"`
	Select      *yaml.Node `yaml:"select,omitempty"`
	OrderBy     *yaml.Node `yaml:"orderBy,omitempty"`
	OrderByDesc *yaml.Node `yaml:"orderByDesc,omitempty"`
	ThenBy      *yaml.Node `yaml:"thenBy,omitempty"`
	ThenByDesc  *yaml.Node `yaml:"thenByDesc,omitempty"`
	GroupBy     *yaml.Node `yaml:"groupBy,omitempty"`
	Element     *yaml.Node `yaml:"element,omitempty"`
	Skip        *yaml.Node `yaml:"skip,omitempty"`
	Take        *yaml.Node `yaml:"take,omitempty"`
	Distinct    bool       `yaml:"distinct,omitempty"`
	Join        *JoinDecl  `yaml:"join,omitempty"`
	Terminal    *Terminal  `yaml:"terminal,omitempty"`

	line int
}

// UnmarshalYAML records the operator's line for error reporting.
func (o *Op) UnmarshalYAML(n *yaml.Node) error {
	type plain Op
	if err := n.Decode((*plain)(o)); err != nil {
		return err
	}
	o.line = n.Line
	return nil
}

// JoinDecl correlates the current rows with another entity.
type JoinDecl struct {
	Entity   string     `yaml:"entity"`
	OuterKey *yaml.Node `yaml:"outerKey"`
	InnerKey *yaml.Node `yaml:"innerKey"`
	Result   *yaml.Node `yaml:"result"`
}

// Terminal ends the chain: `terminal: Count` or
// `terminal: {method: First, where: predicate}`.
type Terminal struct {
	Method string     `yaml:"method"`
	Where  *yaml.Node `yaml:"where,omitempty"`
}

// UnmarshalYAML accepts the scalar shorthand.
func (t *Terminal) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		t.Method = n.Value
		return nil
	}
	type plain Terminal
	return n.Decode((*plain)(t))
}

// Decode parses a query document. Unknown fields are rejected.
func Decode(data []byte) (*Document, error) {
	var doc Document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		var te *yaml.TypeError
		if errors.As(err, &te) {
			return nil, &DecodeError{Code: ErrCodeInvalid, Message: err.Error()}
		}
		return nil, &DecodeError{Code: ErrCodeParse, Message: err.Error()}
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Load reads and decodes a query document file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read query document: %w", err)
	}
	return Decode(data)
}

func (d *Document) validate() error {
	if d.From == "" {
		return &DecodeError{Code: ErrCodeInvalid, Message: "from is required"}
	}
	seen := map[string]bool{}
	for i, a := range d.Args {
		if a.Name == "" || a.Type == "" {
			return &DecodeError{Code: ErrCodeInvalid, Message: fmt.Sprintf("args[%d]: name and type are required", i)}
		}
		if seen[a.Name] {
			return &DecodeError{Code: ErrCodeInvalid, Message: fmt.Sprintf("args[%d]: duplicate argument %q", i, a.Name)}
		}
		seen[a.Name] = true
	}
	for name, v := range d.Values {
		if !seen[name] {
			n := v
			return invalidf(&n, "value for undeclared argument %q", name)
		}
	}
	for i := range d.Ops {
		if err := d.Ops[i].validate(i); err != nil {
			return err
		}
	}
	if m := d.Mutation; m != nil {
		switch m.Kind {
		case "update", "insert", "delete":
		default:
			return &DecodeError{Code: ErrCodeInvalid, Message: fmt.Sprintf("mutation kind %q (want update, insert or delete)", m.Kind)}
		}
	}
	return nil
}

func (o *Op) validate(i int) error {
	set := 0
	for _, n := range []*yaml.Node{o.Where, o.Select, o.OrderBy, o.OrderByDesc, o.ThenBy, o.ThenByDesc, o.GroupBy, o.Skip, o.Take} {
		if n != nil {
			set++
		}
	}
	if o.Distinct {
		set++
	}
	if o.Join != nil {
		set++
	}
	if o.Terminal != nil {
		set++
	}
	if set != 1 {
		return &DecodeError{Code: ErrCodeInvalid, Message: fmt.Sprintf("ops[%d]: exactly one operator is required, got %d", i, set), Line: o.line}
	}
	if o.Element != nil && o.GroupBy == nil {
		return &DecodeError{Code: ErrCodeInvalid, Message: fmt.Sprintf("ops[%d]: element requires groupBy", i), Line: o.line}
	}
	if j := o.Join; j != nil && (j.Entity == "" || j.OuterKey == nil || j.InnerKey == nil || j.Result == nil) {
		return &DecodeError{Code: ErrCodeInvalid, Message: fmt.Sprintf("ops[%d]: join needs entity, outerKey, innerKey and result", i), Line: o.line}
	}
	if t := o.Terminal; t != nil && t.Method == "" {
		return &DecodeError{Code: ErrCodeInvalid, Message: fmt.Sprintf("ops[%d]: terminal method is required", i), Line: o.line}
	}
	return nil
}
