package translate

import (
	"errors"
	"fmt"
	"iter"

	"github.com/roach88/orq/internal/querysql"
	"github.com/roach88/orq/internal/readplan"
)

// CommandKind is the statement kind of a command.
type CommandKind string

const (
	KindSelect CommandKind = "SELECT"
	KindUpdate CommandKind = "UPDATE"
	KindInsert CommandKind = "INSERT"
	KindDelete CommandKind = "DELETE"
)

// ErrNoReadPlan is returned when rows are read through a non-query command.
var ErrNoReadPlan = errors.New("command has no read plan")

// Command is a translated query: a SQL template, its parameters and the
// plan that turns result rows into values. A cacheable command can be
// executed any number of times with different arguments; it is immutable
// and safe for concurrent use.
type Command struct {
	Kind    CommandKind
	Dialect string

	// Template is the SQL text. {0} and {1} stand for literal braces,
	// {N} for N >= 2 is parameter N-2.
	Template string

	Parameters []*Parameter

	// Plan reads one result row; nil for UPDATE, INSERT and DELETE.
	Plan *readplan.Plan

	// Post reduces the value sequence, or nil to return every value.
	Post *readplan.PostProcessor

	// Cacheable is false when values were inlined for one set of
	// arguments.
	Cacheable bool

	// Shape identifies the query independently of argument values.
	Shape string
}

// SQL returns the executable SQL text with the dialect's parameter names.
func (c *Command) SQL() (string, error) {
	names := make([]string, len(c.Parameters))
	for i, p := range c.Parameters {
		names[i] = p.Name
	}
	return querysql.Format(c.Template, names)
}

// Bind extracts the parameter values from the call-site arguments, in
// parameter order.
func (c *Command) Bind(args ...any) ([]any, error) {
	out := make([]any, len(c.Parameters))
	for i, p := range c.Parameters {
		v, err := p.Extract(args)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		out[i] = v
	}
	return out, nil
}

// Read materializes one result row.
func (c *Command) Read(row readplan.Row, args []any) (any, error) {
	if c.Plan == nil {
		return nil, ErrNoReadPlan
	}
	return c.Plan.Read(row, args)
}

// Results materializes rows and applies the post-processor. Without one
// it returns every value as a []any. Rows are consumed lazily, so
// First and Single stop reading early.
func (c *Command) Results(rows iter.Seq2[readplan.Row, error], args []any) (any, error) {
	values := func(yield func(any, error) bool) {
		for row, err := range rows {
			if err != nil {
				yield(nil, err)
				return
			}
			v, err := c.Read(row, args)
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
	if c.Post != nil {
		return c.Post.Apply(values)
	}
	out := []any{}
	for v, err := range values {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
