package readplan

import (
	"errors"
	"fmt"
	"iter"
	"reflect"

	"github.com/roach88/orq/internal/expr"
)

var (
	// ErrNoElements is returned by First, Single, Last and Scalar over an
	// empty result.
	ErrNoElements = errors.New("sequence contains no elements")

	// ErrMoreThanOne is returned by Single and SingleOrDefault when the
	// result has more than one row.
	ErrMoreThanOne = errors.New("sequence contains more than one element")
)

// PostKind names a results post-processor.
type PostKind string

const (
	PostFirst           PostKind = "First"
	PostFirstOrDefault  PostKind = "FirstOrDefault"
	PostSingle          PostKind = "Single"
	PostSingleOrDefault PostKind = "SingleOrDefault"
	PostLast            PostKind = "Last"
	PostLastOrDefault   PostKind = "LastOrDefault"
	PostGroup           PostKind = "GroupReassembly"
	PostScalar          PostKind = "Scalar"
)

// PostProcessor reduces the materialized value sequence of a query.
type PostProcessor struct {
	Kind PostKind

	// Type is the element type; *OrDefault kinds return its zero value on
	// an empty sequence.
	Type reflect.Type
}

// Apply consumes values and returns the post-processed result. Single stops
// reading after the second value.
func (p *PostProcessor) Apply(values iter.Seq2[any, error]) (any, error) {
	switch p.Kind {
	case PostFirst, PostFirstOrDefault, PostScalar:
		for v, err := range values {
			return v, err
		}
		return p.empty()

	case PostSingle, PostSingleOrDefault:
		var (
			out   any
			found bool
		)
		for v, err := range values {
			if err != nil {
				return nil, err
			}
			if found {
				return nil, ErrMoreThanOne
			}
			out, found = v, true
		}
		if !found {
			return p.empty()
		}
		return out, nil

	case PostLast, PostLastOrDefault:
		var (
			out   any
			found bool
		)
		for v, err := range values {
			if err != nil {
				return nil, err
			}
			out, found = v, true
		}
		if !found {
			return p.empty()
		}
		return out, nil

	case PostGroup:
		return Regroup(values)
	}
	return nil, fmt.Errorf("unknown post-processor %q", p.Kind)
}

func (p *PostProcessor) empty() (any, error) {
	switch p.Kind {
	case PostFirstOrDefault, PostSingleOrDefault, PostLastOrDefault:
		if p.Type == nil {
			return nil, nil
		}
		return reflect.Zero(p.Type).Interface(), nil
	}
	return nil, ErrNoElements
}

// Regroup groups a sequence of {"Key", "Value"} pairs by key, keeping groups
// and their values in first-occurrence order.
func Regroup(values iter.Seq2[any, error]) ([]expr.Grouping, error) {
	var groups []expr.Grouping
	index := map[any]int{}

	for v, err := range values {
		if err != nil {
			return nil, err
		}
		pair, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("group reassembly: expected a key/value pair, got %T", v)
		}
		key, value := pair["Key"], pair["Value"]

		pos := -1
		if key == nil || reflect.TypeOf(key).Comparable() {
			if i, seen := index[key]; seen {
				pos = i
			}
		} else {
			for i := range groups {
				if reflect.DeepEqual(groups[i].Key, key) {
					pos = i
					break
				}
			}
		}

		if pos < 0 {
			pos = len(groups)
			groups = append(groups, expr.Grouping{Key: key})
			if key == nil || reflect.TypeOf(key).Comparable() {
				index[key] = pos
			}
		}
		groups[pos].Values = append(groups[pos].Values, value)
	}
	return groups, nil
}
