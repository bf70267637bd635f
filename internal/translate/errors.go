package translate

import (
	"errors"
	"fmt"

	"github.com/roach88/orq/internal/expr"
)

// Kind categorizes translation failures.
type Kind string

const (
	// UnsupportedConstruct is an unrecognized chain or expression shape.
	UnsupportedConstruct Kind = "UNSUPPORTED_CONSTRUCT"

	// UnresolvedAssociation is a navigation member with no mapping, or a
	// join whose key columns do not pair up.
	UnresolvedAssociation Kind = "UNRESOLVED_ASSOCIATION"

	// TypeConversionMissing means no converter exists between the type the
	// database returns and the type the query expects.
	TypeConversionMissing Kind = "TYPE_CONVERSION_MISSING"

	// InvalidMutationProjection is an Update/Insert/Delete projection shape
	// violation.
	InvalidMutationProjection Kind = "INVALID_MUTATION_PROJECTION"

	// DialectCapabilityViolation is a query the target dialect cannot
	// express, such as COUNT over a paged set where the dialect forbids it.
	DialectCapabilityViolation Kind = "DIALECT_CAPABILITY_VIOLATION"
)

// Error is the single failure type of translation.
//
// Translation is all-or-nothing: the first failure aborts the call and is
// returned wrapped exactly once with the query it came from.
type Error struct {
	// Kind identifies the failure category.
	Kind Kind

	// Query is the source query being translated.
	Query *expr.Query

	// Reason is a human-readable description naming the offending
	// construct.
	Reason string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Query != nil {
		msg += " (query " + expr.String(e.Query.Body) + ")"
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a translation Error of kind k.
// Uses errors.As to handle wrapped errors.
func IsKind(err error, k Kind) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == k
	}
	return false
}

func failf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func wrapf(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), Err: err}
}

// withQuery attaches q to err. Errors that are not translation Errors are
// reported as UnsupportedConstruct, since only decomposition and shape
// checks can fail on valid input.
func withQuery(err error, q *expr.Query) error {
	if err == nil {
		return nil
	}
	var te *Error
	if !errors.As(err, &te) {
		return &Error{Kind: UnsupportedConstruct, Query: q, Reason: "translation failed", Err: err}
	}
	if te.Query == nil {
		te.Query = q
	}
	return err
}
