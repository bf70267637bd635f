package queryir

import (
	"github.com/roach88/orq/internal/expr"
	"github.com/roach88/orq/internal/model"
)

// MutationKind is the statement kind of a non-query command.
type MutationKind string

const (
	MutationUpdate MutationKind = "UPDATE"
	MutationInsert MutationKind = "INSERT"
	MutationDelete MutationKind = "DELETE"
)

// Mutation describes an UPDATE, INSERT or DELETE built over a base scope.
//
// Simple mutations (one table, no paging) are emitted directly against the
// target. Compound ones select the affected keys (and new values) in Base
// and join the target to it; KeyOutputs and ValueOutputs index Base.Outputs.
type Mutation struct {
	Kind   MutationKind
	Target *model.Entity

	// Table is the base scope's table for Target (update and delete).
	Table *expr.Table

	Columns []*model.Column
	Values  []expr.Node

	Base   *Scope
	Simple bool

	KeyOutputs   []int
	ValueOutputs []int
}
