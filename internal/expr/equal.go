package expr

import (
	"reflect"
)

// Equal reports whether a and b are structurally equal. Tables, external
// values and lambda parameters compare by identity; everything else compares
// by kind, attributes and operands.
func Equal(a, b Node) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	switch x := a.(type) {
	case *Constant:
		y, ok := b.(*Constant)
		return ok && x.Typ == y.Typ && reflect.DeepEqual(x.Value, y.Value)
	case *Parameter:
		return false // identity only
	case *Argument:
		y, ok := b.(*Argument)
		return ok && x.Index == y.Index
	case *Unary:
		y, ok := b.(*Unary)
		return ok && x.Op == y.Op && x.Typ == y.Typ && Equal(x.Operand, y.Operand)
	case *Binary:
		y, ok := b.(*Binary)
		return ok && x.Op == y.Op && Equal(x.Left, y.Left) && Equal(x.Right, y.Right)
	case *Conditional:
		y, ok := b.(*Conditional)
		return ok && Equal(x.Test, y.Test) && Equal(x.IfTrue, y.IfTrue) && Equal(x.IfFalse, y.IfFalse)
	case *Member:
		y, ok := b.(*Member)
		return ok && x.Name == y.Name && Equal(x.Target, y.Target)
	case *New:
		y, ok := b.(*New)
		return ok && x.Typ == y.Typ && equalStrings(x.Names, y.Names) && equalNodes(x.Args, y.Args)
	case *Call:
		y, ok := b.(*Call)
		return ok && x.Method == y.Method && sameFunc(x.Fn, y.Fn) && equalNodes(x.Args, y.Args)
	case *Lambda:
		y, ok := b.(*Lambda)
		return ok && len(x.Params) == len(y.Params) && Equal(x.Body, y.Body)
	case *EntitySet:
		y, ok := b.(*EntitySet)
		return ok && x.Entity == y.Entity
	case *Table:
		return false // identity only
	case *Column:
		y, ok := b.(*Column)
		return ok && x.Table == y.Table && x.Meta.Name == y.Meta.Name
	case *Function:
		y, ok := b.(*Function)
		return ok && x.Kind == y.Kind && equalNodes(x.Args, y.Args)
	case *External:
		return false // identity only
	case *Subquery:
		y, ok := b.(*Subquery)
		return ok && x.Scope == y.Scope
	case *ReadColumn:
		y, ok := b.(*ReadColumn)
		return ok && x.Index == y.Index
	case *ReadRow:
		y, ok := b.(*ReadRow)
		return ok && x.Table == y.Table
	}
	return false
}

func equalNodes(a, b []Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameFunc(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() != reflect.Func || vb.Kind() != reflect.Func {
		return false
	}
	return va.Pointer() == vb.Pointer()
}
