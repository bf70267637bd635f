package readplan

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/roach88/orq/internal/expr"
)

func negate(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return reflect.ValueOf(-rv.Int()).Convert(rv.Type()).Interface(), nil
	case reflect.Float32, reflect.Float64:
		return reflect.ValueOf(-rv.Float()).Convert(rv.Type()).Interface(), nil
	}
	return nil, fmt.Errorf("cannot negate %T", v)
}

func isInt(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

// binary evaluates arithmetic and comparison operators. Integer operands
// stay integers (converted back to the left operand's type); any float
// operand makes the result a float64.
func binary(op expr.BinaryOp, l, r any) (any, error) {
	if op == expr.OpEqual || op == expr.OpNotEqual {
		eq, err := equalValues(l, r)
		if err != nil {
			return nil, err
		}
		return eq == (op == expr.OpEqual), nil
	}
	if l == nil || r == nil {
		// SQL semantics: arithmetic and ordering over NULL yield NULL.
		return nil, nil
	}

	lk, rk := reflect.ValueOf(l).Kind(), reflect.ValueOf(r).Kind()
	switch {
	case isInt(lk) && isInt(rk):
		a, err := cast.ToInt64E(l)
		if err != nil {
			return nil, err
		}
		b, err := cast.ToInt64E(r)
		if err != nil {
			return nil, err
		}
		return intOp(op, a, b, reflect.TypeOf(l))
	case (isInt(lk) || isFloat(lk)) && (isInt(rk) || isFloat(rk)):
		a, err := cast.ToFloat64E(l)
		if err != nil {
			return nil, err
		}
		b, err := cast.ToFloat64E(r)
		if err != nil {
			return nil, err
		}
		return floatOp(op, a, b)
	case lk == reflect.String && rk == reflect.String:
		a, b := reflect.ValueOf(l).String(), reflect.ValueOf(r).String()
		if op == expr.OpAdd {
			return a + b, nil
		}
		return compare(op, strings.Compare(a, b))
	}
	if a, ok := l.(time.Time); ok {
		if b, ok := r.(time.Time); ok {
			return compare(op, a.Compare(b))
		}
	}
	return nil, fmt.Errorf("operator %s not defined on %T and %T", op, l, r)
}

func intOp(op expr.BinaryOp, a, b int64, t reflect.Type) (any, error) {
	var out int64
	switch op {
	case expr.OpAdd:
		out = a + b
	case expr.OpSub:
		out = a - b
	case expr.OpMul:
		out = a * b
	case expr.OpDiv, expr.OpMod:
		if b == 0 {
			return nil, fmt.Errorf("integer division by zero")
		}
		if op == expr.OpDiv {
			out = a / b
		} else {
			out = a % b
		}
	default:
		switch {
		case a < b:
			return compare(op, -1)
		case a > b:
			return compare(op, 1)
		}
		return compare(op, 0)
	}
	return reflect.ValueOf(out).Convert(t).Interface(), nil
}

func floatOp(op expr.BinaryOp, a, b float64) (any, error) {
	switch op {
	case expr.OpAdd:
		return a + b, nil
	case expr.OpSub:
		return a - b, nil
	case expr.OpMul:
		return a * b, nil
	case expr.OpDiv:
		return a / b, nil
	}
	switch {
	case a < b:
		return compare(op, -1)
	case a > b:
		return compare(op, 1)
	}
	return compare(op, 0)
}

func compare(op expr.BinaryOp, c int) (any, error) {
	switch op {
	case expr.OpLess:
		return c < 0, nil
	case expr.OpLessEq:
		return c <= 0, nil
	case expr.OpGreater:
		return c > 0, nil
	case expr.OpGreaterEq:
		return c >= 0, nil
	case expr.OpEqual:
		return c == 0, nil
	case expr.OpNotEqual:
		return c != 0, nil
	}
	return nil, fmt.Errorf("operator %s not defined on ordered values", op)
}

func equalValues(l, r any) (bool, error) {
	if l == nil || r == nil {
		return (l == nil || isNilPointer(l)) && (r == nil || isNilPointer(r)), nil
	}
	lk, rk := reflect.ValueOf(l).Kind(), reflect.ValueOf(r).Kind()
	if (isInt(lk) || isFloat(lk)) && (isInt(rk) || isFloat(rk)) {
		c, err := binary(expr.OpLess, l, r)
		if err != nil {
			return false, err
		}
		d, err := binary(expr.OpGreater, l, r)
		if err != nil {
			return false, err
		}
		return !c.(bool) && !d.(bool), nil
	}
	return reflect.DeepEqual(l, r), nil
}

// function evaluates the client equivalent of a SQL function.
func function(kind expr.FuncKind, args []any) (any, error) {
	str := func(i int) (string, bool) {
		if args[i] == nil {
			return "", false
		}
		return cast.ToString(args[i]), true
	}

	switch kind {
	case expr.FuncIsNull:
		return args[0] == nil || isNilPointer(args[0]), nil
	case expr.FuncIsNotNull:
		return args[0] != nil && !isNilPointer(args[0]), nil
	case expr.FuncUpper, expr.FuncLower, expr.FuncTrim, expr.FuncLength:
		s, ok := str(0)
		if !ok {
			return nil, nil
		}
		switch kind {
		case expr.FuncUpper:
			return strings.ToUpper(s), nil
		case expr.FuncLower:
			return strings.ToLower(s), nil
		case expr.FuncTrim:
			return strings.TrimSpace(s), nil
		}
		return int64(len([]rune(s))), nil
	case expr.FuncStartsWith, expr.FuncEndsWith, expr.FuncContainsText:
		s, ok1 := str(0)
		p, ok2 := str(1)
		if !ok1 || !ok2 {
			return nil, nil
		}
		switch kind {
		case expr.FuncStartsWith:
			return strings.HasPrefix(s, p), nil
		case expr.FuncEndsWith:
			return strings.HasSuffix(s, p), nil
		}
		return strings.Contains(s, p), nil
	case expr.FuncConcat:
		a, _ := str(0)
		b, _ := str(1)
		return a + b, nil
	case expr.FuncSubstring:
		s, ok := str(0)
		if !ok {
			return nil, nil
		}
		start, err := cast.ToIntE(args[1])
		if err != nil {
			return nil, err
		}
		n, err := cast.ToIntE(args[2])
		if err != nil {
			return nil, err
		}
		rs := []rune(s)
		start = min(max(start, 0), len(rs))
		end := min(start+max(n, 0), len(rs))
		return string(rs[start:end]), nil
	case expr.FuncDateDiffDays:
		a, err := cast.ToTimeE(args[0])
		if err != nil {
			return nil, err
		}
		b, err := cast.ToTimeE(args[1])
		if err != nil {
			return nil, err
		}
		return int64(b.Sub(a).Hours() / 24), nil
	}
	return nil, fmt.Errorf("function %s has no client equivalent", kind)
}

// HasClientEquivalent reports whether kind can be evaluated after fetch.
func HasClientEquivalent(kind expr.FuncKind) bool {
	switch kind {
	case expr.FuncIsNull, expr.FuncIsNotNull, expr.FuncUpper, expr.FuncLower,
		expr.FuncTrim, expr.FuncLength, expr.FuncStartsWith, expr.FuncEndsWith,
		expr.FuncContainsText, expr.FuncConcat, expr.FuncSubstring, expr.FuncDateDiffDays:
		return true
	}
	return false
}

func (f *Function) Read(row Row, args []any) (any, error) {
	vals := make([]any, len(f.Args))
	for i, a := range f.Args {
		v, err := a.Read(row, args)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return function(f.Kind, vals)
}
