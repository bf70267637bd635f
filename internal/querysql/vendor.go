package querysql

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/orq/internal/expr"
)

type renderFunc func(args []string) string

// emptyList is the literal spelling of a list with no elements.
const emptyList = "(NULL)"

// Vendor is a table-driven Dialect. The built-in dialects are Vendors that
// differ in quoting, placeholders, literal spelling, function templates and
// capabilities.
type Vendor struct {
	name           string
	caps           Capabilities
	quote          [2]string
	param          func(position int) string
	trueLit        string
	falseLit       string
	boolResult     reflect.Type
	bytesLiteral   func(b []byte) string
	unboundedLimit string
	arrayIn        string
	functions      map[expr.FuncKind]renderFunc
}

func (v *Vendor) Name() string               { return v.name }
func (v *Vendor) Capabilities() Capabilities { return v.caps }
func (v *Vendor) UnboundedLimit() string     { return v.unboundedLimit }

func (v *Vendor) QuoteIdentifier(name string) string {
	closing := v.quote[1]
	return v.quote[0] + strings.ReplaceAll(name, closing, closing+closing) + closing
}

func (v *Vendor) ParameterName(position int) string { return v.param(position) }

func (v *Vendor) RenderArrayIn(item, array string) string {
	if v.arrayIn == "" {
		return item + " IN " + array
	}
	return fmt.Sprintf(v.arrayIn, item, array)
}

func (v *Vendor) IsParameterType(t reflect.Type) bool {
	if scalar(t) {
		return true
	}
	return IsList(t) && scalar(t.Elem()) && v.caps.ArrayParameters
}

func (v *Vendor) RenderFunction(kind expr.FuncKind, args []string) (string, error) {
	render, ok := v.functions[kind]
	if !ok {
		return "", fmt.Errorf("%s: function %s not supported", v.name, kind)
	}
	return render(args), nil
}

func (v *Vendor) Supports(n expr.Node) bool {
	switch e := n.(type) {
	case *expr.Column, *expr.Subquery:
		return true
	case *expr.Table:
		return e.Derived == 0
	case *expr.Constant:
		_, err := v.FormatLiteral(e.Value)
		return err == nil
	case *expr.External:
		return scalar(e.Typ) || (IsList(e.Typ) && scalar(e.Typ.Elem()))
	case *expr.Binary:
		return true
	case *expr.Unary:
		return e.Op != expr.OpConvert || scalar(e.Typ)
	case *expr.Conditional:
		return true
	case *expr.Function:
		_, ok := v.functions[e.Kind]
		return ok
	}
	return false
}

func (v *Vendor) ResultType(n expr.Node) reflect.Type {
	switch e := n.(type) {
	case *expr.Column:
		return e.Meta.StoredType
	case *expr.Function:
		switch e.Kind {
		case expr.FuncCount, expr.FuncCountStar, expr.FuncLength, expr.FuncDateDiffDays:
			return int64Type
		case expr.FuncAvg:
			return floatType
		case expr.FuncSum:
			if len(e.Args) == 1 {
				return widen(v.ResultType(e.Args[0]))
			}
		case expr.FuncMin, expr.FuncMax:
			if len(e.Args) == 1 {
				return v.ResultType(e.Args[0])
			}
		case expr.FuncUpper, expr.FuncLower, expr.FuncTrim, expr.FuncSubstring, expr.FuncConcat:
			return strType
		}
		if e.Kind.IsPredicate() {
			return v.boolResult
		}
		return nil
	case *expr.Binary:
		if e.Op.IsComparison() || e.Op.IsLogical() {
			return v.boolResult
		}
		return nil
	case *expr.Unary:
		if e.Op == expr.OpNot {
			return v.boolResult
		}
		return nil
	case *expr.Constant:
		if e.Typ == boolType {
			return v.boolResult
		}
		return e.Typ
	case *expr.External:
		if e.Typ == boolType {
			return v.boolResult
		}
		return e.Typ
	}
	return nil
}

func widen(t reflect.Type) reflect.Type {
	if t == nil {
		return nil
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64Type
	case reflect.Float32, reflect.Float64:
		return floatType
	}
	return nil
}

// FormatLiteral renders v as inline SQL text.
func (v *Vendor) FormatLiteral(val any) (string, error) {
	if val == nil {
		return "NULL", nil
	}
	switch x := val.(type) {
	case time.Time:
		return "'" + x.UTC().Format("2006-01-02 15:04:05.999999999") + "'", nil
	case uuid.UUID:
		return "'" + x.String() + "'", nil
	case []byte:
		return v.bytesLiteral(x), nil
	}

	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return "NULL", nil
		}
		return v.FormatLiteral(rv.Elem().Interface())
	case reflect.Bool:
		if rv.Bool() {
			return v.trueLit, nil
		}
		return v.falseLit, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64), nil
	case reflect.String:
		return "'" + strings.ReplaceAll(rv.String(), "'", "''") + "'", nil
	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return emptyList, nil
		}
		parts := make([]string, rv.Len())
		for i := range parts {
			elem := rv.Index(i)
			if elem.Kind() == reflect.Slice || elem.Kind() == reflect.Array {
				if _, isBytes := elem.Interface().([]byte); !isBytes && elem.Type() != uuidType {
					return "", fmt.Errorf("%s: nested list literal %T", v.name, val)
				}
			}
			s, err := v.FormatLiteral(elem.Interface())
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "(" + strings.Join(parts, ", ") + ")", nil
	}
	return "", fmt.Errorf("%s: cannot format %T as a literal", v.name, val)
}

func hexLiteral(prefix, suffix string) func([]byte) string {
	return func(b []byte) string { return prefix + hex.EncodeToString(b) + suffix }
}

func positional(int) string { return "?" }

func numbered(prefix string) func(int) string {
	return func(i int) string { return prefix + strconv.Itoa(i+1) }
}

func unary(format string) renderFunc {
	return func(a []string) string { return fmt.Sprintf(format, a[0]) }
}

func binary(format string) renderFunc {
	return func(a []string) string { return fmt.Sprintf(format, a[0], a[1]) }
}

// baseFunctions are the ANSI renderings shared by every vendor; vendors
// override entries that differ.
func baseFunctions(concat func(l, r string) string) map[expr.FuncKind]renderFunc {
	return map[expr.FuncKind]renderFunc{
		expr.FuncIsNull:       unary("%s IS NULL"),
		expr.FuncIsNotNull:    unary("%s IS NOT NULL"),
		expr.FuncLike:         binary("%s LIKE %s"),
		expr.FuncStartsWith:   func(a []string) string { return a[0] + " LIKE " + concat(a[1], "'%'") },
		expr.FuncEndsWith:     func(a []string) string { return a[0] + " LIKE " + concat("'%'", a[1]) },
		expr.FuncContainsText: func(a []string) string { return a[0] + " LIKE " + concat(concat("'%'", a[1]), "'%'") },
		expr.FuncUpper:        unary("UPPER(%s)"),
		expr.FuncLower:        unary("LOWER(%s)"),
		expr.FuncLength:       unary("CHAR_LENGTH(%s)"),
		expr.FuncSubstring: func(a []string) string {
			return fmt.Sprintf("SUBSTRING(%s FROM %s + 1 FOR %s)", a[0], a[1], a[2])
		},
		expr.FuncTrim:      unary("TRIM(%s)"),
		expr.FuncConcat:    func(a []string) string { return concat(a[0], a[1]) },
		expr.FuncIn:        binary("%s IN %s"),
		expr.FuncExists:    unary("EXISTS %s"),
		expr.FuncCount:     unary("COUNT(%s)"),
		expr.FuncCountStar: func([]string) string { return "COUNT(*)" },
		expr.FuncSum:       unary("SUM(%s)"),
		expr.FuncMin:       unary("MIN(%s)"),
		expr.FuncMax:       unary("MAX(%s)"),
		expr.FuncAvg:       unary("AVG(%s)"),
	}
}

func pipeConcat(l, r string) string { return "(" + l + " || " + r + ")" }

// SQLite returns the SQLite dialect.
func SQLite() *Vendor {
	fns := baseFunctions(pipeConcat)
	fns[expr.FuncLength] = unary("LENGTH(%s)")
	fns[expr.FuncSubstring] = func(a []string) string {
		return fmt.Sprintf("SUBSTR(%s, %s + 1, %s)", a[0], a[1], a[2])
	}
	fns[expr.FuncDateDiffDays] = func(a []string) string {
		return fmt.Sprintf("CAST(JULIANDAY(%s) - JULIANDAY(%s) AS INTEGER)", a[1], a[0])
	}
	return &Vendor{
		name: "sqlite",
		caps: Capabilities{
			Paging:          PagingLimitOffset,
			CountOverPaging: true,
			CompoundUpdate:  UpdateFrom,
			BooleanValues:   true,
		},
		quote:          [2]string{`"`, `"`},
		param:          numbered("?"),
		trueLit:        "1",
		falseLit:       "0",
		boolResult:     int64Type,
		bytesLiteral:   hexLiteral("X'", "'"),
		unboundedLimit: "-1",
		functions:      fns,
	}
}

// Postgres returns the PostgreSQL dialect.
func Postgres() *Vendor {
	fns := baseFunctions(pipeConcat)
	fns[expr.FuncLength] = unary("LENGTH(%s)")
	fns[expr.FuncAvg] = unary("AVG(CAST(%s AS DOUBLE PRECISION))")
	fns[expr.FuncDateDiffDays] = func(a []string) string {
		return fmt.Sprintf("(CAST(%s AS DATE) - CAST(%s AS DATE))", a[1], a[0])
	}
	return &Vendor{
		name: "postgres",
		caps: Capabilities{
			ArrayParameters:  true,
			Paging:           PagingLimitOffset,
			CountOverPaging:  true,
			CompoundUpdate:   UpdateFrom,
			OutputParameters: true,
			BooleanValues:    true,
		},
		quote:        [2]string{`"`, `"`},
		param:        numbered("$"),
		trueLit:      "TRUE",
		falseLit:     "FALSE",
		boolResult:   boolType,
		bytesLiteral: hexLiteral(`'\x`, "'"),
		arrayIn:      "%s = ANY(%s)",
		functions:    fns,
	}
}

// MySQL returns the MySQL dialect.
func MySQL() *Vendor {
	fns := baseFunctions(func(l, r string) string { return "CONCAT(" + l + ", " + r + ")" })
	fns[expr.FuncSubstring] = func(a []string) string {
		return fmt.Sprintf("SUBSTRING(%s, %s + 1, %s)", a[0], a[1], a[2])
	}
	fns[expr.FuncDateDiffDays] = func(a []string) string {
		return fmt.Sprintf("DATEDIFF(%s, %s)", a[1], a[0])
	}
	return &Vendor{
		name: "mysql",
		caps: Capabilities{
			PositionalParameters: true,
			Paging:               PagingLimitOffset,
			CountOverPaging:      true,
			CompoundUpdate:       UpdateJoin,
			BooleanValues:        true,
		},
		quote:          [2]string{"`", "`"},
		param:          positional,
		trueLit:        "TRUE",
		falseLit:       "FALSE",
		boolResult:     int64Type,
		bytesLiteral:   hexLiteral("X'", "'"),
		unboundedLimit: "18446744073709551615",
		functions:      fns,
	}
}

// MSSQL returns the Microsoft SQL Server dialect.
func MSSQL() *Vendor {
	fns := baseFunctions(func(l, r string) string { return "(" + l + " + " + r + ")" })
	fns[expr.FuncLength] = unary("LEN(%s)")
	fns[expr.FuncTrim] = unary("LTRIM(RTRIM(%s))")
	fns[expr.FuncSubstring] = func(a []string) string {
		return fmt.Sprintf("SUBSTRING(%s, %s + 1, %s)", a[0], a[1], a[2])
	}
	fns[expr.FuncAvg] = unary("AVG(CAST(%s AS FLOAT))")
	fns[expr.FuncDateDiffDays] = func(a []string) string {
		return fmt.Sprintf("DATEDIFF(day, %s, %s)", a[0], a[1])
	}
	return &Vendor{
		name: "mssql",
		caps: Capabilities{
			RequiresOrderForPaging: true,
			ConstantOrderFallback:  true,
			Paging:                 PagingOffsetFetch,
			CountOverPaging:        true,
			CompoundUpdate:         UpdateFromJoin,
			OutputParameters:       true,
		},
		quote:        [2]string{"[", "]"},
		param:        numbered("@P"),
		trueLit:      "1",
		falseLit:     "0",
		boolResult:   boolType,
		bytesLiteral: hexLiteral("0x", ""),
		functions:    fns,
	}
}

// Firebird returns the Firebird dialect.
func Firebird() *Vendor {
	fns := baseFunctions(pipeConcat)
	fns[expr.FuncDateDiffDays] = func(a []string) string {
		return fmt.Sprintf("DATEDIFF(DAY, %s, %s)", a[0], a[1])
	}
	return &Vendor{
		name: "firebird",
		caps: Capabilities{
			PositionalParameters: true,
			Paging:               PagingRows,
			CountOverPaging:      true,
			CompoundUpdate:       UpdateFrom,
			OutputParameters:     true,
			BooleanValues:        true,
		},
		quote:        [2]string{`"`, `"`},
		param:        positional,
		trueLit:      "TRUE",
		falseLit:     "FALSE",
		boolResult:   boolType,
		bytesLiteral: hexLiteral("X'", "'"),
		functions:    fns,
	}
}
