package querysql

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/orq/internal/expr"
)

// PagingStyle selects how offset/limit are rendered.
type PagingStyle string

const (
	PagingLimitOffset PagingStyle = "limit-offset" // LIMIT l OFFSET o
	PagingOffsetFetch PagingStyle = "offset-fetch" // OFFSET o ROWS FETCH NEXT l ROWS ONLY
	PagingRows        PagingStyle = "rows"         // ROWS o+1 TO o+l
)

// CompoundUpdateStyle selects the multi-table UPDATE form.
type CompoundUpdateStyle string

const (
	UpdateFrom     CompoundUpdateStyle = "update-from"      // UPDATE t SET … FROM (…) AS d WHERE …
	UpdateJoin     CompoundUpdateStyle = "update-join"      // UPDATE t INNER JOIN (…) AS d ON … SET …
	UpdateFromJoin CompoundUpdateStyle = "update-from-join" // UPDATE t SET … FROM t INNER JOIN (…) AS d ON …
)

// Capabilities describes what a vendor's SQL can express. The translator
// consults it to decide between SQL and client evaluation, parameter and
// literal binding, and paging normalization.
type Capabilities struct {
	// ArrayParameters: a list value can be bound as one array parameter.
	ArrayParameters bool `yaml:"array_parameters"`
	// PositionalParameters: placeholders are anonymous and bind by
	// position, so a value used twice needs two parameters.
	PositionalParameters bool `yaml:"positional_parameters"`
	// RequiresOrderForPaging: OFFSET/FETCH is only valid with ORDER BY.
	RequiresOrderForPaging bool `yaml:"requires_order_for_paging"`
	// ConstantOrderFallback: ORDER BY (SELECT 1) satisfies the above.
	ConstantOrderFallback bool `yaml:"constant_order_fallback"`
	// Paging is the offset/limit syntax.
	Paging PagingStyle `yaml:"paging"`
	// CountOverPaging: COUNT over a paged SELECT may be expressed by
	// wrapping it in a derived table.
	CountOverPaging bool `yaml:"count_over_paging"`
	// CompoundUpdate is the multi-table UPDATE form.
	CompoundUpdate CompoundUpdateStyle `yaml:"compound_update"`
	// OutputParameters: the vendor supports output parameters.
	OutputParameters bool `yaml:"output_parameters"`
	// BooleanValues: a predicate may appear as a value in a select list.
	BooleanValues bool `yaml:"boolean_values"`
}

// Dialect is the vendor SQL emission collaborator.
type Dialect interface {
	// Name is the dialect's registry name.
	Name() string
	Capabilities() Capabilities

	// QuoteIdentifier quotes a table, column or alias name.
	QuoteIdentifier(name string) string
	// ParameterName returns the placeholder text for the parameter at
	// zero-based position.
	ParameterName(position int) string
	// FormatLiteral renders a value as inline SQL.
	FormatLiteral(v any) (string, error)
	// IsParameterType reports whether values of t can be bound as
	// parameters.
	IsParameterType(t reflect.Type) bool
	// Supports reports whether the node itself (not its operands) can be
	// evaluated by the database.
	Supports(n expr.Node) bool
	// ResultType returns the Go type the driver yields for n, or nil when
	// the driver type is unknown and values are cast to the member type.
	ResultType(n expr.Node) reflect.Type
	// RenderFunction renders a function over already-rendered arguments.
	RenderFunction(kind expr.FuncKind, args []string) (string, error)
	// RenderArrayIn renders item membership in an array parameter.
	RenderArrayIn(item, array string) string
	// UnboundedLimit is the LIMIT text used when only OFFSET is set, or
	// "" when OFFSET may stand alone.
	UnboundedLimit() string
}

var registry = map[string]func() *Vendor{
	"sqlite":   SQLite,
	"postgres": Postgres,
	"mysql":    MySQL,
	"mssql":    MSSQL,
	"firebird": Firebird,
}

// Lookup returns the named built-in dialect.
func Lookup(name string) (Dialect, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown dialect %q (known: %v)", name, Names())
	}
	return ctor(), nil
}

// Names lists the built-in dialects.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithCapabilities returns d with its capability set replaced.
func WithCapabilities(d Dialect, caps Capabilities) Dialect {
	return &overridden{Dialect: d, caps: caps}
}

type overridden struct {
	Dialect
	caps Capabilities
}

func (o *overridden) Capabilities() Capabilities { return o.caps }

var (
	timeType  = reflect.TypeOf(time.Time{})
	uuidType  = reflect.TypeOf(uuid.UUID{})
	int64Type = reflect.TypeOf(int64(0))
	floatType = reflect.TypeOf(float64(0))
	strType   = reflect.TypeOf("")
	boolType  = reflect.TypeOf(false)
)

// scalar reports whether t is a type databases store natively.
func scalar(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch {
	case t == timeType, t == uuidType:
		return true
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		return true
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// IsList reports whether t is a list type used for IN membership.
func IsList(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t.Kind() != reflect.Slice && t.Kind() != reflect.Array {
		return false
	}
	return t.Elem().Kind() != reflect.Uint8 && t != uuidType
}
