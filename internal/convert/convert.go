// Package convert provides the type-conversion registry used when reading
// database values into member types and when writing member values back.
//
// Built-in converters cover numeric, string, bool, time, byte-slice and
// uuid.UUID members (including named types over those kinds and pointer
// types for nullable members) and are backed by spf13/cast. Anything else
// must be registered explicitly.
package convert

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// Func converts one value. A nil input is a SQL NULL and converts to nil.
type Func func(v any) (any, error)

// Converter converts between a stored type and a member type.
type Converter struct {
	From     reflect.Type
	To       reflect.Type
	ToMember Func
	ToStored Func
}

type pair struct{ from, to reflect.Type }

// Registry resolves converters. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	custom map[pair]Converter
}

// NewRegistry returns a registry with only the built-in converters.
func NewRegistry() *Registry {
	return &Registry{custom: map[pair]Converter{}}
}

// Register adds an explicit converter; explicit converters take precedence
// over built-ins.
func (r *Registry) Register(from, to reflect.Type, toMember, toStored Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom[pair{from, to}] = Converter{From: from, To: to, ToMember: toMember, ToStored: toStored}
}

// Lookup returns the converter from stored type from to member type to.
// A nil from (unknown SQL type) converts by the member type alone.
func (r *Registry) Lookup(from, to reflect.Type) (Converter, bool) {
	r.mu.RLock()
	c, ok := r.custom[pair{from, to}]
	r.mu.RUnlock()
	if ok {
		return c, true
	}
	if to == nil || to.Kind() == reflect.Interface {
		return Converter{From: from, To: to, ToMember: identity, ToStored: identity}, true
	}
	if from == nil {
		from = to
	}

	toMember, ok := r.build(from, to)
	if !ok {
		return Converter{}, false
	}
	toStored, ok := r.build(to, from)
	if !ok {
		return Converter{}, false
	}
	return Converter{From: from, To: to, ToMember: toMember, ToStored: toStored}, true
}

func (r *Registry) build(from, to reflect.Type) (Func, bool) {
	if to.Kind() == reflect.Pointer {
		inner, ok := r.Lookup(deref(from), to.Elem())
		if !ok {
			return nil, false
		}
		return pointerTo(to, inner.ToMember), true
	}
	if from.Kind() == reflect.Pointer {
		inner, ok := r.Lookup(from.Elem(), to)
		if !ok {
			return nil, false
		}
		return func(v any) (any, error) {
			if v == nil {
				return nil, nil
			}
			rv := reflect.ValueOf(v)
			if rv.Kind() == reflect.Pointer {
				if rv.IsNil() {
					return nil, nil
				}
				v = rv.Elem().Interface()
			}
			return inner.ToMember(v)
		}, true
	}
	if !compatible(classOf(from), classOf(to)) {
		return nil, false
	}
	return castTo(to), true
}

type class int

const (
	classOther class = iota
	classNumeric
	classString
	classBool
	classTime
	classBytes
	classUUID
)

var (
	timeType  = reflect.TypeOf(time.Time{})
	uuidType  = reflect.TypeOf(uuid.UUID{})
	bytesType = reflect.TypeOf([]byte(nil))
)

func classOf(t reflect.Type) class {
	switch {
	case t == timeType:
		return classTime
	case t == uuidType:
		return classUUID
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		return classBytes
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return classNumeric
	case reflect.String:
		return classString
	case reflect.Bool:
		return classBool
	case reflect.Interface:
		return classOther
	}
	return classOther
}

func compatible(from, to class) bool {
	if from == classOther || to == classOther {
		return false
	}
	if from == to {
		return true
	}
	scalar := func(c class) bool { return c == classNumeric || c == classString || c == classBool }
	switch {
	case scalar(from) && scalar(to):
		return true
	case from == classString && (to == classTime || to == classUUID || to == classBytes):
		return true
	case to == classString && (from == classTime || from == classUUID || from == classBytes):
		return true
	case from == classBytes && to == classUUID, from == classUUID && to == classBytes:
		return true
	}
	return false
}

// castTo returns a conversion into t. Named types over a basic kind are
// produced by converting the cast result.
func castTo(t reflect.Type) Func {
	var base Func
	switch classOf(t) {
	case classTime:
		base = func(v any) (any, error) { return cast.ToTimeE(v) }
	case classUUID:
		base = toUUID
	case classBytes:
		base = toBytes
	default:
		base = castKind(t.Kind())
	}
	return func(v any) (any, error) {
		if v == nil {
			return nil, nil
		}
		out, err := base(normalize(v))
		if err != nil {
			return nil, fmt.Errorf("convert %T to %s: %w", v, t, err)
		}
		rv := reflect.ValueOf(out)
		if rv.Type() != t {
			if !rv.Type().ConvertibleTo(t) {
				return nil, fmt.Errorf("convert %T to %s: not convertible", v, t)
			}
			return rv.Convert(t).Interface(), nil
		}
		return out, nil
	}
}

func castKind(k reflect.Kind) Func {
	switch k {
	case reflect.Int:
		return func(v any) (any, error) { return cast.ToIntE(v) }
	case reflect.Int8:
		return func(v any) (any, error) { return cast.ToInt8E(v) }
	case reflect.Int16:
		return func(v any) (any, error) { return cast.ToInt16E(v) }
	case reflect.Int32:
		return func(v any) (any, error) { return cast.ToInt32E(v) }
	case reflect.Int64:
		return func(v any) (any, error) { return cast.ToInt64E(v) }
	case reflect.Uint:
		return func(v any) (any, error) { return cast.ToUintE(v) }
	case reflect.Uint8:
		return func(v any) (any, error) { return cast.ToUint8E(v) }
	case reflect.Uint16:
		return func(v any) (any, error) { return cast.ToUint16E(v) }
	case reflect.Uint32:
		return func(v any) (any, error) { return cast.ToUint32E(v) }
	case reflect.Uint64:
		return func(v any) (any, error) { return cast.ToUint64E(v) }
	case reflect.Float32:
		return func(v any) (any, error) { return cast.ToFloat32E(v) }
	case reflect.Float64:
		return func(v any) (any, error) { return cast.ToFloat64E(v) }
	case reflect.Bool:
		return func(v any) (any, error) { return cast.ToBoolE(v) }
	default:
		return func(v any) (any, error) { return cast.ToStringE(v) }
	}
}

// normalize strips named types down to their basic kind so cast's type
// switches see a builtin type.
func normalize(v any) any {
	switch v.(type) {
	case time.Time, uuid.UUID, []byte:
		return v
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	}
	return v
}

func toUUID(v any) (any, error) {
	switch x := v.(type) {
	case uuid.UUID:
		return x, nil
	case string:
		return uuid.Parse(x)
	case []byte:
		if len(x) == 16 {
			return uuid.FromBytes(x)
		}
		return uuid.ParseBytes(x)
	}
	return nil, fmt.Errorf("unable to cast %#v of type %T to uuid.UUID", v, v)
}

func toBytes(v any) (any, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	case uuid.UUID:
		return x[:], nil
	}
	return nil, fmt.Errorf("unable to cast %#v of type %T to []byte", v, v)
}

func pointerTo(t reflect.Type, inner Func) Func {
	return func(v any) (any, error) {
		if v == nil {
			return reflect.Zero(t).Interface(), nil
		}
		out, err := inner(v)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return reflect.Zero(t).Interface(), nil
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(reflect.ValueOf(out))
		return p.Interface(), nil
	}
}

func deref(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Pointer {
		return t.Elem()
	}
	return t
}

func identity(v any) (any, error) { return v, nil }
