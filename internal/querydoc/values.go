package querydoc

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// Values returns the call-site arguments in binding order. Overrides, keyed
// by argument name, take precedence over the document's values; list
// overrides are comma separated.
func (b *Built) Values(overrides map[string]string) ([]any, error) {
	out := make([]any, len(b.args))
	for i, a := range b.args {
		var (
			raw any
			ok  bool
		)
		if s, set := overrides[a.Name]; set {
			raw, ok = s, true
			if a.Typ.Kind() == reflect.Slice && a.Typ.Elem().Kind() != reflect.Uint8 {
				raw = splitList(s)
			}
		} else if n, set := b.doc.Values[a.Name]; set {
			if err := n.Decode(&raw); err != nil {
				return nil, invalidf(&n, "value of %s: %v", a.Name, err)
			}
			ok = true
		}
		if !ok {
			return nil, &DecodeError{Code: ErrCodeInvalid, Message: fmt.Sprintf("no value for argument %q", a.Name)}
		}
		v, err := coerce(raw, a.Typ)
		if err != nil {
			return nil, &DecodeError{Code: ErrCodeInvalid, Message: fmt.Sprintf("argument %s: %v", a.Name, err)}
		}
		out[i] = v
	}
	return out, nil
}

func splitList(s string) []any {
	if strings.TrimSpace(s) == "" {
		return []any{}
	}
	parts := strings.Split(s, ",")
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

var (
	timeType = reflect.TypeOf(time.Time{})
	uuidType = reflect.TypeOf(uuid.UUID{})
)

// coerce converts a decoded or command-line value to type t.
func coerce(v any, t reflect.Type) (any, error) {
	switch t {
	case timeType:
		return cast.ToTimeE(v)
	case uuidType:
		return uuid.Parse(cast.ToString(v))
	}

	switch t.Kind() {
	case reflect.String:
		return cast.ToStringE(v)
	case reflect.Bool:
		return cast.ToBoolE(v)
	case reflect.Int:
		return cast.ToIntE(v)
	case reflect.Int32:
		return cast.ToInt32E(v)
	case reflect.Int64:
		return cast.ToInt64E(v)
	case reflect.Float32:
		return cast.ToFloat32E(v)
	case reflect.Float64:
		return cast.ToFloat64E(v)
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return []byte(cast.ToString(v)), nil
		}
		items, err := cast.ToSliceE(v)
		if err != nil {
			return nil, err
		}
		out := reflect.MakeSlice(t, len(items), len(items))
		for i, item := range items {
			x, err := coerce(item, t.Elem())
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out.Index(i).Set(reflect.ValueOf(x))
		}
		return out.Interface(), nil
	}
	return nil, fmt.Errorf("unsupported argument type %s", t)
}
