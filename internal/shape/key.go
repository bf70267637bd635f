// Package shape computes the cache key of a query: a content hash of its
// expression tree with call-site argument values left out.
//
// Two queries with the same shape translate to the same SQL template and
// parameter layout, so a caller may cache a cacheable Command under its
// shape key. Constants are part of the shape (they are inlined into SQL);
// arguments are not.
package shape

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"strconv"

	"github.com/roach88/orq/internal/expr"
)

// Domain prefixes separate shape hashes from any other content hash. The
// version suffix allows the encoding to change.
const (
	DomainQuery    = "orq/query/v1"
	DomainMutation = "orq/mutation/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Key returns the shape key of a query.
func Key(q *expr.Query) (string, error) {
	return keyOf(DomainQuery, q, nil)
}

// MutationKey returns the shape key of a query translated as a mutation of
// kind against target.
func MutationKey(q *expr.Query, kind, target string) (string, error) {
	return keyOf(DomainMutation, q, map[string]any{"kind": kind, "target": target})
}

// Canonical returns the canonical JSON encoding the key is computed from.
func Canonical(q *expr.Query) ([]byte, error) {
	obj, err := encodeQuery(q)
	if err != nil {
		return nil, err
	}
	return marshalCanonical(obj)
}

func keyOf(domain string, q *expr.Query, extra map[string]any) (string, error) {
	obj, err := encodeQuery(q)
	if err != nil {
		return "", fmt.Errorf("shape: %w", err)
	}
	for k, v := range extra {
		obj[k] = v
	}
	canonical, err := marshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("shape: %w", err)
	}
	return hashWithDomain(domain, canonical), nil
}

func encodeQuery(q *expr.Query) (map[string]any, error) {
	body, err := encode(q.Body)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(q.Args))
	for i, a := range q.Args {
		args[i] = typeName(a.Typ)
	}
	return map[string]any{"body": body, "args": args}, nil
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "?"
	}
	return t.String()
}

func encodeAll(ns []expr.Node) ([]any, error) {
	out := make([]any, len(ns))
	for i, n := range ns {
		v, err := encode(n)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func strs(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// encode maps one node to a JSON-able object. Only the kinds that appear in
// source queries are accepted; translation-time kinds (tables, columns,
// reader leaves) never reach a shape.
func encode(n expr.Node) (any, error) {
	switch x := n.(type) {
	case nil:
		return "nil", nil
	case *expr.Constant:
		v, err := encodeValue(x.Value)
		if err != nil {
			return nil, err
		}
		return map[string]any{"k": "const", "t": typeName(x.Typ), "v": v}, nil
	case *expr.Parameter:
		return map[string]any{"k": "param", "n": x.Name, "t": typeName(x.Typ)}, nil
	case *expr.Argument:
		return map[string]any{"k": "arg", "i": int64(x.Index), "t": typeName(x.Typ)}, nil
	case *expr.EntitySet:
		return map[string]any{"k": "from", "e": x.Entity, "t": typeName(x.Typ)}, nil
	case *expr.Unary:
		op, err := encode(x.Operand)
		if err != nil {
			return nil, err
		}
		return map[string]any{"k": "unary", "op": string(x.Op), "x": op, "t": typeName(x.Typ)}, nil
	case *expr.Binary:
		l, err := encode(x.Left)
		if err != nil {
			return nil, err
		}
		r, err := encode(x.Right)
		if err != nil {
			return nil, err
		}
		return map[string]any{"k": "binary", "op": string(x.Op), "l": l, "r": r}, nil
	case *expr.Conditional:
		ops, err := encodeAll([]expr.Node{x.Test, x.IfTrue, x.IfFalse})
		if err != nil {
			return nil, err
		}
		return map[string]any{"k": "if", "x": ops}, nil
	case *expr.Member:
		target, err := encode(x.Target)
		if err != nil {
			return nil, err
		}
		return map[string]any{"k": "member", "n": x.Name, "x": target, "t": typeName(x.Typ)}, nil
	case *expr.New:
		args, err := encodeAll(x.Args)
		if err != nil {
			return nil, err
		}
		return map[string]any{"k": "new", "t": typeName(x.Typ), "n": strs(x.Names), "x": args}, nil
	case *expr.Call:
		args, err := encodeAll(x.Args)
		if err != nil {
			return nil, err
		}
		obj := map[string]any{"k": "call", "m": x.Method, "x": args, "t": typeName(x.Typ)}
		if x.Fn != nil {
			// Functions are compared by identity; the pointer is stable for
			// the life of the process.
			obj["fn"] = strconv.FormatUint(uint64(reflect.ValueOf(x.Fn).Pointer()), 16)
		}
		return obj, nil
	case *expr.Lambda:
		params := make([]any, len(x.Params))
		for i, p := range x.Params {
			params[i] = map[string]any{"n": p.Name, "t": typeName(p.Typ)}
		}
		body, err := encode(x.Body)
		if err != nil {
			return nil, err
		}
		return map[string]any{"k": "lambda", "p": params, "x": body}, nil
	case *expr.Function:
		args, err := encodeAll(x.Args)
		if err != nil {
			return nil, err
		}
		return map[string]any{"k": "fn", "f": string(x.Kind), "x": args, "t": typeName(x.Typ)}, nil
	}
	return nil, fmt.Errorf("cannot encode %T in a query shape", n)
}

// encodeValue renders a constant value. Floats and nil, which canonical JSON
// forbids, become tagged strings.
func encodeValue(v any) (any, error) {
	if v == nil {
		return "null:", nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "u:" + strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return "f:" + strconv.FormatFloat(rv.Float(), 'g', -1, 64), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return "null:", nil
		}
		return encodeValue(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if b, ok := v.([]byte); ok {
			return "b:" + hex.EncodeToString(b), nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			e, err := encodeValue(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = e
		}
		return out, nil
	}
	// time.Time, uuid.UUID and other Stringers.
	if s, ok := v.(fmt.Stringer); ok {
		return "s:" + s.String(), nil
	}
	return nil, fmt.Errorf("cannot encode constant of type %T", v)
}
