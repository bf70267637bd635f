package model

import (
	"fmt"
	"os"
	"reflect"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"github.com/google/uuid"
)

// Load error codes.
const (
	ErrCodeNotFound    = "E_NOT_FOUND"
	ErrCodeLoadFailed  = "E_LOAD_FAILED"
	ErrCodeBuildFailed = "E_BUILD_FAILED"
	ErrCodeInvalid     = "E_INVALID_MODEL"
)

// LoadError is returned when a CUE model cannot be loaded or is malformed.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// scalarTypes maps CUE model type names to member types.
var scalarTypes = map[string]reflect.Type{
	"int":     reflect.TypeOf(int(0)),
	"int32":   reflect.TypeOf(int32(0)),
	"int64":   reflect.TypeOf(int64(0)),
	"float32": reflect.TypeOf(float32(0)),
	"float64": reflect.TypeOf(float64(0)),
	"string":  reflect.TypeOf(""),
	"bool":    reflect.TypeOf(false),
	"bytes":   reflect.TypeOf([]byte(nil)),
	"time":    reflect.TypeOf(time.Time{}),
	"uuid":    reflect.TypeOf(uuid.UUID{}),
}

// ScalarType returns the member type for a model type name.
func ScalarType(name string) (reflect.Type, bool) {
	t, ok := scalarTypes[name]
	return t, ok
}

// Load loads every CUE file of the package in dir and compiles the
// top-level `entity` struct into a Model.
//
// The returned model is not resolved; bind Go types (if any) and call
// Resolve before translating.
func Load(dir string) (*Model, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("model directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err, ErrCodeBuildFailed)
	}
	return FromValue(value)
}

// CompileString compiles CUE source text into a Model.
func CompileString(src string) (*Model, error) {
	value := cuecontext.New().CompileString(src)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err, ErrCodeBuildFailed)
	}
	return FromValue(value)
}

// FromValue compiles a built CUE value. Entities live under `entity`:
//
//	entity: Book: {
//		table: "books"
//		columns: {
//			ID:       {type: "int64", key: true}
//			AuthorID: {type: "int64", column: "author_id"}
//		}
//		references: Author: {entity: "Author", keys: ["AuthorID"]}
//	}
func FromValue(v cue.Value) (*Model, error) {
	entities := v.LookupPath(cue.ParsePath("entity"))
	if !entities.Exists() {
		return nil, &LoadError{Code: ErrCodeInvalid, Message: "no entity definitions", Pos: v.Pos()}
	}

	m := New()
	iter, err := entities.Fields()
	if err != nil {
		return nil, formatCUEError(err, ErrCodeInvalid)
	}
	for iter.Next() {
		e, err := compileEntity(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		if err := m.Add(e); err != nil {
			return nil, &LoadError{Code: ErrCodeInvalid, Message: err.Error(), Pos: iter.Value().Pos()}
		}
	}
	return m, nil
}

func compileEntity(name string, v cue.Value) (*Entity, error) {
	table, err := optionalString(v, "table")
	if err != nil {
		return nil, err
	}
	e := NewEntity(name, table)

	cols := v.LookupPath(cue.ParsePath("columns"))
	if !cols.Exists() {
		return nil, &LoadError{Code: ErrCodeInvalid, Message: fmt.Sprintf("entity %s: columns are required", name), Pos: v.Pos()}
	}
	iter, err := cols.Fields()
	if err != nil {
		return nil, formatCUEError(err, ErrCodeInvalid)
	}
	for iter.Next() {
		c, err := compileColumn(name, iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		e.AddColumn(c)
	}
	if len(e.Keys()) == 0 {
		return nil, &LoadError{Code: ErrCodeInvalid, Message: fmt.Sprintf("entity %s: at least one key column is required", name), Pos: v.Pos()}
	}

	if refs := v.LookupPath(cue.ParsePath("references")); refs.Exists() {
		iter, err := refs.Fields()
		if err != nil {
			return nil, formatCUEError(err, ErrCodeInvalid)
		}
		for iter.Next() {
			r := &Reference{Member: iter.Label()}
			rv := iter.Value()
			if r.Target, err = requiredString(rv, "entity"); err != nil {
				return nil, err
			}
			if r.Via, err = optionalString(rv, "via"); err != nil {
				return nil, err
			}
			if r.Nullable, err = optionalBool(rv, "nullable"); err != nil {
				return nil, err
			}
			if keys := rv.LookupPath(cue.ParsePath("keys")); keys.Exists() {
				if err := keys.Decode(&r.Keys); err != nil {
					return nil, formatCUEError(err, ErrCodeInvalid)
				}
			}
			if r.Via == "" && len(r.Keys) == 0 {
				return nil, &LoadError{Code: ErrCodeInvalid, Message: fmt.Sprintf("%s.%s: reference needs keys or via", name, r.Member), Pos: rv.Pos()}
			}
			e.AddReference(r)
		}
	}

	if colls := v.LookupPath(cue.ParsePath("collections")); colls.Exists() {
		iter, err := colls.Fields()
		if err != nil {
			return nil, formatCUEError(err, ErrCodeInvalid)
		}
		for iter.Next() {
			c := &Collection{Member: iter.Label()}
			cv := iter.Value()
			if c.Target, err = requiredString(cv, "entity"); err != nil {
				return nil, err
			}
			if c.Via, err = requiredString(cv, "via"); err != nil {
				return nil, err
			}
			e.AddCollection(c)
		}
	}
	return e, nil
}

func compileColumn(entity, member string, v cue.Value) (*Column, error) {
	typeName, err := requiredString(v, "type")
	if err != nil {
		return nil, err
	}
	t, ok := scalarTypes[typeName]
	if !ok {
		return nil, &LoadError{Code: ErrCodeInvalid, Message: fmt.Sprintf("%s.%s: unknown type %q", entity, member, typeName), Pos: v.Pos()}
	}

	c := &Column{Member: member, Type: t, StoredType: t}
	if c.Name, err = optionalString(v, "column"); err != nil {
		return nil, err
	}
	if c.Key, err = optionalBool(v, "key"); err != nil {
		return nil, err
	}
	if c.Nullable, err = optionalBool(v, "nullable"); err != nil {
		return nil, err
	}
	stored, err := optionalString(v, "stored")
	if err != nil {
		return nil, err
	}
	if stored != "" {
		st, ok := scalarTypes[stored]
		if !ok {
			return nil, &LoadError{Code: ErrCodeInvalid, Message: fmt.Sprintf("%s.%s: unknown stored type %q", entity, member, stored), Pos: v.Pos()}
		}
		c.StoredType = st
	}
	if c.Nullable {
		// Nullable members surface as pointers until a Go type is bound.
		c.Type = reflect.PointerTo(c.Type)
	}
	return c, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &LoadError{Code: ErrCodeInvalid, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err, ErrCodeInvalid)
	}
	return s, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err, ErrCodeInvalid)
	}
	return s, nil
}

func optionalBool(v cue.Value, field string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err, ErrCodeInvalid)
	}
	return b, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error, code string) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &LoadError{Code: code, Message: first.Error(), Pos: positions[0]}
	}
	return &LoadError{Code: code, Message: first.Error()}
}
