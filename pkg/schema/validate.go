package schema

import (
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	gjs "github.com/google/jsonschema-go/jsonschema"
	"github.com/invopop/jsonschema"
)

// resolved caches the validating form of registered schemas.
// Schemas must not be changed after they are resolved.
var resolved sync.Map // *jsonschema.Schema -> *gjs.Resolved

// Resolve converts s into a resolved schema ready for validation.
func Resolve(s *jsonschema.Schema) (*gjs.Resolved, error) {
	if s == nil {
		return nil, errors.New("schema is not defined")
	}
	if r, ok := resolved.Load(s); ok {
		return r.(*gjs.Resolved), nil
	}

	js, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode schema")
	}
	var gs gjs.Schema
	if err = json.Unmarshal(js, &gs); err != nil {
		return nil, errors.Wrap(err, "failed to decode schema")
	}
	// the reflected dialect and id are not needed to validate arguments
	gs.Schema = ""
	gs.ID = ""

	r, err := gs.Resolve(&gjs.ResolveOptions{})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	actual, _ := resolved.LoadOrStore(s, r)
	return actual.(*gjs.Resolved), nil
}

// Validate checks args against the parameters schema s.
// Nil args are treated as an empty object,
// and null properties are treated as not provided.
func Validate(s *jsonschema.Schema, args map[string]any) error {
	if s == nil {
		return nil
	}
	r, err := Resolve(s)
	if err != nil {
		return err
	}

	inst, err := instanceOf(args)
	if err != nil {
		return err
	}
	if err = r.Validate(inst); err != nil {
		return errors.WithMessage(err, "invalid arguments")
	}
	return nil
}

// instanceOf returns args in their plain JSON form,
// so json.Number and Go numeric types compare as JSON numbers.
func instanceOf(args map[string]any) (any, error) {
	if args == nil {
		return map[string]any{}, nil
	}
	js, err := json.Marshal(args)
	if err != nil {
		return nil, errors.Wrap(err, "arguments are not JSON encodable")
	}
	var inst any
	if err = json.Unmarshal(js, &inst); err != nil {
		return nil, errors.WithStack(err)
	}
	return dropNulls(inst), nil
}

func dropNulls(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			if item == nil {
				delete(val, k)
			} else {
				val[k] = dropNulls(item)
			}
		}
	case []any:
		for i, item := range val {
			val[i] = dropNulls(item)
		}
	}
	return v
}
