package schema

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	gjs "github.com/google/jsonschema-go/jsonschema"
	"github.com/invopop/jsonschema"
)

// knownTypes are the JSON schema types a tool parameter may declare.
var knownTypes = map[string]bool{
	"":        true,
	"object":  true,
	"array":   true,
	"string":  true,
	"number":  true,
	"integer": true,
	"boolean": true,
	"null":    true,
}

// Check verifies that s is a usable parameters schema:
// an object whose properties use known types and non-contradictory constraints,
// and which resolves for validation.
func Check(s *jsonschema.Schema) error {
	if s == nil {
		return errors.New("schema is not defined")
	}
	if s.Type != "object" {
		return errors.Newf("parameters must be of type object, got %q", s.Type)
	}
	if err := checkNode("$", s); err != nil {
		return err
	}
	_, err := Resolve(s)
	return err
}

func checkNode(path string, s *jsonschema.Schema) error {
	if s == nil {
		return errors.Newf("%s: empty schema", path)
	}
	if s.Ref != "" {
		return errors.Newf("%s: unresolved reference %q", path, s.Ref)
	}
	if !knownTypes[s.Type] {
		return errors.Newf("%s: unsupported type %q", path, s.Type)
	}

	if err := checkRange(path, "minimum", s.Minimum, "maximum", s.Maximum); err != nil {
		return err
	}
	if err := checkRange(path, "exclusiveMinimum", s.ExclusiveMinimum, "exclusiveMaximum", s.ExclusiveMaximum); err != nil {
		return err
	}
	if s.MinLength != nil && s.MaxLength != nil && *s.MinLength > *s.MaxLength {
		return errors.Newf("%s: minLength %d is greater than maxLength %d", path, *s.MinLength, *s.MaxLength)
	}
	if s.MinItems != nil && s.MaxItems != nil && *s.MinItems > *s.MaxItems {
		return errors.Newf("%s: minItems %d is greater than maxItems %d", path, *s.MinItems, *s.MaxItems)
	}
	if err := checkEnum(path, s); err != nil {
		return err
	}

	for _, name := range s.Required {
		if s.Properties == nil {
			return errors.Newf("%s: required property %q is not defined", path, name)
		}
		if _, ok := s.Properties.Get(name); !ok {
			return errors.Newf("%s: required property %q is not defined", path, name)
		}
	}

	if s.Properties != nil {
		if s.Type != "" && s.Type != "object" {
			return errors.Newf("%s: properties defined for type %q", path, s.Type)
		}
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			if err := checkNode(path+"."+pair.Key, pair.Value); err != nil {
				return err
			}
		}
	}
	if s.Items != nil {
		if err := checkNode(path+"[]", s.Items); err != nil {
			return err
		}
	}
	return nil
}

func checkRange(path, minName string, minVal json.Number, maxName string, maxVal json.Number) error {
	lo, hasMin, err := parseNumber(minVal)
	if err != nil {
		return errors.Wrapf(err, "%s: invalid %s", path, minName)
	}
	hi, hasMax, err := parseNumber(maxVal)
	if err != nil {
		return errors.Wrapf(err, "%s: invalid %s", path, maxName)
	}
	if hasMin && hasMax && lo > hi {
		return errors.Newf("%s: %s %v is greater than %s %v", path, minName, lo, maxName, hi)
	}
	return nil
}

func parseNumber(n json.Number) (float64, bool, error) {
	if n == "" {
		return 0, false, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, false, err
	}
	return f, true, nil
}

func checkEnum(path string, s *jsonschema.Schema) error {
	if s.Type == "" || len(s.Enum) == 0 {
		return nil
	}
	r, err := (&gjs.Schema{Type: s.Type}).Resolve(nil)
	if err != nil {
		return errors.WithStack(err)
	}
	for i, v := range s.Enum {
		js, err := json.Marshal(v)
		if err != nil {
			return errors.Wrapf(err, "%s: invalid enum[%d]", path, i)
		}
		var inst any
		if err = json.Unmarshal(js, &inst); err != nil {
			return errors.Wrapf(err, "%s: invalid enum[%d]", path, i)
		}
		if r.Validate(inst) != nil {
			return errors.Newf("%s: enum[%d] value %v does not match type %q", path, i, v, s.Type)
		}
	}
	return nil
}
