package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolbind/pkg/llmutils"
	"github.com/effective-security/toolbind/pkg/schema"
	"github.com/effective-security/xlog"
	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolbind", "tools")

// nameRegex is the set of names accepted by the model providers for functions.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their JSON names, as the model sees them
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Operation is the typed implementation of a tool.
type Operation[I any, O any] func(ctx context.Context, req *I) (*O, error)

// Option configures a Function.
type Option func(*options)

type options struct {
	params *jsonschema.Schema
}

// WithSchema provides the parameters schema explicitly,
// instead of reflecting it from the request type.
func WithSchema(s *jsonschema.Schema) Option {
	return func(o *options) {
		o.params = s
	}
}

// Function is a tool backed by a typed Operation.
type Function[I any, O any] struct {
	name        string
	description string
	params      *jsonschema.Schema
	op          Operation[I, O]
}

// New registers a typed operation as a tool.
// The parameters schema is reflected from I unless WithSchema is given,
// and is checked before the tool is returned.
func New[I any, O any](name, description string, op Operation[I, O], opts ...Option) (*Function[I, O], error) {
	if !nameRegex.MatchString(name) {
		return nil, NewSchemaError("invalid tool name %q: must match %s", name, nameRegex.String())
	}
	if op == nil {
		return nil, NewSchemaError("tool %q: operation is not defined", name)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	params := o.params
	if params == nil {
		sc, err := schema.New(reflect.TypeFor[I]())
		if err != nil {
			return nil, errors.Mark(errors.WithMessagef(err, "tool %q", name), ErrSchema)
		}
		params = sc.Parameters
	}
	if err := schema.Check(params); err != nil {
		return nil, errors.Mark(errors.WithMessagef(err, "tool %q", name), ErrSchema)
	}

	return &Function[I, O]{
		name:        name,
		description: description,
		params:      params,
		op:          op,
	}, nil
}

// Must is like New but panics on error, for tools defined at init time.
func Must[I any, O any](f *Function[I, O], err error) *Function[I, O] {
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Function[I, O]) Name() string {
	return f.name
}

func (f *Function[I, O]) Description() string {
	return f.description
}

func (f *Function[I, O]) Parameters() *jsonschema.Schema {
	return f.params
}

// Run validates the struct tags of req and runs the operation.
func (f *Function[I, O]) Run(ctx context.Context, req *I) (*O, error) {
	if req == nil {
		return nil, NewValidationError("request is not provided")
	}
	if reflect.TypeFor[I]().Kind() == reflect.Struct {
		if err := validate.StructCtx(ctx, req); err != nil {
			return nil, validationError(err)
		}
	}
	return f.op(ctx, req)
}

// Call decodes the JSON input, runs the operation and returns the JSON output.
func (f *Function[I, O]) Call(ctx context.Context, input string) (string, error) {
	var req I
	if err := ljson.Unmarshal(llmutils.CleanJSON([]byte(input)), &req); err != nil {
		logger.ContextKV(ctx, xlog.DEBUG,
			"reason", "unmarshal",
			"tool", f.name,
			"err", err.Error(),
		)
		return "", errors.WithStack(ErrFailedUnmarshalInput)
	}

	out, err := f.Run(ctx, &req)
	if err != nil {
		return "", err
	}

	bs, err := json.Marshal(out)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal output")
	}
	return string(bs), nil
}

func validationError(err error) error {
	var verr validator.ValidationErrors
	if !errors.As(err, &verr) {
		return errors.Mark(errors.WithStack(err), ErrValidation)
	}

	list := make([]string, len(verr))
	for i, fe := range verr {
		if fe.Param() != "" {
			list[i] = fmt.Sprintf("%s: failed on '%s=%s' validation", fe.Field(), fe.Tag(), fe.Param())
		} else {
			list[i] = fmt.Sprintf("%s: failed on '%s' validation", fe.Field(), fe.Tag())
		}
	}
	return NewValidationError("%s", strings.Join(list, "; "))
}
