package tools

import (
	"github.com/cockroachdb/errors"
)

// Kind classifies tool failures.
type Kind string

const (
	// KindSchema is reported when a tool is registered with an unusable schema.
	KindSchema Kind = "SchemaError"
	// KindValidation is reported when arguments do not satisfy the schema.
	KindValidation Kind = "ValidationError"
	// KindConfiguration is reported when a tool lacks a required setting, such as an API key.
	KindConfiguration Kind = "ConfigurationError"
	// KindExecution is reported for any other failure of the operation.
	KindExecution Kind = "ExecutionError"
)

var (
	// ErrSchema marks schema errors
	ErrSchema = errors.New("schema error")
	// ErrValidation marks validation errors
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks configuration errors
	ErrConfiguration = errors.New("configuration error")
	// ErrExecution marks execution errors
	ErrExecution = errors.New("execution error")

	// ErrFailedUnmarshalInput is returned by Call when the input does not decode
	// into the tool request.
	ErrFailedUnmarshalInput = errors.Mark(errors.New("failed to unmarshal input: check the schema and try again"), ErrValidation)
)

// NewSchemaError returns an error classified as KindSchema.
func NewSchemaError(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrSchema)
}

// NewValidationError returns an error classified as KindValidation.
func NewValidationError(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

// NewConfigurationError returns an error classified as KindConfiguration.
func NewConfigurationError(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfiguration)
}

// NewExecutionError returns an error classified as KindExecution.
func NewExecutionError(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrExecution)
}

// KindOf returns the class of err, unmarked errors are KindExecution.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSchema):
		return KindSchema
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	default:
		return KindExecution
	}
}

// Failure is the normalized error of an invocation.
type Failure struct {
	Kind    Kind   `json:"kind" yaml:"kind" toml:"kind"`
	Message string `json:"message" yaml:"message" toml:"message"`
}

func (f *Failure) Error() string {
	return string(f.Kind) + ": " + f.Message
}

// failureOf normalizes err returned by an operation:
// validation and configuration keep their class, the rest is an execution error.
func failureOf(err error) *Failure {
	kind := KindOf(err)
	if kind != KindValidation && kind != KindConfiguration {
		kind = KindExecution
	}
	return &Failure{
		Kind:    kind,
		Message: err.Error(),
	}
}
