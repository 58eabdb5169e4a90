package tools

import (
	"bytes"
	"encoding/json"

	"github.com/effective-security/toolbind/pkg/llmutils"
	"github.com/google/uuid"
)

// Request is a single call of a tool.
type Request struct {
	// ID correlates the request with its result and the model's tool call.
	ID string `json:"id" yaml:"id"`
	// Tool is the name of the tool to call.
	Tool string `json:"tool" yaml:"tool"`
	// Arguments are the named argument values, nil is the same as empty.
	Arguments map[string]any `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	// RawArguments is the JSON text of the arguments as produced by a model,
	// it is decoded by Invoke when Arguments is nil.
	RawArguments string `json:"raw_arguments,omitempty" yaml:"raw_arguments,omitempty"`
}

// NewRequest returns a request with a fresh ID.
func NewRequest(tool string, args map[string]any) *Request {
	return &Request{
		ID:        uuid.NewString(),
		Tool:      tool,
		Arguments: args,
	}
}

// NewRawRequest returns a request with a fresh ID and undecoded arguments.
func NewRawRequest(tool, rawArgs string) *Request {
	return &Request{
		ID:           uuid.NewString(),
		Tool:         tool,
		RawArguments: rawArgs,
	}
}

// ArgumentsJSON returns the arguments as JSON text.
func (r *Request) ArgumentsJSON() string {
	if r.Arguments == nil && r.RawArguments != "" {
		return r.RawArguments
	}
	return llmutils.ToJSON(r.Arguments)
}

// ParseArguments decodes the JSON arguments produced by a model.
// An empty input is an empty mapping.
func ParseArguments(input string) (map[string]any, error) {
	bs := bytes.TrimSpace([]byte(input))
	if len(bs) == 0 {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(llmutils.CleanJSON(bs)))
	dec.UseNumber()

	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, NewValidationError("arguments must be a JSON object: %s", err.Error())
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// Result is the outcome of a tool invocation.
// Exactly one of Output or Error is set.
type Result struct {
	ID   string `json:"id" yaml:"id" toml:"id"`
	Tool string `json:"tool" yaml:"tool" toml:"tool"`
	// Output is the JSON encoded result of the operation.
	Output string `json:"output,omitempty" yaml:"output,omitempty" toml:"output,omitempty"`
	// Value is the decoded Output.
	Value any      `json:"-" yaml:"-" toml:"-"`
	Error *Failure `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
}

// OK returns true if the invocation succeeded.
func (r *Result) OK() bool {
	return r.Error == nil
}

// Content returns the text to be sent back to the model.
func (r *Result) Content() string {
	if r.Error != nil {
		return r.Error.Error()
	}
	return r.Output
}
