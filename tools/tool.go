package tools

import (
	"context"

	"github.com/invopop/jsonschema"
)

// ITool is a tool for the llm agent to interact with different applications.
type ITool interface {
	// Name returns the name of the Tool.
	Name() string
	// Description returns the description of the tool, to be used in the prompt.
	// Should not exceed LLM model limit.
	Description() string
	// Parameters returns the parameters definition of the function, to be used in the prompt.
	Parameters() *jsonschema.Schema

	// Call executes the tool with the given JSON input and returns the JSON result.
	// If the tool fails to parse the input, it should return ErrFailedUnmarshalInput error.
	Call(context.Context, string) (string, error)
}

// Tool is an ITool with a typed entry point.
type Tool[I any, O any] interface {
	ITool
	Run(context.Context, *I) (*O, error)
}

// Callback receives tool lifecycle notifications.
// For each invocation OnToolStart is called once,
// followed by exactly one of OnToolEnd or OnToolError.
type Callback interface {
	OnToolStart(ctx context.Context, tool ITool, req *Request)
	OnToolEnd(ctx context.Context, tool ITool, req *Request, res *Result)
	OnToolError(ctx context.Context, tool ITool, req *Request, res *Result)
}

// NotFoundCallback is implemented by callbacks that want to be notified
// when a model asks for a tool that is not registered.
type NotFoundCallback interface {
	OnToolNotFound(ctx context.Context, req *Request)
}
