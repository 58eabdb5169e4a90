// Package calculator provides a local multiplication tool.
package calculator

import (
	"context"

	"github.com/effective-security/toolbind/tools"
)

// ToolName is the name of the multiplication tool
const ToolName = "multiply"

// MultiplyRequest represents the tool input.
type MultiplyRequest struct {
	A float64 `json:"a" yaml:"a" jsonschema:"title=A,description=The first number to multiply."`
	B float64 `json:"b" yaml:"b" jsonschema:"title=B,description=The second number to multiply."`
}

// Multiply returns a*b.
func Multiply(_ context.Context, req *MultiplyRequest) (*float64, error) {
	res := req.A * req.B
	return &res, nil
}

// New returns the multiplication tool.
func New() (*tools.Function[MultiplyRequest, float64], error) {
	return tools.New(ToolName, "Multiply two numbers and return the product.", Multiply)
}
