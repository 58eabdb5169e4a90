package assistants

import (
	"context"

	"github.com/effective-security/toolbind/pkg/llms"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolbind", "assistants")

//go:generate mockgen -destination=../mocks/mockllms/llm_mock.gen.go -package mockllms github.com/effective-security/toolbind/pkg/llms Model

// IAssistant is the identity of an assistant, as reported to callbacks.
type IAssistant interface {
	// Name returns the name of the Assistant.
	Name() string
	// Description returns the description of the Assistant.
	Description() string
}

// Callback receives assistant and model call notifications.
// Tool notifications are delivered by the tools.Registry callback.
type Callback interface {
	OnAssistantStart(ctx context.Context, a IAssistant, input string)
	OnAssistantEnd(ctx context.Context, a IAssistant, input string, resp *Response)
	OnAssistantError(ctx context.Context, a IAssistant, input string, err error)
	OnAssistantLLMCallStart(ctx context.Context, a IAssistant, llm llms.Model, messages []llms.Message)
	OnAssistantLLMCallEnd(ctx context.Context, a IAssistant, llm llms.Model, resp *llms.ContentResponse)
}
