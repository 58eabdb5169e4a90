// Package container wires the tooldemo services using go.uber.org/dig.
// Services are built on first use, so commands that do not talk to a model
// do not need model credentials.
package container

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolbind/assistants"
	"github.com/effective-security/toolbind/callbacks"
	"github.com/effective-security/toolbind/internal/config"
	"github.com/effective-security/toolbind/mcpserver"
	"github.com/effective-security/toolbind/pkg/llmfactory"
	"github.com/effective-security/toolbind/tools"
	"github.com/effective-security/toolbind/tools/calculator"
	"github.com/effective-security/toolbind/tools/numverify"
	"github.com/effective-security/xlog"
	"go.uber.org/dig"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolbind", "container")

// Output is the destination of the callback printer.
type Output struct {
	Writer io.Writer
	Mode   callbacks.Mode
}

// Container resolves the application services.
type Container struct {
	d *dig.Container
}

// New registers the service constructors for cfg.
func New(cfg *config.Config, out Output) (*Container, error) {
	d := dig.New()

	providers := []any{
		func() *config.Config { return cfg },
		func() Output { return out },
		newCallbacks,
		newRegistry,
		newFactory,
		newAssistant,
		newMCPServer,
	}
	for _, p := range providers {
		if err := d.Provide(p); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	return &Container{d: d}, nil
}

// Callbacks returns the handler shared by the registry and the assistant.
func (c *Container) Callbacks() (*callbacks.Fanout, error) {
	return resolve[*callbacks.Fanout](c.d)
}

// Registry returns the tool registry.
func (c *Container) Registry() (*tools.Registry, error) {
	return resolve[*tools.Registry](c.d)
}

// Factory returns the model factory.
func (c *Container) Factory() (llmfactory.Factory, error) {
	return resolve[llmfactory.Factory](c.d)
}

// Assistant returns the assistant bound to the registry tools.
func (c *Container) Assistant() (*assistants.Assistant, error) {
	return resolve[*assistants.Assistant](c.d)
}

// MCPServer returns the MCP server of the registry tools.
func (c *Container) MCPServer() (*mcpserver.Server, error) {
	return resolve[*mcpserver.Server](c.d)
}

func resolve[T any](d *dig.Container) (T, error) {
	var res T
	err := d.Invoke(func(v T) {
		res = v
	})
	if err != nil {
		// dig wraps the constructor error with the dependency path
		return res, errors.WithStack(dig.RootCause(err))
	}
	return res, nil
}

func newCallbacks(out Output) *callbacks.Fanout {
	fanout := callbacks.NewFanout(callbacks.NewPackageLogger(logger))
	if out.Writer != nil {
		fanout.Add(callbacks.NewPrinter(out.Writer, out.Mode))
	}
	return fanout
}

func newRegistry(cfg *config.Config, cb *callbacks.Fanout) (*tools.Registry, error) {
	lookup, err := numverify.New(cfg.Numverify)
	if err != nil {
		return nil, err
	}
	multiply, err := calculator.New()
	if err != nil {
		return nil, err
	}
	return tools.NewRegistry(cb, lookup, multiply)
}

func newFactory(cfg *config.Config) llmfactory.Factory {
	return llmfactory.New(&cfg.LLM)
}

func newAssistant(cfg *config.Config, f llmfactory.Factory, registry *tools.Registry, cb *callbacks.Fanout) (*assistants.Assistant, error) {
	model, err := f.AssistantModel(cfg.Assistant.Name)
	if err != nil {
		return nil, err
	}

	logger.KV(xlog.DEBUG,
		"status", "assistant_model",
		"assistant", cfg.Assistant.Name,
		"provider", model.GetProviderType(),
		"model", model.GetName(),
	)

	opts := []assistants.Option{
		assistants.WithCallback(cb),
		assistants.WithFollowUp(cfg.Assistant.FollowUp),
		assistants.WithTemperature(cfg.Assistant.Temperature),
	}
	if cfg.Assistant.MaxToolRounds > 0 {
		opts = append(opts, assistants.WithMaxToolRounds(cfg.Assistant.MaxToolRounds))
	}

	a := assistants.NewAssistant(model, registry, opts...).
		WithName(cfg.Assistant.Name)
	if cfg.Assistant.SystemPrompt != "" {
		a.WithSystemPrompt(cfg.Assistant.SystemPrompt)
	}
	return a, nil
}

func newMCPServer(registry *tools.Registry) (*mcpserver.Server, error) {
	return mcpserver.New(registry)
}
