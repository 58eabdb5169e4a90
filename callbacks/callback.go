package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/toolbind/assistants"
	"github.com/effective-security/toolbind/pkg/llms"
	"github.com/effective-security/toolbind/pkg/llmutils"
	"github.com/effective-security/toolbind/tools"
	"github.com/effective-security/xlog"
)

// Handler receives both assistant and tool notifications.
type Handler interface {
	assistants.Callback
	tools.Callback
	tools.NotFoundCallback
}

// ensure that the callbacks implement the correct interfaces
var (
	_ Handler = (*Printer)(nil)
	_ Handler = (*PackageLogger)(nil)
	_ Handler = (*Fanout)(nil)
	_ Handler = (*Recorder)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []Handler
}

func NewFanout(callbacks ...Handler) *Fanout {
	return &Fanout{callbacks: callbacks}
}

// Add appends a callback, it must be called before the Fanout is in use.
func (l *Fanout) Add(callback Handler) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnAssistantStart(ctx context.Context, a assistants.IAssistant, input string) {
	for _, callback := range l.callbacks {
		callback.OnAssistantStart(ctx, a, input)
	}
}

func (l *Fanout) OnAssistantEnd(ctx context.Context, a assistants.IAssistant, input string, resp *assistants.Response) {
	for _, callback := range l.callbacks {
		callback.OnAssistantEnd(ctx, a, input, resp)
	}
}

func (l *Fanout) OnAssistantError(ctx context.Context, a assistants.IAssistant, input string, err error) {
	for _, callback := range l.callbacks {
		callback.OnAssistantError(ctx, a, input, err)
	}
}

func (l *Fanout) OnAssistantLLMCallStart(ctx context.Context, a assistants.IAssistant, llm llms.Model, messages []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnAssistantLLMCallStart(ctx, a, llm, messages)
	}
}

func (l *Fanout) OnAssistantLLMCallEnd(ctx context.Context, a assistants.IAssistant, llm llms.Model, resp *llms.ContentResponse) {
	for _, callback := range l.callbacks {
		callback.OnAssistantLLMCallEnd(ctx, a, llm, resp)
	}
}

func (l *Fanout) OnToolStart(ctx context.Context, tool tools.ITool, req *tools.Request) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, tool, req)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, tool tools.ITool, req *tools.Request, res *tools.Result) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, tool, req, res)
	}
}

func (l *Fanout) OnToolError(ctx context.Context, tool tools.ITool, req *tools.Request, res *tools.Result) {
	for _, callback := range l.callbacks {
		callback.OnToolError(ctx, tool, req, res)
	}
}

func (l *Fanout) OnToolNotFound(ctx context.Context, req *tools.Request) {
	for _, callback := range l.callbacks {
		callback.OnToolNotFound(ctx, req)
	}
}

// Printer is a callback handler that prints to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnAssistantStart(ctx context.Context, a assistants.IAssistant, input string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Assistant Start: %s\n", a.Name())
	fmt.Fprintf(l.Out, "Input: %s\n", input)
}

func (l *Printer) OnAssistantEnd(ctx context.Context, a assistants.IAssistant, input string, resp *assistants.Response) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Assistant End: %s, %d tool calls\n", a.Name(), len(resp.Executions))
	if l.Mode == ModeVerbose && resp.Content != "" {
		fmt.Fprint(l.Out, llmutils.EnsureEndsWithNewline(resp.Content))
	}
}

func (l *Printer) OnAssistantError(ctx context.Context, a assistants.IAssistant, input string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Assistant Error: %s: %s\n", a.Name(), err.Error())
}

func (l *Printer) OnAssistantLLMCallStart(ctx context.Context, a assistants.IAssistant, llm llms.Model, messages []llms.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "LLM Call: %s: %s model, %d messages\n", a.Name(), llm.GetName(), len(messages))
	if l.Mode == ModeVerbose {
		llmutils.PrintMessages(l.Out, messages)
	}
}

func (l *Printer) OnAssistantLLMCallEnd(ctx context.Context, a assistants.IAssistant, llm llms.Model, resp *llms.ContentResponse) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "LLM Call End: %s: %s model, %d choices\n", a.Name(), llm.GetName(), len(resp.Choices))
	for _, choice := range resp.Choices {
		for _, tc := range choice.ToolCalls {
			fmt.Fprintln(l.Out, tc.String())
		}
	}
}

func (l *Printer) OnToolStart(ctx context.Context, tool tools.ITool, req *tools.Request) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Start: %s [%s]\n", tool.Name(), req.ID)
	fmt.Fprintf(l.Out, "Input: %s\n", req.ArgumentsJSON())
}

func (l *Printer) OnToolEnd(ctx context.Context, tool tools.ITool, req *tools.Request, res *tools.Result) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool End: %s [%s]\n", tool.Name(), req.ID)
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Output: %s\n", llmutils.JSONIndent(res.Output))
	}
}

func (l *Printer) OnToolError(ctx context.Context, tool tools.ITool, req *tools.Request, res *tools.Result) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Error: %s [%s]: %s\n", tool.Name(), req.ID, res.Content())
}

func (l *Printer) OnToolNotFound(ctx context.Context, req *tools.Request) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Not Found: %s\n", req.Tool)
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnAssistantStart(ctx context.Context, a assistants.IAssistant, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "assistant_start",
		"assistant", a.Name(),
		"input", input,
	)
}

func (l *PackageLogger) OnAssistantEnd(ctx context.Context, a assistants.IAssistant, input string, resp *assistants.Response) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "assistant_end",
		"assistant", a.Name(),
		"tool_calls", len(resp.Executions),
	)
	if resp.Content != "" {
		l.logger.ContextKV(ctx, xlog.DEBUG, "result", resp.Content)
	}
}

func (l *PackageLogger) OnAssistantError(ctx context.Context, a assistants.IAssistant, input string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "assistant_error",
		"assistant", a.Name(),
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnAssistantLLMCallStart(ctx context.Context, a assistants.IAssistant, llm llms.Model, messages []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "assistant_llm_call_start",
		"assistant", a.Name(),
		"model", llm.GetName(),
		"messages", len(messages),
	)
}

func (l *PackageLogger) OnAssistantLLMCallEnd(ctx context.Context, a assistants.IAssistant, llm llms.Model, resp *llms.ContentResponse) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "assistant_llm_call_end",
		"assistant", a.Name(),
		"model", llm.GetName(),
		"choices", len(resp.Choices),
	)
}

func (l *PackageLogger) OnToolStart(ctx context.Context, tool tools.ITool, req *tools.Request) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"tool", tool.Name(),
		"id", req.ID,
		"input", req.ArgumentsJSON(),
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, tool tools.ITool, req *tools.Request, res *tools.Result) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"tool", tool.Name(),
		"id", req.ID,
		"output", res.Output,
	)
}

func (l *PackageLogger) OnToolError(ctx context.Context, tool tools.ITool, req *tools.Request, res *tools.Result) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"tool", tool.Name(),
		"id", req.ID,
		"kind", res.Error.Kind,
		"err", res.Error.Message,
	)
}

func (l *PackageLogger) OnToolNotFound(ctx context.Context, req *tools.Request) {
	l.logger.ContextKV(ctx, xlog.WARNING,
		"event", "tool_not_found",
		"tool", req.Tool,
		"id", req.ID,
	)
}
