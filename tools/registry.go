package tools

import (
	"context"
	"reflect"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolbind/pkg/llmutils"
	"github.com/effective-security/toolbind/pkg/metricskey"
	"github.com/effective-security/toolbind/pkg/schema"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
)

// Registry is a set of tools addressable by name.
// It is populated at startup and safe for concurrent invocations.
type Registry struct {
	lock     sync.RWMutex
	byName   map[string]ITool
	list     []ITool
	callback Callback
}

// NewRegistry returns a registry with the given tools.
// cb receives notifications for every invocation, it may be nil.
func NewRegistry(cb Callback, list ...ITool) (*Registry, error) {
	r := &Registry{
		byName:   make(map[string]ITool),
		callback: cb,
	}
	if err := r.Register(list...); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds tools to the registry.
// Names are case-insensitive and must be unique.
func (r *Registry) Register(list ...ITool) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	for _, t := range list {
		if isNil(t) {
			return NewSchemaError("tool is not provided")
		}
		key := strings.ToLower(t.Name())
		if _, ok := r.byName[key]; ok {
			return NewSchemaError("tool %q is already registered", t.Name())
		}
		if err := schema.Check(t.Parameters()); err != nil {
			return errors.Mark(errors.WithMessagef(err, "tool %q", t.Name()), ErrSchema)
		}
		r.byName[key] = t
		r.list = append(r.list, t)
	}
	return nil
}

// Get returns the tool by name.
func (r *Registry) Get(name string) (ITool, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	t, ok := r.byName[strings.ToLower(name)]
	return t, ok
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []ITool {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return append([]ITool(nil), r.list...)
}

// Names returns the names of registered tools in registration order.
func (r *Registry) Names() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	names := make([]string, len(r.list))
	for i, t := range r.list {
		names[i] = t.Name()
	}
	return names
}

type toolDescription struct {
	Name        string `json:"Name" yaml:"Name"`
	Description string `json:"Description" yaml:"Description"`
}

type toolsDescription struct {
	Tools []toolDescription `json:"Tools" yaml:"Tools"`
}

// Descriptions returns the names and descriptions of the tools
// as a JSON block to be included in a prompt.
func (r *Registry) Descriptions() string {
	return GetDescriptions(r.Tools()...)
}

// GetDescriptions returns the names and descriptions of the tools
// as a JSON block to be included in a prompt.
func GetDescriptions(list ...ITool) string {
	var d toolsDescription
	for _, tool := range list {
		d.Tools = append(d.Tools, toolDescription{
			Name:        tool.Name(),
			Description: tool.Description(),
		})
	}
	return llmutils.BackticksJSON(llmutils.ToJSONIndent(d))
}

// Invoke runs the tool named in req.
// An unknown tool is reported as ValidationError listing the available tools,
// with the same start and error notifications as any failed invocation.
func (r *Registry) Invoke(ctx context.Context, req *Request) *Result {
	if req == nil {
		req = &Request{}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	tool, ok := r.Get(req.Tool)
	if !ok {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, req.Tool)
		logger.ContextKV(ctx, xlog.WARNING,
			"reason", "not_found",
			"tool", req.Tool,
			"id", req.ID,
		)
		if nf, ok := r.callback.(NotFoundCallback); ok {
			notify(ctx, req.Tool, "tool_not_found", func() { nf.OnToolNotFound(ctx, req) })
		}
		tool = &unknownTool{name: req.Tool, available: r.Names()}
	}

	return Invoke(ctx, tool, req, r.callback)
}

// unknownTool stands in for a tool that is not registered.
type unknownTool struct {
	name      string
	available []string
}

func (u *unknownTool) Name() string { return u.name }
func (u *unknownTool) Description() string { return "" }
func (u *unknownTool) Parameters() *jsonschema.Schema { return nil }

func (u *unknownTool) Call(context.Context, string) (string, error) {
	return "", u.err()
}

func (u *unknownTool) err() error {
	return NewValidationError("tool %q not found, available tools: %s", u.name, strings.Join(u.available, ", "))
}

func isNil(t ITool) bool {
	if t == nil {
		return true
	}
	v := reflect.ValueOf(t)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Func, reflect.Slice, reflect.Chan:
		return v.IsNil()
	}
	return false
}
