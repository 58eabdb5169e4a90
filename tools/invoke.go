package tools

import (
	"context"
	"encoding/json"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolbind/pkg/metricskey"
	"github.com/effective-security/toolbind/pkg/schema"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

// Invoke decodes and validates the request arguments against the tool schema,
// runs the tool and returns the normalized result.
// It never panics and never returns a nil Result.
// cb may be nil.
func Invoke(ctx context.Context, tool ITool, req *Request, cb Callback) *Result {
	if req == nil {
		req = &Request{}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Tool == "" {
		req.Tool = tool.Name()
	}

	name := tool.Name()
	started := time.Now()
	defer metricskey.PerfToolCall.MeasureSince(started, name)

	if cb != nil {
		notify(ctx, name, "tool_start", func() { cb.OnToolStart(ctx, tool, req) })
	}

	res := &Result{
		ID:   req.ID,
		Tool: name,
	}

	out, err := execute(ctx, tool, req)
	if err != nil {
		res.Error = failureOf(err)
		metricskey.StatsToolCallsFailed.IncrCounter(1, name, string(res.Error.Kind))

		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "tool_failed",
			"tool", name,
			"id", req.ID,
			"kind", res.Error.Kind,
			"err", res.Error.Message,
			"elapsed", time.Since(started).String(),
		)
		if cb != nil {
			notify(ctx, name, "tool_error", func() { cb.OnToolError(ctx, tool, req, res) })
		}
		return res
	}

	res.Output = out
	var val any
	if json.Unmarshal([]byte(out), &val) == nil {
		res.Value = val
	}
	metricskey.StatsToolCallsSucceeded.IncrCounter(1, name)

	if cb != nil {
		notify(ctx, name, "tool_end", func() { cb.OnToolEnd(ctx, tool, req, res) })
	}
	return res
}

// notify runs an observer, a panicking observer is logged and ignored.
func notify(ctx context.Context, tool, event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.ContextKV(ctx, xlog.ERROR,
				"reason", "callback_panic",
				"event", event,
				"tool", tool,
				"panic", r,
			)
		}
	}()
	fn()
}

func execute(ctx context.Context, tool ITool, req *Request) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.ContextKV(ctx, xlog.ERROR,
				"reason", "panic",
				"tool", tool.Name(),
				"panic", r,
			)
			err = NewExecutionError("tool %q panicked: %v", tool.Name(), r)
		}
	}()

	if u, ok := tool.(*unknownTool); ok {
		return "", u.err()
	}

	args := req.Arguments
	if args == nil {
		args, err = ParseArguments(req.RawArguments)
		if err != nil {
			return "", err
		}
		req.Arguments = args
	}

	if verr := schema.Validate(tool.Parameters(), args); verr != nil {
		return "", errors.Mark(verr, ErrValidation)
	}

	js, err := json.Marshal(integralNumbers(args))
	if err != nil {
		return "", NewValidationError("failed to encode arguments: %s", err.Error())
	}

	return tool.Call(ctx, string(js))
}

// integralNumbers rewrites integral JSON numbers such as 2.0 or 1e2
// in their integer form, so they decode into Go integer fields.
func integralNumbers(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = integralNumbers(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = integralNumbers(item)
		}
		return out
	case json.Number:
		if !strings.ContainsAny(string(val), ".eE") {
			return val
		}
		f, ok := new(big.Float).SetString(string(val))
		if !ok || !f.IsInt() {
			return val
		}
		if i, acc := f.Int64(); acc == big.Exact {
			return json.Number(strconv.FormatInt(i, 10))
		}
	}
	return v
}
