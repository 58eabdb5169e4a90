package callbacks

import (
	"context"
	"sync"

	"github.com/effective-security/toolbind/assistants"
	"github.com/effective-security/toolbind/pkg/llms"
	"github.com/effective-security/toolbind/pkg/llmutils"
	"github.com/effective-security/toolbind/tools"
)

// EventType is the type of a recorded event.
type EventType string

// Event types
const (
	EventAssistantStart EventType = "assistant_start"
	EventAssistantEnd   EventType = "assistant_end"
	EventAssistantError EventType = "assistant_error"
	EventLLMCallStart   EventType = "llm_call_start"
	EventLLMCallEnd     EventType = "llm_call_end"
	EventToolStart      EventType = "tool_start"
	EventToolEnd        EventType = "tool_end"
	EventToolError      EventType = "tool_error"
	EventToolNotFound   EventType = "tool_not_found"
)

// Event is a recorded notification.
type Event struct {
	Type    EventType
	Name    string
	Request *tools.Request
	Result  *tools.Result
	Err     error
}

// Stats are the counters of a Recorder.
type Stats struct {
	AssistantCalls       uint32
	AssistantCallsFailed uint32
	LLMCalls             uint32
	LLMBytesOut          uint64
	LLMBytesIn           uint64
	LLMInputTokens       uint64
	LLMOutputTokens      uint64
	ToolsCalls           uint32
	ToolsCallsSucceeded  uint32
	ToolsCallsFailed     uint32
	ToolNotFound         uint32
}

// Recorder keeps the received notifications in memory,
// so call and result pairs can be asserted or summarized.
type Recorder struct {
	lock   sync.Mutex
	events []Event
	stats  Stats
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]Event(nil), r.events...)
}

// EventsOf returns recorded events of the given type.
func (r *Recorder) EventsOf(typ EventType) []Event {
	r.lock.Lock()
	defer r.lock.Unlock()
	var list []Event
	for _, e := range r.events {
		if e.Type == typ {
			list = append(list, e)
		}
	}
	return list
}

// Stats returns the counters.
func (r *Recorder) Stats() Stats {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.stats
}

// Reset clears the recorded events and counters.
func (r *Recorder) Reset() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = nil
	r.stats = Stats{}
}

func (r *Recorder) add(e Event, update func(s *Stats)) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, e)
	if update != nil {
		update(&r.stats)
	}
}

func (r *Recorder) OnAssistantStart(ctx context.Context, a assistants.IAssistant, input string) {
	r.add(Event{Type: EventAssistantStart, Name: a.Name()}, func(s *Stats) {
		s.AssistantCalls++
	})
}

func (r *Recorder) OnAssistantEnd(ctx context.Context, a assistants.IAssistant, input string, resp *assistants.Response) {
	r.add(Event{Type: EventAssistantEnd, Name: a.Name()}, nil)
}

func (r *Recorder) OnAssistantError(ctx context.Context, a assistants.IAssistant, input string, err error) {
	r.add(Event{Type: EventAssistantError, Name: a.Name(), Err: err}, func(s *Stats) {
		s.AssistantCallsFailed++
	})
}

func (r *Recorder) OnAssistantLLMCallStart(ctx context.Context, a assistants.IAssistant, llm llms.Model, messages []llms.Message) {
	size := llmutils.CountMessagesContentSize(messages)
	r.add(Event{Type: EventLLMCallStart, Name: llm.GetName()}, func(s *Stats) {
		s.LLMCalls++
		s.LLMBytesOut += size
	})
}

func (r *Recorder) OnAssistantLLMCallEnd(ctx context.Context, a assistants.IAssistant, llm llms.Model, resp *llms.ContentResponse) {
	size := llmutils.CountResponseContentSize(resp)
	in, out, _ := llmutils.CountTokens(resp)
	r.add(Event{Type: EventLLMCallEnd, Name: llm.GetName()}, func(s *Stats) {
		s.LLMBytesIn += size
		s.LLMInputTokens += uint64(in)
		s.LLMOutputTokens += uint64(out)
	})
}

func (r *Recorder) OnToolStart(ctx context.Context, tool tools.ITool, req *tools.Request) {
	r.add(Event{Type: EventToolStart, Name: tool.Name(), Request: req}, func(s *Stats) {
		s.ToolsCalls++
	})
}

func (r *Recorder) OnToolEnd(ctx context.Context, tool tools.ITool, req *tools.Request, res *tools.Result) {
	r.add(Event{Type: EventToolEnd, Name: tool.Name(), Request: req, Result: res}, func(s *Stats) {
		s.ToolsCallsSucceeded++
	})
}

func (r *Recorder) OnToolError(ctx context.Context, tool tools.ITool, req *tools.Request, res *tools.Result) {
	r.add(Event{Type: EventToolError, Name: tool.Name(), Request: req, Result: res}, func(s *Stats) {
		s.ToolsCallsFailed++
	})
}

func (r *Recorder) OnToolNotFound(ctx context.Context, req *tools.Request) {
	r.add(Event{Type: EventToolNotFound, Name: req.Tool, Request: req}, func(s *Stats) {
		s.ToolNotFound++
	})
}
