package advisor

import "github.com/fintrack/fintrack/provider"

// ToolCallAccumulator reassembles tool-call fragments from one streamed
// assistant turn. Fragments carry a positional index; a fragment for a new
// index opens a record, later fragments for the same index append to the
// arguments text. Records are kept in an index-addressed slice so ordering
// falls out for free.
type ToolCallAccumulator struct {
	calls []*provider.ToolCall
}

// NewToolCallAccumulator returns an empty accumulator for one turn.
func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{}
}

// Add folds one fragment into the accumulator.
func (a *ToolCallAccumulator) Add(d provider.ToolCallDelta) {
	if d.Index < 0 {
		return
	}
	for len(a.calls) <= d.Index {
		a.calls = append(a.calls, nil)
	}
	tc := a.calls[d.Index]
	if tc == nil {
		tc = &provider.ToolCall{}
		a.calls[d.Index] = tc
	}
	if d.ID != "" {
		tc.ID = d.ID
	}
	if d.Name != "" {
		tc.Name = d.Name
	}
	tc.Arguments += d.ArgumentsDelta
}

// Calls returns the completed tool calls in positional order. A turn with no
// tool-call fragments yields an empty slice, which callers treat as "no tool
// calls this turn".
func (a *ToolCallAccumulator) Calls() []provider.ToolCall {
	out := make([]provider.ToolCall, 0, len(a.calls))
	for _, tc := range a.calls {
		if tc == nil {
			continue
		}
		out = append(out, *tc)
	}
	return out
}
