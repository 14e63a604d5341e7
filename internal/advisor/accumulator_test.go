package advisor

import (
	"testing"

	"github.com/fintrack/fintrack/provider"
)

func TestAccumulatorReassemblesFragments(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.Add(provider.ToolCallDelta{Index: 0, ID: "call_1", Name: "read_transactions"})
	acc.Add(provider.ToolCallDelta{Index: 0, ArgumentsDelta: `{"lim`})
	acc.Add(provider.ToolCallDelta{Index: 0, ArgumentsDelta: `it":20}`})

	calls := acc.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if calls[0].ID != "call_1" || calls[0].Name != "read_transactions" {
		t.Fatalf("call = %+v", calls[0])
	}
	if calls[0].Arguments != `{"limit":20}` {
		t.Fatalf("arguments = %q", calls[0].Arguments)
	}
}

func TestAccumulatorInterleavedIndexes(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.Add(provider.ToolCallDelta{Index: 1, ID: "call_b", Name: "read_goals", ArgumentsDelta: "{"})
	acc.Add(provider.ToolCallDelta{Index: 0, ID: "call_a", Name: "read_budgets", ArgumentsDelta: "{}"})
	acc.Add(provider.ToolCallDelta{Index: 1, ArgumentsDelta: "}"})

	calls := acc.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if calls[0].ID != "call_a" || calls[1].ID != "call_b" {
		t.Fatalf("order = [%s, %s], want [call_a, call_b]", calls[0].ID, calls[1].ID)
	}
	if calls[1].Arguments != "{}" {
		t.Fatalf("call_b arguments = %q", calls[1].Arguments)
	}
}

func TestAccumulatorEmptyTurn(t *testing.T) {
	acc := NewToolCallAccumulator()
	if calls := acc.Calls(); len(calls) != 0 {
		t.Fatalf("calls = %d, want 0", len(calls))
	}
}

func TestAccumulatorSparseIndexes(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.Add(provider.ToolCallDelta{Index: 2, ID: "call_c", Name: "get_financial_summary", ArgumentsDelta: "{}"})

	calls := acc.Calls()
	if len(calls) != 1 || calls[0].ID != "call_c" {
		t.Fatalf("calls = %+v", calls)
	}
}
