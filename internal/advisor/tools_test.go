package advisor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fintrack/fintrack/internal/store"
)

type stubReader struct {
	transactions []store.Transaction
	goals        []store.Goal
	budgets      []store.Budget
	summary      store.FinancialSummary
	err          error

	lastLimit int
}

func (s *stubReader) ListTransactions(_ context.Context, _ string, limit int) ([]store.Transaction, error) {
	s.lastLimit = limit
	return s.transactions, s.err
}

func (s *stubReader) ListGoals(context.Context, string) ([]store.Goal, error) {
	return s.goals, s.err
}

func (s *stubReader) ListBudgets(context.Context, string) ([]store.Budget, error) {
	return s.budgets, s.err
}

func (s *stubReader) FinancialSummary(context.Context, string) (store.FinancialSummary, error) {
	return s.summary, s.err
}

func TestExecuteUnknownTool(t *testing.T) {
	reg := NewToolRegistry(&stubReader{})
	res := reg.Execute(context.Background(), "drop_tables", "{}", "u1")
	if res.Success {
		t.Fatal("expected failure for unknown tool")
	}
	if !strings.Contains(res.Error, "unknown tool") {
		t.Fatalf("unexpected error: %q", res.Error)
	}
}

func TestExecuteInvalidArguments(t *testing.T) {
	reg := NewToolRegistry(&stubReader{})
	res := reg.Execute(context.Background(), "read_transactions", `{"limit":`, "u1")
	if res.Success {
		t.Fatal("expected failure for truncated JSON arguments")
	}
}

func TestExecuteReaderError(t *testing.T) {
	reg := NewToolRegistry(&stubReader{err: errors.New("db down")})
	res := reg.Execute(context.Background(), "read_goals", "{}", "u1")
	if res.Success {
		t.Fatal("expected failure when reader errors")
	}
	if !strings.Contains(res.Error, "db down") {
		t.Fatalf("unexpected error: %q", res.Error)
	}
}

func TestReadTransactionsLimitDefaults(t *testing.T) {
	reader := &stubReader{}
	reg := NewToolRegistry(reader)

	reg.Execute(context.Background(), "read_transactions", "{}", "u1")
	if reader.lastLimit != defaultTransactionLimit {
		t.Fatalf("limit = %d, want default %d", reader.lastLimit, defaultTransactionLimit)
	}

	reg.Execute(context.Background(), "read_transactions", `{"limit":1000}`, "u1")
	if reader.lastLimit != defaultTransactionLimit {
		t.Fatalf("out-of-range limit not clamped: %d", reader.lastLimit)
	}

	reg.Execute(context.Background(), "read_transactions", `{"limit":5}`, "u1")
	if reader.lastLimit != 5 {
		t.Fatalf("limit = %d, want 5", reader.lastLimit)
	}
}

func TestProposeSavingGoal(t *testing.T) {
	reg := NewToolRegistry(&stubReader{})

	res := reg.Execute(context.Background(), "propose_saving_goal",
		`{"name":"Emergency fund","targetAmount":6000000,"monthlyAmount":500000}`, "u1")
	if !res.Success {
		t.Fatalf("unexpected failure: %q", res.Error)
	}
	goal, ok := res.Data.(*ProposedGoal)
	if !ok {
		t.Fatalf("data type = %T, want *ProposedGoal", res.Data)
	}
	if goal.Name != "Emergency fund" || goal.TargetAmount != 6000000 {
		t.Fatalf("unexpected goal: %+v", goal)
	}

	res = reg.Execute(context.Background(), "propose_saving_goal", `{"targetAmount":100}`, "u1")
	if res.Success {
		t.Fatal("expected failure for goal without a name")
	}
}

func TestProposeBudgetLimits(t *testing.T) {
	reg := NewToolRegistry(&stubReader{})

	res := reg.Execute(context.Background(), "propose_budget_limits",
		`{"limits":[{"category":"Food & Drinks","suggestedLimit":500000,"reasoning":"dining out dominates spending"}]}`, "u1")
	if !res.Success {
		t.Fatalf("unexpected failure: %q", res.Error)
	}
	limits, ok := res.Data.([]ProposedBudgetLimit)
	if !ok {
		t.Fatalf("data type = %T, want []ProposedBudgetLimit", res.Data)
	}
	if len(limits) != 1 || limits[0].Category != "Food & Drinks" || limits[0].SuggestedLimit != 500000 {
		t.Fatalf("unexpected limits: %+v", limits)
	}

	res = reg.Execute(context.Background(), "propose_budget_limits", `{"limits":[]}`, "u1")
	if res.Success {
		t.Fatal("expected failure for empty limits")
	}
	res = reg.Execute(context.Background(), "propose_budget_limits",
		`{"limits":[{"category":"Food","suggestedLimit":-5}]}`, "u1")
	if res.Success {
		t.Fatal("expected failure for non-positive limit")
	}
}

func TestSearchTransactions(t *testing.T) {
	reader := &stubReader{transactions: []store.Transaction{
		{ID: "t1", Kind: store.TransactionExpense, Amount: 120000, Category: "Food & Drinks", Note: "coffee with team", OccurredAt: time.Now()},
		{ID: "t2", Kind: store.TransactionExpense, Amount: 300000, Category: "Transport", Note: "monthly train pass", OccurredAt: time.Now()},
	}}
	reg := NewToolRegistry(reader)

	res := reg.Execute(context.Background(), "search_transactions", `{"query":"coffee"}`, "u1")
	if !res.Success {
		t.Fatalf("unexpected failure: %q", res.Error)
	}
	hits, ok := res.Data.([]store.Transaction)
	if !ok {
		t.Fatalf("data type = %T, want []store.Transaction", res.Data)
	}
	if len(hits) != 1 || hits[0].ID != "t1" {
		t.Fatalf("unexpected hits: %+v", hits)
	}

	res = reg.Execute(context.Background(), "search_transactions", `{}`, "u1")
	if res.Success {
		t.Fatal("expected failure for missing query")
	}
}

func TestDefinitionsCoverHandlers(t *testing.T) {
	reg := NewToolRegistry(&stubReader{})
	defs := reg.Definitions()
	if len(defs) != len(reg.handlers) {
		t.Fatalf("definitions = %d, handlers = %d", len(defs), len(reg.handlers))
	}
	for _, def := range defs {
		if _, ok := reg.handlers[def.Name]; !ok {
			t.Fatalf("definition %q has no handler", def.Name)
		}
	}
}
