package advisor

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/fintrack/fintrack/internal/store"
	"github.com/fintrack/fintrack/provider"
	"github.com/fintrack/fintrack/session"
)

// scriptedClient replays one scripted event slice per StreamChat call and
// repeats the last script when the conversation outruns it.
type scriptedClient struct {
	turns       [][]provider.StreamEvent
	failAt      int // 1-based call index that returns failErr, 0 disables
	failErr     error
	calls       int
	transcripts [][]provider.Message
}

func (c *scriptedClient) StreamChat(_ context.Context, msgs []provider.Message, _ []provider.ToolDefinition, onEvent func(provider.StreamEvent)) error {
	c.calls++
	c.transcripts = append(c.transcripts, msgs)
	if c.failAt != 0 && c.calls == c.failAt {
		return c.failErr
	}
	idx := c.calls - 1
	if idx >= len(c.turns) {
		idx = len(c.turns) - 1
	}
	for _, ev := range c.turns[idx] {
		onEvent(ev)
	}
	return nil
}

// clientFunc adapts a function to provider.CompletionClient for tests that
// need to inspect the transcript before answering.
type clientFunc func(ctx context.Context, msgs []provider.Message, tools []provider.ToolDefinition, onEvent func(provider.StreamEvent)) error

func (f clientFunc) StreamChat(ctx context.Context, msgs []provider.Message, tools []provider.ToolDefinition, onEvent func(provider.StreamEvent)) error {
	return f(ctx, msgs, tools, onEvent)
}

type planRecorder struct {
	updates []store.PlanUpdate
}

func (p *planRecorder) UpdateSavingsPlan(_ context.Context, _ string, upd store.PlanUpdate) error {
	p.updates = append(p.updates, upd)
	return nil
}

func (p *planRecorder) lastStatus() string {
	for i := len(p.updates) - 1; i >= 0; i-- {
		if p.updates[i].StreamingStatus != nil {
			return *p.updates[i].StreamingStatus
		}
	}
	return ""
}

func contentEvents(text string) []provider.StreamEvent {
	return []provider.StreamEvent{
		{ContentDelta: text},
		{FinishReason: "stop"},
	}
}

func toolCallEvents(id, name, args string) []provider.StreamEvent {
	return []provider.StreamEvent{
		{ToolCallDelta: &provider.ToolCallDelta{Index: 0, ID: id, Name: name}},
		{ToolCallDelta: &provider.ToolCallDelta{Index: 0, ArgumentsDelta: args}},
		{FinishReason: "tool_calls"},
	}
}

func newTestOrchestrator(t *testing.T, client provider.CompletionClient, maxIterations int) (*Orchestrator, *planRecorder, *session.Registry) {
	t.Helper()
	plans := &planRecorder{}
	registry := session.NewRegistry(time.Minute, time.Minute)
	t.Cleanup(registry.Shutdown)
	o := NewOrchestrator(client, NewToolRegistry(&stubReader{}), plans, registry, maxIterations, 0)
	return o, plans, registry
}

func TestRunSingleTurnCompletes(t *testing.T) {
	client := &scriptedClient{turns: [][]provider.StreamEvent{
		contentEvents("Track your spending weekly and you should save 750,000 per month."),
	}}
	o, plans, registry := newTestOrchestrator(t, client, 10)

	sess, err := registry.Start("plan-1")
	if err != nil {
		t.Fatal(err)
	}
	o.Run(context.Background(), sess, Request{Goal: "vacation", Intensity: IntensityIdeal, UserID: "u1"})

	if got := sess.Status(); got != session.StatusCompleted {
		t.Fatalf("status = %s, want completed", got)
	}
	if client.calls != 1 {
		t.Fatalf("calls = %d, want 1", client.calls)
	}
	if plans.lastStatus() != store.PlanStatusCompleted {
		t.Fatalf("persisted status = %q, want completed", plans.lastStatus())
	}

	outcome, ok := sess.Result().(Outcome)
	if !ok {
		t.Fatalf("result type = %T, want Outcome", sess.Result())
	}
	if outcome.SuggestedSavings != 750000 {
		t.Fatalf("suggested savings = %v, want parsed 750000", outcome.SuggestedSavings)
	}
	if !strings.Contains(outcome.MarkdownAdvice, "Track your spending") {
		t.Fatalf("advice not carried: %q", outcome.MarkdownAdvice)
	}
}

func TestRunRequestTargetWinsOverParsedAmount(t *testing.T) {
	client := &scriptedClient{turns: [][]provider.StreamEvent{
		contentEvents("You could save 750,000 per month."),
	}}
	o, _, registry := newTestOrchestrator(t, client, 10)

	sess, _ := registry.Start("plan-2")
	o.Run(context.Background(), sess, Request{Goal: "house", TargetMonthlySavings: 2000000, Intensity: IntensityMustAchieve, UserID: "u1"})

	outcome := sess.Result().(Outcome)
	if outcome.SuggestedSavings != 2000000 {
		t.Fatalf("suggested savings = %v, want request target 2000000", outcome.SuggestedSavings)
	}
}

func TestRunFallbackSavingsWhenNothingParses(t *testing.T) {
	client := &scriptedClient{turns: [][]provider.StreamEvent{
		contentEvents("Spend less than you earn."),
	}}
	o, _, registry := newTestOrchestrator(t, client, 10)

	sess, _ := registry.Start("plan-3")
	o.Run(context.Background(), sess, Request{Goal: "buffer", Intensity: IntensityJustStarting, UserID: "u1"})

	outcome := sess.Result().(Outcome)
	if outcome.SuggestedSavings != DefaultFallbackSavings {
		t.Fatalf("suggested savings = %v, want fallback %d", outcome.SuggestedSavings, DefaultFallbackSavings)
	}
}

func TestRunToolRoundTrip(t *testing.T) {
	client := &scriptedClient{turns: [][]provider.StreamEvent{
		toolCallEvents("call_1", "propose_saving_goal", `{"name":"Emergency fund","targetAmount":6000000}`),
		contentEvents("Built a goal proposal for you."),
	}}
	o, _, registry := newTestOrchestrator(t, client, 10)

	sess, _ := registry.Start("plan-4")
	o.Run(context.Background(), sess, Request{Goal: "safety net", Intensity: IntensityIdeal, UserID: "u1"})

	if client.calls != 2 {
		t.Fatalf("calls = %d, want 2", client.calls)
	}

	second := client.transcripts[1]
	last := second[len(second)-1]
	if last.Role != "tool" || last.ToolCallID != "call_1" {
		t.Fatalf("tool result not appended to transcript: %+v", last)
	}
	if !strings.Contains(last.Content, `"success":true`) {
		t.Fatalf("tool message content: %q", last.Content)
	}

	outcome := sess.Result().(Outcome)
	if outcome.ProposedGoal == nil || outcome.ProposedGoal.Name != "Emergency fund" {
		t.Fatalf("proposed goal not captured: %+v", outcome.ProposedGoal)
	}
}

func TestRunIterationCapCompletesWithPartialOutput(t *testing.T) {
	client := &scriptedClient{turns: [][]provider.StreamEvent{
		toolCallEvents("call_1", "read_goals", "{}"),
	}}
	o, plans, registry := newTestOrchestrator(t, client, 3)

	sess, _ := registry.Start("plan-5")
	o.Run(context.Background(), sess, Request{Goal: "loop", Intensity: IntensityIdeal, UserID: "u1"})

	if client.calls != 3 {
		t.Fatalf("calls = %d, want cap 3", client.calls)
	}
	if got := sess.Status(); got != session.StatusCompleted {
		t.Fatalf("status = %s, want completed despite cap", got)
	}
	if plans.lastStatus() != store.PlanStatusCompleted {
		t.Fatalf("persisted status = %q, want completed", plans.lastStatus())
	}

	var capNoted bool
	for _, line := range sess.Progress() {
		if strings.Contains(line, "analysis budget exhausted") {
			capNoted = true
		}
	}
	if !capNoted {
		t.Fatalf("cap not surfaced in progress: %v", sess.Progress())
	}
}

func TestRunTransportErrorFailsPlan(t *testing.T) {
	cause := &provider.TransportError{Status: 429, Err: errors.New("rate limited")}
	client := &scriptedClient{failAt: 1, failErr: cause}
	o, plans, registry := newTestOrchestrator(t, client, 10)

	sess, _ := registry.Start("plan-6")
	o.Run(context.Background(), sess, Request{Goal: "anything", Intensity: IntensityIdeal, UserID: "u1"})

	if got := sess.Status(); got != session.StatusFailed {
		t.Fatalf("status = %s, want failed", got)
	}
	if plans.lastStatus() != store.PlanStatusFailed {
		t.Fatalf("persisted status = %q, want failed", plans.lastStatus())
	}

	var errSet bool
	for _, upd := range plans.updates {
		if upd.Error != nil && strings.Contains(*upd.Error, "429") {
			errSet = true
		}
	}
	if !errSet {
		t.Fatal("failure cause not persisted")
	}

	outcome := sess.Result().(Outcome)
	if outcome.Error == "" {
		t.Fatal("failure cause not stashed on session")
	}
}

func TestRunExtractsTaggedBudgetLimits(t *testing.T) {
	tagPattern := regexp.MustCompile(`<(budget_proposal_[0-9a-f]+)>`)
	client := clientFunc(func(_ context.Context, msgs []provider.Message, _ []provider.ToolDefinition, onEvent func(provider.StreamEvent)) error {
		m := tagPattern.FindStringSubmatch(msgs[0].Content)
		if m == nil {
			return errors.New("system prompt carries no payload tag")
		}
		tag := m[1]
		onEvent(provider.StreamEvent{ContentDelta: "Cut dining out.\n<" + tag + ">\n"})
		onEvent(provider.StreamEvent{ContentDelta: `[{"category":"Food & Drinks","suggestedLimit":500000,"reasoning":"largest category"}]`})
		onEvent(provider.StreamEvent{ContentDelta: "\n</" + tag + ">"})
		onEvent(provider.StreamEvent{FinishReason: "stop"})
		return nil
	})
	o, _, registry := newTestOrchestrator(t, client, 10)

	sess, _ := registry.Start("plan-7")
	o.Run(context.Background(), sess, Request{Goal: "trim food", Intensity: IntensityMustAchieve, UserID: "u1"})

	outcome := sess.Result().(Outcome)
	if len(outcome.ProposedBudgetLimits) != 1 {
		t.Fatalf("limits = %+v, want one extracted entry", outcome.ProposedBudgetLimits)
	}
	if outcome.ProposedBudgetLimits[0].Category != "Food & Drinks" || outcome.ProposedBudgetLimits[0].SuggestedLimit != 500000 {
		t.Fatalf("unexpected limit: %+v", outcome.ProposedBudgetLimits[0])
	}
}

func TestParseSuggestedSavings(t *testing.T) {
	cases := []struct {
		text string
		want float64
		ok   bool
	}{
		{"You should save 750,000 every month.", 750000, true},
		{"Set aside about 1.200.000 monthly.", 1200000, true},
		{"Saving consistently matters more than the amount.", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseSuggestedSavings(tc.text)
		if ok != tc.ok || got != tc.want {
			t.Errorf("parseSuggestedSavings(%q) = %v,%v want %v,%v", tc.text, got, ok, tc.want, tc.ok)
		}
	}
}
