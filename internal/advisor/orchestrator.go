package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/fintrack/fintrack/internal/store"
	"github.com/fintrack/fintrack/provider"
	"github.com/fintrack/fintrack/session"
)

// DefaultMaxIterations bounds the conversation loop when the config leaves it
// unset.
const DefaultMaxIterations = 10

// DefaultFallbackSavings is the suggested monthly savings used when neither
// the request nor the model's advice yields an amount.
const DefaultFallbackSavings = 500000

// PlanWriter persists generation state. *store.Store satisfies it.
type PlanWriter interface {
	UpdateSavingsPlan(ctx context.Context, id string, upd store.PlanUpdate) error
}

// Outcome is the final product of one generation, stashed on the session so
// stream subscribers get the result without re-reading the store.
type Outcome struct {
	SuggestedSavings     float64               `json:"suggested_savings"`
	MarkdownAdvice       string                `json:"markdown_advice"`
	ProposedGoal         *ProposedGoal         `json:"proposed_goal,omitempty"`
	ProposedBudgetLimits []ProposedBudgetLimit `json:"proposed_budget_limits,omitempty"`
	Error                string                `json:"error,omitempty"`
}

// Orchestrator drives one savings-plan generation: it loops the completion
// stream against the tool registry, mirrors progress into the session and the
// plan row, and settles the plan into a terminal status exactly once.
type Orchestrator struct {
	client          provider.CompletionClient
	tools           *ToolRegistry
	plans           PlanWriter
	registry        *session.Registry
	logger          *log.Logger
	maxIterations   int
	fallbackSavings float64
}

func NewOrchestrator(client provider.CompletionClient, tools *ToolRegistry, plans PlanWriter, registry *session.Registry, maxIterations int, fallbackSavings float64) *Orchestrator {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if fallbackSavings <= 0 {
		fallbackSavings = DefaultFallbackSavings
	}
	return &Orchestrator{
		client:          client,
		tools:           tools,
		plans:           plans,
		registry:        registry,
		logger:          log.New(log.Writer(), "[ADVISOR] ", log.LstdFlags),
		maxIterations:   maxIterations,
		fallbackSavings: fallbackSavings,
	}
}

// Run executes the generation for an already-registered session. It is meant
// to be called on its own goroutine; all outcomes, including panics in tool
// handlers, settle the session and the plan row into a terminal status.
func (o *Orchestrator) Run(ctx context.Context, sess *session.Session, req Request) {
	generationsStarted.Inc()
	tag := NewPayloadTag("budget_proposal")

	transcript := []provider.Message{
		{Role: "system", Content: systemPrompt(req, tag)},
		{Role: "user", Content: userPrompt(req)},
	}

	o.setStatus(ctx, sess, session.StatusStreaming)
	o.progress(ctx, sess, "analyzing your finances")

	var (
		advice         strings.Builder
		proposedGoal   *ProposedGoal
		proposedLimits []ProposedBudgetLimit
		capReached     bool
		iterations     int
	)

	for i := 1; ; i++ {
		iterations = i
		acc := NewToolCallAccumulator()
		var turn strings.Builder

		err := o.client.StreamChat(ctx, transcript, o.tools.Definitions(), func(ev provider.StreamEvent) {
			if ev.ContentDelta != "" {
				turn.WriteString(ev.ContentDelta)
			}
			if ev.ToolCallDelta != nil {
				acc.Add(*ev.ToolCallDelta)
			}
		})
		if err != nil {
			o.fail(ctx, sess, iterations, err)
			return
		}

		content := turn.String()
		if content != "" {
			if advice.Len() > 0 {
				advice.WriteString("\n\n")
			}
			advice.WriteString(content)
		}

		calls := acc.Calls()
		transcript = append(transcript, provider.Message{Role: "assistant", Content: content, ToolCalls: calls})
		if len(calls) == 0 {
			break
		}
		if i >= o.maxIterations {
			capReached = true
			break
		}

		for _, call := range calls {
			o.progress(ctx, sess, "consulting "+call.Name)
			res := o.tools.Execute(ctx, call.Name, call.Arguments, req.UserID)
			if res.Success {
				toolExecutions.WithLabelValues(call.Name, "ok").Inc()
			} else {
				toolExecutions.WithLabelValues(call.Name, "error").Inc()
				o.logger.Printf("plan %s: %s", sess.PlanID, res.Error)
			}
			switch data := res.Data.(type) {
			case *ProposedGoal:
				proposedGoal = data
			case []ProposedBudgetLimit:
				proposedLimits = data
			}
			transcript = append(transcript, provider.Message{
				Role:       "tool",
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    res.JSON(),
			})
		}
	}

	fullAdvice := advice.String()
	if capReached {
		o.logger.Printf("plan %s: iteration cap %d reached, finishing with partial advice", sess.PlanID, o.maxIterations)
		o.progress(ctx, sess, "analysis budget exhausted, finalizing with what was gathered")
	}

	if proposedLimits == nil {
		if limits, ok := ExtractBudgetLimits(fullAdvice, tag); ok {
			proposedLimits = limits
		}
	}

	outcome := Outcome{
		SuggestedSavings:     o.resolveSuggestedSavings(req, fullAdvice),
		MarkdownAdvice:       fullAdvice,
		ProposedGoal:         proposedGoal,
		ProposedBudgetLimits: proposedLimits,
	}
	o.complete(ctx, sess, iterations, outcome)
}

// progress appends one line to the session and mirrors it to the plan row
// before the loop moves on, so a poller never sees the store behind the
// stream.
func (o *Orchestrator) progress(ctx context.Context, sess *session.Session, line string) {
	sess.AppendProgress(line)
	if err := o.plans.UpdateSavingsPlan(ctx, sess.PlanID, store.PlanUpdate{GenerationProgress: &line}); err != nil {
		o.logger.Printf("plan %s: persist progress: %v", sess.PlanID, err)
	}
}

func (o *Orchestrator) setStatus(ctx context.Context, sess *session.Session, st session.Status) {
	sess.SetStatus(st)
	status := string(st)
	if err := o.plans.UpdateSavingsPlan(ctx, sess.PlanID, store.PlanUpdate{StreamingStatus: &status}); err != nil {
		o.logger.Printf("plan %s: persist status: %v", sess.PlanID, err)
	}
}

func (o *Orchestrator) complete(ctx context.Context, sess *session.Session, iterations int, outcome Outcome) {
	upd := store.PlanUpdate{
		StreamingStatus:    strPtr(store.PlanStatusCompleted),
		GenerationProgress: strPtr("plan ready"),
		SuggestedSavings:   &outcome.SuggestedSavings,
		MarkdownAdvice:     &outcome.MarkdownAdvice,
	}
	if outcome.ProposedGoal != nil {
		upd.ProposedGoal = mustJSON(outcome.ProposedGoal)
	}
	if len(outcome.ProposedBudgetLimits) > 0 {
		upd.ProposedBudgetLimits = mustJSON(outcome.ProposedBudgetLimits)
	}
	if err := o.plans.UpdateSavingsPlan(ctx, sess.PlanID, upd); err != nil {
		o.logger.Printf("plan %s: persist result: %v", sess.PlanID, err)
	}

	sess.SetResult(outcome)
	sess.AppendProgress("plan ready")
	sess.SetStatus(session.StatusCompleted)
	o.registry.Finish(sess)

	generationsFinished.WithLabelValues(string(session.StatusCompleted)).Inc()
	generationIterations.Observe(float64(iterations))
	o.logger.Printf("plan %s: completed after %d iteration(s)", sess.PlanID, iterations)
}

func (o *Orchestrator) fail(ctx context.Context, sess *session.Session, iterations int, cause error) {
	msg := cause.Error()
	upd := store.PlanUpdate{
		StreamingStatus:    strPtr(store.PlanStatusFailed),
		GenerationProgress: strPtr("generation failed: " + msg),
		Error:              &msg,
	}
	if err := o.plans.UpdateSavingsPlan(ctx, sess.PlanID, upd); err != nil {
		o.logger.Printf("plan %s: persist failure: %v", sess.PlanID, err)
	}

	sess.SetResult(Outcome{Error: msg})
	sess.AppendProgress("generation failed: " + msg)
	sess.SetStatus(session.StatusFailed)
	o.registry.Finish(sess)

	generationsFinished.WithLabelValues(string(session.StatusFailed)).Inc()
	generationIterations.Observe(float64(iterations))
	o.logger.Printf("plan %s: failed after %d iteration(s): %v", sess.PlanID, iterations, cause)
}

// resolveSuggestedSavings prefers the user's explicit target, then an amount
// parsed from the advice text, then the configured fallback.
func (o *Orchestrator) resolveSuggestedSavings(req Request, advice string) float64 {
	if req.TargetMonthlySavings > 0 {
		return req.TargetMonthlySavings
	}
	if v, ok := parseSuggestedSavings(advice); ok {
		return v
	}
	return o.fallbackSavings
}

var savingsAmountPattern = regexp.MustCompile(`(?i)(?:save|saving|set aside)[^\d]{0,60}?(\d[\d.,]*\d|\d)`)

// parseSuggestedSavings scans the advice for an amount mentioned next to a
// savings verb. Separators are stripped rather than interpreted; amounts in
// this domain are whole currency units.
func parseSuggestedSavings(text string) (float64, bool) {
	m := savingsAmountPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, m[1])
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func strPtr(s string) *string { return &s }

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	return b
}
