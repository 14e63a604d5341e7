package advisor

import "encoding/json"

// Intensity expresses how aggressively the user wants to pursue the goal.
type Intensity string

const (
	IntensityJustStarting Intensity = "just_starting"
	IntensityIdeal        Intensity = "ideal"
	IntensityMustAchieve  Intensity = "must_achieve"
)

// Valid reports whether the intensity is one of the known levels.
func (i Intensity) Valid() bool {
	switch i {
	case IntensityJustStarting, IntensityIdeal, IntensityMustAchieve:
		return true
	}
	return false
}

// Request is an immutable savings-plan generation request.
type Request struct {
	Goal                 string    `json:"goal"`
	TargetMonthlySavings float64   `json:"target_monthly_savings,omitempty"`
	Intensity            Intensity `json:"intensity"`
	Notes                string    `json:"notes,omitempty"`
	UserID               string    `json:"user_id"`
}

// ToolResult is the outcome of one tool execution. It is always produced,
// even when the handler fails or the arguments are malformed; the executor
// never returns a Go error for a single bad call.
type ToolResult struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// JSON renders the result as the tool-message content fed back to the model.
func (r ToolResult) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"error":"unencodable tool result"}`
	}
	return string(b)
}

// ProposedGoal is a savings goal suggested by the model via the
// propose_saving_goal tool. It is a proposal only; nothing is persisted
// until the user accepts it.
type ProposedGoal struct {
	Name          string  `json:"name"`
	TargetAmount  float64 `json:"targetAmount"`
	MonthlyAmount float64 `json:"monthlyAmount,omitempty"`
	Reasoning     string  `json:"reasoning,omitempty"`
}

// ProposedBudgetLimit is one model-suggested spending cap for a category.
type ProposedBudgetLimit struct {
	Category       string  `json:"category"`
	SuggestedLimit float64 `json:"suggestedLimit"`
	Reasoning      string  `json:"reasoning,omitempty"`
}
