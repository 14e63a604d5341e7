package server

import "time"

// HTTPError is the generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// IDResponse is a generic id response wrapper.
type IDResponse struct {
	ID string `json:"id"`
}

// TransactionRequest creates or replaces a transaction.
type TransactionRequest struct {
	Kind           string     `json:"kind"`
	Amount         float64    `json:"amount"`
	Category       string     `json:"category"`
	Note           string     `json:"note"`
	OccurredAt     *time.Time `json:"occurred_at"`
	RecurrenceCron string     `json:"recurrence_cron"`
}

// BudgetRequest creates or replaces a per-category limit.
type BudgetRequest struct {
	Category    string  `json:"category"`
	LimitAmount float64 `json:"limit_amount"`
}

// GoalRequest creates or replaces a savings goal.
type GoalRequest struct {
	Name         string     `json:"name"`
	TargetAmount float64    `json:"target_amount"`
	SavedAmount  float64    `json:"saved_amount"`
	TargetDate   *time.Time `json:"target_date"`
}

// GoalProgressRequest adds saved money to an existing goal.
type GoalProgressRequest struct {
	Amount float64 `json:"amount"`
}

// GeneratePlanRequest starts an AI savings-plan generation.
type GeneratePlanRequest struct {
	Goal                 string  `json:"goal"`
	TargetMonthlySavings float64 `json:"target_monthly_savings"`
	Intensity            string  `json:"intensity"`
	Notes                string  `json:"notes"`
}

// GeneratePlanResponse acknowledges an accepted generation.
type GeneratePlanResponse struct {
	PlanID string `json:"plan_id"`
	Status string `json:"status"`
}
