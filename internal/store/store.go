package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Store wraps the postgres connection for all durable state.
type Store struct {
	DB *sql.DB
}

// Savings-plan streaming statuses persisted for polling clients.
const (
	PlanStatusPending   = "pending"
	PlanStatusStreaming = "streaming"
	PlanStatusCompleted = "completed"
	PlanStatusFailed    = "failed"
)

// Transaction kinds.
const (
	TransactionIncome  = "income"
	TransactionExpense = "expense"
)

// Transaction is one income or expense record.
type Transaction struct {
	ID             string     `json:"id"`
	UserID         string     `json:"-"`
	Kind           string     `json:"kind"`
	Amount         float64    `json:"amount"`
	Category       string     `json:"category"`
	Note           string     `json:"note,omitempty"`
	OccurredAt     time.Time  `json:"occurred_at"`
	RecurrenceCron string     `json:"recurrence_cron,omitempty"`
	LastRecurredAt *time.Time `json:"last_recurred_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Budget is a per-category monthly spending limit.
type Budget struct {
	ID          string    `json:"id"`
	UserID      string    `json:"-"`
	Category    string    `json:"category"`
	LimitAmount float64   `json:"limit_amount"`
	CreatedAt   time.Time `json:"created_at"`
}

// Goal is a savings goal with progress.
type Goal struct {
	ID           string     `json:"id"`
	UserID       string     `json:"-"`
	Name         string     `json:"name"`
	TargetAmount float64    `json:"target_amount"`
	SavedAmount  float64    `json:"saved_amount"`
	TargetDate   *time.Time `json:"target_date,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// FinancialSummary aggregates a user's finances for the advisor tools and
// the dashboard.
type FinancialSummary struct {
	Balance          float64            `json:"balance"`
	Income           float64            `json:"income"`
	Expenses         float64            `json:"expenses"`
	CategorySpending map[string]float64 `json:"category_spending"`
	SavingRate       float64            `json:"saving_rate"`
}

// SavingsPlan is the durable projection of one generation session. It is
// written at every status transition so polling clients survive process
// restarts.
type SavingsPlan struct {
	ID                   string          `json:"id"`
	UserID               string          `json:"-"`
	Goal                 string          `json:"goal"`
	Intensity            string          `json:"intensity"`
	TargetMonthlySavings float64         `json:"target_monthly_savings,omitempty"`
	Notes                string          `json:"notes,omitempty"`
	StreamingStatus      string          `json:"streaming_status"`
	GenerationProgress   string          `json:"generation_progress,omitempty"`
	SuggestedSavings     *float64        `json:"suggested_savings,omitempty"`
	MarkdownAdvice       string          `json:"markdown_advice,omitempty"`
	ProposedGoal         json.RawMessage `json:"proposed_goal,omitempty"`
	ProposedBudgetLimits json.RawMessage `json:"proposed_budget_limits,omitempty"`
	Error                string          `json:"error,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// PlanUpdate is a partial update applied to a savings plan. Nil fields are
// left untouched.
type PlanUpdate struct {
	StreamingStatus      *string
	GenerationProgress   *string
	SuggestedSavings     *float64
	MarkdownAdvice       *string
	ProposedGoal         json.RawMessage
	ProposedBudgetLimits json.RawMessage
	Error                *string
}

// New constructs the Store using an explicit postgres DSN.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// User operations

func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

// Transaction operations

func (s *Store) CreateTransaction(ctx context.Context, t Transaction) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO transactions (user_id, kind, amount, category, note, occurred_at, recurrence_cron)
VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''))
RETURNING id`, t.UserID, t.Kind, t.Amount, t.Category, t.Note, t.OccurredAt, t.RecurrenceCron).Scan(&id)
	return id, err
}

func (s *Store) ListTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, kind, amount, category, COALESCE(note,''), occurred_at, COALESCE(recurrence_cron,''), last_recurred_at, created_at
FROM transactions WHERE user_id=$1 ORDER BY occurred_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Kind, &t.Amount, &t.Category, &t.Note, &t.OccurredAt, &t.RecurrenceCron, &t.LastRecurredAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetTransaction(ctx context.Context, id, userID string) (Transaction, error) {
	var t Transaction
	err := s.DB.QueryRowContext(ctx, `
SELECT id, user_id, kind, amount, category, COALESCE(note,''), occurred_at, COALESCE(recurrence_cron,''), last_recurred_at, created_at
FROM transactions WHERE id=$1 AND user_id=$2`, id, userID).
		Scan(&t.ID, &t.UserID, &t.Kind, &t.Amount, &t.Category, &t.Note, &t.OccurredAt, &t.RecurrenceCron, &t.LastRecurredAt, &t.CreatedAt)
	return t, err
}

func (s *Store) UpdateTransaction(ctx context.Context, t Transaction) error {
	res, err := s.DB.ExecContext(ctx, `
UPDATE transactions SET kind=$1, amount=$2, category=$3, note=$4, occurred_at=$5, recurrence_cron=NULLIF($6,'')
WHERE id=$7 AND user_id=$8`, t.Kind, t.Amount, t.Category, t.Note, t.OccurredAt, t.RecurrenceCron, t.ID, t.UserID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) DeleteTransaction(ctx context.Context, id, userID string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM transactions WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ListRecurringTransactions returns transaction templates carrying a
// recurrence cron, across all users, for the scheduler.
func (s *Store) ListRecurringTransactions(ctx context.Context) ([]Transaction, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, kind, amount, category, COALESCE(note,''), occurred_at, recurrence_cron, last_recurred_at, created_at
FROM transactions WHERE recurrence_cron IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Kind, &t.Amount, &t.Category, &t.Note, &t.OccurredAt, &t.RecurrenceCron, &t.LastRecurredAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MaterializeRecurring inserts one occurrence of a recurring template and
// stamps the template so the scheduler does not double-fire.
func (s *Store) MaterializeRecurring(ctx context.Context, templateID string, occurredAt time.Time) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO transactions (user_id, kind, amount, category, note, occurred_at)
SELECT user_id, kind, amount, category, note, $2 FROM transactions WHERE id=$1`, templateID, occurredAt)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE transactions SET last_recurred_at=$2 WHERE id=$1`, templateID, occurredAt)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Budget operations

func (s *Store) CreateBudget(ctx context.Context, b Budget) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO budgets (user_id, category, limit_amount) VALUES ($1,$2,$3) RETURNING id`,
		b.UserID, b.Category, b.LimitAmount).Scan(&id)
	return id, err
}

func (s *Store) ListBudgets(ctx context.Context, userID string) ([]Budget, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, category, limit_amount, created_at FROM budgets WHERE user_id=$1 ORDER BY category`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Budget
	for rows.Next() {
		var b Budget
		if err := rows.Scan(&b.ID, &b.UserID, &b.Category, &b.LimitAmount, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) UpdateBudget(ctx context.Context, b Budget) error {
	res, err := s.DB.ExecContext(ctx, `
UPDATE budgets SET category=$1, limit_amount=$2 WHERE id=$3 AND user_id=$4`,
		b.Category, b.LimitAmount, b.ID, b.UserID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) DeleteBudget(ctx context.Context, id, userID string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM budgets WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Goal operations

func (s *Store) CreateGoal(ctx context.Context, g Goal) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO goals (user_id, name, target_amount, saved_amount, target_date)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		g.UserID, g.Name, g.TargetAmount, g.SavedAmount, g.TargetDate).Scan(&id)
	return id, err
}

func (s *Store) ListGoals(ctx context.Context, userID string) ([]Goal, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, name, target_amount, saved_amount, target_date, created_at
FROM goals WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Goal
	for rows.Next() {
		var g Goal
		if err := rows.Scan(&g.ID, &g.UserID, &g.Name, &g.TargetAmount, &g.SavedAmount, &g.TargetDate, &g.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) GetGoal(ctx context.Context, id, userID string) (Goal, error) {
	var g Goal
	err := s.DB.QueryRowContext(ctx, `
SELECT id, user_id, name, target_amount, saved_amount, target_date, created_at
FROM goals WHERE id=$1 AND user_id=$2`, id, userID).
		Scan(&g.ID, &g.UserID, &g.Name, &g.TargetAmount, &g.SavedAmount, &g.TargetDate, &g.CreatedAt)
	return g, err
}

func (s *Store) UpdateGoal(ctx context.Context, g Goal) error {
	res, err := s.DB.ExecContext(ctx, `
UPDATE goals SET name=$1, target_amount=$2, saved_amount=$3, target_date=$4 WHERE id=$5 AND user_id=$6`,
		g.Name, g.TargetAmount, g.SavedAmount, g.TargetDate, g.ID, g.UserID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) DeleteGoal(ctx context.Context, id, userID string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM goals WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// FinancialSummary aggregates income, expenses and per-category spending for
// the user across all transactions.
func (s *Store) FinancialSummary(ctx context.Context, userID string) (FinancialSummary, error) {
	sum := FinancialSummary{CategorySpending: map[string]float64{}}

	err := s.DB.QueryRowContext(ctx, `
SELECT COALESCE(SUM(CASE WHEN kind='income' THEN amount ELSE 0 END),0),
       COALESCE(SUM(CASE WHEN kind='expense' THEN amount ELSE 0 END),0)
FROM transactions WHERE user_id=$1`, userID).Scan(&sum.Income, &sum.Expenses)
	if err != nil {
		return sum, err
	}
	sum.Balance = sum.Income - sum.Expenses
	if sum.Income > 0 {
		sum.SavingRate = (sum.Income - sum.Expenses) / sum.Income
	}

	rows, err := s.DB.QueryContext(ctx, `
SELECT category, COALESCE(SUM(amount),0) FROM transactions
WHERE user_id=$1 AND kind='expense' GROUP BY category`, userID)
	if err != nil {
		return sum, err
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var amount float64
		if err := rows.Scan(&cat, &amount); err != nil {
			return sum, err
		}
		sum.CategorySpending[cat] = amount
	}
	return sum, rows.Err()
}

// Savings-plan operations

func (s *Store) CreateSavingsPlan(ctx context.Context, p SavingsPlan) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO savings_plans (id, user_id, goal, intensity, target_monthly_savings, notes, streaming_status)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.UserID, p.Goal, p.Intensity, p.TargetMonthlySavings, p.Notes, PlanStatusPending)
	return err
}

func (s *Store) GetSavingsPlan(ctx context.Context, id, userID string) (SavingsPlan, error) {
	var p SavingsPlan
	var proposedGoal, proposedLimits []byte
	err := s.DB.QueryRowContext(ctx, `
SELECT id, user_id, goal, intensity, target_monthly_savings, COALESCE(notes,''),
       streaming_status, COALESCE(generation_progress,''), suggested_savings,
       COALESCE(markdown_advice,''), proposed_goal, proposed_budget_limits,
       COALESCE(error,''), created_at, updated_at
FROM savings_plans WHERE id=$1 AND user_id=$2`, id, userID).
		Scan(&p.ID, &p.UserID, &p.Goal, &p.Intensity, &p.TargetMonthlySavings, &p.Notes,
			&p.StreamingStatus, &p.GenerationProgress, &p.SuggestedSavings,
			&p.MarkdownAdvice, &proposedGoal, &proposedLimits,
			&p.Error, &p.CreatedAt, &p.UpdatedAt)
	p.ProposedGoal = proposedGoal
	p.ProposedBudgetLimits = proposedLimits
	return p, err
}

func (s *Store) ListSavingsPlans(ctx context.Context, userID string) ([]SavingsPlan, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, goal, intensity, target_monthly_savings, COALESCE(notes,''),
       streaming_status, COALESCE(generation_progress,''), suggested_savings,
       COALESCE(markdown_advice,''), proposed_goal, proposed_budget_limits,
       COALESCE(error,''), created_at, updated_at
FROM savings_plans WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SavingsPlan
	for rows.Next() {
		var p SavingsPlan
		var proposedGoal, proposedLimits []byte
		if err := rows.Scan(&p.ID, &p.UserID, &p.Goal, &p.Intensity, &p.TargetMonthlySavings, &p.Notes,
			&p.StreamingStatus, &p.GenerationProgress, &p.SuggestedSavings,
			&p.MarkdownAdvice, &proposedGoal, &proposedLimits,
			&p.Error, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.ProposedGoal = proposedGoal
		p.ProposedBudgetLimits = proposedLimits
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateSavingsPlan applies a partial update. Unset fields keep their value.
func (s *Store) UpdateSavingsPlan(ctx context.Context, id string, upd PlanUpdate) error {
	sets := []string{"updated_at=NOW()"}
	args := []interface{}{id}
	add := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if upd.StreamingStatus != nil {
		add("streaming_status", *upd.StreamingStatus)
	}
	if upd.GenerationProgress != nil {
		add("generation_progress", *upd.GenerationProgress)
	}
	if upd.SuggestedSavings != nil {
		add("suggested_savings", *upd.SuggestedSavings)
	}
	if upd.MarkdownAdvice != nil {
		add("markdown_advice", *upd.MarkdownAdvice)
	}
	if len(upd.ProposedGoal) > 0 {
		add("proposed_goal", []byte(upd.ProposedGoal))
	}
	if len(upd.ProposedBudgetLimits) > 0 {
		add("proposed_budget_limits", []byte(upd.ProposedBudgetLimits))
	}
	if upd.Error != nil {
		add("error", *upd.Error)
	}

	query := fmt.Sprintf(`UPDATE savings_plans SET %s WHERE id=$1`, strings.Join(sets, ", "))
	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
