package advisor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/blevesearch/bleve"

	"github.com/fintrack/fintrack/internal/store"
	"github.com/fintrack/fintrack/provider"
)

// FinanceReader is the read-only view of the CRUD store exposed to tools.
// Implementations must scope every query to the given user and never mutate
// state.
type FinanceReader interface {
	ListTransactions(ctx context.Context, userID string, limit int) ([]store.Transaction, error)
	ListGoals(ctx context.Context, userID string) ([]store.Goal, error)
	ListBudgets(ctx context.Context, userID string) ([]store.Budget, error)
	FinancialSummary(ctx context.Context, userID string) (store.FinancialSummary, error)
}

// ToolHandler executes one named tool for a user. Returned data is echoed to
// the model; a returned error becomes a failed ToolResult, never a panic or
// an executor error.
type ToolHandler func(ctx context.Context, userID string, args json.RawMessage) (interface{}, error)

// ToolRegistry maps tool names to handlers and advertises their definitions
// to the completion provider.
type ToolRegistry struct {
	reader   FinanceReader
	handlers map[string]ToolHandler
}

const defaultTransactionLimit = 50

// NewToolRegistry builds the registry with the standard read and propose
// tools wired against the given reader.
func NewToolRegistry(reader FinanceReader) *ToolRegistry {
	r := &ToolRegistry{reader: reader, handlers: map[string]ToolHandler{}}

	r.handlers["read_transactions"] = func(ctx context.Context, userID string, args json.RawMessage) (interface{}, error) {
		var p struct {
			Limit int `json:"limit"`
		}
		if len(args) > 0 {
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
		}
		if p.Limit <= 0 || p.Limit > 200 {
			p.Limit = defaultTransactionLimit
		}
		return reader.ListTransactions(ctx, userID, p.Limit)
	}

	r.handlers["read_goals"] = func(ctx context.Context, userID string, _ json.RawMessage) (interface{}, error) {
		return reader.ListGoals(ctx, userID)
	}

	r.handlers["read_budgets"] = func(ctx context.Context, userID string, _ json.RawMessage) (interface{}, error) {
		return reader.ListBudgets(ctx, userID)
	}

	r.handlers["get_financial_summary"] = func(ctx context.Context, userID string, _ json.RawMessage) (interface{}, error) {
		return reader.FinancialSummary(ctx, userID)
	}

	r.handlers["search_transactions"] = r.searchTransactions

	r.handlers["propose_saving_goal"] = func(_ context.Context, _ string, args json.RawMessage) (interface{}, error) {
		var goal ProposedGoal
		if err := json.Unmarshal(args, &goal); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if goal.Name == "" || goal.TargetAmount <= 0 {
			return nil, fmt.Errorf("proposed goal requires name and a positive targetAmount")
		}
		return &goal, nil
	}

	r.handlers["propose_budget_limits"] = func(_ context.Context, _ string, args json.RawMessage) (interface{}, error) {
		var p struct {
			Limits []ProposedBudgetLimit `json:"limits"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if len(p.Limits) == 0 {
			return nil, fmt.Errorf("at least one budget limit is required")
		}
		for _, l := range p.Limits {
			if l.Category == "" || l.SuggestedLimit <= 0 {
				return nil, fmt.Errorf("each limit requires category and a positive suggestedLimit")
			}
		}
		return p.Limits, nil
	}

	return r
}

// Execute runs the named tool. Unknown names, malformed JSON arguments and
// handler failures all surface as a failed ToolResult so one bad call cannot
// abort the surrounding conversation.
func (r *ToolRegistry) Execute(ctx context.Context, name, argsJSON, userID string) ToolResult {
	handler, ok := r.handlers[name]
	if !ok {
		return ToolResult{Success: false, Error: fmt.Sprintf("unknown tool: %s", name)}
	}

	args := json.RawMessage(argsJSON)
	if argsJSON != "" && !json.Valid(args) {
		return ToolResult{Success: false, Error: fmt.Sprintf("tool %s: arguments are not valid JSON", name)}
	}

	data, err := handler(ctx, userID, args)
	if err != nil {
		return ToolResult{Success: false, Error: fmt.Sprintf("tool %s: %v", name, err)}
	}
	return ToolResult{Success: true, Data: data}
}

// searchTransactions answers free-text queries over the user's transaction
// notes and categories. The index is ephemeral: built in memory from the
// user's recent transactions for this one call.
func (r *ToolRegistry) searchTransactions(ctx context.Context, userID string, args json.RawMessage) (interface{}, error) {
	var p struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if p.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if p.Limit <= 0 || p.Limit > 50 {
		p.Limit = 10
	}

	txs, err := r.reader.ListTransactions(ctx, userID, 200)
	if err != nil {
		return nil, err
	}

	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	defer index.Close()

	byID := make(map[string]store.Transaction, len(txs))
	for _, tx := range txs {
		byID[tx.ID] = tx
		doc := map[string]string{"category": tx.Category, "note": tx.Note}
		if err := index.Index(tx.ID, doc); err != nil {
			return nil, err
		}
	}

	query := bleve.NewQueryStringQuery(p.Query)
	res, err := index.Search(bleve.NewSearchRequestOptions(query, p.Limit, 0, false))
	if err != nil {
		return nil, err
	}

	out := make([]store.Transaction, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if tx, ok := byID[hit.ID]; ok {
			out = append(out, tx)
		}
	}
	return out, nil
}

// Definitions lists the tool schemas advertised to the model.
func (r *ToolRegistry) Definitions() []provider.ToolDefinition {
	return []provider.ToolDefinition{
		{
			Name:        "read_transactions",
			Description: "List the user's most recent transactions (income and expenses).",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"limit":{"type":"integer","description":"Maximum number of transactions, default 50"}}}`),
		},
		{
			Name:        "read_goals",
			Description: "List the user's existing savings goals with target and saved amounts.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        "read_budgets",
			Description: "List the user's current budget limits per spending category.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        "get_financial_summary",
			Description: "Summarize the user's finances: balance, income, expenses, per-category spending and saving rate.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        "search_transactions",
			Description: "Full-text search over the user's transaction notes and categories.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"},"limit":{"type":"integer"}},"required":["query"]}`),
		},
		{
			Name:        "propose_saving_goal",
			Description: "Propose a new savings goal. Nothing is persisted; the proposal is shown to the user for approval.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"},"targetAmount":{"type":"number"},"monthlyAmount":{"type":"number"},"reasoning":{"type":"string"}},"required":["name","targetAmount"]}`),
		},
		{
			Name:        "propose_budget_limits",
			Description: "Propose monthly spending limits per category. Nothing is persisted; the proposal is shown to the user for approval.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"limits":{"type":"array","items":{"type":"object","properties":{"category":{"type":"string"},"suggestedLimit":{"type":"number"},"reasoning":{"type":"string"}},"required":["category","suggestedLimit"]}}},"required":["limits"]}`),
		},
	}
}
