package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fintrack/fintrack/internal/store"
)

type stubTransactionStore struct {
	created []store.Transaction
	listed  []store.Transaction
}

func (s *stubTransactionStore) CreateTransaction(_ context.Context, t store.Transaction) (string, error) {
	s.created = append(s.created, t)
	return "tx-1", nil
}

func (s *stubTransactionStore) ListTransactions(_ context.Context, _ string, _ int) ([]store.Transaction, error) {
	return s.listed, nil
}

func (s *stubTransactionStore) GetTransaction(context.Context, string, string) (store.Transaction, error) {
	return store.Transaction{}, nil
}

func (s *stubTransactionStore) UpdateTransaction(context.Context, store.Transaction) error {
	return nil
}

func (s *stubTransactionStore) DeleteTransaction(context.Context, string, string) error {
	return nil
}

func TestCreateTransaction(t *testing.T) {
	st := &stubTransactionStore{}
	h := &TransactionsHandler{Store: st}
	e := echo.New()

	c, rec := newJSONContext(e, http.MethodPost, "/api/transactions",
		`{"kind":"expense","amount":120000,"category":"Food & Drinks","note":"lunch","recurrence_cron":"@monthly"}`, "u1")
	if err := h.create(c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if len(st.created) != 1 {
		t.Fatal("transaction not stored")
	}
	got := st.created[0]
	if got.UserID != "u1" || got.Kind != store.TransactionExpense || got.RecurrenceCron != "@monthly" {
		t.Fatalf("unexpected transaction: %+v", got)
	}
	if got.OccurredAt.IsZero() {
		t.Fatal("occurred_at not defaulted")
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	h := &TransactionsHandler{Store: &stubTransactionStore{}}
	e := echo.New()

	cases := []string{
		`{"kind":"transfer","amount":10,"category":"x"}`,
		`{"kind":"income","amount":0,"category":"x"}`,
		`{"kind":"income","amount":10}`,
		`{"kind":"income","amount":10,"category":"x","recurrence_cron":"not a cron"}`,
	}
	for _, body := range cases {
		c, _ := newJSONContext(e, http.MethodPost, "/api/transactions", body, "u1")
		err := h.create(c)
		he, ok := err.(*echo.HTTPError)
		if !ok || he.Code != http.StatusBadRequest {
			t.Fatalf("body %s: err = %v, want 400", body, err)
		}
	}
}

func TestListTransactionsEmptyIsArray(t *testing.T) {
	h := &TransactionsHandler{Store: &stubTransactionStore{}}
	e := echo.New()

	c, rec := newJSONContext(e, http.MethodGet, "/api/transactions", "", "u1")
	if err := h.list(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	var out []json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("body is not a JSON array: %q", rec.Body.String())
	}
	if out == nil {
		t.Fatal("empty list serialized as null")
	}
}

func TestSchedulerIsDue(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-48 * time.Hour)
	recent := now.Add(-time.Minute)

	cases := []struct {
		spec string
		last *time.Time
		want bool
	}{
		{"@daily", nil, true},
		{"@daily", &old, true},
		{"@daily", &recent, false},
		{"@monthly", &old, false},
		{"0 9 * * *", nil, true},
		{"0 9 * * *", &old, true},
		{"0 9 * * *", &recent, false},
		{"garbage", &old, true},
		{"garbage", &recent, false},
	}
	for _, tc := range cases {
		if got := isDue(tc.spec, tc.last, now); got != tc.want {
			t.Errorf("isDue(%q, %v) = %v, want %v", tc.spec, tc.last, got, tc.want)
		}
	}
}
