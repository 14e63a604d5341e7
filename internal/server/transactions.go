package server

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/labstack/echo/v4"

	"github.com/fintrack/fintrack/internal/store"
)

type transactionStore interface {
	CreateTransaction(ctx context.Context, t store.Transaction) (string, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]store.Transaction, error)
	GetTransaction(ctx context.Context, id, userID string) (store.Transaction, error)
	UpdateTransaction(ctx context.Context, t store.Transaction) error
	DeleteTransaction(ctx context.Context, id, userID string) error
}

type TransactionsHandler struct {
	Store transactionStore
}

func (h *TransactionsHandler) Register(g *echo.Group) {
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.delete)
}

func (h *TransactionsHandler) create(c echo.Context) error {
	t, err := bindTransaction(c)
	if err != nil {
		return err
	}
	t.UserID = c.Get("user_id").(string)
	id, err := h.Store.CreateTransaction(c.Request().Context(), t)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

func (h *TransactionsHandler) list(c echo.Context) error {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	txs, err := h.Store.ListTransactions(c.Request().Context(), c.Get("user_id").(string), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if txs == nil {
		txs = []store.Transaction{}
	}
	return c.JSON(http.StatusOK, txs)
}

func (h *TransactionsHandler) get(c echo.Context) error {
	t, err := h.Store.GetTransaction(c.Request().Context(), c.Param("id"), c.Get("user_id").(string))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "transaction not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, t)
}

func (h *TransactionsHandler) update(c echo.Context) error {
	t, err := bindTransaction(c)
	if err != nil {
		return err
	}
	t.ID = c.Param("id")
	t.UserID = c.Get("user_id").(string)
	if err := h.Store.UpdateTransaction(c.Request().Context(), t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "transaction not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

func (h *TransactionsHandler) delete(c echo.Context) error {
	if err := h.Store.DeleteTransaction(c.Request().Context(), c.Param("id"), c.Get("user_id").(string)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "transaction not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func bindTransaction(c echo.Context) (store.Transaction, error) {
	var req TransactionRequest
	if err := c.Bind(&req); err != nil {
		return store.Transaction{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Kind != store.TransactionIncome && req.Kind != store.TransactionExpense {
		return store.Transaction{}, echo.NewHTTPError(http.StatusBadRequest, "kind must be income or expense")
	}
	if req.Amount <= 0 {
		return store.Transaction{}, echo.NewHTTPError(http.StatusBadRequest, "amount must be positive")
	}
	if req.Category == "" {
		return store.Transaction{}, echo.NewHTTPError(http.StatusBadRequest, "category is required")
	}
	if req.RecurrenceCron != "" && !validCron(req.RecurrenceCron) {
		return store.Transaction{}, echo.NewHTTPError(http.StatusBadRequest, "invalid recurrence_cron")
	}
	occurred := time.Now()
	if req.OccurredAt != nil {
		occurred = *req.OccurredAt
	}
	return store.Transaction{
		Kind:           req.Kind,
		Amount:         req.Amount,
		Category:       req.Category,
		Note:           req.Note,
		OccurredAt:     occurred,
		RecurrenceCron: req.RecurrenceCron,
	}, nil
}

func validCron(spec string) bool {
	switch spec {
	case "@hourly", "@daily", "@weekly", "@monthly":
		return true
	}
	_, err := cronexpr.Parse(spec)
	return err == nil
}
