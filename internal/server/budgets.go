package server

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fintrack/fintrack/internal/store"
)

type budgetStore interface {
	CreateBudget(ctx context.Context, b store.Budget) (string, error)
	ListBudgets(ctx context.Context, userID string) ([]store.Budget, error)
	UpdateBudget(ctx context.Context, b store.Budget) error
	DeleteBudget(ctx context.Context, id, userID string) error
}

type BudgetsHandler struct {
	Store budgetStore
}

func (h *BudgetsHandler) Register(g *echo.Group) {
	g.POST("", h.create)
	g.GET("", h.list)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.delete)
}

func (h *BudgetsHandler) create(c echo.Context) error {
	b, err := bindBudget(c)
	if err != nil {
		return err
	}
	b.UserID = c.Get("user_id").(string)
	id, err := h.Store.CreateBudget(c.Request().Context(), b)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

func (h *BudgetsHandler) list(c echo.Context) error {
	budgets, err := h.Store.ListBudgets(c.Request().Context(), c.Get("user_id").(string))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if budgets == nil {
		budgets = []store.Budget{}
	}
	return c.JSON(http.StatusOK, budgets)
}

func (h *BudgetsHandler) update(c echo.Context) error {
	b, err := bindBudget(c)
	if err != nil {
		return err
	}
	b.ID = c.Param("id")
	b.UserID = c.Get("user_id").(string)
	if err := h.Store.UpdateBudget(c.Request().Context(), b); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "budget not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

func (h *BudgetsHandler) delete(c echo.Context) error {
	if err := h.Store.DeleteBudget(c.Request().Context(), c.Param("id"), c.Get("user_id").(string)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "budget not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func bindBudget(c echo.Context) (store.Budget, error) {
	var req BudgetRequest
	if err := c.Bind(&req); err != nil {
		return store.Budget{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Category == "" {
		return store.Budget{}, echo.NewHTTPError(http.StatusBadRequest, "category is required")
	}
	if req.LimitAmount <= 0 {
		return store.Budget{}, echo.NewHTTPError(http.StatusBadRequest, "limit_amount must be positive")
	}
	return store.Budget{Category: req.Category, LimitAmount: req.LimitAmount}, nil
}
