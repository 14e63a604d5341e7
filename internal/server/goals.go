package server

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fintrack/fintrack/internal/store"
)

type goalStore interface {
	CreateGoal(ctx context.Context, g store.Goal) (string, error)
	ListGoals(ctx context.Context, userID string) ([]store.Goal, error)
	UpdateGoal(ctx context.Context, g store.Goal) error
	DeleteGoal(ctx context.Context, id, userID string) error
	GetGoal(ctx context.Context, id, userID string) (store.Goal, error)
}

type GoalsHandler struct {
	Store goalStore
}

func (h *GoalsHandler) Register(g *echo.Group) {
	g.POST("", h.create)
	g.GET("", h.list)
	g.PUT("/:id", h.update)
	g.POST("/:id/progress", h.addProgress)
	g.DELETE("/:id", h.delete)
}

func (h *GoalsHandler) create(c echo.Context) error {
	g, err := bindGoal(c)
	if err != nil {
		return err
	}
	g.UserID = c.Get("user_id").(string)
	id, err := h.Store.CreateGoal(c.Request().Context(), g)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

func (h *GoalsHandler) list(c echo.Context) error {
	goals, err := h.Store.ListGoals(c.Request().Context(), c.Get("user_id").(string))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if goals == nil {
		goals = []store.Goal{}
	}
	return c.JSON(http.StatusOK, goals)
}

func (h *GoalsHandler) update(c echo.Context) error {
	g, err := bindGoal(c)
	if err != nil {
		return err
	}
	g.ID = c.Param("id")
	g.UserID = c.Get("user_id").(string)
	if err := h.Store.UpdateGoal(c.Request().Context(), g); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "goal not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

// addProgress increments saved_amount; it reads then writes under the user's
// scope, which is safe because goals have a single writer in practice.
func (h *GoalsHandler) addProgress(c echo.Context) error {
	var req GoalProgressRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Amount <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "amount must be positive")
	}
	userID := c.Get("user_id").(string)
	g, err := h.Store.GetGoal(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "goal not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	g.SavedAmount += req.Amount
	if err := h.Store.UpdateGoal(c.Request().Context(), g); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, g)
}

func (h *GoalsHandler) delete(c echo.Context) error {
	if err := h.Store.DeleteGoal(c.Request().Context(), c.Param("id"), c.Get("user_id").(string)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "goal not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func bindGoal(c echo.Context) (store.Goal, error) {
	var req GoalRequest
	if err := c.Bind(&req); err != nil {
		return store.Goal{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Name == "" {
		return store.Goal{}, echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	if req.TargetAmount <= 0 {
		return store.Goal{}, echo.NewHTTPError(http.StatusBadRequest, "target_amount must be positive")
	}
	if req.SavedAmount < 0 {
		return store.Goal{}, echo.NewHTTPError(http.StatusBadRequest, "saved_amount cannot be negative")
	}
	return store.Goal{
		Name:         req.Name,
		TargetAmount: req.TargetAmount,
		SavedAmount:  req.SavedAmount,
		TargetDate:   req.TargetDate,
	}, nil
}
