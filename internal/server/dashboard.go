package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fintrack/fintrack/internal/store"
)

type summaryStore interface {
	FinancialSummary(ctx context.Context, userID string) (store.FinancialSummary, error)
}

type DashboardHandler struct {
	Store summaryStore
}

func (h *DashboardHandler) Register(g *echo.Group) {
	g.GET("/summary", h.summary)
}

func (h *DashboardHandler) summary(c echo.Context) error {
	sum, err := h.Store.FinancialSummary(c.Request().Context(), c.Get("user_id").(string))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sum)
}
