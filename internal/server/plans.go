package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/fintrack/fintrack/internal/advisor"
	"github.com/fintrack/fintrack/internal/store"
	"github.com/fintrack/fintrack/session"
)

type planStore interface {
	CreateSavingsPlan(ctx context.Context, p store.SavingsPlan) error
	GetSavingsPlan(ctx context.Context, id, userID string) (store.SavingsPlan, error)
	ListSavingsPlans(ctx context.Context, userID string) ([]store.SavingsPlan, error)
}

type planGenerator interface {
	Run(ctx context.Context, sess *session.Session, req advisor.Request)
}

// snapshotTTL bounds how long a terminal plan snapshot stays in redis before
// pollers fall back to postgres.
const snapshotTTL = 10 * time.Minute

type PlansHandler struct {
	Store    planStore
	Sessions *session.Registry
	Gen      planGenerator
	Cache    *redis.Client // nil disables snapshot caching
	Logger   *log.Logger
}

func (h *PlansHandler) Register(g *echo.Group) {
	g.POST("/generate", h.generate)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.GET("/:id/events", h.events)
}

func (h *PlansHandler) generate(c echo.Context) error {
	var req GeneratePlanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Goal == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "goal is required")
	}
	intensity := advisor.Intensity(req.Intensity)
	if req.Intensity == "" {
		intensity = advisor.IntensityIdeal
	}
	if !intensity.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "intensity must be just_starting, ideal or must_achieve")
	}
	if req.TargetMonthlySavings < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "target_monthly_savings cannot be negative")
	}

	userID := c.Get("user_id").(string)
	planID := uuid.NewString()

	if err := h.Store.CreateSavingsPlan(c.Request().Context(), store.SavingsPlan{
		ID:                   planID,
		UserID:               userID,
		Goal:                 req.Goal,
		Intensity:            string(intensity),
		TargetMonthlySavings: req.TargetMonthlySavings,
		Notes:                req.Notes,
	}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	sess, err := h.Sessions.Start(planID)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	// The generation outlives this request; it reports through the session
	// and the plan row.
	go h.Gen.Run(context.Background(), sess, advisor.Request{
		Goal:                 req.Goal,
		TargetMonthlySavings: req.TargetMonthlySavings,
		Intensity:            intensity,
		Notes:                req.Notes,
		UserID:               userID,
	})

	return c.JSON(http.StatusAccepted, GeneratePlanResponse{PlanID: planID, Status: store.PlanStatusPending})
}

func (h *PlansHandler) list(c echo.Context) error {
	plans, err := h.Store.ListSavingsPlans(c.Request().Context(), c.Get("user_id").(string))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if plans == nil {
		plans = []store.SavingsPlan{}
	}
	return c.JSON(http.StatusOK, plans)
}

func (h *PlansHandler) get(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Get("user_id").(string)
	id := c.Param("id")

	key := "fintrack:plan:" + userID + ":" + id
	if h.Cache != nil {
		if cached, err := h.Cache.Get(ctx, key).Result(); err == nil {
			return c.JSONBlob(http.StatusOK, []byte(cached))
		}
	}

	plan, err := h.Store.GetSavingsPlan(ctx, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "plan not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	// Only terminal snapshots are cacheable; in-flight plans keep changing.
	if h.Cache != nil && (plan.StreamingStatus == store.PlanStatusCompleted || plan.StreamingStatus == store.PlanStatusFailed) {
		if body, err := json.Marshal(plan); err == nil {
			if err := h.Cache.Set(ctx, key, body, snapshotTTL).Err(); err != nil && h.Logger != nil {
				h.Logger.Printf("plan snapshot cache write failed: %v", err)
			}
		}
	}
	return c.JSON(http.StatusOK, plan)
}

// events streams generation progress as server-sent events. A live session
// replays everything it buffered and then follows along; once the session is
// gone the durable plan row is the source of truth and is sent as a single
// snapshot.
func (h *PlansHandler) events(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Get("user_id").(string)
	id := c.Param("id")

	plan, err := h.Store.GetSavingsPlan(ctx, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "plan not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}

	send := func(event string, payload interface{}) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := resp.Write([]byte("event: " + event + "\n")); err != nil {
			return err
		}
		if _, err := resp.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	sess := h.Sessions.Get(id)
	if sess == nil {
		// Session already swept; the stored row carries the final state.
		return send("snapshot", plan)
	}

	ch, cancel := sess.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, open := <-ch:
			if !open {
				done := map[string]interface{}{"status": string(sess.Status())}
				if result := sess.Result(); result != nil {
					done["result"] = result
				}
				return send("done", done)
			}
			if err := send("progress", map[string]string{"message": line}); err != nil {
				return nil
			}
		}
	}
}
