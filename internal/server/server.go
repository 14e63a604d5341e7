package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/golang-migrate/migrate/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/fintrack/fintrack/config"
	"github.com/fintrack/fintrack/internal/advisor"
	"github.com/fintrack/fintrack/internal/runtime"
	"github.com/fintrack/fintrack/internal/store"
	openai "github.com/fintrack/fintrack/provider/openai"
	"github.com/fintrack/fintrack/session"
)

// Run wires every dependency and serves the API until the listener fails.
func Run(cfgPath, addr string) error {
	cfg := config.LoadConfig(cfgPath)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	dsn, err := cfg.Databases.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		baseLogger.Printf("migrations: %v", err)
	}

	ctx := context.Background()
	st, err := store.New(ctx, dsn)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Databases.Redis.Addr(),
		Password: cfg.Databases.Redis.Password,
		DB:       cfg.Databases.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s): %w", cfg.Databases.Redis.Addr(), err)
	}

	if cfg.Providers.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY not configured")
	}
	llm := openai.NewClient(cfg.Providers.OpenAI)

	secret, err := runtime.LoadJWTSecret(cfg)
	if err != nil {
		return err
	}

	sessions := session.NewRegistry(cfg.Advisor.SuccessGracePeriod, cfg.Advisor.FailureGracePeriod)
	defer sessions.Shutdown()

	tools := advisor.NewToolRegistry(st)
	orch := advisor.NewOrchestrator(llm, tools, st, sessions, cfg.Advisor.MaxIterations, cfg.Advisor.FallbackSavings)

	api := e.Group("/api")
	auth := &AuthHandler{Store: st, Secret: secret}
	auth.Register(api.Group("/auth"))

	authed := runtime.EchoAuthMiddleware(secret)

	me := api.Group("/me", authed)
	me.GET("", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"user_id": c.Get("user_id").(string)})
	})

	th := &TransactionsHandler{Store: st}
	th.Register(api.Group("/transactions", authed))

	bh := &BudgetsHandler{Store: st}
	bh.Register(api.Group("/budgets", authed))

	gh := &GoalsHandler{Store: st}
	gh.Register(api.Group("/goals", authed))

	dh := &DashboardHandler{Store: st}
	dh.Register(api.Group("/dashboard", authed))

	ph := &PlansHandler{
		Store:    st,
		Sessions: sessions,
		Gen:      orch,
		Cache:    rdb,
		Logger:   log.New(log.Writer(), "[PLANS] ", log.LstdFlags),
	}
	ph.Register(api.Group("/plans", authed))

	if cfg.Scheduler.Enabled {
		sched := &Scheduler{
			Store:    st,
			Rdb:      rdb,
			Interval: cfg.Scheduler.Interval,
			Stop:     make(chan struct{}),
		}
		sched.Start()
		defer close(sched.Stop)
	}

	if addr == "" {
		addr = cfg.General.Listen
		if addr != "" && addr[0] != ':' {
			addr = ":" + addr
		}
		if addr == "" {
			addr = ":8080"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
