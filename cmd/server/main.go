package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"chat-hub/internal/auth"
	"chat-hub/internal/config"
	"chat-hub/internal/database"
	"chat-hub/internal/metrics"
	"chat-hub/internal/realtime"
	"chat-hub/internal/routes"
	"chat-hub/internal/store"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)
	if log.Enabled(context.Background(), slog.LevelDebug) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Init database
	db, err := database.Open(cfg.DatabasePath, logger.Warn)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	if err := database.SeedDefaultRoom(db, log); err != nil {
		log.Error("seed default room", "error", err)
		os.Exit(1)
	}

	st := store.New(db)
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	go st.RunJanitor(janitorCtx)
	m := metrics.New()
	hub := realtime.NewHub(st, st, realtime.Options{
		PersistTimeout: cfg.PersistTimeout,
		Logger:         log.With("component", "hub"),
		Metrics:        m,
	})
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL)

	// Setup the routes (public, protected and websocket)
	router := routes.SetupRoutes(routes.Deps{
		Config:  cfg,
		DB:      db,
		Hub:     hub,
		Tokens:  tokens,
		Metrics: m,
		Logger:  log,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server starting", "addr", srv.Addr,
			"endpoints", []string{"POST /api/login", "GET /api/users", "GET /api/users/online", "GET /ws", "GET /metrics", "GET /health"})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"http-server": func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
		// Hijacked WebSocket connections are not tracked by http.Server. The
		// database closes after the hub so disconnects can record status.
		"hub": func(ctx context.Context) error {
			defer stopJanitor()
			hubErr := hub.Shutdown(ctx)
			sqlDB, err := db.DB()
			if err != nil {
				return errors.Join(hubErr, err)
			}
			return errors.Join(hubErr, sqlDB.Close())
		},
	})
	exitCode := <-wait
	log.Info("server stopped", "exit_code", exitCode)
	os.Exit(exitCode)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
