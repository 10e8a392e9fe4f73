package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/artifact"
	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/config"
	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/coordinator"
	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/handler"
	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/handler/events"
	sessionHandler "github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/handler/session"
	sessionModel "github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/model/session"
	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/probe"
	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/store"
	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/workflow/tpr"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger()
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file, using system environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	sessionStore, closeStore, err := newSessionStore(cfg.Store, logger)
	if err != nil {
		logger.Fatal("failed to open session store", zap.Error(err))
	}
	defer closeStore()

	artifactStore := artifact.NewStore(cfg.Artifact.BaseURL)

	probes := probe.NewRegistry()
	if err := probes.Register(tpr.Kind, tpr.CompletionProbe); err != nil {
		logger.Fatal("failed to register completion probe", zap.Error(err))
	}

	coord := coordinator.New(sessionStore, probes, artifactStore, generalHandler(), logger, coordinator.Options{
		StoreTimeout:   cfg.Store.Timeout,
		MaxAttempts:    cfg.Store.MaxAttempts,
		RetryBaseDelay: cfg.Store.RetryBaseDelay,
	})
	if err := coord.RegisterWorkflow(tpr.Kind, tpr.New()); err != nil {
		logger.Fatal("failed to register guided workflow", zap.Error(err))
	}

	hub := events.NewHub(logger)
	coord.OnTransition(hub.Notify)

	router := handler.NewRouter(
		sessionHandler.New(coord, sessionStore, artifactStore, logger),
		hub,
	)

	startServer(ctx, logger, cfg.Server, router)
}

func newLogger() *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	if strings.TrimSpace(os.Getenv("DEBUG")) != "" {
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zapCfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func newSessionStore(cfg config.StoreConfig, logger *zap.Logger) (store.Store, func(), error) {
	if cfg.Path == "" {
		logger.Warn("SESSION_STORE_PATH not set, using in-memory session store (single node only)")
		return store.NewMemoryStore(), func() {}, nil
	}

	s, err := store.NewSQLiteStore(cfg.Path, cfg.TTL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("session store ready",
		zap.String("path", cfg.Path), zap.Duration("ttl", cfg.TTL))
	return s, func() { s.Close() }, nil
}

// generalHandler is the free-form chat fallback. The production deployment
// replaces this with the LLM-backed handler; the core only needs something
// that answers outside guided mode.
func generalHandler() coordinator.TurnHandlerFunc {
	return func(_ context.Context, state *sessionModel.State, _ string) (*coordinator.TurnOutput, error) {
		if len(state.Artifacts) > 0 {
			names := make([]string, 0, len(state.Artifacts))
			for name := range state.Artifacts {
				names = append(names, name)
			}
			sort.Strings(names)
			return &coordinator.TurnOutput{
				Reply: fmt.Sprintf("You have stored results: %s. Fetch them from the artifacts endpoint.",
					strings.Join(names, ", ")),
			}, nil
		}
		return &coordinator.TurnOutput{
			Reply: "Ask me about malaria risk, or start the guided TPR calculation.",
		}, nil
	}
}

func startServer(ctx context.Context, logger *zap.Logger, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("chat-mrpt coordination service listening", zap.String("addr", serverCfg.Addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
