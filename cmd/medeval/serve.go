package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/medeval/internal/adapter/llm"
	"github.com/xiaot623/medeval/internal/auth"
	"github.com/xiaot623/medeval/internal/hub"
	"github.com/xiaot623/medeval/internal/policy"
	"github.com/xiaot623/medeval/internal/repository"
	"github.com/xiaot623/medeval/internal/service"
	transport "github.com/xiaot623/medeval/internal/transport/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the evaluation HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting medeval",
		zap.Int("http_port", cfg.HTTPPort),
		zap.String("database", cfg.DatabaseURL),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model))

	// Initialize store
	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.Close()

	// Initialize assessment model
	model, err := llm.NewModel(ctx, llm.Settings{
		Provider: cfg.LLM.Provider,
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.ModelTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize model client: %w", err)
	}

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	h := hub.New(logger.Named("hub"))
	svc := service.New(db, model, policyEngine, h, cfg, logger.Named("service"))
	e := transport.NewServer(cfg, svc, auth.NewVerifier(cfg.JWTSecret), h, logger.Named("http"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h.Run(gctx)
		return nil
	})
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		logger.Info("HTTP API listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		// Graceful shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shutdown HTTP server gracefully", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("medeval stopped")
	return nil
}

