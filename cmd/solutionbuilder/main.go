// Solution builder orchestration server: translates natural-language
// infrastructure requests into streamed structured answers by brokering a
// fleet of MCP tool-servers through warm client pools.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/satishdosapati/solutionbuilder-core/pkg/api"
	"github.com/satishdosapati/solutionbuilder-core/pkg/config"
	"github.com/satishdosapati/solutionbuilder-core/pkg/llm"
	"github.com/satishdosapati/solutionbuilder-core/pkg/masking"
	"github.com/satishdosapati/solutionbuilder-core/pkg/orchestrator"
	"github.com/satishdosapati/solutionbuilder-core/pkg/pool"
	"github.com/satishdosapati/solutionbuilder-core/pkg/session"
	"github.com/satishdosapati/solutionbuilder-core/pkg/version"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	slog.Info("Starting solution builder", "version", version.Full())

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	oracleCfg, err := llm.NewOpenAIConfigFromEnv()
	if err != nil {
		slog.Error("Failed to configure LLM oracle", "error", err)
		os.Exit(1)
	}
	oracle, err := llm.NewOpenAIOracle(oracleCfg)
	if err != nil {
		slog.Error("Failed to create LLM oracle", "error", err)
		os.Exit(1)
	}

	pools := pool.NewManager(pool.Options{
		Size:           cfg.PoolSize,
		SizeSet:        true,
		MaxWait:        cfg.PoolMaxWait,
		StartupTimeout: cfg.StartupTimeout,
		ToolTimeout:    cfg.ToolTimeout,
	})

	sessions := session.NewStore(cfg.SessionIdleTTL, cfg.SweepInterval, cfg.ContextBudgetChars)
	sessions.Start(context.Background())

	// Server entries may add deny substrings on top of the built-in denylist.
	var extraDeny []string
	for _, key := range cfg.Servers.Keys() {
		if serverCfg, err := cfg.Servers.Get(key); err == nil {
			extraDeny = append(extraDeny, serverCfg.DenySubstrings...)
		}
	}

	opts := orchestrator.Options{}
	orch := orchestrator.New(
		pools,
		sessions,
		cfg.Servers,
		oracle,
		orchestrator.NewSanitizer(opts, extraDeny),
		masking.NewMasker(nil),
		opts,
	)

	server := api.NewServer(orch, sessions, pools)

	// Serve until a shutdown signal arrives, then drain and tear down.
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(":" + cfg.HTTPPort)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			slog.Error("HTTP server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}

	sessions.Stop()
	pools.Shutdown()
	slog.Info("Shutdown complete")
}
