package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BerylCAtieno/cpg-trends-agent/internal/a2a"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/agent"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/api"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/config"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/dashboard"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/gemini"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/insights"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/logger"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/trends"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info").Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	// Initialize Gemini client
	geminiClient, err := gemini.NewClient(ctx, gemini.Options{
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.GeminiModel,
	})
	if err != nil {
		log.Error("failed to create Gemini client", "error", err)
		os.Exit(1)
	}
	defer geminiClient.Close()

	pipeline := insights.NewPipeline(geminiClient, insights.OptionsFromConfig(cfg.Insights), log)
	runner, err := insights.NewRunner(pipeline, cfg.Insights.RunHistory, log)
	if err != nil {
		log.Error("failed to create insights runner", "error", err)
		os.Exit(1)
	}

	trendsClient := trends.NewClient(trends.Options{
		BaseURL:    cfg.TrendsBaseURL,
		Timeout:    cfg.TrendsTimeout,
		CacheTTL:   cfg.TrendsCacheTTL,
		CacheSize:  cfg.TrendsCacheSize,
		RatePerSec: cfg.TrendsRatePerSec,
	}, log)

	var provider dashboard.Provider = dashboard.NewMockProvider()
	if cfg.DashboardDataSource == config.DataSourceBackend {
		provider = dashboard.NewBackendProvider(trendsClient)
	}
	dash := dashboard.NewService(provider, cfg.KeywordGroups, cfg.DashboardSources, cfg.DashboardCategory, log)

	if err := agent.LoadAgentCard(cfg.PublicURL); err != nil {
		log.Error("failed to load agent card", "error", err)
		os.Exit(1)
	}

	a2aHandler := a2a.NewA2AHandler(runner, log, cfg.PublicURL, cfg.A2ABlockTimeout)
	handlers := api.NewHandlers(runner, pipeline, trendsClient, dash, log)
	router := api.NewRouter(handlers, a2aHandler, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("CPG trends agent starting",
			"port", cfg.Port,
			"model", geminiClient.Model(),
			"dashboard_data_source", cfg.DashboardDataSource,
			"agent_card", cfg.PublicURL+"/.well-known/agent.json",
			"a2a_endpoint", cfg.PublicURL+"/a2a/insights",
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		log.Error("insights runner did not stop in time", "error", err)
	}
	log.Info("server stopped")
}
