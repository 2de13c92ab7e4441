package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"dijon/internal/api"
	"dijon/internal/config"
	"dijon/internal/llm"
	"dijon/internal/store"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	st, err := openStore(cfg)
	if err != nil {
		logger.Fatal("failed to initialize store",
			zap.Error(err),
			zap.String("store", cfg.Store),
			zap.String("dataDir", cfg.DataDir))
	}
	defer st.Close()

	var completer api.Completer
	if cfg.OpenAI.APIKey == "" {
		logger.Warn("OPENAI_API_KEY is not set; chat requests will fail until it is configured")
	} else {
		svc, err := llm.New(llm.Config{
			APIKey:             cfg.OpenAI.APIKey,
			BaseURL:            cfg.OpenAI.BaseURL,
			Model:              cfg.OpenAI.Model,
			Temperature:        cfg.OpenAI.Temperature,
			MaxTokens:          cfg.OpenAI.MaxTokens,
			HistoryWindow:      cfg.HistoryWindow,
			HistoryTokenBudget: cfg.HistoryTokenBudget,
		}, logger)
		if err != nil {
			logger.Fatal("failed to initialize completion client", zap.Error(err))
		}
		completer = svc
	}

	handler := api.NewHandler(st, completer,
		time.Duration(cfg.UpstreamTimeoutSeconds)*time.Second, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", handler.HandleChat)
	mux.HandleFunc("/api/chat/history", handler.HandleHistory)
	mux.HandleFunc("/health", handler.HandleHealth)

	cors := api.NewCORS(cfg.AllowedOrigins)
	if cors.AllowAll() {
		logger.Warn("no allowed origins configured, allowing all origins")
	}
	limiter := api.NewRateLimiter(cfg.RateLimit.Max,
		time.Duration(cfg.RateLimit.WindowSeconds)*time.Second)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("starting server",
		zap.String("addr", addr),
		zap.String("store", cfg.Store),
		zap.String("model", cfg.OpenAI.Model))
	if err := http.ListenAndServe(addr, cors.Middleware(limiter.Middleware(mux))); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store {
	case "sqlite":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return store.NewSQLite(filepath.Join(cfg.DataDir, "dijon.db"))
	default:
		return store.NewFile(cfg.DataDir)
	}
}
