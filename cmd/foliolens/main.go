// Command foliolens starts the portfolio analysis API server.
//
// The server drives a tool-augmented conversation with a generative
// backend over caller-supplied portfolio documents and streams progress
// and the final structured analysis over SSE.
//
// Usage:
//
//	ANTHROPIC_API_KEY=... go run ./cmd/foliolens
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/health
//
//	# Streaming analysis
//	curl -N -X POST http://localhost:8080/v1/analyze/stream \
//	  -H "Content-Type: application/json" \
//	  -d '{"documents":[{"name":"portfolio.txt","text":"60% VTI, 40% BND"}],
//	       "profile":{"riskTolerance":"balanced","horizonYears":20}}'
//
//	# Bulk reference lookups
//	curl -X POST http://localhost:8080/v1/returns/bulk \
//	  -H "Content-Type: application/json" \
//	  -d '{"assetClasses":["us_large_cap","us_bonds"]}'
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/foliolens/foliolens/analysis"
	"github.com/foliolens/foliolens/llm"
	"github.com/foliolens/foliolens/refdata"
	"github.com/foliolens/foliolens/server"
)

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging and gin debug mode")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := server.LoadConfig()
	if err != nil {
		logger.Error("loading configuration", "error", err)
		os.Exit(1)
	}

	client := llm.NewClientFromEnv()
	defer client.Close()

	table := refdata.NewTable()
	registry := analysis.NewToolRegistry()
	analysis.RegisterMarketDataTools(registry, table)
	if cfg.EnableWebSearch {
		logger.Warn("web search requested but no search provider is built in; running without it")
	}

	handlers := server.NewHandlers(cfg, client, registry, table, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	if *debug {
		router.Use(gin.Logger())
	}
	server.RegisterRoutes(router, handlers)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	go func() {
		logger.Info("starting foliolens server", "address", cfg.Addr, "tools", registry.Names())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
