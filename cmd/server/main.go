// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/time/rate"
	_ "modernc.org/sqlite"

	"libralend/internal/audit"
	"libralend/internal/catalog"
	"libralend/internal/config"
	"libralend/internal/ledger"
	"libralend/internal/lending"
	"libralend/internal/metrics"
	"libralend/internal/storage"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		exporter, err := otlptracehttp.New(ctx)
		if err != nil {
			log.Fatalf("Failed to create trace exporter: %v", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		otel.SetTracerProvider(tp)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				slog.Error("trace provider shutdown failed", slog.String("error", err.Error()))
			}
		}()
	}

	store, err := storage.Open(cfg.StorageDriver, cfg.StorageDSN)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	books, issuances, entries, err := store.LoadAll(ctx)
	if err != nil {
		log.Fatalf("Failed to load state: %v", err)
	}

	cat := catalog.NewStore()
	cat.Restore(books)
	led := ledger.NewLedger()
	led.Restore(issuances)
	auditLog := audit.NewLog()
	auditLog.Restore(entries)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	svc := lending.NewService(cat, led, auditLog, store, collector)
	limiter := rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMinute)/60.0), cfg.RateLimitBurst)
	handler := lending.NewHandler(svc, limiter)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/books", handler.HandleAddBook)
	r.Get("/books", handler.HandleListBooks)
	r.Post("/issue", handler.HandleIssue)
	r.Post("/return", handler.HandleReturn)
	r.Get("/reports/most-borrowed", handler.HandleMostBorrowed)
	r.Get("/log/export", handler.HandleExportLog)
	r.Handle("/metrics", metrics.Handler(registry))

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		slog.Info("lending service listening", slog.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", slog.String("error", err.Error()))
	}
}
