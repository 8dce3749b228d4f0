// Command chantierd serves the chantiercore HTTP API.
//
// Configuration is environment driven:
//
//	CHANTIERCORE_HTTP_ADDR      listen address (default :8080)
//	CHANTIERCORE_STORAGE_DRIVER memory|sqlite|postgres (default sqlite)
//	CHANTIERCORE_BLOB_DRIVER    fs|s3|memory (default fs), import archives
//
// Storage and blob specific variables are documented in their packages.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chantiercore/internal/adapters/api"
	"chantiercore/internal/blob"
	"chantiercore/internal/core"
)

// slogAdapter bridges the service Logger interface onto log/slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Debug(msg string, args ...any) { a.logger.Debug(msg, args...) }
func (a slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	if err := run(logger); err != nil {
		logger.Error("chantierd exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine())
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	opts := []core.Option{
		core.WithLogger(slogAdapter{logger: logger}),
		core.WithMetricsRecorder(core.NewPrometheusMetricsRecorder(registry)),
	}

	blobStore, err := blob.Open(ctx)
	if err != nil {
		return err
	}
	opts = append(opts, core.WithImportArchiver(blob.NewImportArchive(blobStore)))

	svc := core.NewService(store, opts...)
	handler := api.NewHandler(svc, api.HeaderIdentityProvider{}, api.WithHandlerLogger(slogAdapter{logger: logger}))

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", handler.Router())
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := os.Getenv("CHANTIERCORE_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
