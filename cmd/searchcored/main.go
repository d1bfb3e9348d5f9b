// Command searchcored runs the hyperparameter search coordination service:
// it opens the configured stores, starts the dead-worker reaper, and serves
// operational endpoints until interrupted.
package main

import (
	"context"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"searchcore/internal/config"
	"searchcore/internal/core"
	"searchcore/internal/infra/artifact"
	"searchcore/internal/infra/persistence/memory"
	"searchcore/internal/infra/persistence/postgres"
	"searchcore/internal/infra/persistence/sqlite"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("searchcored", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var configPath string
	var listenAddr string
	fs.StringVar(&configPath, "config", "", "path to config file (yaml)")
	fs.StringVar(&listenAddr, "listen", ":8421", "address for operational endpoints")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, listenAddr, stdout); err != nil {
		fmt.Fprintf(stderr, "searchcored: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "searchcored stopped.")
	return 0
}

// buildService assembles the service and the metrics handler from config.
func buildService(cfg config.Config) (*core.Service, http.Handler, error) {
	store, err := openStore(cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	artifacts, err := openArtifacts(cfg.Artifact)
	if err != nil {
		return nil, nil, err
	}

	opts := []core.Option{core.WithArtifactStore(artifacts)}
	var metricsHandler http.Handler
	switch cfg.Observability.MetricsExporter {
	case "", "none":
	case "expvar":
		opts = append(opts, core.WithMetricsRecorder(core.NewExpvarMetricsRecorder("")))
		metricsHandler = expvar.Handler()
	case "prometheus":
		reg := prometheus.NewRegistry()
		rec, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, core.WithMetricsRecorder(rec))
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	default:
		return nil, nil, fmt.Errorf("unknown metrics exporter %s", cfg.Observability.MetricsExporter)
	}

	if cfg.Observability.TracePath != "" {
		f, err := os.OpenFile(cfg.Observability.TracePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open trace file: %w", err)
		}
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f)))
	}

	return core.NewService(store, opts...), metricsHandler, nil
}

func openArtifacts(cfg config.ArtifactConfig) (core.ArtifactStore, error) {
	switch artifact.Driver(cfg.Driver) {
	case artifact.DriverMemory:
		return artifact.NewMemory(), nil
	case artifact.DriverFilesystem:
		return artifact.NewFilesystem(cfg.FSRoot)
	case artifact.DriverS3:
		return artifact.NewS3(context.Background(), artifact.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown artifact driver %s", cfg.Driver)
	}
}

func openStore(cfg config.StorageConfig) (core.PersistentStore, error) {
	engine := core.NewDefaultRulesEngine()
	switch core.StorageDriver(cfg.Driver) {
	case core.StorageMemory:
		return memory.NewStore(engine), nil
	case core.StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath, engine)
	case core.StoragePostgres:
		return postgres.NewStore(cfg.PostgresDSN, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

func run(ctx context.Context, cfg config.Config, listenAddr string, stdout io.Writer) error {
	svc, metricsHandler, err := buildService(cfg)
	if err != nil {
		return err
	}

	var srv *http.Server
	serveErr := make(chan error, 1)
	if metricsHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		srv = &http.Server{Addr: listenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
		fmt.Fprintf(stdout, "serving operational endpoints on %s\n", listenAddr)
	}

	reapTicker := time.NewTicker(cfg.Lease.ReapInterval())
	defer reapTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}
			return nil
		case err := <-serveErr:
			return err
		case <-reapTicker.C:
			if _, err := svc.ReapDeadWorkers(ctx, cfg.Lease.HeartbeatTTL()); err != nil {
				fmt.Fprintf(stdout, "reap dead workers: %v\n", err)
			}
		}
	}
}
