package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/boyiajas/omni247-sub001/internal/adapter/api"
	"github.com/boyiajas/omni247-sub001/internal/adapter/cli"
	"github.com/boyiajas/omni247-sub001/internal/adapter/observability"
	jsonout "github.com/boyiajas/omni247-sub001/internal/adapter/output/json"
	"github.com/boyiajas/omni247-sub001/internal/adapter/output/markdown"
	"github.com/boyiajas/omni247-sub001/internal/adapter/queue"
	"github.com/boyiajas/omni247-sub001/internal/adapter/store/sqlite"
	"github.com/boyiajas/omni247-sub001/internal/config"
	"github.com/boyiajas/omni247-sub001/internal/usecase/policy"
	"github.com/boyiajas/omni247-sub001/internal/usecase/verify"
)

// version is injected at build time via -ldflags.
var version = "v0.0.0"

func main() {
	if err := run(); err != nil {
		if errors.Is(err, cli.ErrVersionRequested) {
			return
		}
		log.Println(err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPaths: defaultConfigPaths(),
		FileName:    "verifier",
		EnvPrefix:   "OMNI",
	})
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	logger := observability.NewDefaultLogger(
		observability.ParseLevel(cfg.Observability.Logging.Level),
		observability.ParseFormat(cfg.Observability.Logging.Format),
	)

	if dir := filepath.Dir(cfg.Store.Path); dir != "" && dir != "." && cfg.Store.Path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create store directory: %w", err)
		}
	}
	store, err := sqlite.NewStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	resolver := policy.NewResolver(store, logger)
	resolver.ValidateTiers(ctx)

	runTimeout, err := time.ParseDuration(cfg.Verification.RunTimeout)
	if err != nil {
		logger.LogWarning(ctx, "invalid run timeout, using default", map[string]interface{}{
			"value": cfg.Verification.RunTimeout,
		})
		runTimeout = verify.DefaultRunTimeout
	}

	orchestrator, err := verify.NewOrchestrator(verify.OrchestratorDeps{
		Policy:     resolver,
		Nearby:     store,
		Logger:     logger,
		RunTimeout: runTimeout,
	})
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	var auditors []verify.AuditWriter
	if cfg.Verification.Artifacts {
		auditors = append(auditors,
			jsonout.NewWriter(cfg.Output.Directory),
			markdown.NewWriter(cfg.Output.Directory),
		)
	}

	service, err := verify.NewService(verify.ServiceDeps{
		Repo:         store,
		Policy:       resolver,
		Orchestrator: orchestrator,
		Logger:       logger,
		Rewards:      rewardLogger{logger: logger},
		Auditors:     auditors,
	})
	if err != nil {
		return fmt.Errorf("build verification service: %w", err)
	}

	deps := cli.Dependencies{
		Verifier: service,
		Server: &daemon{
			cfg:     cfg,
			service: service,
			logger:  logger,
		},
		Version: version,
	}

	root := cli.NewRootCommand(deps)
	return root.ExecuteContext(ctx)
}

// daemon runs the AMQP job consumer and the operational HTTP surface until
// the context is cancelled.
type daemon struct {
	cfg     config.Config
	service *verify.Service
	logger  *observability.DefaultLogger
}

func (d *daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var consumer *queue.JobConsumer
	if d.cfg.Queue.URL != "" {
		var err error
		consumer, err = queue.NewJobConsumer(queue.ConsumerConfig{
			URL:         d.cfg.Queue.URL,
			JobQueue:    d.cfg.Queue.JobQueue,
			ResultQueue: d.cfg.Queue.ResultQueue,
			Workers:     d.cfg.Queue.Workers,
		}, d.service, d.logger)
		if err != nil {
			return fmt.Errorf("start job consumer: %w", err)
		}
		go consumer.StartConsuming(ctx)
		d.logger.LogInfo(ctx, "job consumer listening", map[string]interface{}{
			"queue": d.cfg.Queue.JobQueue,
		})
	} else {
		d.logger.LogWarning(ctx, "queue URL not configured, job consumer will not start", nil)
	}

	var httpErr chan error
	var srv *http.Server
	if d.cfg.Server.Enabled {
		router := api.SetupRouter(d.cfg.Server.Mode, d.service)
		srv = &http.Server{
			Addr:    fmt.Sprintf(":%d", d.cfg.Server.Port),
			Handler: router,
		}
		httpErr = make(chan error, 1)
		go func() {
			d.logger.LogInfo(ctx, "http server listening", map[string]interface{}{
				"addr": srv.Addr,
			})
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				httpErr <- err
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-orNever(httpErr):
		cancel()
	}

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			d.logger.LogWarning(context.Background(), "http server shutdown error", map[string]interface{}{
				"error": err.Error(),
			})
		}
		shutdownCancel()
	}
	if consumer != nil {
		consumer.Stop()
		consumer.Close()
	}

	d.logger.LogInfo(context.Background(), "shutdown complete", nil)
	return serveErr
}

// orNever returns ch, or a channel that never fires when ch is nil, so the
// select above works whether or not the HTTP server is enabled.
func orNever(ch chan error) <-chan error {
	if ch != nil {
		return ch
	}
	return make(chan error)
}

// rewardLogger records the first transition into verified; reward issuance
// itself is handled by the reporting service consuming the result queue.
type rewardLogger struct {
	logger *observability.DefaultLogger
}

func (r rewardLogger) FirstVerification(ctx context.Context, reportID, userID string) {
	r.logger.LogInfo(ctx, "report verified for the first time", map[string]interface{}{
		"report_id": reportID,
		"user_id":   userID,
	})
}

func defaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "verifier"))
	}
	return paths
}
