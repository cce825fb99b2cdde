package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/zheng/gpuswitch/internal/catalog"
	"github.com/zheng/gpuswitch/internal/engine"
	"github.com/zheng/gpuswitch/internal/envconfig"
	"github.com/zheng/gpuswitch/internal/gateway"
	"github.com/zheng/gpuswitch/internal/hostinfo"
	"github.com/zheng/gpuswitch/internal/httpapi"
	"github.com/zheng/gpuswitch/internal/leasemonitor"
	"github.com/zheng/gpuswitch/internal/metrics"
	"github.com/zheng/gpuswitch/internal/orchestrator"
	"github.com/zheng/gpuswitch/internal/state"
)

func main() {
	root := &cobra.Command{
		Use:   "switchd",
		Short: "GPU mode/model switcher daemon",
	}
	root.AddCommand(serveCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the switch engine and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		log.Info().Msgf(format, args...)
	})); err != nil {
		log.Warn().Err(err).Msg("automaxprocs: failed to set GOMAXPROCS")
	}

	cfg, err := envconfig.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	store := state.New(cfg.ConfigDir, cfg.TemplateDir)
	port := orchestrator.NewHTTPPort(cfg.OrchBaseURL, cfg.DockerTimeout)
	probe := gateway.NewHTTPProbe(cfg.LiteLLMModelsURL, cfg.LiteLLMKey, cfg.PollInterval)

	eng := engine.New(cat, store, port, probe, engine.Config{
		HealthTimeout:        cfg.HealthTimeout,
		PollInterval:         cfg.PollInterval,
		LiteLLMVerifyTimeout: cfg.LiteLLMVerifyTimeout,
		ComfyDefaultTTL:      cfg.ComfyDefaultTTL,
		ComfyMaxTTL:          cfg.ComfyMaxTTL,
		DefaultModel:         cfg.DefaultModel,
	}, log).WithRAMFetcher(hostinfo.ProcMeminfoFetcher{})

	eng.Reconcile()

	monitor := leasemonitor.New(store, eng, cfg.ModeMonitorPoll, log)
	monitor.Start(ctx)
	defer monitor.Shutdown()

	metricsCollector := metrics.New(prometheus.DefaultRegisterer)
	router := httpapi.Router(eng, metricsCollector, cfg.AdminToken, cfg.SwitchRateLimitPerMinute, log)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
