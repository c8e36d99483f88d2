package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jonwraymond/upstreamguard/cache"
	"github.com/jonwraymond/upstreamguard/config"
	"github.com/jonwraymond/upstreamguard/invoker"
	"github.com/jonwraymond/upstreamguard/observe"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ops server",
		Long:  "Serve /healthz, /readyz, /health, /debug/cache, /debug/calls and /metrics until SIGINT or SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.Server.ListenAddr = listenAddr
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (overrides server.listen_addr)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	obsCfg := cfg.Observe
	obsCfg.Registerer = registry
	obs, err := observe.NewObserver(ctx, obsCfg)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	logger := obs.Logger()

	inst, err := observe.InstrumentationFromObserver(obs)
	if err != nil {
		_ = obs.Shutdown(ctx)
		return fmt.Errorf("init instrumentation: %w", err)
	}

	resultCache := cache.NewMemoryCache[any](cfg.CacheOptions()...)
	inv := invoker.New(resultCache, append(invoker.FromConfig(cfg), invoker.WithInstrumentation(inst))...)

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: newHandler(inv, registry, logger),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "upstreamd started",
			observe.Field{Key: "addr", Value: cfg.Server.ListenAddr},
			observe.Field{Key: "cache_max_size", Value: cfg.Cache.MaxSize},
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var serveErr error
	select {
	case sig := <-sigCh:
		logger.Info(ctx, "shutdown signal received", observe.Field{Key: "signal", Value: sig.String()})
	case <-ctx.Done():
	case err := <-errCh:
		serveErr = fmt.Errorf("ops server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	errs := []error{serveErr}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http: %w", err))
	}
	if err := resultCache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close cache: %w", err))
	}
	logger.Info(shutdownCtx, "upstreamd stopped")
	if err := obs.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown observability: %w", err))
	}
	return errors.Join(errs...)
}
