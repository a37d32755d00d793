package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgemcp/gateway/internal/bm25"
	"github.com/forgemcp/gateway/internal/catalog"
	"github.com/forgemcp/gateway/internal/config"
	"github.com/forgemcp/gateway/internal/coordinator"
	"github.com/forgemcp/gateway/internal/features/science"
	"github.com/forgemcp/gateway/internal/features/tdd"
	"github.com/forgemcp/gateway/internal/hooks"
	"github.com/forgemcp/gateway/internal/janitor"
	"github.com/forgemcp/gateway/internal/loader"
	"github.com/forgemcp/gateway/internal/observability"
	"github.com/forgemcp/gateway/internal/providers"
	"github.com/forgemcp/gateway/internal/rpc"
	"github.com/forgemcp/gateway/internal/store"
)

// buildServeCmd creates the "serve" command that starts the gateway server.
func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		Long: `Start the gateway server and read line-framed JSON-RPC requests from stdin.

The server will:
1. Load configuration from the specified file (or gateway.yaml)
2. Open the embedded sqlite store and rehydrate the tool catalog
3. Construct the first-party feature managers and the hook bus
4. Start the context-snapshot janitor on its schedule
5. Serve list_tools/call_tool over stdin/stdout until EOF or a shutdown signal

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "gateway.yaml", "Path to YAML configuration file")
	return cmd
}

// runServe wires every component together and blocks until stdin closes or
// a shutdown signal arrives.
func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := slog.LevelInfo
	_ = level.UnmarshalText([]byte(cfg.Logging.Level))
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Logging.JSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	logger.Info("starting gateway", "version", version, "commit", commit, "config", configPath)

	st, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "error", err)
		}
	}()

	cat := catalog.New()
	index := bm25.New()
	providerMgr := providers.New(st, index, cat, providers.NewProcessProvider, logger)
	if err := providerMgr.Bootstrap(ctx); err != nil {
		return fmt.Errorf("failed to bootstrap provider catalog: %w", err)
	}
	defer providerMgr.DisconnectAll(context.Background())

	metrics := observability.NewMetrics()
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName: cfg.Observability.ServiceName,
		Endpoint:    cfg.Observability.TracingEndpoint,
		Insecure:    cfg.Observability.TracingInsecure,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Warn("error shutting down tracer", "error", err)
		}
	}()

	bus := hooks.NewBus(logger)
	bus.SetMetrics(metrics)
	coord, _, err := coordinator.New(ctx, st, tdd.ExecRunner{}, science.NullComputeBackend(), bus, logger)
	if err != nil {
		return fmt.Errorf("failed to construct feature coordinator: %w", err)
	}
	for _, desc := range coord.ToolDefinitions() {
		d := desc
		cat.Put(&d)
		index.AddToolOrReplace(&d)
	}

	ld := loader.New(logger)
	ld.SetMaxLayer2(cfg.Loader.MaxLayer2)

	j, err := janitor.New(st, cfg.Janitor.Schedule, cfg.Janitor.MaxAge, logger)
	if err != nil {
		return fmt.Errorf("failed to construct janitor: %w", err)
	}
	j.Start()
	defer j.Stop()

	srv := rpc.New(cat, index, ld, coord, providerMgr, st, bus, cfg.RPC.MaxConcurrentCalls, cfg.RPC.CallTimeout, logger)
	srv.SetObservability(metrics, tracer)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ctx, os.Stdin, os.Stdout)
	}()

	logger.Info("gateway serving list_tools/call_tool over stdio")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	logger.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	providerMgr.DisconnectAll(shutdownCtx)

	logger.Info("gateway stopped gracefully")
	return nil
}
