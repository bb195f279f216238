// Command ringkv launches a single node of the cluster: it loads a
// YAML config naming this node's endpoint and the cluster topology,
// opens the local storage engine, wires the replication coordinator,
// and serves the HTTP surface until interrupted. Grounded on the
// teacher's cmd/server/main.go (flag parsing, config-then-construct-
// then-serve shape), generalized from its flat flag set to a config
// file since a node's configuration here includes a whole topology
// list rather than a handful of scalars.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mnohosten/ringkv/internal/api"
	"github.com/mnohosten/ringkv/internal/cluster"
	"github.com/mnohosten/ringkv/internal/config"
	"github.com/mnohosten/ringkv/internal/lsm"
	"github.com/mnohosten/ringkv/internal/metrics"
	"github.com/mnohosten/ringkv/internal/store"
)

func main() {
	configPath := flag.String("config", "ringkv.yaml", "Path to the node's YAML configuration file")
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	flag.Parse()

	logger := newLogger(*logFormat)
	slog.SetDefault(logger)

	if err := run(*configPath, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func newLogger(format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	engine, err := lsm.Open(lsm.Config{
		Dir:              cfg.DataDir,
		MaxMemtableBytes: cfg.MaxMemtableBytes,
	})
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}

	topology := cluster.NewTopology(cfg.Topology)
	selfID, ok := topology.SelfID(cfg.Self)
	if !ok {
		return fmt.Errorf("self endpoint %q not found in topology", cfg.Self)
	}

	pools := make(map[int]*cluster.ReplicaPool, topology.Len()-1)
	for i := 0; i < topology.Len(); i++ {
		if i == selfID {
			continue
		}
		pools[i] = cluster.NewReplicaPool("http://"+topology.Endpoint(i), cfg.ReplicaPoolSize, cfg.SubrequestTimeout)
	}

	registry := metrics.NewRegistry()

	localStore := store.New(engine)
	coordinator := cluster.NewCoordinator(cluster.CoordinatorConfig{
		Topology:           topology,
		SelfID:             selfID,
		Local:              localStore.Handle,
		Pools:              pools,
		SubrequestTimeout:  cfg.SubrequestTimeout,
		ReadRepairPoolSize: cfg.ReadRepairPoolWorkers,
		Logger:             logger,
		Metrics:            registry,
	})

	srv := api.New(cfg.Host, api.Config{
		Engine:        engine,
		Local:         localStore.Handle,
		Coordinator:   coordinator,
		Topology:      topology,
		SelfID:        selfID,
		Metrics:       registry,
		Logger:        logger,
		EntityWorkers: cfg.EntityPoolWorkers,
		ReadTimeout:   cfg.ReadTimeout,
		WriteTimeout:  cfg.WriteTimeout,
		IdleTimeout:   cfg.IdleTimeout,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("node starting", "host", cfg.Host, "self_id", selfID, "data_dir", cfg.DataDir)
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
