// Package main is the entry point for the scoutcache diagnostics CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Adventurous-Bytes/scout-sub000/internal/cache"
	"github.com/Adventurous-Bytes/scout-sub000/internal/config"
	"github.com/Adventurous-Bytes/scout-sub000/internal/metrics"
	"github.com/Adventurous-Bytes/scout-sub000/internal/model"
	"github.com/Adventurous-Bytes/scout-sub000/internal/server"
	"github.com/Adventurous-Bytes/scout-sub000/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "scoutcache",
		Short: "Scout offline cache diagnostics",
		Long: `scoutcache inspects and manages the on-device cache the Scout
wildlife-monitoring application keeps for herd monitoring-site modules.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (defaults to $SCOUTCACHE_CONFIG, then built-in defaults)")

	rootCmd.AddCommand(
		newStatsCmd(&configPath),
		newHealthCmd(&configPath),
		newResetCmd(&configPath),
		newWarmCmd(&configPath),
		newServeCmd(&configPath),
	)
	return rootCmd
}

// env holds everything a subcommand needs once config and wiring are done.
type env struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	store    store.Store
	manager  *cache.Manager[model.Module]
}

func setup(configPath string) (*env, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("SCOUTCACHE_CONFIG")
	}

	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	var st store.Store
	if cfg.Store.InMemory {
		st = store.NewMemoryStore(cfg.Store.SchemaVersion, logger)
	} else {
		st = store.NewSQLiteStore(&store.SQLiteConfig{
			Path:          cfg.Store.Path,
			SchemaVersion: cfg.Store.SchemaVersion,
		}, logger)
	}

	registry := prometheus.NewRegistry()
	opts := []cache.Option[model.Module]{
		cache.WithLogger[model.Module](logger),
		cache.WithMetrics[model.Module](metrics.NewMetrics(registry)),
		cache.WithFormatVersion[model.Module](cfg.Cache.FormatVersion),
	}
	if len(cfg.Cache.Dependents) > 0 {
		opts = append(opts, cache.WithDependents[model.Module](cfg.Cache.Collection, cfg.Cache.Dependents...))
	}

	return &env{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		store:    st,
		manager:  cache.NewManager(st, opts...),
	}, nil
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = level
	return zapCfg.Build()
}

func newStatsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print cache statistics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			stats := e.manager.Stats(cmd.Context(), e.cfg.Cache.Collection)
			return printJSON(cmd, stats)
		},
	}
}

func newHealthCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run cache health probes",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			report := e.manager.CheckHealth(cmd.Context(), e.cfg.Cache.Collection)
			if err := printJSON(cmd, report); err != nil {
				return err
			}
			if !report.Healthy {
				return fmt.Errorf("cache is unhealthy")
			}
			return nil
		},
	}
}

func newResetCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete the cache database entirely",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			if err := e.manager.ResetDatabase(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("cache database deleted")
			return nil
		},
	}
}

func newWarmCmd(configPath *string) *cobra.Command {
	var fixture string

	warmCmd := &cobra.Command{
		Use:   "warm",
		Short: "Preload the cache from a JSON fixture of modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			load := func(ctx context.Context) ([]model.Module, error) {
				data, err := os.ReadFile(fixture)
				if err != nil {
					return nil, err
				}
				var modules []model.Module
				if err := json.Unmarshal(data, &modules); err != nil {
					return nil, err
				}
				return modules, nil
			}

			e.manager.Preload(cmd.Context(), e.cfg.Cache.Collection, load, e.cfg.Cache.DefaultTTL)
			e.manager.Wait()
			return printJSON(cmd, e.manager.Stats(cmd.Context(), e.cfg.Cache.Collection))
		},
	}
	warmCmd.Flags().StringVar(&fixture, "fixture", "", "path to a JSON array of modules")
	warmCmd.MarkFlagRequired("fixture")
	return warmCmd
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve health, stats and metrics endpoints over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			srv := server.NewServer(&server.Config{
				Port:         e.cfg.Server.Port,
				Collection:   e.cfg.Cache.Collection,
				MetricsPath:  e.cfg.Metrics.Path,
				ReadTimeout:  e.cfg.Server.ReadTimeout,
				WriteTimeout: e.cfg.Server.WriteTimeout,
			}, e.manager, e.registry, e.logger)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				e.logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
			}

			ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return err
			}
			e.manager.Wait()
			return e.store.Close()
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(out))
	return nil
}
