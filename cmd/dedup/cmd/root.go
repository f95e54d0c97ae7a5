// Package cmd provides the CLI commands for dedup.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dedup"
	"github.com/kailas-cloud/dedup/internal/app"
	"github.com/kailas-cloud/dedup/internal/config"
	dbRedis "github.com/kailas-cloud/dedup/internal/db/redis"
	"github.com/kailas-cloud/dedup/internal/lock"
	logpkg "github.com/kailas-cloud/dedup/internal/logger"
	"github.com/kailas-cloud/dedup/internal/version"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	env        string
	configPath string
	logLevel   string
}

// NewRootCmd creates the root command for the dedup CLI.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Duplicate record detection service",
		Long: `dedup keeps similarity indexes of bibliographic records and answers
"which stored records look like this one" queries across one index or a
union group of indexes.

Configuration is read from config/<env>.yaml, where env comes from --env
or the ENV variable (default: local).`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("dedup version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.env, "env", config.GetEnv(), "Environment name: local, dev, docker, prod")
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a config file (overrides --env lookup)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level override: debug, info, warn, error")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newCheckCmd(opts))
	cmd.AddCommand(newTestCmd(opts))
	cmd.AddCommand(newQueryCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command with signal-aware cancellation.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

// loadConfig reads the config file named by the flags.
func (o *globalOptions) loadConfig() (config.Config, error) {
	if o.configPath != "" {
		return config.LoadFile(o.configPath)
	}
	return config.Load(o.env)
}

// newLogger builds the environment logger, honoring --log-level over the file.
func (o *globalOptions) newLogger(cfg config.Config) (*zap.Logger, error) {
	level := cfg.Logging.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	return logpkg.NewLogger(o.env, level)
}

// appOptions maps the file configuration onto the composition root.
func appOptions(cfg config.Config, logger *zap.Logger) app.Options {
	return app.Options{
		WorkDir:    cfg.Registry.WorkDir,
		ConfigFile: cfg.Registry.ConfigFile,
		Driver:     cfg.Engine.Driver,
		Redis: dbRedis.Config{
			Addrs:     cfg.Engine.Redis.Addrs,
			Username:  cfg.Engine.Redis.Username,
			Password:  cfg.Engine.Redis.Password,
			DB:        cfg.Engine.Redis.DB,
			KeyPrefix: cfg.Engine.Redis.KeyPrefix,
		},
		ReadinessTimeout: time.Duration(cfg.Engine.Redis.ReadinessTimeout) * time.Second,
		MinSimilarity:    cfg.Engine.MinSimilarity,
		MaxCandidates:    cfg.Engine.MaxCandidates,
		CacheSize:        cfg.Engine.CacheSize,
		DefaultQuantity:  cfg.Query.DefaultQuantity,
		SearchTimeout:    time.Duration(cfg.Query.TimeoutSec) * time.Second,
		Logger:           logger,
	}
}

// clientOptions maps the file configuration onto the embeddable client.
func clientOptions(cfg config.Config, logger *zap.Logger) []dedup.Option {
	opts := []dedup.Option{
		dedup.WithWorkDir(cfg.Registry.WorkDir),
		dedup.WithConfigFile(cfg.Registry.ConfigFile),
		dedup.WithMinSimilarity(cfg.Engine.MinSimilarity),
		dedup.WithMaxCandidates(cfg.Engine.MaxCandidates),
		dedup.WithSearchCache(cfg.Engine.CacheSize),
		dedup.WithDefaultQuantity(cfg.Query.DefaultQuantity),
		dedup.WithSearchTimeout(time.Duration(cfg.Query.TimeoutSec) * time.Second),
		dedup.WithLogger(logger),
	}
	switch cfg.Engine.Driver {
	case config.DriverMemory:
		opts = append(opts, dedup.WithMemory())
	case config.DriverRedis:
		opts = append(opts,
			dedup.WithRedis(cfg.Engine.Redis.Addrs[0], cfg.Engine.Redis.Password),
			dedup.WithKeyPrefix(cfg.Engine.Redis.KeyPrefix),
			dedup.WithReadinessTimeout(time.Duration(cfg.Engine.Redis.ReadinessTimeout)*time.Second),
		)
	default:
		opts = append(opts, dedup.WithBleve())
	}
	return opts
}

// lockWorkDir takes the work dir lock when the driver keeps indexes on disk.
// The returned release func is never nil.
func lockWorkDir(cfg config.Config) (func(), error) {
	if cfg.Engine.Driver != config.DriverBleve {
		return func() {}, nil
	}
	l, err := lock.Acquire(cfg.Registry.WorkDir)
	if errors.Is(err, lock.ErrLocked) {
		return nil, fmt.Errorf("work dir %s is in use by another dedup process: %w", cfg.Registry.WorkDir, err)
	}
	if err != nil {
		return nil, err
	}
	return func() { _ = l.Release() }, nil
}

// openClient loads config, takes the work dir lock and opens a client.
// The returned cleanup closes everything in reverse order.
func (o *globalOptions) openClient(ctx context.Context) (*dedup.Client, func(), error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := o.newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	release, err := lockWorkDir(cfg)
	if err != nil {
		return nil, nil, err
	}
	c, err := dedup.New(ctx, clientOptions(cfg, logger)...)
	if err != nil {
		release()
		return nil, nil, err
	}
	return c, func() {
		_ = c.Close()
		release()
		_ = logger.Sync()
	}, nil
}
