package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/roach88/dotlog/internal/config"
	"github.com/roach88/dotlog/internal/dotfiles"
	"github.com/roach88/dotlog/internal/host"
	"github.com/roach88/dotlog/internal/metrics"
	"github.com/roach88/dotlog/internal/recstore"
	"github.com/roach88/dotlog/internal/seal"
	"github.com/roach88/dotlog/internal/store"
)

// errNotInitialized is returned when the key or host id file is missing.
var errNotInitialized = errors.New("dotlog is not initialized (run dotlog init)")

// appEnv is everything a command needs once dotlog is initialized.
type appEnv struct {
	cfg     *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	key     seal.Key
	host    host.ID
	db      *store.Store
	records *recstore.Store
}

// loadConfig resolves and loads the config file named by --config,
// DOTLOG_CONFIG, or the default location.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(config.ResolvePath(opts.ConfigPath))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from the logging config. --verbose
// forces debug level.
func newLogger(cfg config.LoggingConfig, verbose bool, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// loadIdentity reads the shared key and this host's id. Missing files mean
// init has not run.
func loadIdentity(cfg *config.Config) (seal.Key, host.ID, error) {
	key, err := seal.LoadKey(cfg.KeyPath)
	if errors.Is(err, os.ErrNotExist) {
		return seal.Key{}, host.Nil, WrapExitError(ExitCommandError, "no key", errNotInitialized)
	}
	if err != nil {
		return seal.Key{}, host.Nil, WrapExitError(ExitCommandError, "failed to load key", err)
	}

	id, err := host.Load(cfg.HostIDPath)
	if errors.Is(err, os.ErrNotExist) {
		return seal.Key{}, host.Nil, WrapExitError(ExitCommandError, "no host id", errNotInitialized)
	}
	if err != nil {
		return seal.Key{}, host.Nil, WrapExitError(ExitCommandError, "failed to load host id", err)
	}
	return key, id, nil
}

// openEnv loads config and identity, opens the record store and builds the
// store facade. The caller must Close the result.
func openEnv(opts *RootOptions, cmd *cobra.Command) (*appEnv, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Logging, opts.Verbose, cmd.ErrOrStderr())

	key, id, err := loadIdentity(cfg)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(cfg.RecordStorePath); errors.Is(err, os.ErrNotExist) {
		return nil, WrapExitError(ExitCommandError, "no record store", errNotInitialized)
	}
	db, err := store.Open(cfg.RecordStorePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open record store", err)
	}

	// Metrics cover one command; --metrics prints them on exit.
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	records, err := recstore.New(db, key, id,
		recstore.WithMaxSize(cfg.MaxRecordSize),
		recstore.WithMaxRetries(cfg.PushRetries),
		recstore.WithMaxClockSkew(cfg.MaxClockSkew),
		recstore.WithMetrics(m),
		recstore.WithLogger(logger),
	)
	if err != nil {
		db.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open records", err)
	}

	logger.Debug("environment ready",
		"host", id.String(),
		"record_store", cfg.RecordStorePath,
		"key", key.Fingerprint())

	return &appEnv{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  m,
		key:     key,
		host:    id,
		db:      db,
		records: records,
	}, nil
}

// Close releases the record store.
func (e *appEnv) Close() error {
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("close record store: %w", err)
	}
	return nil
}

// writeMetrics prints every metric this command recorded in the Prometheus
// text exposition format.
func (e *appEnv) writeMetrics(w io.Writer) error {
	families, err := e.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func (e *appEnv) varStore() *dotfiles.VarStore {
	return dotfiles.NewVarStore(e.records, dotfiles.WithMetrics(e.metrics), dotfiles.WithLogger(e.logger))
}

func (e *appEnv) aliasStore() *dotfiles.AliasStore {
	return dotfiles.NewAliasStore(e.records, dotfiles.WithMetrics(e.metrics), dotfiles.WithLogger(e.logger))
}
