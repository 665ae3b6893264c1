package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/dotlog/internal/host"
	"github.com/roach88/dotlog/internal/seal"
	"github.com/roach88/dotlog/internal/store"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Key string // base64 key exported from another host; empty generates one
}

// InitResult reports what init found or created.
type InitResult struct {
	Host           string `json:"host"`
	KeyFingerprint string `json:"key_fingerprint"`
	CreatedHost    bool   `json:"created_host"`
	CreatedKey     bool   `json:"created_key"`
	RecordStore    string `json:"record_store"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the host id, key and record store",
		Long: `Initialize dotlog on this host.

Creates the host id, the shared key and the record store if they do not
exist. Running init again is safe: existing files are kept.

To join an existing account, pass the key exported from another host with
'dotlog key export'. A host that already holds a different key is refused.

Examples:
  dotlog init
  dotlog init --key "$(cat key.txt)"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Key, "key", "", "join an account with this base64 key")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging, opts.Verbose, cmd.ErrOrStderr())

	key, createdKey, err := initKey(cfg.KeyPath, opts.Key)
	if err != nil {
		return err
	}

	id, createdHost, err := host.LoadOrCreate(cfg.HostIDPath, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create host id", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.RecordStorePath), 0o700); err != nil {
		return WrapExitError(ExitCommandError, "failed to create data directory", err)
	}
	db, err := store.Open(cfg.RecordStorePath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create record store", err)
	}
	if err := db.Close(); err != nil {
		return WrapExitError(ExitCommandError, "failed to close record store", err)
	}

	logger.Info("initialized",
		"host", id.String(),
		"created_host", createdHost,
		"created_key", createdKey)

	result := InitResult{
		Host:           id.String(),
		KeyFingerprint: key.Fingerprint(),
		CreatedHost:    createdHost,
		CreatedKey:     createdKey,
		RecordStore:    cfg.RecordStorePath,
	}

	if opts.Format == "json" {
		return newFormatter(opts.RootOptions, cmd).Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Host:         %s%s\n", result.Host, createdSuffix(createdHost))
	fmt.Fprintf(w, "Key:          %s%s\n", result.KeyFingerprint, createdSuffix(createdKey))
	fmt.Fprintf(w, "Record store: %s\n", result.RecordStore)
	return nil
}

// initKey installs the supplied key, or loads or generates one.
func initKey(path, supplied string) (seal.Key, bool, error) {
	if supplied == "" {
		key, created, err := seal.LoadOrCreateKey(path)
		if err != nil {
			return seal.Key{}, false, WrapExitError(ExitCommandError, "failed to create key", err)
		}
		return key, created, nil
	}

	key, err := seal.ParseKey(supplied)
	if err != nil {
		return seal.Key{}, false, WrapExitError(ExitCommandError, "invalid --key", err)
	}

	existing, err := seal.LoadKey(path)
	switch {
	case err == nil && existing == key:
		return key, false, nil
	case err == nil:
		return seal.Key{}, false, NewExitError(ExitCommandError,
			fmt.Sprintf("a different key is already installed (%s)", existing.Fingerprint()))
	case !errors.Is(err, os.ErrNotExist):
		return seal.Key{}, false, WrapExitError(ExitCommandError, "failed to load key", err)
	}

	if err := seal.SaveKey(path, key); err != nil {
		return seal.Key{}, false, WrapExitError(ExitCommandError, "failed to save key", err)
	}
	return key, true, nil
}

func createdSuffix(created bool) string {
	if created {
		return " (created)"
	}
	return ""
}
