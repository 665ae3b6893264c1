package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// IdentityResult describes this host and its key.
type IdentityResult struct {
	Host           string `json:"host"`
	KeyFingerprint string `json:"key_fingerprint"`
}

// NewHostCommand creates the host command.
func NewHostCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "host",
		Short: "Print this host's id",
		Long: `Print the id this host writes its records under.

Examples:
  dotlog host
  dotlog host --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIdentity(rootOpts, cmd, false)
		},
	}
}

// NewKeyCommand creates the key command and its subcommands.
func NewKeyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Inspect the shared key",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the key fingerprint",
		Long: `Print a fingerprint of the shared key.

The fingerprint does not reveal the key. Two hosts that print the same
fingerprint can read each other's records.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIdentity(rootOpts, cmd, true)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "export",
		Short: "Print the key for 'dotlog init --key' on another host",
		Long: `Print the shared key in base64.

Anyone holding this key can read and forge records for the account. Move
it to the other host over a channel you trust.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyExport(rootOpts, cmd)
		},
	})

	return cmd
}

func runIdentity(opts *RootOptions, cmd *cobra.Command, keyOnly bool) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	key, id, err := loadIdentity(cfg)
	if err != nil {
		return err
	}

	result := IdentityResult{Host: id.String(), KeyFingerprint: key.Fingerprint()}
	if opts.Format == "json" {
		return newFormatter(opts, cmd).Success(result)
	}
	if keyOnly {
		fmt.Fprintln(cmd.OutOrStdout(), result.KeyFingerprint)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), result.Host)
	}
	return nil
}

func runKeyExport(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	key, _, err := loadIdentity(cfg)
	if err != nil {
		return err
	}

	f := newFormatter(opts, cmd)
	f.VerboseLog("key fingerprint %s", key.Fingerprint())
	if opts.Format == "json" {
		return f.Success(map[string]string{"key": key.Encode()})
	}
	fmt.Fprintln(cmd.OutOrStdout(), key.Encode())
	return nil
}
