package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// VarOptions holds flags for var set.
type VarOptions struct {
	*RootOptions
	Export bool
}

// ChangeResult reports one accepted set or delete.
type ChangeResult struct {
	Tag    string `json:"tag"`
	Name   string `json:"name"`
	Action string `json:"action"` // "set" | "delete"
}

// NewVarCommand creates the var command and its subcommands.
func NewVarCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VarOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "var",
		Short: "Set, delete and list shell variables",
	}

	set := &cobra.Command{
		Use:   "set <name> <value>",
		Short: "Set a variable",
		Long: `Set a shell variable on every host that syncs this account.

Names must be shell identifiers. Use --export to mark the variable for
export to child processes.

Examples:
  dotlog var set EDITOR nvim --export
  dotlog var set HISTSIZE 100000`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(rootOpts, cmd, func(ctx context.Context, env *appEnv) error {
				if err := env.varStore().Set(ctx, args[0], args[1], opts.Export); err != nil {
					return WrapExitError(ExitCommandError, "failed to set variable", err)
				}
				return reportChange(rootOpts, cmd, ChangeResult{Tag: "var", Name: args[0], Action: "set"})
			})
		},
	}
	set.Flags().BoolVarP(&opts.Export, "export", "x", false, "export the variable")

	del := &cobra.Command{
		Use:           "delete <name>",
		Aliases:       []string{"rm"},
		Short:         "Delete a variable",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(rootOpts, cmd, func(ctx context.Context, env *appEnv) error {
				if err := env.varStore().Delete(ctx, args[0]); err != nil {
					return WrapExitError(ExitCommandError, "failed to delete variable", err)
				}
				return reportChange(rootOpts, cmd, ChangeResult{Tag: "var", Name: args[0], Action: "delete"})
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List variables as shell assignments",
		Long: `List every variable in the replayed state, sorted by name.

Text output is valid shell and can be sourced:
  eval "$(dotlog var list)"`,
		Aliases:       []string{"ls"},
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(rootOpts, cmd, func(ctx context.Context, env *appEnv) error {
				entries, err := env.varStore().List(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to replay variables", err)
				}
				if rootOpts.Format == "json" {
					return newFormatter(rootOpts, cmd).Success(entries)
				}
				w := cmd.OutOrStdout()
				for _, e := range entries {
					if e.Export {
						fmt.Fprint(w, "export ")
					}
					fmt.Fprintf(w, "%s=%s\n", e.Name, shellQuote(e.Value))
				}
				return nil
			})
		},
	}

	cmd.AddCommand(set, del, list)
	return cmd
}

// NewAliasCommand creates the alias command and its subcommands.
func NewAliasCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alias",
		Short: "Set, delete and list shell aliases",
	}

	set := &cobra.Command{
		Use:   "set <name> <value>",
		Short: "Set an alias",
		Long: `Set a shell alias on every host that syncs this account.

Examples:
  dotlog alias set ll 'ls -la'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(rootOpts, cmd, func(ctx context.Context, env *appEnv) error {
				if err := env.aliasStore().Set(ctx, args[0], args[1]); err != nil {
					return WrapExitError(ExitCommandError, "failed to set alias", err)
				}
				return reportChange(rootOpts, cmd, ChangeResult{Tag: "alias", Name: args[0], Action: "set"})
			})
		},
	}

	del := &cobra.Command{
		Use:           "delete <name>",
		Aliases:       []string{"rm"},
		Short:         "Delete an alias",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(rootOpts, cmd, func(ctx context.Context, env *appEnv) error {
				if err := env.aliasStore().Delete(ctx, args[0]); err != nil {
					return WrapExitError(ExitCommandError, "failed to delete alias", err)
				}
				return reportChange(rootOpts, cmd, ChangeResult{Tag: "alias", Name: args[0], Action: "delete"})
			})
		},
	}

	list := &cobra.Command{
		Use:           "list",
		Short:         "List aliases as shell alias commands",
		Aliases:       []string{"ls"},
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(rootOpts, cmd, func(ctx context.Context, env *appEnv) error {
				entries, err := env.aliasStore().List(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to replay aliases", err)
				}
				if rootOpts.Format == "json" {
					return newFormatter(rootOpts, cmd).Success(entries)
				}
				w := cmd.OutOrStdout()
				for _, e := range entries {
					fmt.Fprintf(w, "alias %s=%s\n", e.Name, shellQuote(e.Value))
				}
				return nil
			})
		},
	}

	cmd.AddCommand(set, del, list)
	return cmd
}

// withEnv opens the environment, runs fn and closes it. With --metrics the
// command's metrics go to stderr afterwards, whether or not fn failed.
func withEnv(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, env *appEnv) error) error {
	env, err := openEnv(opts, cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	err = fn(ctx, env)
	if opts.Metrics {
		if mErr := env.writeMetrics(cmd.ErrOrStderr()); mErr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "failed to write metrics", mErr)
		}
	}
	return err
}

func reportChange(opts *RootOptions, cmd *cobra.Command, result ChangeResult) error {
	if opts.Format == "json" {
		return newFormatter(opts, cmd).Success(result)
	}
	newFormatter(opts, cmd).VerboseLog("%s %s %s", result.Action, result.Tag, result.Name)
	return nil
}

// shellQuote wraps s in single quotes for POSIX shells.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
