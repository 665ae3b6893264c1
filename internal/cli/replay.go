package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/spf13/cobra"

	"github.com/roach88/dotlog/internal/dotfiles"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Tag string // optional - specific tag only
}

// ReplayTagResult holds the replay result for a single tag.
type ReplayTagResult struct {
	Tag           string `json:"tag"`
	Records       int    `json:"records"`
	Entries       int    `json:"entries"`
	Deterministic bool   `json:"deterministic"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Tags             []ReplayTagResult `json:"tags"`
	AllDeterministic bool              `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the record log and verify determinism",
		Long: `Replay every record of the variable and alias logs twice and compare
the resulting states.

Every record is decrypted and decoded with the codec for its own version.
A record that fails to authenticate or decode aborts the replay.

Exit codes:
  0 - All tags replay deterministically
  1 - Replay failed or differed between runs
  2 - Command error (not initialized, etc.)

Examples:
  dotlog replay
  dotlog replay --tag dotfiles-var
  dotlog replay --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(rootOpts, cmd, func(ctx context.Context, env *appEnv) error {
				return runReplay(ctx, opts, env, cmd)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Tag, "tag", "", "replay specific tag only")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, env *appEnv, cmd *cobra.Command) error {
	vars, aliases := env.varStore(), env.aliasStore()
	replays := []struct {
		tag string
		run func(context.Context) (ReplayTagResult, error)
	}{
		{dotfiles.VarTag, func(ctx context.Context) (ReplayTagResult, error) {
			return replayTwice(ctx, env, dotfiles.VarTag, vars.State)
		}},
		{dotfiles.AliasTag, func(ctx context.Context) (ReplayTagResult, error) {
			return replayTwice(ctx, env, dotfiles.AliasTag, aliases.State)
		}},
	}

	result := ReplayResult{Tags: []ReplayTagResult{}, AllDeterministic: true}
	for _, r := range replays {
		if opts.Tag != "" && opts.Tag != r.tag {
			continue
		}
		tagResult, err := r.run(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("failed to replay %s", r.tag), err)
		}
		result.Tags = append(result.Tags, tagResult)
		if !tagResult.Deterministic {
			result.AllDeterministic = false
		}
	}
	if opts.Tag != "" && len(result.Tags) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown tag %q", opts.Tag))
	}

	// Output results
	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}

	return outputReplayText(cmd, result)
}

// replayTwice projects a tag twice and compares the states.
func replayTwice[S any](ctx context.Context, env *appEnv, tag string, state func(context.Context) (S, error)) (ReplayTagResult, error) {
	recs, err := env.records.AllTagged(ctx, tag)
	if err != nil {
		return ReplayTagResult{}, err
	}

	first, err := state(ctx)
	if err != nil {
		return ReplayTagResult{}, fmt.Errorf("first replay failed: %w", err)
	}
	second, err := state(ctx)
	if err != nil {
		return ReplayTagResult{}, fmt.Errorf("second replay failed: %w", err)
	}

	return ReplayTagResult{
		Tag:           tag,
		Records:       len(recs),
		Entries:       reflect.ValueOf(first).Len(),
		Deterministic: reflect.DeepEqual(first, second),
	}, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DETERMINISM",
			Message: "determinism verification failed",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.AllDeterministic {
		// Determinism failure = exit code 1
		return reportedExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %d tag(s)\n", len(result.Tags))
	fmt.Fprintln(w)

	for _, tag := range result.Tags {
		status := "✓"
		if !tag.Deterministic {
			status = "✗"
		}

		fmt.Fprintf(w, "%s Tag: %s\n", status, tag.Tag)
		fmt.Fprintf(w, "  Records: %d, entries: %d\n", tag.Records, tag.Entries)

		if !tag.Deterministic {
			fmt.Fprintln(w, "  Warning: Non-deterministic replay detected!")
		}
	}
	fmt.Fprintln(w)

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All tags verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	// Determinism failure = exit code 1
	return reportedExitError(ExitFailure, "determinism verification failed")
}
