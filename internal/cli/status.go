package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// LogSummary is one (host, tag) log in the status output.
type LogSummary struct {
	Host          string `json:"host"`
	Self          bool   `json:"self"`
	Tag           string `json:"tag"`
	Records       uint64 `json:"records"`
	LastIdx       uint64 `json:"last_idx"`
	LastTimestamp int64  `json:"last_timestamp"`
}

// StatusResult is the output of the status command.
type StatusResult struct {
	Host           string       `json:"host"`
	KeyFingerprint string       `json:"key_fingerprint"`
	RecordStore    string       `json:"record_store"`
	Logs           []LogSummary `json:"logs"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize every log in the record store",
		Long: `Show this host's identity and, for every host and tag, how many
records are stored and the newest one.

Comparing status on two hosts shows which logs still need to be exchanged.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(rootOpts, cmd, func(ctx context.Context, env *appEnv) error {
				return runStatus(ctx, rootOpts, env, cmd)
			})
		},
	}
}

func runStatus(ctx context.Context, opts *RootOptions, env *appEnv, cmd *cobra.Command) error {
	logs, err := env.records.Status(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read status", err)
	}

	result := StatusResult{
		Host:           env.host.String(),
		KeyFingerprint: env.key.Fingerprint(),
		RecordStore:    env.cfg.RecordStorePath,
		Logs:           make([]LogSummary, 0, len(logs)),
	}
	for _, l := range logs {
		result.Logs = append(result.Logs, LogSummary{
			Host:          l.Host.String(),
			Self:          l.Host == env.host,
			Tag:           l.Tag,
			Records:       l.Count,
			LastIdx:       l.LastIdx,
			LastTimestamp: l.LastTimestamp,
		})
	}

	if opts.Format == "json" {
		return newFormatter(opts, cmd).Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Host:         %s\n", result.Host)
	fmt.Fprintf(w, "Key:          %s\n", result.KeyFingerprint)
	fmt.Fprintf(w, "Record store: %s\n", result.RecordStore)
	fmt.Fprintln(w)
	if len(result.Logs) == 0 {
		fmt.Fprintln(w, "No records.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TAG\tHOST\tRECORDS\tLAST IDX\tLAST WRITE")
	for _, l := range result.Logs {
		hostLabel := l.Host
		if l.Self {
			hostLabel += " (this host)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", l.Tag, hostLabel, l.Records, l.LastIdx, formatTimestamp(l.LastTimestamp))
	}
	return tw.Flush()
}
