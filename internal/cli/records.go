package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/roach88/dotlog/internal/fsutil"
	"github.com/roach88/dotlog/internal/record"
)

// RecordsOptions holds flags shared by the records subcommands.
type RecordsOptions struct {
	*RootOptions
	Tag    string // empty means every tag
	Output string // export destination; empty means stdout
}

// RecordInfo is the listing form of one record. The payload stays sealed.
type RecordInfo struct {
	Host      string `json:"host"`
	Tag       string `json:"tag"`
	Idx       uint64 `json:"idx"`
	Timestamp int64  `json:"timestamp"`
	Version   string `json:"version"`
	Size      int    `json:"size"`
}

// VerifyResult reports a records verify run.
type VerifyResult struct {
	Tag     string   `json:"tag,omitempty"`
	Checked int      `json:"checked"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// ImportSummary reports a records import run.
type ImportSummary struct {
	File     string `json:"file"`
	Read     int    `json:"read"`
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
}

// NewRecordsCommand creates the records command and its subcommands.
func NewRecordsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect, verify and move sealed records",
	}
	cmd.PersistentFlags().StringVar(&opts.Tag, "tag", "", "limit to one tag")

	ls := &cobra.Command{
		Use:           "ls",
		Short:         "List records in replay order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(rootOpts, cmd, func(ctx context.Context, env *appEnv) error {
				return runRecordsList(ctx, opts, env, cmd)
			})
		},
	}

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Authenticate every record with the shared key",
		Long: `Open every record and report each one that fails to authenticate.

Exit codes:
  0 - Every record authenticated
  1 - One or more records failed
  2 - Command error`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(rootOpts, cmd, func(ctx context.Context, env *appEnv) error {
				return runRecordsVerify(ctx, opts, env, cmd)
			})
		},
	}

	export := &cobra.Command{
		Use:   "export",
		Short: "Write sealed records to a file for another host",
		Long: `Write records as a CBOR sequence, still encrypted.

Examples:
  dotlog records export -o laptop.dlog
  dotlog records export --tag dotfiles-var > vars.dlog`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(rootOpts, cmd, func(ctx context.Context, env *appEnv) error {
				return runRecordsExport(ctx, opts, env, cmd)
			})
		},
	}
	export.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default stdout)")

	imp := &cobra.Command{
		Use:   "import <file>",
		Short: "Append records exported by another host",
		Long: `Append records from an export file. Use - to read stdin.

Records already present are skipped, so importing the same file twice is
safe. The import is all or nothing: a gap, a conflicting record or a record
that fails to authenticate rejects the whole file.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(rootOpts, cmd, func(ctx context.Context, env *appEnv) error {
				return runRecordsImport(ctx, opts, env, cmd, args[0])
			})
		},
	}

	cmd.AddCommand(ls, verify, export, imp)
	return cmd
}

func runRecordsList(ctx context.Context, opts *RecordsOptions, env *appEnv, cmd *cobra.Command) error {
	recs, err := env.records.Export(ctx, opts.Tag)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read records", err)
	}

	infos := make([]RecordInfo, 0, len(recs))
	for _, rec := range recs {
		infos = append(infos, RecordInfo{
			Host:      rec.Host.String(),
			Tag:       rec.Tag,
			Idx:       rec.Idx,
			Timestamp: rec.Timestamp,
			Version:   rec.Version,
			Size:      len(rec.Data),
		})
	}

	if opts.Format == "json" {
		return newFormatter(opts.RootOptions, cmd).Success(infos)
	}
	if len(infos) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No records.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tHOST\tTAG\tIDX\tVERSION\tSIZE")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%d\n",
			formatTimestamp(info.Timestamp), info.Host, info.Tag, info.Idx, info.Version, info.Size)
	}
	return tw.Flush()
}

func runRecordsVerify(ctx context.Context, opts *RecordsOptions, env *appEnv, cmd *cobra.Command) error {
	checked, err := env.records.Verify(ctx, opts.Tag)

	result := VerifyResult{Tag: opts.Tag, Checked: checked}
	var merr *multierror.Error
	switch {
	case err == nil:
	case errors.As(err, &merr):
		result.Failed = len(merr.Errors)
		for _, e := range merr.Errors {
			result.Errors = append(result.Errors, e.Error())
		}
	default:
		return WrapExitError(ExitCommandError, "failed to verify records", err)
	}

	if opts.Format == "json" {
		response := CLIResponse{Status: "ok", Data: result}
		if result.Failed > 0 {
			response.Status = "error"
			response.Error = &CLIError{
				Code:    "E_VERIFY",
				Message: fmt.Sprintf("%d record(s) failed verification", result.Failed),
			}
		}
		if err := newFormatter(opts.RootOptions, cmd).encode(response); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, e := range result.Errors {
			fmt.Fprintf(w, "✗ %s\n", e)
		}
		if result.Failed == 0 {
			fmt.Fprintf(w, "✓ %d record(s) verified\n", result.Checked)
		} else {
			fmt.Fprintf(w, "✗ %d of %d record(s) failed verification\n", result.Failed, result.Checked)
		}
	}

	if result.Failed > 0 {
		return reportedExitError(ExitFailure, "verification failed")
	}
	return nil
}

func runRecordsExport(ctx context.Context, opts *RecordsOptions, env *appEnv, cmd *cobra.Command) error {
	recs, err := env.records.Export(ctx, opts.Tag)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read records", err)
	}

	f := newFormatter(opts.RootOptions, cmd)
	if opts.Output == "" {
		if err := record.WriteSequence(cmd.OutOrStdout(), recs); err != nil {
			return WrapExitError(ExitCommandError, "failed to write records", err)
		}
		f.VerboseLog("exported %d record(s)", len(recs))
		return nil
	}

	var buf bytes.Buffer
	if err := record.WriteSequence(&buf, recs); err != nil {
		return WrapExitError(ExitCommandError, "failed to encode records", err)
	}
	if err := fsutil.WriteFileAtomic(opts.Output, buf.Bytes(), 0o600); err != nil {
		return WrapExitError(ExitCommandError, "failed to write export file", err)
	}

	if opts.Format == "json" {
		return f.Success(map[string]any{"file": opts.Output, "records": len(recs)})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d record(s) to %s\n", len(recs), opts.Output)
	return nil
}

func runRecordsImport(ctx context.Context, opts *RecordsOptions, env *appEnv, cmd *cobra.Command, path string) error {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open import file", err)
		}
		defer file.Close()
		r = file
	}

	recs, err := record.ReadSequence(r)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read import file", err)
	}
	if opts.Tag != "" {
		recs = filterTag(recs, opts.Tag)
	}

	res, err := env.records.Import(ctx, recs)
	if err != nil {
		return WrapExitError(ExitCommandError, "import rejected", err)
	}

	summary := ImportSummary{File: path, Read: len(recs), Imported: res.Imported, Skipped: res.Skipped}
	if opts.Format == "json" {
		return newFormatter(opts.RootOptions, cmd).Success(summary)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d record(s), skipped %d already present\n", summary.Imported, summary.Skipped)
	return nil
}

func filterTag(recs []record.Record, tag string) []record.Record {
	out := recs[:0:0]
	for _, rec := range recs {
		if rec.Tag == tag {
			out = append(out, rec)
		}
	}
	return out
}

// formatTimestamp renders a record timestamp (Unix nanoseconds) in UTC.
func formatTimestamp(ts int64) string {
	return time.Unix(0, ts).UTC().Format(time.RFC3339Nano)
}
