package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dotlog/internal/codec"
	"github.com/roach88/dotlog/internal/dotfiles"
	"github.com/roach88/dotlog/internal/recstore"
	"github.com/roach88/dotlog/internal/seal"
	"github.com/roach88/dotlog/internal/store"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("E_NOT_FOUND", "delete var A: not found", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "delete var A: not found", resp.Error.Message)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("E_AUTH", "import rejected", map[string]string{"file": "a.dlog"})
	require.NoError(t, err)
	assert.Equal(t, "Error [E_AUTH]: import rejected\n", buf.String())
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	err := formatter.Error("E_AUTH", "import rejected", map[string]string{"file": "a.dlog"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E_AUTH]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			errBuf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    buf,
				ErrWriter: errBuf,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("exported %d record(s)", 3)

			// Diagnostics never corrupt stdout.
			assert.Empty(t, buf.String())
			if tt.wantLog {
				assert.Contains(t, errBuf.String(), "exported 3 record(s)")
			} else {
				assert.Empty(t, errBuf.String())
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "verification failed")))
	assert.Equal(t, ExitCommandError, GetExitCode(errors.New("unknown flag")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitFailure, "replay", errors.New("boom")))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
}

func TestExitError_Message(t *testing.T) {
	assert.Equal(t, "no key", NewExitError(ExitCommandError, "no key").Error())

	err := WrapExitError(ExitCommandError, "no key", errNotInitialized)
	assert.Equal(t, "no key: "+errNotInitialized.Error(), err.Error())
	assert.ErrorIs(t, err, errNotInitialized)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{WrapExitError(ExitCommandError, "no key", errNotInitialized), "E_NOT_INITIALIZED"},
		{fmt.Errorf("delete var A: %w", dotfiles.ErrNotFound), "E_NOT_FOUND"},
		{&dotfiles.NameError{Kind: "var", Name: "1A", Reason: "must be a shell identifier"}, "E_INVALID_NAME"},
		{&recstore.ValidationError{Field: "data", Message: "too large"}, "E_VALIDATION"},
		{&store.ConflictError{}, "E_CONFLICT"},
		{&seal.AuthError{Reason: "tag mismatch"}, "E_AUTH"},
		{&codec.DecodeError{Tag: "t", Version: "v9", Reason: codec.ReasonUnknownVersion}, "E_DECODE"},
		{&store.StorageError{Op: "scan", Err: errors.New("disk")}, "E_STORAGE"},
		{reportedExitError(ExitFailure, "verification failed"), "E_CHECK_FAILED"},
		{errors.New("accepts 1 arg(s)"), "E_COMMAND"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, errorCode(tt.err))
		})
	}
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `''`, shellQuote(""))
	assert.Equal(t, `'ls -la'`, shellQuote("ls -la"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
	assert.Equal(t, `'$HOME'`, shellQuote("$HOME"))
}
