package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHost is one dotlog installation rooted in a temp directory.
type testHost struct {
	t      *testing.T
	dir    string
	config string
}

func newTestHost(t *testing.T) *testHost {
	t.Helper()
	dir := t.TempDir()
	config := filepath.Join(dir, "config.yaml")
	data := "data_dir: " + filepath.Join(dir, "data") + "\nlogging:\n  level: warn\n"
	require.NoError(t, os.WriteFile(config, []byte(data), 0o600))
	return &testHost{t: t, dir: dir, config: config}
}

// run executes dotlog with this host's config.
func (h *testHost) run(args ...string) (stdout, stderr string, code int) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	code = Execute(append([]string{"--config", h.config}, args...), &out, &errOut)
	return out.String(), errOut.String(), code
}

// mustRun executes dotlog and fails the test on a non-zero exit.
func (h *testHost) mustRun(args ...string) string {
	h.t.Helper()
	out, errOut, code := h.run(args...)
	require.Equal(h.t, ExitSuccess, code, "dotlog %v\nstdout: %s\nstderr: %s", args, out, errOut)
	return out
}

// runJSON executes dotlog with --format json and decodes the response.
func (h *testHost) runJSON(args ...string) (CLIResponse, int) {
	h.t.Helper()
	out, errOut, code := h.run(append([]string{"--format", "json"}, args...)...)
	var resp CLIResponse
	require.NoError(h.t, json.Unmarshal([]byte(out), &resp), "stdout: %s\nstderr: %s", out, errOut)
	return resp, code
}

func (h *testHost) dataPath(name string) string {
	return filepath.Join(h.dir, "data", name)
}

// decodeData re-decodes a response payload into v.
func decodeData(t *testing.T, resp CLIResponse, v any) {
	t.Helper()
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestInit_CreatesIdentity(t *testing.T) {
	h := newTestHost(t)

	resp, code := h.runJSON("init")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "ok", resp.Status)

	var first InitResult
	decodeData(t, resp, &first)
	assert.True(t, first.CreatedHost)
	assert.True(t, first.CreatedKey)
	assert.NotEmpty(t, first.Host)
	assert.Len(t, first.KeyFingerprint, 16)

	for _, name := range []string{"key", "host_id", "records.db"} {
		assert.FileExists(t, h.dataPath(name))
	}

	info, err := os.Stat(h.dataPath("key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Init again keeps everything.
	resp, code = h.runJSON("init")
	require.Equal(t, ExitSuccess, code)
	var second InitResult
	decodeData(t, resp, &second)
	assert.False(t, second.CreatedHost)
	assert.False(t, second.CreatedKey)
	assert.Equal(t, first.Host, second.Host)
	assert.Equal(t, first.KeyFingerprint, second.KeyFingerprint)
}

func TestInit_JoinWithKey(t *testing.T) {
	a, b := newTestHost(t), newTestHost(t)
	a.mustRun("init")
	key := a.mustRun("key", "export")

	b.mustRun("init", "--key", key)
	assert.Equal(t, a.mustRun("key", "show"), b.mustRun("key", "show"))
	assert.NotEqual(t, a.mustRun("host"), b.mustRun("host"))
}

func TestInit_RefusesDifferentKey(t *testing.T) {
	a, b := newTestHost(t), newTestHost(t)
	a.mustRun("init")
	b.mustRun("init")

	_, stderr, code := b.run("init", "--key", a.mustRun("key", "export"))
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "a different key is already installed")
}

func TestInit_InvalidKey(t *testing.T) {
	h := newTestHost(t)
	_, stderr, code := h.run("init", "--key", "not-base64!")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "invalid --key")
}

func TestCommands_NotInitialized(t *testing.T) {
	h := newTestHost(t)

	for _, args := range [][]string{
		{"host"},
		{"key", "show"},
		{"var", "list"},
		{"status"},
	} {
		_, stderr, code := h.run(args...)
		assert.Equal(t, ExitCommandError, code, "%v", args)
		assert.Contains(t, stderr, "not initialized", "%v", args)
	}

	resp, code := h.runJSON("var", "list")
	assert.Equal(t, ExitCommandError, code)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_NOT_INITIALIZED", resp.Error.Code)
}

func TestVar_SetListDelete(t *testing.T) {
	h := newTestHost(t)
	h.mustRun("init")

	h.mustRun("var", "set", "EDITOR", "nvim", "--export")
	h.mustRun("var", "set", "GREETING", "it's here")
	h.mustRun("var", "set", "PAGER", "less")
	h.mustRun("var", "set", "PAGER", "most", "-x")
	h.mustRun("var", "delete", "GREETING")

	assert.Equal(t, "export EDITOR='nvim'\nexport PAGER='most'\n", h.mustRun("var", "list"))

	resp, code := h.runJSON("var", "list")
	require.Equal(t, ExitSuccess, code)
	var entries []struct {
		Name   string `json:"name"`
		Value  string `json:"value"`
		Export bool   `json:"export"`
	}
	decodeData(t, resp, &entries)
	require.Len(t, entries, 2)
	assert.Equal(t, "EDITOR", entries[0].Name)
	assert.True(t, entries[0].Export)
}

func TestVar_Errors(t *testing.T) {
	h := newTestHost(t)
	h.mustRun("init")

	resp, code := h.runJSON("var", "delete", "MISSING")
	assert.Equal(t, ExitCommandError, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_NOT_FOUND", resp.Error.Code)

	resp, code = h.runJSON("var", "set", "1BAD", "x")
	assert.Equal(t, ExitCommandError, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_INVALID_NAME", resp.Error.Code)

	_, _, code = h.run("var", "set", "ONLYNAME")
	assert.Equal(t, ExitCommandError, code)
}

func TestMetricsFlag(t *testing.T) {
	h := newTestHost(t)
	h.mustRun("init")

	out, errOut, code := h.run("--metrics", "var", "set", "EDITOR", "nvim")
	require.Equal(t, ExitSuccess, code, errOut)
	assert.NotContains(t, out, "dotlog_store")
	assert.Contains(t, errOut, "# TYPE dotlog_store_pushes_total counter")
	assert.Contains(t, errOut, `dotlog_store_pushes_total{tag="dotfiles-var"} 1`)

	// Failed commands still report what they observed.
	_, errOut, code = h.run("--metrics", "var", "delete", "MISSING")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, errOut, "dotlog_projection_records_total")

	_, errOut, code = h.run("var", "set", "PAGER", "less")
	require.Equal(t, ExitSuccess, code)
	assert.NotContains(t, errOut, "dotlog_store_pushes_total")
}

func TestAlias_SetListDelete(t *testing.T) {
	h := newTestHost(t)
	h.mustRun("init")

	h.mustRun("alias", "set", "ll", "ls -la")
	h.mustRun("alias", "set", "gs", "git status")
	h.mustRun("alias", "rm", "gs")

	assert.Equal(t, "alias ll='ls -la'\n", h.mustRun("alias", "list"))

	_, _, code := h.run("alias", "set", "bad name", "x")
	assert.Equal(t, ExitCommandError, code)
}

func TestRecords_ExportImport(t *testing.T) {
	a, b := newTestHost(t), newTestHost(t)
	a.mustRun("init")
	b.mustRun("init", "--key", a.mustRun("key", "export"))

	a.mustRun("var", "set", "EDITOR", "vim", "-x")
	a.mustRun("alias", "set", "ll", "ls -la")
	b.mustRun("var", "set", "EDITOR", "nvim", "-x")

	exportFile := filepath.Join(t.TempDir(), "a.dlog")
	a.mustRun("records", "export", "-o", exportFile)

	resp, code := b.runJSON("records", "import", exportFile)
	require.Equal(t, ExitSuccess, code)
	var summary ImportSummary
	decodeData(t, resp, &summary)
	assert.Equal(t, ImportSummary{File: exportFile, Read: 2, Imported: 2}, summary)

	// b wrote last, so its value wins on b.
	assert.Equal(t, "export EDITOR='nvim'\n", b.mustRun("var", "list"))
	assert.Equal(t, "alias ll='ls -la'\n", b.mustRun("alias", "list"))

	// Importing again skips everything.
	out := b.mustRun("records", "import", exportFile)
	assert.Contains(t, out, "Imported 0 record(s), skipped 2")

	// Send b's records back; both hosts converge.
	backFile := filepath.Join(t.TempDir(), "b.dlog")
	b.mustRun("records", "export", "-o", backFile)
	a.mustRun("records", "import", backFile)
	assert.Equal(t, b.mustRun("var", "list"), a.mustRun("var", "list"))
	assert.Equal(t, b.mustRun("alias", "list"), a.mustRun("alias", "list"))
}

func TestRecords_ExportStdoutImportStdin(t *testing.T) {
	a, b := newTestHost(t), newTestHost(t)
	a.mustRun("init")
	b.mustRun("init", "--key", a.mustRun("key", "export"))
	a.mustRun("var", "set", "A", "1")
	a.mustRun("alias", "set", "ll", "ls -l")

	exported := a.mustRun("records", "export", "--tag", "dotfiles-var")

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetIn(bytes.NewBufferString(exported))
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", b.config, "records", "import", "-"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Imported 1 record(s)")

	assert.Equal(t, "A='1'\n", b.mustRun("var", "list"))
	assert.Empty(t, b.mustRun("alias", "list"))
}

func TestRecords_ImportWrongKey(t *testing.T) {
	a, b := newTestHost(t), newTestHost(t)
	a.mustRun("init")
	b.mustRun("init")
	a.mustRun("var", "set", "A", "1")

	exportFile := filepath.Join(t.TempDir(), "a.dlog")
	a.mustRun("records", "export", "-o", exportFile)

	resp, code := b.runJSON("records", "import", exportFile)
	assert.Equal(t, ExitCommandError, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_AUTH", resp.Error.Code)

	// Nothing was appended.
	assert.Contains(t, b.mustRun("records", "ls"), "No records.")
}

func TestRecords_ImportGarbage(t *testing.T) {
	h := newTestHost(t)
	h.mustRun("init")

	path := filepath.Join(t.TempDir(), "garbage.dlog")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0x00, 0x13}, 0o600))

	_, stderr, code := h.run("records", "import", path)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "failed to read import file")
}

func TestRecords_ListAndVerify(t *testing.T) {
	h := newTestHost(t)
	h.mustRun("init")
	h.mustRun("var", "set", "A", "1")
	h.mustRun("var", "set", "B", "2")
	h.mustRun("alias", "set", "ll", "ls -l")

	resp, code := h.runJSON("records", "ls", "--tag", "dotfiles-var")
	require.Equal(t, ExitSuccess, code)
	var infos []RecordInfo
	decodeData(t, resp, &infos)
	require.Len(t, infos, 2)
	assert.Equal(t, uint64(0), infos[0].Idx)
	assert.Equal(t, uint64(1), infos[1].Idx)
	assert.Equal(t, "v1", infos[0].Version)
	assert.Less(t, infos[0].Timestamp, infos[1].Timestamp)

	out := h.mustRun("records", "verify")
	assert.Contains(t, out, "✓ 3 record(s) verified")
}

func TestStatus(t *testing.T) {
	h := newTestHost(t)
	h.mustRun("init")
	h.mustRun("var", "set", "A", "1")
	h.mustRun("var", "set", "A", "2")

	resp, code := h.runJSON("status")
	require.Equal(t, ExitSuccess, code)
	var status StatusResult
	decodeData(t, resp, &status)

	assert.Equal(t, h.dataPath("records.db"), status.RecordStore)
	require.Len(t, status.Logs, 1)
	assert.Equal(t, status.Host, status.Logs[0].Host)
	assert.True(t, status.Logs[0].Self)
	assert.Equal(t, "dotfiles-var", status.Logs[0].Tag)
	assert.Equal(t, uint64(2), status.Logs[0].Records)
	assert.Equal(t, uint64(1), status.Logs[0].LastIdx)

	assert.Contains(t, h.mustRun("status"), "(this host)")
}

func TestReplay(t *testing.T) {
	h := newTestHost(t)
	h.mustRun("init")
	h.mustRun("var", "set", "A", "1")
	h.mustRun("alias", "set", "ll", "ls -l")
	h.mustRun("alias", "set", "la", "ls -a")

	out := h.mustRun("replay")
	assert.Contains(t, out, "Replay Summary: 2 tag(s)")
	assert.Contains(t, out, "✓ Tag: dotfiles-var")
	assert.Contains(t, out, "✓ All tags verified deterministic")

	resp, code := h.runJSON("replay", "--tag", "dotfiles-alias")
	require.Equal(t, ExitSuccess, code)
	var result ReplayResult
	decodeData(t, resp, &result)
	assert.True(t, result.AllDeterministic)
	assert.Equal(t, []ReplayTagResult{
		{Tag: "dotfiles-alias", Records: 2, Entries: 2, Deterministic: true},
	}, result.Tags)

	_, _, code = h.run("replay", "--tag", "nope")
	assert.Equal(t, ExitCommandError, code)
}

func TestTestCommand_Scenarios(t *testing.T) {
	h := newTestHost(t)
	scenarios := filepath.Join("..", "harness", "testdata", "scenarios")

	out := h.mustRun("test", scenarios)
	assert.Contains(t, out, "✓ set_set_delete")
	assert.Contains(t, out, "✓ later_host_wins")
	assert.Contains(t, out, "All scenarios passed")

	resp, code := h.runJSON("test", scenarios, "--filter", "later_host*")
	require.Equal(t, ExitSuccess, code)
	var result TestResult
	decodeData(t, resp, &result)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Passed)
}

func TestTestCommand_FailingScenario(t *testing.T) {
	h := newTestHost(t)
	dir := filepath.Join(t.TempDir(), "scenarios")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(`
name: bad
description: expects a variable that is never set
hosts: [h1]
steps:
  - { host: h1, action: alias_set, name: ll, value: "ls" }
assertions:
  - { type: vars, host: h1, vars: { A: { value: "1" } } }
`), 0o600))

	out, _, code := h.run("test", dir)
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, "✗ bad")
	assert.Contains(t, out, "1 failed")

	// --update writes the golden file even when the scenario fails.
	_, _, code = h.run("test", dir, "--update")
	assert.Equal(t, ExitFailure, code)
	assert.FileExists(t, filepath.Join(filepath.Dir(dir), "golden", "bad.golden"))
}

func TestTestCommand_MissingDir(t *testing.T) {
	h := newTestHost(t)
	_, stderr, code := h.run("test", filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "scenarios directory not found")
}

func TestListings_Golden(t *testing.T) {
	h := newTestHost(t)
	h.mustRun("init")
	h.mustRun("var", "set", "EDITOR", "nvim", "-x")
	h.mustRun("var", "set", "PS1", `\u@\h $ `)
	h.mustRun("var", "set", "QUOTE", "don't panic", "-x")
	h.mustRun("alias", "set", "ll", "ls -la")
	h.mustRun("alias", "set", "g", "git")

	listing := h.mustRun("var", "list") + h.mustRun("alias", "list")

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "listings", []byte(listing))
}
