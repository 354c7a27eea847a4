package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	code   int
	stdout string
	stderr string
}

// workspace points both stores and the database into a temp dir.
type workspace struct {
	dir  string
	args []string
}

func newWorkspace(t *testing.T, extra ...string) *workspace {
	t.Helper()
	dir := t.TempDir()
	args := []string{
		"--report-config", filepath.Join(dir, "report_naming_config.yaml"),
		"--platform-config", filepath.Join(dir, "vt_naming_config.json"),
		"--database", filepath.Join(dir, "ctinamer.db"),
	}
	return &workspace{dir: dir, args: append(args, extra...)}
}

func (w *workspace) run(t *testing.T, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), append(append([]string{}, w.args...), args...), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func (w *workspace) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	res := w.run(t, args...)
	require.Equal(t, ExitSuccess, res.code, "stderr: %s", res.stderr)
	return res.stdout
}

func TestAllocate_ReportSequence(t *testing.T) {
	w := newWorkspace(t)

	out := w.mustRun(t, "report", "--source", "ACME", "--type", "MALWARE", "--date", "20240101", "--description", "first")
	assert.Equal(t, "ACME-MALWARE-20240101-01\n", out)

	out = w.mustRun(t, "report", "-s", "ACME", "-t", "MALWARE", "-d", "20240101")
	assert.Equal(t, "ACME-MALWARE-20240101-02\n", out)

	out = w.mustRun(t, "report", "-s", "ACME", "-t", "PHISHING", "-d", "20240101")
	assert.Equal(t, "ACME-PHISHING-20240101-01\n", out)

	_, err := os.Stat(filepath.Join(w.dir, "report_naming_config.yaml"))
	assert.NoError(t, err)
}

func TestAllocate_PlatformNamespacesAreIndependent(t *testing.T) {
	w := newWorkspace(t)

	assert.Equal(t, "COL-OSINT-20240305-01\n", w.mustRun(t, "collection", "-s", "OSINT", "-d", "20240305"))
	assert.Equal(t, "GRAPH-OSINT-20240305-01\n", w.mustRun(t, "graph", "-s", "OSINT", "-d", "20240305"))
	assert.Equal(t, "COL-OSINT-20240305-02\n", w.mustRun(t, "collection", "-s", "OSINT", "-d", "20240305"))

	_, err := os.Stat(filepath.Join(w.dir, "vt_naming_config.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(w.dir, "report_naming_config.yaml"))
	assert.True(t, os.IsNotExist(err), "report store must not be touched")
}

func TestAllocate_Rejected(t *testing.T) {
	w := newWorkspace(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing source", []string{"report", "--type", "MALWARE"}},
		{"missing type", []string{"report", "--source", "ACME"}},
		{"bad date", []string{"report", "-s", "ACME", "-t", "MALWARE", "-d", "2024-01-01"}},
		{"dash in source", []string{"collection", "-s", "A-B"}},
		{"reserved source", []string{"report", "-s", "COL", "-t", "MALWARE"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := w.run(t, tt.args...)
			assert.Equal(t, ExitFailure, res.code)
			assert.Empty(t, res.stdout)
			assert.Contains(t, res.stderr, "Error [E001]")
		})
	}

	// Rejections never consume a sequence number.
	assert.Equal(t, "ACME-MALWARE-20240101-01\n", w.mustRun(t, "report", "-s", "ACME", "-t", "MALWARE", "-d", "20240101"))
}

func TestDescribe(t *testing.T) {
	w := newWorkspace(t)
	w.mustRun(t, "report", "-s", "X", "-t", "Y", "-d", "20240101", "--description", "test")
	w.mustRun(t, "graph", "-s", "OSINT", "-d", "20240305", "--description", "Infra pivot")
	w.mustRun(t, "collection", "-s", "OSINT", "-d", "20240305")

	assert.Equal(t, "Description for X-Y-20240101-01: test\n", w.mustRun(t, "describe", "X-Y-20240101-01"))
	assert.Equal(t, "Description for GRAPH-OSINT-20240305-01: Infra pivot\n", w.mustRun(t, "describe", "GRAPH-OSINT-20240305-01"))

	t.Run("no description", func(t *testing.T) {
		res := w.run(t, "describe", "COL-OSINT-20240305-01")
		assert.Equal(t, ExitFailure, res.code)
		assert.Contains(t, res.stderr, "Error [E002]")
	})

	t.Run("unknown id", func(t *testing.T) {
		res := w.run(t, "describe", "NOPE-X-20240101-01")
		assert.Equal(t, ExitFailure, res.code)
		assert.Contains(t, res.stderr, "not found")
	})
}

func TestList(t *testing.T) {
	w := newWorkspace(t)
	w.mustRun(t, "report", "-s", "ACME", "-t", "MALWARE", "-d", "20240101", "--description", "first")
	w.mustRun(t, "collection", "-s", "OSINT", "-d", "20240305", "--description", "Seed collection")
	w.mustRun(t, "graph", "-s", "OSINT", "-d", "20240305")

	assert.Equal(t, "ACME-MALWARE-20240101-01: first\n", w.mustRun(t, "list", "report"))
	assert.Equal(t, "GRAPH-OSINT-20240305-01: No description\n", w.mustRun(t, "list", "graph"))

	want := "Reports:\n" +
		"ACME-MALWARE-20240101-01: first\n" +
		"\nCollections:\n" +
		"COL-OSINT-20240305-01: Seed collection\n" +
		"\nGraphs:\n" +
		"GRAPH-OSINT-20240305-01: No description\n"
	assert.Equal(t, want, w.mustRun(t, "list"))

	res := w.run(t, "list", "sample")
	assert.Equal(t, ExitFailure, res.code)
}

func TestList_JSON(t *testing.T) {
	w := newWorkspace(t, "--format", "json")
	w.mustRun(t, "collection", "-s", "OSINT", "-d", "20240305")

	var resp struct {
		Status string     `json:"status"`
		Data   ListResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(w.mustRun(t, "list", "collection")), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Entries, 1)
	assert.Equal(t, ListEntry{Namespace: "collection", ID: "COL-OSINT-20240305-01"}, resp.Data.Entries[0])
}

func TestAllocate_JSON(t *testing.T) {
	w := newWorkspace(t, "--format", "json")

	var resp struct {
		Status string         `json:"status"`
		Data   AllocateResult `json:"data"`
	}
	out := w.mustRun(t, "report", "-s", "ACME", "-t", "MALWARE", "-d", "20240101", "--description", "  padded  ")
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, AllocateResult{ID: "ACME-MALWARE-20240101-01", Namespace: "report", Description: "padded"}, resp.Data)
}

func TestErrors_JSON(t *testing.T) {
	w := newWorkspace(t, "--format", "json")

	res := w.run(t, "report", "-t", "MALWARE")
	assert.Equal(t, ExitFailure, res.code)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
}

func TestExport_DefaultTarget(t *testing.T) {
	w := newWorkspace(t)
	t.Chdir(w.dir)
	w.mustRun(t, "report", "-s", "X", "-t", "Y", "-d", "20240101", "--description", "test")

	out := w.mustRun(t, "export")
	assert.Contains(t, out, "1 report ID(s) written to")
	assert.Contains(t, out, "report_ids.txt")

	data, err := os.ReadFile(filepath.Join(w.dir, "report_ids.txt"))
	require.NoError(t, err)
	assert.Equal(t, "X-Y-20240101-01: test\n", string(data))
}

func TestExport_PlatformToExplicitTarget(t *testing.T) {
	w := newWorkspace(t)
	w.mustRun(t, "collection", "-s", "OSINT", "-d", "20240305", "--description", "Seed collection")
	w.mustRun(t, "collection", "-s", "OSINT", "-d", "20240305")
	w.mustRun(t, "graph", "-s", "OSINT", "-d", "20240305")

	target := filepath.Join(w.dir, "platform.txt")
	w.mustRun(t, "export", "--store", "platform", "-o", target)

	data, err := os.ReadFile(filepath.Join(w.dir, "platform.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Collections:\n"+
		"COL-OSINT-20240305-01: Seed collection\n"+
		"COL-OSINT-20240305-02: No description\n"+
		"\nGraphs:\n"+
		"GRAPH-OSINT-20240305-01: No description\n", string(data))
}

func TestExport_EmptyStoreWarns(t *testing.T) {
	w := newWorkspace(t)
	target := filepath.Join(w.dir, "empty.txt")

	res := w.run(t, "export", "-o", target)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stderr, "warning: no report IDs issued yet")

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestExport_InvalidStore(t *testing.T) {
	w := newWorkspace(t)
	res := w.run(t, "export", "--store", "collection")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "Error [E001]")
}

func TestSetOutput(t *testing.T) {
	w := newWorkspace(t)
	target := filepath.Join(w.dir, "named.txt")

	out := w.mustRun(t, "set-output", "platform", target)
	assert.Equal(t, "Output file for platform set to "+target+"\n", out)

	w.mustRun(t, "graph", "-s", "OSINT", "-d", "20240305")
	w.mustRun(t, "export", "--store", "platform")

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "GRAPH-OSINT-20240305-01: No description")

	res := w.run(t, "set-output", "platform", "  ")
	assert.Equal(t, ExitFailure, res.code)
}

func TestAllow(t *testing.T) {
	w := newWorkspace(t)

	assert.Equal(t, "report sources: any\nreport types: any\n", w.mustRun(t, "allow", "report"))

	out := w.mustRun(t, "allow", "report", "--source", "ACME,MANDIANT", "--type", "MALWARE")
	assert.Equal(t, "report sources: ACME, MANDIANT\nreport types: MALWARE\n", out)

	res := w.run(t, "report", "-s", "OTHER", "-t", "MALWARE")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "must be one of [ACME, MANDIANT]")

	res = w.run(t, "report", "-s", "ACME", "-t", "APT")
	assert.Equal(t, ExitFailure, res.code)

	w.mustRun(t, "report", "-s", "MANDIANT", "-t", "MALWARE", "-d", "20240101")

	// Collections keep their own list.
	assert.Equal(t, "collection sources: any\n", w.mustRun(t, "allow", "collection"))

	assert.Equal(t, "report sources: any\nreport types: any\n", w.mustRun(t, "allow", "report", "--clear"))
	w.mustRun(t, "report", "-s", "OTHER", "-t", "APT", "-d", "20240101")
}

func TestAllow_ReplacesOnlyGivenField(t *testing.T) {
	w := newWorkspace(t)
	w.mustRun(t, "allow", "report", "--source", "ACME", "--type", "MALWARE")

	out := w.mustRun(t, "allow", "report", "--type", "APT,MALWARE")
	assert.Equal(t, "report sources: ACME\nreport types: APT, MALWARE\n", out)

	out = w.mustRun(t, "allow", "report", "--source", "MANDIANT")
	assert.Equal(t, "report sources: MANDIANT\nreport types: APT, MALWARE\n", out)

	out = w.mustRun(t, "allow", "report", "--clear", "--source", "ACME")
	assert.Equal(t, "report sources: ACME\nreport types: any\n", out)
}

func TestAllow_CategoriesOnlyForReports(t *testing.T) {
	w := newWorkspace(t)
	res := w.run(t, "allow", "graph", "--type", "MALWARE")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "Error [E001]")
}

func TestCorruptStore_WarnsAndStartsFresh(t *testing.T) {
	w := newWorkspace(t)
	path := filepath.Join(w.dir, "report_naming_config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("counters: [unterminated\n"), 0o644))

	res := w.run(t, "report", "-s", "ACME", "-t", "MALWARE", "-d", "20240101")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "ACME-MALWARE-20240101-01\n", res.stdout)
	assert.Contains(t, res.stderr, "warning: corrupt state")

	// The next run reads the rewritten, healthy store.
	res = w.run(t, "report", "-s", "ACME", "-t", "MALWARE", "-d", "20240101")
	assert.Equal(t, "ACME-MALWARE-20240101-02\n", res.stdout)
	assert.NotContains(t, res.stderr, "warning")
}

func TestSQLiteBackend(t *testing.T) {
	w := newWorkspace(t, "--backend", "sqlite")

	assert.Equal(t, "ACME-MALWARE-20240101-01\n", w.mustRun(t, "report", "-s", "ACME", "-t", "MALWARE", "-d", "20240101", "--description", "first"))
	assert.Equal(t, "COL-OSINT-20240305-01\n", w.mustRun(t, "collection", "-s", "OSINT", "-d", "20240305"))
	assert.Equal(t, "ACME-MALWARE-20240101-02\n", w.mustRun(t, "report", "-s", "ACME", "-t", "MALWARE", "-d", "20240101"))
	assert.Equal(t, "Description for ACME-MALWARE-20240101-01: first\n", w.mustRun(t, "describe", "ACME-MALWARE-20240101-01"))

	_, err := os.Stat(filepath.Join(w.dir, "ctinamer.db"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(w.dir, "report_naming_config.yaml"))
	assert.True(t, os.IsNotExist(err))
}

func TestInvalidGlobalFlags(t *testing.T) {
	w := newWorkspace(t)

	res := w.run(t, "--format", "xml", "list")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "invalid format")

	res = w.run(t, "--backend", "postgres", "list")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "invalid backend")
}

func TestServe_InvalidPersistPolicy(t *testing.T) {
	w := newWorkspace(t)
	res := w.run(t, "serve", "--persist", "eventually")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "invalid --persist")
}
