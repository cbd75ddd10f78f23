package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/leasehook/internal/config"
	"github.com/mattjoyce/leasehook/internal/n1"
	"github.com/mattjoyce/leasehook/internal/payload"
	"github.com/mattjoyce/leasehook/internal/queue"
	"github.com/mattjoyce/leasehook/internal/tenant"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	require.NoError(t, err)
	stderrR, stderrW, err := os.Pipe()
	require.NoError(t, err)

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)
	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion, origCommit, origBuildDate := version, gitCommit, buildDate
	version, gitCommit, buildDate = v, commit, built
	t.Cleanup(func() {
		version, gitCommit, buildDate = origVersion, origCommit, origBuildDate
	})
}

// writeConfigFixture writes a minimal config into dir and returns its path.
func writeConfigFixture(t *testing.T, dir string) string {
	t.Helper()

	configYAML := `
service:
  log_level: error
state:
  path: ` + filepath.Join(dir, "state.db") + `
secrets:
  project_id: local
payload:
  secret: payload-secret
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o644))
	return path
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	return captureOutputWithExitCode(t, func() int { return runCLI(args) })
}

func TestRunCLIUnknownCommand(t *testing.T) {
	code, _, stderr := run(t, "bogus")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown command: bogus")
}

func TestPrintUsageUsesActionTerminology(t *testing.T) {
	_, stdout, _ := captureOutputWithExitCode(t, func() int {
		printUsage()
		return 0
	})
	assert.Contains(t, stdout, "leasehook <noun> <action> [flags]")
	assert.Contains(t, stdout, "automation run")
}

func TestNounActionHelp(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{args: []string{"system", "start", "--help"}, want: "Usage: leasehook system start"},
		{args: []string{"config", "--help"}, want: "Usage: leasehook config <action>"},
		{args: []string{"config", "lock", "-h"}, want: "Usage: leasehook config lock"},
		{args: []string{"tenant", "import", "--help"}, want: "Usage: leasehook tenant import"},
		{args: []string{"secret", "put", "--help"}, want: "Usage: leasehook secret put"},
		{args: []string{"automation", "run", "--help"}, want: "Kinds: initiation, n1_prepare, n1_deliver"},
		{args: []string{"payload", "help"}, want: "Usage: leasehook payload <action>"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			code, stdout, stderr := run(t, tt.args...)
			require.Equal(t, 0, code, stderr)
			assert.Contains(t, stdout, tt.want)
		})
	}
}

func TestRunCLIRootVersionFlag(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "abc1234567890", "2026-02-12T11:30:00Z")

	code, stdout, stderr := run(t, "--version")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "leasehook 1.2.3")
	assert.Contains(t, stdout, "commit: abc123456789")
	assert.Contains(t, stdout, "built_at: 2026-02-12T11:30:00Z")
}

func TestRunVersionJSONOutputIncludesMetadata(t *testing.T) {
	setVersionMetadataForTest(t, "2.0.0-rc.1", "aabbccddeeff001122334455", "2026-02-12T11:30:00-05:00")

	code, stdout, stderr := run(t, "version", "--json")
	require.Equal(t, 0, code, stderr)

	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, "2.0.0-rc.1", info.Version)
	assert.Equal(t, "aabbccddeeff", info.Commit)
	assert.Equal(t, "2026-02-12T16:30:00Z", info.BuildTime)
}

func TestRunConfigCheck(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFixture(t, dir)

	code, stdout, stderr := run(t, "config", "check", "--config", path)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Configuration valid")

	require.NoError(t, os.WriteFile(path, []byte("queue:\n  delivery: carrier-pigeon\n"), 0o644))
	code, _, stderr = run(t, "config", "check", "--config", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "queue.delivery")
}

func TestRunConfigLockDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFixture(t, dir)

	code, stdout, stderr := run(t, "config", "lock", "--config", dir)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, config.ChecksumFile)

	code, _, stderr = run(t, "config", "check", "--config", path)
	require.Equal(t, 0, code, stderr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("# edited\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	code, _, stderr = run(t, "config", "check", "--config", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "hash mismatch")
}

func TestTenantImportSecretPutAndShow(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFixture(t, dir)

	docPath := filepath.Join(dir, "tenant.json")
	require.NoError(t, os.WriteFile(docPath, []byte(`{"name":"Acme Lettings","webhook_secret":"whsec"}`), 0o600))

	code, stdout, stderr := run(t, "tenant", "import", "--config", path, "--account", "acct-1", "--file", docPath)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Imported tenant acct-1")

	code, stdout, stderr = run(t, "secret", "put", "--config", path, "--id", "acct-1-api", "--value", "api-key", "--account", "acct-1", "--kind", "api")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "projects/local/secrets/acct-1-api/versions/1")

	code, stdout, stderr = run(t, "tenant", "show", "--config", path, "--account", "acct-1")
	require.Equal(t, 0, code, stderr)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &doc))
	assert.Equal(t, "Acme Lettings", doc["name"])
	assert.Equal(t, "projects/local/secrets/acct-1-api/versions/1", doc["api_secret_ref"])
}

func TestTenantImportRejectsNonObject(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFixture(t, dir)
	docPath := filepath.Join(dir, "tenant.json")
	require.NoError(t, os.WriteFile(docPath, []byte(`[1,2,3]`), 0o600))

	code, _, stderr := run(t, "tenant", "import", "--config", path, "--account", "acct-1", "--file", docPath)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "JSON object")
}

func TestSecretPutRequiresExactlyOneValue(t *testing.T) {
	path := writeConfigFixture(t, t.TempDir())

	code, _, stderr := run(t, "secret", "put", "--config", path, "--id", "x")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "exactly one of --value or --value-file")
}

func TestAutomationRunRejectsUnknownKind(t *testing.T) {
	path := writeConfigFixture(t, t.TempDir())

	code, _, _ := run(t, "automation", "run", "rent_review", "--config", path, "--all")
	assert.Equal(t, 1, code)
}

func TestAutomationRunSkipsCompletedInitiation(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFixture(t, dir)

	docPath := filepath.Join(dir, "tenant.json")
	require.NoError(t, os.WriteFile(docPath, []byte(`{
		"webhook_secret": "whsec",
		"automations": {"initiation": {"completed_at": "2026-01-01T00:00:00Z"}}
	}`), 0o600))
	code, _, stderr := run(t, "tenant", "import", "--config", path, "--account", "acct-1", "--file", docPath)
	require.Equal(t, 0, code, stderr)
	code, _, stderr = run(t, "secret", "put", "--config", path, "--id", "api", "--value", "k", "--account", "acct-1", "--kind", "api")
	require.Equal(t, 0, code, stderr)

	code, stdout, stderr := run(t, "automation", "run", "initiation", "--config", path, "--all", "--json")
	require.Equal(t, 0, code, stderr)

	var results []struct {
		AccountID string `json:"account_id"`
		Outcome   struct {
			Status string `json:"status"`
			Reason string `json:"reason"`
		} `json:"outcome"`
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "acct-1", results[0].AccountID)
	assert.Equal(t, "ignored", results[0].Outcome.Status)
	assert.Contains(t, results[0].Outcome.Reason, "already completed")
	assert.Empty(t, results[0].Error)
}

func TestAutomationRunReportsUnknownAccount(t *testing.T) {
	path := writeConfigFixture(t, t.TempDir())

	code, stdout, _ := run(t, "automation", "run", "n1_prepare", "--config", path, "--account", "missing")
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "missing\tn1_prepare\tfailed")
}

func TestPayloadInspect(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFixture(t, dir)

	schedules := []n1.Schedule{
		{LeaseID: "L-1", TenantName: "Ada", CurrentRent: 1000, NewRent: 1030, IncreasePercent: 3, NoticeDate: "2026-03-01", EffectiveDate: "2026-05-01"},
		{LeaseID: "L-2", TenantName: "Grace", CurrentRent: 2000, NewRent: 2060, IncreasePercent: 3, NoticeDate: "2026-03-01", EffectiveDate: "2026-06-01"},
	}
	records, err := payload.Records(schedules)
	require.NoError(t, err)
	chunks, err := payload.Codec{Secret: "payload-secret", KeyVersion: 1}.Encode(records, 4096)
	require.NoError(t, err)

	rawChunks, err := json.Marshal(chunks)
	require.NoError(t, err)
	var chunkValue any
	require.NoError(t, json.Unmarshal(rawChunks, &chunkValue))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	a, err := openApp(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, a.tenants.Put(context.Background(), "acct-1", tenant.Document{
		"n1": map[string]any{
			"payload_chunks": chunkValue,
			"prepared_at":    "2026-03-01T09:00:00Z",
		},
	}))
	require.NoError(t, a.Close())

	code, stdout, stderr := run(t, "payload", "inspect", "--config", path, "--account", "acct-1")
	require.Equal(t, 0, code, stderr)
	var got []n1.Schedule
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, schedules, got)

	code, stdout, stderr = run(t, "payload", "inspect", "--config", path, "--account", "acct-1", "--csv")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "L-1")
	assert.Contains(t, stdout, "Grace")
}

func TestPayloadInspectWithoutPreparedPayload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFixture(t, dir)
	docPath := filepath.Join(dir, "tenant.json")
	require.NoError(t, os.WriteFile(docPath, []byte(`{"name":"x"}`), 0o600))
	code, _, stderr := run(t, "tenant", "import", "--config", path, "--account", "acct-1", "--file", docPath)
	require.Equal(t, 0, code, stderr)

	code, _, stderr = run(t, "payload", "inspect", "--config", path, "--account", "acct-1")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "no prepared n1 payload")
}

func TestJobInspect(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFixture(t, dir)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	a, err := openApp(context.Background(), cfg)
	require.NoError(t, err)
	jobID, err := a.queue.Enqueue(context.Background(), queue.EnqueueRequest{
		Kind:        "automation",
		AccountID:   "acct-1",
		SubmittedBy: "webhook",
	})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	code, stdout, stderr := run(t, "job", "inspect", jobID, "--config", path)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Job Report")
	assert.Contains(t, stdout, "No finished attempts.")

	code, _, stderr = run(t, "job", "inspect", "missing-job", "--config", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "not found")
}
