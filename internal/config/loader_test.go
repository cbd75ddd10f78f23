package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "service:\n  name: test\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Service.Name)
	assert.Equal(t, "info", cfg.Service.LogLevel)
	assert.Equal(t, 300*time.Second, cfg.Verification.Tolerance)
	assert.Equal(t, "latest", cfg.Secrets.DefaultVersion)
	assert.Equal(t, "inprocess", cfg.Queue.Delivery)
	assert.Equal(t, []string{"vendor"}, cfg.Webhooks.Vendors)
}

func TestLoadInterpolatesEnv(t *testing.T) {
	t.Setenv("LH_TEST_PROJECT", "proj-1")
	path := writeConfig(t, t.TempDir(), "secrets:\n  project_id: ${LH_TEST_PROJECT}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "proj-1", cfg.Secrets.ProjectID)
}

func TestLoadEnvOverridesWin(t *testing.T) {
	t.Setenv("LEASEHOOK_STATE_PATH", "/tmp/override.db")
	t.Setenv("LEASEHOOK_VERIFICATION_TOLERANCE", "90s")
	t.Setenv("LEASEHOOK_WEBHOOKS_VENDORS", "acme,legacy")
	path := writeConfig(t, t.TempDir(), "state:\n  path: ./from-file.db\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.State.Path)
	assert.Equal(t, 90*time.Second, cfg.Verification.Tolerance)
	assert.Equal(t, []string{"acme", "legacy"}, cfg.Webhooks.Vendors)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LEASEHOOK_SECRETS_PROJECT_ID", "")
	require.NoError(t, os.Unsetenv("LEASEHOOK_SECRETS_PROJECT_ID"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LEASEHOOK_SECRETS_PROJECT_ID=from-dotenv\n"), 0o600))
	path := writeConfig(t, dir, "service:\n  name: x\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Secrets.ProjectID)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "log level", body: "service:\n  log_level: loud\n", want: "service.log_level"},
		{name: "delivery", body: "queue:\n  delivery: carrier-pigeon\n", want: "queue.delivery"},
		{name: "http without url", body: "queue:\n  delivery: http\n", want: "queue.push_url"},
		{name: "api without auth", body: "api:\n  enabled: true\n", want: "api.auth"},
		{name: "unset token env", body: "api:\n  enabled: true\n  auth:\n    api_key: ${LH_TEST_UNSET_KEY}\n", want: "LH_TEST_UNSET_KEY"},
		{name: "token without scopes", body: "api:\n  enabled: true\n  auth:\n    tokens:\n      - token: abc\n", want: "scopes"},
		{name: "token with unknown scope", body: "api:\n  enabled: true\n  auth:\n    tokens:\n      - token: abc\n        scopes: [\"jobs:rw\"]\n", want: `unknown scope "jobs:rw"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.body)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}
