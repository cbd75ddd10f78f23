package log

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("X-Vendor-Hmac-SHA256", "abc")
	h.Set("X-Vendor-Signature", "t=1,v1=abc")
	h.Set("Authorization", "Bearer xyz")
	h.Set("X-Vendor-Webhook-Token", "tok")
	h.Set("X-Vendor-Account-Id", "acct-123")
	h.Set("Content-Type", "application/json")

	got := RedactHeaders(h)

	assert.Equal(t, Redacted, got["x-vendor-hmac-sha256"])
	assert.Equal(t, Redacted, got["x-vendor-signature"])
	assert.Equal(t, Redacted, got["authorization"])
	assert.Equal(t, Redacted, got["x-vendor-webhook-token"])
	assert.Equal(t, "acct-123", got["x-vendor-account-id"])
	assert.Equal(t, "application/json", got["content-type"])
}

func TestNewRespectsLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", "json")

	l.Info("dropped")
	l.Warn("kept", "k", "v")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "v", entry["k"])
}

func TestParseLevelFallsBackToInfo(t *testing.T) {
	assert.Equal(t, "INFO", parseLevel("nonsense").String())
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
}
