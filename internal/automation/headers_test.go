package automation

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIHeaders(t *testing.T) {
	basic := "Basic " + base64.StdEncoding.EncodeToString([]byte("u:p"))
	tests := []struct {
		name   string
		secret string
		header string
		want   string
	}{
		{"access token", `{"access_token":"abc"}`, "Authorization", "Bearer abc"},
		{"bearer token alias", `{"bearer_token":"xyz"}`, "Authorization", "Bearer xyz"},
		{"basic", `{"username":"u","password":"p"}`, "Authorization", basic},
		{"api key default header", `{"api_key":"k1"}`, DefaultAPIKeyHeader, "k1"},
		{"api key custom header", `{"api_key":"k2","header":"X-Vendor-Key"}`, "X-Vendor-Key", "k2"},
		{"client credentials", `{"client_id":"cid","client_secret":"cs"}`, "X-Client-Id", "cid"},
		{"raw token", "  plain-token\n", "Authorization", "Bearer plain-token"},
		{"unrecognised json", `{"something":"else"}`, "Authorization", `Bearer {"something":"else"}`},
		{"broken json", `{"access_token":`, "Authorization", `Bearer {"access_token":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := APIHeaders(tt.secret)
			assert.Equal(t, tt.want, h.Get(tt.header))
		})
	}
}

func TestAPIHeadersEmptySecret(t *testing.T) {
	assert.Empty(t, APIHeaders("  "))
}

func TestAPIHeadersClientSecret(t *testing.T) {
	h := APIHeaders(`{"client_id":"cid","client_secret":"cs"}`)
	assert.Equal(t, "cs", h.Get("X-Client-Secret"))
	assert.Empty(t, h.Get("Authorization"))
}
