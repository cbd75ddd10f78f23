package automation

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

// DefaultAPIKeyHeader carries an api_key when the secret names no header.
const DefaultAPIKeyHeader = "X-Api-Key"

type apiCredentials struct {
	AccessToken  string `json:"access_token"`
	Token        string `json:"token"`
	BearerToken  string `json:"bearer_token"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	APIKey       string `json:"api_key"`
	Header       string `json:"header"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// APIHeaders derives outbound vendor headers from the resolved API secret.
// A JSON secret is read for a bearer token, basic credentials, an api key
// or a client id/secret pair, in that order. Anything else is sent as a
// raw bearer token.
func APIHeaders(secret string) http.Header {
	h := http.Header{}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return h
	}

	var creds apiCredentials
	if strings.HasPrefix(secret, "{") && json.Unmarshal([]byte(secret), &creds) == nil {
		switch {
		case firstNonEmpty(creds.AccessToken, creds.Token, creds.BearerToken) != "":
			h.Set("Authorization", "Bearer "+firstNonEmpty(creds.AccessToken, creds.Token, creds.BearerToken))
			return h
		case creds.Username != "" && creds.Password != "":
			basic := base64.StdEncoding.EncodeToString([]byte(creds.Username + ":" + creds.Password))
			h.Set("Authorization", "Basic "+basic)
			return h
		case creds.APIKey != "":
			name := strings.TrimSpace(creds.Header)
			if name == "" {
				name = DefaultAPIKeyHeader
			}
			h.Set(name, creds.APIKey)
			return h
		case creds.ClientID != "" && creds.ClientSecret != "":
			h.Set("X-Client-Id", creds.ClientID)
			h.Set("X-Client-Secret", creds.ClientSecret)
			return h
		}
	}

	h.Set("Authorization", "Bearer "+secret)
	return h
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
