package signature

import (
	"net/http"
	"sort"
	"strings"
)

// Scheme names the authenticity mechanism that matched.
type Scheme string

const (
	SchemeHMAC  Scheme = "hmac"
	SchemeToken Scheme = "token"
)

// HMACHeaders are checked in order; the first present one wins.
var HMACHeaders = []string{
	"x-vendor-hmac-sha256",
	"x-vendor-signature",
	"x-vendor-webhook-signature",
	"x-hub-signature-256",
	"x-signature",
}

// TokenHeaders are checked only when no HMAC header is present.
var TokenHeaders = []string{
	"x-vendor-webhook-token",
	"x-vendor-token",
	"x-webhook-token",
}

// TimestampHeaders are searched independently of the signature header.
var TimestampHeaders = []string{
	"x-vendor-timestamp",
	"x-vendor-webhook-timestamp",
	"x-webhook-timestamp",
	"x-timestamp",
}

// Metadata describes the signature header found on a request.
type Metadata struct {
	HeaderName          string `json:"header_name"`
	HeaderValue         string `json:"header_value"`
	Scheme              Scheme `json:"scheme"`
	Timestamp           string `json:"timestamp,omitempty"`
	TimestampHeaderName string `json:"timestamp_header_name,omitempty"`
}

// Extract scans headers for a signature and an optional timestamp.
// Returns nil when no signature header is present.
func Extract(headers http.Header) *Metadata {
	lower := Lowercase(headers)

	meta := findFirst(lower, HMACHeaders, SchemeHMAC)
	if meta == nil {
		meta = findFirst(lower, TokenHeaders, SchemeToken)
	}
	if meta == nil {
		return nil
	}

	for _, name := range TimestampHeaders {
		if v, ok := lower[name]; ok && strings.TrimSpace(v) != "" {
			meta.Timestamp = strings.TrimSpace(v)
			meta.TimestampHeaderName = name
			break
		}
	}
	return meta
}

func findFirst(lower map[string]string, names []string, scheme Scheme) *Metadata {
	for _, name := range names {
		if v, ok := lower[name]; ok && strings.TrimSpace(v) != "" {
			return &Metadata{HeaderName: name, HeaderValue: v, Scheme: scheme}
		}
	}
	return nil
}

// Lowercase flattens headers to lowercase names, keeping the first value.
// When names differ only by case, the lexically smallest original name wins.
func Lowercase(headers http.Header) map[string]string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]string, len(headers))
	for _, name := range names {
		values := headers[name]
		if len(values) == 0 {
			continue
		}
		key := strings.ToLower(name)
		if _, seen := out[key]; seen {
			continue
		}
		out[key] = values[0]
	}
	return out
}
