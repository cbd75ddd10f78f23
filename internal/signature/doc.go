// Package signature extracts vendor signature headers and verifies them.
//
// The vendor has shipped several signature conventions over time, so
// extraction walks fixed priority lists of header names and verification
// accepts a bare digest or a structured "t=<ts>,v1=<sig>" value in any of
// the hex and base64 encodings seen in the wild:
//
//	X-Vendor-Hmac-SHA256: 5f1c...            (hex)
//	X-Vendor-Signature:   t=1700000000,v1=Xx (timestamp-bound)
//	X-Hub-Signature-256:  sha256=5f1c...     (GitHub style)
//	X-Vendor-Webhook-Token: <shared token>   (opaque token)
//
// Timestamp-bound signatures are rejected outside the tolerance window
// before any digest comparison.
package signature
