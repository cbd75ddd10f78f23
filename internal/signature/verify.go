package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance bounds |now - timestamp| for timestamp-bound signatures.
const DefaultTolerance = 300 * time.Second

var (
	ErrMissingSignature     = errors.New("signature missing")
	ErrMissingSecret        = errors.New("verification secret missing")
	ErrInvalidSignature     = errors.New("signature mismatch")
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
	ErrInvalidTimestamp     = errors.New("signature timestamp is not an integer")
	ErrStaleTimestamp       = errors.New("signature timestamp outside tolerance")
	ErrUnknownScheme        = errors.New("unknown verification scheme")
)

var (
	signatureKeys = map[string]bool{"v1": true, "sig": true, "signature": true, "sha256": true, "s": true}
	timestampKeys = map[string]bool{"t": true, "ts": true, "timestamp": true}
	algorithmKeys = map[string]bool{"alg": true, "algorithm": true}
)

// Verifier checks signatures. The zero value uses DefaultTolerance and
// the wall clock.
type Verifier struct {
	Tolerance time.Duration
	Now       func() time.Time
}

// NewVerifier returns a Verifier with the given tolerance (<=0 means default).
func NewVerifier(tolerance time.Duration) *Verifier {
	return &Verifier{Tolerance: tolerance}
}

// Verify checks header against secret and body. timestamp is the value of a
// dedicated timestamp header, if any. It returns the presented signature
// that matched.
func (v *Verifier) Verify(scheme Scheme, header, secret string, body []byte, timestamp string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", ErrMissingSignature
	}
	if secret == "" {
		return "", ErrMissingSecret
	}
	switch scheme {
	case SchemeToken:
		return v.verifyToken(header, secret)
	case SchemeHMAC:
		return v.verifyHMAC(header, secret, body, timestamp)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
}

func (v *Verifier) verifyToken(header, secret string) (string, error) {
	presented := strings.TrimSpace(header)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
		return "", ErrInvalidSignature
	}
	return presented, nil
}

func (v *Verifier) verifyHMAC(header, secret string, body []byte, timestamp string) (string, error) {
	parsed, err := parseHeader(header)
	if err != nil {
		return "", err
	}
	if parsed.timestamp != "" {
		timestamp = parsed.timestamp
	}
	timestamp = strings.TrimSpace(timestamp)

	digests := [][]byte{Digest(secret, body, "")}
	if timestamp != "" {
		if err := v.checkWindow(timestamp); err != nil {
			return "", err
		}
		digests = append(digests, Digest(secret, body, timestamp))
	}

	for _, digest := range digests {
		candidates := encodings(digest)
		for _, presented := range parsed.signatures {
			for _, candidate := range candidates {
				if subtle.ConstantTimeCompare([]byte(presented), []byte(candidate)) == 1 {
					return presented, nil
				}
			}
		}
	}
	return "", ErrInvalidSignature
}

func (v *Verifier) checkWindow(timestamp string) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	tolerance := v.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	drift := now().Unix() - ts
	if drift < 0 {
		drift = -drift
	}
	if time.Duration(drift)*time.Second > tolerance {
		return ErrStaleTimestamp
	}
	return nil
}

type parsedHeader struct {
	signatures []string
	timestamp  string
}

// parseHeader accepts a bare digest or comma-separated key=value pairs. A
// value is only treated as structured when at least one key is recognised,
// so padded base64 digests ("...=") stay bare.
func parseHeader(header string) (parsedHeader, error) {
	header = strings.TrimSpace(header)
	var (
		out        parsedHeader
		recognised bool
		algorithm  string
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		switch {
		case signatureKeys[key]:
			recognised = true
			if value != "" {
				out.signatures = append(out.signatures, value)
			}
		case timestampKeys[key]:
			recognised = true
			if out.timestamp == "" {
				out.timestamp = value
			}
		case algorithmKeys[key]:
			recognised = true
			if algorithm == "" {
				algorithm = value
			}
		}
	}

	if !recognised {
		return parsedHeader{signatures: []string{header}}, nil
	}
	if algorithm != "" && !isSHA256(algorithm) {
		return parsedHeader{}, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	if len(out.signatures) == 0 {
		return parsedHeader{}, ErrMissingSignature
	}
	return out, nil
}

func isSHA256(algorithm string) bool {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "sha256", "hmac-sha256", "hmac_sha256":
		return true
	}
	return false
}

// Digest computes HMAC-SHA256 over body, or over "<timestamp>.<body>" when
// timestamp is set.
func Digest(secret string, body []byte, timestamp string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	if timestamp != "" {
		mac.Write([]byte(timestamp))
		mac.Write([]byte("."))
	}
	mac.Write(body)
	return mac.Sum(nil)
}

// SignHex returns the hex digest a sender would present.
func SignHex(secret string, body []byte, timestamp string) string {
	return hex.EncodeToString(Digest(secret, body, timestamp))
}

func encodings(digest []byte) []string {
	return []string{
		hex.EncodeToString(digest),
		base64.StdEncoding.EncodeToString(digest),
		base64.RawStdEncoding.EncodeToString(digest),
		base64.URLEncoding.EncodeToString(digest),
		base64.RawURLEncoding.EncodeToString(digest),
	}
}
