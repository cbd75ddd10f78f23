package signature

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Unix(1_700_000_000, 0)

func testVerifier() *Verifier {
	return &Verifier{Tolerance: DefaultTolerance, Now: func() time.Time { return fixedNow }}
}

func TestVerifyHexExample(t *testing.T) {
	body := []byte(`{"AccountId":"acct-123"}`)
	header := SignHex("s3cr3t", body, "")

	got, err := testVerifier().Verify(SchemeHMAC, header, "s3cr3t", body, "")
	require.NoError(t, err)
	assert.Equal(t, header, got)
}

func TestVerifyRoundTripAndTamper(t *testing.T) {
	cases := []struct {
		secret string
		body   string
	}{
		{"s", ""},
		{"s3cr3t", `{"AccountId":"acct-123"}`},
		{"long-secret-with-unicode-ü", `{"a":[1,2,3],"b":{"c":null}}`},
	}
	for i, tc := range cases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			v := testVerifier()
			sig := SignHex(tc.secret, []byte(tc.body), "")

			_, err := v.Verify(SchemeHMAC, sig, tc.secret, []byte(tc.body), "")
			require.NoError(t, err)

			_, err = v.Verify(SchemeHMAC, sig, tc.secret, []byte(tc.body+" "), "")
			assert.ErrorIs(t, err, ErrInvalidSignature)

			_, err = v.Verify(SchemeHMAC, sig, tc.secret+"x", []byte(tc.body), "")
			assert.ErrorIs(t, err, ErrInvalidSignature)
		})
	}
}

func TestVerifyAcceptsAllEncodings(t *testing.T) {
	body := []byte(`{"x":1}`)
	digest := Digest("k", body, "")

	for name, header := range map[string]string{
		"hex":            SignHex("k", body, ""),
		"std":            base64.StdEncoding.EncodeToString(digest),
		"raw std":        base64.RawStdEncoding.EncodeToString(digest),
		"url":            base64.URLEncoding.EncodeToString(digest),
		"raw url":        base64.RawURLEncoding.EncodeToString(digest),
		"github style":   "sha256=" + SignHex("k", body, ""),
		"structured sig": "sig=" + base64.StdEncoding.EncodeToString(digest),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := testVerifier().Verify(SchemeHMAC, header, "k", body, "")
			assert.NoError(t, err)
		})
	}
}

func TestVerifyStructuredTimestamp(t *testing.T) {
	body := []byte(`{"AccountId":"acct-123"}`)
	ts := strconv.FormatInt(fixedNow.Unix()-60, 10)
	header := fmt.Sprintf("t=%s,v1=%s", ts, SignHex("s3cr3t", body, ts))

	_, err := testVerifier().Verify(SchemeHMAC, header, "s3cr3t", body, "")
	assert.NoError(t, err)
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	body := []byte(`{"AccountId":"acct-123"}`)
	ts := strconv.FormatInt(fixedNow.Unix()-400, 10)
	header := fmt.Sprintf("t=%s,v1=%s", ts, SignHex("s3cr3t", body, ts))

	_, err := testVerifier().Verify(SchemeHMAC, header, "s3cr3t", body, "")
	assert.ErrorIs(t, err, ErrStaleTimestamp)

	future := strconv.FormatInt(fixedNow.Unix()+301, 10)
	_, err = testVerifier().Verify(SchemeHMAC, SignHex("s3cr3t", body, ""), "s3cr3t", body, future)
	assert.ErrorIs(t, err, ErrStaleTimestamp, "stale header timestamp rejects even a body-only match")
}

func TestVerifyHeaderTimestamp(t *testing.T) {
	body := []byte(`{}`)
	ts := strconv.FormatInt(fixedNow.Unix(), 10)

	_, err := testVerifier().Verify(SchemeHMAC, SignHex("k", body, ts), "k", body, ts)
	assert.NoError(t, err)

	_, err = testVerifier().Verify(SchemeHMAC, SignHex("k", body, ts), "k", body, "not-a-number")
	assert.ErrorIs(t, err, ErrInvalidTimestamp)
}

func TestVerifyEmbeddedTimestampWins(t *testing.T) {
	body := []byte(`{}`)
	embedded := strconv.FormatInt(fixedNow.Unix()-10, 10)
	header := fmt.Sprintf("t=%s,v1=%s", embedded, SignHex("k", body, embedded))

	_, err := testVerifier().Verify(SchemeHMAC, header, "k", body, strconv.FormatInt(fixedNow.Unix()-9999, 10))
	assert.NoError(t, err)
}

func TestVerifyAlgorithmHint(t *testing.T) {
	body := []byte(`{}`)
	sig := SignHex("k", body, "")

	for _, alg := range []string{"sha256", "HMAC-SHA256", "hmac_sha256"} {
		_, err := testVerifier().Verify(SchemeHMAC, "alg="+alg+",v1="+sig, "k", body, "")
		assert.NoError(t, err, alg)
	}

	_, err := testVerifier().Verify(SchemeHMAC, "algorithm=sha1,v1="+sig, "k", body, "")
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestVerifyToken(t *testing.T) {
	v := testVerifier()

	got, err := v.Verify(SchemeToken, "  tok-ABC  ", "tok-ABC", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "tok-ABC", got)

	_, err = v.Verify(SchemeToken, "tok-ABD", "tok-ABC", nil, "")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = v.Verify(SchemeToken, "tok-abc", "tok-ABC", nil, "")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyMissingInputs(t *testing.T) {
	v := testVerifier()

	_, err := v.Verify(SchemeHMAC, "abc", "", []byte("x"), "")
	assert.ErrorIs(t, err, ErrMissingSecret)

	_, err = v.Verify(SchemeHMAC, " ", "k", []byte("x"), "")
	assert.ErrorIs(t, err, ErrMissingSignature)

	_, err = v.Verify(Scheme("basic"), "abc", "k", []byte("x"), "")
	assert.ErrorIs(t, err, ErrUnknownScheme)
}
