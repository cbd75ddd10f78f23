// Package payload splits record lists into size-bounded, compressed and
// obfuscated chunks for the size-limited tenant document store.
//
// Each chunk is compact JSON, zlib-compressed, XORed with SHA-256(secret)
// and base64 encoded. XOR keeps casual readers out of stored documents; it
// is not encryption against an attacker with store access.
package payload

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zlib"
)

const (
	// Algorithm identifies the current chunk transform.
	Algorithm = "zlib+xor-sha256"
	// AlgorithmNone marks legacy chunks holding plain (optionally base64) JSON.
	AlgorithmNone = "none"
)

var ErrMissingSecret = errors.New("payload secret is empty")

// Encryption describes how a chunk was transformed.
type Encryption struct {
	Algorithm  string `json:"algorithm"`
	KeyVersion int    `json:"key_version"`
}

// Chunk is one independently decodable slice of a record list.
type Chunk struct {
	Payload    string     `json:"payload"`
	Count      int        `json:"count"`
	Encryption Encryption `json:"encryption"`
}

// Codec carries the key material. KeyVersion is recorded on each chunk.
type Codec struct {
	Secret     string
	KeyVersion int
}

// Encode chunks records with a version-1 key.
func Encode(records []json.RawMessage, maxBytes int, secret string) ([]Chunk, error) {
	return Codec{Secret: secret, KeyVersion: 1}.Encode(records, maxBytes)
}

// Decode reverses one chunk.
func Decode(chunk Chunk, secret string) ([]json.RawMessage, error) {
	return Codec{Secret: secret}.Decode(chunk)
}

// DecodeAll concatenates the records of chunks in order.
func DecodeAll(chunks []Chunk, secret string) ([]json.RawMessage, error) {
	return Codec{Secret: secret}.DecodeAll(chunks)
}

// Encode accumulates records greedily: a record joins the current chunk
// while the encoded chunk stays within maxBytes. A record that alone
// exceeds maxBytes becomes its own chunk.
func (c Codec) Encode(records []json.RawMessage, maxBytes int) ([]Chunk, error) {
	if c.Secret == "" {
		return nil, ErrMissingSecret
	}
	if maxBytes <= 0 {
		return nil, fmt.Errorf("max bytes must be positive")
	}
	key := deriveKey(c.Secret)

	var (
		chunks  []Chunk
		buffer  []json.RawMessage
		current string
	)
	flush := func(recs []json.RawMessage, encoded string) {
		chunks = append(chunks, Chunk{
			Payload:    encoded,
			Count:      len(recs),
			Encryption: Encryption{Algorithm: Algorithm, KeyVersion: c.KeyVersion},
		})
	}

	for i, rec := range records {
		candidate := append(buffer[:len(buffer):len(buffer)], rec)
		encoded, err := encodeBatch(candidate, key)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if len(encoded) <= maxBytes {
			buffer, current = candidate, encoded
			continue
		}

		if len(buffer) > 0 {
			flush(buffer, current)
			buffer, current = nil, ""
		}

		single := []json.RawMessage{rec}
		encoded, err = encodeBatch(single, key)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if len(encoded) > maxBytes {
			flush(single, encoded)
			continue
		}
		buffer, current = single, encoded
	}
	if len(buffer) > 0 {
		flush(buffer, current)
	}
	return chunks, nil
}

// Decode reverses base64, XOR, zlib and JSON. Legacy chunks, and chunks
// whose primary decode fails, are retried as plain JSON.
func (c Codec) Decode(chunk Chunk) ([]json.RawMessage, error) {
	alg := strings.TrimSpace(chunk.Encryption.Algorithm)
	if alg == "" || alg == AlgorithmNone {
		records, err := decodeLegacy(chunk.Payload)
		return c.checkCount(chunk, records, err)
	}
	if c.Secret == "" {
		return nil, ErrMissingSecret
	}

	records, err := decodePrimary(chunk.Payload, deriveKey(c.Secret))
	if err == nil {
		return c.checkCount(chunk, records, nil)
	}
	if legacy, legacyErr := decodeLegacy(chunk.Payload); legacyErr == nil {
		return c.checkCount(chunk, legacy, nil)
	}
	return nil, fmt.Errorf("decode chunk: %w", err)
}

// DecodeAll concatenates the records of chunks in order.
func (c Codec) DecodeAll(chunks []Chunk) ([]json.RawMessage, error) {
	var out []json.RawMessage
	for i, chunk := range chunks {
		records, err := c.Decode(chunk)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		out = append(out, records...)
	}
	return out, nil
}

func (c Codec) checkCount(chunk Chunk, records []json.RawMessage, err error) ([]json.RawMessage, error) {
	if err != nil {
		return nil, err
	}
	if chunk.Count > 0 && chunk.Count != len(records) {
		return nil, fmt.Errorf("chunk count mismatch: header %d, decoded %d", chunk.Count, len(records))
	}
	return records, nil
}

func deriveKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

func xor(data, key []byte) {
	for i := range data {
		data[i] ^= key[i%len(key)]
	}
}

func encodeBatch(records []json.RawMessage, key []byte) (string, error) {
	raw, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("marshal records: %w", err)
	}

	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return "", err
	}
	if _, err := zw.Write(raw); err != nil {
		return "", fmt.Errorf("compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress: %w", err)
	}

	data := buf.Bytes()
	xor(data, key)
	return base64.StdEncoding.EncodeToString(data), nil
}

func decodePrimary(payload string, key []byte) ([]json.RawMessage, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	xor(data, key)

	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	return parseArray(raw)
}

func decodeLegacy(payload string) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(payload)
	if strings.HasPrefix(trimmed, "[") {
		return parseArray([]byte(trimmed))
	}
	raw, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("legacy base64: %w", err)
	}
	return parseArray(raw)
}

func parseArray(raw []byte) ([]json.RawMessage, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	return records, nil
}

// Records marshals values into raw records.
func Records[T any](values []T) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(values))
	for i, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, raw)
	}
	return out, nil
}
