// Package crypto implements content fingerprinting of extracted payloads.
package crypto

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/blake2b"
)

// DigestSize is the fingerprint length in bytes (32 hex characters).
const DigestSize = 16

// Fingerprint returns the BLAKE2b-128 digest of the canonical JSON form of data.
// Structurally equal payloads hash identically regardless of key order.
// The digest is for dedup/audit only, not for security.
func Fingerprint(data any) ([]byte, error) {
	canon, err := Canonical(data)
	if err != nil {
		return nil, err
	}
	h, err := blake2b.New(DigestSize, nil)
	if err != nil {
		return nil, err
	}
	_, _ = h.Write(canon)
	return h.Sum(nil), nil
}

// FingerprintHex is Fingerprint in hex form.
func FingerprintHex(data any) (string, error) {
	sum, err := Fingerprint(data)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}

// Canonical serializes data with object keys sorted at every nesting level
// and numbers kept in their decoded textual form.
func Canonical(data any) ([]byte, error) {
	tree, err := normalize(data)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// normalize turns arbitrary Go values (structs, typed maps, ints) into the
// generic JSON tree: map[string]any, []any, json.Number, string, bool, nil.
func normalize(data any) (any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: encode: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("fingerprint: decode: %w", err)
	}
	return tree, nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeScalar(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case json.Number:
		buf.WriteString(t.String())
	default:
		return writeScalar(buf, t)
	}
	return nil
}

func writeScalar(buf *bytes.Buffer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("fingerprint: encode scalar: %w", err)
	}
	buf.Write(b)
	return nil
}
