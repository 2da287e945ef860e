package crypto

import (
	"bytes"
	"testing"

	"github.com/goccy/go-json"
)

func mustUnmarshal(t *testing.T, raw []byte, dst any) {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
}
