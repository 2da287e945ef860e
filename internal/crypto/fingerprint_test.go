package crypto

import (
	"bytes"
	"testing"
)

func TestFingerprint_DeterministicOnSameInput(t *testing.T) {
	t.Parallel()

	data := map[string]any{"id": 1, "name": "test"}
	h1, err := Fingerprint(data)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	h2, err := Fingerprint(data)
	if err != nil {
		t.Fatalf("Fingerprint(2): %v", err)
	}
	if !bytes.Equal(h1, h2) {
		t.Fatalf("fingerprint not deterministic")
	}
	if len(h1) != DigestSize {
		t.Fatalf("len=%d, want=%d", len(h1), DigestSize)
	}

	hx, err := FingerprintHex(data)
	if err != nil {
		t.Fatalf("FingerprintHex: %v", err)
	}
	if len(hx) != 2*DigestSize {
		t.Fatalf("hex len=%d", len(hx))
	}
}

func TestFingerprint_KeyOrderIndependent(t *testing.T) {
	t.Parallel()

	a := []byte(`{"id":1,"name":"test","value":"abc","meta":{"b":[1,{"y":2,"x":1}],"a":null}}`)
	b := []byte(`{"meta":{"a":null,"b":[1,{"x":1,"y":2}]},"value":"abc","name":"test","id":1}`)

	var da, db map[string]any
	mustUnmarshal(t, a, &da)
	mustUnmarshal(t, b, &db)

	ha, _ := FingerprintHex(da)
	hb, _ := FingerprintHex(db)
	if ha != hb {
		t.Fatalf("hash depends on key order: %s != %s", ha, hb)
	}
}

func TestFingerprint_DifferentDataDifferentHash(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b any
	}{
		{"scalar value", map[string]any{"id": 1, "name": "test1"}, map[string]any{"id": 2, "name": "test2"}},
		{"nested value", map[string]any{"m": map[string]any{"k": "a"}}, map[string]any{"m": map[string]any{"k": "b"}}},
		{"array order", []any{1, 2}, []any{2, 1}},
		{"type", map[string]any{"v": "1"}, map[string]any{"v": 1}},
		{"missing key", map[string]any{"a": 1}, map[string]any{"a": 1, "b": nil}},
	}
	for _, tc := range cases {
		ha, _ := FingerprintHex(tc.a)
		hb, _ := FingerprintHex(tc.b)
		if ha == hb {
			t.Fatalf("%s: expected different hashes, got %s", tc.name, ha)
		}
	}
}

func TestFingerprint_StructAndMapAgree(t *testing.T) {
	t.Parallel()

	type course struct {
		ID       int    `json:"id"`
		Fullname string `json:"fullname"`
	}
	h1, _ := FingerprintHex(course{ID: 42, Fullname: "Intro"})
	h2, _ := FingerprintHex(map[string]any{"fullname": "Intro", "id": 42})
	if h1 != h2 {
		t.Fatalf("struct and map forms differ: %s vs %s", h1, h2)
	}
}

func TestCanonical_SortedCompact(t *testing.T) {
	t.Parallel()

	got, err := Canonical(map[string]any{"b": 1, "a": []any{"x", true, nil}})
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	want := `{"a":["x",true,null],"b":1}`
	if string(got) != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestFingerprint_UnsupportedValue(t *testing.T) {
	t.Parallel()

	if _, err := Fingerprint(map[string]any{"ch": make(chan int)}); err == nil {
		t.Fatalf("expected encode error for channel value")
	}
}
