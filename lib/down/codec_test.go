package down

import (
	"bytes"
	"testing"
)

func TestDecode(t *testing.T) {
	if v, ok := Decode("abc", true).([]byte); !ok || !bytes.Equal(v, []byte("abc")) {
		t.Errorf("Expected text to be converted to binary, got %#v", v)
	}
	if v, ok := Decode([]byte("abc"), false).(string); !ok || v != "abc" {
		t.Errorf("Expected binary to be converted to text, got %#v", v)
	}
	if v, ok := Decode("abc", false).(string); !ok || v != "abc" {
		t.Errorf("Expected text to pass through, got %#v", v)
	}
	if v, ok := Decode([]byte{0xff}, true).([]byte); !ok || !bytes.Equal(v, []byte{0xff}) {
		t.Errorf("Expected binary to pass through, got %#v", v)
	}
	if v := Decode(42, true); v != 42 {
		t.Errorf("Expected other values to pass through, got %#v", v)
	}
}

func TestNormalize(t *testing.T) {
	for _, v := range [][]byte{nil, {}} {
		got := Normalize(v)
		if got == nil || len(got) != 0 {
			t.Errorf("Expected the canonical empty value for %#v, got %#v", v, got)
		}
	}
	if got := Normalize([]byte("x")); string(got) != "x" {
		t.Errorf("Expected non empty values to pass through, got %q", got)
	}

	for _, v := range []any{nil, "", []byte(nil), []byte{}} {
		got, ok := NormalizeRaw(v).([]byte)
		if !ok || got == nil || len(got) != 0 {
			t.Errorf("Expected the canonical empty value for %#v, got %#v", v, got)
		}
	}
	if got := NormalizeRaw("x"); got != "x" {
		t.Errorf("Expected non empty values to pass through, got %#v", got)
	}
}

func TestBytes(t *testing.T) {
	tests := []struct {
		raw  any
		want []byte
	}{
		{nil, []byte{}},
		{"", []byte{}},
		{"text", []byte("text")},
		{[]byte{0x00, 0x01}, []byte{0x00, 0x01}},
		{42, []byte{}},
	}
	for _, tc := range tests {
		got := Bytes(tc.raw)
		if got == nil || !bytes.Equal(got, tc.want) {
			t.Errorf("Bytes(%#v): expected %#v, got %#v", tc.raw, tc.want, got)
		}
	}
}
