package conv

import (
	"bytes"
	"testing"
)

func TestUtoa(t *testing.T) {
	cases := []struct {
		n    uint64
		want string
	}{
		{0, "0"},
		{5, "5"},
		{1800, "1800"},
		{4294967295, "4294967295"},
	}
	var buf [20]byte
	for _, c := range cases {
		if got := Utoa(buf[:], c.n); string(got) != c.want {
			t.Errorf("Utoa(%d) = %q, want %q", c.n, got, c.want)
		}
	}
}

func TestParseU32(t *testing.T) {
	if v, ok := ParseU32([]byte("3769")); !ok || v != 3769 {
		t.Errorf("ParseU32(3769) = %d,%v", v, ok)
	}
	if v, ok := ParseU32([]byte("0")); !ok || v != 0 {
		t.Errorf("ParseU32(0) = %d,%v", v, ok)
	}
	for _, bad := range []string{"", "-1", "12x", "4294967296"} {
		if _, ok := ParseU32([]byte(bad)); ok {
			t.Errorf("ParseU32(%q) accepted", bad)
		}
	}
}

func TestDecodeHex(t *testing.T) {
	var out [4]byte
	if !DecodeHex(out[:], []byte("808BC25E")) {
		t.Fatal("DecodeHex rejected valid input")
	}
	if !bytes.Equal(out[:], []byte{0x80, 0x8B, 0xC2, 0x5E}) {
		t.Errorf("DecodeHex = %X", out)
	}
	if !DecodeHex(out[:], []byte("deadbeef")) {
		t.Error("lowercase rejected")
	}
	if DecodeHex(out[:], []byte("zzzzzzzz")) {
		t.Error("non-hex accepted")
	}
	if DecodeHex(out[:], []byte("808B")) {
		t.Error("short input accepted")
	}
}
