package helpers

import (
	"strings"
	"testing"
)

func TestHexToBytes(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
	}{
		{"plain hex", "deadbeef", []byte{0xde, 0xad, 0xbe, 0xef}, false},
		{"0x prefix", "0xcafe", []byte{0xca, 0xfe}, false},
		{"empty", "", []byte{}, false},
		{"odd length", "abc", nil, true},
		{"invalid chars", "zzzz", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HexToBytes(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("HexToBytes(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("HexToBytes(%q) = %x, want %x", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("HexToBytes(%q) = %x, want %x", tt.input, got, tt.want)
				}
			}
		})
	}
}

func TestIsHexString(t *testing.T) {
	if !IsHexString(strings.Repeat("aa", 32), 32) {
		t.Error("expected 64-char hex to be valid for 32 bytes")
	}
	if IsHexString(strings.Repeat("aa", 32), 20) {
		t.Error("expected length mismatch to be invalid")
	}
	if IsHexString(strings.Repeat("zz", 20), 20) {
		t.Error("expected non-hex chars to be invalid")
	}
}

func TestShortID(t *testing.T) {
	txid := "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"
	short := ShortID(txid)
	if len(short) >= len(txid) {
		t.Errorf("ShortID did not shorten: %q", short)
	}
	if !strings.HasPrefix(short, "4a5e1e4b") {
		t.Errorf("ShortID prefix wrong: %q", short)
	}

	if ShortID("abc") != "abc" {
		t.Error("short input should pass through unchanged")
	}
}

func TestConstantTimeCompare(t *testing.T) {
	a := []byte{1, 2, 3}
	b := []byte{1, 2, 3}
	c := []byte{1, 2, 4}

	if !ConstantTimeCompare(a, b) {
		t.Error("equal slices should compare true")
	}
	if ConstantTimeCompare(a, c) {
		t.Error("different slices should compare false")
	}
	if ConstantTimeCompare(a, a[:2]) {
		t.Error("different lengths should compare false")
	}
}
