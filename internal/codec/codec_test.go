package codec

import (
	"errors"
	"testing"

	"golang.org/x/text/encoding/japanese"
)

func TestNormalizeUTF8(t *testing.T) {
	c := MustNew("UTF-8", "UTF-8")
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ascii", "Work", "Work"},
		{"japanese", "仕事", "仕事"},
		{"invalid byte", "a\xffb", "a_b"},
		{"truncated sequence", "x\xe4\xbb", "x__"},
		{"decomposed", "e\u0301", "\u00e9"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeFromShiftJIS(t *testing.T) {
	c := MustNew("Shift_JIS", "UTF-8")
	raw, err := japanese.ShiftJIS.NewEncoder().String("仕事")
	if err != nil {
		t.Fatal(err)
	}
	if got := c.NormalizeBytes([]byte(raw)); got != "仕事" {
		t.Errorf("NormalizeBytes = %q, want 仕事", got)
	}
}

func TestStorageRoundTripUTF8(t *testing.T) {
	c := MustNew("", "")
	if c.StorageEncoding() != Canonical {
		t.Errorf("StorageEncoding() = %q", c.StorageEncoding())
	}
	got, err := c.ToStorage("買い物")
	if err != nil {
		t.Fatal(err)
	}
	if got != "買い物" {
		t.Errorf("ToStorage changed a UTF-8 name: %q", got)
	}
	if back := c.FromStorage(got); back != "買い物" {
		t.Errorf("FromStorage = %q", back)
	}
}

func TestStorageRoundTripShiftJIS(t *testing.T) {
	c := MustNew("UTF-8", "Shift_JIS")
	if c.StorageEncoding() != "shift_jis" {
		t.Errorf("StorageEncoding() = %q, want shift_jis", c.StorageEncoding())
	}
	encoded, err := c.ToStorage("仕事")
	if err != nil {
		t.Fatal(err)
	}
	if encoded == "仕事" {
		t.Error("expected Shift_JIS bytes, got UTF-8")
	}
	if back := c.FromStorage(encoded); back != "仕事" {
		t.Errorf("FromStorage = %q, want 仕事", back)
	}
}

func TestToStorageUnrepresentable(t *testing.T) {
	c := MustNew("UTF-8", "EUC-JP")
	if _, err := c.ToStorage("party🎉"); !errors.Is(err, ErrUnrepresentable) {
		t.Errorf("expected ErrUnrepresentable, got %v", err)
	}
	if _, err := c.ToStorage("plain"); err != nil {
		t.Errorf("ascii name should encode: %v", err)
	}
}

func TestFromStorageInvalidBytes(t *testing.T) {
	c := MustNew("", "")
	if got := c.FromStorage("bad\xfe"); got != "bad_" {
		t.Errorf("FromStorage = %q, want bad_", got)
	}
}

func TestUnknownEncoding(t *testing.T) {
	if _, err := New("klingon-8", ""); err == nil {
		t.Error("expected error for unknown input encoding")
	}
	if _, err := New("", "klingon-8"); err == nil {
		t.Error("expected error for unknown storage encoding")
	}
}

func TestCleanIgnoresInputEncoding(t *testing.T) {
	c := MustNew("Shift_JIS", "UTF-8")
	if got := c.Clean("3\t仕事\n"); got != "3\t仕事\n" {
		t.Errorf("Clean = %q", got)
	}
	if got := c.Clean("x\xff"); got != "x_" {
		t.Errorf("Clean = %q, want x_", got)
	}
}
