// Package codec converts external text into the canonical UTF-8 form used
// throughout the store and maps category names to and from the encoding the
// filesystem uses for file names.
package codec

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Placeholder replaces every character that cannot be represented.
const Placeholder = '_'

// Canonical is the internal text encoding.
const Canonical = "UTF-8"

// ErrUnrepresentable reports a name that does not survive the trip through
// the storage encoding unchanged.
var ErrUnrepresentable = errors.New("name is not representable in the storage encoding")

// Codec carries the text configuration of one store instance.
type Codec struct {
	input       encoding.Encoding
	storage     encoding.Encoding
	storageName string
}

// New builds a codec. Both arguments are WHATWG encoding labels such as
// "UTF-8", "EUC-JP" or "Shift_JIS"; an empty label means UTF-8.
func New(inputEncoding, storageEncoding string) (*Codec, error) {
	input, err := lookup(inputEncoding)
	if err != nil {
		return nil, fmt.Errorf("input encoding: %w", err)
	}
	storage, err := lookup(storageEncoding)
	if err != nil {
		return nil, fmt.Errorf("storage encoding: %w", err)
	}
	name := Canonical
	if storage != nil {
		name, _ = htmlindex.Name(storage)
	}
	return &Codec{input: input, storage: storage, storageName: name}, nil
}

// MustNew is New for constant labels known to be valid.
func MustNew(inputEncoding, storageEncoding string) *Codec {
	c, err := New(inputEncoding, storageEncoding)
	if err != nil {
		panic(err)
	}
	return c
}

// StorageEncoding returns the canonical name of the file name encoding.
func (c *Codec) StorageEncoding() string {
	return c.storageName
}

// Normalize converts external text into canonical form: decoded from the
// configured input encoding, ill-formed sequences replaced with Placeholder,
// composed to NFC.
func (c *Codec) Normalize(s string) string {
	return c.canonical(c.input, s)
}

// NormalizeBytes is Normalize for raw input.
func (c *Codec) NormalizeBytes(b []byte) string {
	return c.Normalize(string(b))
}

// Clean canonicalizes text that is already meant to be UTF-8, such as the
// content of a list file.
func (c *Codec) Clean(s string) string {
	return c.canonical(nil, s)
}

// ToStorage encodes a canonical category name for use as a file name
// segment. Only the name segment is ever encoded, never a directory or an
// extension.
func (c *Codec) ToStorage(name string) (string, error) {
	if c.storage == nil {
		if !utf8.ValidString(name) {
			return "", fmt.Errorf("%q: %w", name, ErrUnrepresentable)
		}
		return name, nil
	}
	encoded, err := c.storage.NewEncoder().String(name)
	if err != nil {
		return "", fmt.Errorf("%q as %s: %w", name, c.storageName, ErrUnrepresentable)
	}
	// distinct names must not collapse onto one file
	if c.FromStorage(encoded) != name {
		return "", fmt.Errorf("%q as %s: %w", name, c.storageName, ErrUnrepresentable)
	}
	return encoded, nil
}

// FromStorage decodes a file name segment back to canonical text.
func (c *Codec) FromStorage(segment string) string {
	return c.canonical(c.storage, segment)
}

func (c *Codec) canonical(from encoding.Encoding, s string) string {
	var t transform.Transformer
	if from != nil {
		t = transform.Chain(from.NewDecoder(), runes.Map(substitute), norm.NFC)
	} else {
		t = transform.Chain(runes.Map(substitute), norm.NFC)
	}
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.Map(substitute, s)
	}
	return out
}

func substitute(r rune) rune {
	if r == utf8.RuneError {
		return Placeholder
	}
	return r
}

func lookup(label string) (encoding.Encoding, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", label, err)
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return nil, nil
	}
	return enc, nil
}
