package domain

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/zerr"
)

// FingerprintSize is the width of a Fingerprint in bytes.
const FingerprintSize = 16

// Fingerprint is a fixed-width content hash used as an equality proxy for
// "did this node's output change". Two equal fingerprints mean the outputs are
// treated as identical; collisions are accepted.
type Fingerprint struct {
	hi, lo uint64
}

// ZeroFingerprint is the fingerprint of nothing. It is the stored value of Null slots.
var ZeroFingerprint = Fingerprint{}

// NewFingerprint builds a fingerprint from its two halves.
func NewFingerprint(hi, lo uint64) Fingerprint {
	return Fingerprint{hi: hi, lo: lo}
}

// FingerprintOf hashes the given byte sections. Each section is length-prefixed so
// that ("ab", "c") and ("a", "bc") produce different fingerprints.
func FingerprintOf(sections ...[]byte) Fingerprint {
	var b FingerprintBuilder
	for _, s := range sections {
		b.Write(s)
	}
	return b.Sum()
}

// FingerprintString is FingerprintOf for string sections.
func FingerprintString(sections ...string) Fingerprint {
	var b FingerprintBuilder
	for _, s := range sections {
		b.WriteString(s)
	}
	return b.Sum()
}

// FingerprintBuilder accumulates sections into a Fingerprint.
// The zero value is ready to use.
type FingerprintBuilder struct {
	d *xxhash.Digest
}

func (b *FingerprintBuilder) digest() *xxhash.Digest {
	if b.d == nil {
		b.d = xxhash.New()
	}
	return b.d
}

// Write appends one length-prefixed section.
func (b *FingerprintBuilder) Write(p []byte) {
	d := b.digest()
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(p)))
	_, _ = d.Write(n[:])
	_, _ = d.Write(p)
}

// WriteString appends one length-prefixed string section.
func (b *FingerprintBuilder) WriteString(s string) {
	d := b.digest()
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
	_, _ = d.Write(n[:])
	_, _ = d.WriteString(s)
}

// WriteCount appends a fixed-width count, used to frame a list of sections.
func (b *FingerprintBuilder) WriteCount(n int) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(n))
	_, _ = b.digest().Write(buf[:])
}

// WriteFingerprint appends another fingerprint as a section.
func (b *FingerprintBuilder) WriteFingerprint(f Fingerprint) {
	buf := f.Bytes()
	b.Write(buf[:])
}

// Sum returns the fingerprint of everything written so far.
func (b *FingerprintBuilder) Sum() Fingerprint {
	d := b.digest()
	lo := d.Sum64()
	// The high half keeps hashing past the low half so both words depend on all input.
	_, _ = d.Write([]byte{0xff})
	hi := d.Sum64()
	return Fingerprint{hi: hi, lo: lo}
}

// Combine mixes two fingerprints in order.
func (f Fingerprint) Combine(other Fingerprint) Fingerprint {
	var b FingerprintBuilder
	b.WriteFingerprint(f)
	b.WriteFingerprint(other)
	return b.Sum()
}

// IsZero reports whether f is the zero fingerprint.
func (f Fingerprint) IsZero() bool {
	return f == ZeroFingerprint
}

// Bytes returns the big-endian byte form of f.
func (f Fingerprint) Bytes() [FingerprintSize]byte {
	var out [FingerprintSize]byte
	binary.BigEndian.PutUint64(out[:8], f.hi)
	binary.BigEndian.PutUint64(out[8:], f.lo)
	return out
}

// String returns the lowercase hex form of f.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x%016x", f.hi, f.lo)
}

// Short returns the first eight hex digits, for logs.
func (f Fingerprint) Short() string {
	return f.String()[:8]
}

// MarshalText implements encoding.TextMarshaler.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	parsed, err := ParseFingerprint(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFingerprint decodes the hex form produced by String.
func ParseFingerprint(s string) (Fingerprint, error) {
	if len(s) != FingerprintSize*2 {
		return Fingerprint{}, zerr.With(ErrInvalidFingerprint, "value", s)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Fingerprint{}, zerr.With(zerr.Wrap(err, ErrInvalidFingerprint.Error()), "value", s)
	}
	return Fingerprint{
		hi: binary.BigEndian.Uint64(raw[:8]),
		lo: binary.BigEndian.Uint64(raw[8:]),
	}, nil
}
