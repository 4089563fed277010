// Package layout encodes ledger records as bytes.
//
// Program records carry an 8-byte discriminator, sha256("account:<Name>")[:8],
// followed by little-endian fields. Token-program records use the fixed SPL
// layouts (82-byte mint, 165-byte token account).
package layout

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"solana-nft-market/internal/solana"
)

// DiscriminatorSize is the length of the record type tag.
const DiscriminatorSize = 8

var (
	// ErrDataTooShort is returned when the buffer is shorter than the record layout.
	ErrDataTooShort = errors.New("account data too short")

	// ErrDiscriminatorMismatch is returned when the record tag names a different type.
	ErrDiscriminatorMismatch = errors.New("account discriminator mismatch")

	// ErrInvalidSize is returned when a fixed-layout record has the wrong length.
	ErrInvalidSize = errors.New("unexpected account data size")
)

// Discriminator returns the type tag for a record named name.
func Discriminator(name string) [DiscriminatorSize]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [DiscriminatorSize]byte
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// HasDiscriminator reports whether data starts with disc.
func HasDiscriminator(data []byte, disc [DiscriminatorSize]byte) bool {
	return len(data) >= DiscriminatorSize && bytes.Equal(data[:DiscriminatorSize], disc[:])
}

// writer appends little-endian fields into a fixed-size buffer.
type writer struct {
	buf []byte
	off int
}

func newWriter(size int) *writer {
	return &writer{buf: make([]byte, size)}
}

func (w *writer) bytes(b []byte) {
	copy(w.buf[w.off:], b)
	w.off += len(b)
}

func (w *writer) pubkey(k solana.PublicKey) { w.bytes(k[:]) }

func (w *writer) u8(v uint8) {
	w.buf[w.off] = v
	w.off++
}

func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

func (w *writer) u16(v uint16) {
	binary.LittleEndian.PutUint16(w.buf[w.off:], v)
	w.off += 2
}

func (w *writer) u32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[w.off:], v)
	w.off += 4
}

func (w *writer) u64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[w.off:], v)
	w.off += 8
}

func (w *writer) i64(v int64) { w.u64(uint64(v)) }

func (w *writer) str(s string) {
	w.u32(uint32(len(s)))
	w.bytes([]byte(s))
}

// optionPubkey writes a COption<Pubkey>: 4-byte tag then 32 bytes.
func (w *writer) optionPubkey(k *solana.PublicKey) {
	if k == nil {
		w.u32(0)
		w.off += solana.PublicKeyLength
		return
	}
	w.u32(1)
	w.pubkey(*k)
}

// optionU64 writes a COption<u64>: 4-byte tag then 8 bytes.
func (w *writer) optionU64(v *uint64) {
	if v == nil {
		w.u32(0)
		w.off += 8
		return
	}
	w.u32(1)
	w.u64(*v)
}

// reader consumes little-endian fields, recording the first short read.
type reader struct {
	buf []byte
	off int
	err error
}

func newReader(data []byte) *reader {
	return &reader{buf: data}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrDataTooShort, n, r.off, len(r.buf))
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) pubkey() solana.PublicKey {
	var k solana.PublicKey
	if b := r.take(solana.PublicKeyLength); b != nil {
		copy(k[:], b)
	}
	return k
}

func (r *reader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) bool() bool { return r.u8() != 0 }

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *reader) i64() int64 { return int64(r.u64()) }

func (r *reader) str(max int) string {
	n := r.u32()
	if r.err != nil {
		return ""
	}
	if int(n) > max {
		r.err = fmt.Errorf("string length %d exceeds %d", n, max)
		return ""
	}
	return string(r.take(int(n)))
}

func (r *reader) optionPubkey() *solana.PublicKey {
	tag := r.u32()
	k := r.pubkey()
	if r.err != nil || tag == 0 {
		return nil
	}
	return &k
}

func (r *reader) optionU64() *uint64 {
	tag := r.u32()
	v := r.u64()
	if r.err != nil || tag == 0 {
		return nil
	}
	return &v
}

func (r *reader) discriminator(want [DiscriminatorSize]byte, name string) {
	b := r.take(DiscriminatorSize)
	if b == nil {
		return
	}
	if !bytes.Equal(b, want[:]) {
		r.err = fmt.Errorf("%w: expected %s", ErrDiscriminatorMismatch, name)
	}
}
