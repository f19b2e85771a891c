package posna

import (
	"encoding/binary"
	"hash"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/unsafe"
)

// Fingerprint is an order-sensitive hash of a stream of ReadPosNAs. Two scans
// of one file produce equal fingerprints iff they yield the same reads with
// the same calls in the same order. Thread compatible.
type Fingerprint struct {
	h   hash.Hash64
	buf [9]byte
	n   uint64
}

// NewFingerprint creates an empty Fingerprint.
func NewFingerprint() *Fingerprint {
	return &Fingerprint{h: seahash.New()}
}

// Add folds r into the fingerprint.
func (f *Fingerprint) Add(r ReadPosNAs) {
	f.h.Write(unsafe.StringToBytes(r.Name)) // nolint: errcheck
	f.buf[0] = 0
	f.h.Write(f.buf[:1]) // nolint: errcheck
	for _, p := range r.PosNAs {
		binary.LittleEndian.PutUint32(f.buf[0:], p.Pos)
		binary.LittleEndian.PutUint32(f.buf[4:], p.Bp)
		f.buf[8] = p.NA
		f.h.Write(f.buf[:]) // nolint: errcheck
	}
	binary.LittleEndian.PutUint32(f.buf[0:], uint32(len(r.PosNAs)))
	f.h.Write(f.buf[:4]) // nolint: errcheck
	f.n++
}

// NumReads returns the number of reads added.
func (f *Fingerprint) NumReads() uint64 { return f.n }

// Sum64 returns the current hash.
func (f *Fingerprint) Sum64() uint64 { return f.h.Sum64() }
