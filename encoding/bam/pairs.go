package bam

import (
	"github.com/grailbio/hts/sam"
	"github.com/pkg/errors"
)

// NoPos marks the missing side of an AlignedPair.
const NoPos = -1

// AlignedPair is one column of a read alignment. ReadPos is a 0-based index
// into the read sequence and RefPos a 0-based reference coordinate. RefPos is
// NoPos for inserted and soft-clipped bases; ReadPos is NoPos for deleted and
// skipped reference bases.
type AlignedPair struct {
	ReadPos int
	RefPos  int
}

// IsInsertion returns true if p has no reference position.
func (p AlignedPair) IsInsertion() bool { return p.RefPos == NoPos }

// IsDeletion returns true if p has no read position.
func (p AlignedPair) IsDeletion() bool { return p.ReadPos == NoPos }

// AlignedPairs expands the CIGAR of rec into aligned pairs, in read order.
// Match, =, and X produce a pair with both positions set. I and S produce
// read-only pairs. D and N produce reference-only pairs. H and P produce
// nothing. A record with no CIGAR, such as an unmapped one, yields an empty
// list.
func AlignedPairs(rec *sam.Record) ([]AlignedPair, error) {
	var n int
	for _, co := range rec.Cigar {
		switch co.Type() {
		case sam.CigarHardClipped, sam.CigarPadded:
		default:
			n += co.Len()
		}
	}
	pairs := make([]AlignedPair, 0, n)
	readPos, refPos := 0, rec.Pos
	for _, co := range rec.Cigar {
		opLen := co.Len()
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			for i := 0; i < opLen; i++ {
				pairs = append(pairs, AlignedPair{ReadPos: readPos + i, RefPos: refPos + i})
			}
			readPos += opLen
			refPos += opLen
		case sam.CigarInsertion, sam.CigarSoftClipped:
			for i := 0; i < opLen; i++ {
				pairs = append(pairs, AlignedPair{ReadPos: readPos + i, RefPos: NoPos})
			}
			readPos += opLen
		case sam.CigarDeletion, sam.CigarSkipped:
			for i := 0; i < opLen; i++ {
				pairs = append(pairs, AlignedPair{ReadPos: NoPos, RefPos: refPos + i})
			}
			refPos += opLen
		case sam.CigarHardClipped, sam.CigarPadded:
		default:
			return nil, errors.Errorf("read %s: unsupported CIGAR op %v", rec.Name, co)
		}
	}
	if len(rec.Cigar) > 0 && rec.Seq.Length > 0 && readPos != rec.Seq.Length {
		return nil, errors.Errorf("read %s: CIGAR %v consumes %d bases, sequence has %d",
			rec.Name, rec.Cigar, readPos, rec.Seq.Length)
	}
	return pairs, nil
}
