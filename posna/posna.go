package posna

import "fmt"

// Gap is the nucleotide of a deletion call.
const Gap = '-'

// PosNA is one nucleotide call of a read.
type PosNA struct {
	// Pos is the 1-based reference position.
	Pos uint32
	// Bp is the insertion index relative to Pos. Zero for the base at Pos.
	Bp uint32
	// NA is the read base, or Gap.
	NA byte
}

// New creates a PosNA.
func New(pos, bp uint32, na byte) PosNA {
	return PosNA{Pos: pos, Bp: bp, NA: na}
}

// Compare orders by Pos, then Bp, then NA. It returns -1, 0, or 1.
func (p PosNA) Compare(o PosNA) int {
	switch {
	case p.Pos != o.Pos:
		if p.Pos < o.Pos {
			return -1
		}
		return 1
	case p.Bp != o.Bp:
		if p.Bp < o.Bp {
			return -1
		}
		return 1
	case p.NA != o.NA:
		if p.NA < o.NA {
			return -1
		}
		return 1
	}
	return 0
}

// Less returns true if p sorts before o.
func (p PosNA) Less(o PosNA) bool { return p.Compare(o) < 0 }

// IsInsertion returns true for a call that follows its reference position.
func (p PosNA) IsInsertion() bool { return p.Bp > 0 }

// String returns "pos:bp:na".
func (p PosNA) String() string {
	return fmt.Sprintf("%d:%d:%c", p.Pos, p.Bp, p.NA)
}
