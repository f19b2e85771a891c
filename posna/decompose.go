package posna

import (
	"fmt"

	"github.com/grailbio/base/errors"
	gbam "github.com/hivdb/codfreq/encoding/bam"
)

// Decompose turns the aligned pairs of one read into PosNA calls.
//
// Each pair with a reference position anchors a call at that position + 1
// with insertion index 0. Each pair without one is an insertion that follows
// the last anchored position, with an insertion index that counts up from 1.
// Pairs without a read position become Gap calls. Calls that would land on
// position 0 are dropped. These are the insertions and soft clips before the
// first anchored base. The insertions that trail the last anchored base are
// dropped too.
//
// If qual is non-nil it must be parallel to seq, and the returned qualities
// are parallel to the returned calls. A Gap call takes the quality of the
// read base before it, or 0 if there is none. If qual is nil, nil is
// returned for qualities.
//
// Decompose fails if a pair has neither position, if a read position is out
// of range, or if read or reference positions do not strictly increase.
func Decompose(seq, qual []byte, pairs []gbam.AlignedPair) ([]PosNA, []byte, error) {
	if qual != nil && len(qual) != len(seq) {
		return nil, nil, errors.E(errors.Invalid,
			fmt.Sprintf("posna.Decompose: %d qualities for %d bases", len(qual), len(seq)))
	}
	var (
		prevReadPos = gbam.NoPos
		prevRefPos  = gbam.NoPos
		anchor      uint32
		insIdx      uint32
		trailing    int
		q           byte
		posnas      = make([]PosNA, 0, len(pairs))
		quals       []byte
	)
	if qual != nil {
		quals = make([]byte, 0, len(pairs))
	}
	for _, p := range pairs {
		if p.ReadPos == gbam.NoPos && p.RefPos == gbam.NoPos {
			return nil, nil, errors.E(errors.Invalid, "posna.Decompose: aligned pair has neither read nor reference position")
		}
		if p.IsInsertion() {
			insIdx++
		} else {
			if p.RefPos < 0 || (prevRefPos != gbam.NoPos && p.RefPos <= prevRefPos) {
				return nil, nil, errors.E(errors.Invalid,
					fmt.Sprintf("posna.Decompose: reference position %d follows %d", p.RefPos, prevRefPos))
			}
			prevRefPos = p.RefPos
			anchor = uint32(p.RefPos) + 1
			insIdx = 0
		}
		na := byte(Gap)
		if !p.IsDeletion() {
			if p.ReadPos < 0 || p.ReadPos >= len(seq) {
				return nil, nil, errors.E(errors.Invalid,
					fmt.Sprintf("posna.Decompose: read position %d out of range [0,%d)", p.ReadPos, len(seq)))
			}
			if prevReadPos != gbam.NoPos && p.ReadPos <= prevReadPos {
				return nil, nil, errors.E(errors.Invalid,
					fmt.Sprintf("posna.Decompose: read position %d follows %d", p.ReadPos, prevReadPos))
			}
			prevReadPos = p.ReadPos
			na = seq[p.ReadPos]
			if qual != nil {
				q = qual[p.ReadPos]
			}
		}
		if anchor == 0 {
			continue
		}
		posnas = append(posnas, PosNA{Pos: anchor, Bp: insIdx, NA: na})
		if qual != nil {
			quals = append(quals, q)
		}
		if insIdx > 0 {
			trailing++
		} else {
			trailing = 0
		}
	}
	n := len(posnas) - trailing
	posnas = posnas[:n]
	if qual != nil {
		quals = quals[:n]
	}
	return posnas, quals, nil
}
