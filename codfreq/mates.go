package codfreq

import (
	"github.com/grailbio/hts/sam"
	gbam "github.com/hivdb/codfreq/encoding/bam"
	"github.com/hivdb/codfreq/posna"
)

// Call is a PosNA with its base quality.
type Call struct {
	posna.PosNA
	Qual byte
}

// Template is the merged calls of one sequenced fragment: a single read, or
// both mates of a pair.
type Template struct {
	Name    string
	RefName string
	// Calls is sorted by (Pos, Bp).
	Calls []Call
}

func toCalls(r *posna.ReadPosNAs) []Call {
	calls := make([]Call, len(r.PosNAs))
	for i, p := range r.PosNAs {
		calls[i].PosNA = p
		if r.Quals != nil {
			calls[i].Qual = r.Quals[i]
		}
	}
	return calls
}

func singleTemplate(r *posna.ReadPosNAs) Template {
	return Template{Name: r.Name, RefName: r.RefName, Calls: toCalls(r)}
}

// segmentEnd returns the end of the run of calls in c that share c[i].Pos.
func segmentEnd(c []Call, i int) int {
	j := i + 1
	for j < len(c) && c[j].Pos == c[i].Pos {
		j++
	}
	return j
}

// anchorQual returns the quality of the base at the segment's position, or 0
// if the segment has none.
func anchorQual(seg []Call) byte {
	if len(seg) > 0 && !seg[0].IsInsertion() {
		return seg[0].Qual
	}
	return 0
}

// mergeMates merges the calls of two overlapping mates. Where both mates call
// a position, the mate with the higher quality at the position wins, along
// with the insertions that follow it. On a tie, a wins.
func mergeMates(a, b *posna.ReadPosNAs) Template {
	ca, cb := toCalls(a), toCalls(b)
	merged := make([]Call, 0, len(ca)+len(cb))
	i, j := 0, 0
	for i < len(ca) && j < len(cb) {
		ea, eb := segmentEnd(ca, i), segmentEnd(cb, j)
		switch pa, pb := ca[i].Pos, cb[j].Pos; {
		case pa < pb:
			merged = append(merged, ca[i:ea]...)
			i = ea
		case pb < pa:
			merged = append(merged, cb[j:eb]...)
			j = eb
		default:
			if anchorQual(cb[j:eb]) > anchorQual(ca[i:ea]) {
				merged = append(merged, cb[j:eb]...)
			} else {
				merged = append(merged, ca[i:ea]...)
			}
			i, j = ea, eb
		}
	}
	merged = append(merged, ca[i:]...)
	merged = append(merged, cb[j:]...)
	return Template{Name: a.Name, RefName: a.RefName, Calls: merged}
}

// PairResolver joins the two mates of each pair into one Template. Reads are
// fed in file order; a mate is held until its partner arrives. Unpaired reads
// and reads whose mate is unmapped are emitted at once. Unmapped, secondary,
// and supplementary records are dropped. Thread compatible.
type PairResolver struct {
	pending map[string]int
	// order holds pending reads in arrival order. Slots of resolved reads are
	// nil.
	order []*posna.ReadPosNAs
}

// NewPairResolver creates an empty PairResolver.
func NewPairResolver() *PairResolver {
	return &PairResolver{pending: map[string]int{}}
}

// NumPending returns the number of reads waiting for their mate.
func (p *PairResolver) NumPending() int { return len(p.pending) }

// Add feeds one read and returns the templates it completes.
func (p *PairResolver) Add(r posna.ReadPosNAs) []Template {
	if r.Flags&sam.Unmapped != 0 || !gbam.IsPrimary(r.Flags) {
		return nil
	}
	if gbam.HasNoMappedMateFlags(r.Flags) {
		return []Template{singleTemplate(&r)}
	}
	idx, ok := p.pending[r.Name]
	if !ok {
		p.pending[r.Name] = len(p.order)
		p.order = append(p.order, &r)
		return nil
	}
	mate := p.order[idx]
	p.order[idx] = nil
	delete(p.pending, r.Name)
	p.maybeCompact()
	if mate.RefName != r.RefName {
		return []Template{singleTemplate(mate), singleTemplate(&r)}
	}
	return []Template{mergeMates(mate, &r)}
}

// maybeCompact drops resolved slots once they dominate p.order.
func (p *PairResolver) maybeCompact() {
	if len(p.order) < 1024 || len(p.order) < 2*len(p.pending) {
		return
	}
	n := 0
	for _, r := range p.order {
		if r != nil {
			p.pending[r.Name] = n
			p.order[n] = r
			n++
		}
	}
	for i := n; i < len(p.order); i++ {
		p.order[i] = nil
	}
	p.order = p.order[:n]
}

// Finish returns the reads whose mate never arrived, as single-read
// templates, in arrival order. The resolver is empty afterwards.
func (p *PairResolver) Finish() []Template {
	var templates []Template
	for _, r := range p.order {
		if r != nil {
			templates = append(templates, singleTemplate(r))
		}
	}
	p.order = nil
	p.pending = map[string]int{}
	return templates
}
