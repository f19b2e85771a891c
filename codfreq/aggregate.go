package codfreq

import (
	"regexp"

	"github.com/biogo/store/llrb"
)

var codonPattern = regexp.MustCompile(`^[ACGTYRWSKMBDHVN]{3}$`)

// Amino acid markers for codons that do not translate.
const (
	Deletion  = "del"
	Insertion = "ins"
)

// Classify returns the amino acid column for codon. A 3-letter codon over the
// IUPAC alphabet is translated. The empty codon and "---" are Deletion. A
// codon longer than 3 letters is Insertion. Anything else, such as a partial
// deletion, is Ambiguous.
func Classify(codon string) string {
	switch {
	case codonPattern.MatchString(codon):
		aa, _ := TranslateCodon(codon)
		return aa
	case codon == "" || codon == "---":
		return Deletion
	case len(codon) > 3:
		return Insertion
	default:
		return Ambiguous
	}
}

// Row is one line of codon frequency output.
type Row struct {
	Position uint32
	// Total is the number of observations at Position, across all codons.
	Total   uint64
	Codon   string
	AA      string
	Count   uint64
	Percent float64
	// MeanQuality is the mean of the qualities of the observations.
	MeanQuality float64
}

type codonStats struct {
	codon   string
	count   uint64
	qualSum float64
}

type positionStats struct {
	pos   uint32
	total uint64
	// codons is in order of first observation.
	codons []*codonStats
	index  map[string]int
}

// Compare implements llrb.Comparable.
func (p *positionStats) Compare(c llrb.Comparable) int {
	o := c.(*positionStats)
	switch {
	case p.pos < o.pos:
		return -1
	case p.pos > o.pos:
		return 1
	}
	return 0
}

// Aggregator counts codon observations per position. The rows it produces do
// not depend on the order of the observations, except for the order of codons
// within a position. Thread compatible.
type Aggregator struct {
	tree llrb.Tree
	last *positionStats
	n    uint64
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add records one observation of codon at position, with the given mean base
// quality.
func (a *Aggregator) Add(position uint32, codon string, quality float64) {
	ps := a.last
	if ps == nil || ps.pos != position {
		if c := a.tree.Get(&positionStats{pos: position}); c != nil {
			ps = c.(*positionStats)
		} else {
			ps = &positionStats{pos: position, index: map[string]int{}}
			a.tree.Insert(ps)
		}
		a.last = ps
	}
	i, ok := ps.index[codon]
	if !ok {
		i = len(ps.codons)
		ps.index[codon] = i
		ps.codons = append(ps.codons, &codonStats{codon: codon})
	}
	cs := ps.codons[i]
	cs.count++
	cs.qualSum += quality
	ps.total++
	a.n++
}

// NumPositions returns the number of distinct positions seen.
func (a *Aggregator) NumPositions() int { return a.tree.Len() }

// NumObservations returns the number of calls to Add.
func (a *Aggregator) NumObservations() uint64 { return a.n }

// Rows returns the frequency rows, by ascending position. Within a position
// codons appear in the order they were first observed.
func (a *Aggregator) Rows() []Row {
	var rows []Row
	a.tree.Do(func(c llrb.Comparable) bool {
		ps := c.(*positionStats)
		for _, cs := range ps.codons {
			rows = append(rows, Row{
				Position:    ps.pos,
				Total:       ps.total,
				Codon:       cs.codon,
				AA:          Classify(cs.codon),
				Count:       cs.count,
				Percent:     float64(cs.count) / float64(ps.total),
				MeanQuality: cs.qualSum / float64(cs.count),
			})
		}
		return false
	})
	return rows
}
