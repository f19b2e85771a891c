package codfreq

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// Fragment is a coding region of a reference. Codons are counted from
// RefStart in steps of three. RefStart and RefEnd are 1-based and inclusive.
type Fragment struct {
	Name     string
	RefName  string
	RefStart uint32
	// RefEnd of 0 means the end of the reference; see ResolveFragments.
	RefEnd uint32
}

// String returns the fragment in ParseFragment syntax.
func (f Fragment) String() string {
	return fmt.Sprintf("%s=%s:%d-%d", f.Name, f.RefName, f.RefStart, f.RefEnd)
}

// NumCodons returns the number of whole codons in f.
func (f Fragment) NumCodons() uint32 {
	if f.RefEnd < f.RefStart {
		return 0
	}
	return (f.RefEnd - f.RefStart + 1) / 3
}

// ParseFragment parses "name=ref:start-end", "ref:start-end", or "ref". The
// name defaults to the reference name. A bare reference spans the whole
// reference.
func ParseFragment(s string) (Fragment, error) {
	var f Fragment
	spec := s
	if i := strings.IndexByte(spec, '='); i >= 0 {
		f.Name, spec = spec[:i], spec[i+1:]
	}
	colon := strings.LastIndexByte(spec, ':')
	if colon < 0 {
		f.RefName = spec
		f.RefStart = 1
	} else {
		f.RefName = spec[:colon]
		rng := strings.Split(spec[colon+1:], "-")
		if len(rng) != 2 {
			return Fragment{}, errors.E(errors.Invalid, fmt.Sprintf("fragment %q: range must be start-end", s))
		}
		start, err := strconv.ParseUint(rng[0], 10, 32)
		if err != nil {
			return Fragment{}, errors.E(errors.Invalid, err, fmt.Sprintf("fragment %q", s))
		}
		end, err := strconv.ParseUint(rng[1], 10, 32)
		if err != nil {
			return Fragment{}, errors.E(errors.Invalid, err, fmt.Sprintf("fragment %q", s))
		}
		if start == 0 || end < start {
			return Fragment{}, errors.E(errors.Invalid, fmt.Sprintf("fragment %q: need 1 <= start <= end", s))
		}
		f.RefStart, f.RefEnd = uint32(start), uint32(end)
	}
	if f.RefName == "" {
		return Fragment{}, errors.E(errors.Invalid, fmt.Sprintf("fragment %q: empty reference", s))
	}
	if f.Name == "" {
		f.Name = f.RefName
	}
	return f, nil
}

// ParseFragments parses a comma-separated list of fragments.
func ParseFragments(s string) ([]Fragment, error) {
	var frags []Fragment
	for _, field := range strings.Split(s, ",") {
		if field = strings.TrimSpace(field); field == "" {
			continue
		}
		f, err := ParseFragment(field)
		if err != nil {
			return nil, err
		}
		frags = append(frags, f)
	}
	return frags, nil
}

// ResolveFragments checks frags against header and fills in open ends. If
// frags is empty, it returns one fragment per reference, covering the whole
// reference.
func ResolveFragments(frags []Fragment, header *sam.Header) ([]Fragment, error) {
	if len(frags) == 0 {
		for _, ref := range header.Refs() {
			frags = append(frags, Fragment{Name: ref.Name(), RefName: ref.Name(), RefStart: 1, RefEnd: uint32(ref.Len())})
		}
		return frags, nil
	}
	lengths := map[string]int{}
	for _, ref := range header.Refs() {
		lengths[ref.Name()] = ref.Len()
	}
	resolved := make([]Fragment, len(frags))
	for i, f := range frags {
		n, ok := lengths[f.RefName]
		if !ok {
			return nil, errors.E(errors.NotExist, fmt.Sprintf("fragment %s: reference %s not in header", f.Name, f.RefName))
		}
		if f.RefEnd == 0 {
			f.RefEnd = uint32(n)
		}
		if f.RefStart == 0 || f.RefEnd < f.RefStart {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("fragment %s: need 1 <= start <= end", f.String()))
		}
		if int(f.RefEnd) > n {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("fragment %s ends past reference %s of length %d", f.String(), f.RefName, n))
		}
		resolved[i] = f
	}
	return resolved, nil
}

// PosCodon is one codon observed by a template.
type PosCodon struct {
	// Position is the 1-based codon number within the fragment.
	Position uint32
	// Codon is the called bases. It is "---" for a deleted codon, and
	// longer than 3 letters if the template carries insertions within or
	// after it.
	Codon string
	// Quality is the mean quality of the calls.
	Quality float64
}

// codonBuilder accumulates the calls of one codon.
type codonBuilder struct {
	idx     uint32
	anchors uint8
	bases   []byte
	qualSum int
}

func (b *codonBuilder) reset(idx uint32) {
	b.idx = idx
	b.anchors = 0
	b.bases = b.bases[:0]
	b.qualSum = 0
}

// GroupCodons cuts the calls of t that fall within f into codons. A codon is
// emitted only if t calls all three of its reference positions. Insertions
// belong to the codon of the position they follow.
func GroupCodons(f Fragment, t Template) []PosCodon {
	if t.RefName != f.RefName {
		return nil
	}
	last := f.RefStart + 3*f.NumCodons() - 1
	var (
		out []PosCodon
		b   = codonBuilder{bases: make([]byte, 0, 6)}
		cur = false
	)
	flush := func() {
		if cur && b.anchors == 7 {
			out = append(out, PosCodon{
				Position: b.idx + 1,
				Codon:    string(b.bases),
				Quality:  float64(b.qualSum) / float64(len(b.bases)),
			})
		}
	}
	for _, c := range t.Calls {
		if c.Pos < f.RefStart || c.Pos > last {
			continue
		}
		off := c.Pos - f.RefStart
		if idx := off / 3; !cur || idx != b.idx {
			flush()
			b.reset(idx)
			cur = true
		}
		if !c.IsInsertion() {
			b.anchors |= 1 << (off % 3)
		}
		b.bases = append(b.bases, c.NA)
		b.qualSum += int(c.Qual)
	}
	flush()
	return out
}
