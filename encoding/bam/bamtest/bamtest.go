// Package bamtest builds small BAM and .bai files for tests.
package bamtest

import (
	"os"
	"testing"

	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	gbam "github.com/hivdb/codfreq/encoding/bam"
	"github.com/stretchr/testify/require"
)

// DefaultQual is the base quality NewRecord assigns when none is given.
const DefaultQual = 30

// NewHeader creates a header with one reference per name. lengths must be
// parallel to names.
func NewHeader(t testing.TB, names []string, lengths []int) *sam.Header {
	require.Equal(t, len(names), len(lengths))
	refs := make([]*sam.Reference, len(names))
	for i, name := range names {
		ref, err := sam.NewReference(name, "", "", lengths[i], nil, nil)
		require.NoError(t, err)
		refs[i] = ref
	}
	header, err := sam.NewHeader(nil, refs)
	require.NoError(t, err)
	header.SortOrder = sam.Coordinate
	return header
}

// NewRecord creates a record. cigar uses SAM text syntax, and an empty cigar
// means none. If qual is nil, every base gets DefaultQual.
func NewRecord(t testing.TB, name string, ref *sam.Reference, pos int, flags sam.Flags, cigar, seq string, qual []byte) *sam.Record {
	var c sam.Cigar
	if cigar != "" {
		var err error
		c, err = sam.ParseCigar([]byte(cigar))
		require.NoError(t, err, cigar)
	}
	if qual == nil {
		qual = make([]byte, len(seq))
		for i := range qual {
			qual[i] = DefaultQual
		}
	}
	require.Equal(t, len(seq), len(qual))
	rec := &sam.Record{
		Name:    name,
		Ref:     ref,
		Pos:     pos,
		MapQ:    60,
		Cigar:   c,
		Flags:   flags,
		MatePos: -1,
		Seq:     sam.NewSeq([]byte(seq)),
		Qual:    qual,
	}
	if ref == nil {
		rec.Pos = -1
	}
	return rec
}

// WriteBAM writes records to a BAM file at path, in the given order.
func WriteBAM(t testing.TB, path string, header *sam.Header, recs []*sam.Record) {
	out, err := os.Create(path)
	require.NoError(t, err)
	w, err := bam.NewWriter(out, header, 1)
	require.NoError(t, err)
	for _, r := range recs {
		require.NoError(t, w.Write(r))
	}
	require.NoError(t, w.Close())
	require.NoError(t, out.Close())
}

// WriteBAI indexes the BAM file at bamPath and returns the path of the
// index, bamPath + ".bai".
func WriteBAI(t testing.TB, bamPath string) string {
	in, err := os.Open(bamPath)
	require.NoError(t, err)
	defer in.Close() // nolint: errcheck
	baiPath := bamPath + ".bai"
	out, err := os.Create(baiPath)
	require.NoError(t, err)
	require.NoError(t, gbam.WriteIndex(out, in))
	require.NoError(t, out.Close())
	return baiPath
}
