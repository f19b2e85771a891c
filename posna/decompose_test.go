package posna

import (
	"testing"

	"github.com/grailbio/base/errors"
	gbam "github.com/hivdb/codfreq/encoding/bam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const n = gbam.NoPos

func pairs(p ...int) []gbam.AlignedPair {
	var r []gbam.AlignedPair
	for i := 0; i < len(p); i += 2 {
		r = append(r, gbam.AlignedPair{ReadPos: p[i], RefPos: p[i+1]})
	}
	return r
}

func TestDecomposeMatchOnly(t *testing.T) {
	seq := []byte("ACGTAC")
	got, quals, err := Decompose(seq, nil, pairs(0, 9, 1, 10, 2, 11, 3, 12, 4, 13, 5, 14))
	require.NoError(t, err)
	assert.Nil(t, quals)
	require.Len(t, got, len(seq))
	for i, p := range got {
		assert.Equal(t, New(uint32(10+i), 0, seq[i]), p)
	}
}

func TestDecomposeTrailingInsertion(t *testing.T) {
	got, _, err := Decompose([]byte("AG"), nil, pairs(0, 0, 1, n))
	require.NoError(t, err)
	assert.Equal(t, []PosNA{New(1, 0, 'A')}, got)

	got, _, err = Decompose([]byte("AGTT"), nil, pairs(0, 0, 1, n, 2, n, 3, n))
	require.NoError(t, err)
	assert.Equal(t, []PosNA{New(1, 0, 'A')}, got)

	// An anchor after the insertion keeps it.
	got, _, err = Decompose([]byte("AG"), nil, pairs(0, 0, 1, n, n, 1))
	require.NoError(t, err)
	assert.Equal(t, []PosNA{New(1, 0, 'A'), New(1, 1, 'G'), New(2, 0, Gap)}, got)
}

func TestDecomposeInsertion(t *testing.T) {
	got, quals, err := Decompose([]byte("ATTG"), []byte{10, 11, 12, 13}, pairs(0, 4, 1, n, 2, n, 3, 5))
	require.NoError(t, err)
	assert.Equal(t, []PosNA{New(5, 0, 'A'), New(5, 1, 'T'), New(5, 2, 'T'), New(6, 0, 'G')}, got)
	assert.Equal(t, []byte{10, 11, 12, 13}, quals)
}

func TestDecomposeDeletion(t *testing.T) {
	got, quals, err := Decompose([]byte("ACGT"), []byte{1, 2, 3, 4}, pairs(n, 2))
	require.NoError(t, err)
	assert.Equal(t, []PosNA{New(3, 0, Gap)}, got)
	assert.Equal(t, []byte{0}, quals)

	got, quals, err = Decompose([]byte("AC"), []byte{20, 30}, pairs(0, 0, n, 1, n, 2, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, []PosNA{New(1, 0, 'A'), New(2, 0, Gap), New(3, 0, Gap), New(4, 0, 'C')}, got)
	assert.Equal(t, []byte{20, 20, 20, 30}, quals)
}

func TestDecomposeLeadingClip(t *testing.T) {
	// Soft-clipped bases before the first anchor land on position 0 and
	// are dropped.
	got, quals, err := Decompose([]byte("NNAC"), []byte{5, 5, 30, 31}, pairs(0, n, 1, n, 2, 7, 3, 8))
	require.NoError(t, err)
	assert.Equal(t, []PosNA{New(8, 0, 'A'), New(9, 0, 'C')}, got)
	assert.Equal(t, []byte{30, 31}, quals)
}

func TestDecomposeEmpty(t *testing.T) {
	got, quals, err := Decompose([]byte("ACGT"), []byte{1, 2, 3, 4}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, quals)
}

func TestDecomposeErrors(t *testing.T) {
	tests := []struct {
		seq   string
		pairs []gbam.AlignedPair
	}{
		{"A", pairs(n, n)},
		{"A", pairs(1, 0)},
		{"AC", pairs(0, 5, 1, 5)},
		{"AC", pairs(0, 5, 1, 4)},
		{"AC", pairs(1, 0, 0, 1)},
		{"AC", pairs(0, 0, 0, 1)},
	}
	for _, test := range tests {
		_, _, err := Decompose([]byte(test.seq), nil, test.pairs)
		assert.True(t, errors.Is(errors.Invalid, err), "pairs: %v, err: %v", test.pairs, err)
	}
	_, _, err := Decompose([]byte("AC"), []byte{1}, pairs(0, 0))
	assert.True(t, errors.Is(errors.Invalid, err))
}
