package codfreq_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/hivdb/codfreq/codfreq"
	"github.com/hivdb/codfreq/encoding/bam/bamtest"
	"github.com/hivdb/codfreq/posna"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	shutdown := grail.Init()
	status := m.Run()
	shutdown()
	os.Exit(status)
}

func quals(q byte, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = q
	}
	return b
}

func TestRunTwoReads(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tempDir)
	header := bamtest.NewHeader(t, []string{"pol"}, []int{1000})
	ref := header.Refs()[0]
	path := filepath.Join(tempDir, "two.bam")
	// Both reads cover 1-based positions 298-301; codon 100 is 298-300.
	bamtest.WriteBAM(t, path, header, []*sam.Record{
		bamtest.NewRecord(t, "a", ref, 297, 0, "4M", "ATGC", quals(30, 4)),
		bamtest.NewRecord(t, "b", ref, 297, 0, "4M", "ATGC", quals(40, 4)),
	})

	res, err := codfreq.Run(vcontext.Background(), path, codfreq.DefaultOpts)
	require.NoError(t, err)
	expect.EQ(t, res.NumReads, uint64(2))
	expect.EQ(t, res.NumTemplates, uint64(2))
	require.Len(t, res.Fragments, 1)
	expect.EQ(t, res.Fragments[0].Fragment, codfreq.Fragment{Name: "pol", RefName: "pol", RefStart: 1, RefEnd: 1000})
	assert.Equal(t, []codfreq.Row{{
		Position:    100,
		Total:       2,
		Codon:       "ATG",
		AA:          "M",
		Count:       2,
		Percent:     1.0,
		MeanQuality: 35,
	}}, res.Fragments[0].Rows)
}

func TestRunPairedWithFragments(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tempDir)
	header := bamtest.NewHeader(t, []string{"pol"}, []int{1000})
	ref := header.Refs()[0]
	path := filepath.Join(tempDir, "paired.bam")

	r1 := bamtest.NewRecord(t, "p", ref, 0, sam.Paired|sam.Read1, "6M", "ATGAAA", quals(20, 6))
	r2 := bamtest.NewRecord(t, "p", ref, 3, sam.Paired|sam.Read2, "6M", "AAGTTT", quals(30, 6))
	del := bamtest.NewRecord(t, "d", ref, 3, 0, "3D6M", "TTTTTT", nil)
	ins := bamtest.NewRecord(t, "i", ref, 3, 0, "2M3I4M", "AAGGGGTTT", nil)
	bamtest.WriteBAM(t, path, header, []*sam.Record{r1, r2, del, ins})
	bamtest.WriteBAI(t, path)

	frags, err := codfreq.ParseFragments("A=pol:1-9,B=pol:4-9")
	require.NoError(t, err)
	opts := codfreq.DefaultOpts
	opts.Fragments = frags
	opts.Workers = 2
	opts.ReadsPerChunk = 1
	opts.Progress = posna.NewLogProgress("paired.bam")
	res, err := codfreq.Run(vcontext.Background(), path, opts)
	require.NoError(t, err)
	expect.EQ(t, res.NumReads, uint64(4))
	// The pair counts once.
	expect.EQ(t, res.NumTemplates, uint64(3))
	require.Len(t, res.Fragments, 2)

	type key struct {
		pos   uint32
		codon string
	}
	rows := map[key]codfreq.Row{}
	for _, row := range res.Fragments[0].Rows {
		rows[key{row.Position, row.Codon}] = row
	}
	// Codon 1: only the pair.
	expect.EQ(t, rows[key{1, "ATG"}].Count, uint64(1))
	expect.EQ(t, rows[key{1, "ATG"}].Total, uint64(1))
	// Codon 2: the pair's R2 wins the overlap with AAG over R1's AAA.
	expect.EQ(t, rows[key{2, "AAG"}].Count, uint64(1))
	expect.EQ(t, rows[key{2, "AAG"}].MeanQuality, 30.0)
	expect.EQ(t, rows[key{2, "---"}].AA, codfreq.Deletion)
	expect.EQ(t, rows[key{2, "AAGGGG"}].AA, codfreq.Insertion)
	expect.EQ(t, rows[key{2, "AAG"}].Total, uint64(3))
	_, ok := rows[key{2, "AAA"}]
	expect.False(t, ok)
	// Codon 3: everybody calls TTT.
	expect.EQ(t, rows[key{3, "TTT"}].Count, uint64(3))
	expect.EQ(t, rows[key{3, "TTT"}].Percent, 1.0)

	// Fragment B starts at the second codon of A.
	b := res.Fragments[1]
	expect.EQ(t, b.Fragment.Name, "B")
	require.True(t, len(b.Rows) > 0)
	expect.EQ(t, b.Rows[0].Position, uint32(1))
	expect.EQ(t, b.Rows[0].Total, uint64(3))
}

func TestRunMissingReference(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tempDir)
	header := bamtest.NewHeader(t, []string{"pol"}, []int{1000})
	path := filepath.Join(tempDir, "x.bam")
	bamtest.WriteBAM(t, path, header, nil)
	opts := codfreq.DefaultOpts
	opts.Fragments = []codfreq.Fragment{{Name: "env", RefName: "env", RefStart: 1}}
	_, err := codfreq.Run(vcontext.Background(), path, opts)
	expect.NotNil(t, err)

	opts.Fragments = []codfreq.Fragment{{Name: "pol", RefName: "pol", RefStart: 0, RefEnd: 9}}
	_, err = codfreq.Run(vcontext.Background(), path, opts)
	expect.True(t, errors.Is(errors.Invalid, err), "err: %v", err)
}

// sliceIterator feeds a fixed list of reads to a Collector.
type sliceIterator struct {
	reads []posna.ReadPosNAs
	i     int
}

func (s *sliceIterator) Scan() bool {
	s.i++
	return s.i <= len(s.reads)
}

func (s *sliceIterator) Record() posna.ReadPosNAs { return s.reads[s.i-1] }
func (s *sliceIterator) Err() error               { return nil }

func TestCollector(t *testing.T) {
	frag := codfreq.Fragment{Name: "f", RefName: "pol", RefStart: 1, RefEnd: 3}
	read := func(name string, flags sam.Flags) posna.ReadPosNAs {
		return posna.ReadPosNAs{
			Name:    name,
			RefName: "pol",
			Flags:   flags,
			PosNAs:  []posna.PosNA{posna.New(1, 0, 'T'), posna.New(2, 0, 'A'), posna.New(3, 0, 'A')},
			Quals:   []byte{10, 20, 30},
		}
	}
	c := codfreq.NewCollector([]codfreq.Fragment{frag})
	// "m" never sees its mate; it is counted at Finish.
	require.NoError(t, c.Collect(&sliceIterator{reads: []posna.ReadPosNAs{
		read("s", 0),
		read("m", sam.Paired),
	}}))
	res := c.Finish()
	expect.EQ(t, res.NumReads, uint64(2))
	expect.EQ(t, res.NumTemplates, uint64(2))
	rows := res.Fragments[0].Rows
	require.Len(t, rows, 1)
	expect.EQ(t, rows[0].AA, "*")
	expect.EQ(t, rows[0].Count, uint64(2))
	expect.EQ(t, rows[0].MeanQuality, 20.0)
}
