package bamprovider_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/hivdb/codfreq/encoding/bam/bamtest"
	"github.com/hivdb/codfreq/encoding/bamprovider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	shutdown := grail.Init()
	status := m.Run()
	shutdown()
	os.Exit(status)
}

// writeTestBAM writes ten 10M reads to each of gag and pol, at positions
// 0,10,...,90, followed by two unplaced unmapped reads.
func writeTestBAM(t *testing.T, dir string) string {
	header := bamtest.NewHeader(t, []string{"gag", "pol"}, []int{1500, 3000})
	var recs []*sam.Record
	for _, ref := range header.Refs() {
		for i := 0; i < 10; i++ {
			recs = append(recs, bamtest.NewRecord(t, fmt.Sprintf("%s%d", ref.Name(), i), ref, i*10, 0, "10M", "ACGTACGTAC", nil))
		}
	}
	recs = append(recs,
		bamtest.NewRecord(t, "u0", nil, 0, sam.Unmapped, "", "ACGT", nil),
		bamtest.NewRecord(t, "u1", nil, 0, sam.Unmapped, "", "ACGT", nil))
	path := filepath.Join(dir, "test.bam")
	bamtest.WriteBAM(t, path, header, recs)
	return path
}

func doRead(t *testing.T, p bamprovider.Provider, readsPerChunk int) []string {
	plan, err := p.GenerateChunks(bamprovider.GenerateChunksOpts{ReadsPerChunk: readsPerChunk})
	require.NoError(t, err)
	var names []string
	for _, chunk := range plan.Chunks {
		iter := p.NewIterator(chunk)
		n := 0
		for iter.Scan() {
			names = append(names, iter.Record().Name)
			n++
		}
		require.NoError(t, iter.Err())
		require.NoError(t, iter.Close())
		expect.EQ(t, n, chunk.NumRecords)
	}
	return names
}

func TestChunkedRead(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tempDir)
	path := writeTestBAM(t, tempDir)

	var want []string
	for _, ref := range []string{"gag", "pol"} {
		for i := 0; i < 10; i++ {
			want = append(want, fmt.Sprintf("%s%d", ref, i))
		}
	}
	want = append(want, "u0", "u1")

	p := bamprovider.NewProvider(path)
	// Repeat to exercise iterator reuse.
	for i := 0; i < 3; i++ {
		for _, readsPerChunk := range []int{1, 3, 7, 1000} {
			assert.Equal(t, want, doRead(t, p, readsPerChunk), "reads per chunk: %d", readsPerChunk)
		}
	}
	require.NoError(t, p.Close())
}

func TestRegionRead(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tempDir)
	path := writeTestBAM(t, tempDir)
	bamtest.WriteBAI(t, path)

	p := bamprovider.NewProvider(path)
	read := func(ref string, start, limit int) []string {
		iter := p.NewRegionIterator(ref, start, limit)
		var names []string
		for iter.Scan() {
			names = append(names, iter.Record().Name)
		}
		require.NoError(t, iter.Close())
		return names
	}
	// pol2 covers [20,30), pol3 [30,40).
	assert.Equal(t, []string{"pol2", "pol3"}, read("pol", 25, 35))
	assert.Equal(t, []string{"gag0"}, read("gag", 0, 1))
	assert.Equal(t, []string{"gag9"}, read("gag", 95, 1500))
	assert.Empty(t, read("gag", 500, 1500))
	require.NoError(t, p.Close())
}

func TestRegionReadErrors(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tempDir)
	path := writeTestBAM(t, tempDir)

	p := bamprovider.NewProvider(path)
	iter := p.NewRegionIterator("env", 0, 10)
	expect.False(t, iter.Scan())
	expect.True(t, errors.Is(errors.NotExist, iter.Close()))

	iter = p.NewRegionIterator("pol", 10, 10)
	expect.True(t, errors.Is(errors.Invalid, iter.Close()))

	// No index file.
	iter = p.NewRegionIterator("pol", 0, 10)
	expect.False(t, iter.Scan())
	expect.NotNil(t, iter.Close())
	require.NoError(t, p.Close())
}

func TestMappedCount(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tempDir)
	path := writeTestBAM(t, tempDir)

	p := bamprovider.NewProvider(path)
	_, err := p.MappedCount()
	expect.True(t, errors.Is(errors.NotExist, err))
	require.NoError(t, p.Close())

	baiPath := bamtest.WriteBAI(t, path)
	renamed := filepath.Join(tempDir, "other.bai")
	require.NoError(t, os.Rename(baiPath, renamed))
	p = bamprovider.NewProvider(path, bamprovider.ProviderOpts{Index: renamed})
	n, err := p.MappedCount()
	require.NoError(t, err)
	expect.EQ(t, n, uint64(20))
	require.NoError(t, p.Close())
}

func TestMissingFile(t *testing.T) {
	p := bamprovider.NewProvider("/nonexistent/x.bam")
	_, err := p.GetHeader()
	expect.NotNil(t, err)
	_, err = p.GenerateChunks(bamprovider.GenerateChunksOpts{})
	expect.NotNil(t, err)
	expect.NotNil(t, p.Close())
}
