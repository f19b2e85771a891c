package bamprovider

import (
	"fmt"
	"io"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf/index"
	"github.com/grailbio/hts/sam"
	gbam "github.com/hivdb/codfreq/encoding/bam"
	"v.io/x/lib/vlog"
)

// BAMProvider implements Provider for BAM files. Both BAM and the index
// filenames may be any path understood by grailbio/base/file.
type BAMProvider struct {
	// Path of the *.bam file. Must be nonempty.
	Path string
	// Index is the pathname of *.bam.bai file. If "", Path + ".bai"
	Index string
	err   errors.Once

	mu        sync.Mutex
	nActive   int
	freeIters []*bamIterator
	header    *sam.Header
	index     *bam.Index
}

type iterMode int

const (
	chunkMode iterMode = iota
	regionMode
)

type bamIterator struct {
	provider *BAMProvider
	in       file.File
	reader   *bam.Reader

	mode iterMode
	// Set in chunkMode.
	chunk gbam.Chunk
	// Set in regionMode. [start, limit) is 0-based, half-open.
	ref          *sam.Reference
	start, limit int

	active bool
	err    error
	next   *sam.Record
}

func (b *BAMProvider) indexPath() string {
	index := b.Index
	if index == "" {
		index = b.Path + ".bai"
	}
	return index
}

// GetHeader implements the Provider interface.
func (b *BAMProvider) GetHeader() (*sam.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.header != nil {
		return b.header, nil
	}

	ctx := vcontext.Background()
	reader, err := file.Open(ctx, b.Path)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer reader.Close(ctx) // nolint: errcheck
	bamReader, err := bam.NewReader(reader.Reader(ctx), 1)
	if err != nil {
		err = errors.E(err, b.Path)
		b.err.Set(err)
		return nil, err
	}
	defer bamReader.Close() // nolint: errcheck
	b.header = bamReader.Header()
	return b.header, nil
}

// MappedCount implements the Provider interface. A missing index is not
// recorded as a provider error.
func (b *BAMProvider) MappedCount() (uint64, error) {
	ctx := vcontext.Background()
	path := b.indexPath()
	if _, err := file.Stat(ctx, path); err != nil {
		return 0, errors.E(errors.NotExist, err, fmt.Sprintf("bam index %s", path))
	}
	idx, err := gbam.ReadIndexFile(ctx, path)
	if err != nil {
		return 0, err
	}
	n, ok := idx.MappedCount()
	if !ok {
		return 0, errors.E(errors.NotExist, fmt.Sprintf("bam index %s has no record counts", path))
	}
	return n, nil
}

// GenerateChunks implements the Provider interface.
func (b *BAMProvider) GenerateChunks(opts GenerateChunksOpts) (gbam.ChunkPlan, error) {
	plan, err := gbam.GetReadCountChunks(vcontext.Background(), b.Path, opts.ReadsPerChunk)
	if err != nil {
		b.err.Set(err)
	}
	return plan, err
}

// Close implements the Provider interface.
func (b *BAMProvider) Close() error {
	if b.nActive > 0 {
		vlog.Fatalf("%d iterators still active for %+v", b.nActive, b)
	}
	for _, iter := range b.freeIters {
		iter.internalClose()
	}
	b.freeIters = nil
	return b.err.Err()
}

func (b *BAMProvider) freeIterator(i *bamIterator) {
	if !i.active {
		vlog.Fatal(i)
	}
	i.active = false
	if i.Err() != nil || i.reader == nil {
		// The iter may be invalid. Don't reuse it.
		i.internalClose() // Will set b.err
		i = nil
	}
	b.mu.Lock()
	if i != nil {
		b.freeIters = append(b.freeIters, i)
	}
	b.nActive--
	if b.nActive < 0 {
		vlog.Fatalf("Negative active count for %+v", b)
	}
	b.mu.Unlock()
}

// Return an unused iterator. If b.freeIters is nonempty, this function returns
// one from freeIters. Else, it opens the BAM file, creates a BAM reader and
// returns an iterator containing them. On error, returns an iterator with
// non-nil err field.
func (b *BAMProvider) allocateIterator() *bamIterator {
	b.mu.Lock()
	b.nActive++
	if len(b.freeIters) > 0 {
		iter := b.freeIters[len(b.freeIters)-1]
		iter.active = true
		iter.err = nil
		iter.next = nil
		iter.ref = nil
		b.freeIters = b.freeIters[:len(b.freeIters)-1]
		b.mu.Unlock()
		return iter
	}
	b.mu.Unlock()

	iter := bamIterator{
		provider: b,
		active:   true,
	}
	ctx := vcontext.Background()
	if iter.in, iter.err = file.Open(ctx, b.Path); iter.err != nil {
		return &iter
	}
	if iter.reader, iter.err = bam.NewReader(iter.in.Reader(ctx), 1); iter.err != nil {
		iter.err = errors.E(iter.err, b.Path)
		return &iter
	}
	return &iter
}

// loadIndex reads the hts index once and caches it.
func (b *BAMProvider) loadIndex() (*bam.Index, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index != nil {
		return b.index, nil
	}
	ctx := vcontext.Background()
	in, err := file.Open(ctx, b.indexPath())
	if err != nil {
		return nil, err
	}
	defer in.Close(ctx) // nolint: errcheck
	idx, err := bam.ReadIndex(in.Reader(ctx))
	if err != nil {
		return nil, errors.E(err, b.indexPath())
	}
	b.index = idx
	return idx, nil
}

// NewIterator implements the Provider interface.
func (b *BAMProvider) NewIterator(chunk gbam.Chunk) Iterator {
	iter := b.allocateIterator()
	if iter.err != nil {
		return iter
	}
	iter.mode = chunkMode
	iter.chunk = chunk
	iter.err = iter.reader.Seek(chunk.Begin)
	return iter
}

// NewRegionIterator implements the Provider interface.
func (b *BAMProvider) NewRegionIterator(refName string, start, limit int) Iterator {
	header, err := b.GetHeader()
	if err != nil {
		return NewErrorIterator(err)
	}
	ref := RefByName(header, refName)
	if ref == nil {
		return NewErrorIterator(errors.E(errors.NotExist, fmt.Sprintf("bamprovider.NewRegionIterator: reference '%s' not found", refName)))
	}
	if start < 0 || start >= limit {
		return NewErrorIterator(errors.E(errors.Invalid, fmt.Sprintf("bamprovider.NewRegionIterator: invalid range %s:[%d,%d)", refName, start, limit)))
	}
	idx, err := b.loadIndex()
	if err != nil {
		return NewErrorIterator(err)
	}
	iter := b.allocateIterator()
	if iter.err != nil {
		return iter
	}
	iter.mode = regionMode
	iter.ref = ref
	iter.start = start
	iter.limit = limit
	chunks, err := idx.Chunks(ref, start, limit)
	if err == index.ErrInvalid || (err == nil && len(chunks) == 0) {
		// No reads for this interval.
		iter.err = io.EOF
		return iter
	}
	if err != nil {
		iter.err = err
		return iter
	}
	iter.err = iter.reader.Seek(chunks[0].Begin)
	return iter
}

// Err implements the Iterator interface.
func (i *bamIterator) Err() error {
	if i.err == io.EOF {
		return nil
	}
	return i.err
}

// Close implements the Iterator interface.
func (i *bamIterator) Close() error {
	err := i.Err()
	i.provider.freeIterator(i)
	return err
}

func (i *bamIterator) Scan() bool {
	if !i.active {
		vlog.Fatal("Reusing iterator")
	}
	if i.err != nil {
		return false
	}
	for {
		i.next, i.err = i.reader.Read()
		if i.err != nil {
			i.next = nil
			return false
		}
		if i.mode == chunkMode {
			if i.chunk.Passed(i.reader.LastChunk().End) {
				sam.PutInFreePool(i.next)
				i.next = nil
				i.err = io.EOF
				return false
			}
			return true
		}
		if i.next.Ref == nil || i.next.Ref.ID() > i.ref.ID() || i.next.Pos >= i.limit {
			sam.PutInFreePool(i.next)
			i.next = nil
			i.err = io.EOF
			return false
		}
		if i.next.Ref.ID() < i.ref.ID() || i.next.End() <= i.start {
			sam.PutInFreePool(i.next)
			continue
		}
		return true
	}
}

func (i *bamIterator) Record() *sam.Record {
	return i.next
}

func (i *bamIterator) internalClose() {
	if i.reader != nil {
		if err := i.reader.Close(); err != nil && i.err == nil {
			i.err = err
		}
		i.reader = nil
	}
	if i.in != nil {
		if err := i.in.Close(vcontext.Background()); err != nil && i.err == nil {
			i.err = err
		}
		i.in = nil
	}
	i.provider.err.Set(i.Err())
}
