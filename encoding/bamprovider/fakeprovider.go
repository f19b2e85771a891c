package bamprovider

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/sam"
	gbam "github.com/hivdb/codfreq/encoding/bam"
)

// fakeProvider is only for unittests. It yields the given records.
//
// Chunks address records by their index in recs: a chunk covers
// recs[Begin.File:End.File].
type fakeProvider struct {
	header *sam.Header
	recs   []*sam.Record
}

type fakeIterator struct {
	recs []*sam.Record
	rec  *sam.Record
	// If non-nil, only records that pass are yielded.
	filter func(*sam.Record) bool
}

// NewFakeProvider creates a provider that returns "header" in response to a
// GetHeader() call, and recs by GenerateChunks+NewIterator calls. Region
// scans filter recs by overlap; recs need not be sorted.
func NewFakeProvider(header *sam.Header, recs []*sam.Record) Provider {
	return &fakeProvider{header, recs}
}

// GetHeader implements the Provider interface. It returns the header passed to
// the constructor.
func (b *fakeProvider) GetHeader() (*sam.Header, error) {
	return b.header, nil
}

// MappedCount implements the Provider interface. It counts records without
// the unmapped flag.
func (b *fakeProvider) MappedCount() (uint64, error) {
	n := uint64(0)
	for _, r := range b.recs {
		if r.Flags&sam.Unmapped == 0 {
			n++
		}
	}
	return n, nil
}

// Close implements the Provider interface.
func (b *fakeProvider) Close() error {
	return nil
}

// GenerateChunks implements the Provider interface.
func (b *fakeProvider) GenerateChunks(opts GenerateChunksOpts) (gbam.ChunkPlan, error) {
	readsPerChunk := opts.ReadsPerChunk
	if readsPerChunk <= 0 {
		readsPerChunk = gbam.DefaultReadsPerChunk
	}
	plan := gbam.ChunkPlan{NumRecords: uint64(len(b.recs))}
	plan.NumMapped, _ = b.MappedCount()
	for begin := 0; begin < len(b.recs); begin += readsPerChunk {
		end := begin + readsPerChunk
		if end > len(b.recs) {
			end = len(b.recs)
		}
		plan.Chunks = append(plan.Chunks, gbam.Chunk{
			Begin:      bgzf.Offset{File: int64(begin)},
			End:        bgzf.Offset{File: int64(end)},
			ChunkIdx:   len(plan.Chunks),
			NumRecords: end - begin,
		})
	}
	return plan, nil
}

// NewIterator implements the Provider interface.
//
// REQUIRES: chunk must be the one created by GenerateChunks.
func (b *fakeProvider) NewIterator(chunk gbam.Chunk) Iterator {
	begin, end := int(chunk.Begin.File), int(chunk.End.File)
	if begin < 0 || end > len(b.recs) || begin > end {
		return NewErrorIterator(errors.E(errors.Invalid, fmt.Sprintf("fakeProvider: chunk %s out of range", chunk.String())))
	}
	return &fakeIterator{recs: b.recs[begin:end]}
}

// NewRegionIterator implements the Provider interface.
func (b *fakeProvider) NewRegionIterator(refName string, start, limit int) Iterator {
	ref := RefByName(b.header, refName)
	if ref == nil {
		return NewErrorIterator(errors.E(errors.NotExist, fmt.Sprintf("fakeProvider: reference '%s' not found", refName)))
	}
	return &fakeIterator{
		recs: b.recs,
		filter: func(r *sam.Record) bool {
			return r.Ref != nil && r.Ref.ID() == ref.ID() && r.Pos < limit && r.End() > start
		},
	}
}

// Err implements the Iterator interface.
func (i *fakeIterator) Err() error {
	return nil
}

// Close implements the Iterator interface.
func (i *fakeIterator) Close() error {
	return nil
}

func (i *fakeIterator) Scan() bool {
	for {
		if len(i.recs) == 0 {
			return false
		}
		i.rec = i.recs[0]
		i.recs = i.recs[1:]
		if i.filter == nil || i.filter(i.rec) {
			return true
		}
	}
}

func (i *fakeIterator) Record() *sam.Record {
	// Return a copy so that the code under test cannot alter the
	// original test input data.
	copy := sam.GetFromFreePool()
	*copy = *i.rec
	copy.Cigar = append(sam.Cigar(nil), i.rec.Cigar...)
	copy.Seq.Seq = append([]sam.Doublet(nil), i.rec.Seq.Seq...)
	copy.Qual = append([]byte(nil), i.rec.Qual...)
	copy.AuxFields = append([]sam.Aux(nil), i.rec.AuxFields...)
	return copy
}
