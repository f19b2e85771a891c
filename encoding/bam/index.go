package bam

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bgzf"
	"github.com/pkg/errors"
)

// metadataBin is the pseudo-bin that samtools and htslib use to stash
// per-reference record counts.
const metadataBin = 37450

// Index is the parsed content of a .bai file. Only the pieces used for
// record accounting are kept in a convenient form.
type Index struct {
	Refs []RefIndex
	// UnplacedUnmapped is the optional trailing count of reads that have no
	// reference at all. Nil if the file did not carry one.
	UnplacedUnmapped *uint64
}

// RefIndex holds the index data for one reference.
type RefIndex struct {
	Bins      []Bin
	Intervals []bgzf.Offset
	// HasMeta is true if the reference carried a metadata pseudo-bin.
	HasMeta bool
	Meta    Metadata
}

// Bin is one bin of a reference.
type Bin struct {
	BinNum uint32
	Chunks []bgzf.Chunk
}

// Metadata is the content of the metadata pseudo-bin.
type Metadata struct {
	UnmappedBegin bgzf.Offset
	UnmappedEnd   bgzf.Offset
	MappedCount   uint64
	UnmappedCount uint64
}

type indexReader struct {
	r   io.Reader
	err error
}

func (ir *indexReader) read(data interface{}) {
	if ir.err == nil {
		ir.err = binary.Read(ir.r, binary.LittleEndian, data)
	}
}

func (ir *indexReader) offset() bgzf.Offset {
	var v uint64
	ir.read(&v)
	return toOffset(v)
}

// ReadIndex parses the content of r.
func ReadIndex(r io.Reader) (*Index, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, errors.Wrap(err, "bam index: reading magic")
	}
	if magic != [4]byte{'B', 'A', 'I', 0x1} {
		return nil, errors.Errorf("bam index: invalid magic %v", magic)
	}
	ir := &indexReader{r: r}
	var nRef int32
	ir.read(&nRef)
	if ir.err != nil {
		return nil, errors.Wrap(ir.err, "bam index: reading reference count")
	}
	idx := &Index{Refs: make([]RefIndex, nRef)}
	for refID := range idx.Refs {
		ref := &idx.Refs[refID]
		var nBin int32
		ir.read(&nBin)
		for b := int32(0); b < nBin && ir.err == nil; b++ {
			var (
				binNum uint32
				nChunk int32
			)
			ir.read(&binNum)
			ir.read(&nChunk)
			if ir.err != nil {
				break
			}
			bin := Bin{BinNum: binNum, Chunks: make([]bgzf.Chunk, nChunk)}
			for c := range bin.Chunks {
				bin.Chunks[c].Begin = ir.offset()
				bin.Chunks[c].End = ir.offset()
			}
			if binNum != metadataBin {
				ref.Bins = append(ref.Bins, bin)
				continue
			}
			if len(bin.Chunks) != 2 {
				return nil, errors.Errorf("bam index: reference %d: metadata bin has %d chunks, want 2", refID, len(bin.Chunks))
			}
			ref.HasMeta = true
			ref.Meta = Metadata{
				UnmappedBegin: bin.Chunks[0].Begin,
				UnmappedEnd:   bin.Chunks[0].End,
				MappedCount:   fromOffset(bin.Chunks[1].Begin),
				UnmappedCount: fromOffset(bin.Chunks[1].End),
			}
		}
		var nIntv int32
		ir.read(&nIntv)
		if ir.err != nil {
			return nil, errors.Wrapf(ir.err, "bam index: reference %d", refID)
		}
		ref.Intervals = make([]bgzf.Offset, nIntv)
		for i := range ref.Intervals {
			ref.Intervals[i] = ir.offset()
		}
		if ir.err != nil {
			return nil, errors.Wrapf(ir.err, "bam index: reference %d intervals", refID)
		}
	}
	var unplaced uint64
	switch err := binary.Read(r, binary.LittleEndian, &unplaced); err {
	case nil:
		idx.UnplacedUnmapped = &unplaced
	case io.EOF:
	default:
		return nil, errors.Wrap(err, "bam index: reading unplaced count")
	}
	return idx, nil
}

// ReadIndexFile opens and parses the .bai file at path.
func ReadIndexFile(ctx context.Context, path string) (idx *Index, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	idx, err = ReadIndex(in.Reader(ctx))
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return idx, nil
}

// MappedCount returns the total number of mapped records recorded in the
// index. The second return value is false if a reference that has reads
// lacks the metadata pseudo-bin, in which case the count is unknown.
func (i *Index) MappedCount() (uint64, bool) {
	var n uint64
	for _, ref := range i.Refs {
		if !ref.HasMeta {
			if len(ref.Bins) > 0 {
				return 0, false
			}
			continue
		}
		n += ref.Meta.MappedCount
	}
	return n, true
}

// UnmappedCount returns the number of unmapped records, placed or not.
func (i *Index) UnmappedCount() uint64 {
	var n uint64
	for _, ref := range i.Refs {
		n += ref.Meta.UnmappedCount
	}
	if i.UnplacedUnmapped != nil {
		n += *i.UnplacedUnmapped
	}
	return n
}

func toOffset(voffset uint64) bgzf.Offset {
	return bgzf.Offset{
		File:  int64(voffset >> 16),
		Block: uint16(voffset),
	}
}

func fromOffset(offset bgzf.Offset) uint64 {
	return uint64(offset.File<<16) | uint64(offset.Block)
}
