// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/sam"
	"github.com/pkg/errors"
	"v.io/x/lib/vlog"
)

// DefaultReadsPerChunk is the default number of records per Chunk.
const DefaultReadsPerChunk = 5000

// Chunk is a contiguous run of records in a BAM file, delimited by bgzf
// virtual offsets. Begin is the virtual offset where the first record of the
// chunk starts. End is the virtual offset where the last record of the chunk
// ends.
//
// A scanner for a chunk seeks to Begin, then reads records until it reads one
// whose end offset is past End. The chunks produced by GetReadCountChunks are
// disjoint, ordered by ChunkIdx, and together they cover every record of the
// file exactly once.
type Chunk struct {
	Begin bgzf.Offset
	End   bgzf.Offset
	// ChunkIdx is the position of the chunk in file order, starting at 0.
	ChunkIdx int
	// NumRecords is the number of records the planner counted in the chunk.
	NumRecords int
}

// String returns a debug string for c.
func (c *Chunk) String() string {
	return fmt.Sprintf("%d:(%d,%d)-(%d,%d),n=%d",
		c.ChunkIdx, c.Begin.File, c.Begin.Block, c.End.File, c.End.Block, c.NumRecords)
}

// Passed returns true if a record whose bgzf chunk ends at recEnd lies
// beyond the end of c.
func (c *Chunk) Passed(recEnd bgzf.Offset) bool {
	return OffsetLess(c.End, recEnd)
}

// OffsetLess returns true if virtual offset a precedes b.
func OffsetLess(a, b bgzf.Offset) bool {
	if a.File != b.File {
		return a.File < b.File
	}
	return a.Block < b.Block
}

// ChunkPlan is the result of planning a BAM file.
type ChunkPlan struct {
	Chunks []Chunk
	// NumRecords is the number of records in the file.
	NumRecords uint64
	// NumMapped is the number of records without the unmapped flag.
	NumMapped uint64
}

// NewChunkChannel returns a closed channel filled with chunks.
func NewChunkChannel(chunks []Chunk) chan Chunk {
	ch := make(chan Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

// GetReadCountChunks reads the BAM file at bamPath once, from start to end,
// and cuts it into chunks of readsPerChunk records. The last chunk holds the
// remainder. A file with no records yields no chunks. If readsPerChunk <= 0,
// DefaultReadsPerChunk is used.
func GetReadCountChunks(ctx context.Context, bamPath string, readsPerChunk int) (plan ChunkPlan, err error) {
	in, err := file.Open(ctx, bamPath)
	if err != nil {
		return ChunkPlan{}, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	reader, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		return ChunkPlan{}, errors.Wrap(err, bamPath)
	}
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	plan, err = PlanChunks(reader, readsPerChunk)
	if err != nil {
		return ChunkPlan{}, errors.Wrap(err, bamPath)
	}
	vlog.VI(1).Infof("%s: %d records, %d mapped, %d chunks", bamPath, plan.NumRecords, plan.NumMapped, len(plan.Chunks))
	return plan, nil
}

// PlanChunks is GetReadCountChunks on an open reader. The reader must be
// positioned before the first record.
func PlanChunks(reader *bam.Reader, readsPerChunk int) (ChunkPlan, error) {
	if readsPerChunk <= 0 {
		readsPerChunk = DefaultReadsPerChunk
	}
	var (
		plan ChunkPlan
		cur  Chunk
	)
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ChunkPlan{}, errors.Wrapf(err, "chunk planner: record %d", plan.NumRecords)
		}
		vo := reader.LastChunk()
		if cur.NumRecords == 0 {
			cur.Begin = vo.Begin
		}
		cur.End = vo.End
		cur.NumRecords++
		plan.NumRecords++
		if rec.Flags&sam.Unmapped == 0 {
			plan.NumMapped++
		}
		sam.PutInFreePool(rec)
		if cur.NumRecords == readsPerChunk {
			cur.ChunkIdx = len(plan.Chunks)
			plan.Chunks = append(plan.Chunks, cur)
			cur = Chunk{}
		}
	}
	if cur.NumRecords > 0 {
		cur.ChunkIdx = len(plan.Chunks)
		plan.Chunks = append(plan.Chunks, cur)
	}
	if err := ValidateChunkList(plan.Chunks); err != nil {
		return ChunkPlan{}, err
	}
	return plan, nil
}

// ValidateChunkList checks that chunks are numbered in order, non-empty and
// non-overlapping.
func ValidateChunkList(chunks []Chunk) error {
	for i := range chunks {
		c := &chunks[i]
		if c.ChunkIdx != i {
			return errors.Errorf("chunk %d has index %d", i, c.ChunkIdx)
		}
		if c.NumRecords <= 0 {
			return errors.Errorf("chunk %v is empty", c.String())
		}
		if OffsetLess(c.End, c.Begin) {
			return errors.Errorf("chunk %v ends before it begins", c.String())
		}
		if i > 0 && OffsetLess(c.Begin, chunks[i-1].End) {
			return errors.Errorf("chunk %v overlaps chunk %v", c.String(), chunks[i-1].String())
		}
	}
	return nil
}
