package posna

import (
	"context"
	"runtime"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/syncqueue"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/hts/sam"
	gbam "github.com/hivdb/codfreq/encoding/bam"
	"github.com/hivdb/codfreq/encoding/bamprovider"
)

// Opts defines options for NewIterator.
type Opts struct {
	// Workers is the number of chunks scanned concurrently. If <= 0,
	// runtime.NumCPU() is used.
	Workers int
	// ReadsPerChunk is the number of records per chunk. If <= 0,
	// gbam.DefaultReadsPerChunk is used.
	ReadsPerChunk int
	// Progress receives the scan progress. If nil, NopProgress is used.
	Progress ProgressSink
}

// DefaultOpts is the default value of Opts.
var DefaultOpts = Opts{
	ReadsPerChunk: gbam.DefaultReadsPerChunk,
}

// Iterator yields the decomposition of every read of a BAM file, in file
// order. The chunks are scanned by a pool of workers; a chunk's results are
// held until every earlier chunk has been yielded. Thread compatible.
//
// Example:
//
//   it := posna.NewIterator(ctx, provider, posna.DefaultOpts)
//   for it.Scan() {
//     r := it.Record()
//     ...
//   }
//   if err := it.Close(); err != nil {...}
type Iterator struct {
	ctx      context.Context
	cancel   context.CancelFunc
	queue    *syncqueue.OrderedQueue
	progress ProgressSink
	// Closed when the workers have exited.
	done chan struct{}

	closeQueueOnce sync.Once
	finishOnce     sync.Once
	closeOnce      sync.Once

	batch []ReadPosNAs
	idx   int
	rec   ReadPosNAs
	nRead uint64
	err   errors.Once
}

// NewIterator plans the file behind provider and starts scanning it. The
// scan stops when ctx is canceled, and Scan then reports the cancellation
// through Err. The progress total is the mapped-read count of the index when
// one is available, and the planner's count otherwise.
func NewIterator(ctx context.Context, provider bamprovider.Provider, opts Opts) *Iterator {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Progress == nil {
		opts.Progress = NopProgress
	}
	ctx, cancel := context.WithCancel(ctx)
	it := &Iterator{
		ctx:      ctx,
		cancel:   cancel,
		progress: opts.Progress,
		done:     make(chan struct{}),
	}
	plan, err := provider.GenerateChunks(bamprovider.GenerateChunksOpts{ReadsPerChunk: opts.ReadsPerChunk})
	if err != nil {
		it.err.Set(err)
		close(it.done)
		return it
	}
	total := plan.NumMapped
	if n, err := provider.MappedCount(); err == nil {
		total = n
	} else {
		log.Debug.Printf("posna: using planner count %d: %v", total, err)
	}
	log.Debug.Printf("posna: %d records in %d chunks, %d workers", plan.NumRecords, len(plan.Chunks), opts.Workers)
	workers := opts.Workers
	if workers > len(plan.Chunks) {
		workers = len(plan.Chunks)
	}
	it.queue = syncqueue.NewOrderedQueue(2*workers + 1)
	it.progress.Start(total)
	go it.run(provider, plan.Chunks, workers)
	return it
}

func (it *Iterator) closeQueue(err error) {
	it.closeQueueOnce.Do(func() {
		if e := it.queue.Close(err); e != nil {
			log.Error.Printf("posna: closing queue: %v", e)
		}
	})
}

// fail aborts the scan. Workers blocked on the queue are released.
func (it *Iterator) fail(err error) {
	it.err.Set(err)
	it.cancel()
	it.closeQueue(err)
}

func (it *Iterator) run(provider bamprovider.Provider, chunks []gbam.Chunk, workers int) {
	defer close(it.done)
	chunkCh := gbam.NewChunkChannel(chunks)
	err := traverse.Each(workers, func(int) error {
		for chunk := range chunkCh {
			// Chunks already being scanned finish; the rest are skipped.
			if err := it.ctx.Err(); err != nil {
				return err
			}
			results, err := ScanChunk(provider, chunk)
			if err != nil {
				it.fail(err)
				return err
			}
			if err := it.queue.Insert(chunk.ChunkIdx, results); err != nil {
				return err
			}
		}
		return nil
	})
	it.closeQueue(err)
}

// Scan advances to the next read. It returns false at the end of the file or
// on error.
func (it *Iterator) Scan() bool {
	for it.idx >= len(it.batch) {
		if it.queue == nil || it.err.Err() != nil {
			it.finish()
			return false
		}
		val, ok, err := it.queue.Next()
		if err != nil {
			it.err.Set(err)
			it.finish()
			return false
		}
		if !ok {
			it.finish()
			return false
		}
		it.batch = val.([]ReadPosNAs)
		it.idx = 0
	}
	it.rec = it.batch[it.idx]
	it.batch[it.idx] = ReadPosNAs{}
	it.idx++
	it.nRead++
	// The progress total counts mapped records only.
	if it.rec.Flags&sam.Unmapped == 0 {
		it.progress.Add(1)
	}
	return true
}

// Record returns the current read. Valid only after Scan returns true.
func (it *Iterator) Record() ReadPosNAs { return it.rec }

// NumRead returns the number of reads yielded so far.
func (it *Iterator) NumRead() uint64 { return it.nRead }

// Err returns the first error encountered, if any.
func (it *Iterator) Err() error { return it.err.Err() }

func (it *Iterator) finish() {
	it.finishOnce.Do(it.progress.Finish)
}

// Close stops the workers, waits for them to exit, and returns Err(). It
// must be called exactly once.
func (it *Iterator) Close() error {
	it.closeOnce.Do(func() {
		it.cancel()
		if it.queue != nil {
			it.closeQueue(context.Canceled)
		}
		<-it.done
		it.finish()
	})
	return it.Err()
}
