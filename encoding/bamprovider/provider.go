package bamprovider

import (
	"github.com/grailbio/hts/sam"
	gbam "github.com/hivdb/codfreq/encoding/bam"
)

// ProviderOpts defines options for NewProvider.
type ProviderOpts struct {
	// Index specifies the name of the BAM index file. If Index=="", it
	// defaults to path + ".bai". The index is optional for chunked scans; it
	// is consulted for mapped-read counts and for region scans.
	Index string
}

// GenerateChunksOpts defines behavior of Provider.GenerateChunks.
type GenerateChunksOpts struct {
	// ReadsPerChunk is the number of records in each chunk. If <= 0,
	// gbam.DefaultReadsPerChunk is used.
	ReadsPerChunk int
}

// Provider allows reading a BAM file in parallel. Thread safe.
type Provider interface {
	// GetHeader returns the header for the provided BAM data. The callee
	// must not modify the returned header object.
	//
	// REQUIRES: Close has not been called.
	GetHeader() (*sam.Header, error)

	// MappedCount returns the number of mapped records according to the
	// index. It returns an error of kind errors.NotExist if the index is
	// missing or carries no record counts.
	//
	// REQUIRES: Close has not been called.
	MappedCount() (uint64, error)

	// GenerateChunks cuts the file into read-count based chunks. The chunks
	// are disjoint, ordered, and together cover every record once.
	//
	// Use NewIterator to read records in a chunk.
	//
	// REQUIRES: Close has not been called.
	GenerateChunks(opts GenerateChunksOpts) (gbam.ChunkPlan, error)

	// NewIterator returns an iterator over the records of chunk, in file
	// order. The chunk is usually produced by GenerateChunks.
	//
	// REQUIRES: Close has not been called.
	NewIterator(chunk gbam.Chunk) Iterator

	// NewRegionIterator returns an iterator over the records of refName that
	// overlap the half-open, 0-based range [start, limit). It requires the
	// index.
	//
	// REQUIRES: Close has not been called.
	NewRegionIterator(refName string, start, limit int) Iterator

	// Close must be called exactly once. It returns any error encountered
	// by the provider, or any iterator created by the provider.
	//
	// REQUIRES: All the iterators created by NewIterator have been closed.
	Close() error
}

// Iterator iterates over sam.Records in file order. Thread compatible.
type Iterator interface {
	// Scan returns whether there are any records remaining in the iterator,
	// and if so, advances the iterator to the next record. If the iterator
	// reaches the end of its range, Scan() returns false. If an error
	// occurs, Scan() returns false and the error can be retrieved by
	// calling Err().
	//
	// REQUIRES: Close has not been called.
	Scan() bool

	// Record returns the current record in the iterator. This must be
	// called only after a call to Scan() returns true. The caller owns the
	// record.
	//
	// REQUIRES: Close has not been called.
	Record() *sam.Record

	// Err returns the error encountered during iteration, or nil if no
	// error occurred. An io.EOF error will be translated to nil.
	Err() error

	// Close must be called exactly once. It returns the value of Err().
	Close() error
}

func mergeOpts(optList []ProviderOpts) ProviderOpts {
	opts := ProviderOpts{}
	for _, o := range optList {
		if o.Index != "" {
			opts.Index = o.Index
		}
	}
	return opts
}

// NewProvider creates a Provider for the BAM file at path.
func NewProvider(path string, optList ...ProviderOpts) Provider {
	opts := mergeOpts(optList)
	return &BAMProvider{Path: path, Index: opts.Index}
}
