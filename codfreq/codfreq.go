package codfreq

import (
	"context"

	"github.com/grailbio/base/log"
	gbam "github.com/hivdb/codfreq/encoding/bam"
	"github.com/hivdb/codfreq/encoding/bamprovider"
	"github.com/hivdb/codfreq/posna"
)

// Opts defines options for Run.
type Opts struct {
	// Index is the path of the .bai file. If "", the BAM path + ".bai" is
	// tried. The index is optional.
	Index string
	// Workers is the number of chunks scanned in parallel. If <= 0,
	// runtime.NumCPU() is used.
	Workers int
	// ReadsPerChunk is the number of records per scan chunk.
	ReadsPerChunk int
	// Fragments are the coding regions to count codons in. If empty, every
	// reference is one fragment.
	Fragments []Fragment
	// Progress receives the scan progress. If nil, progress is discarded.
	Progress posna.ProgressSink
}

// DefaultOpts is the default value of Opts.
var DefaultOpts = Opts{
	ReadsPerChunk: gbam.DefaultReadsPerChunk,
}

// FragmentRows is the codon frequency table of one fragment.
type FragmentRows struct {
	Fragment Fragment
	Rows     []Row
}

// Result is the outcome of counting codons in one BAM file.
type Result struct {
	Fragments []FragmentRows
	// NumReads is the number of reads scanned.
	NumReads uint64
	// NumTemplates is the number of single reads and merged pairs counted.
	NumTemplates uint64
	// Fingerprint is the posna.Fingerprint of the scanned reads.
	Fingerprint uint64
}

// ReadIterator is the source of decomposed reads for a Collector.
// *posna.Iterator implements it.
type ReadIterator interface {
	Scan() bool
	Record() posna.ReadPosNAs
	Err() error
}

// Collector turns a stream of decomposed reads into codon frequencies. Reads
// are joined with their mates, cut into codons per fragment, and counted.
// Thread compatible.
type Collector struct {
	frags    []Fragment
	aggs     []*Aggregator
	byRef    map[string][]int
	resolver *PairResolver
	fp       *posna.Fingerprint

	nReads, nTemplates uint64
}

// NewCollector creates a collector for frags.
func NewCollector(frags []Fragment) *Collector {
	c := &Collector{
		frags:    frags,
		aggs:     make([]*Aggregator, len(frags)),
		byRef:    map[string][]int{},
		resolver: NewPairResolver(),
		fp:       posna.NewFingerprint(),
	}
	for i, f := range frags {
		c.aggs[i] = NewAggregator()
		c.byRef[f.RefName] = append(c.byRef[f.RefName], i)
	}
	return c
}

// AddRead feeds one read.
func (c *Collector) AddRead(r posna.ReadPosNAs) {
	c.nReads++
	c.fp.Add(r)
	for _, t := range c.resolver.Add(r) {
		c.addTemplate(t)
	}
}

func (c *Collector) addTemplate(t Template) {
	c.nTemplates++
	for _, i := range c.byRef[t.RefName] {
		agg := c.aggs[i]
		for _, pc := range GroupCodons(c.frags[i], t) {
			agg.Add(pc.Position, pc.Codon, pc.Quality)
		}
	}
}

// Collect feeds every read of it. It returns it.Err().
func (c *Collector) Collect(it ReadIterator) error {
	for it.Scan() {
		c.AddRead(it.Record())
	}
	return it.Err()
}

// Finish flushes reads whose mate never arrived and returns the result. The
// collector must not be used afterwards.
func (c *Collector) Finish() Result {
	orphans := c.resolver.Finish()
	if len(orphans) > 0 {
		log.Debug.Printf("codfreq: %d reads without their mate", len(orphans))
	}
	for _, t := range orphans {
		c.addTemplate(t)
	}
	res := Result{
		NumReads:     c.nReads,
		NumTemplates: c.nTemplates,
		Fingerprint:  c.fp.Sum64(),
	}
	for i, f := range c.frags {
		res.Fragments = append(res.Fragments, FragmentRows{Fragment: f, Rows: c.aggs[i].Rows()})
	}
	return res
}

// Run counts codons in the BAM file at path.
func Run(ctx context.Context, path string, opts Opts) (res Result, err error) {
	provider := bamprovider.NewProvider(path, bamprovider.ProviderOpts{Index: opts.Index})
	defer func() {
		if e := provider.Close(); e != nil && err == nil {
			err = e
		}
	}()
	header, err := provider.GetHeader()
	if err != nil {
		return Result{}, err
	}
	frags, err := ResolveFragments(opts.Fragments, header)
	if err != nil {
		return Result{}, err
	}
	c := NewCollector(frags)
	it := posna.NewIterator(ctx, provider, posna.Opts{
		Workers:       opts.Workers,
		ReadsPerChunk: opts.ReadsPerChunk,
		Progress:      opts.Progress,
	})
	err = c.Collect(it)
	if e := it.Close(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return Result{}, err
	}
	res = c.Finish()
	log.Printf("%s: %d reads, %d templates, %d fragments", path, res.NumReads, res.NumTemplates, len(res.Fragments))
	return res, nil
}
