package posna

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	gbam "github.com/hivdb/codfreq/encoding/bam"
	"github.com/hivdb/codfreq/encoding/bamprovider"
)

// ReadPosNAs is the decomposition of one read.
type ReadPosNAs struct {
	Name    string
	RefName string
	Flags   sam.Flags
	PosNAs  []PosNA
	// Quals is parallel to PosNAs. Nil if the read carried no qualities.
	Quals []byte
}

// DecomposeRecord decomposes rec. An unmapped record yields no calls.
func DecomposeRecord(rec *sam.Record) (ReadPosNAs, error) {
	r := ReadPosNAs{Name: rec.Name, Flags: rec.Flags}
	if rec.Ref != nil {
		r.RefName = rec.Ref.Name()
	}
	pairs, err := gbam.AlignedPairs(rec)
	if err != nil {
		return ReadPosNAs{}, errors.E(errors.Invalid, err)
	}
	var qual []byte
	if len(rec.Qual) == rec.Seq.Length && !missingQual(rec.Qual) {
		qual = rec.Qual
	}
	r.PosNAs, r.Quals, err = Decompose(rec.Seq.Expand(), qual, pairs)
	if err != nil {
		return ReadPosNAs{}, errors.E(err, fmt.Sprintf("read %s", rec.Name))
	}
	return r, nil
}

// missingQual returns true if qual is the 0xff fill BAM uses for absent
// qualities.
func missingQual(qual []byte) bool {
	return len(qual) > 0 && qual[0] == 0xff
}

// scan drains iter into a list of decompositions. Records with an empty
// sequence are skipped. The iterator is closed.
func scan(iter bamprovider.Iterator, sizeHint int) ([]ReadPosNAs, error) {
	results := make([]ReadPosNAs, 0, sizeHint)
	var err error
	for iter.Scan() {
		rec := iter.Record()
		if rec.Seq.Length == 0 {
			continue
		}
		var r ReadPosNAs
		if r, err = DecomposeRecord(rec); err != nil {
			break
		}
		results = append(results, r)
	}
	if e := iter.Close(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ScanChunk decomposes every read of chunk, in file order.
func ScanChunk(provider bamprovider.Provider, chunk gbam.Chunk) ([]ReadPosNAs, error) {
	results, err := scan(provider.NewIterator(chunk), chunk.NumRecords)
	if err != nil {
		return nil, errors.E(err, fmt.Sprintf("chunk %s", chunk.String()))
	}
	return results, nil
}

// ScanRegion decomposes every read of refName that overlaps the 0-based,
// half-open range [start, limit).
func ScanRegion(provider bamprovider.Provider, refName string, start, limit int) ([]ReadPosNAs, error) {
	results, err := scan(provider.NewRegionIterator(refName, start, limit), 0)
	if err != nil {
		return nil, errors.E(err, fmt.Sprintf("region %s:%d-%d", refName, start, limit))
	}
	return results, nil
}
