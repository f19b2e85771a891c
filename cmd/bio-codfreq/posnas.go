package main

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/grailbio/base/tsv"
	"github.com/hivdb/codfreq/encoding/bamprovider"
	"github.com/hivdb/codfreq/posna"
)

type posnasFlags struct {
	index     *string
	workers   *int
	chunkSize *int
	region    *string
}

type region struct {
	refName string
	// 0-based, half-open interval within refName.
	start, limit int
}

var regionRE = regexp.MustCompile(`^([^:]+):(\d+)-(\d+)$`)

// parseRegion parses "ref:begin-end", where [begin,end] is 1-based and
// closed, like samtools.
func parseRegion(s string) (region, error) {
	matches := regionRE.FindStringSubmatch(s)
	if matches == nil {
		return region{}, fmt.Errorf("%s: must be of form 'ref:begin-end'", s)
	}
	begin, err := strconv.ParseInt(matches[2], 10, 64)
	if err != nil {
		return region{}, err
	}
	end, err := strconv.ParseInt(matches[3], 10, 64)
	if err != nil {
		return region{}, err
	}
	if begin < 1 || end < begin {
		return region{}, fmt.Errorf("%s: need 1 <= begin <= end", s)
	}
	return region{
		refName: matches[1],
		start:   int(begin - 1), // convert to 0-based closed bound
		limit:   int(end),       // convert to 0-based open bound
	}, nil
}

func writeRead(w *tsv.Writer, r posna.ReadPosNAs) error {
	w.WriteString(r.Name)
	w.WriteString(r.RefName)
	strs := make([]string, len(r.PosNAs))
	for i, p := range r.PosNAs {
		strs[i] = p.String()
	}
	w.WriteString(strings.Join(strs, " "))
	return w.EndLine()
}

func printPosNAs(ctx context.Context, flags posnasFlags, path string, out io.Writer) (err error) {
	provider := bamprovider.NewProvider(path, bamprovider.ProviderOpts{Index: *flags.index})
	defer func() {
		if e := provider.Close(); e != nil && err == nil {
			err = e
		}
	}()
	w := tsv.NewWriter(out)
	if *flags.region != "" {
		r, err := parseRegion(*flags.region)
		if err != nil {
			return err
		}
		reads, err := posna.ScanRegion(provider, r.refName, r.start, r.limit)
		if err != nil {
			return err
		}
		for _, read := range reads {
			if err := writeRead(w, read); err != nil {
				return err
			}
		}
		return w.Flush()
	}
	it := posna.NewIterator(ctx, provider, posna.Opts{
		Workers:       *flags.workers,
		ReadsPerChunk: *flags.chunkSize,
	})
	for it.Scan() {
		if err = writeRead(w, it.Record()); err != nil {
			break
		}
	}
	if e := it.Close(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return err
	}
	return w.Flush()
}
