package main

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/log"
	"github.com/hivdb/codfreq/codfreq"
	gbam "github.com/hivdb/codfreq/encoding/bam"
	"github.com/hivdb/codfreq/posna"
	"v.io/x/lib/vlog"
)

type runFlags struct {
	index     *string
	workers   *int
	chunkSize *int
	fragments *string
	out       *string
	format    *string
	logFormat *string
}

// newProgress returns the progress sink named by the -log-format flag.
func newProgress(logFormat, path string, stderr io.Writer) (posna.ProgressSink, error) {
	switch logFormat {
	case "text", "":
		return posna.NewLogProgress(path), nil
	case "json":
		return posna.NewJSONProgress(stderr, "sam2codfreq", path), nil
	case "none":
		return posna.NopProgress, nil
	}
	return nil, fmt.Errorf("unknown log format \"%s\"", logFormat)
}

func run(ctx context.Context, flags runFlags, path string, stdout, stderr io.Writer) error {
	format, err := parseFormat(*flags.format, *flags.out)
	if err != nil {
		return err
	}
	progress, err := newProgress(*flags.logFormat, path, stderr)
	if err != nil {
		return err
	}
	frags, err := codfreq.ParseFragments(*flags.fragments)
	if err != nil {
		return err
	}
	opts := codfreq.DefaultOpts
	opts.Index = *flags.index
	opts.Workers = *flags.workers
	opts.ReadsPerChunk = *flags.chunkSize
	opts.Fragments = frags
	opts.Progress = progress
	res, err := codfreq.Run(ctx, path, opts)
	if err != nil {
		return err
	}
	vlog.VI(1).Infof("%s: fingerprint %016x", path, res.Fingerprint)
	if err := writeOutput(ctx, *flags.out, format, res, stdout); err != nil {
		return err
	}
	if *flags.out != "-" {
		log.Printf("wrote %s", *flags.out)
	}
	return nil
}

func printChunks(ctx context.Context, path string, readsPerChunk int, w io.Writer) error {
	plan, err := gbam.GetReadCountChunks(ctx, path, readsPerChunk)
	if err != nil {
		return err
	}
	for i := range plan.Chunks {
		if _, err := fmt.Fprintln(w, plan.Chunks[i].String()); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "%d chunks, %d records, %d mapped\n", len(plan.Chunks), plan.NumRecords, plan.NumMapped)
	return err
}
