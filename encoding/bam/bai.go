package bam

import (
	"context"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/pkg/errors"
	"v.io/x/lib/vlog"
)

// WriteIndex reads a coordinate-sorted BAM from r and writes its .bai
// index, including the per-reference metadata pseudo-bins, to w.
func WriteIndex(w io.Writer, r io.Reader) error {
	reader, err := bam.NewReader(r, 1)
	if err != nil {
		return err
	}
	defer reader.Close() // nolint: errcheck
	var (
		idx bam.Index
		n   int
	)
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "record %d", n)
		}
		if err := idx.Add(rec, reader.LastChunk()); err != nil {
			return errors.Wrapf(err, "record %d (%s)", n, rec.Name)
		}
		sam.PutInFreePool(rec)
		n++
	}
	vlog.VI(1).Infof("indexed %d records", n)
	return bam.WriteIndex(w, &idx)
}

// WriteIndexFile writes the .bai index of the BAM file at bamPath to
// baiPath.
func WriteIndexFile(ctx context.Context, bamPath, baiPath string) (err error) {
	in, err := file.Open(ctx, bamPath)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, in, &err)
	out, err := file.Create(ctx, baiPath)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	if err = WriteIndex(out.Writer(ctx), in.Reader(ctx)); err != nil {
		return errors.Wrap(err, bamPath)
	}
	return nil
}
