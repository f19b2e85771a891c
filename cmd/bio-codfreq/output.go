package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/hivdb/codfreq/codfreq"
	"github.com/klauspost/compress/gzip"
)

type outputFormat int

const (
	formatTSV outputFormat = iota
	formatCSV
)

var codfreqColumns = []string{"gene", "position", "total", "codon", "aa", "count", "percent", "mean_quality_score"}

// parseFormat parses the -format flag. An empty name is guessed from the
// extension of path, ignoring a trailing .gz.
func parseFormat(name, path string) (outputFormat, error) {
	switch name {
	case "tsv":
		return formatTSV, nil
	case "csv":
		return formatCSV, nil
	case "":
		if strings.HasSuffix(strings.TrimSuffix(path, ".gz"), ".csv") {
			return formatCSV, nil
		}
		return formatTSV, nil
	}
	return 0, fmt.Errorf("unknown output format \"%s\"", name)
}

// rowWriter writes codon frequency rows as TSV or CSV.
type rowWriter struct {
	tsv    *tsv.Writer
	csv    *csv.Writer
	fields []string
}

func newRowWriter(w io.Writer, format outputFormat) *rowWriter {
	if format == formatCSV {
		return &rowWriter{csv: csv.NewWriter(w)}
	}
	return &rowWriter{tsv: tsv.NewWriter(w)}
}

func (w *rowWriter) writeFields(fields []string) error {
	if w.csv != nil {
		return w.csv.Write(fields)
	}
	for _, f := range fields {
		w.tsv.WriteString(f)
	}
	return w.tsv.EndLine()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteHeader writes the column names.
func (w *rowWriter) WriteHeader() error {
	return w.writeFields(codfreqColumns)
}

// Write writes one row of fragment gene.
func (w *rowWriter) Write(gene string, row codfreq.Row) error {
	w.fields = append(w.fields[:0],
		gene,
		strconv.FormatUint(uint64(row.Position), 10),
		strconv.FormatUint(row.Total, 10),
		row.Codon,
		row.AA,
		strconv.FormatUint(row.Count, 10),
		formatFloat(row.Percent),
		formatFloat(row.MeanQuality))
	return w.writeFields(w.fields)
}

// WriteResult writes the header and then the rows of every fragment of res.
func (w *rowWriter) WriteResult(res codfreq.Result) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}
	for _, frag := range res.Fragments {
		for _, row := range frag.Rows {
			if err := w.Write(frag.Fragment.Name, row); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *rowWriter) Flush() error {
	if w.csv != nil {
		w.csv.Flush()
		return w.csv.Error()
	}
	return w.tsv.Flush()
}

// writeOutput writes res to path, or to stdout if path is "-". A path ending
// in .gz is gzip-compressed.
func writeOutput(ctx context.Context, path string, format outputFormat, res codfreq.Result, stdout io.Writer) (err error) {
	if path == "-" {
		w := newRowWriter(stdout, format)
		if err = w.WriteResult(res); err != nil {
			return err
		}
		return w.Flush()
	}
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	dst := out.Writer(ctx)
	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(dst)
		defer func() {
			if e := gz.Close(); e != nil && err == nil {
				err = e
			}
		}()
		dst = gz
	}
	w := newRowWriter(dst, format)
	if err = w.WriteResult(res); err != nil {
		return err
	}
	return w.Flush()
}
