// Package posna decomposes aligned reads into per-position nucleotide calls
// and scans a BAM file for them in parallel.
//
// A PosNA is a (reference position, insertion index, nucleotide) triple.
// Reference positions are 1-based. Insertion index 0 denotes the base
// aligned to the reference position itself. Index k > 0 denotes the k-th
// inserted base following it.
//
// The Iterator plans the file into read-count based chunks, decomposes them
// on a pool of workers, and yields results in file order, no matter how many
// workers ran or how large the chunks were.
package posna
