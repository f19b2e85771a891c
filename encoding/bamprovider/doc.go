// Package bamprovider provides utilities for scanning a BAM file in
// parallel.
//
// The Provider cuts a BAM file into read-count based chunks and hands out
// iterators over them. Iterators own their own file handle, so distinct
// chunks can be read concurrently. Closed iterators are pooled and reused.
package bamprovider
