// Package codfreq computes per-position codon frequencies from aligned reads.
//
// Reads are decomposed by package posna, joined with their mates by a
// PairResolver, cut into codons of each Fragment by GroupCodons, and counted
// by an Aggregator. Run wires these together over one BAM file.
package codfreq
