package bam

import "github.com/grailbio/hts/sam"

// HasNoMappedMateFlags returns true if flags mark a read that is unpaired or
// has an unmapped mate.
func HasNoMappedMateFlags(flags sam.Flags) bool {
	return (flags&sam.Paired) == 0 || (flags&sam.MateUnmapped) != 0
}

// IsPrimary returns true if flags mark neither a secondary nor a
// supplementary alignment.
func IsPrimary(flags sam.Flags) bool {
	return flags&(sam.Secondary|sam.Supplementary) == 0
}
