package codfreq

// Standard genetic code, with codons enumerated in TCAG order:
// TTT, TTC, TTA, TTG, TCT, ...
const (
	codonBases = "TCAG"
	codonAAs   = "FFLLSSSSYY**CC*WLLLLPPPPHHQQRRRRIIIMTTTTNNKKSSRRVVVVAAAADDEEGGGG"
)

var codonTable = func() map[string]byte {
	m := make(map[string]byte, 64)
	i := 0
	for _, a := range []byte(codonBases) {
		for _, b := range []byte(codonBases) {
			for _, c := range []byte(codonBases) {
				m[string([]byte{a, b, c})] = codonAAs[i]
				i++
			}
		}
	}
	return m
}()

// iupac maps an IUPAC nucleotide code to the bases it stands for.
var iupac = map[byte]string{
	'A': "A", 'C': "C", 'G': "G", 'T': "T",
	'R': "AG", 'Y': "CT", 'S': "CG", 'W': "AT", 'K': "GT", 'M': "AC",
	'B': "CGT", 'D': "AGT", 'H': "ACT", 'V': "ACG",
	'N': "ACGT",
}

// Ambiguous is the amino acid of a codon whose expansions translate to more
// than one amino acid.
const Ambiguous = "X"

// TranslateCodon translates a 3-letter codon over the IUPAC nucleotide
// alphabet. A codon with ambiguity codes is expanded to every unambiguous
// codon it stands for; if they all encode the same amino acid, that amino
// acid is returned, and Ambiguous otherwise. Stop codons translate to "*".
// The second return value is false if codon is not 3 letters long or
// contains a letter outside the alphabet.
func TranslateCodon(codon string) (string, bool) {
	if len(codon) != 3 {
		return "", false
	}
	var expansions [3]string
	for i := 0; i < 3; i++ {
		e, ok := iupac[codon[i]]
		if !ok {
			return "", false
		}
		expansions[i] = e
	}
	var (
		aa  byte
		buf [3]byte
	)
	for _, a := range []byte(expansions[0]) {
		for _, b := range []byte(expansions[1]) {
			for _, c := range []byte(expansions[2]) {
				buf[0], buf[1], buf[2] = a, b, c
				x := codonTable[string(buf[:])]
				if aa == 0 {
					aa = x
				} else if aa != x {
					return Ambiguous, true
				}
			}
		}
	}
	return string([]byte{aa}), true
}
