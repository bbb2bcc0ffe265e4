package screen

import (
	"strings"

	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/bio/biosimd"
)

// reverseComplement computes a reverse complement of the given DNA string.
func reverseComplement(seq string) string {
	buf := make([]byte, len(seq))
	biosimd.ReverseComp8NoValidate(buf, gunsafe.StringToBytes(seq))
	return gunsafe.BytesToString(buf)
}

// reverseInts reverses qs in place. Used to flip a quality track alongside a
// reverse-complemented sequence.
func reverseInts(qs []int) {
	for i, j := 0, len(qs)-1; i < j; i, j = i+1, j-1 {
		qs[i], qs[j] = qs[j], qs[i]
	}
}

// Mask rewrites every occurrence of the edited-from base to the edited-to
// base. Two sequences are masked-equal iff their masks are string-equal.
func (o Opts) Mask(seq string) string {
	return strings.Replace(seq, string(o.EditedFrom), string(o.EditedToBase()), -1)
}

const phredOffset = 33

// phredQuals decodes a FASTQ quality string into per-base Phred scores.
func phredQuals(qual string) []int {
	qs := make([]int, len(qual))
	for i := 0; i < len(qual); i++ {
		qs[i] = int(qual[i]) - phredOffset
	}
	return qs
}
