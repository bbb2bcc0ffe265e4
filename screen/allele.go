package screen

import (
	"sort"
	"strconv"
	"strings"
)

// Edit is one called base substitution. Pos is 0-based in the coordinate
// frame of the reference region being aligned, after applying the guide's
// strand and offset.
type Edit struct {
	Pos int
	Ref byte
	Alt byte
}

// String renders an edit as "pos:ref>alt", e.g. "5:C>T".
func (e Edit) String() string {
	b := strings.Builder{}
	b.WriteString(strconv.Itoa(e.Pos))
	b.WriteByte(':')
	b.WriteByte(e.Ref)
	b.WriteByte('>')
	b.WriteByte(e.Alt)
	return b.String()
}

// Allele is the ordered sequence of edits observed in one region of one
// read. An empty Allele is wild type. Two alleles are equal iff their edit
// sequences are equal; String is the canonical form and doubles as the
// aggregation key.
type Allele struct {
	Edits []Edit
}

// IsWildType reports whether no edit was detected.
func (a Allele) IsWildType() bool { return len(a.Edits) == 0 }

// String renders the edits in ascending position order, comma separated.
// Wild type renders as the empty string.
func (a Allele) String() string {
	b := strings.Builder{}
	for i, e := range a.Edits {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(e.String())
	}
	return b.String()
}

// normalize sorts the edits by ascending position. Calls on minus-strand
// guides emit edits in descending position order; normalizing here keeps
// the equality contract independent of strand.
func (a *Allele) normalize() {
	sort.Slice(a.Edits, func(i, j int) bool { return a.Edits[i].Pos < a.Edits[j].Pos })
}
