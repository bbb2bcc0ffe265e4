package screen

import "strings"

// MatchClass is the classification of one read pair against the guide
// table. Exactly one class is assigned per processed pair.
type MatchClass int

const (
	// NoMatch: neither the guide window nor the barcode matched any guide.
	NoMatch MatchClass = iota
	// SemiMatch: the guide sequence matched exactly one guide but the
	// barcode did not confirm it.
	SemiMatch
	// BCMatch: guide sequence and barcode jointly matched exactly one guide.
	BCMatch
	// DuplicateMatch: sequence and barcode jointly matched two or more
	// guides.
	DuplicateMatch
	// DuplicateMatchWoBarcode: the guide sequence alone matched two or more
	// guides and the barcode confirmed none of them.
	DuplicateMatchWoBarcode
)

func (c MatchClass) String() string {
	switch c {
	case NoMatch:
		return "nomatch"
	case SemiMatch:
		return "semimatch"
	case BCMatch:
		return "bcmatch"
	case DuplicateMatch:
		return "duplicate"
	case DuplicateMatchWoBarcode:
		return "duplicate_wo_barcode"
	}
	return "invalid"
}

// MatchResult is the outcome of classifying one read pair. Guide is the
// matched guide for BCMatch and SemiMatch and invalid otherwise.
type MatchResult struct {
	Class MatchClass
	Guide GuideID
}

// Matcher classifies read pairs against a GuideDB. It holds only read-only
// state and is safe for concurrent use.
type Matcher struct {
	db   *GuideDB
	opts Opts

	// Masked anchor literals, precomputed so the per-read work is a single
	// substring search in masked space.
	maskedStart string
	maskedEnd   string
}

// NewMatcher creates a Matcher over db.
func NewMatcher(db *GuideDB, opts Opts) *Matcher {
	return &Matcher{
		db:          db,
		opts:        opts,
		maskedStart: opts.Mask(opts.GuideStartSeq),
		maskedEnd:   opts.Mask(opts.GuideEndSeq),
	}
}

// ExtractBarcode returns the candidate barcode: the reverse complement of
// the R2 prefix of the configured barcode length.
func (m *Matcher) ExtractBarcode(r2Seq string) (string, bool) {
	if len(r2Seq) < m.opts.BarcodeLength {
		return "", false
	}
	return reverseComplement(r2Seq[:m.opts.BarcodeLength]), true
}

// guideWindow locates the candidate guide subsequence of length guideLen in
// R1, anchored by the start or end adapter. The anchor search runs in
// masked space so an edit inside the adapter does not lose the read.
func (m *Matcher) guideWindow(r1Seq string, guideLen int) (int, bool) {
	masked := m.opts.Mask(r1Seq)
	if m.opts.GuideEndSeq == "" {
		idx := strings.Index(masked, m.maskedStart)
		if idx < 0 {
			return 0, false
		}
		start := idx + len(m.maskedStart)
		if start+guideLen > len(r1Seq) {
			return 0, false
		}
		return start, true
	}
	idx := strings.Index(masked, m.maskedEnd)
	if idx < 0 || idx-guideLen < 0 {
		return 0, false
	}
	return idx - guideLen, true
}

// ExtractGuide returns the candidate guide subsequence of length guideLen
// from R1, or false when the anchor is absent or the window overruns the
// read.
func (m *Matcher) ExtractGuide(r1Seq string, guideLen int) (string, bool) {
	start, ok := m.guideWindow(r1Seq, guideLen)
	if !ok {
		return "", false
	}
	return r1Seq[start : start+guideLen], true
}

// ExtractGuideQual is ExtractGuide plus the matching slice of the quality
// track, for quality-aware spacer allele calls.
func (m *Matcher) ExtractGuideQual(r1Seq, r1Qual string, guideLen int) (string, []int, bool) {
	start, ok := m.guideWindow(r1Seq, guideLen)
	if !ok || start+guideLen > len(r1Qual) {
		return "", nil, false
	}
	return r1Seq[start : start+guideLen], phredQuals(r1Qual[start : start+guideLen]), true
}

// ExtractReporter returns the observed reporter window: the reverse
// complement of the R2 window following the barcode, with the quality
// track reversed to stay in step.
func (m *Matcher) ExtractReporter(r2Seq, r2Qual string) (string, []int, bool) {
	start := m.opts.BarcodeLength
	end := start + m.opts.ReporterLength
	if end > len(r2Seq) {
		end = len(r2Seq)
	}
	if start >= end {
		return "", nil, false
	}
	quals := phredQuals(r2Qual[start:end])
	reverseInts(quals)
	return reverseComplement(r2Seq[start:end]), quals, true
}

// Match classifies a read pair. The candidate guide window (one per
// distinct guide length) and the candidate barcode are compared against
// the catalogue under masked equality; the barcode-confirmed set is the
// intersection of the two match sets. Match has no side effects.
func (m *Matcher) Match(r1Seq, r2Seq string) MatchResult {
	var bcGuides []GuideID
	if m.opts.MatchBarcode {
		if barcode, ok := m.ExtractBarcode(r2Seq); ok {
			bcGuides = m.db.MatchBarcode(m.opts.Mask(barcode))
		}
	}
	var seqGuides, bcMatch []GuideID
	for _, guideLen := range m.db.GuideLengths() {
		candidate, ok := m.ExtractGuide(r1Seq, guideLen)
		if !ok {
			continue
		}
		matches := m.db.MatchSequence(m.opts.Mask(candidate))
		// Guides are bucketed by length, so the per-length match sets are
		// disjoint and appending keeps the union duplicate-free.
		seqGuides = append(seqGuides, matches...)
		bcMatch = append(bcMatch, intersectGuides(matches, bcGuides)...)
	}
	switch {
	case len(bcMatch) == 1:
		return MatchResult{Class: BCMatch, Guide: bcMatch[0]}
	case len(bcMatch) >= 2:
		return MatchResult{Class: DuplicateMatch}
	case len(seqGuides) == 0:
		return MatchResult{Class: NoMatch}
	case len(seqGuides) == 1:
		return MatchResult{Class: SemiMatch, Guide: seqGuides[0]}
	default:
		return MatchResult{Class: DuplicateMatchWoBarcode}
	}
}

func intersectGuides(a, b []GuideID) []GuideID {
	var out []GuideID
	for _, x := range a {
		for _, y := range b {
			if x == y {
				out = append(out, x)
				break
			}
		}
	}
	return out
}
