package screen

import (
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/grailbio/testutil/h"
)

func testMatcher(t *testing.T, opts Opts) (*GuideDB, *Matcher) {
	db := testReadGuideTable(t, testGuideCSV, opts)
	return db, NewMatcher(db, opts)
}

// Reads are laid out as <anchor><guide><tail> in R1 and <barcode
// revcomp><rest> in R2.
const testAnchor = "GGAAAGG"

func TestExtractBarcode(t *testing.T) {
	_, m := testMatcher(t, testGuideOpts())
	bc, ok := m.ExtractBarcode("TTAAGGGG")
	expect.True(t, ok)
	expect.EQ(t, bc, "TTAA") // revcomp of the R2 prefix
	bc, ok = m.ExtractBarcode("CCCCGGGG")
	expect.True(t, ok)
	expect.EQ(t, bc, "GGGG")
	_, ok = m.ExtractBarcode("TT")
	expect.False(t, ok)
}

func TestExtractGuideStartAnchor(t *testing.T) {
	_, m := testMatcher(t, testGuideOpts())
	g, ok := m.ExtractGuide(testAnchor+"ACGTACGT", 8)
	expect.True(t, ok)
	expect.EQ(t, g, "ACGTACGT")
	// Window overruns the read.
	_, ok = m.ExtractGuide(testAnchor+"ACGT", 8)
	expect.False(t, ok)
	// Anchor absent.
	_, ok = m.ExtractGuide("TTTTTTTTACGTACGT", 8)
	expect.False(t, ok)
}

func TestExtractGuideMaskedAnchor(t *testing.T) {
	// An intended edit inside the anchor must not lose the read: the anchor
	// search runs in masked space.
	opts := testGuideOpts()
	opts.GuideStartSeq = "GGACAGG"
	m := NewMatcher(testReadGuideTable(t, testGuideCSV, opts), opts)
	g, ok := m.ExtractGuide("GGATAGG"+"ACGTACGT", 8)
	expect.True(t, ok)
	expect.EQ(t, g, "ACGTACGT")
}

func TestExtractGuideEndAnchor(t *testing.T) {
	opts := testGuideOpts()
	opts.GuideStartSeq = ""
	opts.GuideEndSeq = "GTTT"
	m := NewMatcher(testReadGuideTable(t, testGuideCSV, opts), opts)
	g, ok := m.ExtractGuide("ACGTACGTGTTT", 8)
	expect.True(t, ok)
	expect.EQ(t, g, "ACGTACGT")
	// Not enough sequence before the anchor.
	_, ok = m.ExtractGuide("ACGTGTTT", 8)
	expect.False(t, ok)
}

func TestExtractGuideQual(t *testing.T) {
	_, m := testMatcher(t, testGuideOpts())
	seq := testAnchor + "ACGTACGT"
	qual := "!!!!!!!" + "IIIIIIII"
	g, quals, ok := m.ExtractGuideQual(seq, qual, 8)
	expect.True(t, ok)
	expect.EQ(t, g, "ACGTACGT")
	expect.EQ(t, quals, []int{40, 40, 40, 40, 40, 40, 40, 40})
	// Quality track shorter than the window.
	_, _, ok = m.ExtractGuideQual(seq, "!!!!!!!", 8)
	expect.False(t, ok)
}

func TestExtractReporter(t *testing.T) {
	opts := testGuideOpts()
	opts.ReporterLength = 8
	_, m := testMatcher(t, opts)
	// Window is r2[4:12], reverse complemented; quality runs in step.
	obs, quals, ok := m.ExtractReporter("TTAA"+"ACGTACAT"+"GG", "IIII"+"IIIIIII5"+"II")
	expect.True(t, ok)
	expect.EQ(t, obs, "ATGTACGT")
	expect.EQ(t, quals, []int{20, 40, 40, 40, 40, 40, 40, 40})

	// Truncated reporter window is still returned.
	obs, _, ok = m.ExtractReporter("TTAAACGT", "IIIIIIII")
	expect.True(t, ok)
	expect.EQ(t, obs, "ACGT")

	// No window at all.
	_, _, ok = m.ExtractReporter("TTAA", "IIII")
	expect.False(t, ok)
}

func TestMatchBCMatch(t *testing.T) {
	db, m := testMatcher(t, testGuideOpts())
	res := m.Match(testAnchor+"ACGTACGT", "TTAAGGGGGGGG")
	expect.EQ(t, res.Class, BCMatch)
	expect.EQ(t, res.Guide, db.GuideInfoByName("g1").ID)
}

func TestMatchBCMatchWithEdit(t *testing.T) {
	// The edited read (C->T at guide position 1) still matches g1 under
	// masked equality.
	db, m := testMatcher(t, testGuideOpts())
	res := m.Match(testAnchor+"ATGTACGT", "TTAAGGGGGGGG")
	expect.EQ(t, res.Class, BCMatch)
	expect.EQ(t, res.Guide, db.GuideInfoByName("g1").ID)
}

func TestMatchSemiMatch(t *testing.T) {
	// Guide sequence matches g1 uniquely but the barcode confirms nothing.
	db, m := testMatcher(t, testGuideOpts())
	res := m.Match(testAnchor+"ACGTACGT", "GGGGGGGGGGGG")
	expect.EQ(t, res.Class, SemiMatch)
	expect.EQ(t, res.Guide, db.GuideInfoByName("g1").ID)
}

func TestMatchNoMatch(t *testing.T) {
	_, m := testMatcher(t, testGuideOpts())
	// Unknown guide window: a matching barcode alone does not rescue it.
	res := m.Match(testAnchor+"AAAAAAAA", "TTAAGGGGGGGG")
	expect.EQ(t, res.Class, NoMatch)
	// No anchor in R1 at all.
	res = m.Match("TTTTTTTTTTTTTTTT", "TTAAGGGGGGGG")
	expect.EQ(t, res.Class, NoMatch)
}

func TestMatchDuplicateWoBarcode(t *testing.T) {
	// g3 (ACCA) and g4 (ATCA) are masked-identical; an unhelpful barcode
	// leaves the ambiguity unresolved.
	_, m := testMatcher(t, testGuideOpts())
	res := m.Match(testAnchor+"ACCA"+"GGGG", "GGGGGGGGGGGG")
	expect.EQ(t, res.Class, DuplicateMatchWoBarcode)
}

func TestMatchBarcodeDisambiguates(t *testing.T) {
	// The same ambiguous guide window, but g3's barcode singles it out.
	db, m := testMatcher(t, testGuideOpts())
	res := m.Match(testAnchor+"ACCA"+"GGGG", "CCCCGGGGGGGG")
	expect.EQ(t, res.Class, BCMatch)
	expect.EQ(t, res.Guide, db.GuideInfoByName("g3").ID)
}

func TestMatchDuplicate(t *testing.T) {
	// g5 and g6 share both the masked sequence and the masked barcode.
	_, m := testMatcher(t, testGuideOpts())
	res := m.Match(testAnchor+"TAAA"+"GGGG", "CGCAGGGGGGGG")
	expect.EQ(t, res.Class, DuplicateMatch)
}

func TestMatchWithoutBarcodeMatching(t *testing.T) {
	opts := testGuideOpts()
	opts.MatchBarcode = false
	db := testReadGuideTable(t, testGuideCSV, opts)
	m := NewMatcher(db, opts)
	// Barcode matching off: a unique sequence match is the best available
	// class even with a confirming barcode present in R2.
	res := m.Match(testAnchor+"ACGTACGT", "TTAAGGGGGGGG")
	expect.EQ(t, res.Class, SemiMatch)
	expect.EQ(t, res.Guide, db.GuideInfoByName("g1").ID)
}

func TestIntersectGuides(t *testing.T) {
	expect.That(t, intersectGuides([]GuideID{1, 2, 3}, []GuideID{2, 3, 4}),
		h.ElementsAre(GuideID(2), GuideID(3)))
	expect.EQ(t, len(intersectGuides([]GuideID{1}, nil)), 0)
	expect.EQ(t, len(intersectGuides(nil, []GuideID{1})), 0)
}
