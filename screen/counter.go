package screen

import "github.com/grailbio/bio/encoding/fastq"

// Counter runs the per-read-pair pipeline: classification, the optional
// spacer and reporter allele calls, and the tally updates. A Counter holds
// only read-only state; concurrent callers share the Counter and own
// private Tallies.
type Counter struct {
	db      *GuideDB
	matcher *Matcher
	opts    Opts
}

// NewCounter creates a Counter over db.
func NewCounter(db *GuideDB, opts Opts) *Counter {
	return &Counter{db: db, matcher: NewMatcher(db, opts), opts: opts}
}

// DB returns the guide catalogue the counter classifies against.
func (c *Counter) DB() *GuideDB { return c.db }

// ProcessPair classifies one read pair and updates t. The returned class
// is the pair's final classification: the outcome is decided once, after
// any allele calls complete, so a barcode-unique read whose reporter
// alignment scores below threshold is counted as SemiMatch from the start
// rather than being re-booked.
func (c *Counter) ProcessPair(r1, r2 *fastq.Read, t *Tally) MatchClass {
	res := c.matcher.Match(r1.Seq, r2.Seq)
	switch res.Class {
	case NoMatch, DuplicateMatch, DuplicateMatchWoBarcode:
		t.Stats.count(res.Class)
		return res.Class
	case SemiMatch:
		t.Stats.SemiMatch++
		t.Total[res.Guide]++
		if c.opts.CountGuideEdits {
			if call, ok := c.callGuideAllele(res.Guide, r1); ok {
				t.countGuideAllele(res.Guide, call.Allele)
			}
		}
		return SemiMatch
	}

	// Barcode-unique match. Run the calls first, then finalize.
	g := res.Guide
	var (
		guideAllele Allele
		guideCalled bool
	)
	if c.opts.CountGuideEdits || c.opts.CountGuideReporterAlleles {
		var call AlleleCall
		if call, guideCalled = c.callGuideAllele(g, r1); guideCalled {
			guideAllele = call.Allele
		}
	}
	var (
		reporterCall   AlleleCall
		reporterCalled bool
	)
	final := BCMatch
	if c.opts.CountsReporter() {
		if obs, quals, ok := c.matcher.ExtractReporter(r2.Seq, r2.Qual); ok {
			gi := c.db.GuideInfo(g)
			strand, offset := c.db.strandOffset(gi)
			reporterCall = CallAllele(gi.Reporter, obs, quals, strand, offset, c.opts)
			reporterCalled = true
			if reporterCall.LowConfidence(c.opts) {
				final = SemiMatch
			}
		}
	}

	t.Stats.count(final)
	t.Total[g]++
	if c.opts.CountGuideEdits && guideCalled {
		// The spacer edits survive a reporter demotion: the guide itself was
		// still uniquely confirmed.
		t.countGuideAllele(g, guideAllele)
	}
	if final != BCMatch {
		return final
	}
	t.BCMatch[g]++
	if reporterCalled {
		t.countReporterAllele(g, reporterCall.Allele)
		if !reporterCall.Allele.IsWildType() {
			t.Edited[g]++
		}
		if c.opts.CountGuideReporterAlleles && guideCalled {
			t.countJointAllele(g, reporterCall.Allele, guideAllele)
		}
	} else if !c.opts.CountsReporter() && guideCalled && !guideAllele.IsWildType() {
		// No reporter in this run: the edited vector falls back to spacer
		// evidence.
		t.Edited[g]++
	}
	return BCMatch
}

// callGuideAllele calls the spacer allele from the R1 guide window. The
// spacer alignment score is not used for reclassification; only the
// reporter alignment can demote a read.
func (c *Counter) callGuideAllele(g GuideID, r1 *fastq.Read) (AlleleCall, bool) {
	gi := c.db.GuideInfo(g)
	seq, quals, ok := c.matcher.ExtractGuideQual(r1.Seq, r1.Qual, len(gi.Sequence))
	if !ok {
		return AlleleCall{}, false
	}
	strand := 1
	if gi.Strand == -1 {
		strand = -1
	}
	return CallAllele(gi.Sequence, seq, quals, strand, 0, c.opts), true
}
