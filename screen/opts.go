package screen

// Opts collects the run parameters of the counting engine. A single Opts
// value is constructed in main and passed, read-only, to every component.
type Opts struct {
	// EditedFrom is the base targeted by the editor, and EditedTo the base it
	// is converted to. Comparisons between reads and guides treat a
	// (EditedFrom -> EditedTo) substitution as a match ("masked equality").
	EditedFrom byte
	EditedTo   byte

	// BarcodeLength is the length of the guide barcode found at the start of
	// R2 (before reverse complementing).
	BarcodeLength int
	// MatchBarcode enables barcode matching. When false, reads are classified
	// from the guide sequence alone and bcmatch is never reported.
	MatchBarcode bool

	// GuideStartSeq and GuideEndSeq anchor the guide subsequence within R1.
	// With a start anchor, the guide begins immediately after its first
	// occurrence; with an end anchor, the guide ends immediately before it.
	// Exactly one of the two may be nonempty.
	GuideStartSeq string
	GuideEndSeq   string

	// ReporterLength is the length of the reporter window in R2, located
	// right after the barcode. GuideStartInReporter is the 0-based position
	// at which the guide spacer starts within the reporter sequence.
	ReporterLength       int
	GuideStartInReporter int

	// TargetPosCol names the guide-table column holding the 1-based position
	// of the targeted base within the spacer. When present for unstranded
	// guides, reporter edit positions are reported relative to that base.
	TargetPosCol string

	// MinAvgQuality and MinSingleQuality are the Phred thresholds of the
	// quality pre-pass, computed over the first QualTruncateR1/R2 bases of
	// each mate (0 = full read). Both zero disables the pre-pass.
	MinAvgQuality    int
	MinSingleQuality int
	QualTruncateR1   int
	QualTruncateR2   int

	// MinEditQuality is the Phred score an observed base must reach for a
	// substitution at its position to be called as an Edit. Below it, the
	// position is treated as reference.
	MinEditQuality int

	// Feature toggles. CountGuideReporterAlleles implies CountReporterEdits.
	CountGuideEdits           bool
	CountReporterEdits        bool
	CountGuideReporterAlleles bool

	// AlignScoreThreshold is the minimum normalized alignment score (0-100)
	// for a reporter allele call to be trusted. Below it, a barcode-matched
	// read is demoted to semimatch.
	AlignScoreThreshold int

	// KeepIntermediate enables the per-classification FASTQ dumps.
	KeepIntermediate bool
}

// DefaultOpts sets the default values of Opts.
var DefaultOpts = Opts{
	EditedFrom:           'C',
	EditedTo:             0, // derived from EditedFrom unless set
	BarcodeLength:        4,
	MatchBarcode:         true,
	GuideStartSeq:        "GGAAAGGACGAAACACCG",
	ReporterLength:       32,
	GuideStartInReporter: 6,
	TargetPosCol:         "target_pos",
	MinAvgQuality:        0,
	MinSingleQuality:     0,
	MinEditQuality:       30,
	AlignScoreThreshold:  80,
}

// transitionBase maps a base to its transition partner (purine<->purine,
// pyrimidine<->pyrimidine), the product of the corresponding base editor.
func transitionBase(b byte) byte {
	switch b {
	case 'A':
		return 'G'
	case 'G':
		return 'A'
	case 'C':
		return 'T'
	case 'T':
		return 'C'
	}
	return b
}

// CountsReporter reports whether the run records reporter alleles.
func (o Opts) CountsReporter() bool {
	return o.CountReporterEdits || o.CountGuideReporterAlleles
}

// EditedToBase returns the configured edited-to base, deriving it from
// EditedFrom when unset.
func (o Opts) EditedToBase() byte {
	if o.EditedTo != 0 {
		return o.EditedTo
	}
	return transitionBase(o.EditedFrom)
}
