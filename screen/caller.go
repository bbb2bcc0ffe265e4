package screen

// AlleleCall is the outcome of one alignment-based edit call.
type AlleleCall struct {
	Allele Allele
	// Score is the normalized alignment score, 0-100.
	Score int
}

// LowConfidence reports whether the call falls below the configured
// alignment score threshold. Such calls carry no trustworthy allele.
func (c AlleleCall) LowConfidence(opts Opts) bool { return c.Score < opts.AlignScoreThreshold }

// CallAllele aligns an observed read window against a reference region and
// emits one Edit per substituted position whose observed base quality
// reaches MinEditQuality; lower-quality substitutions are treated as
// reference. quals holds one Phred score per observed base. strand and
// offset translate reference positions into the guide's coordinate frame:
// pos = offset + i on the plus strand, offset - i on the minus strand.
// The call is a pure function of its inputs.
func CallAllele(ref, observed string, quals []int, strand, offset int, opts Opts) AlleleCall {
	from, to := opts.EditedFrom, opts.EditedToBase()
	p := alignGlobal(ref, observed, from, to)
	call := AlleleCall{Score: p.normalizedScore(from, to, len(ref))}

	refPos, obsPos := 0, 0
	for i := 0; i < len(p.ref); i++ {
		r, o := p.ref[i], p.obs[i]
		switch {
		case r != '-' && o != '-':
			if r != o && obsPos < len(quals) && quals[obsPos] >= opts.MinEditQuality {
				pos := offset + refPos
				if strand == -1 {
					pos = offset - refPos
				}
				call.Allele.Edits = append(call.Allele.Edits, Edit{Pos: pos, Ref: r, Alt: o})
			}
			refPos++
			obsPos++
		case r == '-':
			obsPos++
		default:
			refPos++
		}
	}
	call.Allele.normalize()
	return call
}

// strandOffset derives the coordinate frame of reporter-mode calls for g.
// Stranded guides anchor on start_pos and the reporter geometry; unstranded
// guides report positions relative to the targeted base when the
// target-position column is present.
func (db *GuideDB) strandOffset(g *GuideInfo) (strand, offset int) {
	o := db.opts
	switch g.Strand {
	case -1:
		return -1, g.StartPos + o.ReporterLength - o.GuideStartInReporter - 1
	case 1:
		return 1, g.StartPos - (o.ReporterLength - o.GuideStartInReporter - len(g.Sequence))
	}
	if g.TargetPos > 0 {
		return 1, -(g.TargetPos - 1)
	}
	return 1, 0
}
