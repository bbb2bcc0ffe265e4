package screen

import (
	"sort"

	"github.com/pkg/errors"
)

// ErrInconsistentTable is returned when the parallel arrays built during
// table conversion disagree on length.
var ErrInconsistentTable = errors.New("inconsistent count table")

// Composite aggregation keys. Alleles are keyed by their canonical string
// form so the keys stay comparable; the structured form is rebuilt only at
// the output boundary if ever needed.
type editKey struct {
	guide GuideID
	edit  Edit
}

type alleleKey struct {
	guide  GuideID
	allele string
}

type jointKey struct {
	guide          GuideID
	reporterAllele string
	guideAllele    string
}

// Tally accumulates all per-run counts: the classification counters, the
// three per-guide count vectors, and the sparse edit/allele tables. A Tally
// has a single writer; parallel shards each own a private Tally and are
// combined with Merge.
type Tally struct {
	Stats Stats

	// Per-guide count vectors, indexed by GuideID (slot 0 unused). Total
	// counts every sequence-matched read (bcmatch + semimatch), BCMatch only
	// the barcode-confirmed ones, and Edited the barcode-confirmed reads
	// whose called allele carries at least one edit.
	Total   []int64
	BCMatch []int64
	Edited  []int64

	// GuideEdits counts single edits called on the guide spacer.
	GuideEdits map[editKey]int64
	// ReporterEdits counts single edits called on the reporter.
	ReporterEdits map[editKey]int64
	// Alleles counts whole reporter alleles.
	Alleles map[alleleKey]int64
	// Joint counts (reporter allele, spacer allele) pairs.
	Joint map[jointKey]int64
}

// NewTally creates an empty Tally sized for db.
func NewTally(db *GuideDB) *Tally {
	n := db.NumGuides() + 1
	return &Tally{
		Total:         make([]int64, n),
		BCMatch:       make([]int64, n),
		Edited:        make([]int64, n),
		GuideEdits:    map[editKey]int64{},
		ReporterEdits: map[editKey]int64{},
		Alleles:       map[alleleKey]int64{},
		Joint:         map[jointKey]int64{},
	}
}

// Merge adds o into t pointwise. Aggregation is associative and
// commutative per key, so shard tallies may be merged in any order.
func (t *Tally) Merge(o *Tally) {
	t.Stats = t.Stats.Merge(o.Stats)
	for i := range o.Total {
		t.Total[i] += o.Total[i]
		t.BCMatch[i] += o.BCMatch[i]
		t.Edited[i] += o.Edited[i]
	}
	for k, n := range o.GuideEdits {
		t.GuideEdits[k] += n
	}
	for k, n := range o.ReporterEdits {
		t.ReporterEdits[k] += n
	}
	for k, n := range o.Alleles {
		t.Alleles[k] += n
	}
	for k, n := range o.Joint {
		t.Joint[k] += n
	}
}

func (t *Tally) countGuideAllele(g GuideID, a Allele) {
	for _, e := range a.Edits {
		t.GuideEdits[editKey{g, e}]++
	}
}

func (t *Tally) countReporterAllele(g GuideID, a Allele) {
	t.Alleles[alleleKey{g, a.String()}]++
	for _, e := range a.Edits {
		t.ReporterEdits[editKey{g, e}]++
	}
}

func (t *Tally) countJointAllele(g GuideID, reporter, guide Allele) {
	if reporter.IsWildType() && guide.IsWildType() {
		return
	}
	t.Joint[jointKey{g, reporter.String(), guide.String()}]++
}

// EditCountRow is one finalized (guide, edit) count.
type EditCountRow struct {
	Guide string
	Edit  string
	Count int64
}

// AlleleCountRow is one finalized (guide, allele) count.
type AlleleCountRow struct {
	Guide  string
	Allele string
	Count  int64
}

// JointCountRow is one finalized (guide, reporter allele, spacer allele)
// count.
type JointCountRow struct {
	Guide          string
	ReporterAllele string
	GuideAllele    string
	Count          int64
}

// editRows converts a sparse edit map into name-keyed rows, sorted by
// (guide, edit position, edit) for deterministic output.
func editRows(db *GuideDB, m map[editKey]int64) ([]EditCountRow, error) {
	guides := make([]string, 0, len(m))
	edits := make([]Edit, 0, len(m))
	counts := make([]int64, 0, len(m))
	for k, n := range m {
		guides = append(guides, db.GuideInfo(k.guide).Name)
		edits = append(edits, k.edit)
		counts = append(counts, n)
	}
	if len(guides) != len(edits) || len(edits) != len(counts) {
		return nil, errors.Wrapf(ErrInconsistentTable,
			"guides:%d edits:%d counts:%d", len(guides), len(edits), len(counts))
	}
	rows := make([]EditCountRow, len(guides))
	for i := range guides {
		rows[i] = EditCountRow{Guide: guides[i], Edit: edits[i].String(), Count: counts[i]}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Guide != rows[j].Guide {
			return rows[i].Guide < rows[j].Guide
		}
		return rows[i].Edit < rows[j].Edit
	})
	return rows, nil
}

// GuideEditRows finalizes the spacer (guide, edit) counts.
func (t *Tally) GuideEditRows(db *GuideDB) ([]EditCountRow, error) {
	return editRows(db, t.GuideEdits)
}

// ReporterEditRows finalizes the reporter (guide, edit) counts.
func (t *Tally) ReporterEditRows(db *GuideDB) ([]EditCountRow, error) {
	return editRows(db, t.ReporterEdits)
}

// AlleleRows finalizes the reporter (guide, allele) counts.
func (t *Tally) AlleleRows(db *GuideDB) ([]AlleleCountRow, error) {
	guides := make([]string, 0, len(t.Alleles))
	alleles := make([]string, 0, len(t.Alleles))
	counts := make([]int64, 0, len(t.Alleles))
	for k, n := range t.Alleles {
		guides = append(guides, db.GuideInfo(k.guide).Name)
		alleles = append(alleles, k.allele)
		counts = append(counts, n)
	}
	if len(guides) != len(alleles) || len(alleles) != len(counts) {
		return nil, errors.Wrapf(ErrInconsistentTable,
			"guides:%d alleles:%d counts:%d", len(guides), len(alleles), len(counts))
	}
	rows := make([]AlleleCountRow, len(guides))
	for i := range guides {
		rows[i] = AlleleCountRow{Guide: guides[i], Allele: alleles[i], Count: counts[i]}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Guide != rows[j].Guide {
			return rows[i].Guide < rows[j].Guide
		}
		return rows[i].Allele < rows[j].Allele
	})
	return rows, nil
}

// JointAlleleRows finalizes the (guide, reporter allele, spacer allele)
// counts.
func (t *Tally) JointAlleleRows(db *GuideDB) ([]JointCountRow, error) {
	guides := make([]string, 0, len(t.Joint))
	reporters := make([]string, 0, len(t.Joint))
	spacers := make([]string, 0, len(t.Joint))
	counts := make([]int64, 0, len(t.Joint))
	for k, n := range t.Joint {
		guides = append(guides, db.GuideInfo(k.guide).Name)
		reporters = append(reporters, k.reporterAllele)
		spacers = append(spacers, k.guideAllele)
		counts = append(counts, n)
	}
	if len(guides) != len(reporters) || len(reporters) != len(spacers) || len(spacers) != len(counts) {
		return nil, errors.Wrapf(ErrInconsistentTable,
			"guides:%d reporter_alleles:%d guide_alleles:%d counts:%d",
			len(guides), len(reporters), len(spacers), len(counts))
	}
	rows := make([]JointCountRow, len(guides))
	for i := range guides {
		rows[i] = JointCountRow{
			Guide:          guides[i],
			ReporterAllele: reporters[i],
			GuideAllele:    spacers[i],
			Count:          counts[i],
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Guide != rows[j].Guide {
			return rows[i].Guide < rows[j].Guide
		}
		if rows[i].ReporterAllele != rows[j].ReporterAllele {
			return rows[i].ReporterAllele < rows[j].ReporterAllele
		}
		return rows[i].GuideAllele < rows[j].GuideAllele
	})
	return rows, nil
}
