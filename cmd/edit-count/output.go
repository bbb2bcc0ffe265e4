package main

// Output writing: count matrices and sparse tables as TSV, the run
// statistics as plain text, and the optional per-classification FASTQ
// dumps. Nothing here is written until counting has completed, so a fatal
// error never leaves a partial count table behind.

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/bio/encoding/fastq"
	"github.com/grailbio/editcount/screen"
)

// writeCountMatrix writes one guide x sample count vector, one row per
// guide in catalogue order, with the sample name as the count column
// header.
func writeCountMatrix(ctx context.Context, path string, db *screen.GuideDB, counts []int64, sampleName string) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := tsv.NewWriter(out.Writer(ctx))
	w.WriteString("name")
	w.WriteString(sampleName)
	if err = w.EndLine(); err != nil {
		return err
	}
	min, limit := db.GuideIDRange()
	for id := min; id < limit; id++ {
		w.WriteString(db.GuideInfo(id).Name)
		w.WriteUint32(uint32(counts[id]))
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeEditTable(ctx context.Context, path string, rows []screen.EditCountRow, sampleName string) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := tsv.NewWriter(out.Writer(ctx))
	w.WriteString("guide")
	w.WriteString("edit")
	w.WriteString(sampleName)
	if err = w.EndLine(); err != nil {
		return err
	}
	for _, row := range rows {
		w.WriteString(row.Guide)
		w.WriteString(row.Edit)
		w.WriteUint32(uint32(row.Count))
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeAlleleTable(ctx context.Context, path string, rows []screen.AlleleCountRow, sampleName string) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := tsv.NewWriter(out.Writer(ctx))
	w.WriteString("guide")
	w.WriteString("allele")
	w.WriteString(sampleName)
	if err = w.EndLine(); err != nil {
		return err
	}
	for _, row := range rows {
		w.WriteString(row.Guide)
		w.WriteString(row.Allele)
		w.WriteUint32(uint32(row.Count))
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeJointTable(ctx context.Context, path string, rows []screen.JointCountRow, sampleName string) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := tsv.NewWriter(out.Writer(ctx))
	w.WriteString("guide")
	w.WriteString("reporter_allele")
	w.WriteString("guide_allele")
	w.WriteString(sampleName)
	if err = w.EndLine(); err != nil {
		return err
	}
	for _, row := range rows {
		w.WriteString(row.Guide)
		w.WriteString(row.ReporterAllele)
		w.WriteString(row.GuideAllele)
		w.WriteUint32(uint32(row.Count))
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

// writeMappingStats writes the five classification counters in the layout
// consumed by the downstream QC reports.
func writeMappingStats(ctx context.Context, path string, stats screen.Stats) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := out.Writer(ctx)
	_, err = fmt.Fprintf(w, "Read count with\n"+
		"Unique guide match without barcode:\t%d\n"+
		"Unique guide match with barcode:\t%d\n"+
		"No match:\t%d\n"+
		"Duplicate match with barcode:\t%d\n"+
		"No match with barcode & Duplicate match w/o barcode:\t%d\n",
		stats.SemiMatch, stats.BCMatch, stats.NoMatch,
		stats.DuplicateMatch, stats.DuplicateMatchWoBarcode)
	return err
}

// writeOutputs finalizes the tally and materializes every committed output
// of the run.
func writeOutputs(ctx context.Context, flags countFlags, opts screen.Opts, db *screen.GuideDB, tally *screen.Tally) error {
	join := func(name string) string { return filepath.Join(flags.outputDir, name) }
	if err := writeCountMatrix(ctx, join("counts.tsv"), db, tally.Total, flags.sampleName); err != nil {
		return err
	}
	if err := writeCountMatrix(ctx, join("bcmatch_counts.tsv"), db, tally.BCMatch, flags.sampleName); err != nil {
		return err
	}
	if err := writeCountMatrix(ctx, join("edited_counts.tsv"), db, tally.Edited, flags.sampleName); err != nil {
		return err
	}
	if opts.CountGuideEdits {
		rows, err := tally.GuideEditRows(db)
		if err != nil {
			return err
		}
		if err := writeEditTable(ctx, join("guide_edit_counts.tsv"), rows, flags.sampleName); err != nil {
			return err
		}
	}
	if opts.CountsReporter() {
		editRows, err := tally.ReporterEditRows(db)
		if err != nil {
			return err
		}
		if err := writeEditTable(ctx, join("edit_counts.tsv"), editRows, flags.sampleName); err != nil {
			return err
		}
		alleleRows, err := tally.AlleleRows(db)
		if err != nil {
			return err
		}
		if err := writeAlleleTable(ctx, join("allele_counts.tsv"), alleleRows, flags.sampleName); err != nil {
			return err
		}
	}
	if opts.CountGuideReporterAlleles {
		rows, err := tally.JointAlleleRows(db)
		if err != nil {
			return err
		}
		if err := writeJointTable(ctx, join("guide_reporter_allele_counts.tsv"), rows, flags.sampleName); err != nil {
			return err
		}
	}
	if err := writeMappingStats(ctx, join("mapping_stats.txt"), tally.Stats); err != nil {
		return err
	}
	log.Printf("Wrote count tables to %s", flags.outputDir)
	return nil
}

// diagnosticDumps routes discarded or partially matched read pairs to one
// FASTQ pair per classification bucket. Dumps are a diagnostic side
// channel: their record order is not deterministic under parallel
// classification.
type diagnosticDumps struct {
	mu    sync.Mutex
	files []file.File
	w     map[screen.MatchClass][2]*fastq.Writer
}

var dumpClasses = []screen.MatchClass{
	screen.NoMatch,
	screen.SemiMatch,
	screen.DuplicateMatch,
	screen.DuplicateMatchWoBarcode,
}

func newDiagnosticDumps(ctx context.Context, outputDir, sampleName string) (*diagnosticDumps, error) {
	d := &diagnosticDumps{w: map[screen.MatchClass][2]*fastq.Writer{}}
	for _, class := range dumpClasses {
		var pair [2]*fastq.Writer
		for mate := 0; mate < 2; mate++ {
			name := fmt.Sprintf("%s_R%d_%s.fastq", sampleName, mate+1, class)
			out, err := file.Create(ctx, filepath.Join(outputDir, name))
			if err != nil {
				d.close(ctx) // nolint: errcheck
				return nil, err
			}
			d.files = append(d.files, out)
			pair[mate] = fastq.NewWriter(out.Writer(ctx))
		}
		d.w[class] = pair
	}
	return d, nil
}

func (d *diagnosticDumps) write(class screen.MatchClass, r1, r2 *fastq.Read) {
	pair, ok := d.w[class]
	if !ok {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := pair[0].Write(r1); err != nil {
		log.Error.Printf("diagnostic dump (%s) R1: %v", class, err)
	}
	if err := pair[1].Write(r2); err != nil {
		log.Error.Printf("diagnostic dump (%s) R2: %v", class, err)
	}
}

func (d *diagnosticDumps) close(ctx context.Context) error {
	once := errors.Once{}
	for _, f := range d.files {
		once.Set(f.Close(ctx))
	}
	return once.Err()
}
