package main

// edit-count tallies a pooled base-editing screen: it classifies paired
// sequencing reads against a guide catalogue, calls nucleotide edits via a
// substitution-aware alignment, and writes per-guide and per-(guide,allele)
// count tables.
//
// Example:
//
//    edit-count -r1 sample_R1.fastq.gz -r2 sample_R2.fastq.gz \
//        -guides guides.csv -output-dir counts/ \
//        -count-guide-edits -count-reporter-edits

import (
	"context"
	"flag"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/bio/encoding/fastq"
	"github.com/grailbio/editcount/screen"
)

// countFlags collects the options set via cmdline flags.
type countFlags struct {
	r1, r2      string
	guidePath   string
	outputDir   string
	sampleName  string
	parallelism int
}

// deriveSampleName turns an R1 filename into the sample column name, the
// same way the count tables are keyed downstream.
func deriveSampleName(r1Path string) string {
	name := filepath.Base(r1Path)
	name = strings.TrimSuffix(name, ".gz")
	name = strings.TrimSuffix(name, ".fastq")
	return strings.Replace(name, "_R1", "", 1)
}

type pairReq struct {
	r1, r2 fastq.Read
}

// countPairs streams the read-pair files through parallel workers. Each
// worker owns a private Tally; the per-shard tallies are merged by
// pointwise addition at the end. R1/R2 pairing is positional and preserved
// inside each request, so sharding cannot split a pair.
func countPairs(ctx context.Context, counter *screen.Counter, r1Path, r2Path string, flags countFlags, opts screen.Opts) (*screen.Tally, error) {
	in1, r1, err := screen.OpenFASTQ(ctx, r1Path)
	if err != nil {
		return nil, err
	}
	in2, r2, err := screen.OpenFASTQ(ctx, r2Path)
	if err != nil {
		in1.Close(ctx) // nolint: errcheck
		return nil, err
	}

	var dumps *diagnosticDumps
	if opts.KeepIntermediate {
		if dumps, err = newDiagnosticDumps(ctx, flags.outputDir, flags.sampleName); err != nil {
			return nil, err
		}
	}

	reqCh := make(chan pairReq, 4096)
	tallyCh := make(chan *screen.Tally, flags.parallelism)
	wg := sync.WaitGroup{}
	for i := 0; i < flags.parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tally := screen.NewTally(counter.DB())
			for req := range reqCh {
				class := counter.ProcessPair(&req.r1, &req.r2, tally)
				if dumps != nil {
					dumps.write(class, &req.r1, &req.r2)
				}
			}
			tallyCh <- tally
		}()
	}

	sc := fastq.NewPairScanner(r1, r2, fastq.All)
	var (
		rec1, rec2 fastq.Read
		nRead      int64
		scanErr    error
	)
	for sc.Scan(&rec1, &rec2) {
		nRead++
		if !screen.PairNamesMatch(rec1.ID, rec2.ID) {
			scanErr = errors.E(screen.ErrReadNameMismatch,
				r1Path, r2Path, "pair", nRead, rec1.ID, rec2.ID)
			break
		}
		if nRead%(1024*1024) == 0 {
			log.Printf("%s: %dMi readpairs", r1Path, nRead/(1024*1024))
		}
		reqCh <- pairReq{rec1, rec2}
	}
	close(reqCh)
	wg.Wait()
	close(tallyCh)

	tally := screen.NewTally(counter.DB())
	for t := range tallyCh {
		tally.Merge(t)
	}
	once := errors.Once{}
	once.Set(scanErr)
	once.Set(sc.Err())
	once.Set(in1.Close(ctx))
	once.Set(in2.Close(ctx))
	if dumps != nil {
		once.Set(dumps.close(ctx))
	}
	if err := once.Err(); err != nil {
		return nil, err
	}
	log.Printf("Processed %d read pairs from %s", nRead, r1Path)
	return tally, nil
}

func run(ctx context.Context, flags countFlags, opts screen.Opts) error {
	db, err := screen.LoadGuideTable(ctx, flags.guidePath, opts)
	if err != nil {
		return err
	}

	r1Path, r2Path := flags.r1, flags.r2
	if opts.MinAvgQuality > 0 || opts.MinSingleQuality > 0 {
		// Materializing pre-pass: write filtered copies next to the outputs
		// and count from those.
		filteredR1 := filepath.Join(flags.outputDir, filteredName(flags.r1))
		filteredR2 := filepath.Join(flags.outputDir, filteredName(flags.r2))
		n, err := screen.FilterPairs(ctx, flags.r1, flags.r2, filteredR1, filteredR2, opts)
		if err != nil {
			return err
		}
		log.Printf("%d read pairs pass quality filtering", n)
		r1Path, r2Path = filteredR1, filteredR2
	}

	counter := screen.NewCounter(db, opts)
	tally, err := countPairs(ctx, counter, r1Path, r2Path, flags, opts)
	if err != nil {
		return err
	}
	if err := writeOutputs(ctx, flags, opts, db, tally); err != nil {
		return err
	}
	log.Printf("Stats: %+v (total %d)", tally.Stats, tally.Stats.TotalReads())
	return nil
}

func filteredName(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".gz")
	name = strings.TrimSuffix(name, ".fastq")
	return name + "_filtered.fastq.gz"
}

func main() {
	opts := screen.DefaultOpts
	flags := countFlags{}
	editedFrom := flag.String("edited-base", string(screen.DefaultOpts.EditedFrom), "Base the editor edits from (A, C, G or T).")
	editedTo := flag.String("target-base", "", "Base the editor edits to. Default: the transition partner of -edited-base.")
	flag.StringVar(&flags.r1, "r1", "", "FASTQ file containing R1 reads (optionally gzipped).")
	flag.StringVar(&flags.r2, "r2", "", "FASTQ file containing R2 reads (optionally gzipped).")
	flag.StringVar(&flags.guidePath, "guides", "", "CSV guide catalogue with columns name,sequence[,barcode,strand,start_pos,Reporter].")
	flag.StringVar(&flags.outputDir, "output-dir", ".", "Directory for all output files.")
	flag.StringVar(&flags.sampleName, "name", "", "Sample name used as the count column. Default: derived from the R1 filename.")
	flag.IntVar(&flags.parallelism, "parallelism", runtime.NumCPU(), "Number of classification workers.")
	flag.IntVar(&opts.BarcodeLength, "barcode-length", screen.DefaultOpts.BarcodeLength, "Length of the guide barcode at the start of R2.")
	flag.BoolVar(&opts.MatchBarcode, "match-barcode", screen.DefaultOpts.MatchBarcode, "Require barcode confirmation for bcmatch classification.")
	flag.StringVar(&opts.GuideStartSeq, "guide-start-seq", screen.DefaultOpts.GuideStartSeq, "Adapter immediately preceding the guide in R1.")
	flag.StringVar(&opts.GuideEndSeq, "guide-end-seq", "", "Adapter immediately following the guide in R1. Mutually exclusive with -guide-start-seq.")
	flag.IntVar(&opts.ReporterLength, "reporter-length", screen.DefaultOpts.ReporterLength, "Length of the reporter window in R2.")
	flag.IntVar(&opts.GuideStartInReporter, "guide-start-in-reporter", screen.DefaultOpts.GuideStartInReporter, "0-based position of the guide start within the reporter.")
	flag.StringVar(&opts.TargetPosCol, "target-pos-col", screen.DefaultOpts.TargetPosCol, "Guide-table column holding the 1-based targeted position within the spacer.")
	flag.IntVar(&opts.MinAvgQuality, "min-average-quality", screen.DefaultOpts.MinAvgQuality, "Minimum mean Phred quality per read in the pre-pass. 0 disables.")
	flag.IntVar(&opts.MinSingleQuality, "min-single-quality", screen.DefaultOpts.MinSingleQuality, "Minimum single-base Phred quality per read in the pre-pass. 0 disables.")
	flag.IntVar(&opts.QualTruncateR1, "quality-truncate-r1", 0, "Consider only the first N bases of R1 when quality filtering. 0 = full read.")
	flag.IntVar(&opts.QualTruncateR2, "quality-truncate-r2", 0, "Consider only the first N bases of R2 when quality filtering. 0 = full read.")
	flag.IntVar(&opts.MinEditQuality, "min-edit-quality", screen.DefaultOpts.MinEditQuality, "Minimum Phred quality for a substitution to be called as an edit.")
	flag.BoolVar(&opts.CountGuideEdits, "count-guide-edits", false, "Record edits called on the guide spacer.")
	flag.BoolVar(&opts.CountReporterEdits, "count-reporter-edits", false, "Record reporter alleles for barcode-matched reads.")
	flag.BoolVar(&opts.CountGuideReporterAlleles, "count-guide-reporter-alleles", false, "Record joint (reporter allele, spacer allele) pairs. Implies -count-reporter-edits.")
	flag.IntVar(&opts.AlignScoreThreshold, "align-score-threshold", screen.DefaultOpts.AlignScoreThreshold, "Minimum normalized alignment score (0-100) for a reporter call.")
	flag.BoolVar(&opts.KeepIntermediate, "keep-intermediate", false, "Write per-classification FASTQ dumps.")

	cleanup := grail.Init()
	defer cleanup()
	ctx := vcontext.Background()

	if flags.r1 == "" || flags.r2 == "" || flags.guidePath == "" {
		log.Fatalf("-r1, -r2 and -guides are required")
	}
	if opts.GuideStartSeq != "" && opts.GuideEndSeq != "" {
		log.Fatalf("-guide-start-seq and -guide-end-seq are mutually exclusive")
	}
	if len(*editedFrom) != 1 {
		log.Fatalf("-edited-base must be a single base, got %q", *editedFrom)
	}
	opts.EditedFrom = (*editedFrom)[0]
	if *editedTo != "" {
		if len(*editedTo) != 1 {
			log.Fatalf("-target-base must be a single base, got %q", *editedTo)
		}
		opts.EditedTo = (*editedTo)[0]
	}
	if flags.sampleName == "" {
		flags.sampleName = deriveSampleName(flags.r1)
	}

	if err := run(ctx, flags, opts); err != nil {
		log.Fatalf("edit-count: %v", err)
	}
	log.Printf("All done")
}
