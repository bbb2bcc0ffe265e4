package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/editcount/screen"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

func TestDeriveSampleName(t *testing.T) {
	expect.EQ(t, deriveSampleName("/data/sampleA_R1.fastq.gz"), "sampleA")
	expect.EQ(t, deriveSampleName("sampleA_R1.fastq"), "sampleA")
	expect.EQ(t, deriveSampleName("sampleA.fastq"), "sampleA")
}

func TestFilteredName(t *testing.T) {
	expect.EQ(t, filteredName("/data/sampleA_R1.fastq.gz"), "sampleA_R1_filtered.fastq.gz")
	expect.EQ(t, filteredName("sampleA_R2.fastq"), "sampleA_R2_filtered.fastq.gz")
}

const (
	testGuideCSV = `name,sequence,barcode,Reporter
g1,ACGTACGT,TTAA,ACGTACGT
g2,GGGGAAAA,AAGG,GGGGAAAA
`
	// R1 reads carry <anchor><guide>; R2 reads carry <revcomp
	// barcode><revcomp reporter window>.
	testR1FASTQ = `@read1/1
GGAAAGGACGTACGT
+
IIIIIIIIIIIIIII
@read2/1
GGAAAGGACGTACGT
+
IIIIIIIIIIIIIII
@read3/1
GGAAAGGACGTACGT
+
IIIIIIIIIIIIIII
@read4/1
GGAAAGGTTTTTTTT
+
IIIIIIIIIIIIIII
`
	testR2FASTQ = `@read1/2
TTAAACGTACGT
+
IIIIIIIIIIII
@read2/2
TTAAACGTACAT
+
IIIIIIIIIIII
@read3/2
GGGGACGTACGT
+
IIIIIIIIIIII
@read4/2
TTAAACGTACGT
+
IIIIIIIIIIII
`
)

func testOpts() screen.Opts {
	opts := screen.DefaultOpts
	opts.EditedFrom = 'C'
	opts.GuideStartSeq = "GGAAAGG"
	opts.ReporterLength = 8
	opts.GuideStartInReporter = 0
	opts.CountGuideEdits = true
	opts.CountReporterEdits = true
	opts.CountGuideReporterAlleles = true
	return opts
}

func testWriteInputs(t *testing.T, dir string) countFlags {
	flags := countFlags{
		r1:          filepath.Join(dir, "s1_R1.fastq"),
		r2:          filepath.Join(dir, "s1_R2.fastq"),
		guidePath:   filepath.Join(dir, "guides.csv"),
		outputDir:   filepath.Join(dir, "out"),
		sampleName:  "s1",
		parallelism: 2,
	}
	require.NoError(t, ioutil.WriteFile(flags.r1, []byte(testR1FASTQ), 0644))
	require.NoError(t, ioutil.WriteFile(flags.r2, []byte(testR2FASTQ), 0644))
	require.NoError(t, ioutil.WriteFile(flags.guidePath, []byte(testGuideCSV), 0644))
	require.NoError(t, os.MkdirAll(flags.outputDir, 0755))
	return flags
}

func readOutput(t *testing.T, dir, name string) string {
	data, err := ioutil.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(data)
}

func TestRun(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	flags := testWriteInputs(t, tempDir)

	require.NoError(t, run(ctx, flags, testOpts()))

	// read1: barcode-confirmed wild type; read2: barcode-confirmed with the
	// reporter edit; read3: sequence-only match; read4: no match.
	expect.EQ(t, readOutput(t, flags.outputDir, "counts.tsv"),
		"name\ts1\ng1\t3\ng2\t0\n")
	expect.EQ(t, readOutput(t, flags.outputDir, "bcmatch_counts.tsv"),
		"name\ts1\ng1\t2\ng2\t0\n")
	expect.EQ(t, readOutput(t, flags.outputDir, "edited_counts.tsv"),
		"name\ts1\ng1\t1\ng2\t0\n")
	expect.EQ(t, readOutput(t, flags.outputDir, "edit_counts.tsv"),
		"guide\tedit\ts1\ng1\t1:C>T\t1\n")
	expect.EQ(t, readOutput(t, flags.outputDir, "allele_counts.tsv"),
		"guide\tallele\ts1\ng1\t\t1\ng1\t1:C>T\t1\n")
	expect.EQ(t, readOutput(t, flags.outputDir, "guide_edit_counts.tsv"),
		"guide\tedit\ts1\n")
	expect.EQ(t, readOutput(t, flags.outputDir, "guide_reporter_allele_counts.tsv"),
		"guide\treporter_allele\tguide_allele\ts1\ng1\t1:C>T\t\t1\n")
	expect.EQ(t, readOutput(t, flags.outputDir, "mapping_stats.txt"),
		"Read count with\n"+
			"Unique guide match without barcode:\t1\n"+
			"Unique guide match with barcode:\t2\n"+
			"No match:\t1\n"+
			"Duplicate match with barcode:\t0\n"+
			"No match with barcode & Duplicate match w/o barcode:\t0\n")
}

func TestRunWithQualityFilter(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	flags := testWriteInputs(t, tempDir)

	opts := testOpts()
	opts.MinAvgQuality = 30
	require.NoError(t, run(ctx, flags, opts))

	// The filtered copies are materialized next to the outputs.
	_, err := os.Stat(filepath.Join(flags.outputDir, "s1_R1_filtered.fastq.gz"))
	expect.NoError(t, err)
	_, err = os.Stat(filepath.Join(flags.outputDir, "s1_R2_filtered.fastq.gz"))
	expect.NoError(t, err)
	// All test reads pass, so the counts are unchanged.
	expect.EQ(t, readOutput(t, flags.outputDir, "counts.tsv"),
		"name\ts1\ng1\t3\ng2\t0\n")
}

func TestRunKeepIntermediate(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	flags := testWriteInputs(t, tempDir)

	opts := testOpts()
	opts.KeepIntermediate = true
	require.NoError(t, run(ctx, flags, opts))

	dump := readOutput(t, flags.outputDir, "s1_R1_nomatch.fastq")
	expect.EQ(t, dump, "@read4/1\nGGAAAGGTTTTTTTT\n+\nIIIIIIIIIIIIIII\n")
	dump = readOutput(t, flags.outputDir, "s1_R2_semimatch.fastq")
	expect.EQ(t, dump, "@read3/2\nGGGGACGTACGT\n+\nIIIIIIIIIIII\n")
	for _, name := range []string{
		"s1_R1_duplicate.fastq", "s1_R2_duplicate.fastq",
		"s1_R1_duplicate_wo_barcode.fastq", "s1_R2_duplicate_wo_barcode.fastq",
	} {
		expect.EQ(t, readOutput(t, flags.outputDir, name), "")
	}
}

func TestRunMalformedGuides(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	flags := testWriteInputs(t, tempDir)
	require.NoError(t, ioutil.WriteFile(flags.guidePath, []byte("name\ng1\n"), 0644))
	expect.True(t, run(ctx, flags, testOpts()) != nil)
}
