package screen

import (
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/compress"
	baseerrors "github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bio/encoding/fastq"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

var (
	// ErrNoReadsAfterFiltering is returned when the quality pre-pass drops
	// every read pair.
	ErrNoReadsAfterFiltering = errors.New("no reads remaining after quality filtering")
	// ErrReadNameMismatch is returned when R1 and R2 disagree on a read name
	// at the same stream position.
	ErrReadNameMismatch = errors.New("R1/R2 read name mismatch")
)

// ReadPassesQuality reports whether a read passes the quality thresholds.
// The mean and minimum Phred quality are computed over the first truncateAt
// bases (0 means the full read).
func ReadPassesQuality(qual string, minAvg, minBase, truncateAt int) bool {
	if minAvg <= 0 && minBase <= 0 {
		return true
	}
	n := len(qual)
	if truncateAt > 0 && truncateAt < n {
		n = truncateAt
	}
	if n == 0 {
		return false
	}
	sum, minQ := 0, int(qual[0])-phredOffset
	for i := 0; i < n; i++ {
		q := int(qual[i]) - phredOffset
		sum += q
		if q < minQ {
			minQ = q
		}
	}
	return sum >= minAvg*n && minQ >= minBase
}

// PairPassesQuality reports whether both mates pass their thresholds
// independently.
func (o Opts) PairPassesQuality(r1, r2 *fastq.Read) bool {
	return ReadPassesQuality(r1.Qual, o.MinAvgQuality, o.MinSingleQuality, o.QualTruncateR1) &&
		ReadPassesQuality(r2.Qual, o.MinAvgQuality, o.MinSingleQuality, o.QualTruncateR2)
}

// readName extracts the mate-invariant part of a FASTQ ID line: the first
// whitespace-delimited token, without the leading '@' and a trailing /1 or
// /2.
func readName(id string) string {
	if strings.HasPrefix(id, "@") {
		id = id[1:]
	}
	if i := strings.IndexByte(id, ' '); i >= 0 {
		id = id[:i]
	}
	if strings.HasSuffix(id, "/1") || strings.HasSuffix(id, "/2") {
		id = id[:len(id)-2]
	}
	return id
}

// PairNamesMatch reports whether two FASTQ ID lines name the same read pair.
func PairNamesMatch(id1, id2 string) bool { return readName(id1) == readName(id2) }

// OpenFASTQ opens a possibly gzipped FASTQ file for reading.
func OpenFASTQ(ctx context.Context, path string) (file.File, io.Reader, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open %s", path)
	}
	var r io.Reader = in.Reader(ctx)
	if u, ok := compress.NewReaderPath(r, in.Name()); ok {
		r = u
	}
	return in, r, nil
}

// FilterPairs streams the (r1Path, r2Path) read pairs, verifies read-name
// concordance at every position, and writes the pairs passing the quality
// thresholds to gzip-compressed copies at outR1Path and outR2Path. It
// returns the number of surviving pairs; zero survivors is
// ErrNoReadsAfterFiltering.
func FilterPairs(ctx context.Context, r1Path, r2Path, outR1Path, outR2Path string, opts Opts) (int, error) {
	in1, r1, err := OpenFASTQ(ctx, r1Path)
	if err != nil {
		return 0, err
	}
	in2, r2, err := OpenFASTQ(ctx, r2Path)
	if err != nil {
		in1.Close(ctx) // nolint: errcheck
		return 0, err
	}

	out1, err := file.Create(ctx, outR1Path)
	if err != nil {
		return 0, errors.Wrapf(err, "create %s", outR1Path)
	}
	out2, err := file.Create(ctx, outR2Path)
	if err != nil {
		return 0, errors.Wrapf(err, "create %s", outR2Path)
	}
	gz1 := gzip.NewWriter(out1.Writer(ctx))
	gz2 := gzip.NewWriter(out2.Writer(ctx))
	w1 := fastq.NewWriter(gz1)
	w2 := fastq.NewWriter(gz2)

	sc := fastq.NewPairScanner(r1, r2, fastq.All)
	var (
		rec1, rec2   fastq.Read
		nIn, nPassed int
	)
	for sc.Scan(&rec1, &rec2) {
		nIn++
		if !PairNamesMatch(rec1.ID, rec2.ID) {
			return 0, errors.Wrapf(ErrReadNameMismatch, "%s vs %s: pair %d reads %q and %q",
				r1Path, r2Path, nIn, rec1.ID, rec2.ID)
		}
		if !opts.PairPassesQuality(&rec1, &rec2) {
			continue
		}
		nPassed++
		if err := w1.Write(&rec1); err != nil {
			return 0, errors.Wrapf(err, "write %s", outR1Path)
		}
		if err := w2.Write(&rec2); err != nil {
			return 0, errors.Wrapf(err, "write %s", outR2Path)
		}
	}
	once := baseerrors.Once{}
	once.Set(sc.Err())
	once.Set(gz1.Close())
	once.Set(gz2.Close())
	once.Set(out1.Close(ctx))
	once.Set(out2.Close(ctx))
	once.Set(in1.Close(ctx))
	once.Set(in2.Close(ctx))
	if err := once.Err(); err != nil {
		return 0, errors.Wrapf(err, "filter %s,%s", r1Path, r2Path)
	}
	if nPassed == 0 {
		return 0, errors.Wrapf(ErrNoReadsAfterFiltering, "%s, %s (%d pairs read)", r1Path, r2Path, nIn)
	}
	log.Printf("Quality filter kept %d of %d read pairs", nPassed, nIn)
	return nPassed, nil
}
