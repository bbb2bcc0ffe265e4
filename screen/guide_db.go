package screen

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
)

// ErrMalformedGuideTable is returned when the guide catalogue is missing a
// required column or holds an unparseable row.
var ErrMalformedGuideTable = errors.New("malformed guide table")

// GuideID is a dense sequence number (1, 2, 3, ...) assigned to a guide.
// IDs are valid only within one run; the guide name is the stable key at
// component boundaries.
type GuideID int32

const invalidGuideID = GuideID(0)

// GuideInfo stores one row of the guide catalogue, plus the masked forms
// derived from the configured base edit.
type GuideInfo struct {
	// ID is a dense sequence number (1, 2, ...), valid only during this run.
	ID GuideID
	// Name is the unique guide name from the catalogue.
	Name string
	// Sequence is the reference spacer sequence.
	Sequence string
	// Barcode is the guide barcode; empty when barcode matching is off.
	Barcode string
	// MaskedSequence and MaskedBarcode are Sequence and Barcode with every
	// edited-from base rewritten to the edited-to base. They are recomputed
	// by remask whenever the base pair changes.
	MaskedSequence string
	MaskedBarcode  string
	// Strand is +1 or -1 when the catalogue carries strand information, 0
	// otherwise.
	Strand int
	// StartPos is the genomic anchor of a stranded guide.
	StartPos int
	// TargetPos is the 1-based position of the targeted base within the
	// spacer, or 0 when the column is absent.
	TargetPos int
	// Reporter is the flanking reference sequence used for reporter-mode
	// allele calls; empty when reporter counting is off.
	Reporter string
}

func (g *GuideInfo) remask(opts Opts) {
	g.MaskedSequence = opts.Mask(g.Sequence)
	g.MaskedBarcode = opts.Mask(g.Barcode)
}

// GuideDB is the reference catalogue of guides. It is loaded once per run
// and read-only afterwards. Thread compatible.
type GuideDB struct {
	opts Opts

	names  map[string]GuideID
	guides []*GuideInfo // indexed by GuideID; slot 0 is invalid

	// lengths lists the distinct guide sequence lengths, ascending. The
	// matcher tries each one when extracting candidate windows.
	lengths []int

	// bySeq and byBarcode map masked sequences/barcodes to the guides
	// carrying them.
	bySeq     map[string][]GuideID
	byBarcode map[string][]GuideID
}

// NumGuides returns the number of registered guides.
func (db *GuideDB) NumGuides() int { return len(db.guides) - 1 }

// GuideIDRange returns the [low, high) range of valid guide IDs.
func (db *GuideDB) GuideIDRange() (GuideID, GuideID) { return 1, GuideID(len(db.guides)) }

// GuideInfo gets the GuideInfo given an ID. It always returns a non-nil
// info.
//
// REQUIRES: id is valid.
func (db *GuideDB) GuideInfo(id GuideID) *GuideInfo {
	if id == invalidGuideID {
		log.Panicf("invalid guide ID %d", id)
	}
	return db.guides[id]
}

// GuideInfoByName gets GuideInfo given a guide name. It returns nil if the
// guide is not registered.
func (db *GuideDB) GuideInfoByName(name string) *GuideInfo {
	id := db.names[name]
	if id == invalidGuideID {
		return nil
	}
	return db.guides[id]
}

// GuideLengths returns the distinct guide sequence lengths, ascending.
func (db *GuideDB) GuideLengths() []int { return db.lengths }

// MatchSequence returns the guides whose masked spacer equals the masked
// candidate.
func (db *GuideDB) MatchSequence(masked string) []GuideID { return db.bySeq[masked] }

// MatchBarcode returns the guides whose masked barcode equals the masked
// candidate.
func (db *GuideDB) MatchBarcode(masked string) []GuideID { return db.byBarcode[masked] }

var strandNames = map[string]int{"+": 1, "pos": 1, "-": -1, "neg": -1}

// LoadGuideTable reads a CSV guide catalogue. Required columns: "name",
// "sequence"; "barcode" when barcode matching is enabled; "Reporter" when
// reporter counting is enabled. Optional columns: "strand", "start_pos",
// and the configured target-position column.
func LoadGuideTable(ctx context.Context, path string, opts Opts) (*GuideDB, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "open guide table %s", path)
	}
	defer in.Close(ctx) // nolint: errcheck
	db, err := readGuideTable(in.Reader(ctx), opts)
	if err != nil {
		return nil, errors.Wrapf(err, "guide table %s", path)
	}
	log.Printf("Loaded %d guides (%d distinct lengths) from %s", db.NumGuides(), len(db.lengths), path)
	return db, nil
}

func readGuideTable(r io.Reader, opts Opts) (*GuideDB, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedGuideTable, "reading header: %v", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[name] = i
	}
	required := []string{"name", "sequence"}
	if opts.MatchBarcode {
		required = append(required, "barcode")
	}
	if opts.CountsReporter() {
		required = append(required, "Reporter")
	}
	for _, name := range required {
		if _, ok := col[name]; !ok {
			return nil, errors.Wrapf(ErrMalformedGuideTable, "missing required column %q", name)
		}
	}
	get := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	db := &GuideDB{
		opts:      opts,
		names:     map[string]GuideID{},
		guides:    []*GuideInfo{{Name: "invalid"}},
		bySeq:     map[string][]GuideID{},
		byBarcode: map[string][]GuideID{},
	}
	seenLength := map[int]bool{}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedGuideTable, "line %d: %v", line, err)
		}
		g := &GuideInfo{
			ID:       GuideID(len(db.guides)),
			Name:     get(row, "name"),
			Sequence: get(row, "sequence"),
			Barcode:  get(row, "barcode"),
			Reporter: get(row, "Reporter"),
		}
		if g.Name == "" || g.Sequence == "" {
			return nil, errors.Wrapf(ErrMalformedGuideTable, "line %d: empty name or sequence", line)
		}
		if _, ok := db.names[g.Name]; ok {
			return nil, errors.Wrapf(ErrMalformedGuideTable, "line %d: duplicate guide name %q", line, g.Name)
		}
		if s := get(row, "strand"); s != "" {
			strand, ok := strandNames[s]
			if !ok {
				return nil, errors.Wrapf(ErrMalformedGuideTable, "line %d: bad strand %q", line, s)
			}
			g.Strand = strand
		}
		if s := get(row, "start_pos"); s != "" {
			if g.StartPos, err = strconv.Atoi(s); err != nil {
				return nil, errors.Wrapf(ErrMalformedGuideTable, "line %d: bad start_pos %q", line, s)
			}
		}
		if s := get(row, opts.TargetPosCol); opts.TargetPosCol != "" && s != "" {
			if g.TargetPos, err = strconv.Atoi(s); err != nil {
				return nil, errors.Wrapf(ErrMalformedGuideTable, "line %d: bad %s %q", line, opts.TargetPosCol, s)
			}
		}
		g.remask(opts)
		db.names[g.Name] = g.ID
		db.guides = append(db.guides, g)
		db.bySeq[g.MaskedSequence] = append(db.bySeq[g.MaskedSequence], g.ID)
		if opts.MatchBarcode {
			db.byBarcode[g.MaskedBarcode] = append(db.byBarcode[g.MaskedBarcode], g.ID)
		}
		if !seenLength[len(g.Sequence)] {
			seenLength[len(g.Sequence)] = true
			db.lengths = insertLength(db.lengths, len(g.Sequence))
		}
	}
	if db.NumGuides() == 0 {
		return nil, errors.Wrap(ErrMalformedGuideTable, "no guide rows")
	}
	return db, nil
}

func insertLength(lengths []int, l int) []int {
	i := 0
	for i < len(lengths) && lengths[i] < l {
		i++
	}
	lengths = append(lengths, 0)
	copy(lengths[i+1:], lengths[i:])
	lengths[i] = l
	return lengths
}
