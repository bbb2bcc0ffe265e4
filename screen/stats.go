package screen

// Stats holds the five run-wide classification counters. The classes are
// mutually exclusive, so for a completed run the counters sum to the number
// of read pairs processed after filtering.
type Stats struct {
	NoMatch                 int64
	SemiMatch               int64
	BCMatch                 int64
	DuplicateMatch          int64
	DuplicateMatchWoBarcode int64
}

// Merge adds the field values of the two Stats objects and creates new
// Stats.
func (s Stats) Merge(o Stats) Stats {
	s.NoMatch += o.NoMatch
	s.SemiMatch += o.SemiMatch
	s.BCMatch += o.BCMatch
	s.DuplicateMatch += o.DuplicateMatch
	s.DuplicateMatchWoBarcode += o.DuplicateMatchWoBarcode
	return s
}

// TotalReads returns the number of read pairs counted across all classes.
func (s Stats) TotalReads() int64 {
	return s.NoMatch + s.SemiMatch + s.BCMatch + s.DuplicateMatch + s.DuplicateMatchWoBarcode
}

func (s *Stats) count(c MatchClass) {
	switch c {
	case NoMatch:
		s.NoMatch++
	case SemiMatch:
		s.SemiMatch++
	case BCMatch:
		s.BCMatch++
	case DuplicateMatch:
		s.DuplicateMatch++
	case DuplicateMatchWoBarcode:
		s.DuplicateMatchWoBarcode++
	}
}
