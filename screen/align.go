package screen

// Substitution-scoring global alignment used by the allele caller. The one
// twist over a textbook Needleman-Wunsch is the scoring matrix: a position
// where the reference carries the edited-from base and the read the
// edited-to base scores as a match, so the intended edit class never drags
// the alignment score down.
const (
	alnMatch    = 5
	alnMismatch = -4
	alnGap      = -20
)

// basesMatch reports masked equality of a single reference/observed base
// pair.
func basesMatch(ref, obs, from, to byte) bool {
	return ref == obs || (ref == from && obs == to)
}

// alignedPair is a global alignment of an observed read window against a
// reference region. The two strings have equal length; '-' marks a gap.
type alignedPair struct {
	ref, obs string
}

// alignGlobal aligns obs against ref. Ties prefer the diagonal, then the
// reference gap, which keeps the traceback deterministic.
func alignGlobal(ref, obs string, from, to byte) alignedPair {
	n, m := len(ref), len(obs)
	const (
		traceDiag = byte('d')
		traceUp   = byte('u')
		traceLeft = byte('l')
	)
	score := make([][]int, n+1)
	trace := make([][]byte, n+1)
	for i := 0; i <= n; i++ {
		score[i] = make([]int, m+1)
		trace[i] = make([]byte, m+1)
	}
	for i := 1; i <= n; i++ {
		score[i][0] = i * alnGap
		trace[i][0] = traceUp
	}
	for j := 1; j <= m; j++ {
		score[0][j] = j * alnGap
		trace[0][j] = traceLeft
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			sub := alnMismatch
			if basesMatch(ref[i-1], obs[j-1], from, to) {
				sub = alnMatch
			}
			best, dir := score[i-1][j-1]+sub, traceDiag
			if up := score[i-1][j] + alnGap; up > best {
				best, dir = up, traceUp
			}
			if left := score[i][j-1] + alnGap; left > best {
				best, dir = left, traceLeft
			}
			score[i][j], trace[i][j] = best, dir
		}
	}

	alnLen := 0
	for i, j := n, m; i > 0 || j > 0; alnLen++ {
		switch trace[i][j] {
		case traceDiag:
			i, j = i-1, j-1
		case traceUp:
			i--
		default:
			j--
		}
	}
	refBuf := make([]byte, alnLen)
	obsBuf := make([]byte, alnLen)
	for i, j, k := n, m, alnLen-1; i > 0 || j > 0; k-- {
		switch trace[i][j] {
		case traceDiag:
			refBuf[k], obsBuf[k] = ref[i-1], obs[j-1]
			i, j = i-1, j-1
		case traceUp:
			refBuf[k], obsBuf[k] = ref[i-1], '-'
			i--
		default:
			refBuf[k], obsBuf[k] = '-', obs[j-1]
			j--
		}
	}
	return alignedPair{ref: string(refBuf), obs: string(obsBuf)}
}

// normalizedScore is the percentage (0-100) of reference positions aligned
// to a masked-equal observed base.
func (p alignedPair) normalizedScore(from, to byte, refLen int) int {
	if refLen == 0 {
		return 0
	}
	matched := 0
	for i := 0; i < len(p.ref); i++ {
		if p.ref[i] != '-' && p.obs[i] != '-' && basesMatch(p.ref[i], p.obs[i], from, to) {
			matched++
		}
	}
	return matched * 100 / refLen
}
