package extractor

// BombVerdict is the outcome of a compression-ratio check
type BombVerdict int

const (
	BombOK BombVerdict = iota
	BombSuspect
)

func (v BombVerdict) String() string {
	if v == BombSuspect {
		return "suspect"
	}
	return "ok"
}

// BombCheck carries the verdict and the ratio it was based on. Computable is
// false when the entry was too small to check or reported no packed size.
type BombCheck struct {
	Verdict    BombVerdict
	Ratio      int64
	Computable bool
}

// BombHeuristic flags entries whose compression ratio suggests a
// decompression bomb
type BombHeuristic struct {
	minSize  int64
	maxRatio int64
}

func NewBombHeuristic(l Limits) BombHeuristic {
	l = l.withDefaults()
	return BombHeuristic{minSize: l.MinCompressionRatioSize, maxRatio: l.MaxCompressionRatio}
}

// Check never flags entries below the size floor, and fails open when the
// packed size is unknown
func (b BombHeuristic) Check(uncompressed, packed int64) BombCheck {
	if uncompressed < b.minSize {
		return BombCheck{Verdict: BombOK}
	}
	if packed <= 0 {
		return BombCheck{Verdict: BombOK}
	}

	ratio := uncompressed / packed
	check := BombCheck{Verdict: BombOK, Ratio: ratio, Computable: true}
	if ratio >= b.maxRatio {
		check.Verdict = BombSuspect
	}
	return check
}
