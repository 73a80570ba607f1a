package extractor

// Default guard thresholds
const (
	DefaultMaxDepth                = 4
	DefaultMaxCompressionRatio     = 600
	DefaultMinCompressionRatioSize = 500_000_000
	DefaultMinFreeDiskSpace        = 1_000_000_000
)

// Limits holds the thresholds every guard reads
type Limits struct {
	// MaxDepth is the ancestry depth at which nested archives are no longer opened
	MaxDepth int
	// MaxCompressionRatio flags an entry whose uncompressed/packed ratio reaches it
	MaxCompressionRatio int64
	// MinCompressionRatioSize is the uncompressed size below which the ratio is not checked
	MinCompressionRatioSize int64
	// MinFreeDiskSpace is the safety margin kept free on the output volume
	MinFreeDiskSpace int64
	// ExtraExtensions are accepted in addition to the built-in archive extensions
	ExtraExtensions []string
}

func DefaultLimits() Limits {
	return Limits{
		MaxDepth:                DefaultMaxDepth,
		MaxCompressionRatio:     DefaultMaxCompressionRatio,
		MinCompressionRatioSize: DefaultMinCompressionRatioSize,
		MinFreeDiskSpace:        DefaultMinFreeDiskSpace,
	}
}

// withDefaults fills zero values so a partially populated Limits stays safe
func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxDepth <= 0 {
		l.MaxDepth = d.MaxDepth
	}
	if l.MaxCompressionRatio <= 0 {
		l.MaxCompressionRatio = d.MaxCompressionRatio
	}
	if l.MinCompressionRatioSize <= 0 {
		l.MinCompressionRatioSize = d.MinCompressionRatioSize
	}
	if l.MinFreeDiskSpace < 0 {
		l.MinFreeDiskSpace = d.MinFreeDiskSpace
	}
	return l
}
