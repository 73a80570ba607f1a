package extractor

import "github.com/ZanzyTHEbar/arcx/arcx/report"

// EncryptionLevel classifies how much of an archive could not be read
// because it was encrypted
type EncryptionLevel int

const (
	EncryptionNone EncryptionLevel = iota
	EncryptionPartial
	EncryptionFull
)

func (l EncryptionLevel) String() string {
	switch l {
	case EncryptionPartial:
		return "partial"
	case EncryptionFull:
		return "full"
	default:
		return "none"
	}
}

// ArtifactValue collapses the level to the value stored on the
// encryption-detected artifact; empty for EncryptionNone
func (l EncryptionLevel) ArtifactValue() string {
	switch l {
	case EncryptionPartial:
		return report.EncryptionFileLevel
	case EncryptionFull:
		return report.EncryptionFull
	default:
		return ""
	}
}

type EncryptionState struct {
	HasEncrypted   bool
	FullyEncrypted bool
}

// EncryptionAggregator accumulates per-entry encryption over one archive
type EncryptionAggregator struct {
	state EncryptionState
}

func NewEncryptionAggregator() *EncryptionAggregator {
	return &EncryptionAggregator{state: EncryptionState{FullyEncrypted: true}}
}

func (a *EncryptionAggregator) Observe(encrypted bool) {
	a.state.HasEncrypted = a.state.HasEncrypted || encrypted
	if !encrypted {
		a.state.FullyEncrypted = false
	}
}

func (a *EncryptionAggregator) State() EncryptionState { return a.state }

func (a *EncryptionAggregator) Finalize() EncryptionLevel {
	switch {
	case !a.state.HasEncrypted:
		return EncryptionNone
	case a.state.FullyEncrypted:
		return EncryptionFull
	default:
		return EncryptionPartial
	}
}
