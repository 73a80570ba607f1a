package report

import (
	"github.com/rs/zerolog"
)

// LogSink renders user-visible messages as structured zerolog events
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "ingest-inbox").Logger()}
}

func (s *LogSink) Post(msg Message) {
	var ev *zerolog.Event
	switch msg.Level {
	case LevelError:
		ev = s.logger.Error()
	case LevelWarning:
		ev = s.logger.Warn()
	default:
		ev = s.logger.Info()
	}
	ev.Str("module", msg.Module).
		Str("details", msg.Details).
		Msg(msg.Subject)
}

func (s *LogSink) ContentChanged(ev ContentEvent) {
	s.logger.Info().
		Str("module", ev.Module).
		Int64("item_id", ev.ItemID).
		Int("new_items", ev.NewItems).
		Msg("content changed")
}

func (s *LogSink) DataChanged(ev DataEvent) {
	s.logger.Info().
		Str("module", ev.Module).
		Str("artifact_type", string(ev.ArtifactType)).
		Msg("data changed")
}
