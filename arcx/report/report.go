// Package report carries the extractor's user-visible output: inbox-style
// messages, content/data change notifications and blackboard artifacts.
package report

import (
	"fmt"
	"sync"
	"time"
)

// Level of a user-visible message
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Message is a user-visible notice tagged with the module that raised it
type Message struct {
	Level    Level
	Module   string
	Subject  string
	Details  string
	PostedAt time.Time
}

// ContentEvent announces that new content was added under an item
type ContentEvent struct {
	Module   string
	ItemID   int64
	NewItems int
}

// DataEvent announces that artifacts of a type were added
type DataEvent struct {
	Module       string
	ArtifactType ArtifactType
}

// ArtifactType identifies a blackboard artifact kind
type ArtifactType string

const (
	ArtifactEncryptionDetected ArtifactType = "TSK_ENCRYPTION_DETECTED"
)

// Encryption kinds recorded as the artifact value
const (
	EncryptionFileLevel = "File-level Encryption"
	EncryptionFull      = "Full Encryption"
)

// Artifact is a classification attached to an item in the case
type Artifact struct {
	ItemID int64
	Type   ArtifactType
	Module string
	Value  string
}

// Sink receives everything the extractor wants surfaced to the user
type Sink interface {
	Post(msg Message)
	ContentChanged(ev ContentEvent)
	DataChanged(ev DataEvent)
}

// Info builds an informational message
func Info(module, subject, details string) Message {
	return Message{Level: LevelInfo, Module: module, Subject: subject, Details: details, PostedAt: time.Now()}
}

// Warning builds a warning message
func Warning(module, subject, details string) Message {
	return Message{Level: LevelWarning, Module: module, Subject: subject, Details: details, PostedAt: time.Now()}
}

// Error builds an error message
func Error(module, subject, details string) Message {
	return Message{Level: LevelError, Module: module, Subject: subject, Details: details, PostedAt: time.Now()}
}

// RecordingSink keeps everything it receives; safe for concurrent use
type RecordingSink struct {
	mu            sync.Mutex
	messages      []Message
	contentEvents []ContentEvent
	dataEvents    []DataEvent
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) Post(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

func (s *RecordingSink) ContentChanged(ev ContentEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contentEvents = append(s.contentEvents, ev)
}

func (s *RecordingSink) DataChanged(ev DataEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataEvents = append(s.dataEvents, ev)
}

// Messages returns a copy of the recorded messages
func (s *RecordingSink) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// MessagesAt returns the recorded messages of one level
func (s *RecordingSink) MessagesAt(level Level) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.messages {
		if m.Level == level {
			out = append(out, m)
		}
	}
	return out
}

func (s *RecordingSink) ContentEvents() []ContentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ContentEvent, len(s.contentEvents))
	copy(out, s.contentEvents)
	return out
}

func (s *RecordingSink) DataEvents() []DataEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DataEvent, len(s.dataEvents))
	copy(out, s.dataEvents)
	return out
}

// MultiSink fans every call out to each sink in order
type MultiSink []Sink

func (m MultiSink) Post(msg Message) {
	for _, s := range m {
		s.Post(msg)
	}
}

func (m MultiSink) ContentChanged(ev ContentEvent) {
	for _, s := range m {
		s.ContentChanged(ev)
	}
}

func (m MultiSink) DataChanged(ev DataEvent) {
	for _, s := range m {
		s.DataChanged(ev)
	}
}
