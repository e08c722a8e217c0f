package conversation

import (
	"time"

	"github.com/neurolens/lucid/internal/intent"
)

// DefaultLimit bounds how many turns a session keeps. Older turns are
// evicted first.
const DefaultLimit = 50

// Turn is one question/answer exchange. Once appended it does not change.
type Turn struct {
	SequenceID      int64         `json:"sequence_id"`
	Question        string        `json:"question"`
	Intent          intent.Intent `json:"intent"`
	MatchedTriggers []string      `json:"matched_triggers"`
	Answer          string        `json:"answer"`
	Sources         []string      `json:"sources"`
	Grounded        bool          `json:"grounded"`
	ConfidenceTag   string        `json:"confidence_tag"`
	AskedAt         time.Time     `json:"asked_at"`
}

// Log is a bounded, append-only record of turns. It is not goroutine-safe;
// the owning session serializes access.
type Log struct {
	limit int
	next  int64
	turns []Turn
}

// NewLog creates a log holding at most limit turns. Zero or negative means
// unbounded.
func NewLog(limit int) *Log {
	return &Log{limit: limit, next: 1}
}

// Append records a turn, assigning its sequence id and timestamp. When the
// log is full the oldest turn is evicted; sequence ids keep increasing and
// are never reused, so exported histories stay unambiguous.
func (l *Log) Append(t Turn) Turn {
	t.SequenceID = l.next
	l.next++
	t.AskedAt = time.Now().UTC()
	t.MatchedTriggers = copyStrings(t.MatchedTriggers)
	t.Sources = copyStrings(t.Sources)

	if l.limit > 0 && len(l.turns) >= l.limit {
		n := copy(l.turns, l.turns[1:])
		l.turns = l.turns[:n]
	}
	l.turns = append(l.turns, t)
	return t
}

// History returns the retained turns, oldest first. The returned slice is
// the caller's to keep; later mutations of the log do not affect it.
func (l *Log) History() []Turn {
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Clear drops all retained turns. Sequence numbering continues from where
// it left off.
func (l *Log) Clear() {
	l.turns = nil
}

// Len reports how many turns are currently retained.
func (l *Log) Len() int {
	return len(l.turns)
}

func copyStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
