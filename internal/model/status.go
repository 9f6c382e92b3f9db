package model

import "fmt"

// CallStatus tracks a call record's progress through the pipeline.
// Transitions only ever move forward: uploaded → recognized|empty → fixed → ready.
type CallStatus string

const (
	// StatusUploaded means the audio has been downloaded from the portal and
	// pushed to durable storage, with metadata attached.
	StatusUploaded CallStatus = "uploaded"
	// StatusRecognized means speech recognition produced a non-empty dialogue.
	StatusRecognized CallStatus = "recognized"
	// StatusEmpty means recognition finished but no speech was recovered.
	// The record stays eligible for criteria analysis with an empty transcript.
	StatusEmpty CallStatus = "empty"
	// StatusFixed means classification and criteria analysis completed.
	StatusFixed CallStatus = "fixed"
	// StatusReady means entity roll-ups derived from this record are persisted.
	StatusReady CallStatus = "ready"
)

// rank orders statuses along the lifecycle. recognized and empty share a rank
// because they are alternative outcomes of the same stage.
var statusRank = map[CallStatus]int{
	StatusUploaded:   0,
	StatusRecognized: 1,
	StatusEmpty:      1,
	StatusFixed:      2,
	StatusReady:      3,
}

// Valid reports whether s is one of the five lifecycle statuses.
func (s CallStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanTransition reports whether moving from s to next follows the fixed
// forward graph. Staying at the same status is allowed (idempotent re-writes);
// regressions and lateral moves between recognized and empty are not.
func (s CallStatus) CanTransition(next CallStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	if s != next && from == to {
		return false
	}
	return to >= from
}

// ParseCallStatus converts a stored column value into a CallStatus.
func ParseCallStatus(v string) (CallStatus, error) {
	s := CallStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown call status %q", v)
	}
	return s, nil
}
