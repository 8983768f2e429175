package models

import "time"

// Kind identifies what a reading measures.
type Kind string

// KindBPM is a heart rate in beats per minute.
const KindBPM Kind = "bpm"

// Reading is one measurement parsed from a device line.
type Reading struct {
	Kind       Kind      `json:"kind"`
	Value      int       `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
	SessionID  string    `json:"session_id,omitempty"`
}
