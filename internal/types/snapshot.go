package types

import (
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/go-places-chat/pkg/places"
)

// CandidateSnapshot is the filtered raw result set of the latest fresh search
// for one session.
type CandidateSnapshot struct {
	SessionID  uuid.UUID      `json:"session_id"`
	Query      string         `json:"query"`
	Location   Location       `json:"location"`
	Candidates []places.Place `json:"candidates"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// SessionSummary describes a session for the session endpoints.
type SessionSummary struct {
	SessionID      uuid.UUID    `json:"session_id"`
	State          SessionState `json:"state"`
	Query          string       `json:"query,omitempty"`
	CandidateCount int          `json:"candidate_count"`
	CreatedAt      *time.Time   `json:"created_at,omitempty"`
	UpdatedAt      *time.Time   `json:"updated_at,omitempty"`
}
