package types

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// TurnIntent lets the caller force a fresh search or a refinement.
type TurnIntent string

const (
	IntentAuto      TurnIntent = ""
	IntentNewSearch TurnIntent = "new_search"
	IntentRefine    TurnIntent = "refine"
)

// TurnMode is the branch a turn runs through.
type TurnMode string

const (
	ModeFreshSearch TurnMode = "fresh_search"
	ModeRefinement  TurnMode = "refinement"
)

// SessionState is derived from whether a snapshot exists for a session.
type SessionState string

const (
	StateNoSearchYet     SessionState = "no_search_yet"
	StateHasActiveSearch SessionState = "has_active_search"
)

// TurnRequest is one incoming conversational turn.
type TurnRequest struct {
	SessionID           *uuid.UUID  `json:"session_id,omitempty"`
	Intent              TurnIntent  `json:"intent,omitempty"`
	Location            *Location   `json:"location"`
	Messages            []Message   `json:"messages"`
	ProposedLocationIDs []Relevancy `json:"proposed_location_ids,omitempty"`
}

// Validate checks the parts of a request the orchestrator relies on.
func (r TurnRequest) Validate() error {
	if len(r.Messages) == 0 {
		return NewTurnError(KindValidationFailure, "messages must not be empty", nil)
	}
	for i, m := range r.Messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return NewTurnError(KindValidationFailure, fmt.Sprintf("messages[%d]: unknown role %q", i, m.Role), nil)
		}
		if strings.TrimSpace(m.Content) == "" {
			return NewTurnError(KindValidationFailure, fmt.Sprintf("messages[%d]: content must not be empty", i), nil)
		}
	}
	switch r.Intent {
	case IntentAuto, IntentNewSearch, IntentRefine:
	default:
		return NewTurnError(KindValidationFailure, fmt.Sprintf("unknown intent %q", r.Intent), nil)
	}
	if r.Location == nil {
		return NewTurnError(KindValidationFailure, "location is required", nil)
	}
	if r.Location.Latitude < -90 || r.Location.Latitude > 90 || r.Location.Longitude < -180 || r.Location.Longitude > 180 {
		return NewTurnError(KindValidationFailure, "location is out of range", nil)
	}
	return nil
}

// Transcript renders the messages as a single text block, one line per
// message prefixed by its role.
func Transcript(messages []Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}
