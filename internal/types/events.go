package types

type TurnEventKind int

const (
	// EventFragment carries the cumulative narration after a new fragment.
	EventFragment TurnEventKind = iota
	// EventResult is the terminal payload with the places list.
	EventResult
	// EventEnd marks the end of a fresh-search stream.
	EventEnd
	// EventError replaces every further event of the turn.
	EventError
)

// TurnResponse is the data of a "response" event.
type TurnResponse struct {
	Response string  `json:"response"`
	Places   []Place `json:"places"`
}

// TurnEvent is what the orchestrator writes to the transport channel.
type TurnEvent struct {
	Kind     TurnEventKind
	Response TurnResponse
	Err      error
}
