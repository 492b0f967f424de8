package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	generativeAI "github.com/FACorreiaa/go-places-chat/internal/api/generative_ai"
	"github.com/FACorreiaa/go-places-chat/internal/types"
)

const refinedNarrationInstruction = `You describe a re-ranked list of places to the user.
Explain briefly why the places are ordered as they are for the user's latest request, and mention notable changes from the previous ranking.
Never quote numeric relevancy scores.`

// NarrationInput is what the narrator describes. Previous is only set on
// refinement turns.
type NarrationInput struct {
	Candidates []types.Place
	Previous   []types.Relevancy
	Transcript string
}

// Narrator streams a human readable description of a candidate list.
type Narrator struct {
	llm generativeAI.Provider
}

func NewNarrator(llm generativeAI.Provider) *Narrator {
	return &Narrator{llm: llm}
}

// Narrate returns a lazy, finite stream of text fragments.
func (n *Narrator) Narrate(ctx context.Context, in NarrationInput) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		req, err := narrationRequest(in)
		if err != nil {
			yield("", err)
			return
		}
		for text, err := range n.llm.GenerateTextStream(ctx, req) {
			if err != nil {
				yield("", types.NewTurnError(types.KindModelInvocationFailure, "failed to narrate places", err))
				return
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

type narratedPlace struct {
	ID     string   `json:"id"`
	Name   string   `json:"name,omitempty"`
	Type   string   `json:"type,omitempty"`
	Rating *float64 `json:"rating,omitempty"`
	Rank   int      `json:"rank,omitempty"`
}

func narrationRequest(in NarrationInput) (generativeAI.Request, error) {
	refined := in.Previous != nil
	listing := make([]narratedPlace, 0, len(in.Candidates))
	for i, p := range in.Candidates {
		np := narratedPlace{ID: p.ID, Name: p.Name, Type: p.Type, Rating: p.Rating}
		if refined {
			np.Rank = i + 1
		}
		listing = append(listing, np)
	}
	placesJSON, err := json.Marshal(listing)
	if err != nil {
		return generativeAI.Request{}, fmt.Errorf("marshal narration places: %w", err)
	}

	if !refined {
		return generativeAI.Request{
			Operation: generativeAI.OpNarrate,
			Prompt:    "Describe the places overall briefly " + string(placesJSON),
		}, nil
	}

	previousRank := rankOrder(in.Previous)
	var b strings.Builder
	b.WriteString("Conversation:\n")
	b.WriteString(in.Transcript)
	b.WriteString("\n\nPlaces, best match first:\n")
	b.Write(placesJSON)
	b.WriteString("\n\nPrevious ranking, best match first (ids):\n")
	b.WriteString(strings.Join(previousRank, ", "))
	return generativeAI.Request{
		Operation:         generativeAI.OpNarrate,
		SystemInstruction: refinedNarrationInstruction,
		Prompt:            b.String(),
	}, nil
}

// rankOrder turns previous scores into an ordering so the model never sees
// the numbers themselves.
func rankOrder(previous []types.Relevancy) []string {
	ordered := make([]types.Relevancy, len(previous))
	copy(ordered, previous)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].Relevancy > ordered[j-1].Relevancy; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	ids := make([]string, len(ordered))
	for i, r := range ordered {
		ids[i] = r.ID
	}
	return ids
}
