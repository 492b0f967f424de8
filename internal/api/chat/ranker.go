package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"google.golang.org/genai"

	generativeAI "github.com/FACorreiaa/go-places-chat/internal/api/generative_ai"
	placesService "github.com/FACorreiaa/go-places-chat/internal/api/places"
	"github.com/FACorreiaa/go-places-chat/internal/types"
	"github.com/FACorreiaa/go-places-chat/pkg/places"
)

const mapPlacesToRelevancyInstruction = `Using the conversation history, map the places to new relevancy scores.
This should be based on the reviews, perceived value, and the user's preferences.
The relevancy scores should be between 0 and 1, where 1 is the most relevant.
Be critical in your assessment.`

var relevanciesSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"relevancies": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"id":        {Type: genai.TypeString, Description: "Place id, copied verbatim"},
					"relevancy": {Type: genai.TypeNumber, Description: "Relevancy between 0 and 1"},
				},
				Required: []string{"id", "relevancy"},
			},
		},
	},
	Required: []string{"relevancies"},
}

// Ranker scores snapshot candidates against the conversation.
type Ranker struct {
	llm generativeAI.Provider
}

func NewRanker(llm generativeAI.Provider) *Ranker {
	return &Ranker{llm: llm}
}

type rankedPlace struct {
	ID              string   `json:"id"`
	Name            string   `json:"name,omitempty"`
	Type            string   `json:"type,omitempty"`
	Rating          *float64 `json:"rating,omitempty"`
	UserRatingCount *int     `json:"user_rating_count,omitempty"`
}

// Rank returns one score per known candidate id the model mentioned. Unknown
// ids are dropped, duplicates keep their first score and scores are clamped
// to [0,1].
func (r *Ranker) Rank(ctx context.Context, messages []types.Message, candidates []places.Place) ([]types.Relevancy, error) {
	listing := make([]rankedPlace, 0, len(candidates))
	known := make(map[string]struct{}, len(candidates))
	for _, p := range candidates {
		known[p.ID] = struct{}{}
		listing = append(listing, rankedPlace{
			ID:              p.ID,
			Name:            p.Text(),
			Type:            p.PrimaryType,
			Rating:          p.Rating,
			UserRatingCount: p.UserRatingCount,
		})
	}
	placesJSON, err := json.Marshal(listing)
	if err != nil {
		return nil, fmt.Errorf("marshal candidates: %w", err)
	}

	var b strings.Builder
	b.WriteString("Conversation:\n")
	b.WriteString(types.Transcript(messages))
	b.WriteString("\n\nPlaces:\n")
	b.Write(placesJSON)

	var out types.Relevancies
	err = r.llm.GenerateJSON(ctx, generativeAI.Request{
		Operation:         generativeAI.OpRank,
		SystemInstruction: mapPlacesToRelevancyInstruction,
		Prompt:            b.String(),
	}, relevanciesSchema, &out)
	if err != nil {
		return nil, types.NewTurnError(types.KindModelInvocationFailure, "failed to rank places", err)
	}

	seen := make(map[string]struct{}, len(out.Relevancies))
	result := make([]types.Relevancy, 0, len(out.Relevancies))
	for _, rel := range out.Relevancies {
		if _, ok := known[rel.ID]; !ok {
			continue
		}
		if _, dup := seen[rel.ID]; dup {
			continue
		}
		seen[rel.ID] = struct{}{}
		result = append(result, types.Relevancy{ID: rel.ID, Relevancy: clamp01(rel.Relevancy)})
	}
	return result, nil
}

func clamp01(v float64) float64 {
	switch {
	case v != v, v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// ApplyRelevancies builds the refined candidate list: only ids present in
// both the snapshot and the assignment survive, static fields come from the
// snapshot, and the result is sorted by relevancy descending with ties kept in
// assignment order.
func ApplyRelevancies(snapshot []places.Place, assignment []types.Relevancy) []types.Place {
	byID := make(map[string]places.Place, len(snapshot))
	for _, p := range snapshot {
		if _, dup := byID[p.ID]; !dup {
			byID[p.ID] = p
		}
	}

	used := make(map[string]struct{}, len(assignment))
	out := make([]types.Place, 0, len(assignment))
	for _, rel := range assignment {
		raw, ok := byID[rel.ID]
		if !ok {
			continue
		}
		if _, dup := used[rel.ID]; dup {
			continue
		}
		used[rel.ID] = struct{}{}
		out = append(out, placesService.ToCandidate(raw, clamp01(rel.Relevancy)))
	}
	slices.SortStableFunc(out, func(a, b types.Place) int {
		switch {
		case a.Relevancy > b.Relevancy:
			return -1
		case a.Relevancy < b.Relevancy:
			return 1
		}
		return 0
	})
	return out
}
