package chat

import (
	"context"
	"strings"

	"golang.org/x/text/unicode/norm"

	generativeAI "github.com/FACorreiaa/go-places-chat/internal/api/generative_ai"
	"github.com/FACorreiaa/go-places-chat/internal/types"
)

const rewriteSearchQueryInstruction = "Using the conversation history, capture the user's intent and return a search query that is more likely to yield relevant locations."

// QueryDeriver turns a conversation into a single places search query.
type QueryDeriver struct {
	llm generativeAI.Provider
}

func NewQueryDeriver(llm generativeAI.Provider) *QueryDeriver {
	return &QueryDeriver{llm: llm}
}

// Derive asks the model for a query. Failures are not retried.
func (d *QueryDeriver) Derive(ctx context.Context, messages []types.Message) (string, error) {
	text, err := d.llm.GenerateText(ctx, generativeAI.Request{
		Operation:         generativeAI.OpDeriveQuery,
		SystemInstruction: rewriteSearchQueryInstruction,
		Prompt:            "Extract a google maps search query from the messages overall. Reply with the query only.\n\n" + types.Transcript(messages),
	})
	if err != nil {
		return "", types.NewTurnError(types.KindModelInvocationFailure, "failed to derive search query", err)
	}

	query := cleanQuery(text)
	if query == "" {
		return "", types.NewTurnError(types.KindModelInvocationFailure, "model returned an empty search query", nil)
	}
	return query, nil
}

// cleanQuery keeps the first non-blank line, drops wrapping quotes and
// normalises to NFC.
func cleanQuery(text string) string {
	var line string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	line = strings.TrimSpace(strings.Trim(line, "\"'`*"))
	return norm.NFC.String(line)
}
