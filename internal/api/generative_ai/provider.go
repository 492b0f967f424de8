package generativeAI

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"

	"github.com/FACorreiaa/go-places-chat/app/observability/metrics"
)

// Operation names used for spans and metrics.
const (
	OpDeriveQuery = "derive_query"
	OpRank        = "rank"
	OpNarrate     = "narrate"
)

// Request is a single model call.
type Request struct {
	Operation         string
	SystemInstruction string
	Prompt            string
}

// Provider is the language model surface the chat service relies on.
type Provider interface {
	// GenerateText returns the whole completion.
	GenerateText(ctx context.Context, req Request) (string, error)
	// GenerateTextStream yields completion fragments in arrival order. An
	// error is yielded at most once, as the last element.
	GenerateTextStream(ctx context.Context, req Request) iter.Seq2[string, error]
	// GenerateJSON constrains the completion to schema and decodes it into out.
	GenerateJSON(ctx context.Context, req Request, schema *genai.Schema, out any) error
}

func recordCall(ctx context.Context, operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.Get().LLMCallsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

// decodeJSON parses a structured completion, tolerating a markdown code fence
// around the payload.
func decodeJSON(text string, out any) error {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	if start, end := strings.IndexAny(s, "{["), strings.LastIndexAny(s, "}]"); start > 0 && end > start {
		s = s[start : end+1]
	}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		return fmt.Errorf("malformed structured output: %w", err)
	}
	return nil
}
