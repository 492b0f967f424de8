//go:build integration

package generativeAI

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if os.Getenv("GOOGLE_GEMINI_API_KEY") == "" {
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func newIntegrationClient(t *testing.T) *AIClient {
	t.Helper()
	client, err := NewAIClient(context.Background(), os.Getenv("GOOGLE_GEMINI_API_KEY"), "gemini-2.0-flash-001", 0.1,
		slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})))
	require.NoError(t, err)
	return client
}

func TestAIClient_GenerateText_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client := newIntegrationClient(t)

	query, err := client.GenerateText(ctx, Request{
		Operation:         OpDeriveQuery,
		SystemInstruction: "Using the conversation history, capture the user's intent and return a search query that is more likely to yield relevant locations.",
		Prompt:            "user: I want a quiet cafe in Porto with good pastries",
	})
	require.NoError(t, err)
	assert.Contains(t, strings.ToLower(query), "porto")
}

func TestAIClient_GenerateTextStream_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	client := newIntegrationClient(t)

	var chunks int
	for text, err := range client.GenerateTextStream(ctx, Request{Operation: OpNarrate, Prompt: "Describe three famous squares in Lisbon briefly."}) {
		require.NoError(t, err)
		if text != "" {
			chunks++
		}
	}
	assert.Greater(t, chunks, 0)
}
