package generativeAI

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
)

var _ Provider = (*AIClient)(nil)

// AIClient is the Gemini provider.
type AIClient struct {
	client      *genai.Client
	model       string
	temperature float32
	logger      *slog.Logger
}

// AIClientOption tweaks the underlying genai client config.
type AIClientOption func(*genai.ClientConfig)

// WithBaseURL points the client at another Gemini API endpoint.
func WithBaseURL(baseURL string) AIClientOption {
	return func(c *genai.ClientConfig) {
		c.HTTPOptions.BaseURL = baseURL
	}
}

func NewAIClient(ctx context.Context, apiKey, model string, temperature float32, logger *slog.Logger, opts ...AIClientOption) (*AIClient, error) {
	ctx, span := otel.Tracer("GenerativeAI").Start(ctx, "NewAIClient")
	defer span.End()

	if apiKey == "" {
		err := fmt.Errorf("gemini api key is not set")
		span.RecordError(err)
		span.SetStatus(codes.Error, "API key not set")
		return nil, err
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, o := range opts {
		o(cfg)
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create Gemini client")
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	span.SetStatus(codes.Ok, "AI client created successfully")
	return &AIClient{
		client:      client,
		model:       model,
		temperature: temperature,
		logger:      logger,
	}, nil
}

func (ai *AIClient) config(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(ai.temperature)}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	return cfg
}

func (ai *AIClient) GenerateText(ctx context.Context, req Request) (string, error) {
	ctx, span := otel.Tracer("GenerativeAI").Start(ctx, "GenerateText", trace.WithAttributes(
		attribute.String("llm.operation", req.Operation),
		attribute.Int("prompt.length", len(req.Prompt)),
		attribute.String("model", ai.model),
	))
	defer span.End()

	result, err := ai.client.Models.GenerateContent(ctx, ai.model, genai.Text(req.Prompt), ai.config(req))
	recordCall(ctx, req.Operation, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to generate content")
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	responseText := result.Text()
	span.SetAttributes(attribute.Int("response.length", len(responseText)))
	span.SetStatus(codes.Ok, "Content generated successfully")
	return responseText, nil
}

func (ai *AIClient) GenerateTextStream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, span := otel.Tracer("GenerativeAI").Start(ctx, "GenerateTextStream", trace.WithAttributes(
			attribute.String("llm.operation", req.Operation),
			attribute.Int("prompt.length", len(req.Prompt)),
			attribute.String("model", ai.model),
		))
		defer span.End()

		chunks := 0
		for resp, err := range ai.client.Models.GenerateContentStream(ctx, ai.model, genai.Text(req.Prompt), ai.config(req)) {
			if err != nil {
				recordCall(ctx, req.Operation, err)
				span.RecordError(err)
				span.SetStatus(codes.Error, "Stream failed")
				yield("", fmt.Errorf("gemini stream content: %w", err))
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			chunks++
			if !yield(text, nil) {
				span.SetAttributes(attribute.Int("response.chunks", chunks))
				return
			}
		}
		recordCall(ctx, req.Operation, nil)
		span.SetAttributes(attribute.Int("response.chunks", chunks))
		span.SetStatus(codes.Ok, "Stream completed")
	}
}

func (ai *AIClient) GenerateJSON(ctx context.Context, req Request, schema *genai.Schema, out any) error {
	ctx, span := otel.Tracer("GenerativeAI").Start(ctx, "GenerateJSON", trace.WithAttributes(
		attribute.String("llm.operation", req.Operation),
		attribute.String("model", ai.model),
	))
	defer span.End()

	cfg := ai.config(req)
	cfg.ResponseMIMEType = "application/json"
	cfg.ResponseSchema = schema

	result, err := ai.client.Models.GenerateContent(ctx, ai.model, genai.Text(req.Prompt), cfg)
	if err == nil {
		err = decodeJSON(result.Text(), out)
	}
	recordCall(ctx, req.Operation, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Structured generation failed")
		ai.logger.ErrorContext(ctx, "Gemini structured call failed", slog.String("operation", req.Operation), slog.Any("error", err))
		return fmt.Errorf("gemini generate json: %w", err)
	}
	span.SetStatus(codes.Ok, "Structured content generated")
	return nil
}
