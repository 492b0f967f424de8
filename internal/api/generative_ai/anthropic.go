package generativeAI

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/FACorreiaa/go-places-chat/pkg/anthropic"
)

var _ Provider = (*AnthropicProvider)(nil)

// AnthropicProvider serves the Provider contract from Claude models. Schemas
// are passed in the system prompt since the messages API has no response
// schema parameter.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	logger      *slog.Logger
}

func NewAnthropicProvider(client anthropic.Client, model string, maxTokens int64, temperature float32, logger *slog.Logger) *AnthropicProvider {
	return &AnthropicProvider{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: float64(temperature),
		logger:      logger,
	}
}

func (p *AnthropicProvider) request(system, prompt string) anthropic.MessageRequest {
	temp := p.temperature
	return anthropic.MessageRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		System:      system,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	}
}

func (p *AnthropicProvider) GenerateText(ctx context.Context, req Request) (string, error) {
	ctx, span := otel.Tracer("GenerativeAI").Start(ctx, "AnthropicGenerateText", trace.WithAttributes(
		attribute.String("llm.operation", req.Operation),
		attribute.String("model", p.model),
	))
	defer span.End()

	resp, err := p.client.CreateMessage(ctx, p.request(req.SystemInstruction, req.Prompt))
	recordCall(ctx, req.Operation, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create message")
		return "", fmt.Errorf("anthropic generate text: %w", err)
	}
	span.SetStatus(codes.Ok, "Message created")
	return resp.Text(), nil
}

func (p *AnthropicProvider) GenerateTextStream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, span := otel.Tracer("GenerativeAI").Start(ctx, "AnthropicGenerateTextStream", trace.WithAttributes(
			attribute.String("llm.operation", req.Operation),
			attribute.String("model", p.model),
		))
		defer span.End()

		for text, err := range p.client.StreamMessage(ctx, p.request(req.SystemInstruction, req.Prompt)) {
			if err != nil {
				recordCall(ctx, req.Operation, err)
				span.RecordError(err)
				span.SetStatus(codes.Error, "Stream failed")
				yield("", fmt.Errorf("anthropic stream text: %w", err))
				return
			}
			if !yield(text, nil) {
				return
			}
		}
		recordCall(ctx, req.Operation, nil)
		span.SetStatus(codes.Ok, "Stream completed")
	}
}

func (p *AnthropicProvider) GenerateJSON(ctx context.Context, req Request, schema *genai.Schema, out any) error {
	ctx, span := otel.Tracer("GenerativeAI").Start(ctx, "AnthropicGenerateJSON", trace.WithAttributes(
		attribute.String("llm.operation", req.Operation),
		attribute.String("model", p.model),
	))
	defer span.End()

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshal response schema: %w", err)
	}
	system := req.SystemInstruction + "\n\nRespond with a single JSON document and nothing else. It must match this JSON schema:\n" + string(schemaJSON)

	resp, err := p.client.CreateMessage(ctx, p.request(system, req.Prompt))
	if err == nil {
		err = decodeJSON(resp.Text(), out)
	}
	recordCall(ctx, req.Operation, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Structured generation failed")
		p.logger.ErrorContext(ctx, "Anthropic structured call failed", slog.String("operation", req.Operation), slog.Any("error", err))
		return fmt.Errorf("anthropic generate json: %w", err)
	}
	span.SetStatus(codes.Ok, "Structured content generated")
	return nil
}
