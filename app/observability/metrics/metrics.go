package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	ChatTurnsTotal          metric.Int64Counter
	ChatTurnDurationSeconds metric.Float64Histogram
	PlacesLookupDuration    metric.Float64Histogram
	CandidatesFilteredTotal metric.Int64Counter
	LLMCallsTotal           metric.Int64Counter
	SnapshotOperationsTotal metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metrics instruments ONLY ONCE.
// It gets the Meter from the globally configured MeterProvider, so call it
// after tracer.InitTracingAndMetrics when metrics should be exported.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("PlacesChat")
		var err error
		m := &AppMetrics{}

		m.ChatTurnsTotal, err = meter.Int64Counter(
			"chat_turns_total",
			metric.WithDescription("Total number of chat turns by mode and outcome"),
			metric.WithUnit("{turn}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create chat_turns_total: %v", err)
		}

		m.ChatTurnDurationSeconds, err = meter.Float64Histogram(
			"chat_turn_duration_seconds",
			metric.WithDescription("Duration of chat turns in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create chat_turn_duration_seconds: %v", err)
		}

		m.PlacesLookupDuration, err = meter.Float64Histogram(
			"places_lookup_duration_seconds",
			metric.WithDescription("Duration of places text searches in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create places_lookup_duration_seconds: %v", err)
		}

		m.CandidatesFilteredTotal, err = meter.Int64Counter(
			"places_candidates_filtered_total",
			metric.WithDescription("Raw places accepted or rejected by the candidate filter"),
			metric.WithUnit("{place}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create places_candidates_filtered_total: %v", err)
		}

		m.LLMCallsTotal, err = meter.Int64Counter(
			"llm_calls_total",
			metric.WithDescription("Language model calls by operation and outcome"),
			metric.WithUnit("{call}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create llm_calls_total: %v", err)
		}

		m.SnapshotOperationsTotal, err = meter.Int64Counter(
			"snapshot_operations_total",
			metric.WithDescription("Candidate snapshot store operations by operation and outcome"),
			metric.WithUnit("{operation}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create snapshot_operations_total: %v", err)
		}

		appMetrics = m
	})
}

// Get returns the global AppMetrics, initializing it against the current
// MeterProvider on first use.
func Get() *AppMetrics {
	InitAppMetrics()
	return appMetrics
}
