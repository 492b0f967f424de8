package places

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-places-chat/app/observability/metrics"
	"github.com/FACorreiaa/go-places-chat/internal/types"
	"github.com/FACorreiaa/go-places-chat/pkg/places"
)

var _ Service = (*ServiceImpl)(nil)

// Service looks up places for a query and returns the accepted raw records.
type Service interface {
	Search(ctx context.Context, query string, near *types.Location) ([]places.Place, error)
}

type ServiceImpl struct {
	logger      *slog.Logger
	client      places.Client
	filter      Filter
	biasRadiusM float64
}

func NewServiceImpl(client places.Client, filter Filter, biasRadiusMeters float64, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:      logger,
		client:      client,
		filter:      filter,
		biasRadiusM: biasRadiusMeters,
	}
}

func (s *ServiceImpl) Search(ctx context.Context, query string, near *types.Location) ([]places.Place, error) {
	ctx, span := otel.Tracer("PlacesService").Start(ctx, "Search", trace.WithAttributes(
		attribute.String("places.query", query),
	))
	defer span.End()

	req := places.TextSearchRequest{TextQuery: query}
	if near != nil && s.biasRadiusM > 0 {
		req.LocationBias = &places.LocationBias{Circle: places.Circle{
			Center: places.LatLng{Latitude: near.Latitude, Longitude: near.Longitude},
			Radius: s.biasRadiusM,
		}}
	}

	start := time.Now()
	resp, err := s.client.TextSearch(ctx, req)
	metrics.Get().PlacesLookupDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "text search failed")
		s.logger.ErrorContext(ctx, "Places text search failed", slog.String("query", query), slog.Any("error", err))
		return nil, types.NewTurnError(types.KindUpstreamLookupFailure, "places lookup failed", err)
	}

	accepted := make([]places.Place, 0, len(resp.Places))
	rejected := make(map[string]int)
	for _, p := range resp.Places {
		ok, reason := s.filter.Evaluate(p)
		metrics.Get().CandidatesFilteredTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", reason)))
		if !ok {
			rejected[reason]++
			continue
		}
		accepted = append(accepted, p)
	}

	s.logger.DebugContext(ctx, "Places filtered",
		slog.String("query", query),
		slog.Int("raw", len(resp.Places)),
		slog.Int("accepted", len(accepted)),
		slog.String("rejected", fmt.Sprint(rejected)),
	)
	span.SetAttributes(attribute.Int("places.raw", len(resp.Places)), attribute.Int("places.accepted", len(accepted)))
	span.SetStatus(codes.Ok, "places found")
	return accepted, nil
}
