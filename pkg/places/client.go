package places

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultBaseURL = "https://places.googleapis.com/v1"

// FieldMask lists the place fields requested from Text Search.
var FieldMask = []string{
	"places.id",
	"places.location",
	"places.displayName",
	"places.name",
	"places.primaryType",
	"places.rating",
	"places.userRatingCount",
	"places.googleMapsUri",
	"places.websiteUri",
	"places.currentOpeningHours",
}

// Client performs Google Places API operations.
type Client interface {
	TextSearch(ctx context.Context, req TextSearchRequest) (*TextSearchResponse, error)
}

// TextSearchRequest is the body of a places:searchText call.
type TextSearchRequest struct {
	TextQuery    string        `json:"textQuery"`
	LocationBias *LocationBias `json:"locationBias,omitempty"`
}

// LocationBias biases results towards a circle around the caller.
type LocationBias struct {
	Circle Circle `json:"circle"`
}

// Circle is a center point plus a radius in meters.
type Circle struct {
	Center LatLng  `json:"center"`
	Radius float64 `json:"radius"`
}

// TextSearchResponse is the response from Places Text Search.
type TextSearchResponse struct {
	Places []Place `json:"places"`
}

// Place is a raw place record as returned by the API. Optional fields are
// pointers so that "absent" and "zero" stay distinguishable.
type Place struct {
	ID                  string        `json:"id"`
	Name                string        `json:"name,omitempty"`
	DisplayName         *DisplayName  `json:"displayName,omitempty"`
	PrimaryType         string        `json:"primaryType,omitempty"`
	Rating              *float64      `json:"rating,omitempty"`
	UserRatingCount     *int          `json:"userRatingCount,omitempty"`
	Location            *Location     `json:"location,omitempty"`
	GoogleMapsURI       string        `json:"googleMapsUri,omitempty"`
	WebsiteURI          string        `json:"websiteUri,omitempty"`
	CurrentOpeningHours *OpeningHours `json:"currentOpeningHours,omitempty"`
}

// DisplayName holds the place's localized display name.
type DisplayName struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode,omitempty"`
}

// Location is a place coordinate pair where either half may be missing.
type Location struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// LatLng is a complete coordinate pair.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// OpeningHours carries the current open-now status.
type OpeningHours struct {
	OpenNow *bool `json:"openNow,omitempty"`
}

// Text returns the display name text, or "" when absent.
func (p Place) Text() string {
	if p.DisplayName == nil {
		return ""
	}
	return p.DisplayName.Text
}

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("google places: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient overrides the default http.Client. Use it to plug in an
// oauth2 client for bearer-token or ADC authentication.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithUserProject sets the X-Goog-User-Project header used for quota and
// billing when authenticating with a bearer token.
func WithUserProject(project string) Option {
	return func(c *httpClient) {
		c.userProject = project
	}
}

type httpClient struct {
	apiKey      string
	userProject string
	baseURL     string
	http        *http.Client
}

// NewClient creates a Google Places API client. apiKey may be empty when the
// http.Client supplied through WithHTTPClient authenticates requests itself.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) TextSearch(ctx context.Context, in TextSearchRequest) (*TextSearchResponse, error) {
	ctx, span := otel.Tracer("PlacesClient").Start(ctx, "TextSearch", trace.WithAttributes(
		attribute.String("places.query", in.TextQuery),
		attribute.Bool("places.location_bias", in.LocationBias != nil),
	))
	defer span.End()

	body, err := json.Marshal(in)
	if err != nil {
		span.RecordError(err)
		return nil, eris.Wrap(err, "google places: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchText", bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return nil, eris.Wrap(err, "google places: create request")
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-FieldMask", strings.Join(FieldMask, ","))
	if c.apiKey != "" {
		req.Header.Set("X-Goog-Api-Key", c.apiKey)
	}
	if c.userProject != "" {
		req.Header.Set("X-Goog-User-Project", c.userProject)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, eris.Wrap(err, "google places: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, eris.Wrap(err, "google places: read response")
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
		span.RecordError(statusErr)
		span.SetStatus(codes.Error, "unexpected status")
		return nil, eris.Wrap(statusErr, "google places: text search")
	}

	var result TextSearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		span.RecordError(err)
		return nil, eris.Wrap(err, "google places: unmarshal response")
	}

	span.SetAttributes(attribute.Int("places.count", len(result.Places)))
	span.SetStatus(codes.Ok, "text search completed")
	return &result, nil
}
