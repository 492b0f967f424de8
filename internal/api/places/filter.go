package places

import (
	"github.com/FACorreiaa/go-places-chat/internal/types"
	"github.com/FACorreiaa/go-places-chat/pkg/places"
)

// Rejection reasons, also used as metric labels.
const (
	ReasonAccepted      = "accepted"
	ReasonFewReviews    = "few_reviews"
	ReasonLowRating     = "low_rating"
	ReasonNoCoordinates = "no_coordinates"
	ReasonClosed        = "closed"
)

// Filter decides whether a raw search result is a usable candidate.
type Filter struct {
	MinReviewCount int
	// MinRating is exclusive: a rating equal to it is rejected.
	MinRating      float64
	RequireOpenNow bool
}

func DefaultFilter() Filter {
	return Filter{MinReviewCount: 50, MinRating: 3.0}
}

// Evaluate returns whether p is accepted and the reason when it is not.
func (f Filter) Evaluate(p places.Place) (bool, string) {
	if p.UserRatingCount == nil || *p.UserRatingCount < f.MinReviewCount {
		return false, ReasonFewReviews
	}
	if p.Rating != nil && *p.Rating <= f.MinRating {
		return false, ReasonLowRating
	}
	if p.Location == nil || p.Location.Latitude == nil || p.Location.Longitude == nil {
		return false, ReasonNoCoordinates
	}
	if f.RequireOpenNow && (p.CurrentOpeningHours == nil || p.CurrentOpeningHours.OpenNow == nil || !*p.CurrentOpeningHours.OpenNow) {
		return false, ReasonClosed
	}
	return true, ReasonAccepted
}

func (f Filter) Accept(p places.Place) bool {
	ok, _ := f.Evaluate(p)
	return ok
}

// Apply keeps the accepted records in their original order.
func (f Filter) Apply(raw []places.Place) []places.Place {
	out := make([]places.Place, 0, len(raw))
	for _, p := range raw {
		if f.Accept(p) {
			out = append(out, p)
		}
	}
	return out
}

// ToCandidate converts an accepted raw record. The record must have passed
// the filter, so its coordinates are present.
func ToCandidate(p places.Place, relevancy float64) types.Place {
	return types.Place{
		ID:         p.ID,
		Latitude:   *p.Location.Latitude,
		Longitude:  *p.Location.Longitude,
		URL:        p.WebsiteURI,
		WebsiteURL: p.GoogleMapsURI,
		Name:       p.Text(),
		Type:       p.PrimaryType,
		Rating:     p.Rating,
		Relevancy:  relevancy,
	}
}
