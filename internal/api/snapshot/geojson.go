package snapshot

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/FACorreiaa/go-places-chat/internal/types"
)

// FeatureCollection renders the snapshot's candidates as GeoJSON points.
// Candidates without coordinates are skipped.
func FeatureCollection(s *types.CandidateSnapshot) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(s.Candidates))}
	for _, p := range s.Candidates {
		if p.Location == nil || p.Location.Latitude == nil || p.Location.Longitude == nil {
			continue
		}
		props := map[string]any{
			"name": p.Text(),
		}
		if p.PrimaryType != "" {
			props["type"] = p.PrimaryType
		}
		if p.Rating != nil {
			props["rating"] = *p.Rating
		}
		if p.UserRatingCount != nil {
			props["user_rating_count"] = *p.UserRatingCount
		}
		if p.WebsiteURI != "" {
			props["url"] = p.WebsiteURI
		}
		if p.GoogleMapsURI != "" {
			props["website_url"] = p.GoogleMapsURI
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         p.ID,
			Geometry:   geom.NewPointFlat(geom.XY, []float64{*p.Location.Longitude, *p.Location.Latitude}),
			Properties: props,
		})
	}
	if len(fc.Features) > 0 {
		bounds := geom.NewBounds(geom.XY)
		for _, f := range fc.Features {
			bounds.Extend(f.Geometry)
		}
		fc.BBox = bounds
	}
	return fc
}
