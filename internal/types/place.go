package types

// Place is a candidate surfaced to the caller. Every field except Relevancy is
// fixed once the candidate has been accepted by the filter.
type Place struct {
	ID        string  `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	// URL is the place's own website.
	URL string `json:"url,omitempty"`
	// WebsiteURL is the Google Maps link. The wire name predates this service.
	WebsiteURL string   `json:"website_url,omitempty"`
	Name       string   `json:"name,omitempty"`
	Type       string   `json:"type,omitempty"`
	Rating     *float64 `json:"rating,omitempty"`
	Relevancy  float64  `json:"relevancy"`
}

// Relevancy is one (candidate id, score) pair produced by the ranker.
type Relevancy struct {
	ID        string  `json:"id"`
	Relevancy float64 `json:"relevancy"`
}

// Relevancies is the structured ranker output.
type Relevancies struct {
	Relevancies []Relevancy `json:"relevancies"`
}

// Location is the requesting user's reference point.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
