package snapshot

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-places-chat/pkg/places"
)

func TestFeatureCollection(t *testing.T) {
	s := sampleSnapshot(uuid.New(), "coffee", "p1", "p2")
	s.Candidates = append(s.Candidates, places.Place{ID: "no-location"})

	fc := FeatureCollection(&s)
	require.Len(t, fc.Features, 2)

	data, err := json.Marshal(fc)
	require.NoError(t, err)

	var decoded struct {
		Type     string    `json:"type"`
		BBox     []float64 `json:"bbox"`
		Features []struct {
			ID       string `json:"id"`
			Geometry struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "FeatureCollection", decoded.Type)
	assert.Len(t, decoded.BBox, 4)
	first := decoded.Features[0]
	assert.Equal(t, "p1", first.ID)
	assert.Equal(t, "Point", first.Geometry.Type)
	assert.Equal(t, []float64{-9.1, 38.7}, first.Geometry.Coordinates)
	assert.Equal(t, "Place p1", first.Properties["name"])
	assert.Equal(t, "cafe", first.Properties["type"])
	assert.InDelta(t, 4.4, first.Properties["rating"], 0.0001)
}

func TestFeatureCollection_Empty(t *testing.T) {
	s := sampleSnapshot(uuid.New(), "coffee")
	fc := FeatureCollection(&s)
	assert.Empty(t, fc.Features)
	assert.Nil(t, fc.BBox)
}
