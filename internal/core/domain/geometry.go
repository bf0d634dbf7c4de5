package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

type Coordinate struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lng) || math.IsNaN(c.Lat) {
		return false
	}
	return c.Lng >= -180 && c.Lng <= 180 && c.Lat >= -90 && c.Lat <= 90
}

type DrawType string

const (
	DrawNone    DrawType = "none"
	DrawLine    DrawType = "line"
	DrawPolygon DrawType = "polygon"
)

// MinPoints is the number of points a capture of this type needs before it can finish.
func (t DrawType) MinPoints() int {
	switch t {
	case DrawLine:
		return 2
	case DrawPolygon:
		return 3
	default:
		return 0
	}
}

func ParseDrawType(raw string) (DrawType, error) {
	switch DrawType(raw) {
	case DrawLine, DrawPolygon:
		return DrawType(raw), nil
	default:
		return DrawNone, fmt.Errorf("%w: %q", ErrInvalidDrawType, raw)
	}
}

// DrawState is a snapshot of an in-progress capture.
type DrawState struct {
	Active  bool         `json:"active"`
	Type    DrawType     `json:"type"`
	Points  []Coordinate `json:"points"`
	IsDirty bool         `json:"is_dirty"`
}

type GeometryType string

const (
	GeometryLineString GeometryType = "LineString"
	GeometryPolygon    GeometryType = "Polygon"
)

// Geometry is a finished capture. Polygon points are stored without the closing point.
type Geometry struct {
	Type   GeometryType `json:"type"`
	Points []Coordinate `json:"points"`
}

func (g Geometry) clone() Geometry {
	points := make([]Coordinate, len(g.Points))
	copy(points, g.Points)
	return Geometry{Type: g.Type, Points: points}
}

// NewGeometry copies points so the result cannot be mutated through the caller's slice.
func NewGeometry(t GeometryType, points []Coordinate) Geometry {
	return Geometry{Type: t, Points: points}.clone()
}

// FeatureCollection is the GeoJSON exchange format of geometries.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string          `json:"type"`
	Geometry   GeoJSONGeometry `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

type GeoJSONGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

func (g Geometry) FeatureCollection() (FeatureCollection, error) {
	var coords any
	switch g.Type {
	case GeometryLineString:
		coords = positions(g.Points)
	case GeometryPolygon:
		ring := positions(g.Points)
		if len(ring) > 0 {
			ring = append(ring, ring[0])
		}
		coords = [][][2]float64{ring}
	default:
		return FeatureCollection{}, fmt.Errorf("unsupported geometry type %q", g.Type)
	}
	raw, err := json.Marshal(coords)
	if err != nil {
		return FeatureCollection{}, fmt.Errorf("marshal coordinates: %w", err)
	}
	return FeatureCollection{
		Type: "FeatureCollection",
		Features: []Feature{{
			Type:       "Feature",
			Geometry:   GeoJSONGeometry{Type: string(g.Type), Coordinates: raw},
			Properties: map[string]any{},
		}},
	}, nil
}

// GeoJSON encodes the geometry as a feature collection document.
func (g Geometry) GeoJSON() ([]byte, error) {
	fc, err := g.FeatureCollection()
	if err != nil {
		return nil, err
	}
	return json.Marshal(fc)
}

func ParseFeatureCollection(data []byte) (FeatureCollection, error) {
	var fc FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return FeatureCollection{}, fmt.Errorf("decode feature collection: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return FeatureCollection{}, fmt.Errorf("unexpected geojson type %q", fc.Type)
	}
	return fc, nil
}

// FirstGeometry extracts the first LineString or Polygon of the collection.
func (fc FeatureCollection) FirstGeometry() (Geometry, error) {
	for _, feature := range fc.Features {
		switch GeometryType(feature.Geometry.Type) {
		case GeometryLineString:
			var coords [][2]float64
			if err := json.Unmarshal(feature.Geometry.Coordinates, &coords); err != nil {
				return Geometry{}, fmt.Errorf("decode linestring: %w", err)
			}
			return Geometry{Type: GeometryLineString, Points: coordinates(coords)}, nil
		case GeometryPolygon:
			var rings [][][2]float64
			if err := json.Unmarshal(feature.Geometry.Coordinates, &rings); err != nil {
				return Geometry{}, fmt.Errorf("decode polygon: %w", err)
			}
			if len(rings) == 0 {
				return Geometry{}, errors.New("polygon without rings")
			}
			ring := rings[0]
			if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
				ring = ring[:len(ring)-1]
			}
			return Geometry{Type: GeometryPolygon, Points: coordinates(ring)}, nil
		}
	}
	return Geometry{}, errors.New("no line or polygon feature")
}

func positions(points []Coordinate) [][2]float64 {
	out := make([][2]float64, 0, len(points))
	for _, p := range points {
		out = append(out, [2]float64{p.Lng, p.Lat})
	}
	return out
}

func coordinates(raw [][2]float64) []Coordinate {
	out := make([]Coordinate, 0, len(raw))
	for _, p := range raw {
		out = append(out, Coordinate{Lng: p[0], Lat: p[1]})
	}
	return out
}
