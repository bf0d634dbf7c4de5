package mapsurface

import (
	"log/slog"
	"slices"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
)

// Surface is the server-side stand-in for the interactive map. It keeps the capture layer
// and the displayed geometry so clients can redraw after every call.
type Surface struct {
	sessionID string
	state     domain.DrawState
	displayed *domain.FeatureCollection
}

func New(sessionID string) *Surface {
	return &Surface{sessionID: sessionID, state: domain.DrawState{Type: domain.DrawNone}}
}

func (s *Surface) StartCapture(t domain.DrawType) {
	s.state = domain.DrawState{Active: true, Type: t, Points: []domain.Coordinate{}}
	s.displayed = nil
}

func (s *Surface) AddPoint(c domain.Coordinate) {
	if !s.state.Active {
		slog.Debug("map_point_ignored", "session_id", s.sessionID)
		return
	}
	s.state.Points = append(s.state.Points, c)
	s.state.IsDirty = true
}

func (s *Surface) UndoPoint() {
	if n := len(s.state.Points); s.state.Active && n > 0 {
		s.state.Points = s.state.Points[:n-1]
	}
}

func (s *Surface) FinishCapture(g domain.Geometry) {
	fc, err := g.FeatureCollection()
	if err != nil {
		slog.Warn("map_finish_render_failed", "session_id", s.sessionID, "error", err)
	} else {
		s.displayed = &fc
	}
	s.state.Active = false
}

func (s *Surface) ClearCapture() {
	s.state = domain.DrawState{Type: domain.DrawNone}
	s.displayed = nil
}

func (s *Surface) CaptureState() domain.DrawState {
	out := s.state
	out.Points = slices.Clone(s.state.Points)
	return out
}

func (s *Surface) FinishedGeometry() *domain.FeatureCollection {
	if s.displayed == nil {
		return nil
	}
	fc := *s.displayed
	return &fc
}

// SetGeometry displays a stored geometry, e.g. the one of a record opened for edit.
func (s *Surface) SetGeometry(fc domain.FeatureCollection) {
	s.displayed = &fc
}
