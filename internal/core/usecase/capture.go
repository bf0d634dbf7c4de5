package usecase

import (
	"fmt"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
)

// CaptureMachine tracks one freehand capture session: Idle -> Drawing(type) -> Idle.
// It is synchronous and owned by a single wizard session.
type CaptureMachine struct {
	state    domain.DrawState
	finished *domain.Geometry
}

func NewCaptureMachine() *CaptureMachine {
	return &CaptureMachine{state: idleState()}
}

func idleState() domain.DrawState {
	return domain.DrawState{Type: domain.DrawNone, Points: []domain.Coordinate{}}
}

func (m *CaptureMachine) Start(t domain.DrawType) error {
	if t.MinPoints() == 0 {
		return fmt.Errorf("start capture: %w: %q", domain.ErrInvalidDrawType, t)
	}
	m.state = domain.DrawState{
		Active: true,
		Type:   t,
		Points: []domain.Coordinate{},
	}
	m.finished = nil
	return nil
}

func (m *CaptureMachine) AddPoint(c domain.Coordinate) error {
	if !m.state.Active {
		return domain.ErrCaptureInactive
	}
	if !c.Valid() {
		return domain.WrapError(domain.ErrValidation, "add point", fmt.Errorf("coordinate out of range: %v", c))
	}
	m.state.Points = append(m.state.Points, c)
	m.state.IsDirty = true
	return nil
}

// UndoLast pops the last point. It reports false when there was nothing to undo.
func (m *CaptureMachine) UndoLast() bool {
	if !m.state.Active || len(m.state.Points) == 0 {
		return false
	}
	m.state.Points = m.state.Points[:len(m.state.Points)-1]
	return true
}

// Finish produces the geometry once the type-specific minimum is met.
// Below the minimum the state is left untouched and ErrInsufficientPoints is returned.
func (m *CaptureMachine) Finish() (domain.Geometry, error) {
	if !m.state.Active {
		return domain.Geometry{}, domain.ErrCaptureInactive
	}
	if len(m.state.Points) < m.state.Type.MinPoints() {
		return domain.Geometry{}, fmt.Errorf("%w: %s needs %d, have %d",
			domain.ErrInsufficientPoints, m.state.Type, m.state.Type.MinPoints(), len(m.state.Points))
	}

	geomType := domain.GeometryLineString
	if m.state.Type == domain.DrawPolygon {
		geomType = domain.GeometryPolygon
	}
	g := domain.NewGeometry(geomType, m.state.Points)
	m.finished = &g
	m.state.Active = false
	return domain.NewGeometry(g.Type, g.Points), nil
}

// CanFinish mirrors the precondition of Finish for UI controls.
func (m *CaptureMachine) CanFinish() bool {
	return m.state.Active && len(m.state.Points) >= m.state.Type.MinPoints()
}

func (m *CaptureMachine) Clear() {
	m.state = idleState()
	m.finished = nil
}

// Cancel discards an in-progress capture. It reports false when nothing was being drawn.
func (m *CaptureMachine) Cancel() bool {
	if !m.state.Active {
		return false
	}
	m.state = idleState()
	return true
}

func (m *CaptureMachine) State() domain.DrawState {
	out := m.state
	out.Points = make([]domain.Coordinate, len(m.state.Points))
	copy(out.Points, m.state.Points)
	return out
}

func (m *CaptureMachine) Finished() *domain.Geometry {
	if m.finished == nil {
		return nil
	}
	g := domain.NewGeometry(m.finished.Type, m.finished.Points)
	return &g
}
