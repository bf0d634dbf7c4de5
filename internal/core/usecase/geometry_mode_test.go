package usecase

import (
	"errors"
	"testing"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
)

type geometryHarness struct {
	ctrl      *GeometryModeController
	surface   *surfaceFake
	uploader  *uploaderFake
	notices   *noticeRecorder
	scheduler *queueScheduler
}

func newGeometryHarness() geometryHarness {
	h := geometryHarness{
		surface:   &surfaceFake{},
		uploader:  &uploaderFake{},
		notices:   &noticeRecorder{},
		scheduler: &queueScheduler{},
	}
	h.ctrl = NewGeometryModeController(NewCaptureMachine(), h.surface, h.uploader, h.notices, h.scheduler, nil)
	return h
}

func drawPolygon(t *testing.T, ctrl *GeometryModeController, points []domain.Coordinate) error {
	t.Helper()
	if err := ctrl.StartCapture(domain.DrawPolygon); err != nil {
		t.Fatalf("StartCapture() error = %v", err)
	}
	for _, p := range points {
		if err := ctrl.AddPoint(p); err != nil {
			t.Fatalf("AddPoint() error = %v", err)
		}
	}
	_, err := ctrl.FinishCapture()
	return err
}

func TestGeometryModeFileRequiresSelection(t *testing.T) {
	h := newGeometryHarness()
	h.ctrl.SetGeomMode(domain.GeomModeFile)

	if h.ctrl.ValidateStep2() {
		t.Fatalf("expected validation to fail without file")
	}
	notices := h.notices.Drain()
	if len(notices) != 1 || notices[0].Message != msgSelectGeometryFile {
		t.Fatalf("expected select-file notice, got %+v", notices)
	}

	h.ctrl.SelectFile(&domain.File{Name: "zone.geojson", Data: []byte(`{}`)})
	if !h.ctrl.ValidateStep2() {
		t.Fatalf("expected validation to pass with file")
	}
	src := h.ctrl.GeometryForSubmit()
	if src.Kind != domain.GeometrySourceFile || src.File.Name != "zone.geojson" {
		t.Fatalf("unexpected geometry source %+v", src)
	}
	if view := h.ctrl.View(); view.FileName != "zone.geojson" || !view.FileInputEnabled {
		t.Fatalf("unexpected view %+v", view)
	}

	h.ctrl.SelectFile(nil)
	if h.ctrl.SelectedFile() != nil || h.ctrl.View().FileName != "" {
		t.Fatalf("expected file removed")
	}
}

func TestGeometryModeDrawRequiresFinish(t *testing.T) {
	h := newGeometryHarness()
	h.ctrl.SetGeomMode(domain.GeomModeDraw)

	if err := h.ctrl.StartCapture(domain.DrawPolygon); err != nil {
		t.Fatalf("StartCapture() error = %v", err)
	}
	_ = h.ctrl.AddPoint(square()[0])
	_ = h.ctrl.AddPoint(square()[1])

	if h.ctrl.ValidateStep2() {
		t.Fatalf("unfinished capture must not validate")
	}
	notices := h.notices.Drain()
	if len(notices) != 1 || notices[0].Message != msgDrawThenFinish {
		t.Fatalf("expected draw-then-finish notice, got %+v", notices)
	}
	if h.ctrl.View().FileInputEnabled {
		t.Fatalf("file input must be disabled in draw mode")
	}
}

func TestGeometryModeStartCaptureOnlyInDrawMode(t *testing.T) {
	h := newGeometryHarness()
	err := h.ctrl.StartCapture(domain.DrawLine)
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error in file mode, got %v", err)
	}
}

func TestGeometryModeScenarioPolygonWithFourPoints(t *testing.T) {
	h := newGeometryHarness()
	h.ctrl.SetGeomMode(domain.GeomModeDraw)

	if err := drawPolygon(t, h.ctrl, square()); err != nil {
		t.Fatalf("FinishCapture() error = %v", err)
	}
	if !h.ctrl.ValidateStep2() {
		t.Fatalf("expected step 2 to validate")
	}
	src := h.ctrl.GeometryForSubmit()
	if src.Kind != domain.GeometrySourceDraw || src.Geometry == nil || len(src.Geometry.Points) != 4 {
		t.Fatalf("unexpected geometry source %+v", src)
	}
	if h.surface.FinishedGeometry() == nil {
		t.Fatalf("finished geometry must stay on the map")
	}
}

func TestGeometryModeScenarioPolygonWithTwoPoints(t *testing.T) {
	h := newGeometryHarness()
	h.ctrl.SetGeomMode(domain.GeomModeDraw)

	err := drawPolygon(t, h.ctrl, square()[:2])
	if !errors.Is(err, domain.ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}
	if h.surface.FinishedGeometry() != nil {
		t.Fatalf("map must not hold a geometry")
	}
	if h.ctrl.ValidateStep2() {
		t.Fatalf("expected step 2 to fail")
	}
	if h.ctrl.GeometryForSubmit().Changed() {
		t.Fatalf("nothing should be submitted")
	}
}

func TestGeometryModeSwitchAwayClearsCapture(t *testing.T) {
	h := newGeometryHarness()
	h.ctrl.SetGeomMode(domain.GeomModeDraw)
	_ = h.ctrl.StartCapture(domain.DrawPolygon)
	_ = h.ctrl.AddPoint(square()[0])
	_ = h.ctrl.AddPoint(square()[1])

	h.ctrl.SetGeomMode(domain.GeomModeFile)
	h.ctrl.SetGeomMode(domain.GeomModeDraw)

	state := h.ctrl.View().Draw
	if state.Active || len(state.Points) != 0 {
		t.Fatalf("expected fresh idle capture, got %+v", state)
	}
	if h.surface.FinishedGeometry() != nil || h.ctrl.View().Finished != nil {
		t.Fatalf("no stale geometry expected")
	}
	if h.ctrl.HasGeometry() {
		t.Fatalf("expected no geometry after flick")
	}
}

func TestGeometryModeSwitchAwayKeepsPendingEditGeometry(t *testing.T) {
	h := newGeometryHarness()
	fc, err := domain.NewGeometry(domain.GeometryPolygon, square()).FeatureCollection()
	if err != nil {
		t.Fatalf("FeatureCollection() error = %v", err)
	}
	h.uploader.fetched = fc
	h.ctrl.SetEditGeometry("https://files.test/42/geometry.geojson")

	h.ctrl.SetGeomMode(domain.GeomModeDraw)
	if n := h.scheduler.runPending(); n != 1 {
		t.Fatalf("expected one preload task, got %d", n)
	}
	if h.surface.setCalls != 1 || h.surface.FinishedGeometry() == nil {
		t.Fatalf("expected edit geometry on the map")
	}

	h.ctrl.SetGeomMode(domain.GeomModeFile)
	if h.surface.FinishedGeometry() == nil {
		t.Fatalf("edit geometry must survive a mode flick")
	}
	h.ctrl.SetGeomMode(domain.GeomModeDraw)
	if n := h.scheduler.runPending(); n != 0 {
		t.Fatalf("loaded geometry must not be fetched twice, got %d tasks", n)
	}
	if h.ctrl.GeometryForSubmit().Changed() {
		t.Fatalf("preloaded geometry is not a change")
	}
}

func TestGeometryModePreloadFailureWarnsWithoutBlocking(t *testing.T) {
	h := newGeometryHarness()
	h.uploader.fetchErr = errors.New("gone")
	h.ctrl.SetEditGeometry("https://files.test/42/geometry.geojson")

	h.ctrl.SetGeomMode(domain.GeomModeDraw)
	if h.ctrl.CurrentGeomMode() != domain.GeomModeDraw {
		t.Fatalf("mode switch must not wait for the preload")
	}
	h.scheduler.runPending()

	if h.notices.count(domain.NoticeWarning) != 1 {
		t.Fatalf("expected one warning, got %+v", h.notices.Drain())
	}
	if !h.ctrl.HasGeometry() {
		t.Fatalf("stored geometry still counts in edit mode")
	}
}

func TestGeometryModeEditWithoutInputHasGeometry(t *testing.T) {
	h := newGeometryHarness()
	h.ctrl.SetEditGeometry("https://files.test/42/geometry.geojson")

	if !h.ctrl.HasGeometry() {
		t.Fatalf("expected existing geometry to satisfy step 2")
	}
	if h.ctrl.GeometryForSubmit().Changed() {
		t.Fatalf("expected unchanged geometry")
	}
}

func TestGeometryModeUndoMirrorsSurface(t *testing.T) {
	h := newGeometryHarness()
	h.ctrl.SetGeomMode(domain.GeomModeDraw)
	_ = h.ctrl.StartCapture(domain.DrawLine)

	if h.ctrl.UndoPoint() {
		t.Fatalf("undo without points must report false")
	}
	_ = h.ctrl.AddPoint(square()[0])
	_ = h.ctrl.AddPoint(square()[1])
	if !h.ctrl.UndoPoint() {
		t.Fatalf("expected undo")
	}
	if len(h.surface.CaptureState().Points) != 1 {
		t.Fatalf("surface should mirror undo, got %+v", h.surface.CaptureState())
	}
}

func TestGeometryModeTeardown(t *testing.T) {
	h := newGeometryHarness()
	h.ctrl.SetGeomMode(domain.GeomModeDraw)
	if err := drawPolygon(t, h.ctrl, square()); err != nil {
		t.Fatalf("drawPolygon() error = %v", err)
	}

	h.ctrl.Teardown()
	if h.ctrl.CurrentGeomMode() != domain.GeomModeFile || h.ctrl.HasGeometry() {
		t.Fatalf("teardown should leave an empty file-mode controller")
	}
	if h.surface.FinishedGeometry() != nil {
		t.Fatalf("teardown should clear the map")
	}
}
