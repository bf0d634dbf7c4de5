package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
	"github.com/civicatlas/contribution-wizard/internal/core/ports"
)

const (
	msgSelectGeometryFile = "Select a geometry file to continue."
	msgDrawThenFinish     = "Draw a geometry on the map, then press Finish."
	msgEditGeometryFailed = "The existing geometry could not be loaded. You can draw a new one."

	editGeometryFetchTimeout = 20 * time.Second
)

// GeometryFetcher loads a stored geometry for edit-mode preload.
type GeometryFetcher interface {
	FetchGeometry(ctx context.Context, url string) (domain.FeatureCollection, error)
}

// GeometryModeController owns the file/draw toggle and wires the capture machine to the map.
//
// Transition table:
//
//	file -> draw: file input disabled, capture surface shown, edit geometry preloaded.
//	draw -> file: file input enabled, capture surface hidden, capture cleared unless
//	              an edit-mode geometry is pending reload.
type GeometryModeController struct {
	machine   *CaptureMachine
	surface   ports.MapSurface
	fetcher   GeometryFetcher
	notifier  ports.Notifier
	scheduler Scheduler
	guard     sync.Locker

	mode        domain.GeometryMode
	initialized bool
	file        *domain.File

	fileInputEnabled      bool
	captureSurfaceVisible bool

	editGeometryURL     string
	editGeometryLoaded  bool
	editGeometryLoading bool
}

func NewGeometryModeController(
	machine *CaptureMachine,
	surface ports.MapSurface,
	fetcher GeometryFetcher,
	notifier ports.Notifier,
	scheduler Scheduler,
	guard sync.Locker,
) *GeometryModeController {
	if machine == nil {
		machine = NewCaptureMachine()
	}
	if scheduler == nil {
		scheduler = NewGoroutineScheduler()
	}
	return &GeometryModeController{
		machine:          machine,
		surface:          surface,
		fetcher:          fetcher,
		notifier:         notifier,
		scheduler:        scheduler,
		guard:            lockerOrNop(guard),
		mode:             domain.GeomModeFile,
		fileInputEnabled: true,
	}
}

func (c *GeometryModeController) CurrentGeomMode() domain.GeometryMode {
	return c.mode
}

// SetEditGeometry registers the stored geometry of the record being edited.
func (c *GeometryModeController) SetEditGeometry(url string) {
	c.editGeometryURL = url
	c.editGeometryLoaded = false
}

func (c *GeometryModeController) EditGeometryURL() string {
	return c.editGeometryURL
}

// EnsureInitialized applies the currently selected mode once.
func (c *GeometryModeController) EnsureInitialized() {
	if c.initialized {
		return
	}
	c.SetGeomMode(c.mode)
}

func (c *GeometryModeController) SetGeomMode(mode domain.GeometryMode) {
	c.initialized = true
	switch mode {
	case domain.GeomModeDraw:
		c.mode = domain.GeomModeDraw
		c.fileInputEnabled = false
		c.captureSurfaceVisible = true
		if c.shouldPreloadEditGeometry() {
			c.preloadEditGeometry()
		}
	default:
		c.mode = domain.GeomModeFile
		c.fileInputEnabled = true
		c.captureSurfaceVisible = false
		if !c.editGeometryPending() {
			c.resetCapture()
		}
	}
}

// editGeometryPending reports whether a stored geometry is still the one that will be kept.
func (c *GeometryModeController) editGeometryPending() bool {
	return c.editGeometryURL != "" && c.machine.Finished() == nil
}

func (c *GeometryModeController) shouldPreloadEditGeometry() bool {
	if c.fetcher == nil || !c.editGeometryPending() {
		return false
	}
	if c.editGeometryLoaded || c.editGeometryLoading {
		return false
	}
	return !c.machine.State().Active
}

func (c *GeometryModeController) preloadEditGeometry() {
	url := c.editGeometryURL
	c.editGeometryLoading = true

	c.scheduler.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), editGeometryFetchTimeout)
		defer cancel()
		fc, err := c.fetcher.FetchGeometry(ctx, url)

		c.guard.Lock()
		defer c.guard.Unlock()
		c.editGeometryLoading = false
		if err != nil {
			slog.Warn("edit_geometry_preload_failed", "url", url, "error", err)
			c.notify(msgEditGeometryFailed, domain.NoticeWarning)
			return
		}
		if c.editGeometryURL != url || c.mode != domain.GeomModeDraw || c.machine.State().Active || c.machine.Finished() != nil {
			return
		}
		if c.surface != nil {
			c.surface.SetGeometry(fc)
		}
		c.editGeometryLoaded = true
	})
}

func (c *GeometryModeController) resetCapture() {
	c.machine.Clear()
	if c.surface != nil {
		c.surface.ClearCapture()
	}
	c.editGeometryLoaded = false
}

// SelectFile sets or, with nil, removes the geometry file.
func (c *GeometryModeController) SelectFile(file *domain.File) {
	if file.Empty() {
		c.file = nil
		return
	}
	copied := *file
	c.file = &copied
}

func (c *GeometryModeController) SelectedFile() *domain.File {
	return c.file
}

func (c *GeometryModeController) HasGeometry() bool {
	switch c.mode {
	case domain.GeomModeFile:
		if !c.file.Empty() {
			return true
		}
	case domain.GeomModeDraw:
		if c.surface != nil && c.surface.FinishedGeometry() != nil {
			return true
		}
		if c.machine.Finished() != nil {
			return true
		}
	}
	// Edit mode with the stored geometry left unchanged.
	return c.editGeometryURL != ""
}

// ValidateStep2 is the single gate for the geometry step.
func (c *GeometryModeController) ValidateStep2() bool {
	if c.HasGeometry() {
		return true
	}
	if c.mode == domain.GeomModeDraw {
		c.notify(msgDrawThenFinish, domain.NoticeWarning)
	} else {
		c.notify(msgSelectGeometryFile, domain.NoticeWarning)
	}
	return false
}

// GeometryForSubmit returns the geometry to upload, or a none source when unchanged.
func (c *GeometryModeController) GeometryForSubmit() domain.GeometrySource {
	switch c.mode {
	case domain.GeomModeFile:
		if !c.file.Empty() {
			copied := *c.file
			return domain.GeometrySource{Kind: domain.GeometrySourceFile, File: &copied}
		}
	case domain.GeomModeDraw:
		if g := c.machine.Finished(); g != nil {
			return domain.GeometrySource{Kind: domain.GeometrySourceDraw, Geometry: g}
		}
	}
	return domain.GeometrySource{Kind: domain.GeometrySourceNone}
}

func (c *GeometryModeController) StartCapture(t domain.DrawType) error {
	if c.mode != domain.GeomModeDraw {
		return domain.WrapError(domain.ErrValidation, "start capture", fmt.Errorf("geometry mode is %s", c.mode))
	}
	if err := c.machine.Start(t); err != nil {
		return domain.WrapError(domain.ErrValidation, "start capture", err)
	}
	c.editGeometryLoaded = false
	if c.surface != nil {
		c.surface.StartCapture(t)
	}
	return nil
}

func (c *GeometryModeController) AddPoint(coord domain.Coordinate) error {
	if err := c.machine.AddPoint(coord); err != nil {
		return err
	}
	if c.surface != nil {
		c.surface.AddPoint(coord)
	}
	return nil
}

func (c *GeometryModeController) UndoPoint() bool {
	if !c.machine.UndoLast() {
		return false
	}
	if c.surface != nil {
		c.surface.UndoPoint()
	}
	return true
}

func (c *GeometryModeController) FinishCapture() (domain.Geometry, error) {
	g, err := c.machine.Finish()
	if err != nil {
		return domain.Geometry{}, err
	}
	if c.surface != nil {
		c.surface.FinishCapture(g)
	}
	return g, nil
}

func (c *GeometryModeController) CancelCapture() bool {
	if !c.machine.Cancel() {
		return false
	}
	if c.surface != nil {
		c.surface.ClearCapture()
	}
	c.editGeometryLoaded = false
	return true
}

func (c *GeometryModeController) ClearCapture() {
	c.resetCapture()
}

// Teardown drops every capture artifact; used when the wizard resets or closes.
func (c *GeometryModeController) Teardown() {
	c.resetCapture()
	c.file = nil
	c.mode = domain.GeomModeFile
	c.initialized = false
	c.fileInputEnabled = true
	c.captureSurfaceVisible = false
	c.editGeometryURL = ""
	c.editGeometryLoading = false
}

type GeometryView struct {
	Mode                  domain.GeometryMode `json:"mode"`
	FileName              string              `json:"file_name,omitempty"`
	FileInputEnabled      bool                `json:"file_input_enabled"`
	CaptureSurfaceVisible bool                `json:"capture_surface_visible"`
	Draw                  domain.DrawState    `json:"draw"`
	CanFinish             bool                `json:"can_finish"`
	Finished              *domain.Geometry    `json:"finished,omitempty"`
	HasGeometry           bool                `json:"has_geometry"`
	EditGeometryURL       string              `json:"edit_geometry_url,omitempty"`
	EditGeometryLoading   bool                `json:"edit_geometry_loading,omitempty"`
}

func (c *GeometryModeController) View() GeometryView {
	view := GeometryView{
		Mode:                  c.mode,
		FileInputEnabled:      c.fileInputEnabled,
		CaptureSurfaceVisible: c.captureSurfaceVisible,
		Draw:                  c.machine.State(),
		CanFinish:             c.machine.CanFinish(),
		Finished:              c.machine.Finished(),
		HasGeometry:           c.HasGeometry(),
		EditGeometryURL:       c.editGeometryURL,
		EditGeometryLoading:   c.editGeometryLoading,
	}
	if file := c.SelectedFile(); file != nil {
		view.FileName = file.Name
	}
	return view
}

func (c *GeometryModeController) notify(message string, level domain.NoticeLevel) {
	if c.notifier != nil {
		c.notifier.Notify(message, level)
	}
}
