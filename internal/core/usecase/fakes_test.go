package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
)

type noticeRecorder struct {
	mu      sync.Mutex
	notices []domain.Notice
}

func (r *noticeRecorder) Notify(message string, level domain.NoticeLevel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, domain.Notice{Message: message, Level: level})
}

func (r *noticeRecorder) Drain() []domain.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.notices
	r.notices = nil
	return out
}

func (r *noticeRecorder) count(level domain.NoticeLevel) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, notice := range r.notices {
		if notice.Level == level {
			n++
		}
	}
	return n
}

type surfaceFake struct {
	state    domain.DrawState
	finished *domain.FeatureCollection
	setCalls int
}

func (f *surfaceFake) StartCapture(t domain.DrawType) {
	f.state = domain.DrawState{Active: true, Type: t}
	f.finished = nil
}

func (f *surfaceFake) AddPoint(c domain.Coordinate) {
	f.state.Points = append(f.state.Points, c)
	f.state.IsDirty = true
}

func (f *surfaceFake) UndoPoint() {
	if n := len(f.state.Points); n > 0 {
		f.state.Points = f.state.Points[:n-1]
	}
}

func (f *surfaceFake) FinishCapture(g domain.Geometry) {
	fc, err := g.FeatureCollection()
	if err == nil {
		f.finished = &fc
	}
	f.state.Active = false
}

func (f *surfaceFake) ClearCapture() {
	f.state = domain.DrawState{Type: domain.DrawNone}
	f.finished = nil
}

func (f *surfaceFake) CaptureState() domain.DrawState { return f.state }

func (f *surfaceFake) FinishedGeometry() *domain.FeatureCollection { return f.finished }

func (f *surfaceFake) SetGeometry(fc domain.FeatureCollection) {
	f.setCalls++
	f.finished = &fc
}

// queueScheduler holds tasks until the test runs them, outside any session lock.
type queueScheduler struct {
	mu    sync.Mutex
	tasks []func()
}

func (s *queueScheduler) Go(task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
}

func (s *queueScheduler) runPending() int {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()
	for _, task := range tasks {
		task()
	}
	return len(tasks)
}

type sessionProviderFake struct {
	session *domain.AuthSession
	err     error
}

func (f sessionProviderFake) Session(context.Context) (*domain.AuthSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

type storeFake struct {
	nextID    string
	createErr error
	patchErr  error
	records   map[string]*domain.ContributionRecord
	getErr    error

	created []domain.RecordFields
	patches []domain.RecordFields
	calls   []string
}

func (f *storeFake) CreateRecord(_ context.Context, fields domain.RecordFields) (string, error) {
	f.calls = append(f.calls, "create")
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, fields)
	return f.nextID, nil
}

func (f *storeFake) PatchRecord(_ context.Context, _ string, fields domain.RecordFields) error {
	f.calls = append(f.calls, "patch")
	if f.patchErr != nil {
		return f.patchErr
	}
	f.patches = append(f.patches, fields)
	return nil
}

func (f *storeFake) GetRecord(_ context.Context, id string) (*domain.ContributionRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	record, ok := f.records[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrRecordNotFound, "get record", errors.New(id))
	}
	copied := *record
	return &copied, nil
}

type uploaderFake struct {
	geometryErr error
	coverErr    error
	markdownErr error
	documentErr map[string]error
	fetchErr    error
	listErr     error

	fetched   domain.FeatureCollection
	listed    []domain.StoredDocument
	calls     []string
	geometry  []domain.GeometrySource
	covers    []domain.File
	documents []domain.DocumentUpload
}

func (f *uploaderFake) UploadGeometry(_ context.Context, source domain.GeometrySource, _ domain.UploadContext) (string, error) {
	f.calls = append(f.calls, "geometry")
	if f.geometryErr != nil {
		return "", f.geometryErr
	}
	f.geometry = append(f.geometry, source)
	return "https://files.test/geometry.geojson", nil
}

func (f *uploaderFake) UploadCover(_ context.Context, file domain.File, _ domain.UploadContext) (string, error) {
	f.calls = append(f.calls, "cover")
	if f.coverErr != nil {
		return "", f.coverErr
	}
	f.covers = append(f.covers, file)
	return "https://files.test/" + file.Name, nil
}

func (f *uploaderFake) UploadMarkdown(context.Context, []byte, domain.UploadContext) (string, error) {
	f.calls = append(f.calls, "markdown")
	if f.markdownErr != nil {
		return "", f.markdownErr
	}
	return "https://files.test/body.md", nil
}

func (f *uploaderFake) UploadDocument(_ context.Context, doc domain.DocumentUpload, _ domain.UploadContext) (string, error) {
	f.calls = append(f.calls, "document:"+doc.Title)
	if err := f.documentErr[doc.Title]; err != nil {
		return "", err
	}
	f.documents = append(f.documents, doc)
	return "https://files.test/" + doc.File.Name, nil
}

func (f *uploaderFake) FetchGeometry(context.Context, string) (domain.FeatureCollection, error) {
	if f.fetchErr != nil {
		return domain.FeatureCollection{}, f.fetchErr
	}
	return f.fetched, nil
}

func (f *uploaderFake) ListDocuments(context.Context, string) ([]domain.StoredDocument, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listed, nil
}

func (f *uploaderFake) count(prefix string) int {
	n := 0
	for _, call := range f.calls {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

type eventsFake struct {
	events []domain.ContributionEvent
	err    error
}

func (f *eventsFake) PublishContributionEvent(_ context.Context, event domain.ContributionEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type compressorFake struct{}

func (compressorFake) Compress(file domain.File) domain.File {
	return domain.File{Name: strings.TrimSuffix(file.Name, ".png") + ".webp", ContentType: "image/webp", Data: []byte("small")}
}

type nopReadCloser struct{ io.Reader }

func (nopReadCloser) Close() error { return nil }

func square() []domain.Coordinate {
	return []domain.Coordinate{
		{Lng: 4.83, Lat: 45.76},
		{Lng: 4.84, Lat: 45.76},
		{Lng: 4.84, Lat: 45.77},
		{Lng: 4.83, Lat: 45.77},
	}
}
