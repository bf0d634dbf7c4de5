package ports

import (
	"context"
	"io"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
)

// SessionProvider resolves the authenticated session of the caller.
type SessionProvider interface {
	Session(ctx context.Context) (*domain.AuthSession, error)
}

// ContributionStore persists and reads contribution records.
type ContributionStore interface {
	CreateRecord(ctx context.Context, fields domain.RecordFields) (string, error)
	PatchRecord(ctx context.Context, id string, fields domain.RecordFields) error
	GetRecord(ctx context.Context, id string) (*domain.ContributionRecord, error)
}

// ArtifactUploader stores artifacts keyed to a record and links them to it.
type ArtifactUploader interface {
	UploadGeometry(ctx context.Context, source domain.GeometrySource, uc domain.UploadContext) (string, error)
	UploadCover(ctx context.Context, file domain.File, uc domain.UploadContext) (string, error)
	UploadMarkdown(ctx context.Context, body []byte, uc domain.UploadContext) (string, error)
	UploadDocument(ctx context.Context, doc domain.DocumentUpload, uc domain.UploadContext) (string, error)
	FetchGeometry(ctx context.Context, url string) (domain.FeatureCollection, error)
	ListDocuments(ctx context.Context, recordID string) ([]domain.StoredDocument, error)
}

// ContributionRepository is the persistence side used by the artifact service and the worker.
type ContributionRepository interface {
	ContributionStore
	SetArtifactURL(ctx context.Context, id string, kind domain.ArtifactKind, url string) error
	SetMarkdownHTMLURL(ctx context.Context, id string, url string) error
	AddDocument(ctx context.Context, recordID string, doc domain.StoredDocument) error
	ListDocuments(ctx context.Context, recordID string) ([]domain.StoredDocument, error)
}

// ObjectStorage stores artifact bytes.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MapSurface is the interactive map used to render and capture geometry.
type MapSurface interface {
	StartCapture(t domain.DrawType)
	AddPoint(c domain.Coordinate)
	UndoPoint()
	FinishCapture(g domain.Geometry)
	ClearCapture()
	CaptureState() domain.DrawState
	FinishedGeometry() *domain.FeatureCollection
	SetGeometry(fc domain.FeatureCollection)
}

// Notifier surfaces user-facing notices. Fire-and-forget.
type Notifier interface {
	Notify(message string, level domain.NoticeLevel)
}

// EventPublisher announces saved contributions to external listeners.
type EventPublisher interface {
	PublishContributionEvent(ctx context.Context, event domain.ContributionEvent) error
}

// EventSubscriber delivers contribution events to a handler until ctx is done.
type EventSubscriber interface {
	SubscribeContributionEvents(ctx context.Context, handler func(context.Context, domain.ContributionEvent) error) error
}

// ImageCompressor normalises cover images. It never fails the caller.
type ImageCompressor interface {
	Compress(file domain.File) domain.File
}

// DocumentInspector reads metadata from supporting documents.
type DocumentInspector interface {
	PageCount(file domain.File) (int, error)
}

// MarkdownRenderer converts a markdown body to HTML.
type MarkdownRenderer interface {
	Render(source []byte) ([]byte, error)
}

// CityResolver maps a request hint (slug, host) to a known city identifier.
type CityResolver interface {
	ResolveCity(hint string) (string, bool)
}
