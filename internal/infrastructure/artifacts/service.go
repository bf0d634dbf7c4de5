package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
	"github.com/civicatlas/contribution-wizard/internal/core/ports"
	"github.com/civicatlas/contribution-wizard/internal/infrastructure/resilience"
	"github.com/civicatlas/contribution-wizard/internal/infrastructure/storage/localfs"
)

const (
	geometryObject     = "geometry.geojson"
	markdownObject     = "body.md"
	markdownHTMLObject = "body.html"
	documentsPrefix    = "documents"
)

// Service stores contribution artifacts under <city>/<record>/ and links them to the record.
type Service struct {
	repo      ports.ContributionRepository
	storage   ports.ObjectStorage
	inspector ports.DocumentInspector
	executor  *resilience.Executor
	baseURL   string
}

type Options struct {
	Repository    ports.ContributionRepository
	Storage       ports.ObjectStorage
	Inspector     ports.DocumentInspector
	Executor      *resilience.Executor
	PublicBaseURL string
}

func NewService(opts Options) *Service {
	return &Service{
		repo:      opts.Repository,
		storage:   opts.Storage,
		inspector: opts.Inspector,
		executor:  opts.Executor,
		baseURL:   strings.TrimRight(opts.PublicBaseURL, "/"),
	}
}

func (s *Service) UploadGeometry(ctx context.Context, source domain.GeometrySource, uc domain.UploadContext) (string, error) {
	var data []byte
	switch source.Kind {
	case domain.GeometrySourceFile:
		if source.File.Empty() {
			return "", domain.WrapError(domain.ErrValidation, "upload geometry", errors.New("empty geometry file"))
		}
		data = source.File.Data
	case domain.GeometrySourceDraw:
		if source.Geometry == nil {
			return "", domain.WrapError(domain.ErrValidation, "upload geometry", errors.New("drawn geometry is missing"))
		}
		encoded, err := source.Geometry.GeoJSON()
		if err != nil {
			return "", domain.WrapError(domain.ErrValidation, "upload geometry", err)
		}
		data = encoded
	default:
		return "", domain.WrapError(domain.ErrValidation, "upload geometry", errors.New("no geometry source"))
	}

	url, err := s.save(ctx, recordKey(uc, geometryObject), data)
	if err != nil {
		return "", err
	}
	if err := s.repo.SetArtifactURL(ctx, uc.RecordID, domain.ArtifactGeometry, url); err != nil {
		return "", fmt.Errorf("link geometry: %w", err)
	}
	return url, nil
}

func (s *Service) UploadCover(ctx context.Context, file domain.File, uc domain.UploadContext) (string, error) {
	if file.Empty() {
		return "", domain.WrapError(domain.ErrValidation, "upload cover", errors.New("empty cover"))
	}
	ext := strings.ToLower(filepath.Ext(file.Name))
	if ext == "" {
		ext = ".bin"
	}
	url, err := s.save(ctx, recordKey(uc, "cover"+ext), file.Data)
	if err != nil {
		return "", err
	}
	if err := s.repo.SetArtifactURL(ctx, uc.RecordID, domain.ArtifactCover, url); err != nil {
		return "", fmt.Errorf("link cover: %w", err)
	}
	return url, nil
}

func (s *Service) UploadMarkdown(ctx context.Context, body []byte, uc domain.UploadContext) (string, error) {
	url, err := s.save(ctx, recordKey(uc, markdownObject), body)
	if err != nil {
		return "", err
	}
	if err := s.repo.SetArtifactURL(ctx, uc.RecordID, domain.ArtifactMarkdown, url); err != nil {
		return "", fmt.Errorf("link markdown: %w", err)
	}
	return url, nil
}

func (s *Service) UploadDocument(ctx context.Context, doc domain.DocumentUpload, uc domain.UploadContext) (string, error) {
	if doc.File.Empty() {
		return "", domain.WrapError(domain.ErrValidation, "upload document", errors.New("empty document"))
	}

	pages := 0
	if s.inspector != nil {
		n, err := s.inspector.PageCount(doc.File)
		if err != nil {
			slog.Warn("document_inspect_failed", "record_id", uc.RecordID, "file", doc.File.Name, "error", err)
		} else {
			pages = n
		}
	}

	id := uuid.NewString()
	name := id[:8] + "-" + localfs.SafeSegment(doc.File.Name)
	url, err := s.save(ctx, localfs.Key(uc.City, uc.RecordID, documentsPrefix, name), doc.File.Data)
	if err != nil {
		return "", err
	}

	stored := domain.StoredDocument{
		ID:        id,
		Title:     doc.Title,
		URL:       url,
		Pages:     pages,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.AddDocument(ctx, uc.RecordID, stored); err != nil {
		return "", fmt.Errorf("link document: %w", err)
	}
	return url, nil
}

func (s *Service) FetchGeometry(ctx context.Context, url string) (domain.FeatureCollection, error) {
	raw, err := s.read(ctx, url)
	if err != nil {
		return domain.FeatureCollection{}, err
	}
	fc, err := domain.ParseFeatureCollection(raw)
	if err != nil {
		return domain.FeatureCollection{}, domain.WrapError(domain.ErrValidation, "fetch geometry", err)
	}
	return fc, nil
}

func (s *Service) ListDocuments(ctx context.Context, recordID string) ([]domain.StoredDocument, error) {
	return s.repo.ListDocuments(ctx, recordID)
}

func (s *Service) OpenMarkdown(ctx context.Context, url string) (io.ReadCloser, error) {
	key, err := s.keyFromURL(url)
	if err != nil {
		return nil, err
	}
	return s.storage.Open(ctx, key)
}

func (s *Service) SaveMarkdownHTML(ctx context.Context, recordID, city string, html []byte) (string, error) {
	return s.save(ctx, localfs.Key(city, recordID, markdownHTMLObject), html)
}

func (s *Service) read(ctx context.Context, url string) ([]byte, error) {
	key, err := s.keyFromURL(url)
	if err != nil {
		return nil, err
	}
	open := func(ctx context.Context) ([]byte, error) {
		reader, err := s.storage.Open(ctx, key)
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		raw, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("read object %s: %w", key, err)
		}
		return raw, nil
	}
	if s.executor == nil {
		return open(ctx)
	}

	raw, err := resilience.Call(ctx, s.executor, "storage.open", open)
	if err != nil && resilience.IsCircuitOpen(err) {
		return nil, domain.WrapError(domain.ErrTemporary, "open object", err)
	}
	return raw, err
}

func (s *Service) save(ctx context.Context, key string, data []byte) (string, error) {
	call := func(ctx context.Context) error {
		if err := s.storage.Save(ctx, key, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("save object %s: %w", key, err)
		}
		return nil
	}

	var err error
	if s.executor != nil {
		err = s.executor.Execute(ctx, "storage.save", call, resilience.DomainClassifier)
	} else {
		err = call(ctx)
	}
	if err != nil {
		if resilience.IsCircuitOpen(err) {
			return "", domain.WrapError(domain.ErrTemporary, "save object", err)
		}
		return "", err
	}
	return s.baseURL + "/" + key, nil
}

func (s *Service) keyFromURL(url string) (string, error) {
	key, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok || key == "" {
		return "", domain.WrapError(domain.ErrValidation, "resolve artifact url", fmt.Errorf("url %q is not served by this store", url))
	}
	return key, nil
}

func recordKey(uc domain.UploadContext, object string) string {
	return localfs.Key(uc.City, uc.RecordID, object)
}
