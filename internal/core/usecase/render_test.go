package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
)

type renderRepoFake struct {
	storeFake
	htmlURLs map[string]string
	linkErr  error
}

func (f *renderRepoFake) SetArtifactURL(context.Context, string, domain.ArtifactKind, string) error {
	return nil
}

func (f *renderRepoFake) SetMarkdownHTMLURL(_ context.Context, id string, url string) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	if f.htmlURLs == nil {
		f.htmlURLs = map[string]string{}
	}
	f.htmlURLs[id] = url
	return nil
}

func (f *renderRepoFake) AddDocument(context.Context, string, domain.StoredDocument) error {
	return nil
}

func (f *renderRepoFake) ListDocuments(context.Context, string) ([]domain.StoredDocument, error) {
	return nil, nil
}

type markdownObjectsFake struct {
	body    string
	openErr error
	opened  []string
	saved   map[string][]byte
}

func (f *markdownObjectsFake) OpenMarkdown(_ context.Context, url string) (io.ReadCloser, error) {
	f.opened = append(f.opened, url)
	if f.openErr != nil {
		return nil, f.openErr
	}
	return nopReadCloser{Reader: bytes.NewBufferString(f.body)}, nil
}

func (f *markdownObjectsFake) SaveMarkdownHTML(_ context.Context, recordID, city string, html []byte) (string, error) {
	if f.saved == nil {
		f.saved = map[string][]byte{}
	}
	f.saved[recordID] = html
	return "https://files.test/" + city + "/" + recordID + "/body.html", nil
}

type rendererFake struct {
	err error
}

func (f rendererFake) Render(source []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte("<p>"), append(bytes.TrimSpace(source), []byte("</p>")...)...), nil
}

func newRenderRepo(record domain.ContributionRecord) *renderRepoFake {
	return &renderRepoFake{storeFake: storeFake{records: map[string]*domain.ContributionRecord{record.ID: &record}}}
}

func TestRenderByIDStoresHTMLAndLinksRecord(t *testing.T) {
	repo := newRenderRepo(domain.ContributionRecord{ID: "42", City: "lyon", MarkdownURL: "https://files.test/lyon/42/body.md"})
	objects := &markdownObjectsFake{body: "hello\n"}
	uc := NewRenderContributionUseCase(repo, objects, rendererFake{})

	if err := uc.RenderByID(context.Background(), "42"); err != nil {
		t.Fatalf("RenderByID() error = %v", err)
	}
	if got := string(objects.saved["42"]); got != "<p>hello</p>" {
		t.Fatalf("unexpected html %q", got)
	}
	if repo.htmlURLs["42"] != "https://files.test/lyon/42/body.html" {
		t.Fatalf("record not linked: %+v", repo.htmlURLs)
	}
}

func TestRenderByIDSkipsRecordWithoutMarkdown(t *testing.T) {
	repo := newRenderRepo(domain.ContributionRecord{ID: "42"})
	objects := &markdownObjectsFake{}
	uc := NewRenderContributionUseCase(repo, objects, rendererFake{})

	if err := uc.RenderByID(context.Background(), "42"); err != nil {
		t.Fatalf("RenderByID() error = %v", err)
	}
	if len(objects.opened) != 0 {
		t.Fatalf("markdown should not be opened")
	}
}

func TestRenderByIDRejectsEmptyBody(t *testing.T) {
	repo := newRenderRepo(domain.ContributionRecord{ID: "42", MarkdownURL: "https://files.test/body.md"})
	uc := NewRenderContributionUseCase(repo, &markdownObjectsFake{}, rendererFake{})

	err := uc.RenderByID(context.Background(), "42")
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRenderByIDPropagatesMissingRecord(t *testing.T) {
	repo := newRenderRepo(domain.ContributionRecord{ID: "42"})
	uc := NewRenderContributionUseCase(repo, &markdownObjectsFake{}, rendererFake{})

	err := uc.RenderByID(context.Background(), "7")
	if !domain.IsKind(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestRenderByIDFailsWhenLinkFails(t *testing.T) {
	repo := newRenderRepo(domain.ContributionRecord{ID: "42", MarkdownURL: "https://files.test/body.md"})
	repo.linkErr = errors.New("db down")
	uc := NewRenderContributionUseCase(repo, &markdownObjectsFake{body: "x"}, rendererFake{})

	if err := uc.RenderByID(context.Background(), "42"); err == nil {
		t.Fatalf("expected error")
	}
}
