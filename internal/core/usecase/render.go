package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
	"github.com/civicatlas/contribution-wizard/internal/core/ports"
)

// MarkdownObjects reads stored markdown bodies and writes their HTML rendition.
type MarkdownObjects interface {
	OpenMarkdown(ctx context.Context, url string) (io.ReadCloser, error)
	SaveMarkdownHTML(ctx context.Context, recordID, city string, html []byte) (string, error)
}

// RenderContributionUseCase renders the markdown body of a saved contribution to HTML so
// list and detail views do not need a markdown engine.
type RenderContributionUseCase struct {
	repo     ports.ContributionRepository
	objects  MarkdownObjects
	renderer ports.MarkdownRenderer
}

func NewRenderContributionUseCase(
	repo ports.ContributionRepository,
	objects MarkdownObjects,
	renderer ports.MarkdownRenderer,
) *RenderContributionUseCase {
	return &RenderContributionUseCase{
		repo:     repo,
		objects:  objects,
		renderer: renderer,
	}
}

func (uc *RenderContributionUseCase) RenderByID(ctx context.Context, recordID string) error {
	record, err := uc.loadRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if record.MarkdownURL == "" {
		slog.Debug("render_skipped", "record_id", recordID, "reason", "no markdown")
		return nil
	}

	source, err := uc.readMarkdown(ctx, record.MarkdownURL)
	if err != nil {
		return err
	}

	html, err := uc.renderer.Render(source)
	if err != nil {
		return domain.WrapError(domain.ErrValidation, "render markdown", err)
	}

	url, err := uc.objects.SaveMarkdownHTML(ctx, record.ID, record.City, html)
	if err != nil {
		return fmt.Errorf("save rendered html: %w", err)
	}
	if err := uc.repo.SetMarkdownHTMLURL(ctx, record.ID, url); err != nil {
		return fmt.Errorf("link rendered html: %w", err)
	}
	return nil
}

func (uc *RenderContributionUseCase) loadRecord(ctx context.Context, recordID string) (*domain.ContributionRecord, error) {
	record, err := uc.repo.GetRecord(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("fetch record by id: %w", err)
	}
	return record, nil
}

func (uc *RenderContributionUseCase) readMarkdown(ctx context.Context, url string) ([]byte, error) {
	reader, err := uc.objects.OpenMarkdown(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open markdown: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read markdown: %w", err)
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrValidation, "read markdown", errors.New("empty markdown body"))
	}
	return raw, nil
}
