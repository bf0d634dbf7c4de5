package usecase

import (
	"log/slog"
	"strings"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
)

// UploadCollector turns the document rows of the form into the list that gets uploaded.
type UploadCollector struct{}

func NewUploadCollector() UploadCollector {
	return UploadCollector{}
}

// Collect keeps row order and drops rows without a title or a file.
func (UploadCollector) Collect(rows []domain.DocumentRow) []domain.DocumentUpload {
	out := make([]domain.DocumentUpload, 0, len(rows))
	for i, row := range rows {
		title := strings.TrimSpace(row.Title)
		if title == "" || row.File.Empty() {
			slog.Debug("document_row_dropped", "index", i, "has_title", title != "", "has_file", !row.File.Empty())
			continue
		}
		out = append(out, domain.DocumentUpload{Title: title, File: *row.File})
	}
	return out
}
