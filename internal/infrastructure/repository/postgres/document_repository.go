package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
)

// AddDocument attaches a stored supporting document to a contribution.
func (r *ContributionRepository) AddDocument(ctx context.Context, recordID string, doc domain.StoredDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO contribution_documents (id, contribution_id, title, url, pages, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, doc.ID, recordID, doc.Title, doc.URL, doc.Pages, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert contribution document: %w", err)
	}
	return nil
}

func (r *ContributionRepository) ListDocuments(ctx context.Context, recordID string) ([]domain.StoredDocument, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, title, url, pages, created_at
FROM contribution_documents
WHERE contribution_id = $1
ORDER BY created_at ASC
`, recordID)
	if err != nil {
		return nil, fmt.Errorf("list contribution documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.StoredDocument, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contribution documents: %w", err)
	}
	return out, nil
}

type documentScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row documentScanner) (domain.StoredDocument, error) {
	var doc domain.StoredDocument
	if err := row.Scan(&doc.ID, &doc.Title, &doc.URL, &doc.Pages, &doc.CreatedAt); err != nil {
		return domain.StoredDocument{}, fmt.Errorf("scan contribution document: %w", err)
	}
	return doc, nil
}
