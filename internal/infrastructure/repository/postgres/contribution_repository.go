package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
)

type ContributionRepository struct {
	db *sql.DB
}

func NewContributionRepository(db *sql.DB) *ContributionRepository {
	return &ContributionRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *ContributionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS contributions (
	id TEXT PRIMARY KEY,
	project_name TEXT NOT NULL,
	category TEXT NOT NULL,
	city TEXT,
	meta TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	official_url TEXT NOT NULL DEFAULT '',
	geometry_url TEXT NOT NULL DEFAULT '',
	cover_url TEXT NOT NULL DEFAULT '',
	markdown_url TEXT NOT NULL DEFAULT '',
	markdown_html_url TEXT NOT NULL DEFAULT '',
	created_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contributions_city ON contributions(city);
CREATE INDEX IF NOT EXISTS idx_contributions_created_at ON contributions(created_at DESC);

CREATE TABLE IF NOT EXISTS contribution_documents (
	id TEXT PRIMARY KEY,
	contribution_id TEXT NOT NULL REFERENCES contributions(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	url TEXT NOT NULL,
	pages INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contribution_documents_contribution ON contribution_documents(contribution_id, created_at);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ContributionRepository) CreateRecord(ctx context.Context, fields domain.RecordFields) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
INSERT INTO contributions (
	id, project_name, category, city, meta, description, official_url, created_by, created_at, updated_at
) VALUES ($1,$2,$3,NULLIF($4, ''),$5,$6,$7,$8,$9,$10)
`,
		id, fields.ProjectName, fields.Category, fields.City, fields.Meta, fields.Description,
		fields.OfficialURL, fields.CreatedBy, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("insert contribution: %w", err)
	}
	return id, nil
}

// PatchRecord overwrites the descriptive fields. An empty city keeps the stored one.
func (r *ContributionRepository) PatchRecord(ctx context.Context, id string, fields domain.RecordFields) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE contributions
SET project_name = $2, category = $3, city = COALESCE(NULLIF($4, ''), city),
	meta = $5, description = $6, official_url = $7, updated_at = $8
WHERE id = $1
`, id, fields.ProjectName, fields.Category, fields.City, fields.Meta, fields.Description, fields.OfficialURL, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("patch contribution: %w", err)
	}
	return requireRow(result, "patch contribution", id)
}

func (r *ContributionRepository) GetRecord(ctx context.Context, id string) (*domain.ContributionRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, project_name, category, COALESCE(city, ''), meta, description, official_url,
	geometry_url, cover_url, markdown_url, markdown_html_url, created_by, created_at, updated_at
FROM contributions
WHERE id = $1
`, id)

	var record domain.ContributionRecord
	err := row.Scan(
		&record.ID, &record.ProjectName, &record.Category, &record.City, &record.Meta, &record.Description,
		&record.OfficialURL, &record.GeometryURL, &record.CoverURL, &record.MarkdownURL, &record.MarkdownHTMLURL,
		&record.CreatedBy, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRecordNotFound, "get contribution", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan contribution: %w", err)
	}
	return &record, nil
}

var artifactColumns = map[domain.ArtifactKind]string{
	domain.ArtifactGeometry: "geometry_url",
	domain.ArtifactCover:    "cover_url",
	domain.ArtifactMarkdown: "markdown_url",
}

// SetArtifactURL links a stored artifact to its record.
func (r *ContributionRepository) SetArtifactURL(ctx context.Context, id string, kind domain.ArtifactKind, url string) error {
	column, ok := artifactColumns[kind]
	if !ok {
		return domain.WrapError(domain.ErrValidation, "set artifact url", fmt.Errorf("artifact %q has no record column", kind))
	}
	return r.setColumn(ctx, id, column, url)
}

func (r *ContributionRepository) SetMarkdownHTMLURL(ctx context.Context, id string, url string) error {
	return r.setColumn(ctx, id, "markdown_html_url", url)
}

func (r *ContributionRepository) setColumn(ctx context.Context, id, column, value string) error {
	// column comes from a fixed allow-list, never from input.
	query := fmt.Sprintf(`
UPDATE contributions
SET %s = $2, updated_at = $3
WHERE id = $1
`, column)
	result, err := r.db.ExecContext(ctx, query, id, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set %s: %w", column, err)
	}
	return requireRow(result, "set "+column, id)
}

func requireRow(result sql.Result, op, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrRecordNotFound, op, fmt.Errorf("id=%s", id))
	}
	return nil
}
