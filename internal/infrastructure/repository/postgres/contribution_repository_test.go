package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*ContributionRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &ContributionRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestCreateRecordGeneratesID(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO contributions").
		WithArgs(sqlmock.AnyArg(), "Pont Neuf", "urbanisme", "lyon", "m", "d", "", "user-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := repo.CreateRecord(context.Background(), domain.RecordFields{
		ProjectName: "Pont Neuf",
		Category:    "urbanisme",
		City:        "lyon",
		Meta:        "m",
		Description: "d",
		CreatedBy:   "user-1",
	})
	if err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPatchRecordKeepsCityWhenBlank(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec(`UPDATE contributions\s+SET project_name = \$2, category = \$3, city = COALESCE\(NULLIF\(\$4, ''\), city\)`).
		WithArgs("42", "Pont Neuf", "urbanisme", "", "m", "d", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.PatchRecord(context.Background(), "42", domain.RecordFields{
		ProjectName: "Pont Neuf",
		Category:    "urbanisme",
		Meta:        "m",
		Description: "d",
	})
	if err != nil {
		t.Fatalf("PatchRecord() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPatchRecordReturnsNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE contributions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.PatchRecord(context.Background(), "missing", domain.RecordFields{ProjectName: "x", Category: "y"})
	if !domain.IsKind(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestGetRecordReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, project_name, category").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetRecord(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetRecordScansLegacyNullCityAsEmpty(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "project_name", "category", "city", "meta", "description", "official_url",
		"geometry_url", "cover_url", "markdown_url", "markdown_html_url", "created_by", "created_at", "updated_at",
	}).AddRow("42", "Pont Neuf", "urbanisme", "", "m", "d", "", "https://files.test/g.geojson", "", "", "", "user-1", now, now)

	mock.ExpectQuery("FROM contributions").WithArgs("42").WillReturnRows(rows)

	record, err := repo.GetRecord(context.Background(), "42")
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if record.City != "" || record.GeometryURL != "https://files.test/g.geojson" {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestSetArtifactURLRejectsUnknownKind(t *testing.T) {
	repo, _, done := newRepoWithMock(t)
	defer done()

	err := repo.SetArtifactURL(context.Background(), "42", domain.ArtifactDocument, "https://files.test/a.pdf")
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSetArtifactURLUpdatesColumn(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec(`SET cover_url = \$2`).
		WithArgs("42", "https://files.test/cover.webp", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetArtifactURL(context.Background(), "42", domain.ArtifactCover, "https://files.test/cover.webp"); err != nil {
		t.Fatalf("SetArtifactURL() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListDocumentsOrdersRows(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "title", "url", "pages", "created_at"}).
		AddRow("d-1", "Plan", "https://files.test/plan.pdf", 3, now).
		AddRow("d-2", "Notice", "https://files.test/notice.pdf", 0, now.Add(time.Second))

	mock.ExpectQuery("FROM contribution_documents").WithArgs("42").WillReturnRows(rows)

	docs, err := repo.ListDocuments(context.Background(), "42")
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 2 || docs[0].Title != "Plan" || docs[0].Pages != 3 {
		t.Fatalf("unexpected documents %+v", docs)
	}
}

func TestAddDocumentPropagatesInsertError(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO contribution_documents").
		WithArgs(sqlmock.AnyArg(), "42", "Plan", "https://files.test/plan.pdf", 3, sqlmock.AnyArg()).
		WillReturnError(errors.New("fk violation"))

	err := repo.AddDocument(context.Background(), "42", domain.StoredDocument{Title: "Plan", URL: "https://files.test/plan.pdf", Pages: 3})
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
