package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
	"github.com/civicatlas/contribution-wizard/internal/core/ports"
)

const (
	msgDocumentsLoadFailed = "Existing documents could not be loaded."
	msgWizardIncomplete    = "Complete every step before submitting."

	relatedArtifactsTimeout = 20 * time.Second
)

// NoticeSink collects the notices of one wizard session until the caller drains them.
type NoticeSink interface {
	ports.Notifier
	Drain() []domain.Notice
}

// DocumentLister loads the documents already attached to a record.
type DocumentLister interface {
	ListDocuments(ctx context.Context, recordID string) ([]domain.StoredDocument, error)
}

// DraftPatch carries the fields a client edits; nil fields are left untouched.
type DraftPatch struct {
	ProjectName *string `json:"project_name"`
	Category    *string `json:"category"`
	Meta        *string `json:"meta"`
	Description *string `json:"description"`
	Markdown    *string `json:"markdown"`
	OfficialURL *string `json:"official_url"`
}

// WizardSession is the explicit state of one wizard instance. Everything that used to be an
// ambient flag (editing id, login redirect suppression) lives here.
//
// Methods assume the caller holds the session lock (see WizardRegistry.With).
type WizardSession struct {
	mu sync.Mutex

	ID    string
	Owner string

	mode      domain.WizardMode
	editingID string
	original  *domain.ContributionRecord

	SuppressLoginRedirect bool

	draft        domain.ContributionDraft
	cover        *domain.CoverArtifact
	documentRows []domain.DocumentRow

	geometry *GeometryModeController
	wizard   *WizardController
	notices  NoticeSink

	documents        DocumentLister
	scheduler        Scheduler
	existingDocs     []domain.StoredDocument
	documentsLoading bool

	submitting  bool
	lastTouched time.Time
}

type sessionDeps struct {
	surface   ports.MapSurface
	fetcher   GeometryFetcher
	documents DocumentLister
	notices   NoticeSink
	scheduler Scheduler
}

func newWizardSession(id, owner, city string, deps sessionDeps) *WizardSession {
	s := &WizardSession{
		ID:          id,
		Owner:       owner,
		mode:        domain.WizardCreate,
		draft:       domain.ContributionDraft{City: city},
		notices:     deps.notices,
		documents:   deps.documents,
		scheduler:   deps.scheduler,
		lastTouched: time.Now(),
	}
	if s.scheduler == nil {
		s.scheduler = NewGoroutineScheduler()
	}
	s.geometry = NewGeometryModeController(NewCaptureMachine(), deps.surface, deps.fetcher, deps.notices, s.scheduler, &s.mu)
	s.wizard = NewWizardController(s, s.geometry, deps.notices)
	s.wizard.onEnterMedia = s.loadRelatedArtifacts
	s.wizard.SetStep(domain.FirstStep, true)
	return s
}

// startEdit pre-fills the session from a stored record.
func (s *WizardSession) startEdit(record *domain.ContributionRecord) {
	s.mode = domain.WizardEdit
	s.editingID = record.ID
	copied := *record
	s.original = &copied

	city := s.draft.City
	if record.City != "" {
		city = record.City
	}
	s.draft = domain.ContributionDraft{
		ID:          record.ID,
		ProjectName: record.ProjectName,
		Category:    record.Category,
		City:        city,
		Meta:        record.Meta,
		Description: record.Description,
		OfficialURL: record.OfficialURL,
	}
	s.geometry.SetEditGeometry(record.GeometryURL)
}

func (s *WizardSession) Draft() domain.ContributionDraft {
	return s.draft
}

func (s *WizardSession) Mode() domain.WizardMode {
	return s.mode
}

func (s *WizardSession) EditingID() string {
	return s.editingID
}

func (s *WizardSession) Geometry() *GeometryModeController {
	return s.geometry
}

func (s *WizardSession) Wizard() *WizardController {
	return s.wizard
}

func (s *WizardSession) Notices() []domain.Notice {
	if s.notices == nil {
		return nil
	}
	return s.notices.Drain()
}

func (s *WizardSession) Notify(message string, level domain.NoticeLevel) {
	if s.notices != nil {
		s.notices.Notify(message, level)
	}
}

func (s *WizardSession) UpdateDraft(patch DraftPatch) {
	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&s.draft.ProjectName, patch.ProjectName)
	apply(&s.draft.Category, patch.Category)
	apply(&s.draft.Meta, patch.Meta)
	apply(&s.draft.Description, patch.Description)
	apply(&s.draft.Markdown, patch.Markdown)
	apply(&s.draft.OfficialURL, patch.OfficialURL)
}

// SetCity records the externally resolved city. Empty values are ignored.
func (s *WizardSession) SetCity(city string) {
	if city = strings.TrimSpace(city); city != "" {
		s.draft.City = city
	}
}

func (s *WizardSession) SetCover(file *domain.File) {
	if file.Empty() {
		s.cover = nil
		return
	}
	s.cover = &domain.CoverArtifact{Raw: *file}
}

func (s *WizardSession) AddDocumentRow(row domain.DocumentRow) int {
	s.documentRows = append(s.documentRows, row)
	return len(s.documentRows) - 1
}

func (s *WizardSession) RemoveDocumentRow(index int) bool {
	if index < 0 || index >= len(s.documentRows) {
		return false
	}
	s.documentRows = append(s.documentRows[:index], s.documentRows[index+1:]...)
	return true
}

func (s *WizardSession) ExistingDocuments() []domain.StoredDocument {
	return s.existingDocs
}

func (s *WizardSession) loadRelatedArtifacts() {
	if s.mode != domain.WizardEdit || s.documents == nil || s.documentsLoading {
		return
	}
	recordID := s.editingID
	s.documentsLoading = true

	s.scheduler.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), relatedArtifactsTimeout)
		defer cancel()
		docs, err := s.documents.ListDocuments(ctx, recordID)

		s.mu.Lock()
		defer s.mu.Unlock()
		s.documentsLoading = false
		if err != nil {
			slog.Warn("related_documents_load_failed", "record_id", recordID, "error", err)
			s.Notify(msgDocumentsLoadFailed, domain.NoticeWarning)
			return
		}
		if s.editingID == recordID {
			s.existingDocs = docs
		}
	})
}

// Reset returns a create-mode session to a blank draft on step 1, keeping the resolved city.
func (s *WizardSession) Reset() {
	s.draft = domain.ContributionDraft{City: s.draft.City}
	s.cover = nil
	s.documentRows = nil
	s.existingDocs = nil
	s.geometry.Teardown()
	s.wizard.SetStep(domain.FirstStep, true)
}

// ExitEdit leaves edit mode and starts over as a create session.
func (s *WizardSession) ExitEdit() {
	s.mode = domain.WizardCreate
	s.editingID = ""
	s.original = nil
	s.Reset()
}

func (s *WizardSession) close() {
	s.geometry.Teardown()
	s.cover = nil
	s.documentRows = nil
}

func (s *WizardSession) touch() {
	s.lastTouched = time.Now()
}

// beginSubmit snapshots the session for the orchestrator and marks it in flight.
func (s *WizardSession) beginSubmit() (SubmissionInput, error) {
	if s.submitting {
		return SubmissionInput{}, domain.WrapError(domain.ErrConflict, "submit contribution", errSubmissionInFlight)
	}
	if !s.wizard.CanGoToStep(domain.LastStep) {
		slog.Info("submission_precondition_failed", "reason", "wizard_incomplete", "session_id", s.ID, "step", s.wizard.CurrentStep())
		s.Notify(msgWizardIncomplete, domain.NoticeError)
		return SubmissionInput{}, domain.WrapError(domain.ErrValidation, "submit contribution", errWizardIncomplete)
	}
	s.submitting = true

	in := SubmissionInput{
		Mode:                  s.mode,
		RecordID:              s.editingID,
		Draft:                 s.draft,
		Geometry:              s.geometry.GeometryForSubmit(),
		HasGeometry:           s.geometry.HasGeometry(),
		Documents:             append([]domain.DocumentRow(nil), s.documentRows...),
		SuppressLoginRedirect: s.SuppressLoginRedirect,
		Notifier:              s.notices,
	}
	if s.original != nil {
		original := *s.original
		in.Original = &original
	}
	if s.cover != nil {
		cover := *s.cover
		in.Cover = &cover
	}
	return in, nil
}

func (s *WizardSession) finishSubmit(err error) {
	s.submitting = false
	if err != nil {
		return
	}
	if s.mode == domain.WizardEdit {
		s.ExitEdit()
		return
	}
	s.Reset()
}

type SessionView struct {
	ID                string                  `json:"id"`
	Mode              domain.WizardMode       `json:"mode"`
	EditingID         string                  `json:"editing_id,omitempty"`
	Step              int                     `json:"step"`
	Tabs              []domain.StepTab        `json:"tabs"`
	Draft             domain.ContributionDraft `json:"draft"`
	Geometry          GeometryView            `json:"geometry"`
	CoverName         string                  `json:"cover_name,omitempty"`
	DocumentRows      []DocumentRowView       `json:"document_rows"`
	ExistingDocuments []domain.StoredDocument `json:"existing_documents,omitempty"`
	Submitting        bool                    `json:"submitting"`
}

type DocumentRowView struct {
	Title    string `json:"title"`
	FileName string `json:"file_name,omitempty"`
}

func (s *WizardSession) View() SessionView {
	view := SessionView{
		ID:                s.ID,
		Mode:              s.mode,
		EditingID:         s.editingID,
		Step:              s.wizard.CurrentStep(),
		Tabs:              s.wizard.Tabs(),
		Draft:             s.draft,
		Geometry:          s.geometry.View(),
		DocumentRows:      make([]DocumentRowView, 0, len(s.documentRows)),
		ExistingDocuments: s.existingDocs,
		Submitting:        s.submitting,
	}
	if s.cover != nil {
		view.CoverName = s.cover.Raw.Name
	}
	for _, row := range s.documentRows {
		rv := DocumentRowView{Title: row.Title}
		if row.File != nil {
			rv.FileName = row.File.Name
		}
		view.DocumentRows = append(view.DocumentRows, rv)
	}
	return view
}
