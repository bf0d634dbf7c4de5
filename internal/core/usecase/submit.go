package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
	"github.com/civicatlas/contribution-wizard/internal/core/ports"
)

const (
	msgSignInRequired     = "Sign in to submit your contribution."
	msgMissingIdentity    = "A project name and a category are required."
	msgMissingCity        = "The city of this contribution could not be determined. Reload the page and try again."
	msgMissingGeometry    = "A geometry is required before submitting."
	msgMissingDetails     = "A summary and a description are required."
	msgRecordCreateFailed = "The contribution could not be created."
	msgGeometryFailed     = "The geometry could not be uploaded. Nothing else was sent."
	msgPatchFailed        = "The contribution was saved but its details could not be updated."
	msgCreated            = "Contribution created."
	msgUpdated            = "Contribution updated."
)

var (
	errSubmissionInFlight = errors.New("a submission is already in progress")
	errWizardIncomplete   = errors.New("wizard steps are incomplete")
)

// SubmissionInput is the snapshot of a wizard session taken when the user submits.
type SubmissionInput struct {
	Mode                  domain.WizardMode
	RecordID              string
	Original              *domain.ContributionRecord
	Draft                 domain.ContributionDraft
	Geometry              domain.GeometrySource
	HasGeometry           bool
	Cover                 *domain.CoverArtifact
	Documents             []domain.DocumentRow
	SuppressLoginRedirect bool
	Notifier              ports.Notifier
}

// SubmissionObserver receives submission outcomes, typically for metrics.
type SubmissionObserver interface {
	ObserveSubmission(mode domain.WizardMode, outcome string, duration time.Duration)
	ObserveSecondaryFailure(kind domain.ArtifactKind)
}

type SubmissionOptions struct {
	// SelfHealCity fills the city of an edited record when the stored one is empty.
	SelfHealCity bool
}

// SubmissionOrchestrator sequences record creation and artifact uploads.
// Record and geometry are all-or-nothing; cover, markdown and documents are best-effort.
type SubmissionOrchestrator struct {
	sessions   ports.SessionProvider
	records    ports.ContributionStore
	uploader   ports.ArtifactUploader
	compressor ports.ImageCompressor
	collector  UploadCollector
	events     ports.EventPublisher
	observer   SubmissionObserver
	opts       SubmissionOptions
}

func NewSubmissionOrchestrator(
	sessions ports.SessionProvider,
	records ports.ContributionStore,
	uploader ports.ArtifactUploader,
	compressor ports.ImageCompressor,
	events ports.EventPublisher,
	observer SubmissionObserver,
	opts SubmissionOptions,
) *SubmissionOrchestrator {
	return &SubmissionOrchestrator{
		sessions:   sessions,
		records:    records,
		uploader:   uploader,
		compressor: compressor,
		collector:  NewUploadCollector(),
		events:     events,
		observer:   observer,
		opts:       opts,
	}
}

func (o *SubmissionOrchestrator) Submit(ctx context.Context, in SubmissionInput) (domain.SubmitResult, error) {
	start := time.Now()
	result, outcome, err := o.submit(ctx, in)
	if o.observer != nil {
		o.observer.ObserveSubmission(in.Mode, outcome, time.Since(start))
	}
	return result, err
}

func (o *SubmissionOrchestrator) submit(ctx context.Context, in SubmissionInput) (domain.SubmitResult, string, error) {
	notify := func(message string, level domain.NoticeLevel) {
		if in.Notifier != nil {
			in.Notifier.Notify(message, level)
		}
	}
	result := domain.SubmitResult{Mode: in.Mode}

	auth, err := o.checkPreconditions(ctx, in, notify)
	if err != nil {
		return result, outcomeOf(err), err
	}

	recordID, err := o.ensureRecord(ctx, in, auth)
	if err != nil {
		notify(msgRecordCreateFailed, domain.NoticeError)
		return result, "primary_failed", err
	}
	result.RecordID = recordID
	result.Uploads = append(result.Uploads, domain.UploadResult{Artifact: domain.ArtifactRecord})

	uc := domain.UploadContext{RecordID: recordID, City: in.Draft.City, UserID: auth.UserID}

	if in.Geometry.Changed() {
		url, err := o.uploader.UploadGeometry(ctx, in.Geometry, uc)
		if err != nil {
			slog.Error("geometry_upload_failed", "record_id", recordID, "kind", in.Geometry.Kind, "error", err)
			notify(msgGeometryFailed, domain.NoticeError)
			return result, "primary_failed", domain.WrapError(domain.ErrPrimaryUpload, "upload geometry", err)
		}
		result.Uploads = append(result.Uploads, domain.UploadResult{Artifact: domain.ArtifactGeometry, URL: url})
	}

	for _, upload := range o.secondaryUploads(in, uc) {
		res := upload.run(ctx)
		if !res.OK() {
			slog.Warn("secondary_upload_failed",
				"record_id", recordID,
				"artifact", res.Artifact,
				"index", res.Index,
				"error", res.Err,
			)
			notify(upload.failureMessage, domain.NoticeWarning)
			if o.observer != nil {
				o.observer.ObserveSecondaryFailure(res.Artifact)
			}
		}
		result.Uploads = append(result.Uploads, res)
	}

	healed, err := o.patchRecord(ctx, in, recordID)
	if err != nil {
		slog.Error("record_patch_failed", "record_id", recordID, "error", err)
		notify(msgPatchFailed, domain.NoticeWarning)
		result.PatchFailed = true
	}
	result.CityHealed = healed

	o.complete(ctx, in, recordID, notify)

	outcome := "success"
	if len(result.FailedUploads()) > 0 || result.PatchFailed {
		outcome = "partial"
	}
	return result, outcome, nil
}

// checkPreconditions fails fast before any side effect.
func (o *SubmissionOrchestrator) checkPreconditions(
	ctx context.Context,
	in SubmissionInput,
	notify func(string, domain.NoticeLevel),
) (*domain.AuthSession, error) {
	var auth *domain.AuthSession
	var err error
	if o.sessions != nil {
		auth, err = o.sessions.Session(ctx)
	}
	if err != nil || auth == nil {
		if err == nil {
			err = errors.New("no session")
		}
		slog.Info("submission_precondition_failed", "reason", "unauthenticated", "login_redirect", !in.SuppressLoginRedirect)
		notify(msgSignInRequired, domain.NoticeError)
		return nil, domain.WrapError(domain.ErrUnauthorized, "submit contribution", err)
	}

	if !in.Draft.StepOneValid() {
		slog.Info("submission_precondition_failed", "reason", "missing_identity")
		notify(msgMissingIdentity, domain.NoticeError)
		return nil, domain.WrapError(domain.ErrValidation, "submit contribution", errors.New("project name and category are required"))
	}

	if strings.TrimSpace(in.Draft.City) == "" {
		// A missing city is an upstream resolution bug, not a user mistake.
		slog.Error("missing_city_defect",
			"mode", in.Mode,
			"record_id", in.RecordID,
			"user_id", auth.UserID,
			"project_name", in.Draft.ProjectName,
		)
		notify(msgMissingCity, domain.NoticeError)
		return nil, domain.WrapError(domain.ErrMissingCity, "submit contribution", errors.New("city is empty"))
	}

	if !in.Draft.StepThreeValid() {
		slog.Info("submission_precondition_failed", "reason", "missing_details")
		notify(msgMissingDetails, domain.NoticeError)
		return nil, domain.WrapError(domain.ErrValidation, "submit contribution", errors.New("meta and description are required"))
	}

	if !in.HasGeometry {
		slog.Info("submission_precondition_failed", "reason", "missing_geometry")
		notify(msgMissingGeometry, domain.NoticeError)
		return nil, domain.WrapError(domain.ErrValidation, "submit contribution", errors.New("geometry is required"))
	}

	if in.Mode == domain.WizardEdit && in.RecordID == "" {
		return nil, domain.WrapError(domain.ErrValidation, "submit contribution", errors.New("edit mode without record id"))
	}
	return auth, nil
}

func (o *SubmissionOrchestrator) ensureRecord(ctx context.Context, in SubmissionInput, auth *domain.AuthSession) (string, error) {
	if in.Mode == domain.WizardEdit {
		return in.RecordID, nil
	}

	fields := in.Draft.Fields()
	fields.CreatedBy = auth.UserID
	id, err := o.records.CreateRecord(ctx, fields)
	if err != nil {
		slog.Error("record_create_failed", "project_name", fields.ProjectName, "city", fields.City, "error", err)
		return "", domain.WrapError(domain.ErrPrimaryUpload, "create record", err)
	}
	if id == "" {
		slog.Error("record_create_failed", "project_name", fields.ProjectName, "city", fields.City, "error", "empty id")
		return "", domain.WrapError(domain.ErrPrimaryUpload, "create record", errors.New("storage returned no identifier"))
	}
	return id, nil
}

type secondaryUpload struct {
	failureMessage string
	run            func(ctx context.Context) domain.UploadResult
}

// secondaryUploads lists the best-effort uploads in their fixed order: cover, markdown, documents.
func (o *SubmissionOrchestrator) secondaryUploads(in SubmissionInput, uc domain.UploadContext) []secondaryUpload {
	var uploads []secondaryUpload

	if in.Cover != nil && !in.Cover.Raw.Empty() {
		cover := *in.Cover
		uploads = append(uploads, secondaryUpload{
			failureMessage: "The cover image could not be uploaded.",
			run: func(ctx context.Context) domain.UploadResult {
				if o.compressor != nil {
					compressed := o.compressor.Compress(cover.Raw)
					cover.Compressed = &compressed
				}
				url, err := o.uploader.UploadCover(ctx, cover.ForUpload(), uc)
				return uploadResult(domain.ArtifactCover, 0, url, err)
			},
		})
	}

	if body := strings.TrimSpace(in.Draft.Markdown); body != "" {
		uploads = append(uploads, secondaryUpload{
			failureMessage: "The long-form text could not be uploaded.",
			run: func(ctx context.Context) domain.UploadResult {
				url, err := o.uploader.UploadMarkdown(ctx, []byte(in.Draft.Markdown), uc)
				return uploadResult(domain.ArtifactMarkdown, 0, url, err)
			},
		})
	}

	for index, doc := range o.collector.Collect(in.Documents) {
		uploads = append(uploads, secondaryUpload{
			failureMessage: fmt.Sprintf("The document %q could not be uploaded.", doc.Title),
			run: func(ctx context.Context) domain.UploadResult {
				url, err := o.uploader.UploadDocument(ctx, doc, uc)
				return uploadResult(domain.ArtifactDocument, index, url, err)
			},
		})
	}
	return uploads
}

func uploadResult(kind domain.ArtifactKind, index int, url string, err error) domain.UploadResult {
	if err != nil {
		return domain.UploadResult{
			Artifact: kind,
			Index:    index,
			Err:      domain.WrapError(domain.ErrSecondaryUpload, "upload "+string(kind), err),
		}
	}
	return domain.UploadResult{Artifact: kind, Index: index, URL: url}
}

// patchRecord writes the descriptive fields. In edit mode a stored empty city may be filled in.
func (o *SubmissionOrchestrator) patchRecord(ctx context.Context, in SubmissionInput, recordID string) (bool, error) {
	fields := in.Draft.Fields()
	fields.City = ""

	healed := false
	if in.Mode == domain.WizardEdit && o.opts.SelfHealCity && in.Original != nil && in.Original.City == "" {
		fields.City = in.Draft.City
		healed = true
		slog.Info("record_city_healed", "record_id", recordID, "city", fields.City)
	}

	if err := o.records.PatchRecord(ctx, recordID, fields); err != nil {
		return false, fmt.Errorf("patch record: %w", err)
	}
	return healed, nil
}

func (o *SubmissionOrchestrator) complete(ctx context.Context, in SubmissionInput, recordID string, notify func(string, domain.NoticeLevel)) {
	event := domain.ContributionEvent{
		Type:        domain.EventContributionCreated,
		ID:          recordID,
		ProjectName: strings.TrimSpace(in.Draft.ProjectName),
		Category:    strings.TrimSpace(in.Draft.Category),
		City:        in.Draft.City,
		OccurredAt:  time.Now().UTC(),
	}
	message := msgCreated
	if in.Mode == domain.WizardEdit {
		event.Type = domain.EventContributionUpdated
		message = msgUpdated
	}

	if o.events != nil {
		if err := o.events.PublishContributionEvent(ctx, event); err != nil {
			slog.Error("contribution_event_publish_failed", "record_id", recordID, "type", event.Type, "error", err)
		}
	}
	notify(message, domain.NoticeSuccess)
	slog.Info("contribution_submitted", "record_id", recordID, "type", event.Type, "city", event.City)
}

func outcomeOf(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrUnauthorized):
		return "unauthorized"
	case domain.IsKind(err, domain.ErrMissingCity):
		return "missing_city"
	case domain.IsKind(err, domain.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
