package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
	"github.com/civicatlas/contribution-wizard/internal/core/ports"
)

// WizardRegistry keeps the live wizard sessions of the API process.
type WizardRegistry struct {
	records      ports.ContributionStore
	uploader     ports.ArtifactUploader
	newSurface   func(sessionID string) ports.MapSurface
	newNotices   func(sessionID string) NoticeSink
	scheduler    Scheduler
	orchestrator *SubmissionOrchestrator

	mu       sync.Mutex
	sessions map[string]*WizardSession
	byOwner  map[string]string
}

type RegistryOptions struct {
	Records      ports.ContributionStore
	Uploader     ports.ArtifactUploader
	NewSurface   func(sessionID string) ports.MapSurface
	NewNotices   func(sessionID string) NoticeSink
	Scheduler    Scheduler
	Orchestrator *SubmissionOrchestrator
}

func NewWizardRegistry(opts RegistryOptions) *WizardRegistry {
	scheduler := opts.Scheduler
	if scheduler == nil {
		scheduler = NewGoroutineScheduler()
	}
	return &WizardRegistry{
		records:      opts.Records,
		uploader:     opts.Uploader,
		newSurface:   opts.NewSurface,
		newNotices:   opts.NewNotices,
		scheduler:    scheduler,
		orchestrator: opts.Orchestrator,
		sessions:     make(map[string]*WizardSession),
		byOwner:      make(map[string]string),
	}
}

type OpenRequest struct {
	Owner                 string
	City                  string
	RecordID              string
	SuppressLoginRedirect bool
}

// Open creates a wizard session. A previous session of the same owner is torn down first so
// no capture points leak between instances.
func (r *WizardRegistry) Open(ctx context.Context, req OpenRequest) (*WizardSession, error) {
	var record *domain.ContributionRecord
	if req.RecordID != "" {
		if r.records == nil {
			return nil, fmt.Errorf("open wizard: record store is not configured")
		}
		loaded, err := r.records.GetRecord(ctx, req.RecordID)
		if err != nil {
			return nil, fmt.Errorf("load record for edit: %w", err)
		}
		record = loaded
	}

	id := uuid.NewString()
	deps := sessionDeps{scheduler: r.scheduler}
	if r.newSurface != nil {
		deps.surface = r.newSurface(id)
	}
	if r.newNotices != nil {
		deps.notices = r.newNotices(id)
	}
	if r.uploader != nil {
		deps.fetcher = r.uploader
		deps.documents = r.uploader
	}

	session := newWizardSession(id, req.Owner, req.City, deps)
	session.SuppressLoginRedirect = req.SuppressLoginRedirect
	if record != nil {
		session.startEdit(record)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if req.Owner != "" {
		if previousID, ok := r.byOwner[req.Owner]; ok {
			r.closeLocked(previousID)
		}
		r.byOwner[req.Owner] = session.ID
	}
	r.sessions[session.ID] = session

	slog.Info("wizard_opened", "session_id", session.ID, "mode", session.Mode(), "record_id", session.EditingID())
	return session, nil
}

func (r *WizardRegistry) lookup(id string) (*WizardSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "lookup wizard", fmt.Errorf("id=%s", id))
	}
	return session, nil
}

// Authorize reports a session owned by another user as not found.
func (r *WizardRegistry) Authorize(id, owner string) error {
	session, err := r.lookup(id)
	if err != nil {
		return err
	}
	if session.Owner != "" && session.Owner != owner {
		slog.Warn("wizard_owner_mismatch", "session_id", id)
		return domain.WrapError(domain.ErrSessionNotFound, "authorize wizard", fmt.Errorf("id=%s", id))
	}
	return nil
}

// With runs fn while holding the session lock.
func (r *WizardRegistry) With(id string, fn func(*WizardSession) error) error {
	session, err := r.lookup(id)
	if err != nil {
		return err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	session.touch()
	return fn(session)
}

// Submit runs the orchestrator on a snapshot of the session. The session lock is released
// while uploads are in flight; a second submit in that window is rejected.
func (r *WizardRegistry) Submit(ctx context.Context, id string) (domain.SubmitResult, error) {
	if r.orchestrator == nil {
		return domain.SubmitResult{}, fmt.Errorf("submit: orchestrator is not configured")
	}
	session, err := r.lookup(id)
	if err != nil {
		return domain.SubmitResult{}, err
	}

	session.mu.Lock()
	session.touch()
	in, err := session.beginSubmit()
	session.mu.Unlock()
	if err != nil {
		return domain.SubmitResult{}, err
	}

	result, submitErr := r.orchestrator.Submit(ctx, in)

	session.mu.Lock()
	defer session.mu.Unlock()
	session.finishSubmit(submitErr)
	return result, submitErr
}

func (r *WizardRegistry) Close(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return domain.WrapError(domain.ErrSessionNotFound, "close wizard", fmt.Errorf("id=%s", id))
	}
	r.closeLocked(id)
	return nil
}

func (r *WizardRegistry) closeLocked(id string) {
	session, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)
	if session.Owner != "" && r.byOwner[session.Owner] == id {
		delete(r.byOwner, session.Owner)
	}
	session.mu.Lock()
	session.close()
	session.mu.Unlock()
}

// Sweep closes sessions idle for longer than maxIdle and reports how many were closed.
func (r *WizardRegistry) Sweep(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	var stale []string
	for id, session := range r.sessions {
		session.mu.Lock()
		idle := session.lastTouched.Before(cutoff) && !session.submitting
		session.mu.Unlock()
		if idle {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		r.closeLocked(id)
	}
	return len(stale)
}

func (r *WizardRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
