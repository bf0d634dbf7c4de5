package usecase

import (
	"github.com/civicatlas/contribution-wizard/internal/core/domain"
	"github.com/civicatlas/contribution-wizard/internal/core/ports"
)

const (
	msgStepOneInvalid   = "Enter a project name and select a category."
	msgStepThreeInvalid = "Fill in the summary and the description."
	msgUnknownStep      = "This step does not exist."
)

// DraftSource exposes the draft the gates are evaluated against.
type DraftSource interface {
	Draft() domain.ContributionDraft
}

// WizardController owns the four-step sequence and its gates.
type WizardController struct {
	draft    DraftSource
	geometry *GeometryModeController
	notifier ports.Notifier

	// onEnterMedia runs when step 4 is entered; the session wires the edit-mode artifact load.
	onEnterMedia func()

	current int
}

func NewWizardController(draft DraftSource, geometry *GeometryModeController, notifier ports.Notifier) *WizardController {
	return &WizardController{
		draft:    draft,
		geometry: geometry,
		notifier: notifier,
		current:  domain.FirstStep,
	}
}

func (w *WizardController) CurrentStep() int {
	return w.current
}

// CanGoToStep evaluates the cumulative gates without emitting notices.
func (w *WizardController) CanGoToStep(step int) bool {
	return w.checkGates(step, false)
}

// SetStep moves to step when its gates hold. force bypasses the gates and is reserved for
// mount and programmatic resets. A failed gate notifies and leaves the step unchanged.
func (w *WizardController) SetStep(step int, force bool) bool {
	if step < domain.FirstStep || step > domain.LastStep {
		w.notify(msgUnknownStep, domain.NoticeWarning)
		return false
	}
	if !force && !w.checkGates(step, true) {
		return false
	}

	w.current = step
	switch step {
	case domain.StepGeometry:
		if w.geometry != nil {
			w.geometry.EnsureInitialized()
		}
	case domain.StepMedia:
		if w.onEnterMedia != nil {
			w.onEnterMedia()
		}
	}
	return true
}

func (w *WizardController) checkGates(step int, notify bool) bool {
	if step < domain.FirstStep || step > domain.LastStep {
		return false
	}
	draft := w.draft.Draft()
	for gate := domain.FirstStep; gate < step; gate++ {
		if !w.stepValid(gate, draft, notify) {
			return false
		}
	}
	return true
}

func (w *WizardController) stepValid(step int, draft domain.ContributionDraft, notify bool) bool {
	switch step {
	case domain.StepIdentity:
		if draft.StepOneValid() {
			return true
		}
		if notify {
			w.notify(msgStepOneInvalid, domain.NoticeWarning)
		}
		return false
	case domain.StepGeometry:
		if w.geometry == nil {
			return false
		}
		if notify {
			return w.geometry.ValidateStep2()
		}
		return w.geometry.HasGeometry()
	case domain.StepDescription:
		if draft.StepThreeValid() {
			return true
		}
		if notify {
			w.notify(msgStepThreeInvalid, domain.NoticeWarning)
		}
		return false
	default:
		return true
	}
}

// Tabs derives the tab strip purely from the current step.
func (w *WizardController) Tabs() []domain.StepTab {
	tabs := make([]domain.StepTab, 0, domain.LastStep)
	for step := domain.FirstStep; step <= domain.LastStep; step++ {
		status := domain.StepPending
		switch {
		case step < w.current:
			status = domain.StepComplete
		case step == w.current:
			status = domain.StepCurrent
		}
		tabs = append(tabs, domain.StepTab{Step: step, Status: status})
	}
	return tabs
}

func (w *WizardController) notify(message string, level domain.NoticeLevel) {
	if w.notifier != nil {
		w.notifier.Notify(message, level)
	}
}
