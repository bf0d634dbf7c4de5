package usecase

import (
	"testing"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
)

type draftStub struct {
	draft domain.ContributionDraft
}

func (s *draftStub) Draft() domain.ContributionDraft { return s.draft }

func newWizardHarness(draft domain.ContributionDraft) (*WizardController, *draftStub, geometryHarness) {
	h := newGeometryHarness()
	stub := &draftStub{draft: draft}
	return NewWizardController(stub, h.ctrl, h.notices), stub, h
}

func TestWizardStartsOnStepOne(t *testing.T) {
	w, _, _ := newWizardHarness(domain.ContributionDraft{})
	if w.CurrentStep() != 1 {
		t.Fatalf("expected step 1, got %d", w.CurrentStep())
	}
	tabs := w.Tabs()
	if tabs[0].Status != domain.StepCurrent || tabs[1].Status != domain.StepPending {
		t.Fatalf("unexpected tabs %+v", tabs)
	}
}

func TestWizardStepThreeRejectedWithoutProjectName(t *testing.T) {
	for _, category := range []string{"", "urbanisme"} {
		w, _, h := newWizardHarness(domain.ContributionDraft{Category: category, Meta: "m", Description: "d"})
		h.ctrl.SelectFile(&domain.File{Name: "a.geojson", Data: []byte("{}")})

		if w.SetStep(3, false) {
			t.Fatalf("category=%q: expected step 3 to be rejected", category)
		}
		if w.CurrentStep() != 1 {
			t.Fatalf("category=%q: step must stay 1, got %d", category, w.CurrentStep())
		}
		notices := h.notices.Drain()
		if len(notices) != 1 || notices[0].Message != msgStepOneInvalid {
			t.Fatalf("category=%q: expected step 1 notice, got %+v", category, notices)
		}
	}
}

func TestWizardGatesAreCumulative(t *testing.T) {
	w, stub, h := newWizardHarness(domain.ContributionDraft{ProjectName: "Pont Neuf", Category: "urbanisme"})

	if !w.CanGoToStep(2) {
		t.Fatalf("step 2 should be reachable")
	}
	if w.CanGoToStep(3) {
		t.Fatalf("step 3 needs a geometry")
	}
	if len(h.notices.Drain()) != 0 {
		t.Fatalf("CanGoToStep must not notify")
	}

	if !w.SetStep(2, false) {
		t.Fatalf("expected step 2")
	}
	if w.SetStep(3, false) {
		t.Fatalf("expected step 3 to fail without geometry")
	}
	if notices := h.notices.Drain(); len(notices) != 1 || notices[0].Message != msgSelectGeometryFile {
		t.Fatalf("expected geometry notice, got %+v", notices)
	}

	h.ctrl.SelectFile(&domain.File{Name: "a.geojson", Data: []byte("{}")})
	if !w.SetStep(3, false) {
		t.Fatalf("expected step 3")
	}
	if w.SetStep(4, false) {
		t.Fatalf("step 4 needs meta and description")
	}

	stub.draft.Meta = "m"
	stub.draft.Description = "d"
	if !w.SetStep(4, false) {
		t.Fatalf("expected step 4")
	}
	tabs := w.Tabs()
	for i := 0; i < 3; i++ {
		if tabs[i].Status != domain.StepComplete {
			t.Fatalf("expected step %d complete, got %s", i+1, tabs[i].Status)
		}
	}
	if tabs[3].Status != domain.StepCurrent {
		t.Fatalf("expected step 4 current")
	}
}

func TestWizardForceBypassesGates(t *testing.T) {
	w, _, _ := newWizardHarness(domain.ContributionDraft{})
	if !w.SetStep(4, true) {
		t.Fatalf("forced step must succeed")
	}
	if w.CurrentStep() != 4 {
		t.Fatalf("expected step 4, got %d", w.CurrentStep())
	}
}

func TestWizardRejectsUnknownStep(t *testing.T) {
	w, _, h := newWizardHarness(domain.ContributionDraft{})
	if w.SetStep(5, true) || w.SetStep(0, false) {
		t.Fatalf("out of range steps must be rejected")
	}
	if w.CanGoToStep(9) {
		t.Fatalf("out of range steps are never reachable")
	}
	if len(h.notices.Drain()) != 2 {
		t.Fatalf("expected a notice per rejected step")
	}
}

func TestWizardEnteringStepTwoInitialisesGeometryMode(t *testing.T) {
	w, _, h := newWizardHarness(domain.ContributionDraft{ProjectName: "p", Category: "c"})
	if !h.ctrl.View().FileInputEnabled {
		t.Fatalf("file mode is the default")
	}
	h.ctrl.mode = domain.GeomModeDraw

	w.SetStep(2, false)
	if !h.ctrl.View().CaptureSurfaceVisible {
		t.Fatalf("entering step 2 should apply the selected draw mode")
	}
}

func TestWizardEnteringMediaStepRunsHook(t *testing.T) {
	w, _, _ := newWizardHarness(domain.ContributionDraft{})
	calls := 0
	w.onEnterMedia = func() { calls++ }
	w.SetStep(4, true)
	if calls != 1 {
		t.Fatalf("expected media hook once, got %d", calls)
	}
}
