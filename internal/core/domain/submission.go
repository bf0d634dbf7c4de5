package domain

import "time"

type ArtifactKind string

const (
	ArtifactRecord   ArtifactKind = "record"
	ArtifactGeometry ArtifactKind = "geometry"
	ArtifactCover    ArtifactKind = "cover"
	ArtifactMarkdown ArtifactKind = "markdown"
	ArtifactDocument ArtifactKind = "document"
)

// UploadResult is the per-artifact outcome of one submission attempt. Never persisted.
type UploadResult struct {
	Artifact ArtifactKind `json:"artifact"`
	Index    int          `json:"index,omitempty"`
	URL      string       `json:"url,omitempty"`
	Err      error        `json:"-"`
}

func (r UploadResult) OK() bool {
	return r.Err == nil
}

type SubmitResult struct {
	RecordID    string         `json:"record_id"`
	Mode        WizardMode     `json:"mode"`
	Uploads     []UploadResult `json:"uploads"`
	PatchFailed bool           `json:"patch_failed,omitempty"`
	CityHealed  bool           `json:"city_healed,omitempty"`
}

// FailedUploads lists secondary artifacts that did not make it.
func (r SubmitResult) FailedUploads() []UploadResult {
	var out []UploadResult
	for _, u := range r.Uploads {
		if !u.OK() {
			out = append(out, u)
		}
	}
	return out
}

type ContributionEventType string

const (
	EventContributionCreated ContributionEventType = "contribution:created"
	EventContributionUpdated ContributionEventType = "contribution:updated"
)

type ContributionEvent struct {
	Type        ContributionEventType `json:"type"`
	ID          string                `json:"id"`
	ProjectName string                `json:"project_name"`
	Category    string                `json:"category"`
	City        string                `json:"city,omitempty"`
	OccurredAt  time.Time             `json:"occurred_at,omitempty"`
}
