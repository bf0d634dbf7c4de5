package domain

import (
	"strings"
	"time"
)

// File is an in-memory binary artifact as received from the client.
type File struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

func (f *File) Empty() bool {
	return f == nil || len(f.Data) == 0
}

// CoverArtifact keeps the raw upload next to its compressed rendition.
// Compressed is nil until compression has been attempted.
type CoverArtifact struct {
	Raw        File
	Compressed *File
}

// ForUpload returns the compressed image when available and the raw one otherwise.
func (c *CoverArtifact) ForUpload() File {
	if c.Compressed != nil && !c.Compressed.Empty() {
		return *c.Compressed
	}
	return c.Raw
}

// DocumentRow is one (title, file) pair as currently entered in the form.
type DocumentRow struct {
	Title string
	File  *File
}

type DocumentUpload struct {
	Title string
	File  File
}

type GeometrySourceKind string

const (
	GeometrySourceNone GeometrySourceKind = ""
	GeometrySourceFile GeometrySourceKind = "file"
	GeometrySourceDraw GeometrySourceKind = "draw"
)

// GeometrySource is the tagged union of a geometry file and a drawn geometry.
type GeometrySource struct {
	Kind     GeometrySourceKind
	File     *File
	Geometry *Geometry
}

func (s GeometrySource) Changed() bool {
	return s.Kind != GeometrySourceNone
}

// ContributionDraft is the in-memory, not yet persisted contribution.
type ContributionDraft struct {
	ID          string `json:"id,omitempty"`
	ProjectName string `json:"project_name"`
	Category    string `json:"category"`
	City        string `json:"city"`
	Meta        string `json:"meta"`
	Description string `json:"description"`
	Markdown    string `json:"markdown,omitempty"`
	OfficialURL string `json:"official_url,omitempty"`
}

func (d ContributionDraft) StepOneValid() bool {
	return strings.TrimSpace(d.ProjectName) != "" && strings.TrimSpace(d.Category) != ""
}

func (d ContributionDraft) StepThreeValid() bool {
	return strings.TrimSpace(d.Meta) != "" && strings.TrimSpace(d.Description) != ""
}

// Fields projects the descriptive part of the draft onto a record payload.
func (d ContributionDraft) Fields() RecordFields {
	return RecordFields{
		ProjectName: strings.TrimSpace(d.ProjectName),
		Category:    strings.TrimSpace(d.Category),
		City:        d.City,
		Meta:        strings.TrimSpace(d.Meta),
		Description: strings.TrimSpace(d.Description),
		OfficialURL: strings.TrimSpace(d.OfficialURL),
	}
}

// RecordFields is the create/patch payload of a contribution record.
// An empty City in a patch leaves the stored value untouched.
type RecordFields struct {
	ProjectName string `json:"project_name"`
	Category    string `json:"category"`
	City        string `json:"city,omitempty"`
	Meta        string `json:"meta"`
	Description string `json:"description"`
	OfficialURL string `json:"official_url,omitempty"`
	CreatedBy   string `json:"created_by,omitempty"`
}

type ContributionRecord struct {
	ID              string           `json:"id"`
	ProjectName     string           `json:"project_name"`
	Category        string           `json:"category"`
	City            string           `json:"city,omitempty"`
	Meta            string           `json:"meta"`
	Description     string           `json:"description"`
	OfficialURL     string           `json:"official_url,omitempty"`
	GeometryURL     string           `json:"geometry_url,omitempty"`
	CoverURL        string           `json:"cover_url,omitempty"`
	MarkdownURL     string           `json:"markdown_url,omitempty"`
	MarkdownHTMLURL string           `json:"markdown_html_url,omitempty"`
	CreatedBy       string           `json:"created_by,omitempty"`
	Documents       []StoredDocument `json:"documents,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

type StoredDocument struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Pages     int       `json:"pages,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UploadContext keys an artifact upload to its record.
type UploadContext struct {
	RecordID string
	City     string
	UserID   string
}

type AuthSession struct {
	UserID    string
	ExpiresAt time.Time
}
