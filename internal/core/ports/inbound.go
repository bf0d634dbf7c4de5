package ports

import (
	"context"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
)

// ContributionReader is the inbound read model for saved contributions.
type ContributionReader interface {
	GetRecord(ctx context.Context, id string) (*domain.ContributionRecord, error)
}

// ContributionRenderer is the inbound contract of the worker.
type ContributionRenderer interface {
	RenderByID(ctx context.Context, recordID string) error
}
