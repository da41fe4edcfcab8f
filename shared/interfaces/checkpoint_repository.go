package interfaces

import (
	"context"

	"storyplay-server/shared/models"

	"github.com/google/uuid"
)

// CheckpointRepository defines the bounded checkpoint ring per (viewer, story).
// Емкость кольца задается реализацией; при сохранении сверх лимита самые
// старые записи вытесняются (FIFO).
//
//go:generate mockery --name CheckpointRepository --output ./mocks --outpkg mocks --case=underscore
type CheckpointRepository interface {
	// Save appends a checkpoint, evicting the oldest entries beyond capacity.
	Save(ctx context.Context, checkpoint *models.Checkpoint) error

	// Get retrieves a checkpoint by ID for a viewer/story pair.
	// Returns models.ErrCheckpointNotFound if absent.
	Get(ctx context.Context, viewerID, storyID, checkpointID uuid.UUID) (*models.Checkpoint, error)

	// Latest retrieves the most recently saved checkpoint for the pair.
	// Returns models.ErrCheckpointNotFound if none were saved.
	Latest(ctx context.Context, viewerID, storyID uuid.UUID) (*models.Checkpoint, error)

	// List returns the ring contents ordered oldest first. Reads never mutate.
	List(ctx context.Context, viewerID, storyID uuid.UUID) ([]models.Checkpoint, error)
}
