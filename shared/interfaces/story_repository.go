package interfaces

import (
	"context"

	"storyplay-server/shared/models"

	"github.com/google/uuid"
)

// StoryRepository defines read access to published story content.
//
//go:generate mockery --name StoryRepository --output ./mocks --outpkg mocks --case=underscore
type StoryRepository interface {
	// GetStory retrieves story metadata by ID.
	// Returns models.ErrNotFound if the story does not exist.
	GetStory(ctx context.Context, storyID uuid.UUID) (*models.Story, error)

	// GetContent retrieves the full story slice: metadata, scenes and choices.
	// Returns models.ErrNotFound if the story does not exist. A story with zero
	// scenes is returned as-is; rejecting it is the graph loader's job.
	GetContent(ctx context.Context, storyID uuid.UUID) (*models.StoryContent, error)

	// ListPublished lists published stories ordered by total plays descending.
	ListPublished(ctx context.Context, limit int) ([]models.Story, error)

	// IncrementPlays atomically bumps the story's play counter.
	IncrementPlays(ctx context.Context, storyID uuid.UUID) error
}

// GraphCache кэширует загруженный StoryContent между запросами.
// Реализация поверх Redis; nil-значение допустимо и означает "без кэша".
type GraphCache interface {
	// Get returns the cached content or models.ErrNotFound on miss.
	Get(ctx context.Context, storyID uuid.UUID) (*models.StoryContent, error)

	// Set stores the content under the configured TTL.
	Set(ctx context.Context, content *models.StoryContent) error

	// Invalidate drops the cached entry for a story.
	Invalidate(ctx context.Context, storyID uuid.UUID) error
}
