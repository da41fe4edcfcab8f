package service

import (
	"context"

	"storyplay-server/internal/story"
	"storyplay-server/shared/interfaces"
	"storyplay-server/shared/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StoryService отдает контент историй для плеера.
type StoryService interface {
	// GetStoryTree returns the full story graph for the player and bumps the
	// story's play counter.
	GetStoryTree(ctx context.Context, storyID uuid.UUID) (*models.StoryContent, error)

	// ListStories lists published stories ordered by popularity.
	ListStories(ctx context.Context, limit int) ([]models.Story, error)
}

type storyServiceImpl struct {
	loader  *story.Loader
	stories interfaces.StoryRepository
	logger  *zap.Logger
}

// NewStoryService creates a new instance of StoryService.
func NewStoryService(loader *story.Loader, stories interfaces.StoryRepository, logger *zap.Logger) StoryService {
	return &storyServiceImpl{
		loader:  loader,
		stories: stories,
		logger:  logger.Named("StoryService"),
	}
}

var _ StoryService = (*storyServiceImpl)(nil)

// GetStoryTree implements StoryService.
func (s *storyServiceImpl) GetStoryTree(ctx context.Context, storyID uuid.UUID) (*models.StoryContent, error) {
	g, err := s.loader.Load(ctx, storyID)
	if err != nil {
		return nil, err
	}

	// Счетчик просмотров не критичен для выдачи контента.
	if err := s.stories.IncrementPlays(ctx, storyID); err != nil {
		s.logger.Error("Failed to increment play counter", zap.String("storyID", storyID.String()), zap.Error(err))
	}

	return g.Content(), nil
}

// ListStories implements StoryService.
func (s *storyServiceImpl) ListStories(ctx context.Context, limit int) ([]models.Story, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.stories.ListPublished(ctx, limit)
}
