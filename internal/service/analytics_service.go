package service

import (
	"context"
	"fmt"

	"storyplay-server/internal/story"
	"storyplay-server/shared/interfaces"
	"storyplay-server/shared/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AnalyticsService агрегирует журнал событий в сводку по истории.
// Агрегация выполняется на чтении: журнал append-only, предвычисленных
// счетчиков нет.
type AnalyticsService interface {
	// GetStorySummary returns aggregate analytics for a story. Only the story
	// author may read them; other viewers get models.ErrForbidden.
	GetStorySummary(ctx context.Context, viewerID, storyID uuid.UUID) (*models.StorySummary, error)
}

type analyticsServiceImpl struct {
	loader    *story.Loader
	sessions  interfaces.SessionRepository
	analytics interfaces.AnalyticsRepository
	logger    *zap.Logger
}

// NewAnalyticsService creates a new instance of AnalyticsService.
func NewAnalyticsService(
	loader *story.Loader,
	sessions interfaces.SessionRepository,
	analytics interfaces.AnalyticsRepository,
	logger *zap.Logger,
) AnalyticsService {
	return &analyticsServiceImpl{
		loader:    loader,
		sessions:  sessions,
		analytics: analytics,
		logger:    logger.Named("AnalyticsService"),
	}
}

var _ AnalyticsService = (*analyticsServiceImpl)(nil)

// GetStorySummary implements AnalyticsService.
func (s *analyticsServiceImpl) GetStorySummary(ctx context.Context, viewerID, storyID uuid.UUID) (*models.StorySummary, error) {
	g, err := s.loader.Load(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if g.Story().AuthorID != viewerID {
		return nil, fmt.Errorf("viewer %s is not the author of story %s: %w", viewerID, storyID, models.ErrForbidden)
	}

	totalChoices, err := s.analytics.CountChoices(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("aggregate choices: %w", err)
	}
	totalPlayers, err := s.sessions.CountByStory(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("aggregate players: %w", err)
	}
	completions, err := s.analytics.ListCompletions(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("aggregate completions: %w", err)
	}

	endings := make(map[models.EndingType]int64)
	for _, c := range completions {
		endings[c.EndingType]++
	}

	return &models.StorySummary{
		StoryID:      storyID,
		TotalChoices: totalChoices,
		TotalPlayers: totalPlayers,
		Completions:  int64(len(completions)),
		Endings:      endings,
	}, nil
}
