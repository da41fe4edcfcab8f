package database

import (
	"context"
	"errors"
	"fmt"

	"storyplay-server/shared/interfaces"
	"storyplay-server/shared/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	storyFields = `id, author_id, title, description, thumbnail_url, total_scenes, total_endings, total_plays, status, created_at, published_at`

	getStoryQuery = `
        SELECT ` + storyFields + `
        FROM interactive_stories
        WHERE id = $1
    `
	listPublishedStoriesQuery = `
        SELECT ` + storyFields + `
        FROM interactive_stories
        WHERE status = 'published'
        ORDER BY total_plays DESC, created_at DESC
        LIMIT $1
    `
	incrementStoryPlaysQuery = `
        UPDATE interactive_stories
        SET total_plays = total_plays + 1
        WHERE id = $1
        RETURNING id
    `
	getScenesByStoryQuery = `
        SELECT id, story_id, name, scene_order, scene_type, video_url, video_duration_seconds, choice_appears_at_seconds, choice_timeout_seconds, ending_type
        FROM story_scenes
        WHERE story_id = $1
        ORDER BY scene_order ASC
    `
	getChoicesByStoryQuery = `
        SELECT c.id, c.scene_id, c.next_scene_id, c.choice_order, c.choice_text, c.choice_color
        FROM scene_choices c
        JOIN story_scenes s ON c.scene_id = s.id
        WHERE s.story_id = $1
        ORDER BY c.scene_id, c.choice_order ASC
    `
)

// Compile-time check to ensure pgStoryRepository implements the interface
var _ interfaces.StoryRepository = (*pgStoryRepository)(nil)

// pgStoryRepository is the PostgreSQL implementation of StoryRepository.
type pgStoryRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgStoryRepository creates a new repository instance.
func NewPgStoryRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.StoryRepository {
	return &pgStoryRepository{
		db:     db,
		logger: logger.Named("PgStoryRepo"),
	}
}

// GetStory implements interfaces.StoryRepository.
func (r *pgStoryRepository) GetStory(ctx context.Context, storyID uuid.UUID) (*models.Story, error) {
	var story models.Story
	err := pgxscan.Get(ctx, r.db, &story, getStoryQuery, storyID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get story", zap.String("storyID", storyID.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка при получении истории: %w", err)
	}
	return &story, nil
}

// GetContent implements interfaces.StoryRepository.
func (r *pgStoryRepository) GetContent(ctx context.Context, storyID uuid.UUID) (*models.StoryContent, error) {
	story, err := r.GetStory(ctx, storyID)
	if err != nil {
		return nil, err
	}

	var scenes []models.Scene
	if err := pgxscan.Select(ctx, r.db, &scenes, getScenesByStoryQuery, storyID); err != nil {
		r.logger.Error("Failed to get story scenes", zap.String("storyID", storyID.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка при получении сцен истории: %w", err)
	}

	var choices []models.Choice
	if err := pgxscan.Select(ctx, r.db, &choices, getChoicesByStoryQuery, storyID); err != nil {
		r.logger.Error("Failed to get scene choices", zap.String("storyID", storyID.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка при получении вариантов выбора: %w", err)
	}

	return &models.StoryContent{
		Story:   *story,
		Scenes:  scenes,
		Choices: choices,
	}, nil
}

// ListPublished implements interfaces.StoryRepository.
func (r *pgStoryRepository) ListPublished(ctx context.Context, limit int) ([]models.Story, error) {
	var stories []models.Story
	if err := pgxscan.Select(ctx, r.db, &stories, listPublishedStoriesQuery, limit); err != nil {
		r.logger.Error("Failed to list published stories", zap.Error(err))
		return nil, fmt.Errorf("ошибка при получении списка историй: %w", err)
	}
	return stories, nil
}

// IncrementPlays implements interfaces.StoryRepository.
func (r *pgStoryRepository) IncrementPlays(ctx context.Context, storyID uuid.UUID) error {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, incrementStoryPlaysQuery, storyID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrNotFound
		}
		r.logger.Error("Failed to increment play counter", zap.String("storyID", storyID.String()), zap.Error(err))
		return fmt.Errorf("ошибка при обновлении счетчика просмотров: %w", err)
	}
	return nil
}
