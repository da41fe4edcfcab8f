package database

import (
	"context"
	"fmt"

	"storyplay-server/shared/interfaces"
	"storyplay-server/shared/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	insertChoiceEventQuery = `
        INSERT INTO choice_events
            (id, story_id, session_id, scene_id, choice_id, decided_by, time_to_decide_seconds, recorded_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO NOTHING
    `
	insertCompletionRecordQuery = `
        INSERT INTO completion_records
            (id, story_id, session_id, ending_type, completed_at)
        VALUES
            ($1, $2, $3, $4, $5)
        ON CONFLICT (id) DO NOTHING
    `
	countChoiceEventsQuery = `SELECT COUNT(*) FROM choice_events WHERE story_id = $1`

	listCompletionRecordsQuery = `
        SELECT id, story_id, session_id, ending_type, completed_at
        FROM completion_records
        WHERE story_id = $1
        ORDER BY completed_at ASC
    `
)

// Compile-time check to ensure pgAnalyticsRepository implements the interface
var _ interfaces.AnalyticsRepository = (*pgAnalyticsRepository)(nil)

// pgAnalyticsRepository is the PostgreSQL implementation of AnalyticsRepository.
// Идемпотентность записи обеспечивается ON CONFLICT (id) DO NOTHING:
// детерминированные ID событий делают ретраи безопасными.
type pgAnalyticsRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgAnalyticsRepository creates a new repository instance.
func NewPgAnalyticsRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.AnalyticsRepository {
	return &pgAnalyticsRepository{
		db:     db,
		logger: logger.Named("PgAnalyticsRepo"),
	}
}

// RecordChoice implements interfaces.AnalyticsRepository.
func (r *pgAnalyticsRepository) RecordChoice(ctx context.Context, event models.ChoiceEvent) error {
	_, err := r.db.Exec(ctx, insertChoiceEventQuery,
		event.ID,
		event.StoryID,
		event.SessionID,
		event.SceneID,
		event.ChoiceID,
		event.DecidedBy,
		event.TimeToDecideSec,
		event.RecordedAt,
	)
	if err != nil {
		r.logger.Error("Failed to record choice event", zap.String("eventID", event.ID.String()), zap.Error(err))
		return fmt.Errorf("ошибка при записи события выбора: %w", err)
	}
	return nil
}

// RecordCompletion implements interfaces.AnalyticsRepository.
func (r *pgAnalyticsRepository) RecordCompletion(ctx context.Context, record models.CompletionRecord) error {
	_, err := r.db.Exec(ctx, insertCompletionRecordQuery,
		record.ID,
		record.StoryID,
		record.SessionID,
		record.EndingType,
		record.CompletedAt,
	)
	if err != nil {
		r.logger.Error("Failed to record completion", zap.String("recordID", record.ID.String()), zap.Error(err))
		return fmt.Errorf("ошибка при записи факта завершения: %w", err)
	}
	return nil
}

// CountChoices implements interfaces.AnalyticsRepository.
func (r *pgAnalyticsRepository) CountChoices(ctx context.Context, storyID uuid.UUID) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, countChoiceEventsQuery, storyID).Scan(&n); err != nil {
		r.logger.Error("Failed to count choice events", zap.String("storyID", storyID.String()), zap.Error(err))
		return 0, fmt.Errorf("ошибка при подсчете событий выбора: %w", err)
	}
	return n, nil
}

// ListCompletions implements interfaces.AnalyticsRepository.
func (r *pgAnalyticsRepository) ListCompletions(ctx context.Context, storyID uuid.UUID) ([]models.CompletionRecord, error) {
	var out []models.CompletionRecord
	if err := pgxscan.Select(ctx, r.db, &out, listCompletionRecordsQuery, storyID); err != nil {
		r.logger.Error("Failed to list completions", zap.String("storyID", storyID.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка при получении фактов завершения: %w", err)
	}
	return out, nil
}
