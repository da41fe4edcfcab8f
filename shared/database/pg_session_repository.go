package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"storyplay-server/shared/interfaces"
	"storyplay-server/shared/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	sessionFields = `id, viewer_id, story_id, current_scene_id, visited, visited_total, choices_made, stats, status, ending_type, started_at, last_activity_at, completed_at`

	upsertSessionQuery = `
        INSERT INTO sessions
            (` + sessionFields + `)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        ON CONFLICT (viewer_id, story_id) DO UPDATE SET
            current_scene_id = EXCLUDED.current_scene_id,
            visited = EXCLUDED.visited,
            visited_total = EXCLUDED.visited_total,
            choices_made = EXCLUDED.choices_made,
            stats = EXCLUDED.stats,
            status = EXCLUDED.status,
            ending_type = EXCLUDED.ending_type,
            last_activity_at = EXCLUDED.last_activity_at,
            completed_at = EXCLUDED.completed_at
        RETURNING id
    `
	getSessionByViewerAndStoryQuery = `
        SELECT ` + sessionFields + `
        FROM sessions
        WHERE viewer_id = $1 AND story_id = $2
    `
	listSessionsByViewerQuery = `
        SELECT ` + sessionFields + `
        FROM sessions
        WHERE viewer_id = $1
        ORDER BY last_activity_at DESC
    `
	countSessionsByStoryQuery = `SELECT COUNT(*) FROM sessions WHERE story_id = $1`
)

// Compile-time check to ensure pgSessionRepository implements the interface
var _ interfaces.SessionRepository = (*pgSessionRepository)(nil)

// pgSessionRepository is the PostgreSQL implementation of SessionRepository.
// Журналы хранятся как JSONB: сессия пишется и читается целиком, построчной
// модели у журналов нет.
type pgSessionRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgSessionRepository creates a new repository instance.
func NewPgSessionRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.SessionRepository {
	return &pgSessionRepository{
		db:     db,
		logger: logger.Named("PgSessionRepo"),
	}
}

// GetByViewerAndStory implements interfaces.SessionRepository.
func (r *pgSessionRepository) GetByViewerAndStory(ctx context.Context, viewerID, storyID uuid.UUID) (*models.Session, error) {
	row := r.db.QueryRow(ctx, getSessionByViewerAndStoryQuery, viewerID, storyID)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get session",
			zap.String("viewerID", viewerID.String()),
			zap.String("storyID", storyID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("ошибка при получении сессии: %w", err)
	}
	return sess, nil
}

// ListByViewer implements interfaces.SessionRepository.
func (r *pgSessionRepository) ListByViewer(ctx context.Context, viewerID uuid.UUID) ([]*models.Session, error) {
	rows, err := r.db.Query(ctx, listSessionsByViewerQuery, viewerID)
	if err != nil {
		r.logger.Error("Failed to list sessions", zap.String("viewerID", viewerID.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка при получении списка сессий: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		sess, serr := scanSession(rows)
		if serr != nil {
			return nil, fmt.Errorf("ошибка при чтении сессии: %w", serr)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка при чтении списка сессий: %w", err)
	}
	return out, nil
}

// Save implements interfaces.SessionRepository.
func (r *pgSessionRepository) Save(ctx context.Context, session *models.Session) error {
	choicesJSON, err := json.Marshal(session.ChoicesMade)
	if err != nil {
		return fmt.Errorf("ошибка при сериализации журнала решений: %w", err)
	}
	statsJSON, err := json.Marshal(session.Stats)
	if err != nil {
		return fmt.Errorf("ошибка при сериализации статов: %w", err)
	}

	var id uuid.UUID
	err = r.db.QueryRow(ctx, upsertSessionQuery,
		session.ID,
		session.ViewerID,
		session.StoryID,
		session.CurrentSceneID,
		session.Visited,
		session.VisitedTotal,
		choicesJSON,
		statsJSON,
		session.Status,
		session.EndingType,
		session.StartedAt,
		session.LastActivityAt,
		session.CompletedAt,
	).Scan(&id)
	if err != nil {
		r.logger.Error("Failed to save session", zap.String("sessionID", session.ID.String()), zap.Error(err))
		return fmt.Errorf("ошибка при сохранении сессии: %w", err)
	}
	return nil
}

// CountByStory implements interfaces.SessionRepository.
func (r *pgSessionRepository) CountByStory(ctx context.Context, storyID uuid.UUID) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, countSessionsByStoryQuery, storyID).Scan(&n); err != nil {
		r.logger.Error("Failed to count sessions", zap.String("storyID", storyID.String()), zap.Error(err))
		return 0, fmt.Errorf("ошибка при подсчете сессий: %w", err)
	}
	return n, nil
}

// scanSession читает одну строку sessions, разворачивая JSONB-журналы.
func scanSession(row pgx.Row) (*models.Session, error) {
	var sess models.Session
	var choicesJSON, statsJSON []byte

	err := row.Scan(
		&sess.ID,
		&sess.ViewerID,
		&sess.StoryID,
		&sess.CurrentSceneID,
		&sess.Visited,
		&sess.VisitedTotal,
		&choicesJSON,
		&statsJSON,
		&sess.Status,
		&sess.EndingType,
		&sess.StartedAt,
		&sess.LastActivityAt,
		&sess.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	if len(choicesJSON) > 0 {
		if err := json.Unmarshal(choicesJSON, &sess.ChoicesMade); err != nil {
			return nil, fmt.Errorf("некорректный журнал решений: %w", err)
		}
	}
	if sess.ChoicesMade == nil {
		sess.ChoicesMade = []models.ChoiceRecord{}
	}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &sess.Stats); err != nil {
			return nil, fmt.Errorf("некорректные статы сессии: %w", err)
		}
	}
	if sess.Stats == nil {
		sess.Stats = map[string]any{}
	}
	return &sess, nil
}
