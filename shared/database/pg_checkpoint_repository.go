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
	checkpointFields = `id, viewer_id, story_id, name, scene_id, visited, visited_total, choices_made, stats, saved_at`

	insertCheckpointQuery = `
        INSERT INTO checkpoints
            (` + checkpointFields + `)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id
    `
	evictCheckpointsQuery = `
        DELETE FROM checkpoints
        WHERE viewer_id = $1 AND story_id = $2 AND id NOT IN (
            SELECT id FROM checkpoints
            WHERE viewer_id = $1 AND story_id = $2
            ORDER BY saved_at DESC, id DESC
            LIMIT $3
        )
    `
	getCheckpointQuery = `
        SELECT ` + checkpointFields + `
        FROM checkpoints
        WHERE viewer_id = $1 AND story_id = $2 AND id = $3
    `
	latestCheckpointQuery = `
        SELECT ` + checkpointFields + `
        FROM checkpoints
        WHERE viewer_id = $1 AND story_id = $2
        ORDER BY saved_at DESC, id DESC
        LIMIT 1
    `
	listCheckpointsQuery = `
        SELECT ` + checkpointFields + `
        FROM checkpoints
        WHERE viewer_id = $1 AND story_id = $2
        ORDER BY saved_at ASC, id ASC
    `
)

// Compile-time check to ensure pgCheckpointRepository implements the interface
var _ interfaces.CheckpointRepository = (*pgCheckpointRepository)(nil)

// pgCheckpointRepository is the PostgreSQL implementation of CheckpointRepository.
// Емкость кольца применяется на записи: после вставки лишние записи пары
// (viewer, story) удаляются начиная с самых старых. Сервисный слой
// сериализует операции над парой, поэтому гонок вставка/вытеснение нет.
type pgCheckpointRepository struct {
	db     interfaces.DBTX
	slots  int
	logger *zap.Logger
}

// NewPgCheckpointRepository creates a repository keeping at most slots
// checkpoints per viewer/story pair.
func NewPgCheckpointRepository(db interfaces.DBTX, slots int, logger *zap.Logger) interfaces.CheckpointRepository {
	if slots <= 0 {
		slots = 5
	}
	return &pgCheckpointRepository{
		db:     db,
		slots:  slots,
		logger: logger.Named("PgCheckpointRepo"),
	}
}

// Save implements interfaces.CheckpointRepository.
func (r *pgCheckpointRepository) Save(ctx context.Context, checkpoint *models.Checkpoint) error {
	choicesJSON, err := json.Marshal(checkpoint.ChoicesMade)
	if err != nil {
		return fmt.Errorf("ошибка при сериализации журнала решений: %w", err)
	}
	statsJSON, err := json.Marshal(checkpoint.Stats)
	if err != nil {
		return fmt.Errorf("ошибка при сериализации статов: %w", err)
	}

	var id uuid.UUID
	err = r.db.QueryRow(ctx, insertCheckpointQuery,
		checkpoint.ID,
		checkpoint.ViewerID,
		checkpoint.StoryID,
		checkpoint.Name,
		checkpoint.SceneID,
		checkpoint.Visited,
		checkpoint.VisitedTotal,
		choicesJSON,
		statsJSON,
		checkpoint.SavedAt,
	).Scan(&id)
	if err != nil {
		r.logger.Error("Failed to insert checkpoint", zap.String("checkpointID", checkpoint.ID.String()), zap.Error(err))
		return fmt.Errorf("ошибка при сохранении чекпоинта: %w", err)
	}

	if _, err := r.db.Exec(ctx, evictCheckpointsQuery, checkpoint.ViewerID, checkpoint.StoryID, r.slots); err != nil {
		r.logger.Error("Failed to evict old checkpoints",
			zap.String("viewerID", checkpoint.ViewerID.String()),
			zap.String("storyID", checkpoint.StoryID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("ошибка при вытеснении старых чекпоинтов: %w", err)
	}
	return nil
}

// Get implements interfaces.CheckpointRepository.
func (r *pgCheckpointRepository) Get(ctx context.Context, viewerID, storyID, checkpointID uuid.UUID) (*models.Checkpoint, error) {
	row := r.db.QueryRow(ctx, getCheckpointQuery, viewerID, storyID, checkpointID)
	cp, err := scanCheckpoint(row)
	if err != nil {
		if errors.Is(err, models.ErrCheckpointNotFound) {
			return nil, models.ErrCheckpointNotFound
		}
		r.logger.Error("Failed to get checkpoint", zap.String("checkpointID", checkpointID.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка при получении чекпоинта: %w", err)
	}
	return cp, nil
}

// Latest implements interfaces.CheckpointRepository.
func (r *pgCheckpointRepository) Latest(ctx context.Context, viewerID, storyID uuid.UUID) (*models.Checkpoint, error) {
	row := r.db.QueryRow(ctx, latestCheckpointQuery, viewerID, storyID)
	cp, err := scanCheckpoint(row)
	if err != nil {
		if errors.Is(err, models.ErrCheckpointNotFound) {
			return nil, models.ErrCheckpointNotFound
		}
		r.logger.Error("Failed to get latest checkpoint",
			zap.String("viewerID", viewerID.String()),
			zap.String("storyID", storyID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("ошибка при получении последнего чекпоинта: %w", err)
	}
	return cp, nil
}

// List implements interfaces.CheckpointRepository.
func (r *pgCheckpointRepository) List(ctx context.Context, viewerID, storyID uuid.UUID) ([]models.Checkpoint, error) {
	rows, err := r.db.Query(ctx, listCheckpointsQuery, viewerID, storyID)
	if err != nil {
		r.logger.Error("Failed to list checkpoints",
			zap.String("viewerID", viewerID.String()),
			zap.String("storyID", storyID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("ошибка при получении списка чекпоинтов: %w", err)
	}
	defer rows.Close()

	out := []models.Checkpoint{}
	for rows.Next() {
		cp, serr := scanCheckpoint(rows)
		if serr != nil {
			return nil, fmt.Errorf("ошибка при чтении чекпоинта: %w", serr)
		}
		out = append(out, *cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка при чтении списка чекпоинтов: %w", err)
	}
	return out, nil
}

// scanCheckpoint читает одну строку checkpoints, разворачивая JSONB-поля.
func scanCheckpoint(row pgx.Row) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	var choicesJSON, statsJSON []byte

	err := row.Scan(
		&cp.ID,
		&cp.ViewerID,
		&cp.StoryID,
		&cp.Name,
		&cp.SceneID,
		&cp.Visited,
		&cp.VisitedTotal,
		&choicesJSON,
		&statsJSON,
		&cp.SavedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrCheckpointNotFound
		}
		return nil, err
	}

	if len(choicesJSON) > 0 {
		if err := json.Unmarshal(choicesJSON, &cp.ChoicesMade); err != nil {
			return nil, fmt.Errorf("некорректный журнал решений: %w", err)
		}
	}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &cp.Stats); err != nil {
			return nil, fmt.Errorf("некорректные статы чекпоинта: %w", err)
		}
	}
	return &cp, nil
}
