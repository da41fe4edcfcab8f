package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storyplay-server/shared/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SaveCheckpoint implements SessionService.
func (s *sessionServiceImpl) SaveCheckpoint(ctx context.Context, viewerID, storyID uuid.UUID, name string) (*models.Checkpoint, error) {
	key := sessionKey(viewerID, storyID)
	unlock := s.locks.acquire(key)
	defer unlock()

	sess, err := s.sessions.GetByViewerAndStory(ctx, viewerID, storyID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Нет сессии - нечего сохранять.
			return nil, models.ErrNothingToSave
		}
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		existing, lerr := s.checkpoints.List(ctx, viewerID, storyID)
		if lerr != nil {
			return nil, fmt.Errorf("save checkpoint: %w", lerr)
		}
		name = fmt.Sprintf("Save %d", len(existing)+1)
	}

	cp := &models.Checkpoint{
		ID:           uuid.New(),
		ViewerID:     viewerID,
		StoryID:      storyID,
		Name:         name,
		SceneID:      sess.CurrentSceneID,
		Visited:      append([]uuid.UUID(nil), sess.Visited...),
		VisitedTotal: sess.VisitedTotal,
		ChoicesMade:  append([]models.ChoiceRecord(nil), sess.ChoicesMade...),
		Stats:        cloneStats(sess.Stats),
		SavedAt:      time.Now().UTC(),
	}
	if err := s.checkpoints.Save(ctx, cp); err != nil {
		return nil, fmt.Errorf("save checkpoint: %w", err)
	}

	s.logger.Info("Checkpoint saved",
		zap.String("checkpointID", cp.ID.String()),
		zap.String("sessionID", sess.ID.String()),
		zap.String("name", cp.Name),
	)
	return cp, nil
}

// ListCheckpoints implements SessionService.
func (s *sessionServiceImpl) ListCheckpoints(ctx context.Context, viewerID, storyID uuid.UUID) ([]models.Checkpoint, error) {
	return s.checkpoints.List(ctx, viewerID, storyID)
}

// LoadCheckpoint implements SessionService.
//
// Восстановление полностью замещает текущее состояние сессии снимком,
// включая откат после достигнутой концовки. Открытое окно выбора при этом
// закрывается без разрешения.
func (s *sessionServiceImpl) LoadCheckpoint(ctx context.Context, viewerID, storyID uuid.UUID, checkpointID *uuid.UUID) (*models.Session, error) {
	g, err := s.loader.Load(ctx, storyID)
	if err != nil {
		return nil, err
	}

	key := sessionKey(viewerID, storyID)
	unlock := s.locks.acquire(key)
	defer unlock()

	var cp *models.Checkpoint
	if checkpointID != nil {
		cp, err = s.checkpoints.Get(ctx, viewerID, storyID, *checkpointID)
	} else {
		cp, err = s.checkpoints.Latest(ctx, viewerID, storyID)
	}
	if err != nil {
		return nil, err
	}

	restored, err := g.Scene(cp.SceneID)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s points at missing scene: %w", cp.ID, models.ErrInvalidGraph)
	}

	sess, err := s.sessions.GetByViewerAndStory(ctx, viewerID, storyID)
	if err != nil {
		return nil, err
	}

	// Незакрытое окно выбора становится недействительным.
	s.dropClock(key, true)

	now := time.Now().UTC()
	upd := sess.Clone()
	upd.CurrentSceneID = cp.SceneID
	upd.Visited = append([]uuid.UUID(nil), cp.Visited...)
	upd.VisitedTotal = cp.VisitedTotal
	upd.ChoicesMade = append([]models.ChoiceRecord(nil), cp.ChoicesMade...)
	upd.Stats = cloneStats(cp.Stats)
	upd.LastActivityAt = now
	if restored.IsEnding() {
		upd.Status = models.SessionStatusCompleted
		ending := models.EndingTypeNeutral
		if restored.EndingType != nil {
			ending = *restored.EndingType
		}
		upd.EndingType = &ending
	} else {
		upd.Status = models.SessionStatusPlaying
		upd.EndingType = nil
		upd.CompletedAt = nil
	}

	if err := s.sessions.Save(ctx, upd); err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	s.logger.Info("Checkpoint restored",
		zap.String("checkpointID", cp.ID.String()),
		zap.String("sessionID", upd.ID.String()),
		zap.String("sceneID", cp.SceneID.String()),
	)
	return upd, nil
}

func cloneStats(stats map[string]any) map[string]any {
	if stats == nil {
		return map[string]any{}
	}
	c := make(map[string]any, len(stats))
	for k, v := range stats {
		c[k] = v
	}
	return c
}
