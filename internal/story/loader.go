package story

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"storyplay-server/shared/interfaces"
	"storyplay-server/shared/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Loader загружает и строит графы историй. Построенные графы неизменяемы и
// мемоизируются в процессе; срез контента дополнительно кэшируется в Redis,
// чтобы соседние инстансы не ходили в базу за каждой историей.
type Loader struct {
	stories interfaces.StoryRepository
	cache   interfaces.GraphCache // может быть nil
	policy  EntryPolicy
	logger  *zap.Logger

	mu     sync.RWMutex
	graphs map[uuid.UUID]*Graph
}

// NewLoader creates a graph loader. cache may be nil.
func NewLoader(stories interfaces.StoryRepository, cache interfaces.GraphCache, policy EntryPolicy, logger *zap.Logger) *Loader {
	if policy != EntryPolicyRequireIntro {
		policy = EntryPolicyFirstByOrder
	}
	return &Loader{
		stories: stories,
		cache:   cache,
		policy:  policy,
		logger:  logger.Named("StoryLoader"),
		graphs:  make(map[uuid.UUID]*Graph),
	}
}

// Load returns the graph for a story, building it on first use.
// Ошибки контента возвращаются как есть: они фатальны для этой истории.
func (l *Loader) Load(ctx context.Context, storyID uuid.UUID) (*Graph, error) {
	l.mu.RLock()
	g, ok := l.graphs[storyID]
	l.mu.RUnlock()
	if ok {
		return g, nil
	}

	content, err := l.fetchContent(ctx, storyID)
	if err != nil {
		return nil, err
	}

	g, err = NewGraph(content, l.policy)
	if err != nil {
		l.logger.Error("Story rejected at load time",
			zap.String("storyID", storyID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	l.mu.Lock()
	// Параллельная загрузка могла успеть раньше; оставляем первый граф.
	if existing, ok := l.graphs[storyID]; ok {
		g = existing
	} else {
		l.graphs[storyID] = g
	}
	l.mu.Unlock()

	l.logger.Debug("Story graph loaded",
		zap.String("storyID", storyID.String()),
		zap.Int("scenes", g.SceneCount()),
	)
	return g, nil
}

// Invalidate сбрасывает мемоизацию и кэш для истории (например, после
// повторной публикации).
func (l *Loader) Invalidate(ctx context.Context, storyID uuid.UUID) {
	l.mu.Lock()
	delete(l.graphs, storyID)
	l.mu.Unlock()

	if l.cache != nil {
		if err := l.cache.Invalidate(ctx, storyID); err != nil {
			l.logger.Warn("Failed to invalidate graph cache", zap.String("storyID", storyID.String()), zap.Error(err))
		}
	}
}

func (l *Loader) fetchContent(ctx context.Context, storyID uuid.UUID) (*models.StoryContent, error) {
	if l.cache != nil {
		content, err := l.cache.Get(ctx, storyID)
		if err == nil {
			return content, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			// Кэш недоступен - идем в базу, это не фатально.
			l.logger.Warn("Graph cache read failed", zap.String("storyID", storyID.String()), zap.Error(err))
		}
	}

	content, err := l.stories.GetContent(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("load story %s: %w", storyID, err)
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, content); err != nil {
			l.logger.Warn("Graph cache write failed", zap.String("storyID", storyID.String()), zap.Error(err))
		}
	}
	return content, nil
}
