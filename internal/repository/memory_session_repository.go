package repository

import (
	"context"
	"sort"
	"sync"

	"storyplay-server/shared/interfaces"
	"storyplay-server/shared/models"

	"github.com/google/uuid"
)

type sessionPairKey struct {
	ViewerID uuid.UUID
	StoryID  uuid.UUID
}

// memorySessionRepository хранит сессии в памяти с клонированием на границе:
// вызывающий код никогда не делит память с хранилищем.
type memorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[sessionPairKey]*models.Session
}

// NewMemorySessionRepository creates an empty in-memory session repository.
func NewMemorySessionRepository() *memorySessionRepository {
	return &memorySessionRepository{
		sessions: make(map[sessionPairKey]*models.Session),
	}
}

var _ interfaces.SessionRepository = (*memorySessionRepository)(nil)

// GetByViewerAndStory implements interfaces.SessionRepository.
func (r *memorySessionRepository) GetByViewerAndStory(_ context.Context, viewerID, storyID uuid.UUID) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[sessionPairKey{ViewerID: viewerID, StoryID: storyID}]
	if !ok {
		return nil, models.ErrNotFound
	}
	return sess.Clone(), nil
}

// ListByViewer implements interfaces.SessionRepository.
func (r *memorySessionRepository) ListByViewer(_ context.Context, viewerID uuid.UUID) ([]*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Session
	for key, sess := range r.sessions {
		if key.ViewerID == viewerID {
			out = append(out, sess.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	return out, nil
}

// Save implements interfaces.SessionRepository.
func (r *memorySessionRepository) Save(_ context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[sessionPairKey{ViewerID: session.ViewerID, StoryID: session.StoryID}] = session.Clone()
	return nil
}

// CountByStory implements interfaces.SessionRepository.
func (r *memorySessionRepository) CountByStory(_ context.Context, storyID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for key := range r.sessions {
		if key.StoryID == storyID {
			n++
		}
	}
	return n, nil
}
