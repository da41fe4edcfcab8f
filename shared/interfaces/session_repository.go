package interfaces

import (
	"context"

	"storyplay-server/shared/models"

	"github.com/google/uuid"
)

// SessionRepository defines persistence for viewer sessions.
// На пару (viewer, story) существует не более одной сессии; завершенные
// сессии сохраняются навсегда (нужны аналитике).
//
//go:generate mockery --name SessionRepository --output ./mocks --outpkg mocks --case=underscore
type SessionRepository interface {
	// GetByViewerAndStory retrieves the session for a viewer/story pair.
	// Returns models.ErrNotFound if the viewer never started this story.
	GetByViewerAndStory(ctx context.Context, viewerID, storyID uuid.UUID) (*models.Session, error)

	// ListByViewer lists all sessions of a viewer ordered by last activity descending.
	ListByViewer(ctx context.Context, viewerID uuid.UUID) ([]*models.Session, error)

	// Save inserts the session on first call and fully replaces it afterwards.
	Save(ctx context.Context, session *models.Session) error

	// CountByStory returns how many sessions were ever started for a story.
	CountByStory(ctx context.Context, storyID uuid.UUID) (int64, error)
}
