package models

import (
	"context"

	"github.com/google/uuid"
)

// contextKey - приватный тип для ключей контекста, чтобы избежать коллизий.
type contextKey string

const (
	// ViewerContextKey используется как ключ для хранения ViewerID в контексте запроса.
	ViewerContextKey contextKey = "viewerID"
)

// GetViewerIDFromContext извлекает идентификатор зрителя из контекста.
// Возвращает uuid.Nil и false, если ключ отсутствует или имеет неверный тип.
func GetViewerIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	viewerID, ok := ctx.Value(ViewerContextKey).(uuid.UUID)
	return viewerID, ok
}
