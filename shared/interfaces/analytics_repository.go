package interfaces

import (
	"context"

	"storyplay-server/shared/models"

	"github.com/google/uuid"
)

// AnalyticsRepository defines the append-only event log for outcome analytics.
// Записи неизменяемы: только добавление и агрегация. Запись с уже известным
// ID молча игнорируется - это и есть защита от двойного учета при ретраях.
//
//go:generate mockery --name AnalyticsRepository --output ./mocks --outpkg mocks --case=underscore
type AnalyticsRepository interface {
	// RecordChoice appends a choice event. Duplicate event IDs are no-ops.
	RecordChoice(ctx context.Context, event models.ChoiceEvent) error

	// RecordCompletion appends a completion record. Duplicate IDs are no-ops.
	RecordCompletion(ctx context.Context, record models.CompletionRecord) error

	// CountChoices returns the number of recorded choice events for a story.
	CountChoices(ctx context.Context, storyID uuid.UUID) (int64, error)

	// ListCompletions returns all completion records for a story.
	ListCompletions(ctx context.Context, storyID uuid.UUID) ([]models.CompletionRecord, error)
}
