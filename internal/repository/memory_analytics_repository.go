package repository

import (
	"context"
	"sort"
	"sync"

	"storyplay-server/shared/interfaces"
	"storyplay-server/shared/models"

	"github.com/google/uuid"
)

// memoryAnalyticsRepository - append-only журнал аналитики в памяти.
// Повторная запись с известным ID молча игнорируется.
type memoryAnalyticsRepository struct {
	mu          sync.RWMutex
	choices     map[uuid.UUID]models.ChoiceEvent
	completions map[uuid.UUID]models.CompletionRecord
}

// NewMemoryAnalyticsRepository creates an empty in-memory analytics log.
func NewMemoryAnalyticsRepository() *memoryAnalyticsRepository {
	return &memoryAnalyticsRepository{
		choices:     make(map[uuid.UUID]models.ChoiceEvent),
		completions: make(map[uuid.UUID]models.CompletionRecord),
	}
}

var _ interfaces.AnalyticsRepository = (*memoryAnalyticsRepository)(nil)

// RecordChoice implements interfaces.AnalyticsRepository.
func (r *memoryAnalyticsRepository) RecordChoice(_ context.Context, event models.ChoiceEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.choices[event.ID]; exists {
		return nil
	}
	r.choices[event.ID] = event
	return nil
}

// RecordCompletion implements interfaces.AnalyticsRepository.
func (r *memoryAnalyticsRepository) RecordCompletion(_ context.Context, record models.CompletionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.completions[record.ID]; exists {
		return nil
	}
	r.completions[record.ID] = record
	return nil
}

// CountChoices implements interfaces.AnalyticsRepository.
func (r *memoryAnalyticsRepository) CountChoices(_ context.Context, storyID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, ev := range r.choices {
		if ev.StoryID == storyID {
			n++
		}
	}
	return n, nil
}

// ListCompletions implements interfaces.AnalyticsRepository.
func (r *memoryAnalyticsRepository) ListCompletions(_ context.Context, storyID uuid.UUID) ([]models.CompletionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.CompletionRecord
	for _, rec := range r.completions {
		if rec.StoryID == storyID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedAt.Before(out[j].CompletedAt)
	})
	return out, nil
}
