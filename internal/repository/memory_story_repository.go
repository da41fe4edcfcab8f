package repository

import (
	"context"
	"sort"
	"sync"

	"storyplay-server/shared/interfaces"
	"storyplay-server/shared/models"

	"github.com/google/uuid"
)

// MemoryStoryRepository хранит контент историй в памяти. Используется как
// бэкенд STORAGE_BACKEND=memory: локальная разработка и тесты без Postgres.
type MemoryStoryRepository struct {
	mu      sync.RWMutex
	stories map[uuid.UUID]*models.Story
	scenes  map[uuid.UUID][]models.Scene
	choices map[uuid.UUID][]models.Choice
}

// NewMemoryStoryRepository creates an empty in-memory story repository.
func NewMemoryStoryRepository() *MemoryStoryRepository {
	return &MemoryStoryRepository{
		stories: make(map[uuid.UUID]*models.Story),
		scenes:  make(map[uuid.UUID][]models.Scene),
		choices: make(map[uuid.UUID][]models.Choice),
	}
}

var _ interfaces.StoryRepository = (*MemoryStoryRepository)(nil)

// Put загружает или замещает историю целиком. Не входит в интерфейс
// StoryRepository: контент в memory-бэкенде сеется кодом инициализации
// и тестами.
func (r *MemoryStoryRepository) Put(content *models.StoryContent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	story := content.Story
	r.stories[story.ID] = &story
	r.scenes[story.ID] = append([]models.Scene(nil), content.Scenes...)
	r.choices[story.ID] = append([]models.Choice(nil), content.Choices...)
}

// GetStory implements interfaces.StoryRepository.
func (r *MemoryStoryRepository) GetStory(_ context.Context, storyID uuid.UUID) (*models.Story, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	story, ok := r.stories[storyID]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *story
	return &c, nil
}

// GetContent implements interfaces.StoryRepository.
func (r *MemoryStoryRepository) GetContent(_ context.Context, storyID uuid.UUID) (*models.StoryContent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	story, ok := r.stories[storyID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &models.StoryContent{
		Story:   *story,
		Scenes:  append([]models.Scene(nil), r.scenes[storyID]...),
		Choices: append([]models.Choice(nil), r.choices[storyID]...),
	}, nil
}

// ListPublished implements interfaces.StoryRepository.
func (r *MemoryStoryRepository) ListPublished(_ context.Context, limit int) ([]models.Story, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Story, 0, len(r.stories))
	for _, story := range r.stories {
		if story.Status == models.StoryStatusPublished {
			out = append(out, *story)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalPlays != out[j].TotalPlays {
			return out[i].TotalPlays > out[j].TotalPlays
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// IncrementPlays implements interfaces.StoryRepository.
func (r *MemoryStoryRepository) IncrementPlays(_ context.Context, storyID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	story, ok := r.stories[storyID]
	if !ok {
		return models.ErrNotFound
	}
	story.TotalPlays++
	return nil
}
