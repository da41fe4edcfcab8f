package repository

import (
	"context"
	"sync"

	"storyplay-server/shared/interfaces"
	"storyplay-server/shared/models"

	"github.com/google/uuid"
)

// memoryCheckpointRepository хранит чекпоинты в кольцевом буфере фиксированной
// емкости на пару (viewer, story). Самая старая запись вытесняется при
// сохранении сверх лимита.
type memoryCheckpointRepository struct {
	mu    sync.RWMutex
	slots int
	rings map[sessionPairKey][]models.Checkpoint
}

// NewMemoryCheckpointRepository creates a checkpoint repository keeping at most
// slots checkpoints per viewer/story pair.
func NewMemoryCheckpointRepository(slots int) *memoryCheckpointRepository {
	if slots <= 0 {
		slots = 5
	}
	return &memoryCheckpointRepository{
		slots: slots,
		rings: make(map[sessionPairKey][]models.Checkpoint),
	}
}

var _ interfaces.CheckpointRepository = (*memoryCheckpointRepository)(nil)

// Save implements interfaces.CheckpointRepository.
func (r *memoryCheckpointRepository) Save(_ context.Context, checkpoint *models.Checkpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sessionPairKey{ViewerID: checkpoint.ViewerID, StoryID: checkpoint.StoryID}
	ring := append(r.rings[key], *cloneCheckpoint(checkpoint))
	if len(ring) > r.slots {
		ring = append([]models.Checkpoint(nil), ring[len(ring)-r.slots:]...)
	}
	r.rings[key] = ring
	return nil
}

// Get implements interfaces.CheckpointRepository.
func (r *memoryCheckpointRepository) Get(_ context.Context, viewerID, storyID, checkpointID uuid.UUID) (*models.Checkpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cp := range r.rings[sessionPairKey{ViewerID: viewerID, StoryID: storyID}] {
		if cp.ID == checkpointID {
			return cloneCheckpoint(&cp), nil
		}
	}
	return nil, models.ErrCheckpointNotFound
}

// Latest implements interfaces.CheckpointRepository.
func (r *memoryCheckpointRepository) Latest(_ context.Context, viewerID, storyID uuid.UUID) (*models.Checkpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ring := r.rings[sessionPairKey{ViewerID: viewerID, StoryID: storyID}]
	if len(ring) == 0 {
		return nil, models.ErrCheckpointNotFound
	}
	return cloneCheckpoint(&ring[len(ring)-1]), nil
}

// List implements interfaces.CheckpointRepository.
func (r *memoryCheckpointRepository) List(_ context.Context, viewerID, storyID uuid.UUID) ([]models.Checkpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ring := r.rings[sessionPairKey{ViewerID: viewerID, StoryID: storyID}]
	out := make([]models.Checkpoint, 0, len(ring))
	for i := range ring {
		out = append(out, *cloneCheckpoint(&ring[i]))
	}
	return out, nil
}

func cloneCheckpoint(cp *models.Checkpoint) *models.Checkpoint {
	c := *cp
	c.Visited = append([]uuid.UUID(nil), cp.Visited...)
	c.ChoicesMade = append([]models.ChoiceRecord(nil), cp.ChoicesMade...)
	if cp.Stats != nil {
		c.Stats = make(map[string]any, len(cp.Stats))
		for k, v := range cp.Stats {
			c.Stats[k] = v
		}
	}
	return &c
}
