package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus - состояние просмотра истории одним зрителем.
type SessionStatus string

const (
	SessionStatusPlaying        SessionStatus = "playing"
	SessionStatusAwaitingChoice SessionStatus = "awaiting_choice"
	SessionStatusCompleted      SessionStatus = "completed"
)

// DecidedBy указывает, кто разрешил точку выбора.
type DecidedBy string

const (
	DecidedByUser    DecidedBy = "user"
	DecidedByTimeout DecidedBy = "timeout"
)

// ChoiceRecord - одна запись в журнале принятых решений сессии.
type ChoiceRecord struct {
	SceneID         uuid.UUID `json:"sceneId"`
	ChoiceID        uuid.UUID `json:"choiceId"`
	DecidedBy       DecidedBy `json:"decidedBy"`
	TimeToDecideSec float64   `json:"timeToDecideSeconds"`
	DecidedAt       time.Time `json:"decidedAt"`
}

// Session хранит состояние прохождения одной истории одним зрителем.
// На пару (viewer, story) существует не более одной сессии; после завершения
// сессия сохраняется для аналитики и никогда не удаляется.
//
// Visited - упорядоченный журнал посещенных сцен. На циклических графах он
// ограничен сверху (см. VISITED_LOG_LIMIT): старые записи отбрасываются,
// VisitedTotal продолжает считать все посещения.
type Session struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	ViewerID       uuid.UUID      `db:"viewer_id" json:"viewerId"`
	StoryID        uuid.UUID      `db:"story_id" json:"storyId"`
	CurrentSceneID uuid.UUID      `db:"current_scene_id" json:"currentSceneId"`
	Visited        []uuid.UUID    `db:"visited" json:"visited"`
	VisitedTotal   int            `db:"visited_total" json:"visitedTotal"`
	ChoicesMade    []ChoiceRecord `db:"choices_made" json:"choicesMade"`
	Stats          map[string]any `db:"stats" json:"stats,omitempty"`
	Status         SessionStatus  `db:"status" json:"status"`
	EndingType     *EndingType    `db:"ending_type" json:"endingType,omitempty"`
	StartedAt      time.Time      `db:"started_at" json:"startedAt"`
	LastActivityAt time.Time      `db:"last_activity_at" json:"lastActivityAt"`
	CompletedAt    *time.Time     `db:"completed_at" json:"completedAt,omitempty"`
}

// IsCompleted reports whether the session reached an ending scene.
func (s *Session) IsCompleted() bool {
	return s.Status == SessionStatusCompleted
}

// Step возвращает порядковый номер следующего решения в сессии.
// Используется как часть идемпотентного ключа события выбора.
func (s *Session) Step() int {
	return len(s.ChoicesMade)
}

// Clone делает глубокую копию сессии. Сервисный слой мутирует только копию
// и заменяет оригинал атомарно после успешного сохранения.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Visited = append([]uuid.UUID(nil), s.Visited...)
	c.ChoicesMade = append([]ChoiceRecord(nil), s.ChoicesMade...)
	if s.Stats != nil {
		c.Stats = make(map[string]any, len(s.Stats))
		for k, v := range s.Stats {
			c.Stats[k] = v
		}
	}
	if s.EndingType != nil {
		et := *s.EndingType
		c.EndingType = &et
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Checkpoint - именованный снимок сессии для последующего восстановления.
// Хранится в кольцевом буфере на пару (viewer, story); создается только по
// явному запросу зрителя.
type Checkpoint struct {
	ID           uuid.UUID      `db:"id" json:"id"`
	ViewerID     uuid.UUID      `db:"viewer_id" json:"viewerId"`
	StoryID      uuid.UUID      `db:"story_id" json:"storyId"`
	Name         string         `db:"name" json:"name"`
	SceneID      uuid.UUID      `db:"scene_id" json:"sceneId"`
	Visited      []uuid.UUID    `db:"visited" json:"visited"`
	VisitedTotal int            `db:"visited_total" json:"visitedTotal"`
	ChoicesMade  []ChoiceRecord `db:"choices_made" json:"choicesMade"`
	Stats        map[string]any `db:"stats" json:"stats,omitempty"`
	SavedAt      time.Time      `db:"saved_at" json:"savedAt"`
}
