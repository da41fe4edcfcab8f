package service

import (
	"time"

	"storyplay-server/shared/models"

	"github.com/google/uuid"
)

// StartResult - ответ на start_story: стартовая или текущая сцена сессии.
type StartResult struct {
	Scene   models.Scene
	Choices []models.Choice
	// Resumed - сессия уже существовала; журналы прохождения не сбрасывались.
	Resumed    bool
	IsEnding   bool
	EndingType *models.EndingType
}

// ChoiceWindow - открытое окно выбора после armChoice.
type ChoiceWindow struct {
	SceneID        uuid.UUID
	Choices        []models.Choice
	TimeoutSeconds int
	Deadline       time.Time
}

// ChoiceResult - результат разрешения точки выбора.
// При Stale=true запрос отстал от состояния сессии (например, ретрай уже
// примененного выбора); поля описывают текущее состояние, а не переход.
type ChoiceResult struct {
	Stale      bool
	DecidedBy  models.DecidedBy
	Scene      models.Scene
	Choices    []models.Choice
	IsEnding   bool
	EndingType *models.EndingType
}

// ProgressEntry - прогресс зрителя по одной истории для get_progress.
// Отдается наружу как есть, поэтому несет json-теги.
type ProgressEntry struct {
	StoryID        uuid.UUID          `json:"storyId"`
	CurrentSceneID uuid.UUID          `json:"currentSceneId"`
	Visited        []uuid.UUID        `json:"visited"`
	VisitedTotal   int                `json:"visitedTotal"`
	IsCompleted    bool               `json:"isCompleted"`
	EndingType     *models.EndingType `json:"endingType,omitempty"`
	StartedAt      time.Time          `json:"startedAt"`
	LastActivityAt time.Time          `json:"lastActivityAt"`
}
