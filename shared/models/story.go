package models

import (
	"time"

	"github.com/google/uuid"
)

// SceneType классифицирует роль сцены внутри графа истории.
type SceneType string

const (
	SceneTypeIntro  SceneType = "intro"
	SceneTypeNormal SceneType = "normal"
	SceneTypeEnding SceneType = "ending"
)

// EndingType классифицирует концовку. Имеет смысл только для сцен типа ending.
type EndingType string

const (
	EndingTypeGood    EndingType = "good"
	EndingTypeBad     EndingType = "bad"
	EndingTypeSecret  EndingType = "secret"
	EndingTypeNeutral EndingType = "neutral"
)

// ValidEndingType reports whether t is one of the known ending classifications.
func ValidEndingType(t EndingType) bool {
	switch t {
	case EndingTypeGood, EndingTypeBad, EndingTypeSecret, EndingTypeNeutral:
		return true
	}
	return false
}

// StoryStatus - статус публикации интерактивной истории.
type StoryStatus string

const (
	StoryStatusDraft     StoryStatus = "draft"
	StoryStatusPublished StoryStatus = "published"
	StoryStatusArchived  StoryStatus = "archived"
)

// Story описывает одну опубликованную интерактивную видео-историю.
// Счетчики сцен/концовок денормализованы для витрины.
type Story struct {
	ID           uuid.UUID   `db:"id" json:"id"`
	AuthorID     uuid.UUID   `db:"author_id" json:"authorId"`
	Title        string      `db:"title" json:"title"`
	Description  string      `db:"description" json:"description"`
	ThumbnailURL *string     `db:"thumbnail_url" json:"thumbnailUrl,omitempty"`
	TotalScenes  int         `db:"total_scenes" json:"totalScenes"`
	TotalEndings int         `db:"total_endings" json:"totalEndings"`
	TotalPlays   int64       `db:"total_plays" json:"totalPlays"`
	Status       StoryStatus `db:"status" json:"status"`
	CreatedAt    time.Time   `db:"created_at" json:"createdAt"`
	PublishedAt  *time.Time  `db:"published_at" json:"publishedAt,omitempty"`
}

// Scene - узел графа истории: один проигрываемый видеофрагмент.
// ChoiceAppearsAtSeconds задает момент открытия окна выбора;
// nil означает "после окончания ролика".
type Scene struct {
	ID                   uuid.UUID   `db:"id" json:"id"`
	StoryID              uuid.UUID   `db:"story_id" json:"storyId"`
	Name                 string      `db:"name" json:"name"`
	SceneOrder           int         `db:"scene_order" json:"sceneOrder"`
	SceneType            SceneType   `db:"scene_type" json:"sceneType"`
	VideoURL             string      `db:"video_url" json:"videoUrl"`
	VideoDurationSeconds float64     `db:"video_duration_seconds" json:"videoDurationSeconds"`
	ChoiceAppearsAtSec   *float64    `db:"choice_appears_at_seconds" json:"choiceAppearsAtSeconds,omitempty"`
	ChoiceTimeoutSec     *int        `db:"choice_timeout_seconds" json:"choiceTimeoutSeconds,omitempty"`
	EndingType           *EndingType `db:"ending_type" json:"endingType,omitempty"`
}

// IsEnding reports whether the scene terminates a playthrough.
func (s *Scene) IsEnding() bool {
	return s.SceneType == SceneTypeEnding
}

// Choice - направленное ребро графа: переход из сцены в сцену.
// ChoiceOrder определяет и порядок отображения, и выбор по таймауту.
type Choice struct {
	ID          uuid.UUID `db:"id" json:"id"`
	SceneID     uuid.UUID `db:"scene_id" json:"sceneId"`
	NextSceneID uuid.UUID `db:"next_scene_id" json:"nextSceneId"`
	ChoiceOrder int       `db:"choice_order" json:"choiceOrder"`
	Text        string    `db:"choice_text" json:"choiceText"`
	Color       *string   `db:"choice_color" json:"choiceColor,omitempty"`
}

// StoryContent - полный срез одной истории: метаданные, сцены и переходы.
// Это то, что загружается из хранилища и кэшируется; граф строится поверх него.
type StoryContent struct {
	Story   Story    `json:"story"`
	Scenes  []Scene  `json:"scenes"`
	Choices []Choice `json:"choices"`
}
