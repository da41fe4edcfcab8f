package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// пространство имен для детерминированных идентификаторов событий (uuid v5)
var analyticsEventNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// ChoiceEvent - неизменяемый факт аналитики: одно разрешенное решение.
// ID детерминирован от (session, scene, step), поэтому повторная доставка
// того же resolve не создает второго события.
type ChoiceEvent struct {
	ID              uuid.UUID `db:"id" json:"id"`
	StoryID         uuid.UUID `db:"story_id" json:"storyId"`
	SessionID       uuid.UUID `db:"session_id" json:"sessionId"`
	SceneID         uuid.UUID `db:"scene_id" json:"sceneId"`
	ChoiceID        uuid.UUID `db:"choice_id" json:"choiceId"`
	DecidedBy       DecidedBy `db:"decided_by" json:"decidedBy"`
	TimeToDecideSec float64   `db:"time_to_decide_seconds" json:"timeToDecideSeconds"`
	RecordedAt      time.Time `db:"recorded_at" json:"recordedAt"`
}

// CompletionRecord - неизменяемый факт завершения сессии с классификацией концовки.
type CompletionRecord struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	StoryID     uuid.UUID  `db:"story_id" json:"storyId"`
	SessionID   uuid.UUID  `db:"session_id" json:"sessionId"`
	EndingType  EndingType `db:"ending_type" json:"endingType"`
	CompletedAt time.Time  `db:"completed_at" json:"completedAt"`
}

// ChoiceEventID возвращает детерминированный идентификатор события выбора.
// step - порядковый номер решения в сессии на момент разрешения.
func ChoiceEventID(sessionID, sceneID uuid.UUID, step int) uuid.UUID {
	name := fmt.Sprintf("choice:%s:%s:%d", sessionID, sceneID, step)
	return uuid.NewSHA1(analyticsEventNamespace, []byte(name))
}

// CompletionRecordID возвращает детерминированный идентификатор факта завершения.
// Сессия завершается не более одного раза, поэтому ключ - только sessionID.
func CompletionRecordID(sessionID uuid.UUID) uuid.UUID {
	name := fmt.Sprintf("completion:%s", sessionID)
	return uuid.NewSHA1(analyticsEventNamespace, []byte(name))
}

// StorySummary - агрегат аналитики по одной истории, вычисляемый на чтении.
type StorySummary struct {
	StoryID      uuid.UUID            `json:"storyId"`
	TotalChoices int64                `json:"totalChoices"`
	TotalPlayers int64                `json:"totalPlayers"`
	Completions  int64                `json:"completions"`
	Endings      map[EndingType]int64 `json:"endings"`
}
