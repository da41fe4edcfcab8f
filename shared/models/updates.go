package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionUpdateType - тип исходящего уведомления о сессии.
type SessionUpdateType string

const (
	// UpdateTypeSceneAdvanced - сессия перешла на следующую сцену без участия
	// зрителя (истек таймер выбора). Зритель мог отключиться; слой доставки
	// платформы обязан донести ему новое состояние.
	UpdateTypeSceneAdvanced SessionUpdateType = "scene_advanced"
	// UpdateTypeSessionCompleted - сессия достигла концовки.
	UpdateTypeSessionCompleted SessionUpdateType = "session_completed"
)

// SessionUpdate - payload уведомления, публикуемого в очередь client updates.
type SessionUpdate struct {
	Type       SessionUpdateType `json:"type"`
	ViewerID   uuid.UUID         `json:"viewerId"`
	StoryID    uuid.UUID         `json:"storyId"`
	SessionID  uuid.UUID         `json:"sessionId"`
	SceneID    uuid.UUID         `json:"sceneId"`
	DecidedBy  DecidedBy         `json:"decidedBy,omitempty"`
	EndingType *EndingType       `json:"endingType,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}
