package handler

import (
	"time"

	"storyplay-server/internal/service"
	"storyplay-server/shared/models"

	"github.com/google/uuid"
)

// ErrorResponse - стандартный формат ошибки API.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SceneResponse описывает сцену в ответах плееру.
type SceneResponse struct {
	ID                   uuid.UUID          `json:"id"`
	Name                 string             `json:"name"`
	SceneType            models.SceneType   `json:"sceneType"`
	VideoURL             string             `json:"videoUrl"`
	VideoDurationSeconds float64            `json:"videoDurationSeconds"`
	ChoiceAppearsAtSec   *float64           `json:"choiceAppearsAtSeconds,omitempty"`
	ChoiceTimeoutSec     *int               `json:"choiceTimeoutSeconds,omitempty"`
	EndingType           *models.EndingType `json:"endingType,omitempty"`
}

// ChoiceResponse описывает один вариант выбора.
type ChoiceResponse struct {
	ID          uuid.UUID `json:"id"`
	NextSceneID uuid.UUID `json:"nextSceneId"`
	Text        string    `json:"text"`
	Color       *string   `json:"color,omitempty"`
}

// StartStoryResponse - ответ на start_story.
type StartStoryResponse struct {
	Scene      SceneResponse      `json:"scene"`
	Choices    []ChoiceResponse   `json:"choices"`
	Resumed    bool               `json:"resumed"`
	IsEnding   bool               `json:"isEnding"`
	EndingType *models.EndingType `json:"endingType,omitempty"`
}

// ArmChoiceRequest - тело запроса arm_choice.
type ArmChoiceRequest struct {
	SceneID uuid.UUID `json:"sceneId" binding:"required"`
}

// ArmChoiceResponse - ответ arm_choice: открытое окно выбора.
type ArmChoiceResponse struct {
	SceneID        uuid.UUID        `json:"sceneId"`
	Choices        []ChoiceResponse `json:"choices"`
	TimeoutSeconds int              `json:"timeoutSeconds"`
	Deadline       time.Time        `json:"deadline"`
}

// MakeChoiceRequest - тело запроса make_choice.
type MakeChoiceRequest struct {
	SceneID      uuid.UUID `json:"sceneId" binding:"required"`
	ChoiceID     uuid.UUID `json:"choiceId" binding:"required"`
	TimeToDecide *float64  `json:"timeToDecideSeconds,omitempty"`
}

// MakeChoiceResponse - ответ make_choice.
type MakeChoiceResponse struct {
	Stale      bool               `json:"stale"`
	DecidedBy  models.DecidedBy   `json:"decidedBy,omitempty"`
	Scene      SceneResponse      `json:"scene"`
	Choices    []ChoiceResponse   `json:"choices"`
	IsEnding   bool               `json:"isEnding"`
	EndingType *models.EndingType `json:"endingType,omitempty"`
}

// SaveCheckpointRequest - тело запроса save_checkpoint.
type SaveCheckpointRequest struct {
	Name string `json:"name"`
}

// LoadCheckpointRequest - тело запроса load_checkpoint.
type LoadCheckpointRequest struct {
	CheckpointID *uuid.UUID `json:"checkpointId,omitempty"`
}

func toSceneResponse(scene models.Scene) SceneResponse {
	return SceneResponse{
		ID:                   scene.ID,
		Name:                 scene.Name,
		SceneType:            scene.SceneType,
		VideoURL:             scene.VideoURL,
		VideoDurationSeconds: scene.VideoDurationSeconds,
		ChoiceAppearsAtSec:   scene.ChoiceAppearsAtSec,
		ChoiceTimeoutSec:     scene.ChoiceTimeoutSec,
		EndingType:           scene.EndingType,
	}
}

func toChoiceResponses(choices []models.Choice) []ChoiceResponse {
	out := make([]ChoiceResponse, 0, len(choices))
	for _, ch := range choices {
		out = append(out, ChoiceResponse{
			ID:          ch.ID,
			NextSceneID: ch.NextSceneID,
			Text:        ch.Text,
			Color:       ch.Color,
		})
	}
	return out
}

func toMakeChoiceResponse(result *service.ChoiceResult) MakeChoiceResponse {
	return MakeChoiceResponse{
		Stale:      result.Stale,
		DecidedBy:  result.DecidedBy,
		Scene:      toSceneResponse(result.Scene),
		Choices:    toChoiceResponses(result.Choices),
		IsEnding:   result.IsEnding,
		EndingType: result.EndingType,
	}
}
