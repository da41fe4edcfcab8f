package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StartStory создает сессию на стартовой сцене истории или возобновляет
// существующую.
func (h *Handler) StartStory(c *gin.Context) {
	viewerID, ok := h.getViewerID(c)
	if !ok {
		return
	}
	storyID, ok := h.getStoryID(c)
	if !ok {
		return
	}

	result, err := h.sessions.StartStory(c.Request.Context(), viewerID, storyID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, StartStoryResponse{
		Scene:      toSceneResponse(result.Scene),
		Choices:    toChoiceResponses(result.Choices),
		Resumed:    result.Resumed,
		IsEnding:   result.IsEnding,
		EndingType: result.EndingType,
	})
}

// ArmChoice открывает окно выбора текущей сцены. Плеер вызывает его в момент
// появления вариантов на экране; с этого момента отсчет ведет сервер.
func (h *Handler) ArmChoice(c *gin.Context) {
	viewerID, ok := h.getViewerID(c)
	if !ok {
		return
	}
	storyID, ok := h.getStoryID(c)
	if !ok {
		return
	}

	var req ArmChoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "sceneId is required"})
		return
	}

	window, err := h.sessions.ArmChoice(c.Request.Context(), viewerID, storyID, req.SceneID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, ArmChoiceResponse{
		SceneID:        window.SceneID,
		Choices:        toChoiceResponses(window.Choices),
		TimeoutSeconds: window.TimeoutSeconds,
		Deadline:       window.Deadline,
	})
}

// MakeChoice разрешает открытое окно выбора явным вариантом зрителя.
func (h *Handler) MakeChoice(c *gin.Context) {
	viewerID, ok := h.getViewerID(c)
	if !ok {
		return
	}
	storyID, ok := h.getStoryID(c)
	if !ok {
		return
	}

	var req MakeChoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "sceneId and choiceId are required"})
		return
	}

	result, err := h.sessions.MakeChoice(c.Request.Context(), viewerID, storyID, req.SceneID, req.ChoiceID, req.TimeToDecide)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toMakeChoiceResponse(result))
}

// GetProgress отдает прогресс зрителя по всем начатым историям.
func (h *Handler) GetProgress(c *gin.Context) {
	viewerID, ok := h.getViewerID(c)
	if !ok {
		return
	}

	entries, err := h.sessions.GetProgress(c.Request.Context(), viewerID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": entries})
}
