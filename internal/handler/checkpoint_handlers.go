package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SaveCheckpoint делает именованный снимок текущей сессии. Пустое имя
// заменяется порядковым ("Save N").
func (h *Handler) SaveCheckpoint(c *gin.Context) {
	viewerID, ok := h.getViewerID(c)
	if !ok {
		return
	}
	storyID, ok := h.getStoryID(c)
	if !ok {
		return
	}

	var req SaveCheckpointRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
	}

	cp, err := h.sessions.SaveCheckpoint(c.Request.Context(), viewerID, storyID, req.Name)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cp)
}

// ListCheckpoints отдает содержимое кольца чекпоинтов, от старых к новым.
func (h *Handler) ListCheckpoints(c *gin.Context) {
	viewerID, ok := h.getViewerID(c)
	if !ok {
		return
	}
	storyID, ok := h.getStoryID(c)
	if !ok {
		return
	}

	checkpoints, err := h.sessions.ListCheckpoints(c.Request.Context(), viewerID, storyID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkpoints": checkpoints})
}

// LoadCheckpoint восстанавливает сессию из чекпоинта. Без checkpointId
// берется последний сохраненный.
func (h *Handler) LoadCheckpoint(c *gin.Context) {
	viewerID, ok := h.getViewerID(c)
	if !ok {
		return
	}
	storyID, ok := h.getStoryID(c)
	if !ok {
		return
	}

	var req LoadCheckpointRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
	}

	sess, err := h.sessions.LoadCheckpoint(c.Request.Context(), viewerID, storyID, req.CheckpointID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}
