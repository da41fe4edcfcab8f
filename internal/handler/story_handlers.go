package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetStoryTree отдает полный граф истории плееру (сцены, ребра, метаданные)
// и увеличивает счетчик просмотров.
func (h *Handler) GetStoryTree(c *gin.Context) {
	storyID, ok := h.getStoryID(c)
	if !ok {
		return
	}

	content, err := h.stories.GetStoryTree(c.Request.Context(), storyID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, content)
}

// ListStories отдает список опубликованных историй по популярности.
func (h *Handler) ListStories(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}

	stories, err := h.stories.ListStories(c.Request.Context(), limit)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stories": stories})
}
