package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetStoryAnalytics отдает сводку аналитики истории ее автору.
func (h *Handler) GetStoryAnalytics(c *gin.Context) {
	viewerID, ok := h.getViewerID(c)
	if !ok {
		return
	}
	storyID, ok := h.getStoryID(c)
	if !ok {
		return
	}

	summary, err := h.analytics.GetStorySummary(c.Request.Context(), viewerID, storyID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
