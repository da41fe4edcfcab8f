package handler

import (
	"errors"
	"net/http"

	"storyplay-server/internal/service"
	"storyplay-server/shared/middleware"
	"storyplay-server/shared/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler объединяет HTTP-обработчики движка интерактивных историй.
type Handler struct {
	stories   service.StoryService
	sessions  service.SessionService
	analytics service.AnalyticsService
	logger    *zap.Logger
}

// NewHandler creates a new instance of Handler.
func NewHandler(
	stories service.StoryService,
	sessions service.SessionService,
	analytics service.AnalyticsService,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		stories:   stories,
		sessions:  sessions,
		analytics: analytics,
		logger:    logger.Named("Handler"),
	}
}

// RegisterRoutes регистрирует маршруты движка. Все маршруты, кроме списка
// историй, требуют идентификации зрителя.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/stories", h.ListStories)

	viewer := router.Group("/", middleware.ViewerAuth(h.logger))
	{
		viewer.GET("/progress", h.GetProgress)

		storyGroup := viewer.Group("/stories/:story_id")
		{
			storyGroup.GET("/tree", h.GetStoryTree)
			storyGroup.POST("/start", h.StartStory)
			storyGroup.POST("/arm", h.ArmChoice)
			storyGroup.POST("/choice", h.MakeChoice)
			storyGroup.POST("/checkpoints", h.SaveCheckpoint)
			storyGroup.GET("/checkpoints", h.ListCheckpoints)
			storyGroup.POST("/checkpoints/load", h.LoadCheckpoint)
			storyGroup.GET("/analytics", h.GetStoryAnalytics)
		}
	}
}

// getViewerID достает идентификатор зрителя, положенный middleware в контекст.
func (h *Handler) getViewerID(c *gin.Context) (uuid.UUID, bool) {
	viewerID, ok := models.GetViewerIDFromContext(c.Request.Context())
	if !ok {
		h.logger.Error("Viewer ID missing from context", zap.String("path", c.FullPath()))
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "viewer identity required"})
		return uuid.Nil, false
	}
	return viewerID, true
}

// getStoryID разбирает параметр пути :story_id.
func (h *Handler) getStoryID(c *gin.Context) (uuid.UUID, bool) {
	storyID, err := uuid.Parse(c.Param("story_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid story_id format"})
		return uuid.Nil, false
	}
	return storyID, true
}

// handleServiceError переводит ошибки сервисного слоя в HTTP-статусы.
func (h *Handler) handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrSessionNotFound),
		errors.Is(err, models.ErrCheckpointNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrInvalidChoice),
		errors.Is(err, models.ErrNothingToSave),
		errors.Is(err, models.ErrBadRequest):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrStaleScene):
		// Отставшее arm: конфликт состояния, а не ошибка запроса.
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrEmptyStory),
		errors.Is(err, models.ErrInvalidGraph):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
	default:
		h.logger.Error("Unhandled service error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
