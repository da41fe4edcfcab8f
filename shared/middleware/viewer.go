package middleware

import (
	"context"
	"net/http"

	"storyplay-server/shared/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ViewerHeader - заголовок с непрозрачным идентификатором зрителя.
// Аутентификацию выполняет шлюз платформы; движок доверяет заголовку
// так же, как межсервисным токенам доверяет их эмитент.
const ViewerHeader = "X-Viewer-ID"

// ViewerAuth извлекает идентификатор зрителя из заголовка запроса и кладет
// его в контекст под models.ViewerContextKey. Запросы без валидного UUID
// отклоняются с 401.
func ViewerAuth(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(ViewerHeader)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "viewer id required"})
			return
		}

		viewerID, err := uuid.Parse(raw)
		if err != nil || viewerID == uuid.Nil {
			log.Warn("Invalid viewer id header", zap.String("value", raw), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid viewer id"})
			return
		}

		ctx := context.WithValue(c.Request.Context(), models.ViewerContextKey, viewerID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
