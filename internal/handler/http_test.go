package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"storyplay-server/internal/config"
	"storyplay-server/internal/handler"
	"storyplay-server/internal/repository"
	"storyplay-server/internal/service"
	"storyplay-server/internal/story"
	"storyplay-server/shared/middleware"
	"storyplay-server/shared/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type apiFixture struct {
	router   *gin.Engine
	stories  *repository.MemoryStoryRepository
	storyID  uuid.UUID
	authorID uuid.UUID
	sceneA   models.Scene
	sceneB   models.Scene
	sceneC   models.Scene
	toGood   models.Choice
	toBad    models.Choice
}

func endingPtr(et models.EndingType) *models.EndingType {
	return &et
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		StorageBackend:          "memory",
		DefaultChoiceTimeoutSec: 10,
		EntryScenePolicy:        "first-by-order",
		VisitedLogLimit:         1000,
		CheckpointSlots:         5,
	}

	f := &apiFixture{
		storyID:  uuid.New(),
		authorID: uuid.New(),
	}
	f.sceneA = models.Scene{ID: uuid.New(), StoryID: f.storyID, Name: "intro", SceneOrder: 0, SceneType: models.SceneTypeIntro}
	f.sceneB = models.Scene{ID: uuid.New(), StoryID: f.storyID, Name: "good", SceneOrder: 1, SceneType: models.SceneTypeEnding, EndingType: endingPtr(models.EndingTypeGood)}
	f.sceneC = models.Scene{ID: uuid.New(), StoryID: f.storyID, Name: "bad", SceneOrder: 2, SceneType: models.SceneTypeEnding, EndingType: endingPtr(models.EndingTypeBad)}
	f.toGood = models.Choice{ID: uuid.New(), SceneID: f.sceneA.ID, NextSceneID: f.sceneB.ID, ChoiceOrder: 0, Text: "good"}
	f.toBad = models.Choice{ID: uuid.New(), SceneID: f.sceneA.ID, NextSceneID: f.sceneC.ID, ChoiceOrder: 1, Text: "bad"}

	f.stories = repository.NewMemoryStoryRepository()
	f.stories.Put(&models.StoryContent{
		Story:   models.Story{ID: f.storyID, AuthorID: f.authorID, Title: "api test", Status: models.StoryStatusPublished},
		Scenes:  []models.Scene{f.sceneA, f.sceneB, f.sceneC},
		Choices: []models.Choice{f.toGood, f.toBad},
	})

	sessions := repository.NewMemorySessionRepository()
	checkpoints := repository.NewMemoryCheckpointRepository(cfg.CheckpointSlots)
	analytics := repository.NewMemoryAnalyticsRepository()

	logger := zap.NewNop()
	loader := story.NewLoader(f.stories, nil, story.EntryPolicyFirstByOrder, logger)
	storySvc := service.NewStoryService(loader, f.stories, logger)
	sessionSvc := service.NewSessionService(loader, sessions, checkpoints, analytics, nil, cfg, logger)
	t.Cleanup(sessionSvc.Shutdown)
	analyticsSvc := service.NewAnalyticsService(loader, sessions, analytics, logger)

	h := handler.NewHandler(storySvc, sessionSvc, analyticsSvc, logger)
	f.router = gin.New()
	h.RegisterRoutes(f.router)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, viewerID *uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if viewerID != nil {
		req.Header.Set(middleware.ViewerHeader, viewerID.String())
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestViewerAuth(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("missing viewer header", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/stories/"+f.storyID.String()+"/start", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed viewer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/progress", nil)
		req.Header.Set(middleware.ViewerHeader, "not-a-uuid")
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("story list is public", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/stories", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestStoryEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	viewerID := uuid.New()

	t.Run("tree returns the full graph and bumps plays", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/stories/"+f.storyID.String()+"/tree", &viewerID, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var content models.StoryContent
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &content))
		assert.Equal(t, f.storyID, content.Story.ID)
		assert.Len(t, content.Scenes, 3)
		assert.Len(t, content.Choices, 2)

		got, err := f.stories.GetStory(context.Background(), f.storyID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.TotalPlays)
	})

	t.Run("unknown story is 404", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/stories/"+uuid.NewString()+"/tree", &viewerID, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed story id is 400", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/stories/oops/tree", &viewerID, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPlaythroughFlow(t *testing.T) {
	f := newAPIFixture(t)
	viewerID := uuid.New()
	base := "/stories/" + f.storyID.String()

	// start
	w := f.do(t, http.MethodPost, base+"/start", &viewerID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var start handler.StartStoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &start))
	assert.Equal(t, f.sceneA.ID, start.Scene.ID)
	assert.False(t, start.Resumed)
	require.Len(t, start.Choices, 2)

	// arm
	w = f.do(t, http.MethodPost, base+"/arm", &viewerID, handler.ArmChoiceRequest{SceneID: f.sceneA.ID})
	require.Equal(t, http.StatusOK, w.Code)
	var window handler.ArmChoiceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &window))
	assert.Equal(t, 10, window.TimeoutSeconds)

	// choice
	w = f.do(t, http.MethodPost, base+"/choice", &viewerID, handler.MakeChoiceRequest{
		SceneID: f.sceneA.ID, ChoiceID: f.toBad.ID,
	})
	require.Equal(t, http.StatusOK, w.Code)
	var choice handler.MakeChoiceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &choice))
	assert.False(t, choice.Stale)
	assert.Equal(t, f.sceneC.ID, choice.Scene.ID)
	assert.True(t, choice.IsEnding)

	// retry is stale but 200
	w = f.do(t, http.MethodPost, base+"/choice", &viewerID, handler.MakeChoiceRequest{
		SceneID: f.sceneA.ID, ChoiceID: f.toBad.ID,
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &choice))
	assert.True(t, choice.Stale)

	// invalid choice id
	w = f.do(t, http.MethodPost, base+"/choice", &viewerID, handler.MakeChoiceRequest{
		SceneID: f.sceneC.ID, ChoiceID: uuid.New(),
	})
	assert.Equal(t, http.StatusOK, w.Code) // сессия завершена: stale, не ошибка

	// progress
	w = f.do(t, http.MethodGet, "/progress", &viewerID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var progress struct {
		Progress []service.ProgressEntry `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &progress))
	require.Len(t, progress.Progress, 1)
	assert.True(t, progress.Progress[0].IsCompleted)
}

func TestChoiceValidation(t *testing.T) {
	f := newAPIFixture(t)
	viewerID := uuid.New()
	base := "/stories/" + f.storyID.String()

	w := f.do(t, http.MethodPost, base+"/start", &viewerID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("unknown edge is 400", func(t *testing.T) {
		w := f.do(t, http.MethodPost, base+"/choice", &viewerID, handler.MakeChoiceRequest{
			SceneID: f.sceneA.ID, ChoiceID: uuid.New(),
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing body is 400", func(t *testing.T) {
		w := f.do(t, http.MethodPost, base+"/choice", &viewerID, map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("arm of wrong scene is 409", func(t *testing.T) {
		w := f.do(t, http.MethodPost, base+"/arm", &viewerID, handler.ArmChoiceRequest{SceneID: f.sceneB.ID})
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestCheckpointEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	viewerID := uuid.New()
	base := "/stories/" + f.storyID.String()

	t.Run("save without session is 400", func(t *testing.T) {
		w := f.do(t, http.MethodPost, base+"/checkpoints", &viewerID, handler.SaveCheckpointRequest{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	w := f.do(t, http.MethodPost, base+"/start", &viewerID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("save list and load", func(t *testing.T) {
		w := f.do(t, http.MethodPost, base+"/checkpoints", &viewerID, handler.SaveCheckpointRequest{Name: "fork"})
		require.Equal(t, http.StatusCreated, w.Code)
		var cp models.Checkpoint
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cp))
		assert.Equal(t, "fork", cp.Name)

		for i := 0; i < 6; i++ {
			w = f.do(t, http.MethodPost, base+"/checkpoints", &viewerID, handler.SaveCheckpointRequest{Name: fmt.Sprintf("c%d", i)})
			require.Equal(t, http.StatusCreated, w.Code)
		}

		w = f.do(t, http.MethodGet, base+"/checkpoints", &viewerID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var list struct {
			Checkpoints []models.Checkpoint `json:"checkpoints"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		assert.Len(t, list.Checkpoints, 5)

		w = f.do(t, http.MethodPost, base+"/checkpoints/load", &viewerID, handler.LoadCheckpointRequest{})
		require.Equal(t, http.StatusOK, w.Code)
		var sess models.Session
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
		assert.Equal(t, f.sceneA.ID, sess.CurrentSceneID)
	})

	t.Run("load unknown checkpoint is 404", func(t *testing.T) {
		missing := uuid.New()
		w := f.do(t, http.MethodPost, base+"/checkpoints/load", &viewerID, handler.LoadCheckpointRequest{CheckpointID: &missing})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAnalyticsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	base := "/stories/" + f.storyID.String()

	t.Run("non-author is forbidden", func(t *testing.T) {
		stranger := uuid.New()
		w := f.do(t, http.MethodGet, base+"/analytics", &stranger, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("author reads the summary", func(t *testing.T) {
		// Один зритель проходит историю до конца.
		viewerID := uuid.New()
		w := f.do(t, http.MethodPost, base+"/start", &viewerID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		w = f.do(t, http.MethodPost, base+"/choice", &viewerID, handler.MakeChoiceRequest{
			SceneID: f.sceneA.ID, ChoiceID: f.toGood.ID,
		})
		require.Equal(t, http.StatusOK, w.Code)

		w = f.do(t, http.MethodGet, base+"/analytics", &f.authorID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var summary models.StorySummary
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
		assert.Equal(t, int64(1), summary.TotalChoices)
		assert.Equal(t, int64(1), summary.TotalPlayers)
		assert.Equal(t, int64(1), summary.Completions)
		assert.Equal(t, int64(1), summary.Endings[models.EndingTypeGood])
	})
}
