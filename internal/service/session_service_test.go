package service_test

import (
	"context"
	"testing"
	"time"

	"storyplay-server/internal/config"
	"storyplay-server/internal/repository"
	"storyplay-server/internal/service"
	"storyplay-server/internal/service/mocks"
	"storyplay-server/internal/story"
	"storyplay-server/shared/interfaces"
	"storyplay-server/shared/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		StorageBackend:          "memory",
		DefaultChoiceTimeoutSec: 10,
		EntryScenePolicy:        "first-by-order",
		VisitedLogLimit:         1000,
		CheckpointSlots:         5,
	}
}

func endingPtr(et models.EndingType) *models.EndingType {
	return &et
}

func intPtr(v int) *int {
	return &v
}

// gameFixture собирает движок на memory-бэкенде вокруг одной истории:
// intro A -> (order 0) good B, (order 1) bad C.
type gameFixture struct {
	storyID  uuid.UUID
	authorID uuid.UUID
	sceneA   models.Scene
	sceneB   models.Scene
	sceneC   models.Scene
	toGood   models.Choice // order 0
	toBad    models.Choice // order 1

	stories     *repository.MemoryStoryRepository
	sessions    interfaces.SessionRepository
	checkpoints interfaces.CheckpointRepository
	analytics   interfaces.AnalyticsRepository
	svc         service.SessionService
}

func newGameFixture(t *testing.T, cfg *config.Config) *gameFixture {
	t.Helper()

	f := &gameFixture{
		storyID:  uuid.New(),
		authorID: uuid.New(),
	}
	f.sceneA = models.Scene{
		ID: uuid.New(), StoryID: f.storyID, Name: "intro", SceneOrder: 0,
		SceneType: models.SceneTypeIntro, ChoiceTimeoutSec: intPtr(5),
	}
	f.sceneB = models.Scene{
		ID: uuid.New(), StoryID: f.storyID, Name: "good end", SceneOrder: 1,
		SceneType: models.SceneTypeEnding, EndingType: endingPtr(models.EndingTypeGood),
	}
	f.sceneC = models.Scene{
		ID: uuid.New(), StoryID: f.storyID, Name: "bad end", SceneOrder: 2,
		SceneType: models.SceneTypeEnding, EndingType: endingPtr(models.EndingTypeBad),
	}
	f.toGood = models.Choice{ID: uuid.New(), SceneID: f.sceneA.ID, NextSceneID: f.sceneB.ID, ChoiceOrder: 0, Text: "be kind"}
	f.toBad = models.Choice{ID: uuid.New(), SceneID: f.sceneA.ID, NextSceneID: f.sceneC.ID, ChoiceOrder: 1, Text: "be cruel"}

	f.stories = repository.NewMemoryStoryRepository()
	f.stories.Put(&models.StoryContent{
		Story:   models.Story{ID: f.storyID, AuthorID: f.authorID, Title: "test story", Status: models.StoryStatusPublished},
		Scenes:  []models.Scene{f.sceneA, f.sceneB, f.sceneC},
		Choices: []models.Choice{f.toGood, f.toBad},
	})

	f.sessions = repository.NewMemorySessionRepository()
	f.checkpoints = repository.NewMemoryCheckpointRepository(cfg.CheckpointSlots)
	f.analytics = repository.NewMemoryAnalyticsRepository()

	loader := story.NewLoader(f.stories, nil, story.EntryPolicy(cfg.EntryScenePolicy), zap.NewNop())
	f.svc = service.NewSessionService(loader, f.sessions, f.checkpoints, f.analytics, nil, cfg, zap.NewNop())
	t.Cleanup(f.svc.Shutdown)
	return f
}

func TestStartStory(t *testing.T) {
	ctx := context.Background()
	viewerID := uuid.New()

	t.Run("creates session at entry scene", func(t *testing.T) {
		f := newGameFixture(t, testConfig())

		result, err := f.svc.StartStory(ctx, viewerID, f.storyID)
		require.NoError(t, err)
		assert.Equal(t, f.sceneA.ID, result.Scene.ID)
		assert.False(t, result.Resumed)
		assert.False(t, result.IsEnding)
		require.Len(t, result.Choices, 2)
		assert.Equal(t, f.toGood.ID, result.Choices[0].ID)

		sess, err := f.sessions.GetByViewerAndStory(ctx, viewerID, f.storyID)
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusPlaying, sess.Status)
		assert.Equal(t, []uuid.UUID{f.sceneA.ID}, sess.Visited)
		assert.Equal(t, 1, sess.VisitedTotal)
	})

	t.Run("second start resumes without resetting journals", func(t *testing.T) {
		f := newGameFixture(t, testConfig())

		_, err := f.svc.StartStory(ctx, viewerID, f.storyID)
		require.NoError(t, err)
		_, err = f.svc.MakeChoice(ctx, viewerID, f.storyID, f.sceneA.ID, f.toGood.ID, nil)
		require.NoError(t, err)

		result, err := f.svc.StartStory(ctx, viewerID, f.storyID)
		require.NoError(t, err)
		assert.True(t, result.Resumed)
		assert.Equal(t, f.sceneB.ID, result.Scene.ID)
		assert.True(t, result.IsEnding)

		sess, err := f.sessions.GetByViewerAndStory(ctx, viewerID, f.storyID)
		require.NoError(t, err)
		assert.Len(t, sess.ChoicesMade, 1)
	})

	t.Run("unknown story", func(t *testing.T) {
		f := newGameFixture(t, testConfig())
		_, err := f.svc.StartStory(ctx, viewerID, uuid.New())
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestMakeChoice(t *testing.T) {
	ctx := context.Background()

	t.Run("manual choice advances and completes on ending", func(t *testing.T) {
		f := newGameFixture(t, testConfig())
		viewerID := uuid.New()

		_, err := f.svc.StartStory(ctx, viewerID, f.storyID)
		require.NoError(t, err)

		latency := 2.5
		result, err := f.svc.MakeChoice(ctx, viewerID, f.storyID, f.sceneA.ID, f.toBad.ID, &latency)
		require.NoError(t, err)
		assert.False(t, result.Stale)
		assert.Equal(t, models.DecidedByUser, result.DecidedBy)
		assert.Equal(t, f.sceneC.ID, result.Scene.ID)
		assert.True(t, result.IsEnding)
		require.NotNil(t, result.EndingType)
		assert.Equal(t, models.EndingTypeBad, *result.EndingType)

		sess, err := f.sessions.GetByViewerAndStory(ctx, viewerID, f.storyID)
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusCompleted, sess.Status)
		require.Len(t, sess.ChoicesMade, 1)
		assert.Equal(t, models.DecidedByUser, sess.ChoicesMade[0].DecidedBy)
		assert.Equal(t, latency, sess.ChoicesMade[0].TimeToDecideSec)
		require.NotNil(t, sess.CompletedAt)

		// Аналитика: одно событие выбора и один факт завершения.
		n, err := f.analytics.CountChoices(ctx, f.storyID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		completions, err := f.analytics.ListCompletions(ctx, f.storyID)
		require.NoError(t, err)
		require.Len(t, completions, 1)
		assert.Equal(t, models.EndingTypeBad, completions[0].EndingType)
	})

	t.Run("choice must be an outgoing edge", func(t *testing.T) {
		f := newGameFixture(t, testConfig())
		viewerID := uuid.New()

		_, err := f.svc.StartStory(ctx, viewerID, f.storyID)
		require.NoError(t, err)

		_, err = f.svc.MakeChoice(ctx, viewerID, f.storyID, f.sceneA.ID, uuid.New(), nil)
		assert.ErrorIs(t, err, models.ErrInvalidChoice)

		// Ошибка не тронула сессию.
		sess, err := f.sessions.GetByViewerAndStory(ctx, viewerID, f.storyID)
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusPlaying, sess.Status)
		assert.Empty(t, sess.ChoicesMade)
	})

	t.Run("retry of an applied choice returns stale state", func(t *testing.T) {
		f := newGameFixture(t, testConfig())
		viewerID := uuid.New()

		_, err := f.svc.StartStory(ctx, viewerID, f.storyID)
		require.NoError(t, err)
		_, err = f.svc.MakeChoice(ctx, viewerID, f.storyID, f.sceneA.ID, f.toGood.ID, nil)
		require.NoError(t, err)

		// Ретрай того же запроса: success-shaped ответ, без второго перехода.
		result, err := f.svc.MakeChoice(ctx, viewerID, f.storyID, f.sceneA.ID, f.toGood.ID, nil)
		require.NoError(t, err)
		assert.True(t, result.Stale)
		assert.Equal(t, models.DecidedByUser, result.DecidedBy)
		assert.Equal(t, f.sceneB.ID, result.Scene.ID)

		sess, err := f.sessions.GetByViewerAndStory(ctx, viewerID, f.storyID)
		require.NoError(t, err)
		assert.Len(t, sess.ChoicesMade, 1)

		n, err := f.analytics.CountChoices(ctx, f.storyID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("choice on a completed session is stale", func(t *testing.T) {
		f := newGameFixture(t, testConfig())
		viewerID := uuid.New()

		_, err := f.svc.StartStory(ctx, viewerID, f.storyID)
		require.NoError(t, err)
		_, err = f.svc.MakeChoice(ctx, viewerID, f.storyID, f.sceneA.ID, f.toGood.ID, nil)
		require.NoError(t, err)

		result, err := f.svc.MakeChoice(ctx, viewerID, f.storyID, f.sceneB.ID, f.toGood.ID, nil)
		require.NoError(t, err)
		assert.True(t, result.Stale)
		assert.Equal(t, f.sceneB.ID, result.Scene.ID)
		assert.True(t, result.IsEnding)
	})

	t.Run("session must exist", func(t *testing.T) {
		f := newGameFixture(t, testConfig())
		_, err := f.svc.MakeChoice(ctx, uuid.New(), f.storyID, f.sceneA.ID, f.toGood.ID, nil)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestArmChoice(t *testing.T) {
	ctx := context.Background()

	t.Run("opens the decision window", func(t *testing.T) {
		f := newGameFixture(t, testConfig())
		viewerID := uuid.New()

		_, err := f.svc.StartStory(ctx, viewerID, f.storyID)
		require.NoError(t, err)

		window, err := f.svc.ArmChoice(ctx, viewerID, f.storyID, f.sceneA.ID)
		require.NoError(t, err)
		assert.Equal(t, f.sceneA.ID, window.SceneID)
		assert.Equal(t, 5, window.TimeoutSeconds) // таймаут сцены, не дефолт
		require.Len(t, window.Choices, 2)

		sess, err := f.sessions.GetByViewerAndStory(ctx, viewerID, f.storyID)
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusAwaitingChoice, sess.Status)
	})

	t.Run("re-arm of the open window is idempotent", func(t *testing.T) {
		f := newGameFixture(t, testConfig())
		viewerID := uuid.New()

		_, err := f.svc.StartStory(ctx, viewerID, f.storyID)
		require.NoError(t, err)
		first, err := f.svc.ArmChoice(ctx, viewerID, f.storyID, f.sceneA.ID)
		require.NoError(t, err)
		second, err := f.svc.ArmChoice(ctx, viewerID, f.storyID, f.sceneA.ID)
		require.NoError(t, err)

		assert.Equal(t, first.SceneID, second.SceneID)
		// Повторный arm не сдвигает дедлайн вперед.
		assert.True(t, !second.Deadline.After(first.Deadline.Add(100*time.Millisecond)))
	})

	t.Run("arm of a non-current scene is stale", func(t *testing.T) {
		f := newGameFixture(t, testConfig())
		viewerID := uuid.New()

		_, err := f.svc.StartStory(ctx, viewerID, f.storyID)
		require.NoError(t, err)

		_, err = f.svc.ArmChoice(ctx, viewerID, f.storyID, f.sceneB.ID)
		assert.ErrorIs(t, err, models.ErrStaleScene)
	})

	t.Run("manual choice beats the armed clock", func(t *testing.T) {
		cfg := testConfig()
		f := newGameFixture(t, cfg)
		viewerID := uuid.New()

		// Сцена с коротким таймаутом: взводим и сразу выбираем вручную
		// вариант с order 1. Таймаут выбрал бы order 0.
		_, err := f.svc.StartStory(ctx, viewerID, f.storyID)
		require.NoError(t, err)
		_, err = f.svc.ArmChoice(ctx, viewerID, f.storyID, f.sceneA.ID)
		require.NoError(t, err)

		result, err := f.svc.MakeChoice(ctx, viewerID, f.storyID, f.sceneA.ID, f.toBad.ID, nil)
		require.NoError(t, err)
		assert.False(t, result.Stale)
		assert.Equal(t, f.sceneC.ID, result.Scene.ID)

		sess, err := f.sessions.GetByViewerAndStory(ctx, viewerID, f.storyID)
		require.NoError(t, err)
		require.Len(t, sess.ChoicesMade, 1)
		assert.Equal(t, f.toBad.ID, sess.ChoicesMade[0].ChoiceID)
		assert.Equal(t, models.DecidedByUser, sess.ChoicesMade[0].DecidedBy)
	})
}

func TestTimeoutResolution(t *testing.T) {
	ctx := context.Background()

	t.Run("expiry resolves to the first choice by order", func(t *testing.T) {
		f := newGameFixture(t, testConfig())
		viewerID := uuid.New()

		// Сцена с таймаутом в 1 секунду.
		shortStoryID := uuid.New()
		sceneA := models.Scene{
			ID: uuid.New(), StoryID: shortStoryID, SceneOrder: 0,
			SceneType: models.SceneTypeIntro, ChoiceTimeoutSec: intPtr(1),
		}
		sceneB := models.Scene{
			ID: uuid.New(), StoryID: shortStoryID, SceneOrder: 1,
			SceneType: models.SceneTypeEnding, EndingType: endingPtr(models.EndingTypeGood),
		}
		sceneC := models.Scene{
			ID: uuid.New(), StoryID: shortStoryID, SceneOrder: 2,
			SceneType: models.SceneTypeEnding, EndingType: endingPtr(models.EndingTypeBad),
		}
		first := models.Choice{ID: uuid.New(), SceneID: sceneA.ID, NextSceneID: sceneB.ID, ChoiceOrder: 0}
		second := models.Choice{ID: uuid.New(), SceneID: sceneA.ID, NextSceneID: sceneC.ID, ChoiceOrder: 1}
		f.stories.Put(&models.StoryContent{
			Story:   models.Story{ID: shortStoryID, AuthorID: f.authorID, Status: models.StoryStatusPublished},
			Scenes:  []models.Scene{sceneA, sceneB, sceneC},
			Choices: []models.Choice{first, second},
		})

		_, err := f.svc.StartStory(ctx, viewerID, shortStoryID)
		require.NoError(t, err)
		_, err = f.svc.ArmChoice(ctx, viewerID, shortStoryID, sceneA.ID)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			sess, gerr := f.sessions.GetByViewerAndStory(ctx, viewerID, shortStoryID)
			return gerr == nil && sess.Status == models.SessionStatusCompleted
		}, 3*time.Second, 50*time.Millisecond, "timeout did not resolve the window")

		sess, err := f.sessions.GetByViewerAndStory(ctx, viewerID, shortStoryID)
		require.NoError(t, err)
		// Детерминированный исход: выбран вариант с минимальным choice_order.
		assert.Equal(t, sceneB.ID, sess.CurrentSceneID)
		require.Len(t, sess.ChoicesMade, 1)
		assert.Equal(t, first.ID, sess.ChoicesMade[0].ChoiceID)
		assert.Equal(t, models.DecidedByTimeout, sess.ChoicesMade[0].DecidedBy)
		require.NotNil(t, sess.EndingType)
		assert.Equal(t, models.EndingTypeGood, *sess.EndingType)
	})

	t.Run("completion update is published on timeout", func(t *testing.T) {
		cfg := testConfig()
		f := newGameFixture(t, cfg)
		viewerID := uuid.New()

		publisher := new(mocks.SessionUpdatePublisher)
		published := make(chan models.SessionUpdate, 1)
		publisher.On("PublishSessionUpdate", mock.Anything, mock.AnythingOfType("models.SessionUpdate")).
			Run(func(args mock.Arguments) {
				select {
				case published <- args.Get(1).(models.SessionUpdate):
				default:
				}
			}).Return(nil)

		storyID := uuid.New()
		sceneA := models.Scene{
			ID: uuid.New(), StoryID: storyID, SceneOrder: 0,
			SceneType: models.SceneTypeIntro, ChoiceTimeoutSec: intPtr(1),
		}
		sceneB := models.Scene{
			ID: uuid.New(), StoryID: storyID, SceneOrder: 1,
			SceneType: models.SceneTypeEnding,
		}
		ch := models.Choice{ID: uuid.New(), SceneID: sceneA.ID, NextSceneID: sceneB.ID, ChoiceOrder: 0}
		f.stories.Put(&models.StoryContent{
			Story:   models.Story{ID: storyID, AuthorID: f.authorID, Status: models.StoryStatusPublished},
			Scenes:  []models.Scene{sceneA, sceneB},
			Choices: []models.Choice{ch},
		})

		loader := story.NewLoader(f.stories, nil, story.EntryPolicyFirstByOrder, zap.NewNop())
		svc := service.NewSessionService(loader, f.sessions, f.checkpoints, f.analytics, publisher, cfg, zap.NewNop())
		defer svc.Shutdown()

		_, err := svc.StartStory(ctx, viewerID, storyID)
		require.NoError(t, err)
		_, err = svc.ArmChoice(ctx, viewerID, storyID, sceneA.ID)
		require.NoError(t, err)

		select {
		case update := <-published:
			assert.Equal(t, models.UpdateTypeSessionCompleted, update.Type)
			assert.Equal(t, models.DecidedByTimeout, update.DecidedBy)
			assert.Equal(t, sceneB.ID, update.SceneID)
			// Концовка без явного типа классифицируется как neutral.
			require.NotNil(t, update.EndingType)
			assert.Equal(t, models.EndingTypeNeutral, *update.EndingType)
		case <-time.After(3 * time.Second):
			t.Fatal("no session update was published")
		}
	})
}

func TestVisitedLogCap(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.VisitedLogLimit = 3

	f := newGameFixture(t, cfg)
	viewerID := uuid.New()

	// Циклическая история: A <-> B, из B есть выход на концовку.
	storyID := uuid.New()
	sceneA := models.Scene{ID: uuid.New(), StoryID: storyID, SceneOrder: 0, SceneType: models.SceneTypeIntro}
	sceneB := models.Scene{ID: uuid.New(), StoryID: storyID, SceneOrder: 1, SceneType: models.SceneTypeNormal}
	sceneE := models.Scene{ID: uuid.New(), StoryID: storyID, SceneOrder: 2, SceneType: models.SceneTypeEnding}
	aToB := models.Choice{ID: uuid.New(), SceneID: sceneA.ID, NextSceneID: sceneB.ID, ChoiceOrder: 0}
	bToA := models.Choice{ID: uuid.New(), SceneID: sceneB.ID, NextSceneID: sceneA.ID, ChoiceOrder: 0}
	bToE := models.Choice{ID: uuid.New(), SceneID: sceneB.ID, NextSceneID: sceneE.ID, ChoiceOrder: 1}
	f.stories.Put(&models.StoryContent{
		Story:   models.Story{ID: storyID, AuthorID: f.authorID, Status: models.StoryStatusPublished},
		Scenes:  []models.Scene{sceneA, sceneB, sceneE},
		Choices: []models.Choice{aToB, bToA, bToE},
	})

	_, err := f.svc.StartStory(ctx, viewerID, storyID)
	require.NoError(t, err)

	// Три полных круга по циклу: посещений много, журнал ограничен.
	current := sceneA.ID
	for i := 0; i < 6; i++ {
		var choiceID uuid.UUID
		if current == sceneA.ID {
			choiceID = aToB.ID
		} else {
			choiceID = bToA.ID
		}
		result, merr := f.svc.MakeChoice(ctx, viewerID, storyID, current, choiceID, nil)
		require.NoError(t, merr)
		current = result.Scene.ID
	}

	sess, err := f.sessions.GetByViewerAndStory(ctx, viewerID, storyID)
	require.NoError(t, err)
	assert.Len(t, sess.Visited, 3)
	assert.Equal(t, 7, sess.VisitedTotal) // старт + 6 переходов
	// Журнал хранит последние посещения в порядке обхода.
	assert.Equal(t, sess.CurrentSceneID, sess.Visited[len(sess.Visited)-1])
}

func TestGetProgress(t *testing.T) {
	ctx := context.Background()
	f := newGameFixture(t, testConfig())
	viewerID := uuid.New()

	t.Run("empty without sessions", func(t *testing.T) {
		entries, err := f.svc.GetProgress(ctx, viewerID)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("reports started and completed stories", func(t *testing.T) {
		_, err := f.svc.StartStory(ctx, viewerID, f.storyID)
		require.NoError(t, err)
		_, err = f.svc.MakeChoice(ctx, viewerID, f.storyID, f.sceneA.ID, f.toGood.ID, nil)
		require.NoError(t, err)

		entries, err := f.svc.GetProgress(ctx, viewerID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, f.storyID, entries[0].StoryID)
		assert.True(t, entries[0].IsCompleted)
		assert.Equal(t, f.sceneB.ID, entries[0].CurrentSceneID)
		assert.Equal(t, 2, entries[0].VisitedTotal)
	})
}
