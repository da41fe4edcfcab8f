package service_test

import (
	"context"
	"fmt"
	"testing"

	"storyplay-server/shared/models"

	"github.com/google/uuid"
	"pgregory.net/rapid"
)

// buildChain кладет в фикстуру ацикличную историю-цепочку из n сцен:
// каждая нетерминальная сцена несет от 1 до 3 переходов только вперед,
// вариант с минимальным choice_order всегда ведет на следующую сцену.
func buildChain(rt *rapid.T, f *gameFixture, n int) (uuid.UUID, []models.Scene, map[uuid.UUID][]models.Choice) {
	storyID := uuid.New()
	scenes := make([]models.Scene, n)
	for i := range scenes {
		sceneType := models.SceneTypeNormal
		if i == 0 {
			sceneType = models.SceneTypeIntro
		}
		if i == n-1 {
			sceneType = models.SceneTypeEnding
		}
		scenes[i] = models.Scene{ID: uuid.New(), StoryID: storyID, SceneOrder: i, SceneType: sceneType}
	}

	var choices []models.Choice
	bySource := make(map[uuid.UUID][]models.Choice)
	for i := 0; i < n-1; i++ {
		fanout := rapid.IntRange(1, 3).Draw(rt, fmt.Sprintf("fanout%d", i))
		for c := 0; c < fanout; c++ {
			// Переходы только вперед по цепочке, циклов нет.
			target := rapid.IntRange(i+1, n-1).Draw(rt, fmt.Sprintf("target%d_%d", i, c))
			if c == 0 {
				target = i + 1
			}
			ch := models.Choice{
				ID: uuid.New(), SceneID: scenes[i].ID,
				NextSceneID: scenes[target].ID, ChoiceOrder: c,
			}
			choices = append(choices, ch)
			bySource[scenes[i].ID] = append(bySource[scenes[i].ID], ch)
		}
	}

	f.stories.Put(&models.StoryContent{
		Story:   models.Story{ID: storyID, AuthorID: f.authorID, Status: models.StoryStatusPublished},
		Scenes:  scenes,
		Choices: choices,
	})
	return storyID, scenes, bySource
}

// Каждый шаг всегда первым вариантом по choice_order завершает ацикличную
// историю не более чем за (scenes-1) шагов, и журнал решений совпадает с
// пройденным маршрутом.
func TestFirstChoiceWalkTerminates(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		f := newGameFixture(t, testConfig())
		viewerID := uuid.New()

		n := rapid.IntRange(2, 12).Draw(rt, "scenes")
		storyID, scenes, bySource := buildChain(rt, f, n)

		result, err := f.svc.StartStory(ctx, viewerID, storyID)
		if err != nil {
			rt.Fatalf("StartStory: %v", err)
		}

		steps := 0
		current := result.Scene
		for !current.IsEnding() {
			if steps > n {
				rt.Fatalf("walk did not terminate after %d steps", steps)
			}
			first := bySource[current.ID][0]
			res, err := f.svc.MakeChoice(ctx, viewerID, storyID, current.ID, first.ID, nil)
			if err != nil {
				rt.Fatalf("MakeChoice at step %d: %v", steps, err)
			}
			if res.Stale {
				rt.Fatalf("unexpected stale result at step %d", steps)
			}
			current = res.Scene
			steps++
		}

		if current.ID != scenes[n-1].ID {
			// Первый вариант каждого шага ведет ровно на следующую сцену.
			rt.Fatalf("walk ended at %s, want %s", current.ID, scenes[n-1].ID)
		}
		if steps != n-1 {
			rt.Fatalf("walk took %d steps, want %d", steps, n-1)
		}

		sess, err := f.sessions.GetByViewerAndStory(ctx, viewerID, storyID)
		if err != nil {
			rt.Fatalf("GetByViewerAndStory: %v", err)
		}
		if len(sess.ChoicesMade) != steps {
			rt.Fatalf("journal has %d records, want %d", len(sess.ChoicesMade), steps)
		}
		if sess.VisitedTotal != steps+1 {
			rt.Fatalf("visited total %d, want %d", sess.VisitedTotal, steps+1)
		}
		if sess.Status != models.SessionStatusCompleted {
			rt.Fatalf("session status %s, want completed", sess.Status)
		}
	})
}

// Кольцо чекпоинтов при любом числе сохранений держит не более пяти
// последних, в порядке сохранения.
func TestCheckpointRingProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		f := newGameFixture(t, testConfig())
		viewerID := uuid.New()

		if _, err := f.svc.StartStory(ctx, viewerID, f.storyID); err != nil {
			rt.Fatalf("StartStory: %v", err)
		}

		saves := rapid.IntRange(1, 12).Draw(rt, "saves")
		names := make([]string, saves)
		for i := 0; i < saves; i++ {
			names[i] = fmt.Sprintf("save-%d", i)
			if _, err := f.svc.SaveCheckpoint(ctx, viewerID, f.storyID, names[i]); err != nil {
				rt.Fatalf("SaveCheckpoint %d: %v", i, err)
			}
		}

		list, err := f.svc.ListCheckpoints(ctx, viewerID, f.storyID)
		if err != nil {
			rt.Fatalf("ListCheckpoints: %v", err)
		}

		want := saves
		if want > 5 {
			want = 5
		}
		if len(list) != want {
			rt.Fatalf("ring holds %d checkpoints, want %d", len(list), want)
		}
		for i, cp := range list {
			expected := names[saves-want+i]
			if cp.Name != expected {
				rt.Fatalf("ring[%d] = %q, want %q", i, cp.Name, expected)
			}
		}
	})
}
