package story

import (
	"fmt"
	"sort"

	"storyplay-server/shared/models"

	"github.com/google/uuid"
)

// EntryPolicy определяет, как выбирается стартовая сцена истории.
type EntryPolicy string

const (
	// EntryPolicyFirstByOrder - сцена с типом intro, а при ее отсутствии
	// сцена с минимальным scene_order. Историческое поведение платформы.
	EntryPolicyFirstByOrder EntryPolicy = "first-by-order"
	// EntryPolicyRequireIntro - intro-сцена обязательна; без нее история
	// отклоняется при загрузке.
	EntryPolicyRequireIntro EntryPolicy = "require-intro"
)

// Graph - неизменяемое представление одной истории: плоские арены сцен и
// переходов плюс индексы по ID. Циклы и повторные посещения - обычные
// переходы по индексу, без ссылочной структуры. После построения граф
// безопасно разделяется всеми сессиями без блокировок.
type Graph struct {
	story        models.Story
	scenes       []models.Scene
	sceneIdx     map[uuid.UUID]int
	choices      []models.Choice
	choicesByIdx [][]int // индексы в choices, отсортированы по choice_order
	entryIdx     int
}

// NewGraph строит и валидирует граф из загруженного среза истории.
// Ошибки контента (models.ErrEmptyStory, models.ErrInvalidGraph) фатальны
// для запуска истории и не ретраятся.
func NewGraph(content *models.StoryContent, policy EntryPolicy) (*Graph, error) {
	if content == nil {
		return nil, models.ErrNotFound
	}
	if len(content.Scenes) == 0 {
		return nil, fmt.Errorf("story %s: %w", content.Story.ID, models.ErrEmptyStory)
	}

	g := &Graph{
		story:        content.Story,
		scenes:       append([]models.Scene(nil), content.Scenes...),
		sceneIdx:     make(map[uuid.UUID]int, len(content.Scenes)),
		choices:      append([]models.Choice(nil), content.Choices...),
		choicesByIdx: make([][]int, len(content.Scenes)),
		entryIdx:     -1,
	}

	for i, sc := range g.scenes {
		if _, dup := g.sceneIdx[sc.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate scene %s", models.ErrInvalidGraph, sc.ID)
		}
		if sc.StoryID != g.story.ID {
			return nil, fmt.Errorf("%w: scene %s belongs to story %s", models.ErrInvalidGraph, sc.ID, sc.StoryID)
		}
		g.sceneIdx[sc.ID] = i
	}

	for ci, ch := range g.choices {
		srcIdx, ok := g.sceneIdx[ch.SceneID]
		if !ok {
			return nil, fmt.Errorf("%w: choice %s references unknown scene %s", models.ErrInvalidGraph, ch.ID, ch.SceneID)
		}
		if _, ok := g.sceneIdx[ch.NextSceneID]; !ok {
			// Цель перехода обязана принадлежать той же истории
			return nil, fmt.Errorf("%w: choice %s targets scene %s outside the story", models.ErrInvalidGraph, ch.ID, ch.NextSceneID)
		}
		g.choicesByIdx[srcIdx] = append(g.choicesByIdx[srcIdx], ci)
	}

	for i, sc := range g.scenes {
		outgoing := g.choicesByIdx[i]
		sort.SliceStable(outgoing, func(a, b int) bool {
			return g.choices[outgoing[a]].ChoiceOrder < g.choices[outgoing[b]].ChoiceOrder
		})

		if sc.IsEnding() {
			if len(outgoing) != 0 {
				return nil, fmt.Errorf("%w: ending scene %s has outgoing choices", models.ErrInvalidGraph, sc.ID)
			}
			if sc.EndingType != nil && !models.ValidEndingType(*sc.EndingType) {
				return nil, fmt.Errorf("%w: ending scene %s has unknown ending type %q", models.ErrInvalidGraph, sc.ID, *sc.EndingType)
			}
			continue
		}
		if len(outgoing) == 0 {
			return nil, fmt.Errorf("%w: non-ending scene %s has no choices", models.ErrInvalidGraph, sc.ID)
		}
	}

	entryIdx, err := pickEntry(g.scenes, policy)
	if err != nil {
		return nil, err
	}
	g.entryIdx = entryIdx

	return g, nil
}

// pickEntry выбирает стартовую сцену согласно политике.
func pickEntry(scenes []models.Scene, policy EntryPolicy) (int, error) {
	introIdx := -1
	lowestIdx := 0
	for i, sc := range scenes {
		if sc.SceneType == models.SceneTypeIntro {
			if introIdx == -1 || sc.SceneOrder < scenes[introIdx].SceneOrder {
				introIdx = i
			}
		}
		if sc.SceneOrder < scenes[lowestIdx].SceneOrder {
			lowestIdx = i
		}
	}

	if introIdx >= 0 {
		return introIdx, nil
	}
	if policy == EntryPolicyRequireIntro {
		return 0, fmt.Errorf("%w: no intro scene", models.ErrInvalidGraph)
	}
	return lowestIdx, nil
}

// Story returns the story metadata the graph was built from.
func (g *Graph) Story() models.Story {
	return g.story
}

// EntryScene returns the scene a fresh session starts at.
func (g *Graph) EntryScene() models.Scene {
	return g.scenes[g.entryIdx]
}

// Scene returns a scene by ID or models.ErrNotFound.
func (g *Graph) Scene(sceneID uuid.UUID) (models.Scene, error) {
	idx, ok := g.sceneIdx[sceneID]
	if !ok {
		return models.Scene{}, fmt.Errorf("scene %s: %w", sceneID, models.ErrNotFound)
	}
	return g.scenes[idx], nil
}

// ChoicesOf returns the outgoing choices of a scene ordered by choice_order.
// Неизвестная сцена дает пустой срез - вызывающий обязан был проверить сцену.
func (g *Graph) ChoicesOf(sceneID uuid.UUID) []models.Choice {
	idx, ok := g.sceneIdx[sceneID]
	if !ok {
		return nil
	}
	indices := g.choicesByIdx[idx]
	out := make([]models.Choice, len(indices))
	for i, ci := range indices {
		out[i] = g.choices[ci]
	}
	return out
}

// Choice resolves a concrete outgoing edge of a scene.
// Returns models.ErrInvalidChoice when the edge does not leave this scene.
func (g *Graph) Choice(sceneID, choiceID uuid.UUID) (models.Choice, error) {
	for _, ch := range g.ChoicesOf(sceneID) {
		if ch.ID == choiceID {
			return ch, nil
		}
	}
	return models.Choice{}, fmt.Errorf("choice %s on scene %s: %w", choiceID, sceneID, models.ErrInvalidChoice)
}

// IsTerminal reports whether the scene is an ending. Unknown scenes are not terminal.
func (g *Graph) IsTerminal(sceneID uuid.UUID) bool {
	idx, ok := g.sceneIdx[sceneID]
	if !ok {
		return false
	}
	return g.scenes[idx].IsEnding()
}

// SceneCount returns the number of scenes in the story.
func (g *Graph) SceneCount() int {
	return len(g.scenes)
}

// Content возвращает срез истории в том виде, в котором его отдает
// get_story_tree: сцены и переходы в порядке арены.
func (g *Graph) Content() *models.StoryContent {
	return &models.StoryContent{
		Story:   g.story,
		Scenes:  append([]models.Scene(nil), g.scenes...),
		Choices: append([]models.Choice(nil), g.choices...),
	}
}
