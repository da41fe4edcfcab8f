package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storyplay-server/internal/clock"
	"storyplay-server/internal/config"
	"storyplay-server/internal/messaging"
	"storyplay-server/internal/story"
	"storyplay-server/shared/interfaces"
	"storyplay-server/shared/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionService - машина состояний прохождения историй.
//
// Состояния сессии: Playing -> AwaitingChoice -> Playing/Completed.
// Все операции над одной сессией линеаризуются через реестр блокировок;
// в гонке ручного выбора и таймаута побеждает ровно один.
type SessionService interface {
	// StartStory creates a session at the story's entry scene or resumes an
	// existing one. Resume never resets the playthrough logs.
	StartStory(ctx context.Context, viewerID, storyID uuid.UUID) (*StartResult, error)

	// ArmChoice opens the decision window for the session's current scene and
	// starts its countdown. Idempotent while the same window stays open.
	ArmChoice(ctx context.Context, viewerID, storyID, sceneID uuid.UUID) (*ChoiceWindow, error)

	// MakeChoice resolves the open decision point with an explicit choice.
	// Запросы с отставшей сценой дают Stale-ответ, а не ошибку: ретраи
	// безопасны и не продвигают сессию дважды.
	MakeChoice(ctx context.Context, viewerID, storyID, sceneID, choiceID uuid.UUID, timeToDecideSec *float64) (*ChoiceResult, error)

	// GetProgress lists the viewer's progress across all started stories.
	GetProgress(ctx context.Context, viewerID uuid.UUID) ([]ProgressEntry, error)

	// SaveCheckpoint snapshots the session into the bounded checkpoint ring.
	SaveCheckpoint(ctx context.Context, viewerID, storyID uuid.UUID, name string) (*models.Checkpoint, error)

	// ListCheckpoints returns the checkpoint ring contents, oldest first.
	ListCheckpoints(ctx context.Context, viewerID, storyID uuid.UUID) ([]models.Checkpoint, error)

	// LoadCheckpoint restores the session from a checkpoint (the latest one,
	// if checkpointID is nil) and returns the restored session state.
	LoadCheckpoint(ctx context.Context, viewerID, storyID uuid.UUID, checkpointID *uuid.UUID) (*models.Session, error)

	// Shutdown отменяет все взведенные таймеры выбора. Вызывается при
	// остановке сервиса.
	Shutdown()
}

type sessionServiceImpl struct {
	loader      *story.Loader
	sessions    interfaces.SessionRepository
	checkpoints interfaces.CheckpointRepository
	analytics   interfaces.AnalyticsRepository
	publisher   messaging.SessionUpdatePublisher
	cfg         *config.Config
	logger      *zap.Logger

	locks *sessionLocks

	clockMu sync.Mutex
	clocks  map[string]*clock.ChoiceClock
}

// NewSessionService creates a new instance of SessionService.
func NewSessionService(
	loader *story.Loader,
	sessions interfaces.SessionRepository,
	checkpoints interfaces.CheckpointRepository,
	analytics interfaces.AnalyticsRepository,
	publisher messaging.SessionUpdatePublisher,
	cfg *config.Config,
	logger *zap.Logger,
) SessionService {
	if publisher == nil {
		publisher = &messaging.NoopPublisher{Logger: logger}
	}
	return &sessionServiceImpl{
		loader:      loader,
		sessions:    sessions,
		checkpoints: checkpoints,
		analytics:   analytics,
		publisher:   publisher,
		cfg:         cfg,
		logger:      logger.Named("SessionService"),
		locks:       newSessionLocks(),
		clocks:      make(map[string]*clock.ChoiceClock),
	}
}

var _ SessionService = (*sessionServiceImpl)(nil)

// StartStory implements SessionService.
func (s *sessionServiceImpl) StartStory(ctx context.Context, viewerID, storyID uuid.UUID) (*StartResult, error) {
	g, err := s.loader.Load(ctx, storyID)
	if err != nil {
		return nil, err
	}

	key := sessionKey(viewerID, storyID)
	unlock := s.locks.acquire(key)
	defer unlock()

	sess, err := s.sessions.GetByViewerAndStory(ctx, viewerID, storyID)
	switch {
	case err == nil:
		// Повторный start - это resume, а не новый старт: журналы не трогаем.
		scene, serr := g.Scene(sess.CurrentSceneID)
		if serr != nil {
			// Контент истории разошелся с сохраненной сессией
			return nil, fmt.Errorf("session %s points at missing scene: %w", sess.ID, models.ErrInvalidGraph)
		}
		return &StartResult{
			Scene:      scene,
			Choices:    g.ChoicesOf(scene.ID),
			Resumed:    true,
			IsEnding:   scene.IsEnding(),
			EndingType: sess.EndingType,
		}, nil
	case errors.Is(err, models.ErrNotFound):
		// создаем новую сессию ниже
	default:
		return nil, err
	}

	entry := g.EntryScene()
	now := time.Now().UTC()
	sess = &models.Session{
		ID:             uuid.New(),
		ViewerID:       viewerID,
		StoryID:        storyID,
		CurrentSceneID: entry.ID,
		Visited:        []uuid.UUID{entry.ID},
		VisitedTotal:   1,
		ChoicesMade:    []models.ChoiceRecord{},
		Stats:          map[string]any{},
		Status:         models.SessionStatusPlaying,
		StartedAt:      now,
		LastActivityAt: now,
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Info("Session started",
		zap.String("viewerID", viewerID.String()),
		zap.String("storyID", storyID.String()),
		zap.String("sessionID", sess.ID.String()),
		zap.String("entrySceneID", entry.ID.String()),
	)

	return &StartResult{
		Scene:    entry,
		Choices:  g.ChoicesOf(entry.ID),
		IsEnding: entry.IsEnding(),
	}, nil
}

// ArmChoice implements SessionService.
func (s *sessionServiceImpl) ArmChoice(ctx context.Context, viewerID, storyID, sceneID uuid.UUID) (*ChoiceWindow, error) {
	g, err := s.loader.Load(ctx, storyID)
	if err != nil {
		return nil, err
	}

	key := sessionKey(viewerID, storyID)
	unlock := s.locks.acquire(key)
	defer unlock()

	sess, err := s.sessions.GetByViewerAndStory(ctx, viewerID, storyID)
	if err != nil {
		return nil, err
	}
	if sess.CurrentSceneID != sceneID {
		return nil, fmt.Errorf("arm scene %s: %w", sceneID, models.ErrStaleScene)
	}

	choices := g.ChoicesOf(sceneID)
	if len(choices) == 0 {
		return nil, fmt.Errorf("scene %s has no choices: %w", sceneID, models.ErrInvalidChoice)
	}

	timeout := s.timeoutFor(g, sceneID)

	if sess.Status == models.SessionStatusAwaitingChoice {
		// Окно уже открыто - повторное arm идемпотентно.
		s.clockMu.Lock()
		c := s.clocks[key]
		s.clockMu.Unlock()
		deadline := time.Now().Add(timeout)
		if c != nil {
			deadline = time.Now().Add(c.Remaining())
		}
		return &ChoiceWindow{
			SceneID:        sceneID,
			Choices:        choices,
			TimeoutSeconds: int(timeout / time.Second),
			Deadline:       deadline,
		}, nil
	}
	if sess.Status != models.SessionStatusPlaying {
		return nil, fmt.Errorf("session %s is %s: %w", sess.ID, sess.Status, models.ErrStaleScene)
	}

	upd := sess.Clone()
	upd.Status = models.SessionStatusAwaitingChoice
	upd.LastActivityAt = time.Now().UTC()
	if err := s.sessions.Save(ctx, upd); err != nil {
		return nil, fmt.Errorf("arm choice: %w", err)
	}

	step := upd.Step()
	c := clock.Arm(timeout, func() {
		s.resolveTimeout(viewerID, storyID, sceneID, step, timeout)
	})
	s.clockMu.Lock()
	s.clocks[key] = c
	s.clockMu.Unlock()

	s.logger.Debug("Choice window armed",
		zap.String("sessionID", upd.ID.String()),
		zap.String("sceneID", sceneID.String()),
		zap.Duration("timeout", timeout),
	)

	return &ChoiceWindow{
		SceneID:        sceneID,
		Choices:        choices,
		TimeoutSeconds: int(timeout / time.Second),
		Deadline:       time.Now().Add(timeout),
	}, nil
}

// MakeChoice implements SessionService.
func (s *sessionServiceImpl) MakeChoice(ctx context.Context, viewerID, storyID, sceneID, choiceID uuid.UUID, timeToDecideSec *float64) (*ChoiceResult, error) {
	g, err := s.loader.Load(ctx, storyID)
	if err != nil {
		return nil, err
	}

	key := sessionKey(viewerID, storyID)
	unlock := s.locks.acquire(key)
	defer unlock()

	sess, err := s.sessions.GetByViewerAndStory(ctx, viewerID, storyID)
	if err != nil {
		return nil, err
	}

	if sess.Status == models.SessionStatusCompleted || sess.CurrentSceneID != sceneID {
		return s.staleResult(g, sess, sceneID)
	}

	choice, err := g.Choice(sceneID, choiceID)
	if err != nil {
		return nil, err
	}

	// Закрываем окно выбора; если таймер уже сработал, его горутина ждет
	// нашу блокировку и отступит, увидев продвинувшуюся сессию.
	s.dropClock(key, true)

	latency := 0.0
	if timeToDecideSec != nil && *timeToDecideSec > 0 {
		latency = *timeToDecideSec
	}

	result, err := s.applyResolve(ctx, g, sess, choice, models.DecidedByUser, latency)
	if err != nil {
		return nil, err
	}

	if result.IsEnding {
		s.publishUpdate(ctx, sess, result, models.UpdateTypeSessionCompleted, models.DecidedByUser)
	}
	return result, nil
}

// resolveTimeout разрешает просроченное окно выбора первым вариантом по
// choice_order. Вызывается горутиной таймера; зритель мог отключиться -
// движок продвигает сессию сам и публикует обновление для слоя доставки.
func (s *sessionServiceImpl) resolveTimeout(viewerID, storyID, sceneID uuid.UUID, step int, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key := sessionKey(viewerID, storyID)
	unlock := s.locks.acquire(key)
	defer unlock()

	s.dropClock(key, false)

	sess, err := s.sessions.GetByViewerAndStory(ctx, viewerID, storyID)
	if err != nil {
		s.logger.Error("Timeout resolution: session lookup failed",
			zap.String("viewerID", viewerID.String()),
			zap.String("storyID", storyID.String()),
			zap.Error(err),
		)
		return
	}

	// Ручной выбор или восстановление чекпоинта могли опередить таймер.
	if sess.Status != models.SessionStatusAwaitingChoice || sess.CurrentSceneID != sceneID || sess.Step() != step {
		s.logger.Debug("Timeout resolution skipped: window already closed",
			zap.String("sessionID", sess.ID.String()),
			zap.String("sceneID", sceneID.String()),
		)
		return
	}

	g, err := s.loader.Load(ctx, storyID)
	if err != nil {
		s.logger.Error("Timeout resolution: graph load failed", zap.String("storyID", storyID.String()), zap.Error(err))
		return
	}

	choices := g.ChoicesOf(sceneID)
	if len(choices) == 0 {
		s.logger.Error("Timeout resolution: scene has no choices", zap.String("sceneID", sceneID.String()))
		return
	}

	// Детерминированный tie-break: минимальный choice_order.
	first := choices[0]
	result, err := s.applyResolve(ctx, g, sess, first, models.DecidedByTimeout, timeout.Seconds())
	if err != nil {
		s.logger.Error("Timeout resolution failed",
			zap.String("sessionID", sess.ID.String()),
			zap.String("sceneID", sceneID.String()),
			zap.Error(err),
		)
		return
	}

	s.logger.Info("Choice window expired, resolved deterministically",
		zap.String("sessionID", sess.ID.String()),
		zap.String("sceneID", sceneID.String()),
		zap.String("choiceID", first.ID.String()),
	)

	updType := models.UpdateTypeSceneAdvanced
	if result.IsEnding {
		updType = models.UpdateTypeSessionCompleted
	}
	s.publishUpdate(ctx, sess, result, updType, models.DecidedByTimeout)
}

// applyResolve применяет выбранное ребро к сессии: журналы, переход сцены,
// завершение и аналитика. Сессия мутируется по принципу "все или ничего":
// при ошибке сохранения состояние не меняется.
func (s *sessionServiceImpl) applyResolve(
	ctx context.Context,
	g *story.Graph,
	sess *models.Session,
	choice models.Choice,
	decidedBy models.DecidedBy,
	timeToDecideSec float64,
) (*ChoiceResult, error) {
	next, err := g.Scene(choice.NextSceneID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	step := sess.Step()

	upd := sess.Clone()
	upd.ChoicesMade = append(upd.ChoicesMade, models.ChoiceRecord{
		SceneID:         choice.SceneID,
		ChoiceID:        choice.ID,
		DecidedBy:       decidedBy,
		TimeToDecideSec: timeToDecideSec,
		DecidedAt:       now,
	})
	upd.CurrentSceneID = next.ID
	s.appendVisited(upd, next.ID)
	upd.LastActivityAt = now

	if next.IsEnding() {
		upd.Status = models.SessionStatusCompleted
		ending := models.EndingTypeNeutral
		if next.EndingType != nil {
			ending = *next.EndingType
		}
		upd.EndingType = &ending
		completedAt := now
		upd.CompletedAt = &completedAt
	} else {
		upd.Status = models.SessionStatusPlaying
	}

	if err := s.sessions.Save(ctx, upd); err != nil {
		return nil, fmt.Errorf("advance session: %w", err)
	}
	*sess = *upd

	// Аналитика идемпотентна по ID события; ее отказ не откатывает переход.
	event := models.ChoiceEvent{
		ID:              models.ChoiceEventID(upd.ID, choice.SceneID, step),
		StoryID:         upd.StoryID,
		SessionID:       upd.ID,
		SceneID:         choice.SceneID,
		ChoiceID:        choice.ID,
		DecidedBy:       decidedBy,
		TimeToDecideSec: timeToDecideSec,
		RecordedAt:      now,
	}
	if err := s.analytics.RecordChoice(ctx, event); err != nil {
		s.logger.Error("Failed to record choice event", zap.String("eventID", event.ID.String()), zap.Error(err))
	}
	if upd.Status == models.SessionStatusCompleted {
		record := models.CompletionRecord{
			ID:          models.CompletionRecordID(upd.ID),
			StoryID:     upd.StoryID,
			SessionID:   upd.ID,
			EndingType:  *upd.EndingType,
			CompletedAt: now,
		}
		if err := s.analytics.RecordCompletion(ctx, record); err != nil {
			s.logger.Error("Failed to record completion", zap.String("sessionID", upd.ID.String()), zap.Error(err))
		}
	}

	return &ChoiceResult{
		DecidedBy:  decidedBy,
		Scene:      next,
		Choices:    g.ChoicesOf(next.ID),
		IsEnding:   next.IsEnding(),
		EndingType: upd.EndingType,
	}, nil
}

// staleResult строит success-shaped ответ для отставшего запроса: текущее
// состояние сессии вместо повторного перехода.
func (s *sessionServiceImpl) staleResult(g *story.Graph, sess *models.Session, requestedScene uuid.UUID) (*ChoiceResult, error) {
	current, err := g.Scene(sess.CurrentSceneID)
	if err != nil {
		return nil, err
	}

	// Для ретрая уже примененного выбора восстанавливаем, кто его разрешил.
	decidedBy := models.DecidedBy("")
	for i := len(sess.ChoicesMade) - 1; i >= 0; i-- {
		if sess.ChoicesMade[i].SceneID == requestedScene {
			decidedBy = sess.ChoicesMade[i].DecidedBy
			break
		}
	}

	return &ChoiceResult{
		Stale:      true,
		DecidedBy:  decidedBy,
		Scene:      current,
		Choices:    g.ChoicesOf(current.ID),
		IsEnding:   current.IsEnding(),
		EndingType: sess.EndingType,
	}, nil
}

// GetProgress implements SessionService.
func (s *sessionServiceImpl) GetProgress(ctx context.Context, viewerID uuid.UUID) ([]ProgressEntry, error) {
	sessions, err := s.sessions.ListByViewer(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	entries := make([]ProgressEntry, 0, len(sessions))
	for _, sess := range sessions {
		entries = append(entries, ProgressEntry{
			StoryID:        sess.StoryID,
			CurrentSceneID: sess.CurrentSceneID,
			Visited:        append([]uuid.UUID(nil), sess.Visited...),
			VisitedTotal:   sess.VisitedTotal,
			IsCompleted:    sess.IsCompleted(),
			EndingType:     sess.EndingType,
			StartedAt:      sess.StartedAt,
			LastActivityAt: sess.LastActivityAt,
		})
	}
	return entries, nil
}

// Shutdown implements SessionService.
func (s *sessionServiceImpl) Shutdown() {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	for key, c := range s.clocks {
		c.Cancel()
		delete(s.clocks, key)
	}
}

// timeoutFor возвращает таймаут окна выбора сцены или значение по умолчанию.
func (s *sessionServiceImpl) timeoutFor(g *story.Graph, sceneID uuid.UUID) time.Duration {
	if scene, err := g.Scene(sceneID); err == nil && scene.ChoiceTimeoutSec != nil && *scene.ChoiceTimeoutSec > 0 {
		return time.Duration(*scene.ChoiceTimeoutSec) * time.Second
	}
	return s.cfg.DefaultChoiceTimeout()
}

// appendVisited добавляет сцену в журнал посещений с учетом верхней границы.
func (s *sessionServiceImpl) appendVisited(sess *models.Session, sceneID uuid.UUID) {
	sess.Visited = append(sess.Visited, sceneID)
	if limit := s.cfg.VisitedLogLimit; limit > 0 && len(sess.Visited) > limit {
		sess.Visited = append([]uuid.UUID(nil), sess.Visited[len(sess.Visited)-limit:]...)
	}
	sess.VisitedTotal++
}

// dropClock снимает часы с реестра; при cancel=true еще и отменяет их.
func (s *sessionServiceImpl) dropClock(key string, cancel bool) {
	s.clockMu.Lock()
	c := s.clocks[key]
	delete(s.clocks, key)
	s.clockMu.Unlock()
	if cancel && c != nil {
		c.Cancel()
	}
}

func (s *sessionServiceImpl) publishUpdate(ctx context.Context, sess *models.Session, result *ChoiceResult, updType models.SessionUpdateType, decidedBy models.DecidedBy) {
	update := models.SessionUpdate{
		Type:       updType,
		ViewerID:   sess.ViewerID,
		StoryID:    sess.StoryID,
		SessionID:  sess.ID,
		SceneID:    result.Scene.ID,
		DecidedBy:  decidedBy,
		EndingType: result.EndingType,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.publisher.PublishSessionUpdate(ctx, update); err != nil {
		s.logger.Error("Failed to publish session update",
			zap.String("type", string(updType)),
			zap.String("sessionID", sess.ID.String()),
			zap.Error(err),
		)
	}
}
