package service

import (
	"sync"

	"github.com/google/uuid"
)

// sessionKey идентифицирует сессию парой (viewer, story).
func sessionKey(viewerID, storyID uuid.UUID) string {
	return viewerID.String() + ":" + storyID.String()
}

// sessionLocks - реестр мьютексов по ключу сессии. Все операции над одной
// сессией строго последовательны; разные сессии никогда не конкурируют.
// Мьютексы живут до остановки сервиса: их число ограничено числом пар
// (зритель, история), активных на инстансе.
type sessionLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{m: make(map[string]*sync.Mutex)}
}

// acquire блокирует ключ и возвращает функцию разблокировки.
func (l *sessionLocks) acquire(key string) func() {
	l.mu.Lock()
	lock, ok := l.m[key]
	if !ok {
		lock = &sync.Mutex{}
		l.m[key] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
