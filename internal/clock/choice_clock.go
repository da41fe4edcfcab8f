// Package clock реализует ChoiceClock - одноразовый отменяемый дедлайн
// на одно окно выбора. Ровно один из исходов {срабатывание, отмена}
// побеждает; повторные отмены и отмена после срабатывания безопасны.
package clock

import (
	"sync/atomic"
	"time"
)

const (
	stateArmed int32 = iota
	stateFired
	stateCancelled
)

// ChoiceClock - взведенный обратный отсчет одного окна выбора.
// Создается только через Arm; нулевое значение непригодно.
type ChoiceClock struct {
	deadline time.Time
	timer    *time.Timer
	state    atomic.Int32
}

// Arm запускает отсчет. По истечении duration вызывается onExpire в
// собственной горутине таймера - если к этому моменту часы не отменены.
func Arm(duration time.Duration, onExpire func()) *ChoiceClock {
	c := &ChoiceClock{deadline: time.Now().Add(duration)}
	c.state.Store(stateArmed)
	c.timer = time.AfterFunc(duration, func() {
		if c.state.CompareAndSwap(stateArmed, stateFired) {
			onExpire()
		}
	})
	return c
}

// Cancel останавливает отсчет. Возвращает true, если отмена победила
// срабатывание. Идемпотентен и безопасен после срабатывания.
func (c *ChoiceClock) Cancel() bool {
	if c == nil {
		return false
	}
	if c.state.CompareAndSwap(stateArmed, stateCancelled) {
		c.timer.Stop()
		return true
	}
	return false
}

// Fired reports whether the deadline already fired.
func (c *ChoiceClock) Fired() bool {
	return c != nil && c.state.Load() == stateFired
}

// Remaining возвращает оставшееся время окна; ноль, если окно закрыто.
// UI только наблюдает это значение, отсчетом владеет движок.
func (c *ChoiceClock) Remaining() time.Duration {
	if c == nil || c.state.Load() != stateArmed {
		return 0
	}
	if d := time.Until(c.deadline); d > 0 {
		return d
	}
	return 0
}
