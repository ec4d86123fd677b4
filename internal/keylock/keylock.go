// Package keylock реализует взаимное исключение по строковому ключу.
package keylock

import (
	"context"
	"sync"
)

type entry struct {
	ch   chan struct{}
	refs int
}

// Locker выдаёт эксклюзивные области по ключу (например, по идентификатору пользователя).
// Записи для ключей удаляются, когда их никто не держит и не ждёт.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// New создаёт пустой Locker.
func New() *Locker {
	return &Locker{locks: make(map[string]*entry)}
}

// Lock захватывает ключ или возвращает ошибку контекста, если ожидание прервано.
// Возвращённую функцию нужно вызвать ровно один раз.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.ch
				l.release(key, e)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}
}

func (l *Locker) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// Len возвращает число ключей, которые сейчас удерживаются или ожидаются.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
