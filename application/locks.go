package application

import "sync"

// ApplicationLocks serializes read-modify-save of one application record.
// Entries are dropped once nobody holds or waits on them.
type ApplicationLocks struct {
	mu    sync.Mutex
	locks map[int64]*appLock
}

type appLock struct {
	mu   sync.Mutex
	refs int
}

func NewApplicationLocks() *ApplicationLocks {
	return &ApplicationLocks{locks: make(map[int64]*appLock)}
}

// Lock blocks until id is free and returns its unlock func.
func (l *ApplicationLocks) Lock(id int64) func() {
	l.mu.Lock()
	lk, ok := l.locks[id]
	if !ok {
		lk = &appLock{}
		l.locks[id] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *ApplicationLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
