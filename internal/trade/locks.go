package trade

import "sync"

// portfolioLocks hands out one mutex per user so order execution is atomic
// with respect to any other execution touching the same portfolio, without
// serializing unrelated users behind a single lock.
type portfolioLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPortfolioLocks() *portfolioLocks {
	return &portfolioLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the user's mutex and returns its unlock function.
func (l *portfolioLocks) lock(userID string) func() {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
