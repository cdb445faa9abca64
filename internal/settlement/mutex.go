package settlement

import "sync"

// roundMutex serializes settlement work per round. Phases read then write
// flags and balances non-atomically, so two finalize calls for the same round
// must never interleave. Different rounds proceed in parallel.
type roundMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newRoundMutex() *roundMutex {
	return &roundMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for a round, creating it on first use. The returned
// function releases it.
func (m *roundMutex) Lock(roundID string) func() {
	m.mu.Lock()
	lock, ok := m.locks[roundID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[roundID] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
