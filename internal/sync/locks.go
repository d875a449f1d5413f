package sync

import gosync "sync"

// projectLocks serializes mutating operations per project so that
// interleaved webhook deliveries for the same repository cannot race on
// the shared local mirror. Different projects proceed in parallel.
type projectLocks struct {
	mu    gosync.Mutex
	locks map[string]*gosync.Mutex
}

func newProjectLocks() *projectLocks {
	return &projectLocks{locks: make(map[string]*gosync.Mutex)}
}

// lock acquires the mutex for a project key and returns its unlock
// function. Lock entries are never removed; the fleet of projects is
// small and stable.
func (p *projectLocks) lock(key string) func() {
	p.mu.Lock()
	m, ok := p.locks[key]
	if !ok {
		m = &gosync.Mutex{}
		p.locks[key] = m
	}
	p.mu.Unlock()

	m.Lock()
	return m.Unlock
}
