package reconciler

import "sync"

// keyedLocks serializes operations per record id so two in-flight mutations
// for the same id can never race into the store in submission-dependent
// order. Locks are reference counted and dropped when idle.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*idLock
}

type idLock struct {
	sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*idLock)}
}

// lock blocks until the id's lock is held and returns its unlock func.
func (k *keyedLocks) lock(id string) func() {
	k.mu.Lock()
	l := k.locks[id]
	if l == nil {
		l = &idLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()

	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
