package orchestrator

import "sync"

// keyedMutex serializes work per key while letting distinct keys run
// concurrently, implementing §5's "single-writer per Conversation": "within
// one conversation, turns are strictly serialized... across conversations,
// turns run in parallel... a per-conversation lock or a per-conversation
// single-consumer queue keyed by Conversation id."
//
// Entries are refcounted and removed once the last waiter releases, so the
// map never retains one entry per Conversation ever seen (mirrors the
// mutex-guarded-map idiom used throughout this module, e.g. UsageCounter
// and the Tool Registry).
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key's lock is held and returns a func that releases it.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	rm, ok := k.locks[key]
	if !ok {
		rm = &refMutex{}
		k.locks[key] = rm
	}
	rm.refs++
	k.mu.Unlock()

	rm.mu.Lock()
	return func() {
		rm.mu.Unlock()
		k.mu.Lock()
		rm.refs--
		if rm.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
