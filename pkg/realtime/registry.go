package realtime

import (
	"slices"
	"sync"
)

type handlerEntry struct {
	id      string
	handler Handler
}

// Registry maps topic keys to their handlers and remembers the key set last
// transmitted to the server. A key exists only while it has a handler.
type Registry struct {
	mu       sync.Mutex
	subs     map[string][]handlerEntry
	snapshot []string
	synced   bool
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string][]handlerEntry)}
}

func (r *Registry) add(key, id string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[key] = append(r.subs[key], handlerEntry{id: id, handler: h})
}

// remove drops handler id from key. keyGone is set when key lost its last
// handler, empty when the registry holds no keys anymore.
func (r *Registry) remove(key, id string) (removed, keyGone, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.subs[key]
	idx := slices.IndexFunc(entries, func(e handlerEntry) bool { return e.id == id })
	if idx < 0 {
		return false, false, len(r.subs) == 0
	}

	entries = slices.Delete(slices.Clone(entries), idx, idx+1)
	if len(entries) == 0 {
		delete(r.subs, key)
		keyGone = true
	} else {
		r.subs[key] = entries
	}
	return true, keyGone, len(r.subs) == 0
}

func (r *Registry) removeKey(key string) (removed, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, removed = r.subs[key]
	delete(r.subs, key)
	return removed, len(r.subs) == 0
}

// handlers returns a copy of the handlers of key
func (r *Registry) handlers(key string) []Handler {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.subs[key]
	if len(entries) == 0 {
		return nil
	}
	out := make([]Handler, len(entries))
	for i, e := range entries {
		out[i] = e.handler
	}
	return out
}

// Keys returns the registered keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keysLocked()
}

func (r *Registry) keysLocked() []string {
	keys := make([]string, 0, len(r.subs))
	for k := range r.subs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Snapshot returns the key set last transmitted, or nil when nothing has been
// transmitted on the current connection.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.synced {
		return nil
	}
	return slices.Clone(r.snapshot)
}

// pending returns the key set to transmit, or ok=false when it equals the
// snapshot and force is not set.
func (r *Registry) pending(force bool) (keys []string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys = r.keysLocked()
	if !force && r.synced && slices.Equal(keys, r.snapshot) {
		return nil, false
	}
	return keys, true
}

func (r *Registry) commit(keys []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot = keys
	r.synced = true
}

func (r *Registry) invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot = nil
	r.synced = false
}
