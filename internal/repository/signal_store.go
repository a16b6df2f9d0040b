package repository

import (
	"sync"

	"FxSignal/internal/domain/models"
)

// ChangeKind says what happened to the in-memory signal set.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeReplaced ChangeKind = "replaced"
	ChangeRemoved  ChangeKind = "removed"
	ChangeReset    ChangeKind = "reset"
)

// Change is delivered to subscribers after every write. Signal is empty for ChangeReset.
type Change struct {
	Kind   ChangeKind
	Signal models.Signal
}

// SignalRepository is the process-local view of the ledger. Writes swap in a new
// slice so readers never observe a partially applied change.
type SignalRepository struct {
	mu      sync.RWMutex
	signals []models.Signal

	// one mutex per signal id, never removed
	locks sync.Map

	subMu  sync.Mutex
	nextID int
	subs   map[int]chan Change
}

func NewSignalRepository() *SignalRepository {
	return &SignalRepository{subs: make(map[int]chan Change)}
}

// List returns a copy of every signal, newest first.
func (r *SignalRepository) List() []models.Signal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Signal(nil), r.signals...)
}

func (r *SignalRepository) Get(id string) (models.Signal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.signals {
		if s.ID == id {
			return s, true
		}
	}
	return models.Signal{}, false
}

// Active returns the signals still open.
func (r *SignalRepository) Active() []models.Signal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Signal, 0, len(r.signals))
	for _, s := range r.signals {
		if s.IsActive() {
			out = append(out, s)
		}
	}
	return out
}

// Add prepends s. A signal with the same id is replaced instead.
func (r *SignalRepository) Add(s models.Signal) {
	r.mu.Lock()
	next := make([]models.Signal, 0, len(r.signals)+1)
	next = append(next, s)
	for _, cur := range r.signals {
		if cur.ID != s.ID {
			next = append(next, cur)
		}
	}
	r.signals = next
	r.mu.Unlock()
	r.notify(Change{Kind: ChangeAdded, Signal: s})
}

// Replace swaps the signal with s.ID for s. It reports false when no such signal exists.
func (r *SignalRepository) Replace(s models.Signal) bool {
	r.mu.Lock()
	idx := -1
	for i, cur := range r.signals {
		if cur.ID == s.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return false
	}
	next := append([]models.Signal(nil), r.signals...)
	next[idx] = s
	r.signals = next
	r.mu.Unlock()
	r.notify(Change{Kind: ChangeReplaced, Signal: s})
	return true
}

func (r *SignalRepository) Remove(id string) bool {
	r.mu.Lock()
	next := make([]models.Signal, 0, len(r.signals))
	var removed models.Signal
	found := false
	for _, cur := range r.signals {
		if cur.ID == id {
			removed, found = cur, true
			continue
		}
		next = append(next, cur)
	}
	if found {
		r.signals = next
	}
	r.mu.Unlock()
	if found {
		r.notify(Change{Kind: ChangeRemoved, Signal: removed})
	}
	return found
}

// Lock serialises work on one signal id and returns the unlock func. Resolution,
// sealing and deletion of the same signal all go through it.
func (r *SignalRepository) Lock(id string) func() {
	v, _ := r.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// ReplaceAll swaps the whole set, e.g. after a ledger resync. A signal already
// resolved in memory is kept when the incoming copy is still ACTIVE, since the
// incoming set may have been read before the resolution was written.
func (r *SignalRepository) ReplaceAll(signals []models.Signal) {
	r.mu.Lock()
	resolved := make(map[string]models.Signal)
	for _, cur := range r.signals {
		if !cur.IsActive() {
			resolved[cur.ID] = cur
		}
	}
	next := make([]models.Signal, len(signals))
	for i, s := range signals {
		if cur, ok := resolved[s.ID]; ok && s.IsActive() {
			s = cur
		}
		next[i] = s
	}
	r.signals = next
	r.mu.Unlock()
	r.notify(Change{Kind: ChangeReset})
}

// Subscribe returns a channel of changes and a cancel func. Changes are dropped
// for subscribers whose buffer is full.
func (r *SignalRepository) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Change, buffer)
	r.subMu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	r.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, id)
			r.subMu.Unlock()
			close(ch)
		})
	}
}

func (r *SignalRepository) notify(c Change) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- c:
		default:
		}
	}
}
