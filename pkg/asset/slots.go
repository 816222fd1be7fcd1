package asset

import (
	"context"
	"sync"
)

// slot is one consumer's private load of an asset reference.
type slot struct {
	ref     string
	scope   *Scope
	pending *Pending
	patcher *Patcher
}

// Slots tracks the asset clone owned by each consumer key (a scene node).
// Two keys referencing the same asset receive independent clones.
type Slots struct {
	loader  *Loader
	onReady func(key string, state State)

	mu    sync.Mutex
	slots map[string]*slot
}

// NewSlots returns an empty slot table. onReady runs from the loading
// goroutine when a slot settles.
func NewSlots(l *Loader, onReady func(key string, state State)) *Slots {
	return &Slots{loader: l, onReady: onReady, slots: make(map[string]*slot)}
}

// Acquire ensures key is loading or loaded from ref and returns its state.
// A key that switches reference releases its previous load first.
func (s *Slots) Acquire(ctx context.Context, key, ref string) (State, error) {
	s.mu.Lock()
	if cur, ok := s.slots[key]; ok {
		if cur.ref == ref {
			s.mu.Unlock()
			return cur.pending.State(), nil
		}
		s.releaseLocked(key, cur)
	}

	scope, err := s.loader.Handles().Acquire(ref)
	if err != nil {
		s.mu.Unlock()
		return StateFailed, err
	}
	sl := &slot{ref: ref, scope: scope}
	sl.pending = s.loader.Start(ctx, scope, func(p *Pending) {
		if s.onReady != nil {
			s.onReady(key, p.State())
		}
	})
	s.slots[key] = sl
	s.mu.Unlock()
	return StateLoading, nil
}

// State returns the state of key's load.
func (s *Slots) State(key string) (State, bool) {
	s.mu.Lock()
	sl, ok := s.slots[key]
	s.mu.Unlock()
	if !ok || sl.pending == nil {
		return StateLoading, ok
	}
	return sl.pending.State(), true
}

// Patcher returns the highlight patcher over key's clone once it is ready.
func (s *Slots) Patcher(key string) (*Patcher, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[key]
	if !ok || sl.pending == nil || sl.pending.State() != StateReady {
		return nil, false
	}
	if sl.patcher == nil {
		model, _ := sl.pending.Result()
		sl.patcher = NewPatcher(model)
	}
	return sl.patcher, true
}

// Err returns the load error of a failed slot.
func (s *Slots) Err(key string) error {
	s.mu.Lock()
	sl, ok := s.slots[key]
	s.mu.Unlock()
	if !ok || sl.pending == nil {
		return nil
	}
	_, err := sl.pending.Result()
	return err
}

// Wait blocks until key's load settles or ctx ends.
func (s *Slots) Wait(ctx context.Context, key string) (State, error) {
	s.mu.Lock()
	sl, ok := s.slots[key]
	s.mu.Unlock()
	if !ok {
		return StateCancelled, nil
	}
	return sl.pending.Wait(ctx)
}

// Release ends key's load and frees its transient handle.
func (s *Slots) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok := s.slots[key]; ok {
		s.releaseLocked(key, sl)
	}
}

// Retain releases every slot whose key is not in keep.
func (s *Slots) Retain(keep map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, sl := range s.slots {
		if !keep[key] {
			s.releaseLocked(key, sl)
		}
	}
}

// Len returns the number of live slots.
func (s *Slots) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// Close releases every slot.
func (s *Slots) Close() {
	s.Retain(nil)
}

func (s *Slots) releaseLocked(key string, sl *slot) {
	delete(s.slots, key)
	if sl.pending != nil {
		sl.pending.Cancel()
	} else {
		sl.scope.Release()
	}
	if sl.scope.Owned() {
		s.loader.Forget(sl.scope.Ref())
	}
}
