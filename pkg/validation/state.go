package validation

import (
	"sort"
	"sync"
)

// State holds the client and server messages of a form session. All
// mutation goes through its methods; it is safe for concurrent use.
type State struct {
	mu      sync.RWMutex
	client  map[string]Messages
	server  map[string]Messages
	applied map[string]uint64
	floor   uint64
	skip    map[string]bool
}

// NewState returns an empty State.
func NewState() *State {
	return &State{
		client:  make(map[string]Messages),
		server:  make(map[string]Messages),
		applied: make(map[string]uint64),
		skip:    make(map[string]bool),
	}
}

// SetClient replaces the client messages of key.
func (s *State) SetClient(key string, m Messages) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Empty() {
		delete(s.client, key)
		return
	}
	s.client[key] = m.Clone()
}

// ClearClient drops the client messages of every key accepted by match.
func (s *State) ClearClient(match func(key string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.client {
		if match == nil || match(key) {
			delete(s.client, key)
		}
	}
}

// ApplyServer applies a server result for the keys in scope plus any key the
// result mentions. A key whose last applied sequence is newer than seq keeps
// its messages. Keys in scope missing from byKey lose their server messages.
// The keys actually updated are returned sorted.
func (s *State) ApplyServer(scope []string, byKey map[string]Messages, seq uint64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make(map[string]struct{}, len(scope)+len(byKey))
	for _, key := range scope {
		keys[key] = struct{}{}
	}
	for key := range byKey {
		keys[key] = struct{}{}
	}
	return s.applyLocked(keys, byKey, seq)
}

// ReplaceServer applies a result that covers the whole data element: every
// key not mentioned in byKey loses its server messages, subject to the same
// sequence check as ApplyServer.
func (s *State) ReplaceServer(byKey map[string]Messages, seq uint64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < s.floor {
		return nil
	}
	keys := make(map[string]struct{}, len(s.server)+len(byKey))
	for key := range s.server {
		keys[key] = struct{}{}
	}
	for key := range byKey {
		keys[key] = struct{}{}
	}
	updated := s.applyLocked(keys, byKey, seq)
	s.floor = seq
	return updated
}

func (s *State) applyLocked(keys map[string]struct{}, byKey map[string]Messages, seq uint64) []string {
	var updated []string
	for key := range keys {
		if seq < s.floor || seq < s.applied[key] {
			continue
		}
		s.applied[key] = seq
		if m := byKey[key]; !m.Empty() {
			s.server[key] = m.Clone()
		} else {
			delete(s.server, key)
		}
		updated = append(updated, key)
	}
	sort.Strings(updated)
	return updated
}

// Applied returns the sequence of the last server result applied to key.
func (s *State) Applied(key string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.applied[key] > s.floor {
		return s.applied[key]
	}
	return s.floor
}

// For returns the merged messages of key.
func (s *State) For(key string) Messages {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Merge(s.client[key], s.server[key])
}

// All returns the merged messages of every key that has any.
func (s *State) All() map[string]Messages {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return MergeAll(s.client, s.server)
}

// HasErrors reports whether any key holds an error.
func (s *State) HasErrors() bool {
	for _, m := range s.All() {
		if m.HasErrors() {
			return true
		}
	}
	return false
}

// FirstInvalid returns the first key in order holding an error.
func (s *State) FirstInvalid(order []string) (string, bool) {
	for _, key := range order {
		if s.For(key).HasErrors() {
			return key, true
		}
	}
	return "", false
}

// SkipRequiredOnce suppresses the required check for the next commit of key.
func (s *State) SkipRequiredOnce(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skip[key] = true
}

// ConsumeSkipRequired reports and clears a pending SkipRequiredOnce for key.
func (s *State) ConsumeSkipRequired(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.skip[key] {
		return false
	}
	delete(s.skip, key)
	return true
}

// Reset drops every message and sequence.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = make(map[string]Messages)
	s.server = make(map[string]Messages)
	s.applied = make(map[string]uint64)
	s.skip = make(map[string]bool)
	s.floor = 0
}
