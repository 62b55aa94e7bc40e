package ca

import "sync"

// State is the shared handle to one authority. Mutating operations run
// under Update and read-only ones under View, so a report never observes a
// half-applied mutation.
type State struct {
	mu      sync.RWMutex
	service Service
	store   CertificateStore
}

// NewState wraps service and store in a State.
func NewState(service Service, store CertificateStore) *State {
	return &State{service: service, store: store}
}

// Update runs fn with exclusive access.
func (s *State) Update(fn func(Service, CertificateStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.service, s.store)
}

// View runs fn with shared access.
func (s *State) View(fn func(Service, CertificateStore) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.service, s.store)
}
