package profile

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Persistence is the durable side of a Store.
//
// Save receives the full set in insertion order together with the profile
// that changed, so a backend may rewrite everything or write only the change.
type Persistence interface {
	Load(ctx context.Context) ([]Profile, error)
	Save(ctx context.Context, all []Profile, changed Profile) error
}

// Store is the in-memory, insertion-ordered set of profiles.
type Store struct {
	mu       sync.RWMutex
	order    []string
	profiles map[string]Profile
	backend  Persistence
	logger   *zap.Logger
}

// NewStore returns an empty Store backed by backend.
func NewStore(backend Persistence, logger *zap.Logger) *Store {
	return &Store{
		profiles: make(map[string]Profile),
		backend:  backend,
		logger:   logger.Named("profile_store"),
	}
}

// LoadAll replaces the in-memory set with the durable one. On failure the
// store is left empty and the error is returned for the caller to report.
func (s *Store) LoadAll(ctx context.Context) error {
	loaded, err := s.backend.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.profiles = make(map[string]Profile, len(loaded))
	if err != nil {
		return err
	}
	for _, p := range loaded {
		s.putLocked(p)
	}
	s.logger.Info("profiles loaded", zap.Int("count", len(s.order)))
	return nil
}

// Upsert inserts or overwrites p by name and persists the result. If the
// durable write fails the in-memory change is rolled back.
func (s *Store) Upsert(ctx context.Context, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.profiles[p.Name]
	s.putLocked(p)

	if err := s.backend.Save(ctx, s.snapshotLocked(), p); err != nil {
		if existed {
			s.profiles[p.Name] = prev
		} else {
			delete(s.profiles, p.Name)
			s.order = s.order[:len(s.order)-1]
		}
		s.logger.Error("profile not persisted", zap.String("name", p.Name), zap.Error(err))
		return err
	}
	return nil
}

// All returns a snapshot of every profile in insertion order.
func (s *Store) All() []Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Get returns the profile registered under name.
func (s *Store) Get(name string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[name]
	return p, ok
}

// Len returns the number of registered profiles.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *Store) putLocked(p Profile) {
	if _, ok := s.profiles[p.Name]; !ok {
		s.order = append(s.order, p.Name)
	}
	s.profiles[p.Name] = p
}

func (s *Store) snapshotLocked() []Profile {
	out := make([]Profile, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.profiles[name])
	}
	return out
}
