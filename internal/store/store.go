// Package store looks up the profiles and job postings that get scored.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/spigell/referral-matcher/internal/scoring"
)

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("record not found")

// Records is a read-only record source.
type Records interface {
	Profile(ctx context.Context, id string) (scoring.Profile, error)
	Job(ctx context.Context, id string) (scoring.JobPosting, error)
}

// Memory is an in-process record source, used when no database is
// configured and in tests.
type Memory struct {
	mu       sync.RWMutex
	profiles map[string]scoring.Profile
	jobs     map[string]scoring.JobPosting
}

func NewMemory() *Memory {
	return &Memory{
		profiles: make(map[string]scoring.Profile),
		jobs:     make(map[string]scoring.JobPosting),
	}
}

func (m *Memory) PutProfile(p scoring.Profile) {
	m.mu.Lock()
	m.profiles[p.ID] = p
	m.mu.Unlock()
}

func (m *Memory) PutJob(j scoring.JobPosting) {
	m.mu.Lock()
	m.jobs[j.ID] = j
	m.mu.Unlock()
}

func (m *Memory) Profile(_ context.Context, id string) (scoring.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[id]
	if !ok {
		return scoring.Profile{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) Job(_ context.Context, id string) (scoring.JobPosting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[id]
	if !ok {
		return scoring.JobPosting{}, ErrNotFound
	}
	return j, nil
}
