// Package runstore tracks asynchronous units of work (triggered workflows,
// hook invocations) in a bounded, TTL-expiring in-memory map.
//
// The store exclusively owns each entry: all mutation goes through its
// transition operations, and expired entries are purged lazily on access and
// on write. When the store is at capacity the single oldest entry by
// creation time is evicted to make room.
package runstore

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/boriskellerman/gimli-sub008/internal/model"
)

// Config bounds the store.
type Config struct {
	TTL     time.Duration // entries older than this are purged
	MaxRuns int           // capacity; oldest evicted first
}

const (
	defaultTTL     = time.Hour
	defaultMaxRuns = 1000
)

// Store is a concurrency-safe run store. The zero value is not usable;
// construct with New.
type Store struct {
	cfg Config

	mu   sync.Mutex
	runs map[string]*model.Run

	// archive, when set, receives every terminal run. Failures are the
	// archive's problem; the store never blocks on it.
	archive *Archive
}

// New creates an empty store.
func New(cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.MaxRuns <= 0 {
		cfg.MaxRuns = defaultMaxRuns
	}
	return &Store{
		cfg:  cfg,
		runs: make(map[string]*model.Run),
	}
}

// WithArchive attaches a terminal-run archive. Must be called before the
// store is shared across goroutines.
func (s *Store) WithArchive(a *Archive) *Store {
	s.archive = a
	return s
}

// Create allocates a new pending entry and returns its id. A caller-supplied
// runID is honored when non-empty; otherwise one is generated.
func (s *Store) Create(name, sessionKey, runID string) string {
	if runID == "" {
		runID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.purgeExpiredLocked(now)
	if len(s.runs) >= s.cfg.MaxRuns {
		s.evictOldestLocked()
	}

	s.runs[runID] = &model.Run{
		ID:         runID,
		Name:       name,
		SessionKey: sessionKey,
		Status:     model.RunStatusPending,
		CreatedAt:  now,
	}
	return runID
}

// Start transitions pending → running. Unknown ids are a silent no-op:
// callers may race with eviction, and that is not an error.
func (s *Store) Start(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[runID]
	if !ok || r.Status != model.RunStatusPending {
		return
	}
	now := time.Now()
	r.Status = model.RunStatusRunning
	r.StartedAt = &now
}

// Complete moves a run to its terminal state based on the result kind and
// records the outcome fields. Unknown ids are a silent no-op.
func (s *Store) Complete(runID string, result model.RunResult) {
	s.mu.Lock()
	r, ok := s.runs[runID]
	if !ok || r.Status.Terminal() {
		s.mu.Unlock()
		return
	}

	now := time.Now()
	if r.StartedAt == nil {
		// A run may go straight from pending to terminal (e.g. trigger
		// rejected before the first attempt); keep the invariant that a
		// terminal run was observed as started.
		r.StartedAt = &now
	}
	if result.Kind == model.RunResultError {
		r.Status = model.RunStatusError
	} else {
		r.Status = model.RunStatusCompleted
	}
	r.CompletedAt = &now
	r.Summary = result.Summary
	r.Output = result.Output
	r.Error = result.Error

	archived := *r
	s.mu.Unlock()

	if s.archive != nil {
		s.archive.Record(archived)
	}
}

// Get purges expired entries, then looks up runID. Absent ids return false
// rather than an error.
func (s *Store) Get(runID string) (model.Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked(time.Now())
	r, ok := s.runs[runID]
	if !ok {
		return model.Run{}, false
	}
	return *r, true
}

// Filter narrows a List call.
type Filter struct {
	Status       model.RunStatus // empty = all
	NameContains string
	Limit        int
	Offset       int
}

// List purges expired entries, filters, sorts by creation time descending,
// and paginates. Total is the filtered count before pagination.
func (s *Store) List(f Filter) (runs []model.Run, total int) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked(time.Now())

	matched := make([]model.Run, 0, len(s.runs))
	for _, r := range s.runs {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.NameContains != "" && !strings.Contains(r.Name, f.NameContains) {
			continue
		}
		matched = append(matched, *r)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total = len(matched)
	if f.Offset >= total {
		return []model.Run{}, total
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return matched[f.Offset:end], total
}

// Stats returns per-status counts after purging expired entries.
func (s *Store) Stats() map[model.RunStatus]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked(time.Now())
	stats := map[model.RunStatus]int{
		model.RunStatusPending:   0,
		model.RunStatusRunning:   0,
		model.RunStatusCompleted: 0,
		model.RunStatusError:     0,
	}
	for _, r := range s.runs {
		stats[r.Status]++
	}
	return stats
}

// Len reports the number of live entries. Used by health reporting.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpiredLocked(time.Now())
	return len(s.runs)
}

func (s *Store) purgeExpiredLocked(now time.Time) {
	cutoff := now.Add(-s.cfg.TTL)
	for id, r := range s.runs {
		if r.CreatedAt.Before(cutoff) {
			delete(s.runs, id)
		}
	}
}

// evictOldestLocked removes the single oldest entry by CreatedAt.
func (s *Store) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, r := range s.runs {
		if oldestID == "" || r.CreatedAt.Before(oldest) {
			oldestID = id
			oldest = r.CreatedAt
		}
	}
	if oldestID != "" {
		delete(s.runs, oldestID)
	}
}
