// Package scheduler runs repository scans on their configured cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sha1n/relic-artifacts/internal/domain"
)

// ScanFunc scans one repository.
type ScanFunc func(repoID string)

type job struct {
	expr string
	id   cron.EntryID
}

// Scheduler wraps robfig/cron with one job per scheduled repository.
type Scheduler struct {
	mu     sync.Mutex
	c      *cron.Cron
	jobs   map[string]job
	logger *slog.Logger
}

// New creates a stopped Scheduler. Call Start to activate it.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		c:      cron.New(),
		jobs:   make(map[string]job),
		logger: logger,
	}
}

// Sync makes the scheduled jobs match repos: repositories without a schedule or
// no longer configured are removed, new or changed schedules are (re)added.
// Invalid expressions are reported and the remaining repositories are still synced.
func (s *Scheduler) Sync(repos []domain.Repository, scan ScanFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]string, len(repos))
	for _, repo := range repos {
		if repo.Schedule != "" {
			wanted[repo.ID] = repo.Schedule
		}
	}

	for id, j := range s.jobs {
		if expr, ok := wanted[id]; !ok || expr != j.expr {
			s.c.Remove(j.id)
			delete(s.jobs, id)
			s.logger.Info("scheduler: job removed", "repository", id, "cron", j.expr)
		}
	}

	var errs []error
	for id, expr := range wanted {
		if _, ok := s.jobs[id]; ok {
			continue
		}
		entryID, err := s.c.AddFunc(expr, func() { scan(id) })
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid cron expression %q for repository %q: %w", expr, id, err))
			continue
		}
		s.jobs[id] = job{expr: expr, id: entryID}
		s.logger.Info("scheduler: job set", "repository", id, "cron", expr)
	}
	return errors.Join(errs...)
}

// Scheduled returns the ids of the repositories with a scheduled scan.
func (s *Scheduler) Scheduled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// NextRun returns the next scheduled scan of a repository. It is only known once
// the scheduler is running.
func (s *Scheduler) NextRun(repoID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[repoID]
	if !ok {
		return time.Time{}, false
	}
	entry := s.c.Entry(j.id)
	if entry.ID == 0 || entry.Next.IsZero() {
		return time.Time{}, false
	}
	return entry.Next, true
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts the cron loop and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
