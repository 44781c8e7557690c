// Package scanner walks a repository and dispatches each discovered file to the
// consumers that want it.
package scanner

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/sha1n/relic-artifacts/internal/consumer"
	"github.com/sha1n/relic-artifacts/internal/domain"
	"github.com/sha1n/relic-artifacts/internal/layout"
	"github.com/sha1n/relic-artifacts/internal/walker"
)

var (
	// ErrNilRepository is returned when no repository is given.
	ErrNilRepository = errors.New("repository is required")

	// ErrNotFilesystem is returned for repositories whose location is not a local directory.
	ErrNotFilesystem = domain.ErrNotFilesystem

	// ErrBaseDirMissing is returned when the repository base directory does not exist.
	ErrBaseDirMissing = walker.ErrBaseDirMissing

	// ErrBaseDirNotDirectory is returned when the repository base path is not a directory.
	ErrBaseDirNotDirectory = walker.ErrBaseDirNotDirectory

	// ErrUnknownLayout is returned when the repository names an unregistered layout.
	ErrUnknownLayout = layout.ErrUnknownLayout
)

// State is the lifecycle state of a scan.
type State int

const (
	NotStarted State = iota
	Scanning
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Scanning:
		return "scanning"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options refine a scan.
type Options struct {
	IncludeSnapshots bool
	// ModifiedAfter, when set, limits dispatch to files modified at or after it.
	ModifiedAfter time.Time
	ExtraIncludes []string
	ExtraExcludes []string
	// InvalidConsumers receive walked files that no known consumer wanted.
	InvalidConsumers []consumer.Consumer
}

// Outcome is the result of a completed scan.
type Outcome struct {
	Repository *domain.Repository
	Statistics *Statistics
	Problems   *Problems
	State      State
}

// Scanner runs scans. A Scanner may be reused; each scan is synchronous.
type Scanner struct {
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	state State
}

// New creates a Scanner. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		logger: logger,
		now:    time.Now,
	}
}

// State returns the state of the current or most recent scan.
func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scanner) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Scan scans repo with consumers, optionally including snapshot versions.
func (s *Scanner) Scan(repo *domain.Repository, consumers []consumer.Consumer, includeSnapshots bool) (*Outcome, error) {
	return s.ScanWithOptions(repo, consumers, Options{IncludeSnapshots: includeSnapshots})
}

// ScanWithOptions scans repo with consumers.
//
// Precondition failures are returned as errors before any consumer is called.
// Failures of individual consumers on individual files are collected in the
// returned Outcome's Problems and never stop the scan.
func (s *Scanner) ScanWithOptions(repo *domain.Repository, consumers []consumer.Consumer, opts Options) (*Outcome, error) {
	s.setState(NotStarted)

	problems := &Problems{}
	w, err := s.prepare(repo, consumers, opts, problems)
	if err != nil {
		s.setState(Failed)
		return nil, err
	}

	s.setState(Scanning)
	stats := NewStatistics(repo)
	stats.Started = s.now()
	log := s.logger.With("repository", repo.ID)
	log.Info("Scan started", "base", w.Base(), "consumers", consumer.IDs(consumers))

	full := opts.ModifiedAfter.IsZero()
	known := s.begin(repo, consumers, full, problems, log)
	invalid := s.begin(repo, opts.InvalidConsumers, full, problems, log)

	for file := range w.Files() {
		stats.FilesIncluded++
		if s.dispatch(file, known, opts.ModifiedAfter, problems, log) > 0 ||
			s.dispatch(file, invalid, opts.ModifiedAfter, problems, log) > 0 {
			stats.FilesConsumed++
		} else {
			stats.FilesSkipped++
		}
	}

	// Every consumer is completed, including those whose begin failed.
	for _, c := range slices.Concat(consumers, opts.InvalidConsumers) {
		s.complete(c, problems, log)
	}

	stats.Finished = s.now()
	if stats.Finished.Before(stats.Started) {
		stats.Finished = stats.Started
	}
	s.setState(Completed)

	log.Info("Scan completed",
		"included", stats.FilesIncluded,
		"consumed", stats.FilesConsumed,
		"skipped", stats.FilesSkipped,
		"problems", problems.Len(),
		"elapsed_ms", stats.ElapsedMilliseconds())

	return &Outcome{
		Repository: repo,
		Statistics: stats,
		Problems:   problems,
		State:      Completed,
	}, nil
}

// prepare checks preconditions and builds the walker.
func (s *Scanner) prepare(repo *domain.Repository, consumers []consumer.Consumer, opts Options, problems *Problems) (*walker.Walker, error) {
	if repo == nil {
		return nil, ErrNilRepository
	}
	base, err := repo.BaseDir()
	if err != nil {
		return nil, fmt.Errorf("repository %s: %w", repo.ID, err)
	}
	if _, err := layout.Lookup(repo.Layout); err != nil {
		return nil, fmt.Errorf("repository %s: %w", repo.ID, err)
	}

	all := slices.Concat(consumers, opts.InvalidConsumers)
	w, err := walker.New(base, Includes(all, opts.ExtraIncludes), Excludes(opts), walker.Options{
		Report: func(path string, err error) { problems.Add(path, "", err) },
		Logger: s.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("repository %s: %w", repo.ID, err)
	}
	return w, nil
}

// Includes unions the include patterns of every consumer with extra.
func Includes(consumers []consumer.Consumer, extra []string) []string {
	var out []string
	for _, c := range consumers {
		out = appendUnique(out, c.Includes()...)
	}
	return appendUnique(out, extra...)
}

// Excludes builds the walk-level exclude set. Consumer excludes are not part of it;
// they are applied per file at dispatch.
func Excludes(opts Options) []string {
	out := appendUnique(nil, StandardExclusions...)
	if !opts.IncludeSnapshots {
		out = appendUnique(out, SnapshotExclusions...)
	}
	return appendUnique(out, opts.ExtraExcludes...)
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}

// begin starts the scan on each consumer and returns those that accepted it. Only
// those receive files; every consumer is still completed.
func (s *Scanner) begin(repo *domain.Repository, consumers []consumer.Consumer, full bool, problems *Problems, log *slog.Logger) []consumer.Consumer {
	active := make([]consumer.Consumer, 0, len(consumers))
	for _, c := range consumers {
		if aware, ok := c.(consumer.FullScanAware); ok {
			aware.SetFullScan(full)
		}
		if err := s.safely(func() error { return c.BeginScan(repo) }); err != nil {
			log.Warn("Consumer failed to begin scan", "consumer", c.ID(), "error", err)
			problems.Add("", c.ID(), err)
			continue
		}
		active = append(active, c)
	}
	return active
}

// dispatch hands file to every consumer that wants it and returns how many did.
func (s *Scanner) dispatch(file walker.File, consumers []consumer.Consumer, modifiedAfter time.Time, problems *Problems, log *slog.Logger) int {
	dispatched := 0
	for _, c := range consumers {
		if !consumer.Wants(c, file.RelPath) {
			continue
		}
		if !modifiedAfter.IsZero() && file.ModTime.Before(modifiedAfter) {
			continue
		}
		dispatched++
		if err := s.safely(func() error { return c.ProcessFile(file.RelPath) }); err != nil {
			log.Warn("Consumer failed to process file", "consumer", c.ID(), "path", file.RelPath, "error", err)
			problems.Add(file.RelPath, c.ID(), err)
		}
	}
	return dispatched
}

func (s *Scanner) complete(c consumer.Consumer, problems *Problems, log *slog.Logger) {
	if err := s.safely(c.CompleteScan); err != nil {
		log.Warn("Consumer failed to complete scan", "consumer", c.ID(), "error", err)
		problems.Add("", c.ID(), err)
	}
}

// safely runs fn and converts a panic into an error.
func (s *Scanner) safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("consumer panic: %v", r)
		}
	}()
	return fn()
}
