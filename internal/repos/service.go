package repos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/sha1n/relic-artifacts/internal/config"
	"github.com/sha1n/relic-artifacts/internal/consumer"
	"github.com/sha1n/relic-artifacts/internal/domain"
	"github.com/sha1n/relic-artifacts/internal/filetypes"
	"github.com/sha1n/relic-artifacts/internal/history"
	"github.com/sha1n/relic-artifacts/internal/index"
	"github.com/sha1n/relic-artifacts/internal/metrics"
	"github.com/sha1n/relic-artifacts/internal/scanner"
	"github.com/sha1n/relic-artifacts/internal/scheduler"
	"github.com/sha1n/relic-artifacts/internal/search"
)

// HistoryFilename is the scan history database under the data directory.
const HistoryFilename = "history.db"

var (
	// ErrRepositoryNotFound indicates the repository is not configured.
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrScanInProgress indicates another scan holds the repository.
	ErrScanInProgress = errors.New("scan already in progress")

	// ErrAccessDenied indicates the principal is not an observer of the repository.
	ErrAccessDenied = errors.New("repository access denied")
)

// ScanRequest selects how a repository is scanned.
type ScanRequest struct {
	// Incremental limits consumers to files modified since the previous scan started.
	// Without saved statistics the scan falls back to a full scan.
	Incremental bool
	Trigger     string
}

// ScanReport summarizes one scan run.
type ScanReport struct {
	ScanID          string            `json:"scan_id,omitempty"`
	Repository      string            `json:"repository"`
	State           string            `json:"state"`
	Incremental     bool              `json:"incremental"`
	Started         time.Time         `json:"started"`
	Finished        time.Time         `json:"finished"`
	FilesIncluded   int64             `json:"files_included"`
	FilesConsumed   int64             `json:"files_consumed"`
	FilesSkipped    int64             `json:"files_skipped"`
	Problems        []history.Problem `json:"problems,omitempty"`
	RepairedIndexes []index.Kind      `json:"repaired_indexes,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// Status describes a repository for scan_status.
type Status struct {
	Repository domain.Repository     `json:"repository"`
	Scanning   bool                  `json:"scanning"`
	NextScan   time.Time             `json:"next_scan,omitzero"`
	LastScan   *history.Scan         `json:"last_scan,omitempty"`
	Documents  map[index.Kind]uint64 `json:"documents"`
}

// Service coordinates scanning, indexing, and search of the configured repositories.
type Service struct {
	settings  *config.RepositoriesSettings
	repos     *config.Repositories
	logger    *slog.Logger
	indexes   *index.Manager
	listener  *index.Listener
	fileTypes *filetypes.FileTypes
	registry  *consumer.Registry
	searcher  *search.Searcher
	history   *history.Store
	metrics   *metrics.Metrics
	scheduler *scheduler.Scheduler

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running map[string]bool
	known   []string
}

// NewService creates a new repositories service.
func NewService(settings *config.RepositoriesSettings, repos *config.Repositories, logger *slog.Logger) (*Service, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings cannot be nil")
	}
	if repos == nil {
		return nil, fmt.Errorf("repositories cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(settings.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	indexes, err := index.NewManager(settings.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create index manager: %w", err)
	}

	store, err := history.Open(filepath.Join(settings.DataDir, HistoryFilename))
	if err != nil {
		return nil, fmt.Errorf("failed to open scan history: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		settings:  settings,
		repos:     repos,
		logger:    logger,
		indexes:   indexes,
		listener:  index.NewListener(indexes, logger),
		fileTypes: filetypes.New(repos, logger),
		searcher:  search.NewSearcher(indexes, settings.MaxSearchHits, logger),
		history:   store,
		metrics:   metrics.Get(),
		scheduler: scheduler.New(logger),
		ctx:       ctx,
		cancel:    cancel,
		running:   make(map[string]bool),
		known:     repositoryIDs(repos.List()),
	}
	s.registry = consumer.NewRegistry(consumer.Env{
		FileTypes:   s.fileTypes,
		Indexes:     indexes,
		Deleter:     s,
		Logger:      logger,
		MaxFileSize: settings.MaxFileSize,
	})
	return s, nil
}

// Initialize schedules the configured repositories and, when enabled, runs the
// startup scan of every repository.
func (s *Service) Initialize(ctx context.Context) error {
	if err := s.scheduler.Sync(s.repos.List(), s.scheduledScan); err != nil {
		s.logger.Warn("Some scan schedules are invalid", "error", err)
	}
	s.scheduler.Start()

	if !s.settings.ScanOnStartup {
		return nil
	}
	s.logger.Info("Running startup scan", "repositories", len(s.repos.List()))
	if err := s.ScanAll(ctx, ScanRequest{Incremental: true, Trigger: history.TriggerStartup}); err != nil {
		s.logger.Error("Startup scan failed", "error", err)
	}
	return nil
}

func (s *Service) scheduledScan(repoID string) {
	_, err := s.Scan(s.ctx, repoID, ScanRequest{Incremental: true, Trigger: history.TriggerScheduled})
	switch {
	case err == nil:
	case errors.Is(err, ErrScanInProgress):
		s.logger.Info("Skipping scheduled scan, repository is busy", "repository", repoID)
	default:
		s.logger.Error("Scheduled scan failed", "repository", repoID, "error", err)
	}
}

// ConfigurationChanged applies changed repository configuration properties.
func (s *Service) ConfigurationChanged(properties []string) {
	for _, property := range properties {
		s.fileTypes.ConfigurationChanged(property)
		if property != config.PropertyRepositories {
			continue
		}

		current := s.repos.List()
		if err := s.scheduler.Sync(current, s.scheduledScan); err != nil {
			s.logger.Warn("Some scan schedules are invalid", "error", err)
		}

		ids := repositoryIDs(current)
		s.mu.Lock()
		previous := s.known
		s.known = ids
		s.mu.Unlock()
		for _, id := range previous {
			if slices.Contains(ids, id) {
				continue
			}
			s.logger.Info("Removing indexes of unconfigured repository", "repository", id)
			if err := s.indexes.Delete(id); err != nil {
				s.logger.Error("Failed to delete indexes", "repository", id, "error", err)
			}
		}
	}
}

// Scan scans one repository. Scans of the same repository never overlap: a scan
// already running in this process yields ErrScanInProgress immediately, one
// running in another process is waited for up to the lock timeout.
func (s *Service) Scan(ctx context.Context, repoID string, req ScanRequest) (*ScanReport, error) {
	repo, ok := s.repos.Get(repoID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, repoID)
	}
	if req.Trigger == "" {
		req.Trigger = history.TriggerManual
	}

	if !s.markRunning(repoID) {
		return nil, fmt.Errorf("%w: %s", ErrScanInProgress, repoID)
	}
	defer s.clearRunning(repoID)

	lock := NewRepositoryLock(s.settings.DataDir, repoID)
	if err := lock.Acquire(ctx, s.settings.LockTimeout); err != nil {
		if errors.Is(err, ErrLockTimeout) {
			return nil, fmt.Errorf("%w: %s", ErrScanInProgress, repoID)
		}
		return nil, fmt.Errorf("failed to lock repository %s: %w", repoID, err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			s.logger.Error("Failed to release repository lock", "repository", repoID, "error", err)
		}
	}()

	done := s.metrics.ScanStarted()
	defer done()

	log := s.logger.With("repository", repoID)
	report := &ScanReport{Repository: repoID, Incremental: req.Incremental}

	opts := scanner.Options{IncludeSnapshots: repo.IncludeSnapshots}
	if !filepath.IsAbs(s.settings.StatsFile) {
		opts.ExtraExcludes = []string{filepath.ToSlash(s.settings.StatsFile)}
	}
	if req.Incremental {
		previous := scanner.NewStatistics(&repo)
		if err := previous.Load(s.settings.StatsFile); err != nil {
			log.Info("No previous scan statistics, running full scan", "error", err)
			report.Incremental = false
		} else {
			opts.ModifiedAfter = previous.Started
		}
	}
	if !report.Incremental {
		repaired, err := s.indexes.Repair(repoID)
		if err != nil {
			log.Warn("Failed to repair indexes", "error", err)
		}
		report.RepairedIndexes = repaired
	}

	known, invalid := s.registry.Resolve(
		orDefault(s.repos.KnownConsumers(), consumer.DefaultKnownConsumers),
		orDefault(s.repos.InvalidConsumers(), consumer.DefaultInvalidConsumers),
	)
	opts.InvalidConsumers = invalid

	started := time.Now()
	outcome, scanErr := scanner.New(log).ScanWithOptions(&repo, known, opts)
	if scanErr != nil {
		report.State = scanner.Failed.String()
		report.Started = started
		report.Finished = time.Now()
		report.Error = scanErr.Error()
		s.record(ctx, req, report, nil)
		return report, fmt.Errorf("scan of %s failed: %w", repoID, scanErr)
	}

	stats := outcome.Statistics
	if err := stats.Save(s.settings.StatsFile); err != nil {
		log.Warn("Failed to save scan statistics", "error", err)
	}

	report.State = outcome.State.String()
	report.Started = stats.Started
	report.Finished = stats.Finished
	report.FilesIncluded = stats.FilesIncluded
	report.FilesConsumed = stats.FilesConsumed
	report.FilesSkipped = stats.FilesSkipped
	for _, p := range outcome.Problems.All() {
		report.Problems = append(report.Problems, history.Problem{Path: p.Path, Consumer: p.Consumer, Message: p.Err.Error()})
	}
	s.record(ctx, req, report, outcome.Problems.All())
	return report, nil
}

// record stores the report in the scan history and the metrics. Failures are logged.
func (s *Service) record(ctx context.Context, req ScanRequest, report *ScanReport, problems []scanner.Problem) {
	byConsumer := make(map[string]int)
	for _, p := range problems {
		byConsumer[p.Consumer]++
	}
	s.metrics.ObserveScan(metrics.ScanResult{
		Repository: report.Repository,
		State:      report.State,
		Elapsed:    report.Finished.Sub(report.Started),
		Included:   report.FilesIncluded,
		Consumed:   report.FilesConsumed,
		Skipped:    report.FilesSkipped,
		Problems:   byConsumer,
	})

	// The scan outlives a canceled request; its history should too.
	ctx = context.WithoutCancel(ctx)
	id, err := s.history.Record(ctx, history.Scan{
		RepositoryID:  report.Repository,
		TriggeredBy:   req.Trigger,
		Incremental:   report.Incremental,
		State:         report.State,
		StartedAt:     report.Started,
		FinishedAt:    report.Finished,
		FilesIncluded: report.FilesIncluded,
		FilesConsumed: report.FilesConsumed,
		FilesSkipped:  report.FilesSkipped,
		ProblemCount:  len(report.Problems),
		Error:         report.Error,
		Problems:      report.Problems,
	})
	if err != nil {
		s.logger.Error("Failed to record scan history", "repository", report.Repository, "error", err)
		return
	}
	report.ScanID = id

	if s.settings.HistoryRetention > 0 {
		if _, err := s.history.Prune(ctx, report.Repository, s.settings.HistoryRetention); err != nil {
			s.logger.Warn("Failed to prune scan history", "repository", report.Repository, "error", err)
		}
	}
}

// ScanAll scans every configured repository, at most MaxParallelScans at a time.
func (s *Service) ScanAll(ctx context.Context, req ScanRequest) error {
	repos := s.repos.List()
	if len(repos) == 0 {
		return nil
	}

	parallel := max(s.settings.MaxParallelScans, 1)
	sem := make(chan struct{}, parallel)
	var wg sync.WaitGroup
	errChan := make(chan error, len(repos))

	for _, repo := range repos {
		wg.Add(1)
		go func(repoID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if _, err := s.Scan(ctx, repoID, req); err != nil {
				s.logger.Error("Failed to scan repository", "repository", repoID, "error", err)
				errChan <- err
			}
		}(repo.ID)
	}

	wg.Wait()
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d repository scan(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// Status reports the scan state and index sizes of a repository.
func (s *Service) Status(ctx context.Context, repoID string) (*Status, error) {
	repo, ok := s.repos.Get(repoID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, repoID)
	}

	st := &Status{
		Repository: repo,
		Scanning:   s.isRunning(repoID),
		Documents:  make(map[index.Kind]uint64),
	}
	if next, ok := s.scheduler.NextRun(repoID); ok {
		st.NextScan = next
	}

	last, err := s.history.Last(ctx, repoID)
	switch {
	case err == nil:
		st.LastScan = &last
	case !errors.Is(err, history.ErrNoHistory):
		return nil, fmt.Errorf("failed to read scan history: %w", err)
	}

	for _, kind := range index.Kinds() {
		idx, err := s.indexes.OpenExisting(repoID, kind)
		if err != nil {
			continue
		}
		if n, err := idx.Count(); err == nil {
			st.Documents[kind] = n
		}
	}
	return st, nil
}

// History returns the most recent scans of a repository, newest first.
func (s *Service) History(ctx context.Context, repoID string, limit int) ([]history.Scan, error) {
	if _, ok := s.repos.Get(repoID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, repoID)
	}
	return s.history.Recent(ctx, repoID, limit)
}

// DeleteArtifact removes an artifact from the indexes of repo. Consumers that delete
// files from the repository call it.
func (s *Service) DeleteArtifact(repo *domain.Repository, path string) error {
	if err := s.listener.DeleteArtifact(repo, path); err != nil {
		return err
	}
	s.metrics.ArtifactDeleted(repo.ID)
	return nil
}

// Repositories returns the configured repositories.
func (s *Service) Repositories() []domain.Repository {
	return s.repos.List()
}

// Repository returns the repository visible to principal.
func (s *Service) Repository(principal, repoID string) (domain.Repository, error) {
	repo, ok := s.repos.Get(repoID)
	if !ok {
		return domain.Repository{}, fmt.Errorf("%w: %s", ErrRepositoryNotFound, repoID)
	}
	if !repo.CanBeObservedBy(principal) {
		return domain.Repository{}, fmt.Errorf("%w: %s", ErrAccessDenied, repoID)
	}
	return repo, nil
}

// VisibleRepositories returns the ids of the repositories principal may search.
func (s *Service) VisibleRepositories(principal string) []string {
	var ids []string
	for _, repo := range s.repos.List() {
		if repo.CanBeObservedBy(principal) {
			ids = append(ids, repo.ID)
		}
	}
	return ids
}

// Settings returns the service settings.
func (s *Service) Settings() *config.RepositoriesSettings {
	return s.settings
}

// Close stops scheduled scans and releases all resources.
func (s *Service) Close() error {
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), s.settings.LockTimeout)
	defer cancel()
	s.scheduler.Stop(ctx)

	var errs []error
	if err := s.history.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close scan history: %w", err))
	}
	if err := s.indexes.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close indexes: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Service) markRunning(repoID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[repoID] {
		return false
	}
	s.running[repoID] = true
	return true
}

func (s *Service) clearRunning(repoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, repoID)
}

func (s *Service) isRunning(repoID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[repoID]
}

func orDefault(ids, defaults []string) []string {
	if ids == nil {
		return defaults
	}
	return ids
}

func repositoryIDs(repos []domain.Repository) []string {
	ids := make([]string, len(repos))
	for i, r := range repos {
		ids[i] = r.ID
	}
	return ids
}
