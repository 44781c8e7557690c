package repos

import (
	"archive/zip"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/sha1n/relic-artifacts/internal/config"
	"github.com/sha1n/relic-artifacts/internal/domain"
	"github.com/sha1n/relic-artifacts/internal/history"
	"github.com/sha1n/relic-artifacts/internal/index"
	"github.com/sha1n/relic-artifacts/internal/scanner"
	"github.com/sha1n/relic-artifacts/internal/search"
)

const (
	libJar = "org/acme/lib/1.0/lib-1.0.jar"
	libPom = "org/acme/lib/1.0/lib-1.0.pom"
)

func testSettings(t *testing.T) *config.RepositoriesSettings {
	t.Helper()
	return &config.RepositoriesSettings{
		DataDir:          t.TempDir(),
		LockTimeout:      time.Second,
		StatsFile:        ".scan-statistics",
		MaxFileSize:      1024 * 1024,
		PageSize:         30,
		MaxSearchHits:    1000,
		MaxParallelScans: 2,
		HistoryRetention: 10,
	}
}

func newTestService(t *testing.T, settings *config.RepositoriesSettings, repos ...domain.Repository) *Service {
	t.Helper()
	cfg := config.NewRepositories("", &config.RepositoryConfig{Repositories: repos})
	svc, err := NewService(settings, cfg, nil)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(func() {
		if err := svc.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return svc
}

func writeFixture(t *testing.T, base, rel string, content []byte) string {
	t.Helper()
	full := filepath.Join(base, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(full, content, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	// Fixtures predate every scan of the test.
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(full, old, old); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}
	return full
}

func jarBytes(t *testing.T, entries ...string) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.jar")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	w := zip.NewWriter(f)
	for _, name := range entries {
		entry, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip Create failed: %v", err)
		}
		if _, err := entry.Write([]byte("data:" + name)); err != nil {
			t.Fatalf("zip Write failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip Close failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	return data
}

// newFixtureRepo creates a repository holding one jar and its POM.
func newFixtureRepo(t *testing.T, id string, observers ...string) domain.Repository {
	t.Helper()
	base := t.TempDir()
	writeFixture(t, base, libJar, jarBytes(t, "org/acme/Widget.class", "META-INF/MANIFEST.MF"))
	writeFixture(t, base, libPom, []byte("<project><description>Acme widget toolkit</description></project>"))
	return domain.Repository{ID: id, Name: "Repository " + id, Location: base, Observers: observers}
}

func scan(t *testing.T, svc *Service, repoID string, incremental bool) *ScanReport {
	t.Helper()
	report, err := svc.Scan(context.Background(), repoID, ScanRequest{Incremental: incremental})
	if err != nil {
		t.Fatalf("Scan(%s) failed: %v", repoID, err)
	}
	return report
}

func TestNewService_Validation(t *testing.T) {
	if _, err := NewService(nil, config.NewRepositories("", nil), nil); err == nil {
		t.Error("Expected error for nil settings")
	}
	if _, err := NewService(testSettings(t), nil, nil); err == nil {
		t.Error("Expected error for nil repositories")
	}
}

func TestService_Scan(t *testing.T) {
	repo := newFixtureRepo(t, "internal")
	svc := newTestService(t, testSettings(t), repo)

	report := scan(t, svc, "internal", false)

	if report.State != scanner.Completed.String() {
		t.Errorf("State = %q, want %q", report.State, scanner.Completed.String())
	}
	if report.Incremental {
		t.Error("Expected a full scan")
	}
	if report.FilesConsumed < 2 {
		t.Errorf("FilesConsumed = %d, want at least 2", report.FilesConsumed)
	}
	if report.ScanID == "" {
		t.Error("Expected the scan to be recorded in history")
	}
	if report.Finished.Before(report.Started) {
		t.Errorf("Finished %v before Started %v", report.Finished, report.Started)
	}

	for _, rel := range []string{libJar + ".sha1", libJar + ".md5", ".scan-statistics"} {
		if _, err := os.Stat(filepath.Join(repo.Location, filepath.FromSlash(rel))); err != nil {
			t.Errorf("Expected %s to exist: %v", rel, err)
		}
	}

	st, err := svc.Status(context.Background(), "internal")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.Scanning {
		t.Error("Expected repository to be idle after the scan")
	}
	if st.LastScan == nil || st.LastScan.ID != report.ScanID {
		t.Fatalf("LastScan = %+v, want scan %s", st.LastScan, report.ScanID)
	}
	if st.LastScan.TriggeredBy != history.TriggerManual {
		t.Errorf("TriggeredBy = %q, want %q", st.LastScan.TriggeredBy, history.TriggerManual)
	}
	if st.Documents[index.KindBytecode] != 1 {
		t.Errorf("bytecode documents = %d, want 1", st.Documents[index.KindBytecode])
	}
	if st.Documents[index.KindArtifact] != 2 {
		t.Errorf("artifact documents = %d, want 2", st.Documents[index.KindArtifact])
	}
}

func TestService_IncrementalScan(t *testing.T) {
	repo := newFixtureRepo(t, "internal")
	svc := newTestService(t, testSettings(t), repo)

	first := scan(t, svc, "internal", true)
	if first.Incremental {
		t.Error("Expected the first incremental scan to fall back to a full scan")
	}

	// Only files modified since the previous scan started are processed.
	sha1File := filepath.Join(repo.Location, filepath.FromSlash(libJar+".sha1"))
	if err := os.Remove(sha1File); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	newPom := filepath.Join(repo.Location, "org", "acme", "lib", "1.1", "lib-1.1.pom")
	if err := os.MkdirAll(filepath.Dir(newPom), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(newPom, []byte("<project/>"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	second := scan(t, svc, "internal", true)
	if !second.Incremental {
		t.Error("Expected an incremental scan")
	}
	if _, err := os.Stat(sha1File); !os.IsNotExist(err) {
		t.Errorf("Expected unmodified jar not to be reprocessed, stat error = %v", err)
	}
	if _, err := os.Stat(newPom + ".sha1"); err != nil {
		t.Errorf("Expected new POM to be processed: %v", err)
	}

	results, err := svc.FilteredSearch(context.Background(), "admin", nil, "org.acme", "lib", "1.1", "", search.Limits{})
	if err != nil {
		t.Fatalf("FilteredSearch failed: %v", err)
	}
	if results.TotalHits != 1 {
		t.Errorf("TotalHits = %d, want 1", results.TotalHits)
	}

	full := scan(t, svc, "internal", false)
	if full.Incremental {
		t.Error("Expected a full scan")
	}
	if _, err := os.Stat(sha1File); err != nil {
		t.Errorf("Expected full scan to recreate the checksum: %v", err)
	}
}

func TestService_FullScanDropsDeletedFiles(t *testing.T) {
	repo := newFixtureRepo(t, "internal")
	svc := newTestService(t, testSettings(t), repo)
	scan(t, svc, "internal", false)
	ctx := context.Background()

	// Remove the POM together with its checksum files.
	matches, err := filepath.Glob(filepath.Join(repo.Location, filepath.FromSlash(libPom)) + "*")
	if err != nil || len(matches) == 0 {
		t.Fatalf("Glob = %v, %v", matches, err)
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
	}

	// An incremental scan does not see deletions.
	scan(t, svc, "internal", true)
	results, err := svc.SearchForTerm(ctx, "admin", nil, "toolkit", search.Limits{})
	if err != nil {
		t.Fatalf("SearchForTerm failed: %v", err)
	}
	if results.TotalHits != 1 {
		t.Errorf("TotalHits after incremental scan = %d, want 1", results.TotalHits)
	}

	report := scan(t, svc, "internal", false)
	if len(report.Problems) != 0 {
		t.Errorf("Problems = %+v, want none", report.Problems)
	}
	results, err = svc.SearchForTerm(ctx, "admin", nil, "toolkit", search.Limits{})
	if err != nil {
		t.Fatalf("SearchForTerm failed: %v", err)
	}
	if results.TotalHits != 0 {
		t.Errorf("TotalHits after full scan = %d, want 0", results.TotalHits)
	}

	st, err := svc.Status(ctx, "internal")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.Documents[index.KindArtifact] != 1 {
		t.Errorf("artifact documents = %d, want 1", st.Documents[index.KindArtifact])
	}
	if st.Documents[index.KindBytecode] != 1 {
		t.Errorf("bytecode documents = %d, want 1", st.Documents[index.KindBytecode])
	}
}

func TestService_ScanErrors(t *testing.T) {
	missing := domain.Repository{ID: "missing", Location: filepath.Join(t.TempDir(), "gone")}
	busy := newFixtureRepo(t, "busy")
	settings := testSettings(t)
	settings.LockTimeout = 50 * time.Millisecond
	svc := newTestService(t, settings, missing, busy)
	ctx := context.Background()

	if _, err := svc.Scan(ctx, "unknown", ScanRequest{}); !errors.Is(err, ErrRepositoryNotFound) {
		t.Errorf("Scan(unknown) error = %v, want ErrRepositoryNotFound", err)
	}

	report, err := svc.Scan(ctx, "missing", ScanRequest{})
	if !errors.Is(err, scanner.ErrBaseDirMissing) {
		t.Errorf("Scan(missing) error = %v, want ErrBaseDirMissing", err)
	}
	if report == nil || report.State != scanner.Failed.String() {
		t.Fatalf("report = %+v, want failed state", report)
	}
	st, err := svc.Status(ctx, "missing")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.LastScan == nil || st.LastScan.State != scanner.Failed.String() || st.LastScan.Error == "" {
		t.Errorf("LastScan = %+v, want failed scan with error", st.LastScan)
	}

	// Another process holds the repository.
	holder := NewRepositoryLock(settings.DataDir, "busy")
	if ok, err := holder.TryAcquire(); err != nil || !ok {
		t.Fatalf("TryAcquire() = %v, %v", ok, err)
	}
	defer release(t, holder)
	if _, err := svc.Scan(ctx, "busy", ScanRequest{}); !errors.Is(err, ErrScanInProgress) {
		t.Errorf("Scan(busy) error = %v, want ErrScanInProgress", err)
	}

	// Another scan of this process holds the repository.
	if !svc.markRunning("busy") {
		t.Fatal("Expected to mark repository as running")
	}
	if _, err := svc.Scan(ctx, "busy", ScanRequest{}); !errors.Is(err, ErrScanInProgress) {
		t.Errorf("Scan(running) error = %v, want ErrScanInProgress", err)
	}
	st, err = svc.Status(ctx, "busy")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !st.Scanning {
		t.Error("Expected Status to report a running scan")
	}
	svc.clearRunning("busy")
}

func TestService_ScanAll(t *testing.T) {
	repos := []domain.Repository{
		newFixtureRepo(t, "one"),
		newFixtureRepo(t, "two"),
		newFixtureRepo(t, "three"),
	}
	settings := testSettings(t)
	settings.MaxParallelScans = 2
	svc := newTestService(t, settings, repos...)

	if err := svc.ScanAll(context.Background(), ScanRequest{Trigger: history.TriggerStartup}); err != nil {
		t.Fatalf("ScanAll failed: %v", err)
	}
	for _, repo := range repos {
		st, err := svc.Status(context.Background(), repo.ID)
		if err != nil {
			t.Fatalf("Status(%s) failed: %v", repo.ID, err)
		}
		if st.LastScan == nil || st.LastScan.TriggeredBy != history.TriggerStartup {
			t.Errorf("LastScan(%s) = %+v, want startup scan", repo.ID, st.LastScan)
		}
	}
}

func TestService_ScanAllReportsFailures(t *testing.T) {
	good := newFixtureRepo(t, "good")
	bad := domain.Repository{ID: "bad", Location: "https://repo.example.com/maven2"}
	svc := newTestService(t, testSettings(t), good, bad)

	err := svc.ScanAll(context.Background(), ScanRequest{})
	if !errors.Is(err, scanner.ErrNotFilesystem) {
		t.Errorf("ScanAll() error = %v, want ErrNotFilesystem", err)
	}
	if st, _ := svc.Status(context.Background(), "good"); st == nil || st.LastScan == nil {
		t.Error("Expected the good repository to be scanned")
	}
}

func TestService_HistoryRetention(t *testing.T) {
	repo := newFixtureRepo(t, "internal")
	settings := testSettings(t)
	settings.HistoryRetention = 2
	svc := newTestService(t, settings, repo)

	for range 3 {
		scan(t, svc, "internal", false)
	}
	scans, err := svc.History(context.Background(), "internal", 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(scans) != 2 {
		t.Errorf("len(History) = %d, want 2", len(scans))
	}
	if _, err := svc.History(context.Background(), "unknown", 10); !errors.Is(err, ErrRepositoryNotFound) {
		t.Errorf("History(unknown) error = %v, want ErrRepositoryNotFound", err)
	}
}

func TestService_Searches(t *testing.T) {
	repo := newFixtureRepo(t, "internal")
	svc := newTestService(t, testSettings(t), repo)
	scan(t, svc, "internal", false)
	ctx := context.Background()

	jar, err := os.ReadFile(filepath.Join(repo.Location, filepath.FromSlash(libJar)))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	sum := sha1.Sum(jar)

	tests := []struct {
		name    string
		run     func() (*search.Results, error)
		wantKey string
	}{
		{
			name: "term",
			run: func() (*search.Results, error) {
				return svc.SearchForTerm(ctx, "admin", nil, "toolkit", search.Limits{})
			},
			wantKey: libPom,
		},
		{
			name: "bytecode",
			run: func() (*search.Results, error) {
				return svc.SearchForBytecode(ctx, "admin", nil, "Widget", search.Limits{})
			},
			wantKey: "org.acme:lib",
		},
		{
			name: "checksum",
			run: func() (*search.Results, error) {
				return svc.SearchForChecksum(ctx, "admin", nil, hex.EncodeToString(sum[:]), search.Limits{})
			},
			wantKey: "org.acme:lib",
		},
		{
			name: "filtered",
			run: func() (*search.Results, error) {
				return svc.FilteredSearch(ctx, "admin", []string{"internal"}, "org.acme", "", "", "", search.Limits{})
			},
			wantKey: "org.acme:lib",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := tt.run()
			if err != nil {
				t.Fatalf("search failed: %v", err)
			}
			if len(results.Hits) != 1 {
				t.Fatalf("hits = %+v, want 1", results.Hits)
			}
			if results.Hits[0].Key != tt.wantKey {
				t.Errorf("Key = %q, want %q", results.Hits[0].Key, tt.wantKey)
			}
			if results.Limits.PageSize != 30 {
				t.Errorf("PageSize = %d, want the configured 30", results.Limits.PageSize)
			}
		})
	}
}

func TestService_SearchVisibility(t *testing.T) {
	public := newFixtureRepo(t, "public")
	private := newFixtureRepo(t, "private", "alice")
	svc := newTestService(t, testSettings(t), public, private)
	scan(t, svc, "public", false)
	scan(t, svc, "private", false)
	ctx := context.Background()

	if got := svc.VisibleRepositories("bob"); !slices.Equal(got, []string{"public"}) {
		t.Errorf("VisibleRepositories(bob) = %v, want [public]", got)
	}
	if got := svc.VisibleRepositories("alice"); !slices.Equal(got, []string{"public", "private"}) {
		t.Errorf("VisibleRepositories(alice) = %v, want [public private]", got)
	}

	results, err := svc.SearchForBytecode(ctx, "bob", nil, "Widget", search.Limits{})
	if err != nil {
		t.Fatalf("SearchForBytecode failed: %v", err)
	}
	if !slices.Equal(results.RepositoryIDs, []string{"public"}) {
		t.Errorf("RepositoryIDs = %v, want [public]", results.RepositoryIDs)
	}
	if len(results.Hits) != 1 || !slices.Equal(results.Hits[0].Repositories, []string{"public"}) {
		t.Errorf("hits = %+v, want one hit from public", results.Hits)
	}

	if _, err := svc.SearchForBytecode(ctx, "bob", []string{"private"}, "Widget", search.Limits{}); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("SearchForBytecode(private) error = %v, want ErrAccessDenied", err)
	}
	if _, err := svc.SearchForBytecode(ctx, "bob", []string{"nope"}, "Widget", search.Limits{}); !errors.Is(err, ErrRepositoryNotFound) {
		t.Errorf("SearchForBytecode(nope) error = %v, want ErrRepositoryNotFound", err)
	}

	results, err = svc.SearchForBytecode(ctx, "alice", nil, "Widget", search.Limits{})
	if err != nil {
		t.Fatalf("SearchForBytecode failed: %v", err)
	}
	if len(results.Hits) != 1 || len(results.Hits[0].Repositories) != 2 {
		t.Errorf("hits = %+v, want one hit merged from both repositories", results.Hits)
	}
}

func TestService_DeleteArtifact(t *testing.T) {
	repo := newFixtureRepo(t, "internal")
	svc := newTestService(t, testSettings(t), repo)
	scan(t, svc, "internal", false)

	if err := svc.DeleteArtifact(&repo, libJar); err != nil {
		t.Fatalf("DeleteArtifact failed: %v", err)
	}
	results, err := svc.SearchForBytecode(context.Background(), "admin", nil, "Widget", search.Limits{})
	if err != nil {
		t.Fatalf("SearchForBytecode failed: %v", err)
	}
	if results.TotalHits != 0 {
		t.Errorf("TotalHits = %d, want 0 after deletion", results.TotalHits)
	}
}

func TestService_ConfigurationChanged(t *testing.T) {
	keep := newFixtureRepo(t, "keep")
	drop := newFixtureRepo(t, "drop")
	cfg := config.NewRepositories("", &config.RepositoryConfig{Repositories: []domain.Repository{keep, drop}})
	svc, err := NewService(testSettings(t), cfg, nil)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer func() { _ = svc.Close() }()

	scan(t, svc, "keep", false)
	scan(t, svc, "drop", false)
	if !svc.indexes.Exists("drop", index.KindArtifact) {
		t.Fatal("Expected drop to be indexed")
	}

	keep.Schedule = "@every 1h"
	changed := cfg.Replace(&config.RepositoryConfig{Repositories: []domain.Repository{keep}})
	if !slices.Contains(changed, config.PropertyRepositories) {
		t.Fatalf("changed = %v, want %s", changed, config.PropertyRepositories)
	}
	svc.ConfigurationChanged(changed)

	if svc.indexes.Exists("drop", index.KindArtifact) {
		t.Error("Expected indexes of the removed repository to be deleted")
	}
	if !svc.indexes.Exists("keep", index.KindArtifact) {
		t.Error("Expected indexes of the kept repository to remain")
	}
	if got := svc.scheduler.Scheduled(); !slices.Equal(got, []string{"keep"}) {
		t.Errorf("Scheduled() = %v, want [keep]", got)
	}
}

func TestService_Initialize(t *testing.T) {
	repo := newFixtureRepo(t, "internal")
	repo.Schedule = "@every 1h"
	settings := testSettings(t)
	settings.ScanOnStartup = true
	svc := newTestService(t, settings, repo)

	if err := svc.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	st, err := svc.Status(context.Background(), "internal")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.LastScan == nil || st.LastScan.TriggeredBy != history.TriggerStartup {
		t.Errorf("LastScan = %+v, want startup scan", st.LastScan)
	}
	if st.NextScan.IsZero() {
		t.Error("Expected a scheduled next scan")
	}
}
