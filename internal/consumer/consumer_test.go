package consumer

import (
	"archive/zip"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/sha1n/relic-artifacts/internal/domain"
	"github.com/sha1n/relic-artifacts/internal/index"
)

func newRepo(t *testing.T) (*domain.Repository, string) {
	t.Helper()
	base := t.TempDir()
	return &domain.Repository{ID: "internal", Name: "Internal", Location: base}, base
}

func writeFile(t *testing.T, base, rel, content string) string {
	t.Helper()
	full := filepath.Join(base, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return full
}

func writeJar(t *testing.T, base, rel string, entries ...string) string {
	t.Helper()
	full := filepath.Join(base, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	f, err := os.Create(full)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	w := zip.NewWriter(f)
	for _, name := range entries {
		entry, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip Create() error = %v", err)
		}
		if _, err := entry.Write([]byte("data:" + name)); err != nil {
			t.Fatalf("zip Write() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip Close() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return full
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	return string(data)
}

func newManager(t *testing.T) *index.Manager {
	t.Helper()
	m, err := index.NewManager(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// runScan drives c through one scan of paths.
func runScan(t *testing.T, c Consumer, repo *domain.Repository, paths ...string) []error {
	t.Helper()
	if err := c.BeginScan(repo); err != nil {
		t.Fatalf("BeginScan() error = %v", err)
	}
	var errs []error
	for _, p := range paths {
		if err := c.ProcessFile(p); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.CompleteScan(); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func TestWants(t *testing.T) {
	c := NewIndexContent(Env{})

	tests := []struct {
		path string
		want bool
	}{
		{"org/acme/lib/1.0/lib-1.0.pom", true},
		{"org/acme/lib/maven-metadata.xml", false},
		{"org/acme/lib/1.0/lib-1.0.jar", false},
		{"org\\acme\\lib\\1.0\\lib-1.0.pom", true},
	}
	for _, tt := range tests {
		if got := Wants(c, tt.path); got != tt.want {
			t.Errorf("Wants(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestIsBinary(t *testing.T) {
	if IsBinary([]byte("<project/>")) {
		t.Error("IsBinary(text) = true")
	}
	if !IsBinary([]byte{'P', 'K', 0, 1}) {
		t.Error("IsBinary(binary) = false")
	}
	if IsBinary(nil) {
		t.Error("IsBinary(nil) = true")
	}
}

func TestListArchive(t *testing.T) {
	base := t.TempDir()
	jar := writeJar(t, base, "lib.jar",
		"META-INF/MANIFEST.MF",
		"org/acme/Widget.class",
		"org/acme/Widget$Part.class",
		"org/acme/package-info.class",
		"module-info.class",
		"org/acme/messages.properties",
	)

	listing, err := ListArchive(jar)
	if err != nil {
		t.Fatalf("ListArchive() error = %v", err)
	}
	wantClasses := []string{"org.acme.Widget", "org.acme.Widget$Part"}
	if !slices.Equal(listing.Classes, wantClasses) {
		t.Errorf("Classes = %v, want %v", listing.Classes, wantClasses)
	}
	if len(listing.Files) != 6 {
		t.Errorf("Files = %v, want 6 entries", listing.Files)
	}

	if _, err := ListArchive(writeFile(t, base, "broken.jar", "not a zip")); err == nil {
		t.Error("ListArchive(broken) error = nil")
	}
}
