package consumer

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestAutoRename(t *testing.T) {
	repo, base := newRepo(t)
	writeFile(t, base, "org/acme/foo/1.0/foo.plugin", "plugin")
	writeFile(t, base, "org/acme/dist/1.0/dist.distribution-tgz", "tgz")
	writeFile(t, base, "org/acme/dist/1.0/dist.distribution-zip", "zip")

	c := NewAutoRename(Env{})
	errs := runScan(t, c, repo,
		"org/acme/foo/1.0/foo.plugin",
		"org/acme/dist/1.0/dist.distribution-tgz",
		"org/acme/dist/1.0/dist.distribution-zip",
	)
	if len(errs) != 0 {
		t.Fatalf("errors = %v", errs)
	}

	tests := []struct {
		gone, present, content string
	}{
		{"org/acme/foo/1.0/foo.plugin", "org/acme/foo/1.0/foo.jar", "plugin"},
		{"org/acme/dist/1.0/dist.distribution-tgz", "org/acme/dist/1.0/dist.tar.gz", "tgz"},
		{"org/acme/dist/1.0/dist.distribution-zip", "org/acme/dist/1.0/dist.zip", "zip"},
	}
	for _, tt := range tests {
		if _, err := os.Stat(filepath.Join(base, tt.gone)); !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("%s should be removed, stat error = %v", tt.gone, err)
		}
		if got := readFile(t, filepath.Join(base, tt.present)); got != tt.content {
			t.Errorf("%s = %q, want %q", tt.present, got, tt.content)
		}
	}
}

func TestAutoRename_ExistingTargetWins(t *testing.T) {
	repo, base := newRepo(t)
	writeFile(t, base, "a/foo.plugin", "legacy")
	writeFile(t, base, "a/foo.jar", "canonical")

	if errs := runScan(t, NewAutoRename(Env{}), repo, "a/foo.plugin"); len(errs) != 0 {
		t.Fatalf("errors = %v", errs)
	}
	if _, err := os.Stat(filepath.Join(base, "a", "foo.plugin")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("foo.plugin should be removed, stat error = %v", err)
	}
	if got := readFile(t, filepath.Join(base, "a", "foo.jar")); got != "canonical" {
		t.Errorf("foo.jar = %q, want canonical", got)
	}
}

func TestAutoRename_IgnoresOtherFiles(t *testing.T) {
	repo, base := newRepo(t)
	writeFile(t, base, "a/foo.jar", "x")

	if errs := runScan(t, NewAutoRename(Env{}), repo, "a/foo.jar"); len(errs) != 0 {
		t.Fatalf("errors = %v", errs)
	}
	if got := readFile(t, filepath.Join(base, "a", "foo.jar")); got != "x" {
		t.Errorf("foo.jar = %q", got)
	}
}
