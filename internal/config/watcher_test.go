package config

import (
	"context"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestWatcher_NotifiesOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleConfig)
	repos, err := LoadRepositories(path)
	if err != nil {
		t.Fatalf("LoadRepositories() error = %v", err)
	}

	w, err := NewWatcher(repos, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })

	changes := make(chan []string, 4)
	w.OnChange(func(properties []string) { changes <- properties })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	writeConfig(t, dir, strings.Replace(sampleConfig, `["**/*.jar"]`, `["**/*.ear"]`, 1))

	select {
	case got := <-changes:
		if !slices.Contains(got, "fileTypes.artifacts") {
			t.Errorf("changed = %v, want fileTypes.artifacts", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for configuration change")
	}

	if got := repos.FileTypePatterns("artifacts"); !slices.Equal(got, []string{"**/*.ear"}) {
		t.Errorf("FileTypePatterns() = %v, want reloaded patterns", got)
	}
}

func TestNewWatcher_RequiresFile(t *testing.T) {
	if _, err := NewWatcher(NewRepositories("", nil), 0, nil); err == nil {
		t.Error("NewWatcher() error = nil, want error for in-memory configuration")
	}
}
