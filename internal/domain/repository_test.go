package domain

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestRepository_BaseDir(t *testing.T) {
	tests := []struct {
		name     string
		location string
		want     string
		wantErr  bool
	}{
		{name: "file URI", location: "file:///var/repos/internal", want: filepath.FromSlash("/var/repos/internal")},
		{name: "plain path", location: "/var/repos/internal/", want: filepath.FromSlash("/var/repos/internal")},
		{name: "relative path", location: "repos/internal", want: filepath.FromSlash("repos/internal")},
		{name: "http URI", location: "http://repo1.maven.org/maven2", wantErr: true},
		{name: "empty", location: "  ", wantErr: true},
		{name: "file URI without path", location: "file://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &Repository{ID: "internal", Location: tt.location}
			got, err := repo.BaseDir()
			if tt.wantErr {
				if !errors.Is(err, ErrNotFilesystem) {
					t.Fatalf("BaseDir() error = %v, want ErrNotFilesystem", err)
				}
				if repo.IsFilesystem() {
					t.Error("IsFilesystem() = true, want false")
				}
				return
			}
			if err != nil {
				t.Fatalf("BaseDir() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("BaseDir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRepository_CanBeObservedBy(t *testing.T) {
	open := &Repository{ID: "public"}
	if !open.CanBeObservedBy("anyone") {
		t.Error("repository without observers should be visible to everyone")
	}

	restricted := &Repository{ID: "internal", Observers: []string{"alice"}}
	if !restricted.CanBeObservedBy("alice") {
		t.Error("alice should observe internal")
	}
	if restricted.CanBeObservedBy("bob") {
		t.Error("bob should not observe internal")
	}

	wildcard := &Repository{ID: "shared", Observers: []string{"*"}}
	if !wildcard.CanBeObservedBy("bob") {
		t.Error("wildcard observer should admit bob")
	}
}

func TestRepository_DisplayName(t *testing.T) {
	if got := (&Repository{ID: "internal"}).DisplayName(); got != "internal" {
		t.Errorf("DisplayName() = %q, want internal", got)
	}
	if got := (&Repository{ID: "internal", Name: "Internal"}).DisplayName(); got != "Internal" {
		t.Errorf("DisplayName() = %q, want Internal", got)
	}
}
