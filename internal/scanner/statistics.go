package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/magiconair/properties"
	"github.com/sha1n/relic-artifacts/internal/domain"
)

// DefaultStatisticsFile is the statistics filename used when none is configured.
const DefaultStatisticsFile = ".scan-statistics"

// Statistics property keys.
const (
	KeyConsumedFiles     = "scan.consumed.files"
	KeyIncludedFiles     = "scan.included.files"
	KeySkippedFiles      = "scan.skipped.files"
	KeyStartedTimestamp  = "scan.started.timestamp"
	KeyFinishedTimestamp = "scan.finished.timestamp"
)

// Statistics holds the counters and timestamps of one scan of a repository.
// Timestamps are persisted with millisecond precision.
type Statistics struct {
	Repository    *domain.Repository
	FilesIncluded int64
	FilesConsumed int64
	FilesSkipped  int64
	Started       time.Time
	Finished      time.Time
}

// NewStatistics creates empty statistics for repo.
func NewStatistics(repo *domain.Repository) *Statistics {
	return &Statistics{Repository: repo}
}

// ElapsedMilliseconds returns Finished - Started in milliseconds.
func (s *Statistics) ElapsedMilliseconds() int64 {
	return s.Finished.Sub(s.Started).Milliseconds()
}

// Reset zeroes every counter and timestamp.
func (s *Statistics) Reset() {
	s.FilesIncluded = 0
	s.FilesConsumed = 0
	s.FilesSkipped = 0
	s.Started = time.Time{}
	s.Finished = time.Time{}
}

// Load reads persisted statistics from filename, resolved against the repository
// base directory unless absolute. On any failure every field is reset and the
// error returned.
func (s *Statistics) Load(filename string) error {
	path, err := s.resolve(filename)
	if err != nil {
		s.Reset()
		return err
	}

	props, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		s.Reset()
		return fmt.Errorf("failed to load scan statistics %s: %w", path, err)
	}

	var values [5]int64
	for i, key := range []string{KeyConsumedFiles, KeyIncludedFiles, KeySkippedFiles, KeyStartedTimestamp, KeyFinishedTimestamp} {
		raw, ok := props.Get(key)
		if !ok {
			s.Reset()
			return fmt.Errorf("scan statistics %s: missing %s", path, key)
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.Reset()
			return fmt.Errorf("scan statistics %s: invalid %s: %w", path, key, err)
		}
		values[i] = v
	}

	s.FilesConsumed = values[0]
	s.FilesIncluded = values[1]
	s.FilesSkipped = values[2]
	s.Started = fromMillis(values[3])
	s.Finished = fromMillis(values[4])
	return nil
}

// Save writes the statistics to filename through a temp file that is synced,
// closed and renamed over the target.
func (s *Statistics) Save(filename string) (err error) {
	path, err := s.resolve(filename)
	if err != nil {
		return err
	}

	props := properties.NewProperties()
	for _, kv := range []struct {
		key   string
		value int64
	}{
		{KeyConsumedFiles, s.FilesConsumed},
		{KeyIncludedFiles, s.FilesIncluded},
		{KeySkippedFiles, s.FilesSkipped},
		{KeyStartedTimestamp, toMillis(s.Started)},
		{KeyFinishedTimestamp, toMillis(s.Finished)},
	} {
		if _, _, err := props.Set(kv.key, strconv.FormatInt(kv.value, 10)); err != nil {
			return fmt.Errorf("failed to set %s: %w", kv.key, err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp statistics file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = props.Write(tmp, properties.UTF8); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write statistics: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync statistics: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close statistics: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename statistics file: %w", err)
	}
	return nil
}

func (s *Statistics) resolve(filename string) (string, error) {
	if filepath.IsAbs(filename) {
		return filename, nil
	}
	if s.Repository == nil {
		return "", ErrNilRepository
	}
	base, err := s.Repository.BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, filename), nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
