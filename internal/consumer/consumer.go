// Package consumer defines the per-file processing units dispatched by a repository
// scan and the registry that resolves them by id.
package consumer

import (
	"errors"

	"github.com/sha1n/relic-artifacts/internal/domain"
	"github.com/sha1n/relic-artifacts/internal/filetypes"
)

var (
	// ErrUnknownConsumer is returned when an id has no registered factory.
	ErrUnknownConsumer = errors.New("unknown consumer")

	// ErrDigestCalculation is returned when an artifact's checksum cannot be computed.
	ErrDigestCalculation = errors.New("digest calculation failed")

	// ErrChecksumWrite is returned when a checksum file cannot be written.
	ErrChecksumWrite = errors.New("checksum write failed")

	// ErrChecksumMismatch is returned when a checksum file disagrees with its artifact.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// Consumer processes files discovered during a repository scan.
//
// BeginScan is called once before any ProcessFile call of a scan and CompleteScan
// once after the last, whether or not ProcessFile calls failed. CompleteScan is
// also called when BeginScan failed, in which case no ProcessFile call happened
// and the consumer must not rely on state BeginScan would have set up. A consumer
// holds per-scan state only between those two calls.
type Consumer interface {
	ID() string
	Description() string
	// Includes are ANT-style patterns for the repository-relative paths this consumer wants.
	Includes() []string
	// Excludes filter out paths matched by Includes. May be empty.
	Excludes() []string
	BeginScan(repo *domain.Repository) error
	ProcessFile(path string) error
	// CompleteScan finishes deferred work. Its error is reported as a problem of the scan.
	CompleteScan() error
}

// FullScanAware is implemented by consumers that behave differently when a scan
// visits every file rather than only recently modified ones. SetFullScan is
// called before BeginScan.
type FullScanAware interface {
	SetFullScan(full bool)
}

// Wants reports whether path matches c's includes and none of its excludes.
func Wants(c Consumer, path string) bool {
	return filetypes.MatchesAny(c.Includes(), path) && !filetypes.MatchesAny(c.Excludes(), path)
}

// IDs returns the ids of consumers in order.
func IDs(consumers []Consumer) []string {
	ids := make([]string, len(consumers))
	for i, c := range consumers {
		ids[i] = c.ID()
	}
	return ids
}
