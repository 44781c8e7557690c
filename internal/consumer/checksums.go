package consumer

import (
	"bufio"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sha1n/relic-artifacts/internal/domain"
	"github.com/sha1n/relic-artifacts/internal/filetypes"
)

// Algorithm is a checksum algorithm with its file extension.
type Algorithm struct {
	Ext string
	New func() hash.Hash
}

// Algorithms are the checksums maintained next to every artifact.
var Algorithms = []Algorithm{
	{Ext: "sha1", New: sha1.New},
	{Ext: "md5", New: md5.New},
}

// Digests maps an algorithm extension to a lower-case hex digest.
type Digests map[string]string

// ComputeDigests reads path once and returns its digest for every algorithm.
func ComputeDigests(path string) (Digests, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDigestCalculation, path, err)
	}
	defer func() { _ = f.Close() }()

	hashes := make([]hash.Hash, len(Algorithms))
	writers := make([]io.Writer, len(Algorithms))
	for i, a := range Algorithms {
		hashes[i] = a.New()
		writers[i] = hashes[i]
	}
	if _, err := io.Copy(io.MultiWriter(writers...), f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDigestCalculation, path, err)
	}

	digests := make(Digests, len(Algorithms))
	for i, a := range Algorithms {
		digests[a.Ext] = hex.EncodeToString(hashes[i].Sum(nil))
	}
	return digests, nil
}

// ReadChecksum returns the first whitespace-separated token of a checksum file,
// lower-cased. Files in "<hash>  <filename>" form are accepted.
func ReadChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Split(bufio.ScanWords)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", nil
	}
	return strings.ToLower(scanner.Text()), nil
}

// WriteChecksum replaces path with digest through a temp file and rename.
func WriteChecksum(path, digest string) error {
	if err := writeAtomic(path, []byte(digest)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrChecksumWrite, path, err)
	}
	return nil
}

// MissingChecksums creates absent checksum files and rewrites incorrect ones.
// Re-running it over an unchanged repository leaves every checksum file unchanged.
type MissingChecksums struct {
	base
}

// NewMissingChecksums creates the create-missing-checksums consumer.
func NewMissingChecksums(env Env) *MissingChecksums {
	return &MissingChecksums{
		base: newBase(IDCreateMissingChecksums, "Create missing and/or fix invalid checksum files.", env.Logger,
			env.patterns(filetypes.Artifacts), fixed(filetypes.DefaultExclusions...)),
	}
}

func (c *MissingChecksums) BeginScan(repo *domain.Repository) error {
	return c.begin(repo)
}

func (c *MissingChecksums) ProcessFile(path string) error {
	abs := c.abs(path)
	digests, err := ComputeDigests(abs)
	if err != nil {
		return err
	}

	var errs []error
	for _, a := range Algorithms {
		checksumPath := abs + "." + a.Ext
		want := digests[a.Ext]

		current, err := ReadChecksum(checksumPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			c.logger.Debug("Creating checksum", "path", path, "algorithm", a.Ext)
		case err != nil:
			c.logger.Warn("Unreadable checksum, rewriting", "path", path, "algorithm", a.Ext, "error", err)
		case current == want:
			continue
		default:
			c.logger.Info("Fixing invalid checksum", "path", path, "algorithm", a.Ext)
		}

		if err := WriteChecksum(checksumPath, want); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *MissingChecksums) CompleteScan() error { return nil }

// ValidateChecksums verifies checksum files against the artifacts they describe.
type ValidateChecksums struct {
	base
	invalid []string
}

// NewValidateChecksums creates the validate-checksums consumer.
func NewValidateChecksums(env Env) *ValidateChecksums {
	includes := make([]string, len(Algorithms))
	for i, a := range Algorithms {
		includes[i] = "**/*." + a.Ext
	}
	return &ValidateChecksums{
		base: newBase(IDValidateChecksums, "Validate checksum files against their artifacts.", env.Logger,
			fixed(includes...), nil),
	}
}

func (c *ValidateChecksums) BeginScan(repo *domain.Repository) error {
	c.invalid = nil
	return c.begin(repo)
}

func (c *ValidateChecksums) ProcessFile(path string) error {
	abs := c.abs(path)
	ext := strings.TrimPrefix(filepath.Ext(abs), ".")
	artifact := strings.TrimSuffix(abs, "."+ext)

	if _, err := os.Stat(artifact); err != nil {
		return fmt.Errorf("checksum %s has no artifact: %w", path, err)
	}
	digests, err := ComputeDigests(artifact)
	if err != nil {
		return err
	}
	current, err := ReadChecksum(abs)
	if err != nil {
		return fmt.Errorf("failed to read checksum %s: %w", path, err)
	}
	if current != digests[ext] {
		c.invalid = append(c.invalid, path)
		return fmt.Errorf("%w: %s", ErrChecksumMismatch, path)
	}
	return nil
}

func (c *ValidateChecksums) CompleteScan() error {
	if len(c.invalid) > 0 {
		c.logger.Warn("Invalid checksums found", "count", len(c.invalid))
	}
	return nil
}

// Invalid returns the checksum files that failed validation during the last scan.
func (c *ValidateChecksums) Invalid() []string {
	return c.invalid
}
