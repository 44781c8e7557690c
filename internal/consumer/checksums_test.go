package consumer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// Digests of the string "hello".
const (
	helloSHA1 = "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"
	helloMD5  = "5d41402abc4b2a76b9719d911017c592"
)

func TestComputeDigests(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.jar", "hello")

	digests, err := ComputeDigests(path)
	if err != nil {
		t.Fatalf("ComputeDigests() error = %v", err)
	}
	if digests["sha1"] != helloSHA1 || digests["md5"] != helloMD5 {
		t.Errorf("ComputeDigests() = %v", digests)
	}

	if _, err := ComputeDigests(filepath.Join(t.TempDir(), "missing.jar")); !errors.Is(err, ErrDigestCalculation) {
		t.Errorf("ComputeDigests(missing) error = %v, want ErrDigestCalculation", err)
	}
}

func TestReadChecksum(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bare", helloSHA1, helloSHA1},
		{"with filename", helloSHA1 + "  a.jar\n", helloSHA1},
		{"upper case", "AAF4C61DDCC5E8A2DABEDE0F3B482CD9AEA9434D", helloSHA1},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, base, tt.name+".sha1", tt.content)
			got, err := ReadChecksum(path)
			if err != nil {
				t.Fatalf("ReadChecksum() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ReadChecksum() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMissingChecksums_CreatesAndIsIdempotent(t *testing.T) {
	repo, base := newRepo(t)
	rel := "org/acme/lib/1.0/lib-1.0.jar"
	jar := writeFile(t, base, rel, "hello")
	c := NewMissingChecksums(Env{})

	if errs := runScan(t, c, repo, rel); len(errs) != 0 {
		t.Fatalf("first scan errors = %v", errs)
	}
	if got := readFile(t, jar+".sha1"); got != helloSHA1 {
		t.Errorf(".sha1 = %q, want %q", got, helloSHA1)
	}
	if got := readFile(t, jar+".md5"); got != helloMD5 {
		t.Errorf(".md5 = %q, want %q", got, helloMD5)
	}

	if errs := runScan(t, c, repo, rel); len(errs) != 0 {
		t.Fatalf("second scan errors = %v", errs)
	}
	if got := readFile(t, jar+".sha1"); got != helloSHA1 {
		t.Errorf(".sha1 after rescan = %q, want %q", got, helloSHA1)
	}

	entries, err := os.ReadDir(filepath.Dir(jar))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("directory has %d entries, want jar, sha1 and md5", len(entries))
	}
}

func TestMissingChecksums_FixesInvalidAndKeepsValid(t *testing.T) {
	repo, base := newRepo(t)
	rel := "org/acme/lib/1.0/lib-1.0.jar"
	jar := writeFile(t, base, rel, "hello")
	writeFile(t, base, rel+".sha1", "0000000000000000000000000000000000000000")
	valid := helloMD5 + "  lib-1.0.jar\n"
	writeFile(t, base, rel+".md5", valid)

	if errs := runScan(t, NewMissingChecksums(Env{}), repo, rel); len(errs) != 0 {
		t.Fatalf("scan errors = %v", errs)
	}
	if got := readFile(t, jar+".sha1"); got != helloSHA1 {
		t.Errorf(".sha1 = %q, want fixed %q", got, helloSHA1)
	}
	if got := readFile(t, jar+".md5"); got != valid {
		t.Errorf(".md5 = %q, want untouched %q", got, valid)
	}
}

func TestMissingChecksums_DistinguishesFailures(t *testing.T) {
	repo, base := newRepo(t)
	c := NewMissingChecksums(Env{})
	if err := c.BeginScan(repo); err != nil {
		t.Fatalf("BeginScan() error = %v", err)
	}

	if err := c.ProcessFile("missing/lib.jar"); !errors.Is(err, ErrDigestCalculation) {
		t.Errorf("ProcessFile(missing) error = %v, want ErrDigestCalculation", err)
	}

	rel := "blocked/lib.jar"
	writeFile(t, base, rel, "hello")
	// A non-empty directory where the checksum file belongs cannot be replaced.
	writeFile(t, base, rel+".sha1/occupied", "x")

	err := c.ProcessFile(rel)
	if !errors.Is(err, ErrChecksumWrite) {
		t.Errorf("ProcessFile(blocked) error = %v, want ErrChecksumWrite", err)
	}
	if errors.Is(err, ErrDigestCalculation) {
		t.Errorf("ProcessFile(blocked) error = %v, should not be a digest failure", err)
	}
	if got := readFile(t, filepath.Join(base, rel+".md5")); got != helloMD5 {
		t.Errorf(".md5 = %q, want it written despite the sha1 failure", got)
	}
	if err := c.CompleteScan(); err != nil {
		t.Errorf("CompleteScan() error = %v", err)
	}
}

func TestValidateChecksums(t *testing.T) {
	repo, base := newRepo(t)
	writeFile(t, base, "good/lib.jar", "hello")
	writeFile(t, base, "good/lib.jar.sha1", helloSHA1)
	writeFile(t, base, "good/lib.jar.md5", helloMD5)
	writeFile(t, base, "bad/lib.jar", "hello")
	writeFile(t, base, "bad/lib.jar.sha1", "deadbeef")
	writeFile(t, base, "orphan/lib.jar.md5", helloMD5)

	c := NewValidateChecksums(Env{})
	errs := runScan(t, c, repo, "good/lib.jar.sha1", "good/lib.jar.md5", "bad/lib.jar.sha1", "orphan/lib.jar.md5")

	if len(errs) != 2 {
		t.Fatalf("errors = %v, want mismatch and orphan", errs)
	}
	if !errors.Is(errs[0], ErrChecksumMismatch) {
		t.Errorf("errs[0] = %v, want ErrChecksumMismatch", errs[0])
	}
	if len(c.Invalid()) != 1 || c.Invalid()[0] != "bad/lib.jar.sha1" {
		t.Errorf("Invalid() = %v", c.Invalid())
	}
}
