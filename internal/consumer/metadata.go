package consumer

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"
	"github.com/sha1n/relic-artifacts/internal/domain"
	"github.com/sha1n/relic-artifacts/internal/filetypes"
	"github.com/sha1n/relic-artifacts/internal/layout"
)

// lastUpdatedFormat is the maven-metadata.xml timestamp layout (UTC).
const lastUpdatedFormat = "20060102150405"

// ProjectMetadata is the project-level maven-metadata.xml document.
type ProjectMetadata struct {
	XMLName    xml.Name   `xml:"metadata"`
	GroupID    string     `xml:"groupId,omitempty"`
	ArtifactID string     `xml:"artifactId,omitempty"`
	Versioning Versioning `xml:"versioning"`
	Plugins    *rawXML    `xml:"plugins,omitempty"`
}

// Versioning lists the versions of a project.
type Versioning struct {
	Latest      string   `xml:"latest,omitempty"`
	Release     string   `xml:"release,omitempty"`
	Versions    []string `xml:"versions>version"`
	LastUpdated string   `xml:"lastUpdated,omitempty"`
}

type rawXML struct {
	Inner []byte `xml:",innerxml"`
}

// MetadataUpdater collects the versions of every project seen during a scan and
// merges them into the project's maven-metadata.xml when the scan completes.
type MetadataUpdater struct {
	base
	now      func() time.Time
	enabled  bool
	projects map[string]*projectVersions
	updated  []string
}

type projectVersions struct {
	ref      domain.ArtifactRef
	versions []string
}

// NewMetadataUpdater creates the metadata-updater consumer.
func NewMetadataUpdater(env Env) *MetadataUpdater {
	return &MetadataUpdater{
		base: newBase(IDMetadataUpdater, "Update project metadata with the versions found in the repository.", env.Logger,
			env.patterns(filetypes.Artifacts), fixed(filetypes.DefaultExclusions...)),
		now: env.now(),
	}
}

func (c *MetadataUpdater) BeginScan(repo *domain.Repository) error {
	c.projects = make(map[string]*projectVersions)
	c.updated = nil
	if err := c.begin(repo); err != nil {
		return err
	}
	c.enabled = c.layout.ID() == layout.DefaultID
	if !c.enabled {
		c.logger.Info("Project metadata is only maintained for the default layout", "layout", c.layout.ID())
	}
	return nil
}

func (c *MetadataUpdater) ProcessFile(path string) error {
	if !c.enabled {
		return nil
	}
	ref, err := c.layout.ArtifactFromPath(path)
	if err != nil {
		c.logger.Debug("Skipping file without coordinates", "path", path, "error", err)
		return nil
	}

	key := ref.ProjectKey()
	p, ok := c.projects[key]
	if !ok {
		p = &projectVersions{ref: domain.ArtifactRef{GroupID: ref.GroupID, ArtifactID: ref.ArtifactID}}
		c.projects[key] = p
	}
	if v := layout.BaseVersion(ref.Version); !slices.Contains(p.versions, v) {
		p.versions = append(p.versions, v)
	}
	return nil
}

func (c *MetadataUpdater) CompleteScan() error {
	keys := make([]string, 0, len(c.projects))
	for key := range c.projects {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	var errs []error
	for _, key := range keys {
		p := c.projects[key]
		rel := layout.ProjectMetadataPath(p.ref)
		changed, err := c.update(c.abs(rel), p)
		if err != nil {
			c.logger.Warn("Failed to update project metadata", "path", rel, "error", err)
			errs = append(errs, fmt.Errorf("failed to update %s: %w", rel, err))
			continue
		}
		if changed {
			c.updated = append(c.updated, rel)
		}
	}
	if len(c.updated) > 0 {
		c.logger.Info("Updated project metadata", "count", len(c.updated))
	}
	c.projects = nil
	return errors.Join(errs...)
}

// Updated returns the metadata files written by the last scan.
func (c *MetadataUpdater) Updated() []string {
	return c.updated
}

// update merges p into the metadata file at path and reports whether it was written.
func (c *MetadataUpdater) update(path string, p *projectVersions) (bool, error) {
	md, err := ReadProjectMetadata(path)
	if errors.Is(err, fs.ErrNotExist) {
		md = &ProjectMetadata{}
	} else if err != nil {
		return false, err
	}

	merged := slices.Clone(md.Versioning.Versions)
	for _, v := range p.versions {
		if !slices.Contains(merged, v) {
			merged = append(merged, v)
		}
	}
	SortVersions(merged)
	latest, release := latestAndRelease(merged)

	if md.GroupID == p.ref.GroupID && md.ArtifactID == p.ref.ArtifactID &&
		slices.Equal(merged, md.Versioning.Versions) &&
		md.Versioning.Latest == latest && md.Versioning.Release == release {
		return false, nil
	}

	md.GroupID = p.ref.GroupID
	md.ArtifactID = p.ref.ArtifactID
	md.Versioning.Versions = merged
	md.Versioning.Latest = latest
	md.Versioning.Release = release
	md.Versioning.LastUpdated = c.now().UTC().Format(lastUpdatedFormat)

	return true, WriteProjectMetadata(path, md)
}

// ReadProjectMetadata parses the maven-metadata.xml file at path.
func ReadProjectMetadata(path string) (*ProjectMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var md ProjectMetadata
	if err := xml.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("invalid metadata %s: %w", path, err)
	}
	return &md, nil
}

// WriteProjectMetadata writes md to path.
func WriteProjectMetadata(path string, md *ProjectMetadata) error {
	data, err := xml.MarshalIndent(md, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}
	out := append([]byte(xml.Header), data...)
	return writeAtomic(path, append(out, '\n'))
}

// SortVersions orders versions ascending. Versions that cannot be parsed are
// compared lexically.
func SortVersions(versions []string) {
	slices.SortStableFunc(versions, CompareVersions)
}

// CompareVersions compares two Maven versions; snapshots sort before their release.
func CompareVersions(a, b string) int {
	va, errA := goversion.NewVersion(a)
	vb, errB := goversion.NewVersion(b)
	if errA == nil && errB == nil {
		if c := va.Compare(vb); c != 0 {
			return c
		}
	}
	return strings.Compare(a, b)
}

// latestAndRelease returns the highest version and the highest non-snapshot version
// of sorted versions.
func latestAndRelease(sorted []string) (latest, release string) {
	if len(sorted) == 0 {
		return "", ""
	}
	latest = sorted[len(sorted)-1]
	for i := len(sorted) - 1; i >= 0; i-- {
		if !domain.IsSnapshotVersion(sorted[i]) {
			return latest, sorted[i]
		}
	}
	return latest, ""
}
