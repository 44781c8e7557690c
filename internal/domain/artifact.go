package domain

import "strings"

// SnapshotSuffix marks a snapshot version.
const SnapshotSuffix = "-SNAPSHOT"

// ArtifactRef identifies a single artifact file within a repository layout.
type ArtifactRef struct {
	GroupID    string `json:"group_id"`
	ArtifactID string `json:"artifact_id"`
	Version    string `json:"version"`
	Classifier string `json:"classifier,omitempty"`
	// Type is the artifact type, usually the file extension ("jar", "pom", "tar.gz").
	Type string `json:"type"`
}

// Key returns the primary key groupId:artifactId:version:classifier:type.
func (a ArtifactRef) Key() string {
	return strings.Join([]string{a.GroupID, a.ArtifactID, a.Version, a.Classifier, a.Type}, ":")
}

// ProjectKey returns groupId:artifactId.
func (a ArtifactRef) ProjectKey() string {
	return a.GroupID + ":" + a.ArtifactID
}

// IsSnapshot reports whether the version is a snapshot, including timestamped snapshots.
func (a ArtifactRef) IsSnapshot() bool {
	return IsSnapshotVersion(a.Version)
}

// IsSnapshotVersion reports whether version is a snapshot or a timestamped snapshot
// (1.0-20070101.120000-1).
func IsSnapshotVersion(version string) bool {
	if strings.HasSuffix(version, SnapshotSuffix) {
		return true
	}
	return timestampedSnapshot(version)
}

func timestampedSnapshot(version string) bool {
	// <base>-yyyyMMdd.HHmmss-<build>
	dash := strings.LastIndex(version, "-")
	if dash <= 0 || dash == len(version)-1 {
		return false
	}
	for _, r := range version[dash+1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	rest := version[:dash]
	prev := strings.LastIndex(rest, "-")
	if prev < 0 {
		return false
	}
	stamp := rest[prev+1:]
	if len(stamp) != 15 || stamp[8] != '.' {
		return false
	}
	for i, r := range stamp {
		if i == 8 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
