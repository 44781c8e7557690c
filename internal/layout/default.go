package layout

import (
	"regexp"
	"strings"

	"github.com/sha1n/relic-artifacts/internal/domain"
)

// timestampPattern matches the timestamp-build part of a deployed snapshot filename.
var timestampPattern = regexp.MustCompile(`^\d{8}\.\d{6}-\d+`)

// Default implements the Maven 2 layout:
// groupId/as/path/artifactId/version/artifactId-version[-classifier].type
type Default struct{}

// ID returns the layout id.
func (Default) ID() string { return DefaultID }

// ArtifactFromPath parses a default-layout path.
func (Default) ArtifactFromPath(path string) (domain.ArtifactRef, error) {
	path = normalize(path)
	parts := strings.Split(path, "/")
	if len(parts) < 4 {
		return domain.ArtifactRef{}, notArtifact(path, "not enough path segments")
	}

	n := len(parts)
	filename := parts[n-1]
	baseVersion := parts[n-2]
	artifactID := parts[n-3]
	groupID := strings.Join(parts[:n-3], ".")

	if !strings.HasPrefix(filename, artifactID+"-") {
		return domain.ArtifactRef{}, notArtifact(path, "filename does not start with artifactId")
	}
	rest := filename[len(artifactID)+1:]

	version := ""
	switch {
	case strings.HasPrefix(rest, baseVersion):
		version = baseVersion
	case strings.HasSuffix(baseVersion, domain.SnapshotSuffix):
		base := strings.TrimSuffix(baseVersion, domain.SnapshotSuffix) + "-"
		if !strings.HasPrefix(rest, base) {
			return domain.ArtifactRef{}, notArtifact(path, "filename does not match snapshot version")
		}
		stamp := timestampPattern.FindString(rest[len(base):])
		if stamp == "" {
			return domain.ArtifactRef{}, notArtifact(path, "filename does not match snapshot version")
		}
		version = base + stamp
	default:
		return domain.ArtifactRef{}, notArtifact(path, "filename does not match version directory")
	}

	classifier, typ, ok := splitClassifierAndType(rest[len(version):])
	if !ok {
		return domain.ArtifactRef{}, notArtifact(path, "missing extension")
	}

	return domain.ArtifactRef{
		GroupID:    groupID,
		ArtifactID: artifactID,
		Version:    version,
		Classifier: classifier,
		Type:       typ,
	}, nil
}

// PathOf builds the default-layout path of ref.
func (Default) PathOf(ref domain.ArtifactRef) string {
	var sb strings.Builder
	sb.WriteString(strings.ReplaceAll(ref.GroupID, ".", "/"))
	sb.WriteString("/")
	sb.WriteString(ref.ArtifactID)
	sb.WriteString("/")
	sb.WriteString(BaseVersion(ref.Version))
	sb.WriteString("/")
	sb.WriteString(ref.ArtifactID)
	sb.WriteString("-")
	sb.WriteString(ref.Version)
	if ref.Classifier != "" {
		sb.WriteString("-")
		sb.WriteString(ref.Classifier)
	}
	sb.WriteString(".")
	sb.WriteString(ref.Type)
	return sb.String()
}

// ProjectMetadataPath returns the path of the project-level maven-metadata.xml for ref.
func ProjectMetadataPath(ref domain.ArtifactRef) string {
	return strings.ReplaceAll(ref.GroupID, ".", "/") + "/" + ref.ArtifactID + "/maven-metadata.xml"
}

// BaseVersion turns a timestamped snapshot version back into its -SNAPSHOT form.
func BaseVersion(version string) string {
	if strings.HasSuffix(version, domain.SnapshotSuffix) {
		return version
	}
	dash := strings.LastIndex(version, "-")
	if dash < 0 {
		return version
	}
	prev := strings.LastIndex(version[:dash], "-")
	if prev < 0 {
		return version
	}
	if !timestampPattern.MatchString(version[prev+1:]) {
		return version
	}
	return version[:prev] + domain.SnapshotSuffix
}

// splitClassifierAndType parses "-classifier.type" or ".type".
func splitClassifierAndType(s string) (classifier, typ string, ok bool) {
	if strings.HasPrefix(s, "-") {
		dot := strings.Index(s, ".")
		if dot < 0 {
			return "", "", false
		}
		classifier = s[1:dot]
		s = s[dot:]
	}
	if !strings.HasPrefix(s, ".") || len(s) < 2 {
		return "", "", false
	}
	return classifier, s[1:], true
}
