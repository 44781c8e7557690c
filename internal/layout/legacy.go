package layout

import (
	"strings"

	"github.com/sha1n/relic-artifacts/internal/domain"
)

// Legacy implements the Maven 1 layout: groupId/types/artifactId-version[-classifier].extension
type Legacy struct{}

// ID returns the layout id.
func (Legacy) ID() string { return LegacyID }

// ArtifactFromPath parses a legacy-layout path.
func (Legacy) ArtifactFromPath(path string) (domain.ArtifactRef, error) {
	path = normalize(path)
	parts := strings.Split(path, "/")
	if len(parts) != 3 {
		return domain.ArtifactRef{}, notArtifact(path, "expected groupId/types/filename")
	}

	groupID, typeDir, filename := parts[0], parts[1], parts[2]
	if !strings.HasSuffix(typeDir, "s") {
		return domain.ArtifactRef{}, notArtifact(path, "type directory must be plural")
	}
	typ := strings.TrimSuffix(typeDir, "s")

	ext := legacyExtension(typ)
	if !strings.HasSuffix(filename, "."+ext) {
		return domain.ArtifactRef{}, notArtifact(path, "extension does not match type directory")
	}
	name := strings.TrimSuffix(filename, "."+ext)

	split := -1
	for i := 0; i < len(name)-1; i++ {
		if name[i] == '-' && name[i+1] >= '0' && name[i+1] <= '9' {
			split = i
			break
		}
	}
	if split <= 0 {
		return domain.ArtifactRef{}, notArtifact(path, "cannot find version in filename")
	}

	ref := domain.ArtifactRef{
		GroupID:    groupID,
		ArtifactID: name[:split],
		Version:    name[split+1:],
		Type:       typ,
	}
	if typ == "java-source" {
		ref.Classifier = "sources"
		ref.Version = strings.TrimSuffix(ref.Version, "-sources")
	}
	return ref, nil
}

// PathOf builds the legacy-layout path of ref.
func (Legacy) PathOf(ref domain.ArtifactRef) string {
	name := ref.ArtifactID + "-" + ref.Version
	if ref.Classifier != "" {
		name += "-" + ref.Classifier
	}
	return ref.GroupID + "/" + ref.Type + "s/" + name + "." + legacyExtension(ref.Type)
}

func legacyExtension(typ string) string {
	switch typ {
	case "java-source", "javadoc", "ejb", "maven-plugin":
		return "jar"
	case "distribution-tgz":
		return "tar.gz"
	case "distribution-zip":
		return "zip"
	default:
		return typ
	}
}
