package consumer

import (
	"archive/zip"
	"fmt"
	"slices"
	"strings"
)

// archiveTypes are the artifact types read as zip archives.
var archiveTypes = []string{"jar", "war", "ear", "sar", "rar", "mar", "car", "zip", "maven-plugin", "ejb", "java-source"}

// IsArchive reports whether an artifact of type typ is a zip archive.
func IsArchive(typ string) bool {
	return slices.Contains(archiveTypes, typ)
}

// ArchiveListing is the class and entry listing of an archive.
type ArchiveListing struct {
	Classes []string
	Files   []string
}

// ListArchive reads the entries of the zip archive at path. Class names are
// qualified with '.' and have no ".class" suffix; package and module descriptors
// are listed as files only.
func ListArchive(path string) (ArchiveListing, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return ArchiveListing{}, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer func() { _ = r.Close() }()

	var listing ArchiveListing
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		listing.Files = append(listing.Files, f.Name)

		name, ok := strings.CutSuffix(f.Name, ".class")
		if !ok {
			continue
		}
		base := name[strings.LastIndex(name, "/")+1:]
		if base == "package-info" || base == "module-info" {
			continue
		}
		listing.Classes = append(listing.Classes, strings.ReplaceAll(name, "/", "."))
	}
	return listing, nil
}
