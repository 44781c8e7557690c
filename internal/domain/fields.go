package domain

// Index field names shared by record converters, mappings and queries.
const (
	FieldKey          = "key"
	FieldRepository   = "repository"
	FieldPath         = "path"
	FieldFilename     = "filename"
	FieldGroupID      = "groupId"
	FieldArtifactID   = "artifactId"
	FieldVersion      = "version"
	FieldClassifier   = "classifier"
	FieldType         = "type"
	FieldPackaging    = "packaging"
	FieldSHA1         = "sha1"
	FieldMD5          = "md5"
	FieldLastModified = "lastModified"
	FieldSize         = "size"
	FieldClasses      = "classes"
	FieldFiles        = "files"
	FieldContent      = "content"
	FieldPluginPrefix = "pluginPrefix"
)
