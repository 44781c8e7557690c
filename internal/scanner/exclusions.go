package scanner

// StandardExclusions are never handed to a consumer, whatever its includes.
var StandardExclusions = []string{
	// SCM and editor noise
	"**/*~",
	"**/#*#",
	"**/.#*",
	"**/%*%",
	"**/._*",
	"**/CVS/**",
	"**/.cvsignore",
	"**/SCCS/**",
	"**/vssver.scc",
	"**/.svn/**",
	"**/.git/**",
	"**/.hg/**",
	"**/.bzr/**",
	"**/.DS_Store",

	// Repository caches and reports
	"bin/**",
	"reports/**",
	".index",
	".index/**",
	".reports/**",
	".maven/**",
	".scan-statistics*",

	// Documentation
	"**/*snapshot-version",
	"*/website/**",
	"*/licences/**",
	"**/.htaccess",
	"**/*.html",
	"**/*.txt",
	"**/README*",
	"**/CHANGELOG*",
	"**/KEYS*",
}

// SnapshotExclusions hide snapshot versions unless a scan asks for them.
var SnapshotExclusions = []string{
	"**/*-SNAPSHOT*/**",
	"**/*-SNAPSHOT*",
}
