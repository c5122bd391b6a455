// Package misc holds build time information.
package misc

// Set by linker: -X epubkit/misc.version=... -X epubkit/misc.githash=...
var (
	version = "dev"
	githash = "unknown"
)

const appName = "epubkit"

func GetAppName() string {
	return appName
}

func GetVersion() string {
	return version
}

func GetGitHash() string {
	return githash
}
