// Package buildinfo holds version information injected at build time via ldflags.
package buildinfo

// AppName is the product name used in user agents, paths and asset names.
const AppName = "licensedesk"

var (
	Version    = "dev"
	Channel    = "stable"
	CommitHash = "unknown"
	BuildDate  = "unknown"
)

// UserAgent returns the User-Agent sent to the release feed.
func UserAgent() string {
	return AppName + "/" + Version
}
