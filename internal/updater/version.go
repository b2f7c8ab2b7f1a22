// Package updater talks to the GitHub Releases feed, downloads release
// payloads and replaces the running binary.
package updater

import (
	"strings"

	v "github.com/hashicorp/go-version"
)

// IsNewer reports whether latest is a newer release than current. A current
// version that does not parse (e.g. "dev") is treated as older than anything.
func IsNewer(current, latest string) (bool, error) {
	latestVer, err := v.NewVersion(strings.TrimPrefix(latest, "v"))
	if err != nil {
		return false, err
	}
	currentVer, err := v.NewVersion(strings.TrimPrefix(current, "v"))
	if err != nil {
		return true, nil
	}
	return currentVer.LessThan(latestVer), nil
}
