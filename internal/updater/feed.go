package updater

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/gunlicence/licensedesk/internal/buildinfo"
	"github.com/gunlicence/licensedesk/internal/daemon/update"
	"github.com/gunlicence/licensedesk/internal/models"
)

const (
	// DefaultReleasesURL is the GitHub "latest release" endpoint.
	DefaultReleasesURL = "https://api.github.com/repos/gunlicence/licensedesk/releases/latest"

	checksumSuffix = ".sha256"
	checksumLimit  = 4 << 10
)

// releaseInfo is the subset of a GitHub release we read.
type releaseInfo struct {
	TagName string  `json:"tag_name"`
	HTMLURL string  `json:"html_url"`
	Body    string  `json:"body"`
	Assets  []asset `json:"assets"`
}

type asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// PlatformAssetName returns the expected asset name for the host binary.
func PlatformAssetName() string {
	name := fmt.Sprintf("%sd-%s-%s", buildinfo.AppName, runtime.GOOS, runtime.GOARCH)
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return name
}

// GitHubFeed queries a GitHub Releases endpoint for the latest release.
type GitHubFeed struct {
	URL       string
	AssetName string
	Client    *http.Client
}

// NewGitHubFeed creates a feed for url, falling back to DefaultReleasesURL.
func NewGitHubFeed(url string) *GitHubFeed {
	if url == "" {
		url = DefaultReleasesURL
	}
	return &GitHubFeed{URL: url, AssetName: PlatformAssetName(), Client: http.DefaultClient}
}

// Latest returns the newest release if it is newer than current, or nil when
// the host is up to date or the repository has no releases yet.
func (f *GitHubFeed) Latest(ctx context.Context, current string) (*models.Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	resp, err := f.client().Do(req)
	if err != nil {
		return nil, update.NewError(update.KindFeedUnreachable, fmt.Errorf("fetch releases: %w", err))
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Warnf("error closing response body: %v", cerr)
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		// No releases yet
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, update.NewError(update.KindFeedUnreachable, fmt.Errorf("GitHub API returned %d", resp.StatusCode))
	}

	var release releaseInfo
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, update.NewError(update.KindMalformedFeed, fmt.Errorf("decode release: %w", err))
	}
	if release.TagName == "" {
		return nil, update.NewError(update.KindMalformedFeed, errors.New("release has no tag"))
	}

	latestVersion := strings.TrimPrefix(release.TagName, "v")
	newer, err := IsNewer(current, latestVersion)
	if err != nil {
		return nil, update.NewError(update.KindMalformedFeed, fmt.Errorf("parse latest version %q: %w", latestVersion, err))
	}
	if !newer {
		return nil, nil
	}

	a := findAsset(release.Assets, f.assetName())
	if a == nil {
		return nil, update.NewError(update.KindMalformedFeed, fmt.Errorf("release %s has no asset %s", release.TagName, f.assetName()))
	}

	rel := &models.Release{
		Version:     latestVersion,
		Notes:       strings.TrimSpace(release.Body),
		URL:         release.HTMLURL,
		DownloadURL: a.BrowserDownloadURL,
		AssetName:   a.Name,
		Size:        a.Size,
	}

	if sum := findAsset(release.Assets, a.Name+checksumSuffix); sum != nil {
		checksum, err := f.fetchChecksum(ctx, sum.BrowserDownloadURL)
		if err != nil {
			return nil, update.NewError(update.KindFeedUnreachable, err)
		}
		rel.Checksum = checksum
	}
	return rel, nil
}

func (f *GitHubFeed) fetchChecksum(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create checksum request: %w", err)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	resp, err := f.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch checksum: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("checksum download returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, checksumLimit))
	if err != nil {
		return "", fmt.Errorf("read checksum: %w", err)
	}
	// "<hex>  <filename>" or just "<hex>"
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "", errors.New("empty checksum file")
	}
	return strings.ToLower(fields[0]), nil
}

func (f *GitHubFeed) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

func (f *GitHubFeed) assetName() string {
	if f.AssetName != "" {
		return f.AssetName
	}
	return PlatformAssetName()
}

func findAsset(assets []asset, name string) *asset {
	for i := range assets {
		if assets[i].Name == name {
			return &assets[i]
		}
	}
	return nil
}
