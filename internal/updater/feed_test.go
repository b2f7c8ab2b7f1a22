package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gunlicence/licensedesk/internal/daemon/update"
)

const testAsset = "licensedeskd-linux-amd64"

func releaseServer(t *testing.T, status int, body any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/latest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.github.v3+json", r.Header.Get("Accept"))
		w.WriteHeader(status)
		switch b := body.(type) {
		case string:
			fmt.Fprint(w, b)
		case func(base string) releaseInfo:
			_ = json.NewEncoder(w).Encode(b(srv.URL))
		}
	})
	mux.HandleFunc("/download/"+testAsset+".sha256", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ABCDEF0123  "+testAsset)
	})
	return srv
}

func newTestFeed(srv *httptest.Server) *GitHubFeed {
	f := NewGitHubFeed(srv.URL + "/latest")
	f.AssetName = testAsset
	f.Client = srv.Client()
	return f
}

func release(tag string, withChecksum bool) func(string) releaseInfo {
	return func(base string) releaseInfo {
		r := releaseInfo{
			TagName: tag,
			HTMLURL: base + "/release",
			Body:    "  Licence pool sync is faster.\n",
			Assets: []asset{
				{Name: "licensedeskd-darwin-arm64", BrowserDownloadURL: base + "/download/other", Size: 1},
				{Name: testAsset, BrowserDownloadURL: base + "/download/" + testAsset, Size: 2048},
			},
		}
		if withChecksum {
			r.Assets = append(r.Assets, asset{Name: testAsset + ".sha256", BrowserDownloadURL: base + "/download/" + testAsset + ".sha256"})
		}
		return r
	}
}

func TestGitHubFeed_NewerRelease(t *testing.T) {
	srv := releaseServer(t, http.StatusOK, release("v1.3.0", true))

	rel, err := newTestFeed(srv).Latest(context.Background(), "1.2.0")
	require.NoError(t, err)
	require.NotNil(t, rel)
	assert.Equal(t, "1.3.0", rel.Version)
	assert.Equal(t, "Licence pool sync is faster.", rel.Notes)
	assert.Equal(t, testAsset, rel.AssetName)
	assert.Equal(t, srv.URL+"/download/"+testAsset, rel.DownloadURL)
	assert.Equal(t, int64(2048), rel.Size)
	assert.Equal(t, "abcdef0123", rel.Checksum)
}

func TestGitHubFeed_UpToDate(t *testing.T) {
	srv := releaseServer(t, http.StatusOK, release("v1.2.0", false))

	rel, err := newTestFeed(srv).Latest(context.Background(), "1.2.0")
	require.NoError(t, err)
	assert.Nil(t, rel)
}

func TestGitHubFeed_NoReleases(t *testing.T) {
	srv := releaseServer(t, http.StatusNotFound, `{"message":"Not Found"}`)

	rel, err := newTestFeed(srv).Latest(context.Background(), "1.2.0")
	require.NoError(t, err)
	assert.Nil(t, rel)
}

func TestGitHubFeed_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
		kind   update.ErrorKind
	}{
		{"server error", http.StatusBadGateway, "", update.KindFeedUnreachable},
		{"rate limited", http.StatusForbidden, `{"message":"rate limit"}`, update.KindFeedUnreachable},
		{"bad json", http.StatusOK, `{"tag_name":`, update.KindMalformedFeed},
		{"no tag", http.StatusOK, `{"assets":[]}`, update.KindMalformedFeed},
		{"bad version", http.StatusOK, release("nightly", false), update.KindMalformedFeed},
		{"missing asset", http.StatusOK, `{"tag_name":"v9.0.0","assets":[]}`, update.KindMalformedFeed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := releaseServer(t, tt.status, tt.body)
			_, err := newTestFeed(srv).Latest(context.Background(), "1.2.0")
			require.Error(t, err)
			assert.Equal(t, tt.kind, update.KindOf(err))
		})
	}
}

func TestGitHubFeed_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewGitHubFeed(url).Latest(context.Background(), "1.0.0")
	require.Error(t, err)
	assert.Equal(t, update.KindFeedUnreachable, update.KindOf(err))
}
