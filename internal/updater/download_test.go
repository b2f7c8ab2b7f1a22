package updater

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gunlicence/licensedesk/internal/models"
)

func payloadServer(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payload" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPDownloader_ReportsProgressAndVerifiesChecksum(t *testing.T) {
	payload := bytes.Repeat([]byte("licensedesk"), 64<<10)
	sum := sha256.Sum256(payload)
	srv := payloadServer(t, payload)

	d := NewHTTPDownloader(t.TempDir())
	d.Client = srv.Client()

	var progress []models.Progress
	path, err := d.Download(context.Background(), models.Release{
		Version:     "2.0.0",
		DownloadURL: srv.URL + "/payload",
		Checksum:    hex.EncodeToString(sum[:]),
	}, func(p models.Progress) { progress = append(progress, p) })
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100, "payload is executable")

	require.Greater(t, len(progress), 2)
	last := progress[len(progress)-1]
	assert.Equal(t, float64(100), last.Percent)
	assert.Equal(t, int64(len(payload)), last.TransferredBytes)
	assert.Equal(t, int64(len(payload)), last.TotalBytes)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i].Percent, progress[i-1].Percent)
	}
}

func TestHTTPDownloader_ChecksumMismatch(t *testing.T) {
	srv := payloadServer(t, []byte("tampered"))
	dir := t.TempDir()
	d := NewHTTPDownloader(dir)

	_, err := d.Download(context.Background(), models.Release{
		Version:     "2.0.0",
		DownloadURL: srv.URL + "/payload",
		Checksum:    "00",
	}, nil)
	require.ErrorContains(t, err, "checksum mismatch")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial payload removed")
}

func TestHTTPDownloader_HTTPError(t *testing.T) {
	srv := payloadServer(t, nil)
	d := NewHTTPDownloader(t.TempDir())

	_, err := d.Download(context.Background(), models.Release{Version: "2.0.0", DownloadURL: srv.URL + "/missing"}, nil)
	require.ErrorContains(t, err, "unexpected HTTP status: 404")
}

func TestHTTPDownloader_NoURL(t *testing.T) {
	_, err := NewHTTPDownloader(t.TempDir()).Download(context.Background(), models.Release{Version: "2.0.0"}, nil)
	assert.Error(t, err)
}
