package updater

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/gunlicence/licensedesk/internal/buildinfo"
	"github.com/gunlicence/licensedesk/internal/models"
)

// HTTPDownloader streams release payloads to disk, reporting progress.
type HTTPDownloader struct {
	// Dir is where payloads are written. Empty means the OS temp dir.
	Dir    string
	Client *http.Client
}

// NewHTTPDownloader creates a downloader writing into dir.
func NewHTTPDownloader(dir string) *HTTPDownloader {
	return &HTTPDownloader{Dir: dir, Client: http.DefaultClient}
}

// Download fetches rel's payload and returns the path of the executable file.
// onProgress is called synchronously as bytes arrive; it may be nil.
func (d *HTTPDownloader) Download(ctx context.Context, rel models.Release, onProgress func(models.Progress)) (string, error) {
	if rel.DownloadURL == "" {
		return "", fmt.Errorf("release %s has no download url", rel.Version)
	}
	log.Debugf("starting download from %s", rel.DownloadURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rel.DownloadURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Warnf("error closing response body: %v", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected HTTP status: %d", resp.StatusCode)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = rel.Size
	}

	if d.Dir != "" {
		if err := os.MkdirAll(d.Dir, 0755); err != nil {
			return "", fmt.Errorf("create download dir: %w", err)
		}
	}
	out, err := os.CreateTemp(d.Dir, buildinfo.AppName+"-update-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := out.Name()

	pw := &progressWriter{total: total, onProgress: onProgress, sum: sha256.New()}
	_, err = io.Copy(io.MultiWriter(out, pw), resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write payload: %w", err)
	}

	if rel.Checksum != "" {
		if got := hex.EncodeToString(pw.sum.Sum(nil)); got != rel.Checksum {
			os.Remove(path)
			return "", fmt.Errorf("checksum mismatch: expected %s, got %s", rel.Checksum, got)
		}
	}

	if err := os.Chmod(path, 0755); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("chmod payload: %w", err)
	}

	pw.finish()
	log.Infof("successfully downloaded %s to %s", rel.AssetName, path)
	return path, nil
}

// progressWriter reports progress whenever the whole-number percent changes.
type progressWriter struct {
	total       int64
	transferred int64
	lastPercent int
	reported    bool
	sum         hash.Hash
	onProgress  func(models.Progress)
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.sum.Write(p)
	w.transferred += int64(len(p))
	percent := w.percent()
	if !w.reported || int(percent) != w.lastPercent {
		w.report(percent)
	}
	return len(p), nil
}

func (w *progressWriter) percent() float64 {
	if w.total <= 0 {
		return 0
	}
	p := float64(w.transferred) / float64(w.total) * 100
	if p > 100 {
		p = 100
	}
	return p
}

func (w *progressWriter) finish() {
	if w.total <= 0 {
		w.total = w.transferred
	}
	if w.lastPercent != 100 {
		w.report(100)
	}
}

func (w *progressWriter) report(percent float64) {
	w.reported = true
	w.lastPercent = int(percent)
	if w.onProgress == nil {
		return
	}
	w.onProgress(models.Progress{
		Percent:          percent,
		TransferredBytes: w.transferred,
		TotalBytes:       w.total,
	})
}
