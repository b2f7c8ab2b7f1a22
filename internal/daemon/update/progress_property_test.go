package update

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/gunlicence/licensedesk/internal/bridge"
	"github.com/gunlicence/licensedesk/internal/models"
)

// Within one download attempt the emitted percent never goes down, whatever
// order the downloader reports progress in.
func TestDownloadProgress_NonDecreasingWithinAttempt(t *testing.T) {
	dir := t.TempDir()
	rapid.Check(t, func(rt *rapid.T) {
		attempts := rapid.IntRange(1, 4).Draw(rt, "attempts")
		reports := make([][]float64, attempts)
		for i := range reports {
			reports[i] = rapid.SliceOfN(rapid.Float64Range(0, 120), 0, 12).Draw(rt, "percents")
		}

		steps := make([]downloadFunc, attempts)
		for i := range steps {
			percents := reports[i]
			last := i == attempts-1
			steps[i] = func(_ context.Context, onProgress func(models.Progress)) (string, error) {
				for _, p := range percents {
					onProgress(models.Progress{Percent: p, TransferredBytes: int64(p * 10), TotalBytes: 1000})
				}
				if !last {
					return "", errors.New("stream interrupted")
				}
				f, err := os.CreateTemp(dir, "payload-*")
				if err != nil {
					return "", err
				}
				f.Close()
				return filepath.Clean(f.Name()), nil
			}
		}

		events := &recorder{}
		w := &waits{}
		cfg := DefaultConfig()
		cfg.MaxDownloadRetries = attempts
		c := NewCoordinator(Options{
			Feed:           &fakeFeed{steps: []feedFunc{available}},
			Downloader:     &fakeDownloader{steps: steps},
			Installer:      &fakeInstaller{},
			Emitter:        events,
			Config:         cfg,
			CurrentVersion: "1.0.0",
			NewTimer:       w.NewTimer,
		})
		defer c.Shutdown(context.Background())

		c.CheckForUpdates()
		waitFor(rt, func() bool { return c.Snapshot().State == models.StateAwaitingDownloadConfirmation })
		c.ConfirmDownload()
		waitFor(rt, func() bool { return c.Snapshot().State == models.StateReadyToInstall })

		lastByAttempt := map[int]float64{}
		for _, ev := range events.Events() {
			if ev.Channel != bridge.ChannelDownloadProgress {
				continue
			}
			p := ev.Progress
			if p.Percent < 0 || p.Percent > 100 {
				rt.Fatalf("percent out of range: %v", p.Percent)
			}
			prev, seen := lastByAttempt[p.Attempt]
			if !seen && p.Percent != 0 {
				rt.Fatalf("attempt %d did not start at 0 (got %v)", p.Attempt, p.Percent)
			}
			if seen && p.Percent < prev {
				rt.Fatalf("attempt %d regressed from %v to %v", p.Attempt, prev, p.Percent)
			}
			lastByAttempt[p.Attempt] = p.Percent
		}
		if len(lastByAttempt) != attempts {
			rt.Fatalf("expected %d attempts, saw %d", attempts, len(lastByAttempt))
		}
	})
}

func waitFor(rt *rapid.T, cond func() bool) {
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			rt.Fatalf("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}
