// Package update implements the host-side update coordinator: the state
// machine that checks the release feed, downloads payloads with bounded
// retries and installs them.
package update

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/gunlicence/licensedesk/internal/bridge"
	"github.com/gunlicence/licensedesk/internal/models"
)

// Feed looks up the newest release. It returns nil when current is up to date.
type Feed interface {
	Latest(ctx context.Context, currentVersion string) (*models.Release, error)
}

// Downloader fetches a release payload and returns its local path.
type Downloader interface {
	Download(ctx context.Context, rel models.Release, onProgress func(models.Progress)) (string, error)
}

// Installer applies a downloaded payload.
type Installer interface {
	// Apply replaces the running binary and restarts into it.
	Apply(ctx context.Context, payloadPath string) error
	// Stage replaces the binary without restarting.
	Stage(payloadPath string) error
}

// Emitter receives coordinator events in mutation order.
type Emitter interface {
	Publish(ev bridge.Event)
}

// Options configures a Coordinator.
type Options struct {
	Feed           Feed
	Downloader     Downloader
	Installer      Installer
	Emitter        Emitter
	Config         Config
	CurrentVersion string

	// NewTimer creates the timer used for retry waits. Nil uses wall time.
	NewTimer func() backoff.Timer
	// Now defaults to time.Now.
	Now func() time.Time
}

// Coordinator owns the update session and drives it through its lifecycle.
// Commands never block on network I/O; work runs on goroutines whose results
// are applied only while their epoch is current.
type Coordinator struct {
	feed       Feed
	downloader Downloader
	installer  Installer
	emitter    Emitter
	current    string
	newTimer   func() backoff.Timer
	now        func() time.Time

	mu      sync.Mutex
	cfg     Config
	session Session
	epoch   uint64
	seq     uint64
	cancel  context.CancelFunc
	closed  bool

	wg sync.WaitGroup
}

// NewCoordinator creates a coordinator with a fresh Idle session.
func NewCoordinator(opts Options) *Coordinator {
	c := &Coordinator{
		feed:       opts.Feed,
		downloader: opts.Downloader,
		installer:  opts.Installer,
		emitter:    opts.Emitter,
		current:    opts.CurrentVersion,
		newTimer:   opts.NewTimer,
		now:        opts.Now,
		cfg:        opts.Config.normalized(),
		session: Session{
			ID:    uuid.NewString(),
			State: models.StateIdle,
		},
	}
	if c.newTimer == nil {
		c.newTimer = func() backoff.Timer { return nil }
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// SessionID returns the session's identifier.
func (c *Coordinator) SessionID() string {
	return c.session.ID
}

// Snapshot returns a copy of the session.
func (c *Coordinator) Snapshot() models.UpdateSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.session.snapshot(c.current)
	snap.Seq = c.seq
	return snap
}

// SetConfig replaces the policy. It applies from the next operation.
func (c *Coordinator) SetConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg.normalized()
	c.logger().Debug("[update] config updated")
}

// Config returns the current policy.
func (c *Coordinator) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// CheckForUpdates starts a release check. It is ignored unless the session is
// Idle, UpToDate or in a failed state.
func (c *Coordinator) CheckForUpdates() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	switch c.session.State {
	case models.StateIdle, models.StateUpToDate,
		models.StateCheckFailed, models.StateDownloadFailed, models.StateInstallFailed:
	default:
		c.logger().Debug("[update] check ignored")
		return
	}

	ctx, epoch := c.beginOpLocked()
	c.removePayloadLocked()
	c.session.State = models.StateChecking
	c.session.RetryCount = 0
	c.session.DownloadRetryCount = 0
	c.session.Progress = nil
	c.session.Release = nil
	cfg := c.cfg
	c.logger().Info("[update] checking for updates")

	c.wg.Add(1)
	go c.runCheck(ctx, epoch, cfg)
}

// ConfirmDownload starts downloading the discovered release. It is ignored
// unless the session is AwaitingDownloadConfirmation.
func (c *Coordinator) ConfirmDownload() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.session.State != models.StateAwaitingDownloadConfirmation {
		c.logger().Debug("[update] download confirmation ignored")
		return
	}
	c.startDownloadLocked()
}

// ConfirmInstall applies the downloaded payload. It is ignored unless the
// session is ReadyToInstall.
func (c *Coordinator) ConfirmInstall() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.session.State != models.StateReadyToInstall {
		c.logger().Debug("[update] install confirmation ignored")
		return
	}

	ctx, epoch := c.beginOpLocked()
	c.session.State = models.StateInstalling
	path := c.session.PayloadPath
	c.logger().Infof("[update] installing %s", path)

	// Not tracked by wg: a successful install ends with the installer asking
	// the process to shut down, and Shutdown must not wait on it.
	go func() {
		err := c.installer.Apply(ctx, path)
		c.finishInstall(epoch, err)
	}()
}

// CancelUpdate abandons in-flight work and returns the session to Idle.
// Late results of the abandoned work are discarded. It is a no-op while
// Installing and emits nothing when the session is already quiescent.
func (c *Coordinator) CancelUpdate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.session.State == models.StateInstalling {
		return
	}
	if c.session.quiescent() && c.cancel == nil {
		return
	}

	c.endOpLocked()
	c.removePayloadLocked()
	c.resetLocked()
	c.logger().Info("[update] cancelled")
	c.publishLocked(bridge.Event{Channel: bridge.ChannelUpdateCancelled})
}

// Shutdown stops all work. If auto-install-on-quit is enabled and a payload
// is ready, it is staged over the binary for the next launch. Shutdown waits
// for in-flight checks and downloads to unwind or for ctx to end.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.session.State == models.StateInstalling {
		c.mu.Unlock()
		return nil
	}
	var stage string
	if c.cfg.AutoInstallOnQuit && c.session.State == models.StateReadyToInstall {
		stage = c.session.PayloadPath
		c.session.PayloadPath = ""
	}
	c.endOpLocked()
	c.removePayloadLocked()
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if stage == "" {
		return nil
	}
	if err := c.installer.Stage(stage); err != nil {
		return NewError(KindInstallFailed, fmt.Errorf("stage on quit: %w", err))
	}
	return nil
}

// beginOpLocked cancels any in-flight operation and starts a new epoch.
func (c *Coordinator) beginOpLocked() (context.Context, uint64) {
	c.endOpLocked()
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	return ctx, c.epoch
}

// endOpLocked cancels the current operation and invalidates its results.
func (c *Coordinator) endOpLocked() {
	c.releaseOpLocked()
	c.epoch++
}

// releaseOpLocked frees the finished operation's context without starting a
// new epoch.
func (c *Coordinator) releaseOpLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Coordinator) resetLocked() {
	c.session.State = models.StateIdle
	c.session.RetryCount = 0
	c.session.DownloadRetryCount = 0
	c.session.Progress = nil
	c.session.Release = nil
	c.session.LastError = ""
}

func (c *Coordinator) removePayloadLocked() {
	if c.session.PayloadPath == "" {
		return
	}
	removePayload(c.session.PayloadPath)
	c.session.PayloadPath = ""
}

func removePayload(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("[update] failed to remove payload %s: %v", path, err)
	}
}

// currentLocked reports whether epoch still owns the session.
func (c *Coordinator) currentLocked(epoch uint64) bool {
	return !c.closed && epoch == c.epoch
}

func (c *Coordinator) publishLocked(ev bridge.Event) {
	c.seq++
	if c.emitter == nil {
		return
	}
	ev.SessionID = c.session.ID
	ev.Seq = c.seq
	ev.Time = c.now()
	c.emitter.Publish(ev)
}

func (c *Coordinator) publishErrorLocked(err *Error, retry *bridge.RetryInfo) {
	c.session.LastError = err.Error()
	c.publishLocked(bridge.Event{
		Channel:   bridge.ChannelUpdateError,
		Message:   err.Error(),
		ErrorKind: string(err.Kind),
		Retry:     retry,
	})
}

func (c *Coordinator) logger() *log.Entry {
	return log.WithFields(log.Fields{
		"session": c.session.ID,
		"state":   c.session.State,
	})
}

func retryPolicy(ctx context.Context, wait time.Duration, max int) backoff.BackOff {
	return backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(wait), uint64(max)),
		ctx,
	)
}

// --- check ---

func (c *Coordinator) runCheck(ctx context.Context, epoch uint64, cfg Config) {
	defer c.wg.Done()

	var release *models.Release
	op := func() error {
		rel, err := c.queryFeed(ctx, cfg.CheckTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		release = rel
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.checkAttemptFailed(epoch, err, wait, cfg.MaxCheckRetries)
	}

	err := backoff.RetryNotifyWithTimer(op, retryPolicy(ctx, cfg.CheckRetryBackoff, cfg.MaxCheckRetries), notify, c.newTimer())
	c.finishCheck(epoch, release, err, cfg)
}

// queryFeed races one feed query against the check timeout. The result
// channel is buffered so a query that settles after the timeout is dropped
// without blocking.
func (c *Coordinator) queryFeed(ctx context.Context, timeout time.Duration) (*models.Release, error) {
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		rel *models.Release
		err error
	}
	ch := make(chan result, 1)
	go func() {
		rel, err := c.feed.Latest(qctx, c.current)
		ch <- result{rel: rel, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, classify(r.err, KindFeedUnreachable)
		}
		return r.rel, nil
	case <-qctx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewError(KindTimeout, fmt.Errorf("no response from release feed within %s", timeout))
	}
}

func (c *Coordinator) checkAttemptFailed(epoch uint64, err error, wait time.Duration, max int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(epoch) {
		return
	}
	ue := classify(err, KindFeedUnreachable)
	c.session.RetryCount++
	c.logger().WithField("attempt", c.session.RetryCount).Warnf("[update] check failed, retrying in %s: %v", wait, ue)
	c.publishErrorLocked(ue, &bridge.RetryInfo{
		Attempt:   c.session.RetryCount,
		Max:       max,
		BackoffMs: wait.Milliseconds(),
	})
}

func (c *Coordinator) finishCheck(epoch uint64, rel *models.Release, err error, cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(epoch) {
		return
	}
	c.releaseOpLocked()
	c.session.RetryCount = 0

	if err != nil {
		ue := classify(err, KindFeedUnreachable)
		c.session.State = models.StateCheckFailed
		c.logger().Errorf("[update] check failed: %v", ue)
		c.publishErrorLocked(ue, nil)
		return
	}

	now := c.now()
	c.session.LastChecked = &now
	c.session.LastError = ""

	if rel == nil {
		c.session.State = models.StateUpToDate
		c.logger().Infof("[update] up to date (v%s)", c.current)
		c.publishLocked(bridge.Event{Channel: bridge.ChannelUpdateNotAvailable})
		return
	}

	r := *rel
	c.session.Release = &r
	c.session.State = models.StateAwaitingDownloadConfirmation
	c.logger().Infof("[update] update available: v%s → v%s", c.current, r.Version)
	published := r
	c.publishLocked(bridge.Event{Channel: bridge.ChannelUpdateAvailable, Release: &published})

	if cfg.AutoDownload {
		c.startDownloadLocked()
	}
}

// --- download ---

func (c *Coordinator) startDownloadLocked() {
	ctx, epoch := c.beginOpLocked()
	c.session.State = models.StateDownloading
	c.session.DownloadRetryCount = 0
	c.session.Progress = &models.Progress{}
	rel := *c.session.Release
	cfg := c.cfg
	c.logger().Infof("[update] downloading v%s", rel.Version)

	c.wg.Add(1)
	go c.runDownload(ctx, epoch, rel, cfg)
}

func (c *Coordinator) runDownload(ctx context.Context, epoch uint64, rel models.Release, cfg Config) {
	defer c.wg.Done()

	attempt := 0
	var path string
	op := func() error {
		attempt++
		a := attempt
		c.beginAttempt(epoch, a, rel.Size)
		p, err := c.downloader.Download(ctx, rel, func(p models.Progress) {
			c.applyProgress(epoch, a, p)
		})
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		path = p
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.downloadAttemptFailed(epoch, err, wait, cfg.MaxDownloadRetries)
	}

	err := backoff.RetryNotifyWithTimer(op, retryPolicy(ctx, cfg.DownloadRetryBackoff, cfg.MaxDownloadRetries), notify, c.newTimer())
	c.finishDownload(epoch, rel, path, err)
}

// beginAttempt resets progress to zero for a new download attempt.
func (c *Coordinator) beginAttempt(epoch uint64, attempt int, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(epoch) || c.session.State != models.StateDownloading {
		return
	}
	c.session.Progress = &models.Progress{TotalBytes: size, Attempt: attempt}
	p := *c.session.Progress
	c.publishLocked(bridge.Event{Channel: bridge.ChannelDownloadProgress, Progress: &p})
}

// applyProgress records p if it belongs to the running attempt. Percent
// never decreases within an attempt; regressions are dropped.
func (c *Coordinator) applyProgress(epoch uint64, attempt int, p models.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(epoch) || c.session.State != models.StateDownloading {
		return
	}
	cur := c.session.Progress
	if cur == nil || cur.Attempt != attempt {
		return
	}
	if p.Percent > 100 {
		p.Percent = 100
	}
	if p.Percent < cur.Percent {
		return
	}
	if p.Percent == cur.Percent && p.TransferredBytes <= cur.TransferredBytes {
		return
	}
	p.Attempt = attempt
	c.session.Progress = &p
	emitted := p
	c.publishLocked(bridge.Event{Channel: bridge.ChannelDownloadProgress, Progress: &emitted})
}

func (c *Coordinator) downloadAttemptFailed(epoch uint64, err error, wait time.Duration, max int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(epoch) {
		return
	}
	ue := classify(err, KindDownloadFailed)
	c.session.DownloadRetryCount++
	c.logger().WithField("attempt", c.session.DownloadRetryCount).Warnf("[update] download failed, retrying in %s: %v", wait, ue)
	c.publishErrorLocked(ue, &bridge.RetryInfo{
		Attempt:   c.session.DownloadRetryCount,
		Max:       max,
		BackoffMs: wait.Milliseconds(),
	})
}

func (c *Coordinator) finishDownload(epoch uint64, rel models.Release, path string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(epoch) {
		if path != "" {
			removePayload(path)
		}
		return
	}
	c.releaseOpLocked()
	c.session.DownloadRetryCount = 0
	c.session.Progress = nil

	if err != nil {
		ue := classify(err, KindDownloadFailed)
		c.session.State = models.StateDownloadFailed
		c.logger().Errorf("[update] download failed: %v", ue)
		c.publishErrorLocked(ue, nil)
		return
	}

	c.session.PayloadPath = path
	c.session.LastError = ""
	c.session.State = models.StateReadyToInstall
	c.logger().Infof("[update] v%s ready to install", rel.Version)
	c.publishLocked(bridge.Event{Channel: bridge.ChannelUpdateDownloaded, Release: &rel})
}

// --- install ---

func (c *Coordinator) finishInstall(epoch uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return
	}
	c.releaseOpLocked()
	if err == nil {
		c.logger().Info("[update] install complete, restarting")
		return
	}
	ue := classify(err, KindInstallFailed)
	if ue.Kind != KindInstallFailed {
		ue = NewError(KindInstallFailed, err)
	}
	c.session.State = models.StateInstallFailed
	c.logger().Errorf("[update] install failed: %v", ue)
	c.publishErrorLocked(ue, nil)
}
