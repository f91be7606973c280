// File: internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sbhusal-dev/meroapply/internal/config"
)

// Transient navigation failures worth retrying. Anything else fails fast.
var retryableNavErrors = []string{
	"net::ERR_NETWORK_CHANGED",
	"net::ERR_CONNECTION_RESET",
	"net::ERR_CONNECTION_REFUSED",
	"net::ERR_INTERNET_DISCONNECTED",
	"net::ERR_NAME_NOT_RESOLVED",
}

// Selectors probed for an interactive challenge, most specific first.
var challengeSelectors = []string{
	"iframe[src*='recaptcha']",
	"iframe[src*='hcaptcha']",
	".g-recaptcha",
	"#captcha",
	"[class*='captcha']",
}

// Session owns one browser process and its active tab. ResetPage swaps the
// tab while keeping the process alive, which is how account switches stay
// isolated without paying a full browser restart.
type Session struct {
	id     string
	logger *zap.Logger
	cfg    *config.Config

	allocCtx    context.Context
	allocCancel context.CancelFunc
	// anchorCtx holds the browser open; it is never navigated.
	anchorCtx    context.Context
	anchorCancel context.CancelFunc

	tabCtx    context.Context
	tabCancel context.CancelFunc
	watcher   *NetWatcher

	// navigate performs one load attempt; swappable so the retry policy can
	// be exercised without a browser.
	navigate func(ctx context.Context, url string) error

	mu       sync.Mutex
	isClosed bool
}

// NewSession creates a session wrapper. The browser is not launched until Open.
func NewSession(cfg *config.Config, logger *zap.Logger) *Session {
	sessionID := uuid.New().String()
	s := &Session{
		id:     sessionID,
		cfg:    cfg,
		logger: logger.Named("browser").With(zap.String("session_id", sessionID)),
	}
	s.navigate = s.navigateOnce
	return s
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// Open launches the browser process and the first working tab. If any stage
// of acquisition fails, everything acquired so far is released before the
// error is returned.
func (s *Session) Open(ctx context.Context) error {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", s.cfg.Browser.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if s.cfg.Browser.DisableCache {
		opts = append(opts, chromedp.Flag("disable-application-cache", true))
	}
	if s.cfg.Browser.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(s.cfg.Browser.ExecPath))
	}
	for _, arg := range s.cfg.Browser.Args {
		trimmed := strings.TrimPrefix(arg, "--")
		if key, val, found := strings.Cut(trimmed, "="); found {
			opts = append(opts, chromedp.Flag(key, val))
		} else {
			opts = append(opts, chromedp.Flag(trimmed, true))
		}
	}

	s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(ctx, opts...)

	ctxOpts := []chromedp.ContextOption{}
	if s.cfg.Browser.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(s.logger.Sugar().Debugf))
	}
	s.anchorCtx, s.anchorCancel = chromedp.NewContext(s.allocCtx, ctxOpts...)

	// Starting the anchor target launches the actual browser process.
	if err := chromedp.Run(s.anchorCtx); err != nil {
		s.releaseAll()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	if err := s.openTab(); err != nil {
		s.releaseAll()
		return err
	}

	s.logger.Info("Browser session opened.", zap.Bool("headless", s.cfg.Browser.Headless))
	return nil
}

// openTab creates a fresh working tab and attaches a network watcher to it.
func (s *Session) openTab() error {
	s.tabCtx, s.tabCancel = chromedp.NewContext(s.anchorCtx)
	if err := chromedp.Run(s.tabCtx); err != nil {
		s.tabCancel()
		return fmt.Errorf("failed to open tab: %w", err)
	}

	s.watcher = NewNetWatcher(s.tabCtx, s.logger)
	if err := s.watcher.Start(); err != nil {
		s.tabCancel()
		return fmt.Errorf("failed to start network watcher: %w", err)
	}
	return nil
}

// ResetPage clears browser cookies, closes the working tab, and opens a new
// one. Call between accounts so nothing leaks from one login to the next.
func (s *Session) ResetPage(ctx context.Context) error {
	s.logger.Debug("Resetting page state.")

	if err := s.runActions(ctx, network.ClearBrowserCookies()); err != nil {
		s.logger.Warn("Could not clear browser cookies.", zap.Error(err))
	}

	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.tabCancel != nil {
		s.tabCancel()
	}

	if err := s.openTab(); err != nil {
		return fmt.Errorf("failed to reopen tab after reset: %w", err)
	}
	return nil
}

// Close terminates the browser session. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")

	if s.watcher != nil {
		s.watcher.Stop()
	}
	s.releaseAll()
	return nil
}

func (s *Session) releaseAll() {
	if s.tabCancel != nil {
		s.tabCancel()
		s.tabCancel = nil
	}
	if s.anchorCancel != nil {
		s.anchorCancel()
		s.anchorCancel = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
	}
}

// Navigate loads the URL and waits for the page to stabilize. Transient
// network class failures are retried with a linearly growing backoff;
// anything else fails on the first attempt.
func (s *Session) Navigate(ctx context.Context, url string) error {
	attempts := s.cfg.Network.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = s.navigate(ctx, url)
		if lastErr == nil {
			return nil
		}
		if !isRetryableNavError(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		backoff := navBackoff(s.cfg.Network.RetryBackoff, attempt)
		s.logger.Warn("Navigation hit a transient network error, retrying.",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("navigation to %s failed after %d attempts: %w", url, attempts, lastErr)
}

func (s *Session) navigateOnce(ctx context.Context, url string) error {
	opCtx, opCancel := CombineContext(s.tabCtx, ctx)
	defer opCancel()

	navTimeout := s.cfg.Network.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 90 * time.Second
	}
	navCtx, navCancel := context.WithTimeout(opCtx, navTimeout)
	defer navCancel()

	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigation timed out after %s: %w", navTimeout, err)
		}
		if opCtx.Err() != nil {
			return fmt.Errorf("navigation canceled: %w", opCtx.Err())
		}
		return fmt.Errorf("navigation failed: %w", err)
	}

	if err := s.stabilize(opCtx); err != nil {
		if opCtx.Err() != nil {
			return opCtx.Err()
		}
		s.logger.Warn("Page stabilization failed after navigation (non-critical).", zap.Error(err))
	}
	return nil
}

// stabilize waits for the page state to settle (DOM ready and network idle).
func (s *Session) stabilize(ctx context.Context) error {
	idleTimeout := s.cfg.Network.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Second
	}
	stabCtx, cancel := context.WithTimeout(ctx, idleTimeout)
	defer cancel()

	if err := chromedp.Run(stabCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("WaitReady failed during stabilization.", zap.Error(err))
	}

	if s.watcher != nil {
		quiet := s.cfg.Network.IdleQuietPeriod
		if quiet <= 0 {
			quiet = 2 * time.Second
		}
		if err := s.watcher.WaitNetworkIdle(stabCtx, quiet); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Debug("Network idle wait failed during stabilization.", zap.Error(err))
		}
	}
	return nil
}

// WaitForChallenge probes for an interactive challenge on the current page.
// When one is present it holds for the configured grace period so a human
// can solve it, then reports that a challenge was seen.
func (s *Session) WaitForChallenge(ctx context.Context) (bool, error) {
	for _, sel := range challengeSelectors {
		present, err := s.Exists(ctx, sel)
		if err != nil {
			return false, err
		}
		if !present {
			continue
		}

		wait := s.cfg.Network.ChallengeWait
		if wait <= 0 {
			wait = 2 * time.Minute
		}
		s.logger.Warn("Challenge detected on page, waiting for manual intervention.",
			zap.String("selector", sel),
			zap.Duration("grace_period", wait))

		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case <-time.After(wait):
			return true, nil
		}
	}
	return false, nil
}

// runActions executes chromedp actions, respecting both the tab lifetime and
// the incoming request context.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.tabCtx, ctx)
	defer cancel()

	return chromedp.Run(runCtx, actions...)
}

// isRetryableNavError reports whether the navigation failure looks like a
// transient network problem.
func isRetryableNavError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, code := range retryableNavErrors {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}

// navBackoff returns the delay before the next navigation attempt. The delay
// grows linearly with the attempt number.
func navBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 10 * time.Second
	}
	return base * time.Duration(attempt)
}

// CombineContext derives a context canceled when either parent is done. The
// returned context inherits values (including the CDP target) from parentCtx.
func CombineContext(parentCtx, secondaryCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(parentCtx)

	go func() {
		select {
		case <-secondaryCtx.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
