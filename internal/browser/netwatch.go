// File: internal/browser/netwatch.go
package browser

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// NetWatcher listens to CDP network events on a tab. It tracks in flight
// requests so callers can wait for the page to go quiet, and records
// response URLs so callers can wait for a specific backend call to land.
type NetWatcher struct {
	logger *zap.Logger

	// The context for the browser tab this watcher is attached to.
	tabCtx context.Context
	// A separate context for the listener goroutine so it can be stopped cleanly.
	listenerCtx    context.Context
	cancelListener context.CancelFunc

	inflight     map[network.RequestID]bool
	responseURLs []string
	// dropped counts response URLs evicted from the front of the history, so
	// WaitForResponse cursors stay valid across trims.
	dropped int
	lock    sync.RWMutex

	isStarted bool
}

// NewNetWatcher creates a watcher for a specific tab context.
func NewNetWatcher(tabCtx context.Context, logger *zap.Logger) *NetWatcher {
	return &NetWatcher{
		tabCtx:   tabCtx,
		logger:   logger.Named("netwatch"),
		inflight: make(map[network.RequestID]bool),
	}
}

// Start kicks off the event listening process.
func (w *NetWatcher) Start() error {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.isStarted {
		return nil
	}

	// Derived from the tab context, so if the tab dies the listener dies.
	w.listenerCtx, w.cancelListener = context.WithCancel(w.tabCtx)

	go w.listen()

	if err := chromedp.Run(w.tabCtx, network.Enable()); err != nil {
		w.cancelListener()
		return err
	}

	w.isStarted = true
	w.logger.Debug("Network watcher started.")
	return nil
}

// maxTrackedResponses bounds the response URL history. A chatty single-page
// app produces an endless stream of responses; only the recent tail matters
// for WaitForResponse.
const maxTrackedResponses = 512

// listen is the main event loop that receives and dispatches CDP events.
func (w *NetWatcher) listen() {
	chromedp.ListenTarget(w.listenerCtx, w.handleEvent)
}

func (w *NetWatcher) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		w.lock.Lock()
		w.inflight[e.RequestID] = true
		w.lock.Unlock()
	case *network.EventResponseReceived:
		w.lock.Lock()
		w.responseURLs = append(w.responseURLs, e.Response.URL)
		if overflow := len(w.responseURLs) - maxTrackedResponses; overflow > 0 {
			w.responseURLs = append(w.responseURLs[:0:0], w.responseURLs[overflow:]...)
			w.dropped += overflow
		}
		w.lock.Unlock()
	case *network.EventLoadingFinished:
		w.lock.Lock()
		delete(w.inflight, e.RequestID)
		w.lock.Unlock()
	case *network.EventLoadingFailed:
		w.lock.Lock()
		delete(w.inflight, e.RequestID)
		w.lock.Unlock()
	}
}

// Stop halts event collection.
func (w *NetWatcher) Stop() {
	w.lock.Lock()
	defer w.lock.Unlock()

	if !w.isStarted {
		return
	}
	if w.cancelListener != nil {
		w.cancelListener()
		w.cancelListener = nil
	}
	w.isStarted = false
	w.logger.Debug("Network watcher stopped.")
}

// WaitNetworkIdle polls until there have been no in flight requests for the
// full quiet period, or the context expires.
func (w *NetWatcher) WaitNetworkIdle(ctx context.Context, quietPeriod time.Duration) error {
	ticker := time.NewTicker(quietPeriod / 2)
	defer ticker.Stop()

	lastActivity := time.Now()
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("WaitNetworkIdle aborted.", zap.Error(ctx.Err()))
			return ctx.Err()
		case <-ticker.C:
			w.lock.RLock()
			inflightCount := len(w.inflight)
			w.lock.RUnlock()

			if inflightCount > 0 {
				lastActivity = time.Now()
				w.logger.Debug("Waiting for network idle...", zap.Int("inflight_requests", inflightCount))
			} else if time.Since(lastActivity) >= quietPeriod {
				return nil
			}
		}
	}
}

// WaitForResponse blocks until a response whose URL contains urlSubstring has
// been seen, or the timeout elapses. It reports presence rather than erroring.
func (w *NetWatcher) WaitForResponse(ctx context.Context, urlSubstring string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	cursor := 0

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		w.lock.RLock()
		start := cursor - w.dropped
		if start < 0 {
			start = 0
		}
		urls := w.responseURLs[start:]
		cursor = w.dropped + len(w.responseURLs)
		w.lock.RUnlock()

		for _, u := range urls {
			if strings.Contains(u, urlSubstring) {
				return true
			}
		}

		if time.Now().After(deadline) {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
