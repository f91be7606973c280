// File: internal/browser/netwatch_test.go
package browser

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func responseEvent(url string) *network.EventResponseReceived {
	return &network.EventResponseReceived{Response: &network.Response{URL: url}}
}

func TestNetWatcherCapsResponseHistory(t *testing.T) {
	w := NewNetWatcher(context.Background(), zap.NewNop())

	for i := 0; i < maxTrackedResponses+100; i++ {
		w.handleEvent(responseEvent(fmt.Sprintf("https://portal.test/api/call-%d", i)))
	}

	w.lock.RLock()
	defer w.lock.RUnlock()
	assert.Len(t, w.responseURLs, maxTrackedResponses)
	assert.Equal(t, 100, w.dropped)
	// The oldest entries are evicted, the newest survives.
	assert.Equal(t, "https://portal.test/api/call-100", w.responseURLs[0])
	assert.Equal(t,
		fmt.Sprintf("https://portal.test/api/call-%d", maxTrackedResponses+99),
		w.responseURLs[len(w.responseURLs)-1])
}

func TestWaitForResponseAfterHistoryTrim(t *testing.T) {
	w := NewNetWatcher(context.Background(), zap.NewNop())

	w.handleEvent(responseEvent("https://portal.test/api/old-request"))
	for i := 0; i < maxTrackedResponses+50; i++ {
		w.handleEvent(responseEvent(fmt.Sprintf("https://portal.test/api/call-%d", i)))
	}
	w.handleEvent(responseEvent("https://portal.test/api/meroShare/auth/"))

	assert.True(t, w.WaitForResponse(context.Background(), "/auth", 100*time.Millisecond))
	// The evicted URL is no longer findable.
	assert.False(t, w.WaitForResponse(context.Background(), "old-request", 50*time.Millisecond))
}
