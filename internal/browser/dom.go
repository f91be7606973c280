// File: internal/browser/dom.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/sbhusal-dev/meroapply/internal/portal"
)

// Session provides the generic DOM primitives the portal layer drives the
// page through. Everything goes through JS evaluation so the same code paths
// work whether or not elements sit inside framework rendered markup.

var _ portal.Page = (*Session)(nil)

// Back navigates one entry back in the tab's history and waits for the page
// to settle.
func (s *Session) Back(ctx context.Context) error {
	if err := s.runActions(ctx, chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("history back failed: %w", err)
	}
	return s.stabilize(ctx)
}

// CurrentURL returns the working tab's location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.runActions(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return url, nil
}

// PageHTML returns the full outer HTML of the current document.
func (s *Session) PageHTML(ctx context.Context) (string, error) {
	var html string
	if err := s.runActions(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to capture page HTML: %w", err)
	}
	return html, nil
}

// PageText returns the rendered text of the document body.
func (s *Session) PageText(ctx context.Context) (string, error) {
	var text string
	if err := s.Evaluate(ctx, jsPageText(), &text); err != nil {
		return "", fmt.Errorf("failed to capture page text: %w", err)
	}
	return text, nil
}

// Exists reports whether at least one element matches the selector.
func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	if err := s.Evaluate(ctx, jsExists(selector), &found); err != nil {
		return false, fmt.Errorf("existence check failed for %q: %w", selector, err)
	}
	return found, nil
}

// QueryTexts returns the trimmed text of every element matching the selector.
func (s *Session) QueryTexts(ctx context.Context, selector string) ([]string, error) {
	var texts []string
	if err := s.Evaluate(ctx, jsQueryTexts(selector), &texts); err != nil {
		return nil, fmt.Errorf("text query failed for %q: %w", selector, err)
	}
	return texts, nil
}

// ElementText returns the text of the index-th element matching the selector.
// A missing element yields an empty string, not an error.
func (s *Session) ElementText(ctx context.Context, selector string, index int) (string, error) {
	var text *string
	if err := s.Evaluate(ctx, jsElementText(selector, index), &text); err != nil {
		return "", fmt.Errorf("element text read failed for %q[%d]: %w", selector, index, err)
	}
	if text == nil {
		return "", nil
	}
	return *text, nil
}

// Click clicks the first element matching the selector, falling back to a JS
// dispatched click when the trusted click cannot land.
func (s *Session) Click(ctx context.Context, selector string) error {
	s.logger.Debug("Clicking element.", zap.String("selector", selector))

	clickCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	err := s.runActions(clickCtx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.Debug("Trusted click failed, falling back to JS click.",
		zap.String("selector", selector), zap.Error(err))
	return s.ClickIndexed(ctx, selector, 0)
}

// ClickIndexed clicks the index-th element matching the selector via JS.
func (s *Session) ClickIndexed(ctx context.Context, selector string, index int) error {
	var clicked bool
	if err := s.Evaluate(ctx, jsClickIndexed(selector, index), &clicked); err != nil {
		return fmt.Errorf("JS click failed for %q[%d]: %w", selector, index, err)
	}
	if !clicked {
		return fmt.Errorf("no element at %q[%d] to click", selector, index)
	}
	return nil
}

// ClickMatching clicks the first candidate under the scoped element whose
// text contains the needle. It reports whether anything was clicked.
func (s *Session) ClickMatching(ctx context.Context, scopeSelector string, scopeIndex int, candidateSelector, textContains string) (bool, error) {
	var clicked bool
	script := jsClickMatching(scopeSelector, scopeIndex, candidateSelector, textContains)
	if err := s.Evaluate(ctx, script, &clicked); err != nil {
		return false, fmt.Errorf("scoped click failed for %q[%d] %q: %w", scopeSelector, scopeIndex, candidateSelector, err)
	}
	return clicked, nil
}

// Fill writes a value into the matched input and fires input/change events.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	var ok bool
	if err := s.Evaluate(ctx, jsSetValue(selector, value), &ok); err != nil {
		return fmt.Errorf("fill failed for %q: %w", selector, err)
	}
	if !ok {
		return fmt.Errorf("no element matching %q to fill", selector)
	}
	return nil
}

// ReadValue reads the current value of the matched input.
func (s *Session) ReadValue(ctx context.Context, selector string) (string, error) {
	var value *string
	if err := s.Evaluate(ctx, jsReadValue(selector), &value); err != nil {
		return "", fmt.Errorf("value read failed for %q: %w", selector, err)
	}
	if value == nil {
		return "", nil
	}
	return *value, nil
}

// SetChecked drives a checkbox to the wanted state.
func (s *Session) SetChecked(ctx context.Context, selector string, checked bool) error {
	var ok bool
	if err := s.Evaluate(ctx, jsSetChecked(selector, checked), &ok); err != nil {
		return fmt.Errorf("checkbox update failed for %q: %w", selector, err)
	}
	if !ok {
		return fmt.Errorf("could not set %q checked=%v", selector, checked)
	}
	return nil
}

// SelectOptions lists the options of the matched select element.
func (s *Session) SelectOptions(ctx context.Context, selector string) ([]portal.SelectOption, error) {
	var options []portal.SelectOption
	if err := s.Evaluate(ctx, jsSelectOptions(selector), &options); err != nil {
		return nil, fmt.Errorf("option listing failed for %q: %w", selector, err)
	}
	return options, nil
}

// SelectByValue picks an option by value and dispatches a change event.
func (s *Session) SelectByValue(ctx context.Context, selector, value string) error {
	var ok bool
	if err := s.Evaluate(ctx, jsSelectByValue(selector, value), &ok); err != nil {
		return fmt.Errorf("select failed for %q: %w", selector, err)
	}
	if !ok {
		return fmt.Errorf("value %q not accepted by select %q", value, selector)
	}
	return nil
}

// InjectScript adds a script that executes on every new document in the tab.
func (s *Session) InjectScript(ctx context.Context, script string) error {
	var scriptID page.ScriptIdentifier
	err := s.runActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		scriptID, err = page.AddScriptToEvaluateOnNewDocument(script).Do(c)
		return err
	}))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("could not inject persistent script: %w", err)
	}
	s.logger.Debug("Injected persistent script.", zap.String("script_id", string(scriptID)))

	// Also evaluate in the current document so an already loaded page gets it.
	return s.Evaluate(ctx, script, nil)
}

// Evaluate runs a snippet of JavaScript in the current document and
// optionally unmarshals the result into res.
func (s *Session) Evaluate(ctx context.Context, script string, res interface{}) error {
	return s.runActions(ctx, chromedp.Evaluate(script, res))
}

// WaitForElement polls until the selector matches something or the timeout
// elapses. Absence is a result, not an error.
func (s *Session) WaitForElement(ctx context.Context, selector string, timeout time.Duration) bool {
	return s.WaitForCondition(ctx, func(c context.Context) bool {
		found, err := s.Exists(c, selector)
		return err == nil && found
	}, timeout)
}

// WaitForEnabled polls until the selector matches a visible, enabled element.
func (s *Session) WaitForEnabled(ctx context.Context, selector string, timeout time.Duration) bool {
	return s.WaitForCondition(ctx, func(c context.Context) bool {
		var ready bool
		if err := s.Evaluate(c, jsIsEnabledVisible(selector), &ready); err != nil {
			return false
		}
		return ready
	}, timeout)
}

// WaitForCondition polls the predicate until it holds or the timeout elapses.
func (s *Session) WaitForCondition(ctx context.Context, predicate func(context.Context) bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		if predicate(ctx) {
			return true
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

// WaitForResponse blocks until a response whose URL contains the substring
// has been observed on this tab.
func (s *Session) WaitForResponse(ctx context.Context, urlSubstring string, timeout time.Duration) bool {
	if s.watcher == nil {
		return false
	}
	return s.watcher.WaitForResponse(ctx, urlSubstring, timeout)
}

// WaitIdle waits for in flight network activity on the tab to settle.
func (s *Session) WaitIdle(ctx context.Context) error {
	return s.stabilize(ctx)
}

// ScrollTop scrolls the page to the top.
func (s *Session) ScrollTop(ctx context.Context) error {
	return s.Evaluate(ctx, `window.scrollTo({top: 0});`, nil)
}

// ScrollBottom scrolls the page to the bottom.
func (s *Session) ScrollBottom(ctx context.Context) error {
	return s.Evaluate(ctx, `window.scrollTo({top: document.body.scrollHeight});`, nil)
}
