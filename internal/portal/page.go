// File: internal/portal/page.go

// Package portal drives the brokerage web portal: login, offering discovery,
// eligibility checks, and the two phase application submit. All DOM access
// goes through the Page interface so the flows can be tested without a
// browser.
package portal

import (
	"context"
	"time"
)

// SelectOption is one entry of a select element.
type SelectOption struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}

// Page is the set of DOM primitives the portal flows need from a browser tab.
// Waits report absence as a boolean result; only transport level problems
// surface as errors.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Back(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)
	PageHTML(ctx context.Context) (string, error)
	PageText(ctx context.Context) (string, error)

	Exists(ctx context.Context, selector string) (bool, error)
	QueryTexts(ctx context.Context, selector string) ([]string, error)
	ElementText(ctx context.Context, selector string, index int) (string, error)

	Click(ctx context.Context, selector string) error
	ClickIndexed(ctx context.Context, selector string, index int) error
	ClickMatching(ctx context.Context, scopeSelector string, scopeIndex int, candidateSelector, textContains string) (bool, error)

	Fill(ctx context.Context, selector, value string) error
	ReadValue(ctx context.Context, selector string) (string, error)
	SetChecked(ctx context.Context, selector string, checked bool) error
	SelectOptions(ctx context.Context, selector string) ([]SelectOption, error)
	SelectByValue(ctx context.Context, selector, value string) error

	InjectScript(ctx context.Context, script string) error
	Evaluate(ctx context.Context, script string, res interface{}) error

	WaitForElement(ctx context.Context, selector string, timeout time.Duration) bool
	WaitForEnabled(ctx context.Context, selector string, timeout time.Duration) bool
	WaitForCondition(ctx context.Context, predicate func(context.Context) bool, timeout time.Duration) bool
	WaitForResponse(ctx context.Context, urlSubstring string, timeout time.Duration) bool
	WaitIdle(ctx context.Context) error
	WaitForChallenge(ctx context.Context) (bool, error)

	ScrollTop(ctx context.Context) error
	ScrollBottom(ctx context.Context) error
}
