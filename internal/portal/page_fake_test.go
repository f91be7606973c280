// File: internal/portal/page_fake_test.go
package portal

import (
	"context"
	"time"
)

// fakePage is a scriptable Page for exercising the portal flows without a
// browser. Behavior is driven by the maps; unset entries fall back to zero
// values so each test only scripts what it cares about.
type fakePage struct {
	url  string
	html string
	text string

	texts      map[string][]string
	elements   map[string]string
	exists     map[string]bool
	options    map[string][]SelectOption
	values     map[string]string
	challenged bool

	clickErrs     map[string]error
	clickMatching map[string]bool

	waitElement map[string]bool
	waitEnabled map[string]bool

	navigations []string
	clicks      []string
	selections  map[string]string
	checks      map[string]bool
	scripts     []string
	backCalls   int

	// afterApplyClick lets a test mutate page state once the final apply
	// button has been clicked, to simulate the post-submission page.
	afterApplyClick func(p *fakePage)
}

func newFakePage() *fakePage {
	return &fakePage{
		texts:         map[string][]string{},
		elements:      map[string]string{},
		exists:        map[string]bool{},
		options:       map[string][]SelectOption{},
		values:        map[string]string{},
		clickErrs:     map[string]error{},
		clickMatching: map[string]bool{},
		waitElement:   map[string]bool{},
		waitEnabled:   map[string]bool{},
		selections:    map[string]string{},
		checks:        map[string]bool{},
	}
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.navigations = append(p.navigations, url)
	return nil
}

func (p *fakePage) Back(context.Context) error {
	p.backCalls++
	return nil
}

func (p *fakePage) CurrentURL(context.Context) (string, error) { return p.url, nil }
func (p *fakePage) PageHTML(context.Context) (string, error)   { return p.html, nil }
func (p *fakePage) PageText(context.Context) (string, error)   { return p.text, nil }

func (p *fakePage) Exists(_ context.Context, selector string) (bool, error) {
	return p.exists[selector], nil
}

func (p *fakePage) QueryTexts(_ context.Context, selector string) ([]string, error) {
	return p.texts[selector], nil
}

func (p *fakePage) ElementText(_ context.Context, selector string, _ int) (string, error) {
	return p.elements[selector], nil
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	p.clicks = append(p.clicks, selector)
	if err := p.clickErrs[selector]; err != nil {
		return err
	}
	if p.afterApplyClick != nil {
		for _, sel := range applyButtonSelectors {
			if sel == selector {
				p.afterApplyClick(p)
				break
			}
		}
	}
	return nil
}

func (p *fakePage) ClickIndexed(_ context.Context, selector string, _ int) error {
	p.clicks = append(p.clicks, selector)
	return p.clickErrs[selector]
}

func (p *fakePage) ClickMatching(_ context.Context, scopeSelector string, _ int, _, _ string) (bool, error) {
	return p.clickMatching[scopeSelector], nil
}

func (p *fakePage) Fill(_ context.Context, selector, value string) error {
	p.values[selector] = value
	return nil
}

func (p *fakePage) ReadValue(_ context.Context, selector string) (string, error) {
	return p.values[selector], nil
}

func (p *fakePage) SetChecked(_ context.Context, selector string, checked bool) error {
	p.checks[selector] = checked
	return nil
}

func (p *fakePage) SelectOptions(_ context.Context, selector string) ([]SelectOption, error) {
	return p.options[selector], nil
}

func (p *fakePage) SelectByValue(_ context.Context, selector, value string) error {
	p.selections[selector] = value
	return nil
}

func (p *fakePage) InjectScript(_ context.Context, script string) error {
	p.scripts = append(p.scripts, script)
	return nil
}

func (p *fakePage) Evaluate(_ context.Context, script string, _ interface{}) error {
	p.scripts = append(p.scripts, script)
	return nil
}

func (p *fakePage) WaitForElement(_ context.Context, selector string, _ time.Duration) bool {
	if v, ok := p.waitElement[selector]; ok {
		return v
	}
	return p.exists[selector]
}

func (p *fakePage) WaitForEnabled(_ context.Context, selector string, _ time.Duration) bool {
	if v, ok := p.waitEnabled[selector]; ok {
		return v
	}
	return p.exists[selector]
}

func (p *fakePage) WaitForCondition(ctx context.Context, predicate func(context.Context) bool, _ time.Duration) bool {
	return predicate(ctx)
}

func (p *fakePage) WaitForResponse(context.Context, string, time.Duration) bool { return true }
func (p *fakePage) WaitIdle(context.Context) error                             { return nil }

func (p *fakePage) WaitForChallenge(context.Context) (bool, error) {
	return p.challenged, nil
}

func (p *fakePage) ScrollTop(context.Context) error    { return nil }
func (p *fakePage) ScrollBottom(context.Context) error { return nil }
