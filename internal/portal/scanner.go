// File: internal/portal/scanner.go
package portal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	asbaPath         = "/#/asba"
	asbaLinkSelector = `a[href="#/asba"]`

	rowsOrEmptySelector = "table tbody tr, tbody tr, app-no-records-found"
	noRecordsSelector   = "app-no-records-found .fallback-title-message, .no-records, [class*='no-record']"
)

// Row selector chain, most structured first. The last entry is only consulted
// through keyword filtering.
var rowSelectorChain = []string{
	"table tbody tr",
	"tbody tr",
	"tr[role='row']",
}

const fallbackRowSelector = "tr, .card, [role='row'], .row"

var fallbackRowKeywords = []string{"apply", "ipo", "issue", "share"}

// Header rows never carry one of these without also being a data row.
var headerKeywords = []string{"company", "issue", "type", "price", "action"}
var dataRowKeywords = []string{"apply", "view", "details"}

// OfferingCandidate identifies one row on the offerings page. The row is
// addressed by the selector that produced it plus its position, since the
// page may re-render between scan and click.
type OfferingCandidate struct {
	Selector string
	Index    int
	Text     string
}

// Scanner discovers open offerings on the portal's application page.
type Scanner struct {
	page    Page
	baseURL string
	logger  *zap.Logger
}

// NewScanner creates a scanner bound to a page.
func NewScanner(page Page, baseURL string, logger *zap.Logger) *Scanner {
	return &Scanner{
		page:    page,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger.Named("scanner"),
	}
}

// NavigateToOfferings moves the portal to the application section, preferring
// the in-page navigation link over a full page load.
func (s *Scanner) NavigateToOfferings(ctx context.Context) error {
	if s.page.WaitForElement(ctx, asbaLinkSelector, 15*time.Second) {
		if err := s.page.Click(ctx, asbaLinkSelector); err == nil {
			if err := s.page.WaitIdle(ctx); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Debug("Navigated to offerings via menu link.")
			return nil
		}
	}

	if err := s.page.Navigate(ctx, s.baseURL+asbaPath); err != nil {
		return fmt.Errorf("could not open offerings page: %w", err)
	}
	return nil
}

// Scan inspects the offerings page and returns the candidate rows. A false
// first return means the portal explicitly reported no open offerings.
func (s *Scanner) Scan(ctx context.Context) (bool, []OfferingCandidate, error) {
	s.page.WaitForElement(ctx, rowsOrEmptySelector, 15*time.Second)

	if text, err := s.page.ElementText(ctx, noRecordsSelector, 0); err == nil && text != "" {
		if strings.Contains(strings.ToLower(text), "no record") {
			s.logger.Info("Portal reports no open offerings.")
			return false, nil, nil
		}
	}

	candidates, err := s.collectRows(ctx)
	if err != nil {
		return false, nil, err
	}

	candidates = filterHeaderRows(candidates)
	if len(candidates) == 0 {
		s.logger.Warn("No offering rows found with any selector.")
		if html, err := s.page.PageHTML(ctx); err == nil {
			lower := strings.ToLower(html)
			if strings.Contains(lower, "apply") || strings.Contains(lower, "ipo") {
				s.logger.Warn("Page mentions offerings but no rows matched; table may still be loading.")
			}
		}
		return false, nil, nil
	}

	s.logger.Info("Found offering rows.", zap.Int("count", len(candidates)))
	return true, candidates, nil
}

// collectRows walks the selector chain until one of them yields rows, then
// falls back to a keyword filtered sweep over loosely structured markup.
func (s *Scanner) collectRows(ctx context.Context) ([]OfferingCandidate, error) {
	for _, sel := range rowSelectorChain {
		texts, err := s.page.QueryTexts(ctx, sel)
		if err != nil {
			return nil, fmt.Errorf("row query failed for %q: %w", sel, err)
		}
		if len(texts) == 0 {
			continue
		}
		s.logger.Debug("Rows located.", zap.String("selector", sel), zap.Int("count", len(texts)))
		return toCandidates(sel, texts), nil
	}

	texts, err := s.page.QueryTexts(ctx, fallbackRowSelector)
	if err != nil {
		return nil, fmt.Errorf("fallback row query failed: %w", err)
	}
	var out []OfferingCandidate
	for i, text := range texts {
		lower := strings.ToLower(text)
		for _, kw := range fallbackRowKeywords {
			if strings.Contains(lower, kw) {
				out = append(out, OfferingCandidate{Selector: fallbackRowSelector, Index: i, Text: text})
				break
			}
		}
	}
	s.logger.Debug("Rows located via filtered fallback.", zap.Int("count", len(out)))
	return out, nil
}

func toCandidates(selector string, texts []string) []OfferingCandidate {
	out := make([]OfferingCandidate, 0, len(texts))
	for i, text := range texts {
		out = append(out, OfferingCandidate{Selector: selector, Index: i, Text: text})
	}
	return out
}

// filterHeaderRows drops rows that look like column headers. If filtering
// would drop everything, the original set is kept so a quirkily labeled table
// still gets processed.
func filterHeaderRows(candidates []OfferingCandidate) []OfferingCandidate {
	if len(candidates) == 0 {
		return candidates
	}
	var filtered []OfferingCandidate
	for _, cand := range candidates {
		lower := strings.ToLower(cand.Text)
		if containsAny(lower, headerKeywords) {
			continue
		}
		if containsAny(lower, dataRowKeywords) || len(lower) > 20 {
			filtered = append(filtered, cand)
		}
	}
	if len(filtered) == 0 {
		return candidates
	}
	return filtered
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
