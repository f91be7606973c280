// File: internal/portal/apply.go
package portal

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sbhusal-dev/meroapply/internal/config"
)

const (
	formLandmarkSelector = "app-issue, form, #appliedKitta"
	rowControlSelector   = `button, a, [role="button"], td button, td a`
)

// MatchedOffering is an offering that passed the eligibility check, with
// enough identity to relocate it on another account's offerings page.
type MatchedOffering struct {
	Details     *OfferingDetails
	CompanyName string
	RowIndex    int
}

// Applicator runs the per-account application flow against an open portal
// session: find the offering, open its form, fill it, and submit.
type Applicator struct {
	page    Page
	scanner *Scanner
	logger  *zap.Logger
}

// NewApplicator creates an applicator sharing the scanner's page.
func NewApplicator(page Page, scanner *Scanner, logger *zap.Logger) *Applicator {
	return &Applicator{page: page, scanner: scanner, logger: logger.Named("applicator")}
}

// OpenCandidate opens the application form for a candidate row. It prefers
// an apply control inside the row and falls back to clicking the row itself
// when the row text suggests it is clickable. The form landmark must appear
// for the open to count.
func (a *Applicator) OpenCandidate(ctx context.Context, cand OfferingCandidate) (bool, error) {
	clicked, err := a.page.ClickMatching(ctx, cand.Selector, cand.Index, rowControlSelector, "apply")
	if err != nil {
		return false, fmt.Errorf("could not click apply control: %w", err)
	}

	if !clicked && strings.Contains(strings.ToLower(cand.Text), "apply") {
		if err := a.page.ClickIndexed(ctx, cand.Selector, cand.Index); err == nil {
			clicked = true
		}
	}
	if !clicked {
		return false, nil
	}

	if err := a.page.WaitIdle(ctx); err != nil && ctx.Err() != nil {
		return false, ctx.Err()
	}
	if !a.page.WaitForElement(ctx, formLandmarkSelector, waitShort) {
		return false, nil
	}
	if err := a.page.ScrollTop(ctx); err != nil && ctx.Err() != nil {
		return false, ctx.Err()
	}
	return true, nil
}

// FindMatching opens each candidate in turn and returns the first offering
// that passes the eligibility check. Non-matching candidates are backed out
// of so the list stays navigable.
func (a *Applicator) FindMatching(ctx context.Context, candidates []OfferingCandidate) (*MatchedOffering, error) {
	for idx, cand := range candidates {
		a.logger.Info("Checking offering.", zap.Int("index", idx+1), zap.Int("total", len(candidates)))

		opened, err := a.OpenCandidate(ctx, cand)
		if err != nil {
			return nil, err
		}
		if !opened {
			continue
		}

		details, err := ExtractDetails(ctx, a.page)
		if err != nil {
			a.logger.Warn("Could not extract offering details.", zap.Error(err))
			a.backOut(ctx)
			continue
		}

		if CheckConditions(details) {
			details.CompanyName = CompanyName(ctx, a.page)
			a.logger.Info("Matching offering found.", zap.String("company", details.CompanyName))
			return &MatchedOffering{
				Details:     details,
				CompanyName: details.CompanyName,
				RowIndex:    idx,
			}, nil
		}

		a.backOut(ctx)
	}

	a.logger.Info("No offering matched the eligibility conditions.",
		zap.Int("checked", len(candidates)))
	return nil, nil
}

// backOut returns from an open form to the offerings list.
func (a *Applicator) backOut(ctx context.Context) {
	if err := a.page.Back(ctx); err != nil {
		a.logger.Debug("History back failed, renavigating to offerings.", zap.Error(err))
		if err := a.scanner.NavigateToOfferings(ctx); err != nil {
			a.logger.Warn("Could not return to offerings page.", zap.Error(err))
		}
	}
}

// ApplyForAccount relocates the target offering on the current account's
// offerings page and runs the full application: open, re-verify eligibility,
// fill, submit. The returned error carries the failure category for
// notifications.
func (a *Applicator) ApplyForAccount(ctx context.Context, account config.Account, target MatchedOffering) error {
	if err := a.scanner.NavigateToOfferings(ctx); err != nil {
		return fmt.Errorf("offerings page unreachable: %w", err)
	}

	hasOfferings, candidates, err := a.scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("offerings scan failed: %w", err)
	}
	if !hasOfferings || len(candidates) == 0 {
		return fmt.Errorf("no offerings on page (may already have applied)")
	}

	cand := locateCandidate(candidates, target)

	opened, err := a.OpenCandidate(ctx, cand)
	if err != nil {
		return fmt.Errorf("could not open application form: %w", err)
	}
	if !opened {
		return fmt.Errorf("apply control not found or click failed")
	}

	details, err := ExtractDetails(ctx, a.page)
	if err != nil {
		return fmt.Errorf("detail extraction failed: %w", err)
	}
	if !CheckConditions(details) {
		return fmt.Errorf("offering no longer meets eligibility conditions")
	}

	form := NewForm(a.page, a.logger)
	if err := form.Fill(ctx, account); err != nil {
		return fmt.Errorf("form fill failed: %w", err)
	}
	if err := form.Submit(ctx, account.TransactionPIN); err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}

	a.logger.Info("Application submitted.",
		zap.String("account", account.Label()),
		zap.String("company", target.CompanyName))
	return nil
}

// locateCandidate finds the target offering in a fresh candidate list, by
// company name first, then by the remembered index, then the first row.
func locateCandidate(candidates []OfferingCandidate, target MatchedOffering) OfferingCandidate {
	if target.CompanyName != "" && target.CompanyName != unknownCompany {
		needle := strings.ToLower(target.CompanyName)
		for _, cand := range candidates {
			if strings.Contains(strings.ToLower(cand.Text), needle) {
				return cand
			}
		}
	}
	if target.RowIndex >= 0 && target.RowIndex < len(candidates) {
		return candidates[target.RowIndex]
	}
	return candidates[0]
}
