// File: internal/portal/form.go
package portal

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sbhusal-dev/meroapply/internal/config"
)

const (
	kittaSelector      = `#appliedKitta, input[name="appliedKitta"]`
	bankSelectSelector = `#selectBank, select[name="selectBank"]`
	bankSelectID       = "#selectBank"
	accountSelector    = `select[name*="account" i], select[id*="account" i]`
	crnSelector        = `#crnNumber, input[name="crnNumber"]`
	disclaimerSelector = `#disclaimer, input[name="disclaimer"]`

	proceedSelector = `button[type="submit"]:not([disabled])`
	pinSelector     = `#transactionPIN, input[name="transactionPIN"], input[id*="transaction"], input[name*="transaction"]`
	pinPresentID    = "#transactionPIN"

	errorIndicatorSelector   = `.error, .alert-danger, [class*="error"]`
	successIndicatorSelector = `.success, .alert-success, [class*="success"]`
)

// Apply button selectors, most specific first. Later entries are only used
// when the earlier, stricter ones match nothing.
var applyButtonSelectors = []string{
	`button.btn-primary[type="submit"]:not([disabled])`,
	`button[type="submit"].btn-primary:not([disabled])`,
	`button.btn-gap.btn-primary[type="submit"]:not([disabled])`,
	`button.btn-primary[type="submit"]`,
	`button[type="submit"]:not([disabled])`,
	`button[type="submit"]`,
}

var submitErrorKeywords = []string{"error", "failed", "invalid"}
var submitPageErrorKeywords = []string{"error occurred", "failed", "invalid"}
var submitSuccessKeywords = []string{"success", "submitted", "applied"}

// Form fills and submits one offering application.
type Form struct {
	page   Page
	logger *zap.Logger
}

// NewForm creates a form handler bound to a page with an open application.
func NewForm(page Page, logger *zap.Logger) *Form {
	return &Form{page: page, logger: logger.Named("form")}
}

// Fill populates the application form for the account: unit count, bank and
// account selection, CRN, and the disclaimer. An unmatched bank is a hard
// failure; nothing must reach submission with the wrong bank.
func (f *Form) Fill(ctx context.Context, account config.Account) error {
	if err := f.page.ScrollTop(ctx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	kitta := account.AppliedKitta
	if kitta <= 0 {
		kitta = 10
	}
	if err := f.page.Fill(ctx, kittaSelector, strconv.Itoa(kitta)); err != nil {
		return fmt.Errorf("could not fill unit count: %w", err)
	}

	if err := f.selectBank(ctx, account.BankName); err != nil {
		return err
	}
	if err := f.selectFirstAccount(ctx); err != nil {
		f.logger.Debug("Account selection skipped.", zap.Error(err))
	}

	if err := f.page.Fill(ctx, crnSelector, account.CRN); err != nil {
		return fmt.Errorf("could not fill CRN: %w", err)
	}
	if err := f.page.SetChecked(ctx, disclaimerSelector, true); err != nil {
		return fmt.Errorf("could not accept disclaimer: %w", err)
	}

	f.logger.Info("Application form filled.",
		zap.String("account", account.Label()), zap.Int("kitta", kitta))
	return nil
}

// selectBank waits for the bank dropdown to populate, matches the configured
// bank, and selects it with a change event so the account dropdown loads.
func (f *Form) selectBank(ctx context.Context, bankName string) error {
	loaded := f.waitBankOptions(ctx, 15*time.Second)
	if !loaded {
		// A click sometimes prompts lazy option loading.
		if err := f.page.Click(ctx, bankSelectSelector); err == nil {
			loaded = f.waitBankOptions(ctx, waitShort)
		}
	}
	if !loaded {
		f.logger.Warn("Bank options did not load in time.")
	}

	options, err := f.page.SelectOptions(ctx, bankSelectSelector)
	if err != nil {
		return fmt.Errorf("could not list bank options: %w", err)
	}

	value, matched := matchBankOption(options, bankName)
	if !matched {
		return fmt.Errorf("no bank option matched %q; check the configured bank name", bankName)
	}
	if err := f.page.SelectByValue(ctx, bankSelectSelector, value); err != nil {
		return fmt.Errorf("could not select bank: %w", err)
	}

	if err := f.page.WaitIdle(ctx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

func (f *Form) waitBankOptions(ctx context.Context, timeout time.Duration) bool {
	return f.page.WaitForCondition(ctx, func(c context.Context) bool {
		options, err := f.page.SelectOptions(c, bankSelectID)
		if err != nil {
			return false
		}
		for _, opt := range options {
			if opt.Value != "" {
				return true
			}
		}
		return false
	}, timeout)
}

// selectFirstAccount picks the first real entry of the bank account dropdown.
func (f *Form) selectFirstAccount(ctx context.Context) error {
	options, err := f.page.SelectOptions(ctx, accountSelector)
	if err != nil {
		return fmt.Errorf("could not list account options: %w", err)
	}
	for _, opt := range options {
		if opt.Value != "" && opt.Value != "0" {
			return f.page.SelectByValue(ctx, accountSelector, opt.Value)
		}
	}
	return fmt.Errorf("account dropdown has no selectable options")
}

// matchBankOption finds the dropdown option for the configured bank. The
// comparison is case insensitive and tolerates LIMITED/LTD suffix variations
// in either direction.
func matchBankOption(options []SelectOption, bankName string) (string, bool) {
	wantUpper := strings.ToUpper(bankName)
	wantClean := cleanBankName(bankName)

	for _, opt := range options {
		if opt.Value == "" {
			continue
		}
		optUpper := strings.ToUpper(opt.Text)
		optClean := cleanBankName(opt.Text)

		if strings.Contains(optUpper, wantUpper) ||
			strings.Contains(optClean, wantClean) ||
			strings.Contains(wantClean, optClean) {
			return opt.Value, true
		}
	}
	return "", false
}

func cleanBankName(name string) string {
	s := strings.ToUpper(name)
	s = strings.ReplaceAll(s, "LIMITED", "")
	s = strings.ReplaceAll(s, "LTD", "")
	return strings.TrimSpace(s)
}

// Submit drives the two phase submission: Proceed, transaction PIN, then the
// final Apply click. The final click is never retried; a duplicate
// application is worse than a missed one.
func (f *Form) Submit(ctx context.Context, pin string) error {
	if err := f.page.ScrollBottom(ctx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	proceedClicked := false
	if f.page.WaitForEnabled(ctx, proceedSelector, waitShort) {
		if err := f.page.Click(ctx, proceedSelector); err != nil {
			return fmt.Errorf("could not click proceed: %w", err)
		}
		proceedClicked = true
		if err := f.page.WaitIdle(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	} else {
		f.logger.Warn("Proceed button not enabled; form may be incomplete.")
	}

	if !f.page.WaitForElement(ctx, pinSelector, waitShort) {
		if !proceedClicked {
			return fmt.Errorf("proceed was not clicked and no transaction PIN prompt appeared; form likely incomplete")
		}
		// The portal sometimes submits in one step; no PIN prompt after a
		// successful proceed means there is nothing left to confirm.
		f.logger.Info("No transaction PIN prompt after proceed; treating as submitted.")
		return nil
	}

	if pin == "" {
		return fmt.Errorf("transaction PIN prompt shown but no PIN configured")
	}

	if err := f.enterPIN(ctx, pin); err != nil {
		return err
	}

	if err := f.clickApply(ctx); err != nil {
		return err
	}

	if err := f.page.WaitIdle(ctx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	return f.classifyOutcome(ctx)
}

// enterPIN clears the PIN field, types the PIN, and reads it back.
func (f *Form) enterPIN(ctx context.Context, pin string) error {
	if err := f.page.ScrollBottom(ctx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err := f.page.Fill(ctx, pinSelector, ""); err != nil {
		return fmt.Errorf("could not clear transaction PIN field: %w", err)
	}
	if err := f.page.Fill(ctx, pinSelector, pin); err != nil {
		return fmt.Errorf("could not fill transaction PIN: %w", err)
	}

	readBack, err := f.page.ReadValue(ctx, pinSelector)
	if err == nil && readBack != pin {
		f.logger.Warn("Transaction PIN read-back mismatch.",
			zap.Int("expected_len", len(pin)), zap.Int("got_len", len(readBack)))
	}
	return nil
}

// clickApply locates the final confirmation button, preferring the most
// specific selector that matches an enabled, visible element.
func (f *Form) clickApply(ctx context.Context) error {
	f.page.WaitForEnabled(ctx, applyButtonSelectors[0], 15*time.Second)

	for _, sel := range applyButtonSelectors {
		exists, err := f.page.Exists(ctx, sel)
		if err != nil {
			return fmt.Errorf("apply button probe failed: %w", err)
		}
		if !exists {
			continue
		}
		if err := f.page.Click(ctx, sel); err != nil {
			f.logger.Warn("Apply click failed for selector, trying next.",
				zap.String("selector", sel), zap.Error(err))
			continue
		}
		f.logger.Info("Clicked final apply button.", zap.String("selector", sel))
		return nil
	}
	return fmt.Errorf("apply button not found or not clickable")
}

// classifyOutcome decides whether the submission landed. Checks run in
// priority order: explicit error styling, page level error text, a lingering
// PIN prompt, explicit success signals, and finally the absence of the PIN
// prompt as a weak success signal.
func (f *Form) classifyOutcome(ctx context.Context) error {
	errTexts, err := f.page.QueryTexts(ctx, errorIndicatorSelector)
	if err != nil {
		return fmt.Errorf("could not inspect result page: %w", err)
	}
	for _, t := range errTexts {
		lower := strings.ToLower(t)
		if containsAny(lower, submitErrorKeywords) {
			return fmt.Errorf("portal reported an error: %s", truncate(t, 200))
		}
	}

	pageText, err := f.page.PageText(ctx)
	if err != nil {
		return fmt.Errorf("could not read result page: %w", err)
	}
	lowerText := strings.ToLower(pageText)
	if containsAny(lowerText, submitPageErrorKeywords) {
		return fmt.Errorf("result page contains an error message")
	}

	pinStillPresent, err := f.page.Exists(ctx, pinPresentID)
	if err != nil {
		return fmt.Errorf("could not probe for transaction PIN field: %w", err)
	}
	if pinStillPresent {
		return fmt.Errorf("transaction PIN prompt still present; submission did not go through")
	}

	successTexts, err := f.page.QueryTexts(ctx, successIndicatorSelector)
	if err == nil {
		for _, t := range successTexts {
			if containsAny(strings.ToLower(t), submitSuccessKeywords) {
				f.logger.Info("Application submitted successfully.")
				return nil
			}
		}
	}
	if strings.Contains(lowerText, "success") || strings.Contains(lowerText, "submitted") {
		f.logger.Info("Application submitted successfully.")
		return nil
	}

	// No explicit confirmation, but the PIN prompt is gone. The portal shows
	// no reliable marker here, so absence of the prompt counts as success.
	f.logger.Info("No explicit confirmation, but the PIN prompt is gone; assuming success.")
	return nil
}
