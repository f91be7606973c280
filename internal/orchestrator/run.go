// File: internal/orchestrator/run.go

// Package orchestrator drives one full application run: check for open
// offerings with the first account, and when one matches, apply with
// every configured account over a shared browser session.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sbhusal-dev/meroapply/internal/browser"
	"github.com/sbhusal-dev/meroapply/internal/config"
	"github.com/sbhusal-dev/meroapply/internal/notifier"
	"github.com/sbhusal-dev/meroapply/internal/portal"
)

// Ledger records submitted applications for later result tracking.
type Ledger interface {
	AddApplication(offeringName, account string, appliedUnits int) error
}

// session is the browser lifecycle surface a run needs.
type session interface {
	ResetPage(ctx context.Context) error
	Close() error
}

// portalFlow bundles the portal operations of a run against one session.
type portalFlow interface {
	Login(ctx context.Context, account config.Account) error
	LastError() string
	NavigateToOfferings(ctx context.Context) error
	Scan(ctx context.Context) (bool, []portal.OfferingCandidate, error)
	FindMatching(ctx context.Context, candidates []portal.OfferingCandidate) (*portal.MatchedOffering, error)
	ApplyForAccount(ctx context.Context, account config.Account, target portal.MatchedOffering) error
}

// Orchestrator coordinates the check-then-apply-with-all-accounts run.
type Orchestrator struct {
	cfg    *config.Config
	notify notifier.Notifier
	ledger Ledger
	logger *zap.Logger

	// startSession is swappable so runs can be exercised without a browser.
	startSession func(ctx context.Context) (session, portalFlow, error)
}

// New creates an orchestrator backed by a real browser session.
func New(cfg *config.Config, notify notifier.Notifier, ledger Ledger, logger *zap.Logger) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		notify: notify,
		ledger: ledger,
		logger: logger.Named("orchestrator"),
	}
	o.startSession = o.startBrowserSession
	return o
}

func (o *Orchestrator) startBrowserSession(ctx context.Context) (session, portalFlow, error) {
	sess := browser.NewSession(o.cfg, o.logger)
	if err := sess.Open(ctx); err != nil {
		return nil, nil, fmt.Errorf("browser launch failed: %w", err)
	}

	base := o.cfg.Meroshare.BaseURL
	scanner := portal.NewScanner(sess, base, o.logger)
	flow := &liveFlow{
		auth:       portal.NewAuthenticator(sess, base, o.logger),
		scanner:    scanner,
		applicator: portal.NewApplicator(sess, scanner, o.logger),
	}
	return sess, flow, nil
}

// Run executes one complete check-and-apply cycle. A nil return means the
// run itself completed, including the nothing-to-apply-for case; individual
// account failures are reported through notifications, not the error.
func (o *Orchestrator) Run(ctx context.Context) error {
	runID := uuid.New().String()
	log := o.logger.With(zap.String("run_id", runID))

	accounts := o.cfg.Meroshare.AccountList()
	if len(accounts) == 0 {
		o.notify.Notify(ctx, "❌ <b>Config error</b>\n\nMissing required MeroShare/account settings. Check config.")
		return fmt.Errorf("no accounts configured")
	}
	primary := accounts[0]

	log.Info("Run starting.",
		zap.Int("accounts", len(accounts)),
		zap.String("check_account", primary.Label()))
	o.notify.Notify(ctx, fmt.Sprintf(
		"🚀 <b>IPO check started</b>\n\n🔑 Check account: <b>%s</b>\n👥 Accounts: <b>%d</b> (apply with all if IPO matches)",
		notifier.EscapeHTML(primary.Label()), len(accounts)))

	sess, flow, err := o.startSession(ctx)
	if err != nil {
		o.notify.Notify(ctx, fmt.Sprintf("❌ <b>Error</b>\n\n%s",
			notifier.EscapeHTML(clip(err.Error(), 250))))
		return err
	}
	defer sess.Close()

	if err := flow.Login(ctx, primary); err != nil {
		reason := flow.LastError()
		if reason == "" {
			reason = err.Error()
		}
		log.Error("Check account login failed.", zap.String("reason", reason))
		o.notify.Notify(ctx, fmt.Sprintf("❌ <b>Login failed</b>\n\nAccount: %s\nReason: %s",
			notifier.EscapeHTML(primary.Label()), notifier.EscapeHTML(reason)))
		return fmt.Errorf("check account login failed: %w", err)
	}

	if err := flow.NavigateToOfferings(ctx); err != nil {
		return fmt.Errorf("offerings page unreachable: %w", err)
	}
	hasOfferings, candidates, err := flow.Scan(ctx)
	if err != nil {
		return fmt.Errorf("offerings scan failed: %w", err)
	}
	log.Info("Offerings scan done.",
		zap.Bool("has_offerings", hasOfferings),
		zap.Int("rows", len(candidates)))

	var match *portal.MatchedOffering
	if hasOfferings && len(candidates) > 0 {
		if match, err = flow.FindMatching(ctx, candidates); err != nil {
			return fmt.Errorf("offering matching failed: %w", err)
		}
	} else if !hasOfferings {
		if len(accounts) == 1 {
			o.notify.Notify(ctx, "🔍 <b>No IPOs</b>\n\nNo open IPO on ASBA at the moment.")
			log.Info("No open offerings, run complete.")
			return nil
		}
		o.notify.Notify(ctx, "ℹ️ <b>Account 1</b> — No IPOs on ASBA\n\nMay already have applied. Checking other accounts…")
	}

	applied := 0
	if match != nil {
		o.notify.Notify(ctx, matchSummary(match))
		if o.applyOne(ctx, flow, primary, *match, 1, log) {
			applied++
		}
	} else if hasOfferings {
		o.notify.Notify(ctx, "ℹ️ <b>Account 1</b> — No matching IPO\n\nMay already have applied. Checking other accounts…")
	}

	for idx, account := range accounts[1:] {
		position := idx + 2
		alog := log.With(zap.Int("account", position), zap.String("label", account.Label()))
		alog.Info("Switching to next account.")

		if o.applySecondary(ctx, sess, flow, account, match, position, alog) {
			applied++
		}
	}

	log.Info("Run complete.", zap.Int("applied", applied), zap.Int("accounts", len(accounts)))
	if applied > 0 {
		o.notify.Notify(ctx, fmt.Sprintf(
			"✅ <b>Done</b>\n\nApplied with <b>%d/%d</b> account(s).", applied, len(accounts)))
	} else {
		o.notify.Notify(ctx, fmt.Sprintf(
			"⚠️ <b>Done — none applied</b>\n\n<b>0/%d</b> applications submitted.\nCheck messages above for failure reasons.",
			len(accounts)))
	}
	return nil
}

// applySecondary switches the session to another account and applies. Any
// failure, including a panic in the portal flow, is reported by notification
// and the run moves on to the next account.
func (o *Orchestrator) applySecondary(ctx context.Context, sess session, flow portalFlow, account config.Account, match *portal.MatchedOffering, position int, log *zap.Logger) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("Account processing panicked.", zap.Any("panic", rec))
			o.notify.Notify(ctx, fmt.Sprintf("❌ <b>Error</b> — Account %d\n\n👤 %s\n%s",
				position,
				notifier.EscapeHTML(account.Label()),
				notifier.EscapeHTML(clip(fmt.Sprint(rec), 180))))
			ok = false
		}
	}()

	if err := account.Validate(); err != nil {
		log.Error("Account skipped, configuration incomplete.", zap.Error(err))
		o.notify.Notify(ctx, fmt.Sprintf("ℹ️ <b>Skipped</b> — Account %d\n\n👤 %s\nReason: %s",
			position,
			notifier.EscapeHTML(account.Label()),
			notifier.EscapeHTML(err.Error())))
		return false
	}

	if err := sess.ResetPage(ctx); err != nil {
		log.Warn("Page reset failed, continuing on current page.", zap.Error(err))
	}

	err := flow.Login(ctx, account)
	if err != nil {
		log.Warn("Login failed, retrying with a fresh page.", zap.Error(err))
		if rerr := sess.ResetPage(ctx); rerr != nil {
			log.Warn("Page reset for retry failed.", zap.Error(rerr))
		}
		err = flow.Login(ctx, account)
	}
	if err != nil {
		reason := flow.LastError()
		if reason == "" {
			reason = err.Error()
		}
		log.Error("Login failed for account.", zap.String("reason", reason))
		o.notify.Notify(ctx, fmt.Sprintf("❌ <b>Login failed</b> — Account %d\n\n👤 %s\nReason: %s",
			position,
			notifier.EscapeHTML(account.Label()),
			notifier.EscapeHTML(reason)))
		return false
	}

	target := match
	if target == nil {
		// The check account saw nothing; this account's list may differ.
		if err := flow.NavigateToOfferings(ctx); err != nil {
			log.Warn("Offerings page unreachable for account.", zap.Error(err))
			o.notifyAccountError(ctx, account, position, err)
			return false
		}
		has, candidates, err := flow.Scan(ctx)
		if err != nil {
			log.Warn("Offerings scan failed for account.", zap.Error(err))
			o.notifyAccountError(ctx, account, position, err)
			return false
		}
		if !has || len(candidates) == 0 {
			log.Info("No offerings listed for this account.")
			o.notify.Notify(ctx, fmt.Sprintf("ℹ️ <b>Account %d</b> — No IPOs on ASBA\n\n👤 %s\nMay already have applied.",
				position, notifier.EscapeHTML(account.Label())))
			return false
		}
		if target, err = flow.FindMatching(ctx, candidates); err != nil {
			log.Warn("Offering matching failed for account.", zap.Error(err))
			o.notifyAccountError(ctx, account, position, err)
			return false
		}
		if target == nil {
			log.Info("No matching offering for this account.")
			o.notify.Notify(ctx, fmt.Sprintf("ℹ️ <b>Account %d</b> — No matching IPO\n\n👤 %s\nMay already have applied.",
				position, notifier.EscapeHTML(account.Label())))
			return false
		}
	}

	return o.applyOne(ctx, flow, account, *target, position, log)
}

// notifyAccountError reports a failed per-account step so every account leaves
// a trace in the notification stream.
func (o *Orchestrator) notifyAccountError(ctx context.Context, account config.Account, position int, err error) {
	o.notify.Notify(ctx, fmt.Sprintf("❌ <b>Error</b> — Account %d\n\n👤 %s\n%s",
		position,
		notifier.EscapeHTML(account.Label()),
		notifier.EscapeHTML(clip(err.Error(), 180))))
}

// applyOne runs the application for one account and reports the outcome by
// notification. Successful applications are recorded in the ledger.
func (o *Orchestrator) applyOne(ctx context.Context, flow portalFlow, account config.Account, target portal.MatchedOffering, position int, log *zap.Logger) bool {
	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic during application: %v", rec)
			}
		}()
		return flow.ApplyForAccount(ctx, account, target)
	}()

	if err != nil {
		log.Warn("Application failed.",
			zap.String("account", account.Label()),
			zap.Error(err))
		o.notify.Notify(ctx, fmt.Sprintf("❌ <b>Apply failed</b> — Account %d\n\n👤 %s\nReason: %s",
			position,
			notifier.EscapeHTML(account.Label()),
			notifier.EscapeHTML(clip(err.Error(), 150))))
		return false
	}

	kitta := account.AppliedKitta
	if kitta <= 0 {
		kitta = 10
	}
	o.notify.Notify(ctx, fmt.Sprintf(
		"✅ <b>Applied</b>\n\n📊 <b>%s</b>\n👤 %s · 📦 %d kitta\n💰 Rs. 100/share · Ordinary Shares",
		notifier.EscapeHTML(target.CompanyName),
		notifier.EscapeHTML(account.Label()),
		kitta))

	if o.ledger != nil {
		if lerr := o.ledger.AddApplication(target.CompanyName, account.Label(), kitta); lerr != nil {
			log.Warn("Could not record application in ledger.", zap.Error(lerr))
		}
	}
	return true
}

// matchSummary formats the detail notification for a matching offering.
func matchSummary(m *portal.MatchedOffering) string {
	d := m.Details
	if d == nil {
		d = &portal.OfferingDetails{}
	}

	price := 100
	if d.Price != nil {
		price = *d.Price
	}
	shareType := d.ShareType
	if shareType == "" {
		shareType = "IPO"
	}
	shareGroup := d.ShareGroup
	if shareGroup == "" {
		shareGroup = "Ordinary Shares"
	}

	lines := []string{
		"✅ <b>Matching IPO found</b>",
		"",
		fmt.Sprintf("📊 <b>%s</b>", notifier.EscapeHTML(m.CompanyName)),
		fmt.Sprintf("💰 Rs. %d/share · 📈 %s · %s", price,
			notifier.EscapeHTML(shareType), notifier.EscapeHTML(shareGroup)),
	}
	if d.IssueManager != "" {
		lines = append(lines, "🏛 "+notifier.EscapeHTML(d.IssueManager))
	}
	if d.IssueOpen != "" || d.IssueClose != "" {
		lines = append(lines, fmt.Sprintf("📅 Open: %s  →  Close: %s",
			orDash(d.IssueOpen), orDash(d.IssueClose)))
	}
	if d.MinQty != nil || d.MaxQty != nil {
		lines = append(lines, fmt.Sprintf("📦 Kitta: %s – %s",
			orDashInt(d.MinQty), orDashInt(d.MaxQty)))
	}
	lines = append(lines, "", "Applying with all accounts…")
	return strings.Join(lines, "\n")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "—"
	}
	return notifier.EscapeHTML(s)
}

func orDashInt(v *int) string {
	if v == nil {
		return "—"
	}
	return fmt.Sprintf("%d", *v)
}

// clip bounds s to at most n bytes without splitting a multi-byte rune.
func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// liveFlow adapts the concrete portal types to the portalFlow surface.
type liveFlow struct {
	auth       *portal.Authenticator
	scanner    *portal.Scanner
	applicator *portal.Applicator
}

func (f *liveFlow) Login(ctx context.Context, account config.Account) error {
	return f.auth.Login(ctx, account)
}

func (f *liveFlow) LastError() string {
	return f.auth.LastError()
}

func (f *liveFlow) NavigateToOfferings(ctx context.Context) error {
	return f.scanner.NavigateToOfferings(ctx)
}

func (f *liveFlow) Scan(ctx context.Context) (bool, []portal.OfferingCandidate, error) {
	return f.scanner.Scan(ctx)
}

func (f *liveFlow) FindMatching(ctx context.Context, candidates []portal.OfferingCandidate) (*portal.MatchedOffering, error) {
	return f.applicator.FindMatching(ctx, candidates)
}

func (f *liveFlow) ApplyForAccount(ctx context.Context, account config.Account, target portal.MatchedOffering) error {
	return f.applicator.ApplyForAccount(ctx, account, target)
}
