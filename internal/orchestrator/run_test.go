// File: internal/orchestrator/run_test.go
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/sbhusal-dev/meroapply/internal/config"
	"github.com/sbhusal-dev/meroapply/internal/portal"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, message string) {
	n.messages = append(n.messages, message)
}

func (n *recordingNotifier) contains(substr string) bool {
	for _, m := range n.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func (n *recordingNotifier) count(substr string) int {
	total := 0
	for _, m := range n.messages {
		if strings.Contains(m, substr) {
			total++
		}
	}
	return total
}

type recordingLedger struct {
	entries []string
	err     error
}

func (l *recordingLedger) AddApplication(offeringName, account string, appliedUnits int) error {
	l.entries = append(l.entries, fmt.Sprintf("%s/%s/%d", offeringName, account, appliedUnits))
	return l.err
}

type fakeSession struct {
	resets   int
	closes   int
	resetErr error
}

func (s *fakeSession) ResetPage(context.Context) error { s.resets++; return s.resetErr }
func (s *fakeSession) Close() error                    { s.closes++; return nil }

type fakeFlow struct {
	loginFailures map[string]int // remaining failures per account label
	loginErr      error
	lastError     string
	loginCalls    []string

	navErr     error
	scanHas    bool
	scanCands  []portal.OfferingCandidate
	scanErr    error
	scanCalls  int
	match      *portal.MatchedOffering
	applyErr   error
	applyPanic bool
	applyCalls []string
}

func (f *fakeFlow) Login(_ context.Context, account config.Account) error {
	f.loginCalls = append(f.loginCalls, account.Label())
	if remaining, found := f.loginFailures[account.Label()]; found && remaining > 0 {
		f.loginFailures[account.Label()] = remaining - 1
		if f.loginErr != nil {
			return f.loginErr
		}
		return fmt.Errorf("login failed")
	}
	return nil
}

func (f *fakeFlow) LastError() string { return f.lastError }

func (f *fakeFlow) NavigateToOfferings(context.Context) error { return f.navErr }

func (f *fakeFlow) Scan(context.Context) (bool, []portal.OfferingCandidate, error) {
	f.scanCalls++
	return f.scanHas, f.scanCands, f.scanErr
}

func (f *fakeFlow) FindMatching(context.Context, []portal.OfferingCandidate) (*portal.MatchedOffering, error) {
	return f.match, nil
}

func (f *fakeFlow) ApplyForAccount(_ context.Context, account config.Account, _ portal.MatchedOffering) error {
	f.applyCalls = append(f.applyCalls, account.Label())
	if f.applyPanic {
		panic("browser target crashed")
	}
	return f.applyErr
}

func intPtr(v int) *int { return &v }

func eligibleMatch() *portal.MatchedOffering {
	return &portal.MatchedOffering{
		CompanyName: "Sunrise Hydropower Limited",
		RowIndex:    0,
		Details: &portal.OfferingDetails{
			CompanyName:  "Sunrise Hydropower Limited",
			ShareType:    "IPO",
			ShareGroup:   "Ordinary Shares",
			Price:        intPtr(100),
			IssueOpen:    "2026-09-01",
			IssueClose:   "2026-09-05",
			IssueManager: "NIC Asia Capital",
			MinQty:       intPtr(10),
			MaxQty:       intPtr(500),
		},
	}
}

func testConfig(accounts ...config.Account) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Meroshare.Accounts = accounts
	return cfg
}

func account(name string) config.Account {
	return config.Account{
		Name:           name,
		Username:       strings.ToLower(name),
		Password:       "secret",
		DPName:         "Global IME Capital",
		CRN:            "CRN-998877",
		TransactionPIN: "4321",
		BankName:       "Global IME Bank",
		AppliedKitta:   10,
	}
}

// harness wires an orchestrator whose session factory hands out fakes.
func harness(cfg *config.Config, flow *fakeFlow) (*Orchestrator, *recordingNotifier, *recordingLedger, *fakeSession) {
	notify := &recordingNotifier{}
	ledger := &recordingLedger{}
	sess := &fakeSession{}

	o := New(cfg, notify, ledger, zap.NewNop())
	o.startSession = func(context.Context) (session, portalFlow, error) {
		return sess, flow, nil
	}
	return o, notify, ledger, sess
}

func TestRunAppliesWithAllAccounts(t *testing.T) {
	flow := &fakeFlow{
		scanHas:   true,
		scanCands: []portal.OfferingCandidate{{Selector: "table tbody tr", Index: 0, Text: "Apply"}},
		match:     eligibleMatch(),
	}
	cfg := testConfig(account("Primary"), account("Secondary"))
	o, notify, ledger, sess := harness(cfg, flow)

	require.NoError(t, o.Run(context.Background()))

	assert.Equal(t, []string{"Primary", "Secondary"}, flow.applyCalls)
	assert.Len(t, ledger.entries, 2)
	assert.Contains(t, ledger.entries[0], "Sunrise Hydropower Limited/Primary/10")

	assert.True(t, notify.contains("IPO check started"))
	assert.True(t, notify.contains("Matching IPO found"))
	assert.True(t, notify.contains("NIC Asia Capital"))
	assert.Equal(t, 2, notify.count("✅ <b>Applied</b>"))
	assert.True(t, notify.contains("Applied with <b>2/2</b> account(s)"))

	assert.Equal(t, 1, sess.closes)
	// One page reset before the secondary account's login.
	assert.Equal(t, 1, sess.resets)
}

func TestRunNoOfferingsSingleAccount(t *testing.T) {
	flow := &fakeFlow{scanHas: false}
	o, notify, ledger, _ := harness(testConfig(account("Primary")), flow)

	require.NoError(t, o.Run(context.Background()))

	assert.True(t, notify.contains("No open IPO on ASBA"))
	assert.Empty(t, flow.applyCalls)
	assert.Empty(t, ledger.entries)
}

func TestRunNoOfferingsChecksOtherAccounts(t *testing.T) {
	flow := &fakeFlow{scanHas: false}
	o, notify, _, _ := harness(testConfig(account("Primary"), account("Secondary")), flow)

	require.NoError(t, o.Run(context.Background()))

	assert.True(t, notify.contains("No IPOs on ASBA"))
	// The secondary account gets its own scan of the offerings page.
	assert.Equal(t, 2, flow.scanCalls)
	assert.True(t, notify.contains("none applied"))
}

func TestRunPrimaryLoginFailure(t *testing.T) {
	flow := &fakeFlow{
		loginFailures: map[string]int{"Primary": 99},
		lastError:     "invalid username or password",
	}
	o, notify, _, sess := harness(testConfig(account("Primary")), flow)

	err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login failed")
	assert.True(t, notify.contains("Login failed"))
	assert.True(t, notify.contains("invalid username or password"))
	assert.Equal(t, 1, sess.closes)
}

func TestRunSecondaryLoginRetriesOnFreshPage(t *testing.T) {
	flow := &fakeFlow{
		loginFailures: map[string]int{"Secondary": 1},
		scanHas:       true,
		scanCands:     []portal.OfferingCandidate{{Index: 0, Text: "Apply"}},
		match:         eligibleMatch(),
	}
	o, notify, _, sess := harness(testConfig(account("Primary"), account("Secondary")), flow)

	require.NoError(t, o.Run(context.Background()))

	// Primary once, secondary twice (initial failure then retry).
	assert.Equal(t, []string{"Primary", "Secondary", "Secondary"}, flow.loginCalls)
	// Reset before the secondary login and again before the retry.
	assert.Equal(t, 2, sess.resets)
	assert.True(t, notify.contains("Applied with <b>2/2</b>"))
}

func TestRunSecondaryLoginFailsAfterRetry(t *testing.T) {
	flow := &fakeFlow{
		loginFailures: map[string]int{"Secondary": 2},
		lastError:     "account locked",
		scanHas:       true,
		scanCands:     []portal.OfferingCandidate{{Index: 0, Text: "Apply"}},
		match:         eligibleMatch(),
	}
	o, notify, ledger, _ := harness(testConfig(account("Primary"), account("Secondary")), flow)

	require.NoError(t, o.Run(context.Background()))

	assert.True(t, notify.contains("Login failed</b> — Account 2"))
	assert.True(t, notify.contains("account locked"))
	// Only the primary account applied.
	assert.Len(t, ledger.entries, 1)
	assert.True(t, notify.contains("Applied with <b>1/2</b>"))
}

func TestRunApplyFailureNotifies(t *testing.T) {
	flow := &fakeFlow{
		scanHas:   true,
		scanCands: []portal.OfferingCandidate{{Index: 0, Text: "Apply"}},
		match:     eligibleMatch(),
		applyErr:  fmt.Errorf("submit failed: transaction PIN rejected"),
	}
	o, notify, ledger, _ := harness(testConfig(account("Primary")), flow)

	require.NoError(t, o.Run(context.Background()))

	assert.True(t, notify.contains("Apply failed</b> — Account 1"))
	assert.True(t, notify.contains("transaction PIN rejected"))
	assert.Empty(t, ledger.entries)
	assert.True(t, notify.contains("0/1"))
}

func TestRunRecoversApplyPanic(t *testing.T) {
	flow := &fakeFlow{
		scanHas:    true,
		scanCands:  []portal.OfferingCandidate{{Index: 0, Text: "Apply"}},
		match:      eligibleMatch(),
		applyPanic: true,
	}
	o, notify, _, sess := harness(testConfig(account("Primary"), account("Secondary")), flow)

	require.NoError(t, o.Run(context.Background()))

	assert.True(t, notify.contains("browser target crashed"))
	assert.True(t, notify.contains("none applied"))
	assert.Equal(t, 1, sess.closes)
}

func TestRunSkipsIncompleteSecondaryAccount(t *testing.T) {
	broken := account("Secondary")
	broken.CRN = ""
	flow := &fakeFlow{
		scanHas:   true,
		scanCands: []portal.OfferingCandidate{{Index: 0, Text: "Apply"}},
		match:     eligibleMatch(),
	}
	o, notify, ledger, _ := harness(testConfig(account("Primary"), broken), flow)

	require.NoError(t, o.Run(context.Background()))

	assert.Equal(t, []string{"Primary"}, flow.applyCalls)
	assert.Len(t, ledger.entries, 1)
	// The skipped account still leaves exactly one notification with a reason.
	assert.Equal(t, 1, notify.count("Account 2"))
	assert.True(t, notify.contains("Skipped</b> — Account 2"))
	assert.True(t, notify.contains("Applied with <b>1/2</b>"))
}

func TestRunSecondaryWithNoOfferingsNotifies(t *testing.T) {
	flow := &fakeFlow{scanHas: false}
	o, notify, ledger, _ := harness(testConfig(account("Primary"), account("Secondary")), flow)

	require.NoError(t, o.Run(context.Background()))

	// One notification for the secondary account's empty offerings list.
	assert.Equal(t, 1, notify.count("Account 2"))
	assert.True(t, notify.contains("Account 2</b> — No IPOs on ASBA"))
	assert.Empty(t, ledger.entries)
	assert.True(t, notify.contains("none applied"))
}

func TestRunSecondaryWithNoMatchNotifies(t *testing.T) {
	flow := &fakeFlow{
		scanHas:   true,
		scanCands: []portal.OfferingCandidate{{Index: 0, Text: "FPO row"}},
	}
	o, notify, _, _ := harness(testConfig(account("Primary"), account("Secondary")), flow)

	require.NoError(t, o.Run(context.Background()))

	assert.True(t, notify.contains("Account 1</b> — No matching IPO"))
	assert.Equal(t, 1, notify.count("Account 2"))
	assert.True(t, notify.contains("Account 2</b> — No matching IPO"))
}

func TestRunSessionStartFailure(t *testing.T) {
	notify := &recordingNotifier{}
	o := New(testConfig(account("Primary")), notify, &recordingLedger{}, zap.NewNop())
	o.startSession = func(context.Context) (session, portalFlow, error) {
		return nil, nil, fmt.Errorf("browser launch failed: chrome not found")
	}

	err := o.Run(context.Background())
	require.Error(t, err)
	assert.True(t, notify.contains("chrome not found"))
}

func TestClipKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", clip("  short  ", 100))

	devanagari := strings.Repeat("गलत", 60)
	cut := clip(devanagari, 100)
	assert.LessOrEqual(t, len(cut), 100)
	assert.True(t, utf8.ValidString(cut))
}

func TestMatchSummaryOmitsAbsentFields(t *testing.T) {
	m := &portal.MatchedOffering{
		CompanyName: "Bare & Minimal Corp",
		Details: &portal.OfferingDetails{
			ShareType:  "IPO",
			ShareGroup: "Ordinary Shares",
			Price:      intPtr(100),
		},
	}
	got := matchSummary(m)

	assert.Contains(t, got, "Bare &amp; Minimal Corp")
	assert.Contains(t, got, "Rs. 100/share")
	assert.NotContains(t, got, "🏛")
	assert.NotContains(t, got, "📅")
	assert.NotContains(t, got, "📦 Kitta")
	assert.Contains(t, got, "Applying with all accounts…")
}
