// File: internal/portal/apply_test.go
package portal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// offeringsPage scripts a page with one eligible offering row and a fully
// loaded application form behind it.
func offeringsPage() *fakePage {
	p := submitReadyPage()
	p.texts["table tbody tr"] = []string{
		"Sunrise Hydropower Limited  IPO  Ordinary Shares  Apply",
	}
	p.clickMatching["table tbody tr"] = true
	p.exists[formLandmarkSelector] = true
	p.html = sampleFormHTML
	p.text = sampleFormText
	p.elements[companyNameSelector] = "Sunrise Hydropower Limited"
	return p
}

func newApplicator(p *fakePage) *Applicator {
	scanner := NewScanner(p, testBaseURL, zap.NewNop())
	return NewApplicator(p, scanner, zap.NewNop())
}

func TestOpenCandidateViaApplyControl(t *testing.T) {
	p := offeringsPage()
	a := newApplicator(p)

	opened, err := a.OpenCandidate(context.Background(), OfferingCandidate{
		Selector: "table tbody tr", Index: 0, Text: "Sunrise Hydropower Apply",
	})
	require.NoError(t, err)
	assert.True(t, opened)
}

func TestOpenCandidateRowClickFallback(t *testing.T) {
	p := offeringsPage()
	p.clickMatching["table tbody tr"] = false
	a := newApplicator(p)

	opened, err := a.OpenCandidate(context.Background(), OfferingCandidate{
		Selector: "table tbody tr", Index: 0, Text: "Sunrise Hydropower apply",
	})
	require.NoError(t, err)
	assert.True(t, opened)
	assert.Contains(t, p.clicks, "table tbody tr")
}

func TestOpenCandidateNoApplyTextNoFallback(t *testing.T) {
	p := offeringsPage()
	p.clickMatching["table tbody tr"] = false
	a := newApplicator(p)

	opened, err := a.OpenCandidate(context.Background(), OfferingCandidate{
		Selector: "table tbody tr", Index: 0, Text: "Sunrise Hydropower",
	})
	require.NoError(t, err)
	assert.False(t, opened)
}

func TestOpenCandidateLandmarkMissing(t *testing.T) {
	p := offeringsPage()
	p.exists[formLandmarkSelector] = false
	a := newApplicator(p)

	opened, err := a.OpenCandidate(context.Background(), OfferingCandidate{
		Selector: "table tbody tr", Index: 0, Text: "Apply",
	})
	require.NoError(t, err)
	assert.False(t, opened)
}

func TestFindMatchingReturnsEligibleOffering(t *testing.T) {
	p := offeringsPage()
	a := newApplicator(p)

	candidates := []OfferingCandidate{
		{Selector: "table tbody tr", Index: 0, Text: "Sunrise Hydropower Apply"},
	}
	match, err := a.FindMatching(context.Background(), candidates)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "Sunrise Hydropower Limited", match.CompanyName)
	assert.Equal(t, 0, match.RowIndex)
	require.NotNil(t, match.Details.Price)
	assert.Equal(t, 100, *match.Details.Price)
}

func TestFindMatchingBacksOutOfIneligible(t *testing.T) {
	p := offeringsPage()
	// The open form describes a premium priced FPO.
	p.html = `<html><body><span class="share-of-type">FPO</span></body></html>`
	p.text = "Price per Share\nRs. 250"
	a := newApplicator(p)

	candidates := []OfferingCandidate{
		{Selector: "table tbody tr", Index: 0, Text: "Apply"},
	}
	match, err := a.FindMatching(context.Background(), candidates)
	require.NoError(t, err)
	assert.Nil(t, match)
	assert.Equal(t, 1, p.backCalls)
}

func TestLocateCandidate(t *testing.T) {
	candidates := []OfferingCandidate{
		{Index: 0, Text: "Himalayan Reinsurance Apply"},
		{Index: 1, Text: "Sunrise Hydropower Limited Apply"},
	}

	t.Run("by company name", func(t *testing.T) {
		got := locateCandidate(candidates, MatchedOffering{CompanyName: "Sunrise Hydropower Limited", RowIndex: 0})
		assert.Equal(t, 1, got.Index)
	})

	t.Run("by index when name absent", func(t *testing.T) {
		got := locateCandidate(candidates, MatchedOffering{CompanyName: unknownCompany, RowIndex: 1})
		assert.Equal(t, 1, got.Index)
	})

	t.Run("first row when index out of range", func(t *testing.T) {
		got := locateCandidate(candidates, MatchedOffering{CompanyName: "Nowhere Corp", RowIndex: 7})
		assert.Equal(t, 0, got.Index)
	})
}

func TestApplyForAccountHappyPath(t *testing.T) {
	p := offeringsPage()
	a := newApplicator(p)

	target := MatchedOffering{CompanyName: "Sunrise Hydropower Limited", RowIndex: 0}
	err := a.ApplyForAccount(context.Background(), testAccount(), target)
	require.NoError(t, err)

	// The form was filled and submitted for this account.
	assert.Equal(t, "10", p.values[kittaSelector])
	assert.Equal(t, "4321", p.values[pinSelector])
	assert.Contains(t, p.navigations, testBaseURL+asbaPath)
}

func TestApplyForAccountNoOfferings(t *testing.T) {
	p := submitReadyPage()
	a := newApplicator(p)

	err := a.ApplyForAccount(context.Background(), testAccount(), MatchedOffering{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no offerings on page")
}

func TestApplyForAccountIneligibleOnReverify(t *testing.T) {
	p := offeringsPage()
	p.html = `<html><body><span class="share-of-type">FPO</span></body></html>`
	p.text = "nothing"
	a := newApplicator(p)

	err := a.ApplyForAccount(context.Background(), testAccount(), MatchedOffering{RowIndex: 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "eligibility")
}
