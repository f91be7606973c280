// File: internal/portal/details.go
package portal

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	shareTypeSelector   = "span.share-of-type"
	shareGroupSelector  = `span.isin[tooltip="Share Group"]`
	companyNameSelector = `.company-name span, [tooltip="Company Name"]`

	unknownCompany = "Unknown Company"
)

var (
	shareGroupRe   = regexp.MustCompile(`(?i)Ordinary Shares|Preference Shares`)
	priceHTMLRe    = regexp.MustCompile(`(?is)Price per Share[^>]*>([^<]+)<`)
	priceTextRe    = regexp.MustCompile(`(?i)Price per Share[^\n]*\n[^\n]*?(\d+)`)
	issueOpenRe    = regexp.MustCompile(`(?i)Issue Open Date\s*\n\s*([^\n]+)`)
	issueCloseRe   = regexp.MustCompile(`(?i)Issue Close Date\s*\n\s*([^\n]+)`)
	issueManagerRe = regexp.MustCompile(`(?i)Issue Manager\s*\n\s*([^\n]+)`)
	minQtyRe       = regexp.MustCompile(`(?i)Minimum Quantity\s*\n\s*(\d+)`)
	maxQtyRe       = regexp.MustCompile(`(?i)Maximum Quantity\s*\n\s*(\d+)`)
)

// OfferingDetails holds what could be read off an offering's application
// form. Every field is optional; absence is represented by the zero value
// (nil for Price and quantities).
type OfferingDetails struct {
	CompanyName  string
	ShareType    string
	ShareGroup   string
	Price        *int
	IssueOpen    string
	IssueClose   string
	IssueManager string
	MinQty       *int
	MaxQty       *int
}

// ExtractDetails reads the offering detail fields from the currently open
// application form.
func ExtractDetails(ctx context.Context, page Page) (*OfferingDetails, error) {
	html, err := page.PageHTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not capture form HTML: %w", err)
	}
	text, err := page.PageText(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not capture form text: %w", err)
	}
	return ParseDetails(html, text), nil
}

// ParseDetails extracts offering details from the page's HTML and rendered
// text. Structured markup is probed first; free text regexes cover portals
// that render the same data without the expected markup.
func ParseDetails(html, text string) *OfferingDetails {
	d := &OfferingDetails{}

	doc, docErr := goquery.NewDocumentFromReader(strings.NewReader(html))
	if docErr == nil {
		d.ShareType = strings.TrimSpace(doc.Find(shareTypeSelector).First().Text())
		d.ShareGroup = strings.TrimSpace(doc.Find(shareGroupSelector).First().Text())
		d.CompanyName = strings.TrimSpace(doc.Find(companyNameSelector).First().Text())
	}

	if d.ShareGroup == "" {
		if m := shareGroupRe.FindString(text); m != "" {
			d.ShareGroup = m
		}
	}

	if m := priceHTMLRe.FindStringSubmatch(html); m != nil {
		if v, err := strconv.Atoi(strings.TrimSpace(m[1])); err == nil {
			d.Price = &v
		}
	}
	if d.Price == nil {
		if m := priceTextRe.FindStringSubmatch(text); m != nil {
			if v, err := strconv.Atoi(strings.TrimSpace(m[1])); err == nil {
				d.Price = &v
			}
		}
	}

	if m := issueOpenRe.FindStringSubmatch(text); m != nil {
		d.IssueOpen = strings.TrimSpace(m[1])
	}
	if m := issueCloseRe.FindStringSubmatch(text); m != nil {
		d.IssueClose = strings.TrimSpace(m[1])
	}
	if m := issueManagerRe.FindStringSubmatch(text); m != nil {
		d.IssueManager = strings.TrimSpace(m[1])
	}
	if m := minQtyRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			d.MinQty = &v
		}
	}
	if m := maxQtyRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			d.MaxQty = &v
		}
	}

	return d
}

// CheckConditions reports whether the offering is one the applicator should
// apply for: an IPO of ordinary shares at the standard Rs. 100 face price.
// Any missing field disqualifies the offering.
func CheckConditions(d *OfferingDetails) bool {
	if d == nil {
		return false
	}
	if !strings.EqualFold(strings.TrimSpace(d.ShareType), "IPO") {
		return false
	}
	if !strings.EqualFold(strings.TrimSpace(d.ShareGroup), "Ordinary Shares") {
		return false
	}
	if d.Price == nil || *d.Price != 100 {
		return false
	}
	return true
}

// CompanyName reads the offering's company name off the open form, falling
// back to a placeholder when the element is absent or empty.
func CompanyName(ctx context.Context, page Page) string {
	name, err := page.ElementText(ctx, companyNameSelector, 0)
	if err != nil || strings.TrimSpace(name) == "" {
		return unknownCompany
	}
	return strings.TrimSpace(name)
}
