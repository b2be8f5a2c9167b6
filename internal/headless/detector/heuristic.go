// Package detector recognises bot-detection and block pages served in place
// of search results.
package detector

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Verdict describes a rendered page.
type Verdict struct {
	Blocked bool
	Reason  string
}

// Heuristic implements a handful of rule-based checks.
type Heuristic struct {
	// TextMarkers are lowercase phrases that only appear on block pages.
	TextMarkers []string
	// Selectors match widgets that only appear on block pages.
	Selectors []string
}

var (
	defaultTextMarkers = []string{
		"unusual traffic from your computer network",
		"our systems have detected unusual traffic",
		"i'm not a robot",
		"to continue, please type the characters",
	}
	defaultSelectors = []string{
		"form#captcha-form",
		"div#recaptcha",
		"div.g-recaptcha",
		"iframe[src*='recaptcha']",
		"iframe[title*='reCAPTCHA']",
	}
)

// NewHeuristic creates a detector with the stock markers.
func NewHeuristic() *Heuristic {
	return &Heuristic{
		TextMarkers: append([]string(nil), defaultTextMarkers...),
		Selectors:   append([]string(nil), defaultSelectors...),
	}
}

// Inspect decides whether the page at pageURL with body html is a block page.
func (h *Heuristic) Inspect(pageURL string, html []byte) Verdict {
	if u, err := url.Parse(pageURL); err == nil {
		if strings.HasPrefix(u.Path, "/sorry/") || u.Path == "/sorry" {
			return Verdict{Blocked: true, Reason: "redirected to " + u.Path}
		}
	}
	if len(html) == 0 {
		return Verdict{}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Verdict{}
	}
	for _, sel := range h.Selectors {
		if doc.Find(sel).Length() > 0 {
			return Verdict{Blocked: true, Reason: "matched " + sel}
		}
	}
	text := strings.ToLower(strings.Join(strings.Fields(doc.Find("body").Text()), " "))
	for _, marker := range h.TextMarkers {
		if strings.Contains(text, marker) {
			return Verdict{Blocked: true, Reason: "page text: " + marker}
		}
	}
	return Verdict{}
}
