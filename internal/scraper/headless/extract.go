package headless

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	progressSelector   = "div[role='progressbar']"
	resultListSelector = "ul[role='list']"
	resultLabelPrefix  = "From "
	finalPriceSelector = "[aria-label$='US dollars']"
	missingClass       = "__missing__"
)

var insightMarkers = []string{"low ", "high ", "typical "}

// firstResultLabel returns the description of the best flight, which is the
// first entry of the second result list.
func firstResultLabel(doc *goquery.Document) (string, bool) {
	item := doc.Find(resultListSelector).Eq(1).Find("li").First()
	var label string
	found := false
	item.Find("div[aria-label]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("aria-label")
		if strings.HasPrefix(v, resultLabelPrefix) {
			label, found = v, true
			return false
		}
		return true
	})
	return label, found
}

func finalPriceLabel(doc *goquery.Document) (string, bool) {
	return doc.Find(finalPriceSelector).First().Attr("aria-label")
}

// insightText picks the innermost element whose text mentions a fare level.
func insightText(doc *goquery.Document) (string, bool) {
	best := ""
	doc.Find("div").Each(func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if !mentionsFareLevel(text) {
			return
		}
		if best == "" || len(text) < len(best) {
			best = text
		}
	})
	return best, best != ""
}

func mentionsFareLevel(text string) bool {
	padded := text + " "
	for _, m := range insightMarkers {
		if strings.Contains(padded, m) {
			return true
		}
	}
	return false
}

// stability tracks an element's class attribute until it stops changing.
type stability struct {
	stableFor time.Duration
	seen      bool
	last      string
	since     time.Time
}

// observe records the class read at now and reports whether it has held
// for stableFor. A missing element resets the window.
func (s *stability) observe(class string, now time.Time) bool {
	if class == missingClass {
		s.seen = false
		return false
	}
	if !s.seen || class != s.last {
		s.seen, s.last, s.since = true, class, now
		return false
	}
	return now.Sub(s.since) >= s.stableFor
}
