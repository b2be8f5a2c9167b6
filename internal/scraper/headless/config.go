// Package headless drives a Chrome instance through the flight search form
// and extracts the cheapest round trip.
package headless

import (
	"fmt"
	"strings"
	"time"
)

// DefaultBaseURL is the search page every scrape starts from.
const DefaultBaseURL = "https://www.google.com/travel/flights"

// Config controls the browser and the pacing of page interactions.
type Config struct {
	BaseURL   string
	UserAgent string
	// ExecPath overrides the Chrome binary chromedp would otherwise locate.
	ExecPath string
	// Headful shows the browser window. Useful when debugging selectors.
	Headful bool
	// StepTimeout bounds every individual form interaction.
	StepTimeout time.Duration
	// StableFor is how long the results progress bar must stay unchanged
	// before results are read.
	StableFor time.Duration
	// BlockedURLs are request patterns aborted by the browser.
	BlockedURLs []string
}

var defaultBlockedURLs = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.svg",
	"*.woff", "*.woff2", "*.mp4", "*.webm",
	"*analytics.google.com*",
	"*googletagmanager.com*",
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = 10 * time.Second
	}
	if c.StableFor <= 0 {
		c.StableFor = 2 * time.Second
	}
	if c.BlockedURLs == nil {
		c.BlockedURLs = append([]string(nil), defaultBlockedURLs...)
	}
	return c
}

var (
	domesticOptions = map[string]int{
		"economy (include basic)": 0,
		"economy (exclude basic)": 1,
		"premium economy":         2,
		"business":                3,
		"first":                   4,
	}
	internationalOptions = map[string]int{
		"economy":         0,
		"premium economy": 1,
		"business":        2,
		"first":           3,
	}
)

// SeatClassIndex returns the position of seatClass in the seating class
// dropdown, which lists different options for domestic US trips.
func SeatClassIndex(seatClass string, domesticUS bool) (int, error) {
	options := internationalOptions
	if domesticUS {
		options = domesticOptions
	}
	idx, ok := options[strings.ToLower(strings.TrimSpace(seatClass))]
	if !ok {
		return 0, fmt.Errorf("unknown seat class %q", seatClass)
	}
	return idx, nil
}
