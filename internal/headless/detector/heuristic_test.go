package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectSorryRedirect(t *testing.T) {
	t.Parallel()

	v := NewHeuristic().Inspect("https://www.google.com/sorry/index?continue=x", nil)
	require.True(t, v.Blocked)
	assert.Contains(t, v.Reason, "/sorry/")
}

func TestInspectCaptchaWidgets(t *testing.T) {
	t.Parallel()

	pages := map[string]string{
		"form":   `<html><body><form id="captcha-form"><input name="q"></form></body></html>`,
		"iframe": `<html><body><iframe src="https://www.google.com/recaptcha/api2/anchor"></iframe></body></html>`,
		"div":    `<html><body><div class="g-recaptcha" data-sitekey="x"></div></body></html>`,
	}
	for name, html := range pages {
		v := NewHeuristic().Inspect("https://www.google.com/travel/flights", []byte(html))
		assert.True(t, v.Blocked, name)
		assert.Contains(t, v.Reason, "matched", name)
	}
}

func TestInspectUnusualTrafficText(t *testing.T) {
	t.Parallel()

	html := `<html><body><p>Our   systems have detected
		unusual traffic from your computer network.</p></body></html>`
	v := NewHeuristic().Inspect("https://www.google.com/travel/flights", []byte(html))
	require.True(t, v.Blocked)
	assert.Contains(t, v.Reason, "unusual traffic")
}

func TestInspectResultsPage(t *testing.T) {
	t.Parallel()

	html := `<html><body><ul role="list"><li><div aria-label="From 300 US dollars round trip total."></div></li></ul></body></html>`
	assert.False(t, NewHeuristic().Inspect("https://www.google.com/travel/flights/search?tfs=x", []byte(html)).Blocked)
	assert.False(t, NewHeuristic().Inspect("https://www.google.com/travel/flights", nil).Blocked)
}
