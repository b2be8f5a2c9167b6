package headless

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
	"github.com/JakeFAU/flight-fare-crawler/internal/flights/parse"
	"github.com/JakeFAU/flight-fare-crawler/internal/flights/validate"
	"github.com/JakeFAU/flight-fare-crawler/internal/headless/detector"
)

const (
	resultAttempts = 3
	resultBackoff  = 500 * time.Millisecond
	pollInterval   = 100 * time.Millisecond
)

// Limiter paces navigations to a host.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Detector recognises block pages.
type Detector interface {
	Inspect(pageURL string, html []byte) detector.Verdict
}

// Scraper implements batch.Scraper with chromedp. Each Scrape runs in its own
// browser so concurrent tasks never share cookies or tabs.
type Scraper struct {
	cfg         Config
	limiter     Limiter
	detector    Detector
	logger      *zap.Logger
	allocator   context.Context
	allocCancel context.CancelFunc
}

var _ batch.Scraper = (*Scraper)(nil)

// Option customises a Scraper.
type Option func(*Scraper)

// WithDetector replaces the heuristic block-page detector.
func WithDetector(d Detector) Option {
	return func(s *Scraper) {
		if d != nil {
			s.detector = d
		}
	}
}

// New creates a Scraper. limiter may be nil.
func New(cfg Config, limiter Limiter, logger *zap.Logger, opts ...Option) *Scraper {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("start-maximized", true),
	)
	if cfg.Headful {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	} else {
		allocOpts = append(allocOpts, chromedp.Flag("headless", "new"))
	}
	if cfg.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	s := &Scraper{
		cfg:         cfg,
		limiter:     limiter,
		detector:    detector.NewHeuristic(),
		logger:      logger,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close shuts down every browser started by the Scraper.
func (s *Scraper) Close() {
	s.allocCancel()
}

// Scrape fills in the search form for task and reads back the selected
// itinerary. The returned itinerary may be partial when a transient error is
// reported.
func (s *Scraper) Scrape(ctx context.Context, task batch.Task) (batch.Itinerary, error) {
	if err := validate.Task(task); err != nil {
		return batch.Itinerary{}, err
	}
	option, err := SeatClassIndex(task.SeatClass, validate.IsDomesticUS(task.DepartureCountry, task.ArrivalCountry))
	if err != nil {
		return batch.Itinerary{}, err
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, s.cfg.BaseURL); err != nil {
			return batch.Itinerary{}, err
		}
	}

	tabCtx, cancel := chromedp.NewContext(s.allocator)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	logger := s.logger.With(zap.String("route", task.Route()))
	if err := chromedp.Run(tabCtx,
		s.networkSetupAction(),
		chromedp.Navigate(s.cfg.BaseURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return batch.Itinerary{}, s.ctxErr(ctx, fmt.Errorf("open search page: %w", err))
	}
	if err := s.checkBlocked(tabCtx); err != nil {
		return batch.Itinerary{}, err
	}
	if err := s.fillSearchForm(tabCtx, task, option); err != nil {
		return batch.Itinerary{}, s.ctxErr(ctx, err)
	}

	var itin batch.Itinerary
	for _, leg := range []struct {
		name string
		dst  *batch.Leg
	}{
		{"departure flight", &itin.Outbound},
		{"return flight", &itin.Inbound},
	} {
		parsed, err := s.selectBestFlight(tabCtx, leg.name)
		if err != nil {
			if blocked := s.checkBlocked(tabCtx); blocked != nil {
				return itin, blocked
			}
			return itin, s.ctxErr(ctx, err)
		}
		*leg.dst = parsed
	}
	logger.Debug("flights selected",
		zap.String("outbound_airline", itin.Outbound.Airline),
		zap.String("inbound_airline", itin.Inbound.Airline))

	price, err := s.finalPrice(tabCtx)
	if err != nil || price == nil {
		if ctx.Err() != nil {
			return itin, ctx.Err()
		}
		return itin, &batch.TransientError{Kind: batch.TransientPriceNotFound, Err: err}
	}
	itin.Price = price
	if err := chromedp.Run(tabCtx, chromedp.Location(&itin.URL)); err != nil {
		logger.Debug("read page url", zap.Error(err))
	}
	itin.Classification, itin.Difference = s.priceInsight(tabCtx)
	return itin, nil
}

func (s *Scraper) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(s.cfg.BlockedURLs) > 0 {
			if err := network.SetBlockedURLs(s.cfg.BlockedURLs).Do(ctx); err != nil {
				return fmt.Errorf("block urls: %w", err)
			}
		}
		return nil
	})
}

// ctxErr prefers the caller's context error so timeouts and interrupts are
// not misreported as page failures.
func (s *Scraper) ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (s *Scraper) checkBlocked(ctx context.Context) error {
	var (
		location string
		html     string
	)
	if err := chromedp.Run(ctx,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return nil
	}
	return s.inspect(location, html)
}

// inspect maps a blocked verdict to batch.ErrCaptchaDetected.
func (s *Scraper) inspect(location, html string) error {
	if v := s.detector.Inspect(location, []byte(html)); v.Blocked {
		s.logger.Warn("block page detected", zap.String("url", location), zap.String("reason", v.Reason))
		return fmt.Errorf("%w: %s", batch.ErrCaptchaDetected, v.Reason)
	}
	return nil
}

func (s *Scraper) step(ctx context.Context, what string, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
	defer cancel()
	if err := chromedp.Run(stepCtx, actions...); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

func (s *Scraper) fillSearchForm(ctx context.Context, task batch.Task, option int) error {
	if err := s.step(ctx, "entering departure airport",
		chromedp.Click(`input[aria-label='Where from?']`, chromedp.ByQuery),
		chromedp.Sleep(time.Second),
		typeInto(`input[aria-label*='Where else?']`, 1, task.DepartureCode, kb.ArrowDown, kb.Enter),
	); err != nil {
		return err
	}
	if err := s.step(ctx, "entering arrival airport",
		chromedp.Click(`input[aria-label='Where to? ']`, chromedp.ByQuery),
		typeInto(`input[aria-label*='Where to?']`, 1, task.ArrivalCode, kb.ArrowDown, kb.Enter),
	); err != nil {
		return err
	}
	if err := s.step(ctx, "entering departure date",
		chromedp.Click(`input[aria-label='Departure']`, chromedp.ByQuery),
		chromedp.Sleep(time.Second),
		typeInto(`input[aria-label='Departure']`, 1, task.StartDate),
	); err != nil {
		return &batch.TransientError{Kind: batch.TransientDateEntry, Err: err}
	}
	if err := s.step(ctx, "entering return date",
		typeInto(`input[aria-label='Return']`, 1, task.EndDate, kb.Enter, kb.Enter),
	); err != nil {
		return err
	}
	var clicked bool
	if err := s.step(ctx, "selecting seat class",
		chromedp.Click(`div[role='combobox'] span[aria-label='Change seating class.']`, chromedp.ByQuery),
		chromedp.Poll(clickNthScript("ul[role='listbox']", 1, "li[role='option']", option), &clicked,
			chromedp.WithPollingInterval(pollInterval)),
	); err != nil {
		return err
	}
	return s.step(ctx, "pressing search button",
		chromedp.Click(`button[aria-label='Search']`, chromedp.ByQuery),
	)
}

// selectBestFlight waits for results, parses the first one and clicks it to
// move on to the next page.
func (s *Scraper) selectBestFlight(ctx context.Context, name string) (batch.Leg, error) {
	var lastErr error
	for attempt := 1; attempt <= resultAttempts; attempt++ {
		leg, err := s.tryBestFlight(ctx, name)
		if err == nil {
			return leg, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < resultAttempts {
			if err := chromedp.Run(ctx, chromedp.Sleep(resultBackoff)); err != nil {
				break
			}
		}
	}
	return batch.Leg{}, fmt.Errorf("finding %s: %w", name, lastErr)
}

func (s *Scraper) tryBestFlight(ctx context.Context, name string) (batch.Leg, error) {
	if err := s.waitStable(ctx, s.cfg.StableFor, s.cfg.StepTimeout); err != nil {
		return batch.Leg{}, err
	}
	doc, err := s.document(ctx)
	if err != nil {
		return batch.Leg{}, err
	}
	label, ok := firstResultLabel(doc)
	if !ok {
		return batch.Leg{}, fmt.Errorf("no %s found", name)
	}
	leg, _ := parse.Leg(label)
	var clicked bool
	if err := s.step(ctx, "selecting "+name,
		chromedp.Poll(clickNthScript(resultListSelector, 1, "li", 0), &clicked,
			chromedp.WithPollingInterval(pollInterval)),
	); err != nil {
		return batch.Leg{}, err
	}
	return leg, nil
}

func (s *Scraper) finalPrice(ctx context.Context) (*int, error) {
	var (
		label string
		ok    bool
	)
	waitCtx, cancel := context.WithTimeout(ctx, 2*s.cfg.StepTimeout)
	defer cancel()
	if err := chromedp.Run(waitCtx,
		chromedp.Sleep(time.Second),
		chromedp.WaitVisible(finalPriceSelector, chromedp.ByQuery),
		chromedp.AttributeValue(finalPriceSelector, "aria-label", &label, &ok, chromedp.ByQuery),
	); err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("price label missing")
	}
	return parse.FinalPrice(label), nil
}

// priceInsight reads the optional fare level banner. Its absence is normal.
func (s *Scraper) priceInsight(ctx context.Context) (batch.Classification, *int) {
	if err := s.waitStable(ctx, time.Second, 2*time.Second); err != nil {
		s.logger.Debug("progress bar did not settle", zap.Error(err))
	}
	doc, err := s.document(ctx)
	if err != nil {
		return "", nil
	}
	text, ok := insightText(doc)
	if !ok {
		return "", nil
	}
	return parse.Insight(text)
}

func (s *Scraper) document(ctx context.Context) (*goquery.Document, error) {
	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}

// waitStable polls the progress bar class until it has not changed for
// stableFor, giving up after timeout.
func (s *Scraper) waitStable(ctx context.Context, stableFor, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	st := stability{stableFor: stableFor}
	script := fmt.Sprintf(`(() => { const el = document.querySelector(%q); return el ? el.className : %q; })()`,
		progressSelector, missingClass)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		var class string
		if err := chromedp.Run(waitCtx, chromedp.Evaluate(script, &class)); err != nil {
			return fmt.Errorf("results did not settle within %s: %w", timeout, err)
		}
		if st.observe(class, time.Now()) {
			return nil
		}
		select {
		case <-waitCtx.Done():
			return fmt.Errorf("results did not settle within %s: %w", timeout, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

// typeInto replaces the value of the nth element matching sel with text and
// then presses keys.
func typeInto(sel string, nth int, text string, keys ...string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var nodes []*cdp.Node
		if err := chromedp.Nodes(sel, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(nth+1)).Do(ctx); err != nil {
			return err
		}
		ids := []cdp.NodeID{nodes[nth].NodeID}
		actions := []chromedp.Action{
			chromedp.Clear(ids, chromedp.ByNodeID),
			chromedp.SendKeys(ids, text, chromedp.ByNodeID),
		}
		for _, k := range keys {
			actions = append(actions, chromedp.SendKeys(ids, k, chromedp.ByNodeID))
		}
		return chromedp.Tasks(actions).Do(ctx)
	})
}

// clickNthScript builds an expression that clicks the index-th child matching
// childSel inside the nth container matching containerSel. It evaluates to
// false until both exist.
func clickNthScript(containerSel string, nth int, childSel string, index int) string {
	return fmt.Sprintf(`(() => {
  const box = document.querySelectorAll(%q)[%d];
  if (!box) return false;
  const items = box.querySelectorAll(%q);
  if (items.length <= %d) return false;
  items[%d].click();
  return true;
})()`, containerSel, nth, childSel, index, index)
}
