package usecase

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"adrotator/internal/domain"
	"adrotator/pkg/config"
	"adrotator/pkg/logger"
	"adrotator/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// fakeClock only moves when advanced by the test
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *fakeClock
	at    time.Time
	f     func()
	done  bool
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	pending := !t.done
	t.done = true
	return pending
}

// fireNext runs the earliest pending timer due at or before target
func (c *fakeClock) fireNext(target time.Time) bool {
	c.mu.Lock()
	var next *fakeTimer
	for _, t := range c.timers {
		if t.done || t.at.After(target) {
			continue
		}
		if next == nil || t.at.Before(next.at) {
			next = t
		}
	}
	if next == nil {
		c.mu.Unlock()
		return false
	}
	next.done = true
	if next.at.After(c.now) {
		c.now = next.at
	}
	c.mu.Unlock()

	next.f()
	return true
}

func (c *fakeClock) setNow(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
}

// pending returns the remaining delay of every live timer, shortest first
func (c *fakeClock) pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.done {
			out = append(out, t.at.Sub(c.now))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type fetchResult struct {
	records []domain.AdRecord
	err     error
}

// fakeInventory hands every fetch to the test and waits for a reply
type fakeInventory struct {
	calls   chan chan fetchResult
	fetches atomic.Int32

	mu          sync.Mutex
	clicks      []string
	impressions []string
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{calls: make(chan chan fetchResult, 16)}
}

func (f *fakeInventory) FetchEligibleAds(ctx context.Context) ([]domain.AdRecord, error) {
	f.fetches.Add(1)
	reply := make(chan fetchResult, 1)
	f.calls <- reply

	select {
	case r := <-reply:
		return r.records, r.err
	case <-ctx.Done():
		return nil, domain.NetworkError(ctx.Err())
	}
}

func (f *fakeInventory) ReportClick(adID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = append(f.clicks, adID)
}

func (f *fakeInventory) ReportImpression(adID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.impressions = append(f.impressions, adID)
}

func (f *fakeInventory) reportedClicks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.clicks...)
}

func (f *fakeInventory) reportedImpressions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.impressions...)
}

type fakePresenter struct {
	mu      sync.Mutex
	shown   []domain.Ad
	hides   int
	visible bool
}

func (p *fakePresenter) Show(ad domain.Ad) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown = append(p.shown, ad)
	p.visible = true
}

func (p *fakePresenter) Hide() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hides++
	p.visible = false
}

func (p *fakePresenter) state() (shows int, visible bool, last domain.Ad) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.shown) > 0 {
		last = p.shown[len(p.shown)-1]
	}
	return len(p.shown), p.visible, last
}

type harness struct {
	t         *testing.T
	clock     *fakeClock
	inventory *fakeInventory
	presenter *fakePresenter
	metrics   *metrics.Metrics
	ctrl      *LifecycleController
}

// noon on a weekday, outside the default peak window
var testEpoch = time.Date(2025, 3, 3, 12, 0, 0, 0, time.Local)

func newHarness(t *testing.T, mutate ...func(*config.RotationConfig)) *harness {
	t.Helper()

	cfg := config.DefaultRotation()
	for _, m := range mutate {
		m(&cfg)
	}

	h := &harness{
		t:         t,
		clock:     newFakeClock(testEpoch),
		inventory: newFakeInventory(),
		presenter: &fakePresenter{},
		metrics:   metrics.New(prometheus.NewRegistry()),
	}
	h.ctrl = NewLifecycleController(cfg, h.inventory, h.presenter, logger.Discard(), h.metrics,
		WithClock(h.clock),
		WithRand(rand.New(rand.NewSource(42))),
	)
	t.Cleanup(h.ctrl.Destroy)

	return h
}

func (h *harness) start() {
	h.t.Helper()
	require.NoError(h.t, h.ctrl.Start(context.Background()))
}

// sync waits until every task queued so far has run
func (h *harness) sync() {
	h.ctrl.sched.Do(func() {})
}

// advance moves the clock, running each due timer and its loop task in order
func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	target := h.clock.Now().Add(d)
	for h.clock.fireNext(target) {
		h.sync()
	}
	h.clock.setNow(target)
	h.sync()
}

// respond answers the oldest outstanding fetch and waits for its result to be handled
func (h *harness) respond(records []domain.AdRecord, err error) {
	h.t.Helper()

	var reply chan fetchResult
	select {
	case reply = <-h.inventory.calls:
	case <-time.After(2 * time.Second):
		h.t.Fatal("no fetch outstanding")
	}
	reply <- fetchResult{records: records, err: err}

	require.Eventually(h.t, func() bool {
		inFlight := true
		if !h.ctrl.sched.Do(func() { inFlight = h.ctrl.inFlight }) {
			return true
		}
		return !inFlight
	}, 2*time.Second, time.Millisecond)
}

// on runs fn on the loop
func (h *harness) on(fn func()) {
	h.ctrl.sched.Do(fn)
}

func record(id string, clicks int, maxClicks *int) domain.AdRecord {
	return domain.AdRecord{
		ID:          id,
		Title:       "Ad " + id,
		ImageURL:    "https://cdn.example.com/" + id + ".png",
		RedirectURL: "https://example.com/" + id,
		Status:      string(domain.StatusActive),
		Clicks:      clicks,
		MaxClicks:   maxClicks,
	}
}

func intPtr(n int) *int {
	return &n
}

func ad(id string, clicks int, limit domain.Limit) domain.Ad {
	return domain.Ad{
		ID:          id,
		ImageURL:    "https://cdn.example.com/" + id + ".png",
		RedirectURL: "https://example.com/" + id,
		Status:      domain.StatusActive,
		Clicks:      clicks,
		MaxClicks:   limit,
	}
}
