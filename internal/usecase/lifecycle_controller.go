package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"adrotator/internal/domain"
	"adrotator/pkg/config"
	"adrotator/pkg/logger"
	"adrotator/pkg/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Option customises a LifecycleController
type Option func(*LifecycleController)

// WithClock replaces the wall clock, for tests
func WithClock(clock Clock) Option {
	return func(c *LifecycleController) {
		c.clock = clock
	}
}

// WithRand seeds both the selector and the rotation jitter
func WithRand(rnd *rand.Rand) Option {
	return func(c *LifecycleController) {
		c.rnd = rnd
	}
}

// LifecycleController is the engine state machine. Every field below the
// scheduler is only read or written on the scheduler loop.
type LifecycleController struct {
	cfg       config.RotationConfig
	inventory domain.InventoryClient
	presenter domain.Presenter
	logger    *logger.Logger
	metrics   *metrics.Metrics
	clock     Clock
	rnd       *rand.Rand
	engineID  string

	sched    *Scheduler
	pool     *AdPool
	selector *Selector

	rotation *Cycle
	reload   *Cycle
	retry    *Cycle
	reset    *Cycle

	ctx    context.Context
	cancel context.CancelFunc

	state    domain.EngineState
	started  bool
	inFlight bool
	current  *domain.Ad
}

func NewLifecycleController(
	cfg config.RotationConfig,
	inventory domain.InventoryClient,
	presenter domain.Presenter,
	log *logger.Logger,
	m *metrics.Metrics,
	opts ...Option,
) *LifecycleController {
	c := &LifecycleController{
		cfg:       cfg,
		inventory: inventory,
		presenter: presenter,
		logger:    log,
		metrics:   m,
		engineID:  uuid.New().String(),
		state:     domain.StateLoading,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.clock == nil {
		c.clock = RealClock()
	}
	if c.rnd == nil {
		c.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	c.sched = NewScheduler(c.clock, log)
	c.pool = NewAdPool(cfg.ImpressionCeiling)
	c.selector = NewSelector(c.rnd)

	c.rotation = c.sched.NewCycle("rotation", true, c.nextRotationInterval, c.onRotationTick)
	c.reload = c.sched.NewCycle("reload", true, func() time.Duration { return cfg.ReloadPeriod }, c.onReloadTick)
	c.retry = c.sched.NewCycle("retry", false, func() time.Duration { return cfg.RetryDelay }, c.onRetryTick)
	c.reset = c.sched.NewCycle("impression_reset", true, func() time.Duration { return cfg.ImpressionResetPeriod }, c.onImpressionReset)

	c.ctx, c.cancel = context.WithCancel(context.WithValue(context.Background(), logger.EngineIDKey, c.engineID))

	// the loop lives until Destroy
	c.sched.Start()

	return c
}

func (c *LifecycleController) EngineID() string {
	return c.engineID
}

// Start enters Loading and triggers the first reload
func (c *LifecycleController) Start(ctx context.Context) error {
	var err error
	ok := c.sched.Do(func() {
		if c.state == domain.StateDestroyed {
			err = domain.ErrEngineDestroyed
			return
		}
		if c.started {
			return
		}
		c.started = true

		if c.state == domain.StatePaused {
			// paused before start: the first load happens on Resume
			c.log().Info("Engine started while paused, deferring first load")
			return
		}

		c.log().Info("Starting ad rotation engine")
		c.setState(domain.StateLoading)
		c.reload.Start()
		if c.cfg.ImpressionResetPeriod > 0 {
			c.reset.Start()
		}
		c.requestReload("start")
	})
	if !ok {
		return domain.ErrEngineDestroyed
	}
	if err != nil {
		return err
	}

	// tie the engine lifetime to ctx
	go func() {
		select {
		case <-ctx.Done():
			c.Destroy()
		case <-c.ctx.Done():
		}
	}()

	return nil
}

// Pause suspends both cycles and hides the surface
func (c *LifecycleController) Pause() {
	c.sched.Do(func() {
		if c.state == domain.StateDestroyed || c.state == domain.StatePaused {
			return
		}
		c.stopCycles()
		c.hide()
		c.setState(domain.StatePaused)
		c.log().Info("Ad rotation paused")
	})
}

// Resume leaves Paused and reloads immediately
func (c *LifecycleController) Resume() {
	c.sched.Do(func() {
		if c.state != domain.StatePaused {
			return
		}
		c.setState(domain.StateLoading)
		c.reload.Start()
		if c.cfg.ImpressionResetPeriod > 0 {
			c.reset.Start()
		}
		c.log().Info("Ad rotation resumed")
		c.requestReload("resume")
	})
}

// Destroy is terminal; late fetch results are discarded
func (c *LifecycleController) Destroy() {
	c.sched.Do(func() {
		if c.state == domain.StateDestroyed {
			return
		}
		c.stopCycles()
		c.hide()
		c.pool.Clear()
		c.metrics.SetPoolSize(0)
		c.setState(domain.StateDestroyed)
		c.log().Info("Ad rotation engine destroyed")
	})
	c.cancel()
	c.sched.Close()
}

// Activate handles a user activation of adID and returns the ad so the host
// can perform the external action
func (c *LifecycleController) Activate(adID string) (domain.Ad, error) {
	var (
		ad  domain.Ad
		err error
	)

	ok := c.sched.Do(func() {
		ad, err = c.activate(adID)
	})
	if !ok {
		c.metrics.RecordActivationFailure("destroyed")
		return domain.Ad{}, domain.ErrEngineDestroyed
	}
	return ad, err
}

func (c *LifecycleController) State() domain.EngineState {
	state := domain.StateDestroyed
	c.sched.Do(func() {
		state = c.state
	})
	return state
}

// Current returns the ad last handed to the presenter, if it is still visible
func (c *LifecycleController) Current() (domain.Ad, bool) {
	var (
		ad domain.Ad
		ok bool
	)
	c.sched.Do(func() {
		if c.current != nil {
			ad, ok = *c.current, true
		}
	})
	return ad, ok
}

func (c *LifecycleController) PoolSize() int {
	n := 0
	c.sched.Do(func() {
		n = c.pool.Len()
	})
	return n
}

// Everything below runs on the scheduler loop.

func (c *LifecycleController) activate(adID string) (domain.Ad, error) {
	if c.state == domain.StateDestroyed {
		c.metrics.RecordActivationFailure("destroyed")
		return domain.Ad{}, domain.ErrEngineDestroyed
	}

	ad, ok := c.pool.RecordClick(adID)
	if !ok {
		if c.current == nil || c.current.ID != adID {
			c.metrics.RecordActivationFailure("not_found")
			return domain.Ad{}, fmt.Errorf("activate %q: %w", adID, domain.ErrAdNotFound)
		}
		// shown ad already left the pool; still honour the click
		c.current.Clicks++
		ad = *c.current
	}

	c.metrics.RecordClick()
	c.inventory.ReportClick(adID)

	if c.current != nil && c.current.ID == adID {
		c.current.Clicks = ad.Clicks
	}

	log := c.log().WithFields(logrus.Fields{
		"ad_id":      adID,
		"clicks":     ad.Clicks,
		"max_clicks": ad.MaxClicks.String(),
	})
	log.Debug("Ad activated")

	if ad.ClickCeilingReached() && c.pool.Remove(adID) {
		c.metrics.SetPoolSize(c.pool.Len())
		log.Info("Click ceiling reached, ad removed from pool")
		c.handleDrained("click_ceiling")
	}

	return ad, nil
}

func (c *LifecycleController) onRotationTick() {
	if c.state != domain.StateActive {
		return
	}
	c.showNext()
}

func (c *LifecycleController) showNext() {
	ad, ok := c.selector.Select(c.pool)
	if !ok {
		c.metrics.RecordRotation("empty")
		c.handleDrained("rotation")
		return
	}

	count := c.pool.RecordImpression(ad.ID)
	if shown, ok := c.pool.RecordShown(ad.ID); ok {
		ad = shown
	}
	c.metrics.RecordRotation("shown")
	c.metrics.RecordImpression()
	c.inventory.ReportImpression(ad.ID)

	if !c.pool.IsEligible(ad) {
		// session ceiling or the ad's own impression budget reached with this showing
		c.pool.Remove(ad.ID)
		c.metrics.SetPoolSize(c.pool.Len())
	}

	c.current = &ad
	c.presenter.Show(ad)

	c.log().WithFields(logrus.Fields{
		"ad_id":       ad.ID,
		"impressions": count,
	}).Debug("Showing ad")
}

// handleDrained moves to Empty when nothing selectable is left
func (c *LifecycleController) handleDrained(reason string) {
	if c.state != domain.StateActive {
		return
	}
	if c.pool.HasEligible() {
		return
	}
	c.rotation.Stop()
	c.hide()
	c.setState(domain.StateEmpty)
	c.log().WithField("reason", reason).Info("Ad pool drained")
	c.requestReload("drained")
}

func (c *LifecycleController) onReloadTick() {
	c.requestReload("periodic")
}

func (c *LifecycleController) onRetryTick() {
	c.requestReload("retry")
}

func (c *LifecycleController) onImpressionReset() {
	c.pool.ResetImpressions()
	c.log().Debug("Session impression counters reset")
}

// requestReload issues a fetch unless one is already outstanding
func (c *LifecycleController) requestReload(trigger string) {
	if c.state == domain.StatePaused || c.state == domain.StateDestroyed {
		return
	}
	if c.inFlight {
		c.metrics.RecordReload("coalesced")
		c.log().WithField("trigger", trigger).Debug("Reload already in flight, coalescing")
		return
	}
	c.inFlight = true

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.FetchTimeout)
	start := c.clock.Now()

	go func() {
		defer cancel()
		records, err := c.inventory.FetchEligibleAds(ctx)
		c.sched.Post(func() {
			c.onFetchComplete(records, err, start)
		})
	}()
}

func (c *LifecycleController) onFetchComplete(records []domain.AdRecord, err error, start time.Time) {
	c.inFlight = false
	c.metrics.ObserveReloadDuration(c.clock.Now().Sub(start))

	if c.state == domain.StatePaused || c.state == domain.StateDestroyed {
		c.metrics.RecordReload("dropped")
		c.log().WithField("state", c.state.String()).Debug("Dropping fetch result")
		return
	}

	if err != nil {
		c.onFetchFailed(err)
		return
	}

	c.retry.Stop()

	ads := c.buildPool(records)
	c.pool.Replace(ads)
	c.metrics.SetPoolSize(len(ads))

	if len(ads) == 0 {
		c.metrics.RecordReload("empty")
		c.rotation.Stop()
		c.hide()
		c.setState(domain.StateEmpty)
		return
	}

	c.metrics.RecordReload("success")
	c.setState(domain.StateActive)

	if !c.rotation.Running() {
		c.showNext()
		if c.state == domain.StateActive {
			c.rotation.Start()
		}
	}
}

func (c *LifecycleController) onFetchFailed(err error) {
	fields := logrus.Fields{"retry_in": c.cfg.RetryDelay}

	var fetchErr *domain.FetchError
	if errors.As(err, &fetchErr) {
		fields["error_kind"] = string(fetchErr.Kind)
		if fetchErr.Kind == domain.FetchServer {
			fields["status_code"] = fetchErr.Code
		}
	} else {
		fields["error_kind"] = "unknown"
	}

	c.metrics.RecordReload("failure")
	c.log().WithError(err).WithFields(fields).Warn("Inventory fetch failed, keeping current state")

	c.retry.StartAfter(c.cfg.RetryDelay)
}

// buildPool converts records and keeps only eligible ads, in response order
func (c *LifecycleController) buildPool(records []domain.AdRecord) []domain.Ad {
	ads := make([]domain.Ad, 0, len(records))
	seen := make(map[string]struct{}, len(records))

	for _, record := range records {
		ad, err := record.ToAd()
		if err != nil {
			c.metrics.RecordSkippedRecord("invalid")
			c.log().WithError(err).Warn("Skipping invalid ad record")
			continue
		}
		if _, dup := seen[ad.ID]; dup {
			c.metrics.RecordSkippedRecord("duplicate")
			continue
		}
		seen[ad.ID] = struct{}{}

		if !c.pool.IsEligible(ad) {
			c.metrics.RecordSkippedRecord("ineligible")
			continue
		}
		ads = append(ads, ad)
	}

	return ads
}

func (c *LifecycleController) nextRotationInterval() time.Duration {
	jitter := c.cfg.OffPeakJitter
	if c.cfg.IsPeak(c.clock.Now()) {
		jitter = c.cfg.PeakJitter
	}
	if jitter <= 0 {
		return c.cfg.MinInterval
	}
	return c.cfg.MinInterval + time.Duration(c.rnd.Int63n(int64(jitter)))
}

func (c *LifecycleController) stopCycles() {
	c.rotation.Stop()
	c.reload.Stop()
	c.retry.Stop()
	c.reset.Stop()
}

func (c *LifecycleController) hide() {
	c.current = nil
	c.presenter.Hide()
}

func (c *LifecycleController) setState(state domain.EngineState) {
	if c.state != state {
		c.log().WithFields(logrus.Fields{
			"from": c.state.String(),
			"to":   state.String(),
		}).Info("Engine state changed")
	}
	c.state = state

	names := make([]string, 0, 5)
	for _, s := range domain.AllEngineStates() {
		names = append(names, s.String())
	}
	c.metrics.SetEngineState(state.String(), names)
}

func (c *LifecycleController) log() *logrus.Entry {
	return c.logger.WithContext(c.ctx)
}
