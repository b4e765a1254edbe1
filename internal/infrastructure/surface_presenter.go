package infrastructure

import (
	"context"
	"sync"
	"time"

	"adrotator/internal/domain"
	"adrotator/pkg/logger"
)

// Showing is one entry of the display history
type Showing struct {
	Ad      domain.Ad `json:"ad"`
	ShownAt time.Time `json:"shown_at"`
}

// SurfacePresenter is the display surface behind the HTTP API. It implements
// domain.Presenter and is safe to read from request goroutines.
type SurfacePresenter struct {
	mutex      sync.RWMutex
	current    *Showing
	history    []Showing
	maxHistory int

	activity domain.ActivityRepository
	logger   *logger.Logger
	now      func() time.Time
}

func NewSurfacePresenter(activity domain.ActivityRepository, maxHistory int, logger *logger.Logger) *SurfacePresenter {
	if maxHistory < 1 {
		maxHistory = 1
	}
	return &SurfacePresenter{
		maxHistory: maxHistory,
		activity:   activity,
		logger:     logger,
		now:        time.Now,
	}
}

func (p *SurfacePresenter) Show(ad domain.Ad) {
	showing := Showing{Ad: ad, ShownAt: p.now()}

	p.mutex.Lock()
	p.current = &showing
	p.history = append(p.history, showing)
	if over := len(p.history) - p.maxHistory; over > 0 {
		p.history = append(p.history[:0:0], p.history[over:]...)
	}
	p.mutex.Unlock()

	if err := p.activity.Record(context.Background(), ad.ID, domain.ActivityShow, showing.ShownAt); err != nil {
		p.logger.WithError(err).WithField("ad_id", ad.ID).Warn("Failed to record ad show")
	}
}

func (p *SurfacePresenter) Hide() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.current = nil
}

// Current returns the visible ad, if any
func (p *SurfacePresenter) Current() (Showing, bool) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	if p.current == nil {
		return Showing{}, false
	}
	return *p.current, true
}

// History returns recent showings, oldest first
func (p *SurfacePresenter) History() []Showing {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return append([]Showing(nil), p.history...)
}
