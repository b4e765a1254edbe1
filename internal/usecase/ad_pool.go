package usecase

import (
	"adrotator/internal/domain"
)

// AdPool holds the current ad snapshot and per-session impression counters.
// It is owned by the scheduler loop and is not safe for concurrent use.
type AdPool struct {
	ads         []domain.Ad
	impressions map[string]int
	ceiling     int
}

// NewAdPool creates an empty pool. ceiling <= 0 disables the impression ceiling.
func NewAdPool(ceiling int) *AdPool {
	if ceiling < 0 {
		ceiling = 0
	}
	return &AdPool{
		impressions: make(map[string]int),
		ceiling:     ceiling,
	}
}

// Replace swaps the visible sequence. Counters are kept.
func (p *AdPool) Replace(ads []domain.Ad) {
	next := make([]domain.Ad, len(ads))
	copy(next, ads)
	p.ads = next
}

// Snapshot returns the current sequence. The slice is never written to after
// it has been published, so callers may hold it across later replaces.
func (p *AdPool) Snapshot() []domain.Ad {
	return p.ads
}

func (p *AdPool) Len() int {
	return len(p.ads)
}

func (p *AdPool) Get(id string) (domain.Ad, bool) {
	for _, ad := range p.ads {
		if ad.ID == id {
			return ad, true
		}
	}
	return domain.Ad{}, false
}

// RecordImpression increments the session counter for id and returns the new value
func (p *AdPool) RecordImpression(id string) int {
	p.impressions[id]++
	return p.impressions[id]
}

func (p *AdPool) Impressions(id string) int {
	return p.impressions[id]
}

func (p *AdPool) Ceiling() int {
	return p.ceiling
}

func (p *AdPool) IsEligible(ad domain.Ad) bool {
	if ad.Status != domain.StatusActive {
		return false
	}
	if ad.ClickCeilingReached() || ad.ImpressionLimitReached() {
		return false
	}
	if p.ceiling > 0 && p.impressions[ad.ID] >= p.ceiling {
		return false
	}
	return true
}

func (p *AdPool) HasEligible() bool {
	for _, ad := range p.ads {
		if p.IsEligible(ad) {
			return true
		}
	}
	return false
}

// RecordClick bumps the local click count of id in a fresh snapshot
func (p *AdPool) RecordClick(id string) (domain.Ad, bool) {
	return p.update(id, func(ad *domain.Ad) { ad.Clicks++ })
}

// RecordShown bumps the per-ad impression count of id in a fresh snapshot.
// Unlike the session counter it is replaced by the inventory value on reload.
func (p *AdPool) RecordShown(id string) (domain.Ad, bool) {
	return p.update(id, func(ad *domain.Ad) { ad.Impressions++ })
}

func (p *AdPool) update(id string, mutate func(*domain.Ad)) (domain.Ad, bool) {
	idx := p.indexOf(id)
	if idx < 0 {
		return domain.Ad{}, false
	}

	next := make([]domain.Ad, len(p.ads))
	copy(next, p.ads)
	mutate(&next[idx])
	p.ads = next

	return next[idx], true
}

// Remove publishes a snapshot without id
func (p *AdPool) Remove(id string) bool {
	idx := p.indexOf(id)
	if idx < 0 {
		return false
	}

	next := make([]domain.Ad, 0, len(p.ads)-1)
	next = append(next, p.ads[:idx]...)
	next = append(next, p.ads[idx+1:]...)
	p.ads = next

	return true
}

// ResetImpressions clears every session counter
func (p *AdPool) ResetImpressions() {
	p.impressions = make(map[string]int)
}

// Clear drops both the snapshot and the counters
func (p *AdPool) Clear() {
	p.ads = nil
	p.ResetImpressions()
}

func (p *AdPool) indexOf(id string) int {
	for i, ad := range p.ads {
		if ad.ID == id {
			return i
		}
	}
	return -1
}
