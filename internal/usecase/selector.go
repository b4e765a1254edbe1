package usecase

import (
	"math/rand"

	"adrotator/internal/domain"
)

// MinWeight keeps ads close to a ceiling selectable until they cross it
const MinWeight = 0.1

// Selector picks the next ad by cumulative-weight sampling.
// The random source is only touched on the scheduler loop.
type Selector struct {
	rnd *rand.Rand
}

func NewSelector(rnd *rand.Rand) *Selector {
	return &Selector{rnd: rnd}
}

// Weight computes the selection weight of ad given its session impressions.
// ceiling <= 0 means no impression ceiling.
func Weight(ad domain.Ad, impressions, ceiling int) float64 {
	clickRatio := 0.0
	if limit, ok := ad.MaxClicks.Get(); ok {
		if limit <= 0 {
			clickRatio = 1
		} else {
			clickRatio = float64(ad.Clicks) / float64(limit)
		}
	}

	impressionRatio := 0.0
	if ceiling > 0 {
		impressionRatio = float64(impressions) / float64(ceiling)
	}

	w := (1 - clickRatio) * (1 - impressionRatio)
	if w < MinWeight {
		return MinWeight
	}
	return w
}

// Select returns false when the pool has nothing eligible
func (s *Selector) Select(pool *AdPool) (domain.Ad, bool) {
	snapshot := pool.Snapshot()

	candidates := make([]domain.Ad, 0, len(snapshot))
	weights := make([]float64, 0, len(snapshot))
	total := 0.0

	for _, ad := range snapshot {
		if !pool.IsEligible(ad) {
			continue
		}
		w := Weight(ad, pool.Impressions(ad.ID), pool.Ceiling())
		candidates = append(candidates, ad)
		weights = append(weights, w)
		total += w
	}

	if len(candidates) == 0 {
		return domain.Ad{}, false
	}

	draw := s.rnd.Float64() * total
	return pick(candidates, weights, draw), true
}

// pick walks candidates in order and returns the first whose cumulative
// weight exceeds draw
func pick(candidates []domain.Ad, weights []float64, draw float64) domain.Ad {
	cumulative := 0.0
	for i, ad := range candidates {
		cumulative += weights[i]
		if cumulative > draw {
			return ad
		}
	}
	// float rounding can leave draw == total
	return candidates[len(candidates)-1]
}
