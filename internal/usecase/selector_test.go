package usecase

import (
	"math"
	"math/rand"
	"testing"

	"adrotator/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightDecreasesTowardsClickCeiling(t *testing.T) {
	prev := math.Inf(1)
	for clicks := 0; clicks < 10; clicks++ {
		w := Weight(ad("a", clicks, domain.LimitOf(10)), 0, 0)
		assert.GreaterOrEqual(t, w, MinWeight)
		if clicks <= 8 {
			assert.Less(t, w, prev, "clicks=%d", clicks)
		}
		prev = w
	}

	assert.InDelta(t, 1.0, Weight(ad("a", 0, domain.LimitOf(10)), 0, 0), 1e-9)
	assert.InDelta(t, 0.5, Weight(ad("a", 5, domain.LimitOf(10)), 0, 0), 1e-9)
	assert.InDelta(t, MinWeight, Weight(ad("a", 9, domain.LimitOf(10)), 0, 0), 1e-9)
	assert.InDelta(t, MinWeight, Weight(ad("a", 99, domain.LimitOf(100)), 0, 0), 1e-9)
}

func TestWeightCombinesImpressions(t *testing.T) {
	a := ad("a", 2, domain.LimitOf(4))

	assert.InDelta(t, 0.5, Weight(a, 0, 10), 1e-9)
	assert.InDelta(t, 0.25, Weight(a, 5, 10), 1e-9)
	assert.InDelta(t, MinWeight, Weight(a, 9, 10), 1e-9)
	// no ceiling ignores impressions
	assert.InDelta(t, 0.5, Weight(a, 500, 0), 1e-9)
	assert.InDelta(t, 1.0, Weight(ad("u", 50, domain.Unlimited()), 0, 0), 1e-9)
}

func TestSelectEmptyPool(t *testing.T) {
	sel := NewSelector(rand.New(rand.NewSource(1)))

	_, ok := sel.Select(NewAdPool(0))
	assert.False(t, ok)

	pool := NewAdPool(0)
	pool.Replace([]domain.Ad{ad("full", 3, domain.LimitOf(3))})
	_, ok = sel.Select(pool)
	assert.False(t, ok, "only ineligible ads")
}

func TestSelectFrequencyMatchesWeights(t *testing.T) {
	pool := NewAdPool(0)
	pool.Replace([]domain.Ad{
		ad("a", 0, domain.LimitOf(10)),  // 1.0
		ad("b", 8, domain.LimitOf(10)),  // 0.2
		ad("c", 0, domain.Unlimited()),  // 1.0
		ad("d", 3, domain.LimitOf(4)),   // 0.25
		ad("x", 10, domain.LimitOf(10)), // ineligible
	})

	weights := map[string]float64{"a": 1.0, "b": 0.2, "c": 1.0, "d": 0.25}
	total := 2.45

	sel := NewSelector(rand.New(rand.NewSource(7)))
	const draws = 100000
	counts := map[string]int{}
	for i := 0; i < draws; i++ {
		got, ok := sel.Select(pool)
		require.True(t, ok)
		counts[got.ID]++
	}

	assert.Zero(t, counts["x"])
	for id, w := range weights {
		expected := w / total
		observed := float64(counts[id]) / draws
		assert.InEpsilon(t, expected, observed, 0.05, "ad %s", id)
	}
}

func TestSelectPrefersFreshAd(t *testing.T) {
	pool := NewAdPool(0)
	pool.Replace([]domain.Ad{
		ad("A", 0, domain.LimitOf(10)),
		ad("B", 9, domain.LimitOf(10)),
	})

	sel := NewSelector(rand.New(rand.NewSource(3)))
	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		got, _ := sel.Select(pool)
		counts[got.ID]++
	}
	assert.Greater(t, counts["A"], counts["B"])
	assert.NotZero(t, counts["B"], "floor keeps B selectable")

	_, ok := pool.RecordClick("B")
	require.True(t, ok)
	for i := 0; i < 2000; i++ {
		got, ok := sel.Select(pool)
		require.True(t, ok)
		require.Equal(t, "A", got.ID)
	}
}

func TestSelectIsReproducible(t *testing.T) {
	pool := NewAdPool(5)
	pool.Replace([]domain.Ad{
		ad("a", 1, domain.LimitOf(4)),
		ad("b", 0, domain.Unlimited()),
		ad("c", 2, domain.LimitOf(3)),
	})
	pool.RecordImpression("b")

	run := func() []string {
		sel := NewSelector(rand.New(rand.NewSource(99)))
		var out []string
		for i := 0; i < 50; i++ {
			got, _ := sel.Select(pool)
			out = append(out, got.ID)
		}
		return out
	}

	assert.Equal(t, run(), run())
}

func TestPickBoundaries(t *testing.T) {
	candidates := []domain.Ad{ad("a", 0, domain.Unlimited()), ad("b", 0, domain.Unlimited())}
	weights := []float64{0.5, 0.5}

	assert.Equal(t, "a", pick(candidates, weights, 0).ID)
	assert.Equal(t, "a", pick(candidates, weights, 0.4999).ID)
	// equal to the first boundary goes to the next ad
	assert.Equal(t, "b", pick(candidates, weights, 0.5).ID)
	assert.Equal(t, "b", pick(candidates, weights, 1.0).ID)
}
