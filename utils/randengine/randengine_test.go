package randengine_test

import (
	"testing"

	"github.com/montanaflynn/stats"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/utils/randengine"
)

func TestDeterministic(t *testing.T) {
	a, b := randengine.New(42), randengine.New(42)
	for range 100 {
		assert.Equal(t, a.Float64(), b.Float64())
	}
}

func TestDiscreteDistribution(t *testing.T) {
	e := randengine.New(1)
	counts := make([]int, 3)
	for range 10000 {
		counts[e.DiscreteDistribution([]float64{1, 0, 3})]++
	}
	assert.Zero(t, counts[1])
	assert.InDelta(t, 0.75, float64(counts[2])/10000, 0.03)
}

func TestDistributions(t *testing.T) {
	e := randengine.New(3)
	normal := make([]float64, 0, 5000)
	poisson := make([]float64, 0, 5000)
	for range 5000 {
		u := e.Uniform(2, 5)
		assert.GreaterOrEqual(t, u, 2.)
		assert.Less(t, u, 5.)
		normal = append(normal, e.Normal(10, 2))
		poisson = append(poisson, float64(e.Poisson(4)))
	}
	mean, _ := stats.Mean(normal)
	std, _ := stats.StandardDeviation(normal)
	assert.InDelta(t, 10, mean, 0.2)
	assert.InDelta(t, 2, std, 0.2)
	mean, _ = stats.Mean(poisson)
	assert.InDelta(t, 4, mean, 0.2)
	assert.Equal(t, 7., e.Normal(7, 0))
	assert.Zero(t, e.Poisson(0))
	assert.GreaterOrEqual(t, e.Poisson(100), 0)
}
