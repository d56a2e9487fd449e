package stat_test

import (
	"testing"

	"github.com/montanaflynn/stats"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/utils/stat"
)

func TestQuantileLinear(t *testing.T) {
	data := []float64{4, 1, 3, 2}
	q, err := stat.Quantile(data, 0.9)
	assert.Nil(t, err)
	// h = 3*0.9 = 2.7 -> 3 + 0.7*(4-3)
	assert.InDelta(t, 3.7, q, 1e-9)

	q, err = stat.Quantile(data, 0.5)
	assert.Nil(t, err)
	assert.InDelta(t, 2.5, q, 1e-9)

	q, err = stat.Quantile(data, 1)
	assert.Nil(t, err)
	assert.Equal(t, 4., q)

	q, err = stat.Quantile([]float64{7}, 0.25)
	assert.Nil(t, err)
	assert.Equal(t, 7., q)

	// 输入不应被修改
	assert.Equal(t, []float64{4, 1, 3, 2}, data)
}

func TestQuantileEmpty(t *testing.T) {
	_, err := stat.Quantile(nil, 0.5)
	assert.ErrorIs(t, err, stats.ErrEmptyInput)
	_, err = stat.Quantile([]float64{1}, 1.5)
	assert.ErrorIs(t, err, stats.ErrBounds)
}

func TestCoverageThreshold(t *testing.T) {
	yr := []float64{0.5, 0.6, 0.7, 0.8, 0.9}
	v, err := stat.CoverageThreshold(yr, 0.9)
	assert.Nil(t, err)
	// 0.9分位数为0.86，不小于它的最小值为0.9
	assert.Equal(t, 0.9, v)

	v, err = stat.CoverageThreshold(yr, 0.5)
	assert.Nil(t, err)
	assert.Equal(t, 0.7, v)
}

func TestTrimmed(t *testing.T) {
	data := []float64{10, 11, 12, 11, 10, 100}
	mean, err := stat.TrimmedMean(data)
	assert.Nil(t, err)
	assert.InDelta(t, 10.8, mean, 1e-9)

	maxV, err := stat.TrimmedMax(data)
	assert.Nil(t, err)
	assert.Equal(t, 12., maxV)

	same := []float64{3, 3, 3}
	mean, err = stat.TrimmedMean(same)
	assert.Nil(t, err)
	assert.Equal(t, 3., mean)

	_, err = stat.TrimmedMean(nil)
	assert.Error(t, err)
}
