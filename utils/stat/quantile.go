// 分位数与截尾统计
package stat

import (
	"math"
	"slices"

	"github.com/montanaflynn/stats"
)

// 截尾范围：中位数 ± IQRScale * (Q3 - Q1)
const IQRScale = 3

// Quantile 线性插值分位数
// 功能：计算数据的q分位数，位置 h = (n-1)q，在相邻两个次序统计量间线性插值
// 参数：data-数据，q-分位点（0-1）
// 返回：分位数，数据为空时返回stats.ErrEmptyInput
// 说明：与常见数据分析工具的默认分位数定义一致，stats.Percentile采用最近秩定义，不能直接使用
func Quantile(data []float64, q float64) (float64, error) {
	if len(data) == 0 {
		return math.NaN(), stats.ErrEmptyInput
	}
	if q < 0 || q > 1 {
		return math.NaN(), stats.ErrBounds
	}
	sorted := slices.Clone(data)
	slices.Sort(sorted)
	h := float64(len(sorted)-1) * q
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= len(sorted) {
		return sorted[len(sorted)-1], nil
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i]), nil
}

// Trim 剔除中位数 ± 3*IQR 以外的数据
func Trim(data []float64) ([]float64, error) {
	median, err := stats.Median(data)
	if err != nil {
		return nil, err
	}
	q1, err := Quantile(data, 0.25)
	if err != nil {
		return nil, err
	}
	q3, err := Quantile(data, 0.75)
	if err != nil {
		return nil, err
	}
	delta := IQRScale * (q3 - q1)
	res := make([]float64, 0, len(data))
	for _, v := range data {
		if v >= median-delta && v <= median+delta {
			res = append(res, v)
		}
	}
	return res, nil
}

// TrimmedMean 截尾均值
func TrimmedMean(data []float64) (float64, error) {
	trimmed, err := Trim(data)
	if err != nil {
		return math.NaN(), err
	}
	return stats.Mean(trimmed)
}

// TrimmedMax 截尾最大值
func TrimmedMax(data []float64) (float64, error) {
	trimmed, err := Trim(data)
	if err != nil {
		return math.NaN(), err
	}
	return stats.Max(trimmed)
}

// CoverageThreshold 场景覆盖阈值
// 功能：返回不小于q分位数的最小样本值
func CoverageThreshold(data []float64, q float64) (float64, error) {
	down, err := Quantile(data, q)
	if err != nil {
		return math.NaN(), err
	}
	res := math.Inf(1)
	for _, v := range data {
		if v >= down && v < res {
			res = v
		}
	}
	return res, nil
}
