// 随机数引擎，包装了golang.org/x/exp/rand，提供了合成流量所需的随机数生成方法
package randengine

import (
	"flag"
	"log"
	"math"

	"golang.org/x/exp/rand"
)

var (
	seedOffset = flag.Uint64("rand.seed_offset", 0, "seed offset") // 种子偏移量，用于调整随机数生成
)

// Engine 随机数引擎（非线程安全）
// 说明：基于golang.org/x/exp/rand库，每个生成任务持有独立的引擎
type Engine struct {
	*rand.Rand // 底层随机数生成器
}

// New 创建随机数引擎
// 功能：初始化一个新的随机数引擎实例
// 参数：seed-随机数种子
// 返回：随机数引擎指针
// 说明：种子偏移量允许在不修改配置的情况下调整随机数序列
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + *seedOffset))}
}

// DiscreteDistribution 按给定概率分布生成随机数
// 功能：根据权重数组生成离散分布的随机数
// 参数：weight-权重数组，每个元素表示对应索引的概率权重
// 返回：随机生成的索引值（0到len(weight)-1）
// 算法说明：
// 1. 在[0, 总权重)范围内生成随机数
// 2. 累积权重直到超过随机数，返回对应索引
func (e *Engine) DiscreteDistribution(weight []float64) int32 {
	random := .0
	for _, w := range weight {
		random += w
	}
	random *= e.Float64()
	sum := 0.
	for i, w := range weight {
		sum += w
		if sum > random {
			return int32(i)
		}
	}
	log.Panicf("randengine: DiscreteDistribution: sum: %f random: %f", sum, random)
	return -1
}

// PTrue 以指定概率返回true
func (e *Engine) PTrue(p float64) bool {
	return e.Float64() < p
}

// Uniform [a, b)上的均匀分布
func (e *Engine) Uniform(a, b float64) float64 {
	return a + (b-a)*e.Float64()
}

// Normal 正态分布
// 参数：mean-均值，std-标准差（非正时直接返回均值）
func (e *Engine) Normal(mean, std float64) float64 {
	if std <= 0 {
		return mean
	}
	return mean + std*e.NormFloat64()
}

// Poisson 泊松分布，用于时间片内的到达车辆数
// 算法说明：均值较小时用Knuth乘积法，较大时用正态近似并截断为非负整数
func (e *Engine) Poisson(lambda float64) int {
	if lambda <= 0 {
		return 0
	}
	if lambda > 30 {
		return max(int(math.Round(e.Normal(lambda, math.Sqrt(lambda)))), 0)
	}
	l := math.Exp(-lambda)
	k, p := 0, 1.
	for {
		p *= e.Float64()
		if p <= l {
			return k
		}
		k++
	}
}
