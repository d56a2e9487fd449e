// 信号配时算法：Webster解析配时、时段聚类、冲击波排队估计与分支定界搜索
package timing

import (
	"flag"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "timing")

// 排队模型的物理常数
var (
	jamDensity        = flag.Float64("timing.jam_density", 1000/9.0, "排队状态下的阻塞密度（veh/km）")
	satRatioThreshold = flag.Float64("timing.sat_ratio_threshold", 0.8, "判断饱和状态的饱和度阈值")
	defaultCapacity   = flag.Float64("timing.default_capacity", 1200, "相位不在环中时的默认通行能力（veh/h）")
	freeSpeedSat      = flag.Float64("timing.free_speed_sat", 35, "饱和状态下的最大速度（km/h）")
	minSpeedSat       = flag.Float64("timing.min_speed_sat", 6.9671, "饱和状态下达到通行能力时的速度（km/h）")
	maxSpeedUnsat     = flag.Float64("timing.max_speed_unsat", 60, "不饱和状态下的最大速度（km/h）")
	minSpeedUnsat     = flag.Float64("timing.min_speed_unsat", 40, "不饱和状态下的最小速度（km/h）")
	dischargeSpeed    = flag.Float64("timing.discharge_speed", 30, "绿灯饱和放行速度（km/h）")
)

// Options 配时算法参数
type Options struct {
	Interval             float64       // 时间片长度（分钟）
	StartLoss            float64       // 每个阶段的启动损失时间（秒）
	CoverageQuantile     float64       // 场景覆盖分位点
	MaxClusters          int           // 每个(日计划,时段,方案)最多的方案数
	MinInterval          float64       // 一个方案的最短持续时间（分钟）
	Step                 float64       // 阶段时长与周期的搜索步长（秒）
	MaxNodes             int           // 单次阶段搜索最多扩展的节点数，0为不限制
	Timeout              time.Duration // 单个时间片的搜索时限，0为不限制
	ProvisionalCap       bool          // 阶段时长搜索上界额外受按需求分配的暂定时长约束（默认只受剩余周期约束）
	ExhaustiveCycleLimit int           // 候选周期数不超过该值时遍历全部周期
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		Interval:         6,
		StartLoss:        3,
		CoverageQuantile: 0.9,
		MaxClusters:      1,
		MinInterval:      30,
		Step:             2,
	}
}

// MinRunLength 最短连续时间片数
func (o Options) MinRunLength() int {
	return max(1, int(math.Ceil(o.MinInterval/o.Interval)))
}
