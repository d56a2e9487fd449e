package input

import (
	"fmt"
	"math"
	"time"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity/ring"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/utils/config"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/utils/randengine"
)

// 合成样本的时间范围与基准流率
const (
	synthStart      = 6 * 60  // 06:00
	synthEnd        = 22 * 60 // 22:00
	throughFlow     = 650.    // 直行相位基准流率（veh/h）
	leftFlow        = 220.    // 左转相位基准流率（veh/h）
	overlapFlow     = 120.    // 搭接相位基准流率（veh/h）
	defaultSatFlow  = 1800.   // 相位未配置饱和流率时使用
	defaultMinGreen = 10.
)

var firstDate = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

// 日类型：平常日、繁忙日、清淡日的概率与流量水平
var (
	dayTypeWeights = []float64{0.7, 0.2, 0.1}
	dayTypeLevels  = []float64{1, 1.15, 0.85}
)

// peakFactor 一天内的流量系数：早晚高峰两个高斯峰叠加在平峰水平上，shift为高峰时刻偏移（小时）
func peakFactor(minute int, shift float64) float64 {
	h := float64(minute)/60 - shift
	return 0.35 + 0.8*math.Exp(-math.Pow((h-8)/1.2, 2)) + 0.65*math.Exp(-math.Pow((h-18)/1.5, 2))
}

// periodOf 按时间划分时段：早高峰、平峰、晚高峰
func periodOf(minute int) int32 {
	switch {
	case minute < 10*60:
		return 1
	case minute < 16*60:
		return 2
	}
	return 3
}

// Synthesize 生成合成流量样本
// 功能：没有检测器数据时，为每个路口生成若干天的时间片流量
// 参数：junctions-路口配置，s-合成配置，interval-时间片长度（分钟）
// 返回：流量样本，按路口、日期、时间、阶段排列
// 算法说明：
// 1. 每个路口使用独立的随机数引擎（种子 = seed + 路口ID），结果与路口顺序无关
// 2. 每个阶段的每个相位对应一条进口道一条车道，基准流率按直行/左转/搭接区分
// 3. 时间片到达车辆数服从泊松分布，均值为 基准流率*高峰系数*interval/60，
//    每天按日类型（平常/繁忙/清淡）抽取流量水平并乘以正态扰动，高峰时刻在±0.25h内均匀偏移
// 4. 每个样本以missing_rate的概率模拟检测器失效：流率与饱和流率记为0，配时时被过滤
// 5. 阶段为空时由环-屏障方案反向转换
// 6. 时段与方案号按早高峰/平峰/晚高峰划分，黄灯、全红、最小绿取自阶段定义
func Synthesize(junctions []entity.JunctionConfig, s config.Synthetic, interval float64) []entity.FlowSample {
	step := max(int(interval), 1)
	res := parallel.GoMap(junctions, func(c entity.JunctionConfig) []entity.FlowSample {
		engine := randengine.New(s.Seed + uint64(c.ID))
		sat := make(map[entity.PhaseNo]float64)
		for _, p := range c.Phases {
			sat[p.No] = p.SaturationFlow
		}
		stages := c.Stages
		if len(stages) == 0 && c.RingPlan != nil {
			if l, err := ring.FromDocument(c.RingPlan); err == nil {
				stages, _, _ = ring.ToStages(l)
			}
		}
		samples := make([]entity.FlowSample, 0)
		for d := range s.Days {
			date := firstDate.AddDate(0, 0, d).Format("2006-01-02")
			level := dayTypeLevels[engine.DiscreteDistribution(dayTypeWeights)]
			dayFactor := max(level*engine.Normal(1, 0.05), 0.5)
			shift := engine.Uniform(-0.25, 0.25)
			for minute := synthStart; minute < synthEnd; minute += step {
				period := periodOf(minute)
				for _, stage := range stages {
					for _, ref := range stage.Phases {
						base := overlapFlow
						saturation := defaultSatFlow
						if !ref.Overlap {
							base = leftFlow
							if ref.No.IsThrough() {
								base = throughFlow
							}
							if v := sat[ref.No]; v > 0 {
								saturation = v
							}
						}
						mean := base * peakFactor(minute, shift) * dayFactor * float64(step) / 60
						flow := float64(engine.Poisson(mean)) * 60 / float64(step)
						if s.MissingRate > 0 && engine.PTrue(s.MissingRate) {
							flow, saturation = 0, 0
						}
						samples = append(samples, entity.FlowSample{
							JunctionID:     c.ID,
							DayNo:          1,
							PeriodNo:       period,
							PlanNo:         period,
							Date:           date,
							Time:           fmt.Sprintf("%02d:%02d", minute/60, minute%60),
							StageNo:        stage.No,
							Phase:          ref.Key(),
							Road:           "R" + ref.Key(),
							Lane:           "L" + ref.Key() + "-1",
							FlowRate:       flow,
							SaturationFlow: saturation,
							MinCycle:       c.MinCycle,
							MaxCycle:       c.MaxCycle,
							Yellow:         stage.Yellow,
							AllRed:         stage.AllRed,
							MinGreen:       lo.Ternary(stage.MinGreen > 0, stage.MinGreen, defaultMinGreen),
							Pedestrian:     stage.Pedestrian,
						})
					}
				}
			}
		}
		return samples
	})
	return lo.Flatten(res)
}
