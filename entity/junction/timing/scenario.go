package timing

import (
	"slices"

	"github.com/montanaflynn/stats"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/utils/stat"
)

// CycleBounds 周期上下限
type CycleBounds struct {
	Min, Max float64
}

// StageLoad 时间片内某阶段的代表负荷与时间约束
type StageLoad struct {
	Stage entity.StageDefinition
	Yi    float64 // 代表流率比
}

// StageScenario Webster算法的输入：某时间片的代表场景
type StageScenario struct {
	Bucket entity.BucketKey
	Stages []StageLoad
	Bounds CycleBounds
	Dates  []string // 参与平均的日期
}

// PhaseScenario 分支定界算法的输入：某时间片各相位的代表流量
type PhaseScenario struct {
	Bucket entity.BucketKey
	Flows  []entity.PhaseFlow
	Bounds CycleBounds
	Dates  []string
}

// validSamples 剔除饱和流率非正的样本（建模约定，不视为错误）
func validSamples(samples []entity.FlowSample) []entity.FlowSample {
	res := lo.Filter(samples, func(s entity.FlowSample, _ int) bool { return s.SaturationFlow > 0 })
	if n := len(samples) - len(res); n > 0 {
		log.Debugf("exclude %d samples with non-positive saturation flow", n)
	}
	return res
}

// sortedBuckets 按时间片分组并排序
func sortedBuckets(samples []entity.FlowSample) ([]entity.BucketKey, map[entity.BucketKey][]entity.FlowSample) {
	groups := lo.GroupBy(samples, entity.FlowSample.Bucket)
	keys := lo.Keys(groups)
	slices.SortFunc(keys, func(a, b entity.BucketKey) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	return keys, groups
}

// coverageDates 按场景覆盖分位数选取日期
// 功能：在各日期的Yr分布中取不小于q分位数的最小值作为阈值，返回Yr不低于阈值的日期
func coverageDates(yr map[string]float64, q float64) []string {
	values := lo.Values(yr)
	threshold, err := stat.CoverageThreshold(values, q)
	if err != nil {
		return nil
	}
	dates := lo.Filter(lo.Keys(yr), func(d string, _ int) bool { return yr[d] >= threshold })
	slices.Sort(dates)
	return dates
}

// bounds 时间片的周期上下限，样本缺省时使用路口默认值
func bounds(group []entity.FlowSample, def CycleBounds) CycleBounds {
	b := CycleBounds{
		Min: lo.MaxBy(group, func(a, b entity.FlowSample) bool { return a.MinCycle > b.MinCycle }).MinCycle,
		Max: lo.MaxBy(group, func(a, b entity.FlowSample) bool { return a.MaxCycle > b.MaxCycle }).MaxCycle,
	}
	if b.Min <= 0 {
		b.Min = def.Min
	}
	if b.Max <= 0 {
		b.Max = def.Max
	}
	return b
}

// BuildStageScenarios 构造Webster算法的代表场景
// 功能：按时间片汇总样本，选取覆盖分位数以上的日期，得到各阶段的代表流率比
// 参数：samples-流量样本，stages-路口阶段定义，def-默认周期上下限，q-覆盖分位点
// 返回：按时间片排序的场景列表
// 算法说明：
// 1. 剔除饱和流率非正的样本，丢弃阶段编号不在定义中的样本
// 2. 同一日期同一阶段取各车道流率比的最大值，阶段时间约束取最大值
// 3. 同一日期各阶段流率比求和得到Yr
// 4. 取不小于Yr分位数的最小Yr为阈值，Yr不低于阈值的日期参与平均
// 5. 各阶段流率比在入选日期上求平均；没有样本的阶段流率比为0
func BuildStageScenarios(samples []entity.FlowSample, stages []entity.StageDefinition, def CycleBounds, q float64) []*StageScenario {
	stageIndex := lo.SliceToMap(lo.Range(len(stages)), func(i int) (int32, int) { return stages[i].No, i })
	known := lo.Filter(validSamples(samples), func(s entity.FlowSample, _ int) bool {
		_, ok := stageIndex[s.StageNo]
		return ok
	})
	if n := len(samples) - len(known); n > 0 {
		log.Debugf("%d samples dropped before stage aggregation", n)
	}
	keys, groups := sortedBuckets(known)
	res := make([]*StageScenario, 0, len(keys))
	for _, key := range keys {
		group := groups[key]
		// 日期 -> 阶段 -> 最大流率比
		yi := make(map[string][]float64)
		yr := make(map[string]float64)
		constraint := make([]entity.StageDefinition, len(stages))
		copy(constraint, stages)
		seen := make([]bool, len(stages))
		for _, s := range group {
			i := stageIndex[s.StageNo]
			if _, ok := yi[s.Date]; !ok {
				yi[s.Date] = lo.Times(len(stages), func(int) float64 { return -1 })
			}
			yi[s.Date][i] = max(yi[s.Date][i], s.Yi())
			c := &constraint[i]
			if !seen[i] {
				// 样本中给出的约束优先于配置
				seen[i] = true
				if s.Yellow > 0 || s.AllRed > 0 || s.MinGreen > 0 {
					c.Yellow, c.AllRed, c.MinGreen = 0, 0, 0
				}
			}
			c.Yellow = max(c.Yellow, s.Yellow)
			c.AllRed = max(c.AllRed, s.AllRed)
			c.MinGreen = max(c.MinGreen, s.MinGreen)
			c.Pedestrian = max(c.Pedestrian, s.Pedestrian)
		}
		for date, values := range yi {
			yr[date] = lo.SumBy(values, func(v float64) float64 { return max(v, 0) })
		}
		dates := coverageDates(yr, q)
		loads := make([]StageLoad, len(stages))
		for i := range stages {
			selected := make(stats.Float64Data, 0, len(dates))
			for _, d := range dates {
				if v := yi[d][i]; v >= 0 {
					selected = append(selected, v)
				}
			}
			mean, err := selected.Mean()
			if err != nil {
				mean = 0
			}
			loads[i] = StageLoad{Stage: constraint[i], Yi: mean}
		}
		res = append(res, &StageScenario{
			Bucket: key,
			Stages: loads,
			Bounds: bounds(group, def),
			Dates:  dates,
		})
	}
	return res
}

type laneKey struct {
	road, phase, lane string
}

// BuildPhaseScenarios 构造分支定界算法的代表相位流量
// 功能：与BuildStageScenarios相同的覆盖分位数场景选取，但以全部车道的流率比之和作为Yr，输出相位级流量
// 参数：samples-流量样本，def-默认周期上下限，q-覆盖分位点
// 返回：按时间片排序的场景列表
// 算法说明：
// 1. 同一日期全部车道样本的流率比求和得到Yr，按覆盖分位数选取日期
// 2. 入选日期上按(进口道,相位,车道)求平均流率
// 3. 同一(进口道,相位)取各车道平均流率的最大值作为相位流率，饱和流率取最大值
// 4. 同一进口道各相位流率的均值作为进口道流率
func BuildPhaseScenarios(samples []entity.FlowSample, def CycleBounds, q float64) []*PhaseScenario {
	valid := lo.Filter(validSamples(samples), func(s entity.FlowSample, _ int) bool { return s.Phase != "" })
	keys, groups := sortedBuckets(valid)
	res := make([]*PhaseScenario, 0, len(keys))
	for _, key := range keys {
		group := groups[key]
		yr := make(map[string]float64)
		for _, s := range group {
			yr[s.Date] += s.Yi()
		}
		dates := coverageDates(yr, q)
		selected := lo.Filter(group, func(s entity.FlowSample, _ int) bool { return slices.Contains(dates, s.Date) })

		laneOf := func(s entity.FlowSample) laneKey { return laneKey{road: s.Road, phase: s.Phase, lane: s.Lane} }
		laneGroups := lo.GroupBy(selected, laneOf)
		lanes := lo.Uniq(lo.Map(selected, func(s entity.FlowSample, _ int) laneKey { return laneOf(s) }))
		type phaseKey struct{ road, phase string }
		flows := make(map[phaseKey]*entity.PhaseFlow)
		order := make([]phaseKey, 0)
		for _, lk := range lanes {
			mean, err := stats.Mean(lo.Map(laneGroups[lk], func(s entity.FlowSample, _ int) float64 { return s.FlowRate }))
			if err != nil {
				continue
			}
			sat := lo.MaxBy(laneGroups[lk], func(a, b entity.FlowSample) bool { return a.SaturationFlow > b.SaturationFlow }).SaturationFlow
			pk := phaseKey{road: lk.road, phase: lk.phase}
			f, ok := flows[pk]
			if !ok {
				ref, err := entity.ParsePhaseRef(lk.phase)
				if err != nil {
					log.Warnf("ignore flow of phase %q at %v: %v", lk.phase, key, err)
					continue
				}
				f = &entity.PhaseFlow{Phase: ref, Road: lk.road}
				flows[pk] = f
				order = append(order, pk)
			}
			f.FlowRate = max(f.FlowRate, mean)
			f.SaturationFlow = max(f.SaturationFlow, sat)
		}
		phaseFlows := lo.Map(order, func(pk phaseKey, _ int) entity.PhaseFlow { return *flows[pk] })
		roadMean := make(map[string]float64)
		roadGroups := lo.GroupBy(phaseFlows, func(f entity.PhaseFlow) string { return f.Road })
		for r, g := range roadGroups {
			roadMean[r] = lo.MeanBy(g, func(f entity.PhaseFlow) float64 { return f.FlowRate })
		}
		for i := range phaseFlows {
			phaseFlows[i].RoadFlowRate = roadMean[phaseFlows[i].Road]
		}
		res = append(res, &PhaseScenario{
			Bucket: key,
			Flows:  phaseFlows,
			Bounds: bounds(group, def),
			Dates:  dates,
		})
	}
	return res
}
