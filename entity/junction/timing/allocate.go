package timing

import (
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity/ring"
)

// stageDemand 阶段的流量需求
type stageDemand struct {
	flow     float64        // 阶段周期流量（veh），为0时替换为伪流量
	observed float64        // 实际分配到的阶段周期流量
	headway  float64        // 关键相位饱和车头时距（s/veh）
	keyPhase entity.PhaseNo // 决定阶段流量的关键相位
	minTotal float64        // 阶段最短时长
	clear    float64        // 启动损失 + 全红
}

// flowTime 流量折算的放行时间
func (d stageDemand) flowTime() float64 {
	return d.flow * d.headway
}

// cycleFlows 相位流率折算为周期流量，同一相位多个进口道取最大值
func cycleFlows(flows []entity.PhaseFlow, cycle float64) map[string]float64 {
	res := make(map[string]float64)
	for _, f := range flows {
		res[f.Phase.Key()] = max(res[f.Phase.Key()], f.FlowRate/3600*cycle)
	}
	return res
}

// ringFlow 环相位（主相位及其搭接相位）的最大剩余流量
func ringFlow(e ring.Entry, remaining map[string]float64) float64 {
	res := remaining[entity.MainPhase(e.Main).Key()]
	for _, o := range e.Overlaps {
		res = max(res, remaining[o.Key()])
	}
	return res
}

// deriveStageDemand 计算各阶段的流量与关键相位
// 功能：沿阶段顺序在双环结构上分配相位流量
// 参数：stages-阶段定义，l-双环结构，flows-相位流量，cycle-周期，sat-饱和流率查询，startLoss-启动损失
// 返回：各阶段的流量需求
// 算法说明：
// 1. 每个阶段取两环所在相位（含搭接相位）的最大剩余流量
// 2. 若任一环的相位在该阶段之后仍然持续（跨阶段），阶段流量取两环最小值，否则取最大值
// 3. 阶段流量从参与的相位中扣除，剩余流量留给后续阶段
// 4. 关键相位的饱和车头时距 = 3600 / 饱和流率
// 5. 阶段流量为0时以伪流量（最短时长/车头时距）代替，避免出现零时长阶段
func deriveStageDemand(
	stages []entity.StageDefinition,
	l *ring.Layout,
	flows []entity.PhaseFlow,
	cycle float64,
	sat func(entity.PhaseNo) float64,
	startLoss float64,
) []stageDemand {
	remaining := cycleFlows(flows, cycle)
	res := make([]stageDemand, len(stages))
	for i, stage := range stages {
		var entries []ring.Entry
		spans := false
		for m := range l.Rings {
			if j := l.EntryOf(m, i); j >= 0 && !l.Rings[m][j].IsPlaceholder() {
				entries = append(entries, l.Rings[m][j])
				spans = spans || l.Rings[m][j].ContinuesAfter(i)
			}
		}
		d := stageDemand{
			minTotal: stage.MinTotal(),
			clear:    startLoss + stage.AllRed,
		}
		for k, e := range entries {
			f := ringFlow(e, remaining)
			better := f > d.flow
			if spans {
				better = f < d.flow
			}
			if k == 0 || better {
				d.flow, d.keyPhase = f, e.Main
			}
		}
		for _, e := range entries {
			keys := []string{entity.MainPhase(e.Main).Key()}
			for _, o := range e.Overlaps {
				keys = append(keys, o.Key())
			}
			for _, key := range keys {
				if v, ok := remaining[key]; ok {
					remaining[key] = max(v-d.flow, 0)
				}
			}
		}
		d.headway = 3600 / *defaultCapacity
		if s := sat(d.keyPhase); s > 0 {
			d.headway = 3600 / s
		}
		d.observed = d.flow
		if d.flow <= 0 {
			d.flow = d.minTotal / d.headway
		}
		res[i] = d
	}
	return res
}

// reallocate 按清空系数将预算分配给第from个及之后的阶段
// 功能：求比例r使 Σ max(最短时长, r*流量时间 + 启动损失 + 全红) 等于预算
// 参数：demand-阶段需求，plan-方案（原地修改），from-起始阶段，budget-剩余周期
// 返回：分配后的总时长
// 说明：低于最短时长的阶段固定为最短时长，其余阶段重新求r，最多迭代阶段数次；
// 预算不足以满足全部最短时长时取最短时长（此时总时长大于预算）
func reallocate(demand []stageDemand, plan *entity.PhasePlan, from int, budget float64) float64 {
	n := len(demand)
	frozen := make([]bool, n)
	r := 0.
	for range n - from + 1 {
		fixed, sumClear, sumFlow := 0., 0., 0.
		for i := from; i < n; i++ {
			if frozen[i] {
				fixed += demand[i].minTotal
			} else {
				sumClear += demand[i].clear
				sumFlow += demand[i].flowTime()
			}
		}
		r = 0
		if sumFlow > 0 {
			r = max((budget-fixed-sumClear)/sumFlow, 0)
		}
		changed := false
		for i := from; i < n; i++ {
			if !frozen[i] && r*demand[i].flowTime()+demand[i].clear < demand[i].minTotal {
				frozen[i] = true
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	total := 0.
	for i := from; i < n; i++ {
		d := demand[i].minTotal
		if !frozen[i] {
			d = max(d, r*demand[i].flowTime()+demand[i].clear)
		}
		plan.Stages[i].SetDuration(d)
		total += d
	}
	return total
}
