package timing

import (
	"math"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity/ring"
)

// km/h -> m/s
const kmh = 3.6

// 上游密度上限占阻塞密度的比例
const maxUpstreamDensityRatio = 0.9

// PhaseQueue 单个环相位的排队估计（米）
type PhaseQueue struct {
	Ring, Entry   int
	Phase         entity.PhaseRef // 决定排队的相位（主相位或流量更大的搭接相位）
	Max, Min      float64
	Oversaturated bool // 绿灯内无法消散
}

// QueueEstimate 路口排队估计
type QueueEstimate struct {
	Total  float64
	Phases []PhaseQueue
}

// QueueEstimator 基于冲击波理论的排队长度估计
type QueueEstimator struct {
	startLoss  float64
	saturation func(entity.PhaseNo) float64
}

// NewQueueEstimator 创建排队估计器
// 参数：opts-算法参数，saturation-主相位饱和流率查询（返回非正值时使用默认通行能力）
func NewQueueEstimator(opts Options, saturation func(entity.PhaseNo) float64) *QueueEstimator {
	return &QueueEstimator{startLoss: opts.StartLoss, saturation: saturation}
}

func (e *QueueEstimator) satOf(p entity.PhaseNo) float64 {
	if e.saturation != nil {
		if s := e.saturation(p); s > 0 {
			return s
		}
	}
	return *defaultCapacity
}

// flowState 相位流量及其上游状态
type flowState struct {
	entity.PhaseFlow
	base     float64 // 基础通行能力
	capacity float64 // 周期内的通行能力
	upSpeed  float64 // 上游速度（km/h）
}

// upstreamSpeed 速度-流量经验关系
// 功能：饱和状态下速度随流量由自由流速度指数衰减，达到通行能力时为饱和最低速度；
// 不饱和状态下在最大与最小速度之间线性插值
func upstreamSpeed(volume, capacity, satRatio float64) float64 {
	if capacity <= 0 {
		capacity = *defaultCapacity
	}
	if satRatio >= *satRatioThreshold {
		b1 := math.Log(*freeSpeedSat / *minSpeedSat) / capacity
		return *freeSpeedSat * math.Exp(-b1*volume)
	}
	speed := *maxSpeedUnsat + (*minSpeedUnsat-*maxSpeedUnsat)/capacity*volume
	return max(speed, *minSpeedSat)
}

// prepare 计算各相位流量的通行能力与上游速度
func (e *QueueEstimator) prepare(l *ring.Layout, flows []entity.PhaseFlow, cycle float64) map[string]*flowState {
	states := make([]*flowState, len(flows))
	for i, f := range flows {
		s := &flowState{PhaseFlow: f, base: *defaultCapacity, capacity: *defaultCapacity}
		for _, r := range l.Rings {
			for _, entry := range r {
				if entry.IsPlaceholder() || !entry.Serves(f.Phase) {
					continue
				}
				s.base = e.satOf(entry.Main)
				s.capacity = s.base * max(entry.Duration()+entry.Yellow-e.startLoss, 0) / cycle
			}
		}
		states[i] = s
	}
	byRoad := lo.GroupBy(states, func(s *flowState) string { return s.Road })
	for _, group := range byRoad {
		aveCap := lo.MeanBy(group, func(s *flowState) float64 { return s.base })
		downFlows := lo.SumBy(group, func(s *flowState) float64 { return s.FlowRate })
		downCap := lo.SumBy(group, func(s *flowState) float64 { return s.capacity })
		satRatio := 0.
		if downCap > 0 {
			satRatio = downFlows / downCap
		} else if downFlows > 0 {
			satRatio = math.Inf(1)
		}
		for _, s := range group {
			s.upSpeed = upstreamSpeed(s.RoadFlowRate, aveCap, satRatio)
		}
	}
	res := make(map[string]*flowState)
	for _, s := range states {
		if old, ok := res[s.Phase.Key()]; !ok || s.FlowRate > old.FlowRate {
			res[s.Phase.Key()] = s
		}
	}
	return res
}

// redBefore 相位绿灯开始前的红灯时长：距同环中同一主相位上一次结束的时间，默认为周期减去相位时长
func redBefore(r []ring.Entry, j int, cycle float64) float64 {
	cur := r[j]
	red := cycle - cur.Duration()
	n := len(r)
	for k := 1; k < n; k++ {
		prev := r[(j-k+n)%n]
		if prev.Main != cur.Main {
			continue
		}
		if cur.Start < prev.End {
			red = cycle - prev.End + cur.Start
		} else {
			red = cur.Start - prev.End
		}
		break
	}
	return red
}

// Estimate 估计路口排队长度
// 功能：对每个环相位用两波模型估计最大、最小排队，求和得到路口排队
// 参数：l-候选方案的双环结构，flows-相位流量，cycle-周期
// 返回：路口排队估计
// 算法说明：
// 1. 上游密度 k_up = min(q/v_up, 0.9*kj)；红灯期排队形成波 wf1 = -q / (kj - k_up)
// 2. 绿灯期第一消散波 wd1 = C / (k_sat - kj)，k_sat为饱和放行密度
// 3. 绿灯开始后两波相遇时刻 t_max = |wf1|*红灯时长 / (|wd1| - |wf1|)，
//    |wf1| >= |wd1| 或 t_max超过绿灯时长时整个周期排队（最大=最小=周期*|wf1|）
// 4. 否则最大排队 = t_max*|wd1|；第二消散波 wd2 = (C - q) / (k_sat - k_up)，
//    若排队在绿灯结束前消散则最小排队为0，否则由wd2与wf2 = -C/(kj - k_sat)相遇求剩余排队
// 5. 相位排队 = (最大+最小)/2，路口排队为各相位之和
func (e *QueueEstimator) Estimate(l *ring.Layout, flows []entity.PhaseFlow, cycle float64) QueueEstimate {
	states := e.prepare(l, flows, cycle)
	kj := *jamDensity
	res := QueueEstimate{Phases: make([]PhaseQueue, 0)}
	for m, r := range l.Rings {
		for j, entry := range r {
			if entry.IsPlaceholder() {
				continue
			}
			governing := entity.MainPhase(entry.Main)
			s, ok := states[governing.Key()]
			for _, o := range entry.Overlaps {
				if os, ok2 := states[o.Key()]; ok2 && (!ok || os.FlowRate > s.FlowRate) {
					governing, s, ok = o, os, true
				}
			}
			if !ok {
				continue
			}
			q := s.FlowRate
			upDensity := min(safeDiv(q, s.upSpeed), kj*maxUpstreamDensityRatio)
			wf1 := -q / (kj - upDensity)
			satHeadway := *dischargeSpeed / kmh * 3600 / e.satOf(entry.Main)
			satDensity := 1000 / satHeadway
			wd1 := s.base / (satDensity - kj)

			pq := PhaseQueue{Ring: m, Entry: j, Phase: governing}
			red := redBefore(r, j, cycle)
			green := entry.Duration() - entry.AllRed
			tMax := math.Inf(1)
			if catchUp := math.Abs(wd1) - math.Abs(wf1); catchUp > 0 {
				tMax = math.Abs(wf1) * red / catchUp
			}
			if tMax > green {
				pq.Max = cycle * math.Abs(wf1) / kmh
				pq.Min = pq.Max
				pq.Oversaturated = true
			} else {
				pq.Max = tMax * math.Abs(wd1) / kmh
				wd2 := (s.base - q) / (satDensity - upDensity)
				tDiss := safeDiv(pq.Max, math.Abs(wd2)/kmh)
				if tMax+tDiss >= green {
					wf2 := -s.base / (kj - satDensity)
					tMin := safeDiv(pq.Max-math.Abs(wd2)/kmh*(green-tMax), math.Abs(wd2-wf2)/kmh)
					pq.Min = max(tMin*math.Abs(wf2)/kmh, 0)
				}
			}
			res.Total += (pq.Max + pq.Min) / 2
			res.Phases = append(res.Phases, pq)
		}
	}
	return res
}

// safeDiv 分母为0时按符号返回无穷（0/0为0）
func safeDiv(a, b float64) float64 {
	if b != 0 {
		return a / b
	}
	switch {
	case a > 0:
		return math.Inf(1)
	case a < 0:
		return math.Inf(-1)
	}
	return 0
}
