package timing

import (
	"context"
	"fmt"
	"math"
	"time"

	"git.fiblab.net/general/common/v2/mathutil"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity/ring"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/utils/metrics"
)

// Optimizer 排队长度最小的周期与阶段时长搜索
// 功能：外层在[min_cycle, max_cycle]上搜索周期，内层对每个周期做阶段时长的分支定界搜索
type Optimizer struct {
	opts       Options
	stages     []entity.StageDefinition
	structure  *ring.Layout // 阶段的双环结构（时长无关）
	saturation func(entity.PhaseNo) float64
}

// NewOptimizer 创建优化器
// 参数：opts-算法参数，stages-路口阶段定义，saturation-路口配置中的主相位饱和流率
// 返回：优化器，阶段无法转换为双环结构时返回ErrConfiguration
func NewOptimizer(opts Options, stages []entity.StageDefinition, saturation func(entity.PhaseNo) float64) (*Optimizer, error) {
	structure, err := ring.FromStages(stages, nil)
	if err != nil {
		return nil, err
	}
	return &Optimizer{
		opts:       opts,
		stages:     stages,
		structure:  structure,
		saturation: saturation,
	}, nil
}

// cycleEval 单个周期的搜索结果
type cycleEval struct {
	plan   entity.PhasePlan
	queue  float64
	demand []stageDemand
	err    error
}

// scenarioSaturation 主相位饱和流率：样本中的值优先，其次路口配置
func (o *Optimizer) scenarioSaturation(sc *PhaseScenario) func(entity.PhaseNo) float64 {
	fromSamples := make(map[entity.PhaseNo]float64)
	for _, f := range sc.Flows {
		if !f.Phase.Overlap {
			fromSamples[f.Phase.No] = max(fromSamples[f.Phase.No], f.SaturationFlow)
		}
	}
	return func(p entity.PhaseNo) float64 {
		if s := fromSamples[p]; s > 0 {
			return s
		}
		if o.saturation != nil {
			return o.saturation(p)
		}
		return 0
	}
}

// evaluate 固定周期下搜索阶段时长
func (o *Optimizer) evaluate(ctx context.Context, sc *PhaseScenario, cycle float64, sat func(entity.PhaseNo) float64) cycleEval {
	estimator := NewQueueEstimator(o.opts, sat)
	queue := func(plan entity.PhasePlan) (float64, error) {
		l, err := ring.FromStages(o.stages, plan.Durations())
		if err != nil {
			return mathutil.INF, err
		}
		return estimator.Estimate(l, sc.Flows, cycle).Total, nil
	}
	demand := deriveStageDemand(o.stages, o.structure, sc.Flows, cycle, sat, o.opts.StartLoss)
	plan, q, err := newStageSearch(o.opts, o.stages, demand, cycle, queue).run(ctx, sc.Bucket.PlanNo)
	if err != nil {
		return cycleEval{queue: mathutil.INF, err: err}
	}
	return cycleEval{plan: plan, queue: q, demand: demand}
}

// Optimize 计算单个时间片的最优周期与阶段时长
// 功能：在周期上下限内搜索使估计排队最小的方案
// 参数：ctx-取消控制，sc-时间片代表相位流量
// 返回：时间片配时结果；失败时返回*entity.OptimizationFailure
// 算法说明：
// 1. 周期下限取max(Σ最短时长, min_cycle)，Σ最短时长超过max_cycle时无解
// 2. 周期之间比较按 q*interval*60/cycle 折算为时间片内的累计排队，q为单周期排队估计
// 3. 候选周期为下限起按step递增的序列；候选数不超过exhaustive_cycle_limit时全部评估
// 4. 否则二分：比较mid与mid+step的折算排队，排队随周期上升则收缩上界，否则收缩下界；
//    区间不超过2个步长时评估中点
// 5. 每个周期只评估一次（缓存），失败的周期记为无穷大
// 6. 在全部评估过的周期中取折算排队最小者（相同时取较小周期）
func (o *Optimizer) Optimize(ctx context.Context, sc *PhaseScenario) (entity.BucketResult, error) {
	fail := func(err error) (entity.BucketResult, error) {
		return entity.BucketResult{}, &entity.OptimizationFailure{Bucket: sc.Bucket, Err: err}
	}
	if len(sc.Flows) == 0 {
		return fail(entity.ErrEmptyScenario)
	}
	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}
	start := time.Now()
	defer func() { metrics.BucketDuration.WithLabelValues(entity.AlgorithmBnB).Observe(time.Since(start).Seconds()) }()

	minSum := lo.SumBy(o.stages, entity.StageDefinition.MinTotal)
	lower := max(minSum, sc.Bounds.Min)
	if minSum > sc.Bounds.Max {
		return fail(fmt.Errorf("%w: minimum durations %.1fs exceed max cycle %.1fs", entity.ErrSearchExhausted, minSum, sc.Bounds.Max))
	}
	step := o.opts.Step
	if step <= 0 {
		step = 1
	}
	last := int(math.Floor((sc.Bounds.Max - lower) / step))
	sat := o.scenarioSaturation(sc)

	cache := make(map[int]cycleEval)
	// 按时间片折算的排队，周期之间只比较该值
	eval := func(i int) float64 {
		cycle := lower + float64(i)*step
		e, ok := cache[i]
		if !ok {
			if err := ctx.Err(); err != nil {
				e = cycleEval{queue: mathutil.INF, err: err}
			} else {
				e = o.evaluate(ctx, sc, cycle, sat)
			}
			cache[i] = e
		}
		if e.err != nil {
			return mathutil.INF
		}
		return e.queue * o.opts.Interval * 60 / cycle
	}
	if last+1 <= o.opts.ExhaustiveCycleLimit {
		for i := 0; i <= last; i++ {
			eval(i)
		}
	} else {
		a, b := 0, last
		for b-a > 2 {
			mid := a + (b-a)/2
			if eval(mid) < eval(mid+1) {
				b = mid + 1
			} else {
				a = mid
			}
		}
		eval(a + (b-a)/2)
	}
	metrics.CycleEvaluations.Observe(float64(len(cache)))

	bestIdx := -1
	bestQueue := mathutil.INF
	var lastErr error
	for i := 0; i <= last; i++ {
		e, ok := cache[i]
		if !ok {
			continue
		}
		if e.err != nil {
			lastErr = e.err
			continue
		}
		if q := eval(i); bestIdx < 0 || q < bestQueue {
			bestIdx, bestQueue = i, q
		}
	}
	if bestIdx < 0 {
		if lastErr == nil {
			lastErr = entity.ErrSearchExhausted
		}
		return fail(lastErr)
	}
	best := cache[bestIdx]
	cycle := lower + float64(bestIdx)*step
	totalFlow := lo.SumBy(best.demand, func(d stageDemand) float64 { return d.observed })
	res := entity.BucketResult{
		Bucket: sc.Bucket,
		Stages: make([]entity.StageResult, len(o.stages)),
		Cycle:  best.plan.Cycle,
		Queue:  bestQueue,
	}
	for i, st := range best.plan.Stages {
		flowRatio := 0.
		if totalFlow > 0 {
			flowRatio = best.demand[i].observed / totalFlow
		}
		res.Stages[i] = entity.StageResult{
			StageNo:    st.StageNo,
			Green:      st.Green,
			Yellow:     st.Yellow,
			AllRed:     st.AllRed,
			Yi:         best.demand[i].observed,
			GreenRatio: st.Green / best.plan.Cycle,
			FlowRatio:  flowRatio,
		}
		res.Yr += best.demand[i].observed * best.demand[i].headway / cycle
	}
	log.Debugf("%v: cycle %.0fs queue %.2f (%d cycles evaluated)", sc.Bucket, cycle, res.Queue, len(cache))
	return res, nil
}
