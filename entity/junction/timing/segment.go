package timing

import (
	"math"
	"slices"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/utils/stat"
)

// TimeOfDaySegmenter 时段聚类
// 功能：将同一(日计划,时段,方案)内连续的时间片配时结果归并为少量稳定方案
type TimeOfDaySegmenter struct {
	interval    float64
	maxClusters int
	minRun      int
	floors      map[int32]float64 // 阶段编号->绿灯下限
}

// NewTimeOfDaySegmenter 创建时段聚类器
func NewTimeOfDaySegmenter(opts Options) *TimeOfDaySegmenter {
	return &TimeOfDaySegmenter{
		interval:    opts.Interval,
		maxClusters: max(1, opts.MaxClusters),
		minRun:      opts.MinRunLength(),
		floors:      make(map[int32]float64),
	}
}

// WithStages 设置阶段定义，汇总后的绿灯不低于各阶段的绿灯下限
func (s *TimeOfDaySegmenter) WithStages(stages []entity.StageDefinition) *TimeOfDaySegmenter {
	for _, st := range stages {
		s.floors[st.No] = st.GreenFloor()
	}
	return s
}

// slopes 流率比变化率：Δyi / yi(前一时间片)，序列首部向后填充，无穷与缺失置0
func slopes(yi []float64) []float64 {
	n := len(yi)
	res := make([]float64, n)
	for t := range n {
		res[t] = math.NaN()
		if t > 0 {
			res[t] = (yi[t] - yi[t-1]) / yi[t-1]
		}
	}
	// 向后填充：NaN取其后第一个非NaN值
	next := math.NaN()
	for t := n - 1; t >= 0; t-- {
		if math.IsNaN(res[t]) {
			res[t] = next
		} else {
			next = res[t]
		}
	}
	for t := range res {
		if math.IsNaN(res[t]) || math.IsInf(res[t], 0) {
			res[t] = 0
		}
	}
	return res
}

// Labels 计算单个上下文内各时间片的聚类标签
// 功能：以各阶段流率比变化率、各阶段绿灯时长和线性时间索引为特征做层次聚类，再修正最短连续长度
// 参数：buckets-同一上下文内按时间排序的时间片结果
// 返回：每个时间片的标签
func (s *TimeOfDaySegmenter) Labels(buckets []entity.BucketResult) []int {
	n := len(buckets)
	if n == 0 {
		return nil
	}
	stageNos := make([]int32, 0)
	for _, b := range buckets {
		for _, st := range b.Stages {
			stageNos = append(stageNos, st.StageNo)
		}
	}
	stageNos = lo.Uniq(stageNos)
	slices.Sort(stageNos)

	x := make([][]float64, n)
	for t := range x {
		x[t] = make([]float64, 2*len(stageNos)+1)
		x[t][2*len(stageNos)] = float64(t) * s.interval
	}
	for f, no := range stageNos {
		yi := make([]float64, n)
		for t, b := range buckets {
			if st, ok := lo.Find(b.Stages, func(st entity.StageResult) bool { return st.StageNo == no }); ok {
				yi[t] = st.Yi
				x[t][len(stageNos)+f] = st.Green
			} else {
				yi[t] = math.NaN()
			}
		}
		for t, v := range slopes(yi) {
			x[t][f] = v
		}
	}
	if uniform(x, 2*len(stageNos)) {
		// 流量与配时完全一致时不按时间索引拆分
		return make([]int, n)
	}
	return enforceMinRun(wardCluster(x, s.maxClusters), s.minRun)
}

// uniform 前k个特征在所有样本上是否相同
func uniform(x [][]float64, k int) bool {
	for _, row := range x[1:] {
		for f := range k {
			if row[f] != x[0][f] {
				return false
			}
		}
	}
	return true
}

// summarize 对同一标签的时间片求代表配时
// 说明：绿灯、绿信比、流量比取截尾均值（绿灯向下取整后不低于阶段绿灯下限），黄灯与全红取截尾最大值
func summarize(buckets []entity.BucketResult, planNo int32, floors map[int32]float64) (entity.PhasePlan, []entity.StageRatio) {
	all := lo.FlatMap(buckets, func(b entity.BucketResult, _ int) []entity.StageResult { return b.Stages })
	groups := lo.GroupBy(all, func(st entity.StageResult) int32 { return st.StageNo })
	stageNos := lo.Keys(groups)
	slices.Sort(stageNos)
	plan := entity.PhasePlan{PlanNo: planNo, Stages: make([]entity.StageTiming, 0, len(stageNos))}
	ratios := make([]entity.StageRatio, 0, len(stageNos))
	pick := func(g []entity.StageResult, f func(entity.StageResult) float64) []float64 {
		return lo.Map(g, func(st entity.StageResult, _ int) float64 { return f(st) })
	}
	for _, no := range stageNos {
		g := groups[no]
		green, _ := stat.TrimmedMean(pick(g, func(st entity.StageResult) float64 { return st.Green }))
		yellow, _ := stat.TrimmedMax(pick(g, func(st entity.StageResult) float64 { return st.Yellow }))
		allRed, _ := stat.TrimmedMax(pick(g, func(st entity.StageResult) float64 { return st.AllRed }))
		greenRatio, _ := stat.TrimmedMean(pick(g, func(st entity.StageResult) float64 { return st.GreenRatio }))
		flowRatio, _ := stat.TrimmedMean(pick(g, func(st entity.StageResult) float64 { return st.FlowRatio }))
		plan.Stages = append(plan.Stages, entity.StageTiming{
			StageNo: no,
			Green:   max(math.Floor(green), floors[no]),
			Yellow:  yellow,
			AllRed:  allRed,
		})
		ratios = append(ratios, entity.StageRatio{StageNo: no, GreenRatio: greenRatio, FlowRatio: flowRatio})
	}
	plan.Recompute()
	return plan, ratios
}

// Segment 时段聚类
// 功能：对全部时间片结果按上下文聚类，输出稳定方案段
// 参数：buckets-全部时间片结果（任意顺序）
// 返回：按上下文与时间排序的方案段
// 算法说明：
// 1. 按(日计划,时段,方案)分组，组内按时间排序
// 2. 计算聚类标签并修正最短连续长度
// 3. 每个标签的全部时间片汇总为一个方案
// 4. 按连续标签段输出，相邻且方案完全相同的段合并；周期 = Σ阶段时长
func (s *TimeOfDaySegmenter) Segment(buckets []entity.BucketResult) []entity.Segment {
	sorted := slices.Clone(buckets)
	slices.SortFunc(sorted, func(a, b entity.BucketResult) int {
		switch {
		case a.Bucket.Less(b.Bucket):
			return -1
		case b.Bucket.Less(a.Bucket):
			return 1
		}
		return 0
	})
	groups := lo.GroupBy(sorted, func(b entity.BucketResult) entity.ContextKey { return b.Bucket.ContextKey })
	contexts := lo.Uniq(lo.Map(sorted, func(b entity.BucketResult, _ int) entity.ContextKey { return b.Bucket.ContextKey }))
	res := make([]entity.Segment, 0)
	for _, ctx := range contexts {
		group := groups[ctx]
		labels := s.Labels(group)
		plans := make(map[int]entity.PhasePlan)
		ratios := make(map[int][]entity.StageRatio)
		for _, l := range lo.Uniq(labels) {
			members := lo.Filter(group, func(_ entity.BucketResult, i int) bool { return labels[i] == l })
			plans[l], ratios[l] = summarize(members, ctx.PlanNo, s.floors)
		}
		var cur *entity.Segment
		for i, b := range group {
			l := labels[i]
			if cur != nil && (cur.Label == l || cur.Plan.Equal(plans[l])) {
				cur.End = b.Bucket.Time
				continue
			}
			res = append(res, entity.Segment{
				Context: ctx,
				Label:   l,
				Start:   b.Bucket.Time,
				End:     b.Bucket.Time,
				Plan:    plans[l],
				Ratios:  ratios[l],
			})
			cur = &res[len(res)-1]
		}
	}
	log.Debugf("segmented %d buckets into %d plans", len(buckets), len(res))
	return res
}
