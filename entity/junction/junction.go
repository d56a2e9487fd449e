package junction

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity/junction/timing"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity/ring"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/utils/metrics"
)

// 样本缺省且路口未配置时的周期上下限
const (
	defaultMinCycle = 60.
	defaultMaxCycle = 150.
)

// Junction 一个信控路口
// 说明：初始化后只读，可被多个时间片的计算并发访问
type Junction struct {
	id     int32
	name   string
	phases [entity.MaxPhaseNo + 1]*entity.PhaseDefinition // 相位编号->相位定义
	stages []entity.StageDefinition                      // 按阶段编号排序
	bounds timing.CycleBounds
	layout *ring.Layout // 以最短时长构造的双环结构
}

// newJunction 创建并校验一个路口
// 功能：根据静态配置构造路口，阶段为空时由已有的环-屏障方案反向转换
// 参数：c-路口配置
// 返回：路口，配置非法时返回ErrConfiguration
// 算法说明：
// 1. 相位编号必须为1-8且不重复，饱和流率不得为负
// 2. 阶段编号不得重复，时间约束不得为负；阶段按编号排序后即为周期内的放行顺序
// 3. 阶段序列必须能转换为双环结构（空阶段、非法相位、跨屏障阶段均为配置错误）
// 4. 周期上下限缺省为60/150秒，下限不得大于上限
func newJunction(c entity.JunctionConfig) (*Junction, error) {
	j := &Junction{id: c.ID, name: c.Name}
	wrap := func(format string, args ...any) error {
		return fmt.Errorf("%w: junction %d: %s", entity.ErrConfiguration, c.ID, fmt.Sprintf(format, args...))
	}
	for _, p := range c.Phases {
		if !p.No.Valid() {
			return nil, wrap("phase %d has no ring (must be 1-8)", p.No)
		}
		if j.phases[p.No] != nil {
			return nil, wrap("duplicated phase %d", p.No)
		}
		if p.SaturationFlow < 0 {
			return nil, wrap("phase %d has negative saturation flow", p.No)
		}
		j.phases[p.No] = &p
	}

	stages := slices.Clone(c.Stages)
	if len(stages) == 0 && c.RingPlan != nil {
		l, err := ring.FromDocument(c.RingPlan)
		if err != nil {
			return nil, fmt.Errorf("junction %d: %w", c.ID, err)
		}
		if stages, _, err = ring.ToStages(l); err != nil {
			return nil, fmt.Errorf("junction %d: %w", c.ID, err)
		}
		log.Infof("junction %d: %d stages derived from ring plan %d", c.ID, len(stages), c.RingPlan.PlanNo)
	}
	if len(stages) == 0 {
		return nil, wrap("no stage and no ring plan")
	}
	slices.SortStableFunc(stages, func(a, b entity.StageDefinition) int { return int(a.No - b.No) })
	for i, s := range stages {
		if i > 0 && s.No == stages[i-1].No {
			return nil, wrap("duplicated stage %d", s.No)
		}
		if s.MinGreen < 0 || s.Yellow < 0 || s.AllRed < 0 || s.Pedestrian < 0 {
			return nil, wrap("stage %d has a negative interval", s.No)
		}
	}
	layout, err := ring.FromStages(stages, nil)
	if err != nil {
		return nil, fmt.Errorf("junction %d: %w", c.ID, err)
	}
	for _, id := range layout.Ambiguous {
		log.Warnf("junction %d: overlap %s has no unique owner main phase, attached to the earliest candidate", c.ID, id)
	}
	metrics.AmbiguousOverlaps.Add(float64(len(layout.Ambiguous)))
	used := lo.FlatMap(stages, func(s entity.StageDefinition, _ int) []entity.PhaseNo { return s.MainPhases() })
	for _, p := range c.Phases {
		if !slices.Contains(used, p.No) {
			log.Warnf("junction %d: phase %d is not served by any stage", c.ID, p.No)
		}
	}
	j.stages = stages
	j.layout = layout

	j.bounds = timing.CycleBounds{Min: c.MinCycle, Max: c.MaxCycle}
	if j.bounds.Min <= 0 {
		j.bounds.Min = defaultMinCycle
	}
	if j.bounds.Max <= 0 {
		j.bounds.Max = defaultMaxCycle
	}
	if j.bounds.Min > j.bounds.Max {
		return nil, wrap("min cycle %.0f exceeds max cycle %.0f", j.bounds.Min, j.bounds.Max)
	}
	return j, nil
}

// ID 获取路口的唯一标识符
func (j *Junction) ID() int32 {
	if j == nil {
		return -1
	}
	return j.id
}

// Stages 按放行顺序排列的阶段定义
func (j *Junction) Stages() []entity.StageDefinition {
	return j.stages
}

// Phase 查询相位定义
func (j *Junction) Phase(no entity.PhaseNo) (entity.PhaseDefinition, bool) {
	if !no.Valid() || j.phases[no] == nil {
		return entity.PhaseDefinition{}, false
	}
	return *j.phases[no], true
}

// saturation 配置中的主相位饱和流率，未配置时返回0
func (j *Junction) saturation(no entity.PhaseNo) float64 {
	if p, ok := j.Phase(no); ok {
		return p.SaturationFlow
	}
	return 0
}

// attachRings 为每个方案段生成环-屏障文档
func (j *Junction) attachRings(segments []entity.Segment) {
	for i := range segments {
		seg := &segments[i]
		if len(seg.Plan.Stages) != len(j.stages) {
			continue
		}
		l, err := ring.FromStages(j.stages, seg.Plan.Durations())
		if err != nil {
			log.Warnf("junction %d: cannot render ring plan for %v: %v", j.id, seg.Context, err)
			continue
		}
		seg.Rings = l.Document(seg.Plan.PlanNo)
	}
}

// runWebster Webster解析配时 + 时段聚类
func (j *Junction) runWebster(opts timing.Options, samples []entity.FlowSample) *entity.JunctionResult {
	scenarios := timing.BuildStageScenarios(samples, j.stages, j.bounds, opts.CoverageQuantile)
	allocator := timing.NewWebsterAllocator(opts)
	buckets := parallel.GoMap(scenarios, func(sc *timing.StageScenario) entity.BucketResult {
		start := time.Now()
		res := allocator.Allocate(sc)
		metrics.BucketDuration.WithLabelValues(entity.AlgorithmWebster).Observe(time.Since(start).Seconds())
		return res
	})
	return j.finish(entity.AlgorithmWebster, opts, buckets, nil)
}

// runBnB 排队最小的分支定界搜索 + 时段聚类
// 说明：单个时间片失败时记录原因并跳过，其余时间片照常计算
func (j *Junction) runBnB(ctx context.Context, opts timing.Options, samples []entity.FlowSample) *entity.JunctionResult {
	optimizer, err := timing.NewOptimizer(opts, j.stages, j.saturation)
	if err != nil {
		// 阶段已在初始化时校验
		log.Panicf("junction %d: %v", j.id, err)
	}
	scenarios := timing.BuildPhaseScenarios(samples, j.bounds, opts.CoverageQuantile)
	type outcome struct {
		res entity.BucketResult
		err error
	}
	outcomes := parallel.GoMap(scenarios, func(sc *timing.PhaseScenario) outcome {
		res, err := optimizer.Optimize(ctx, sc)
		return outcome{res: res, err: err}
	})
	buckets := make([]entity.BucketResult, 0, len(outcomes))
	failures := make([]*entity.OptimizationFailure, 0)
	for _, o := range outcomes {
		if o.err == nil {
			buckets = append(buckets, o.res)
			continue
		}
		var failure *entity.OptimizationFailure
		if !errors.As(o.err, &failure) {
			failure = &entity.OptimizationFailure{Err: o.err}
		}
		log.Warnf("junction %d: %v", j.id, failure)
		failures = append(failures, failure)
	}
	return j.finish(entity.AlgorithmBnB, opts, buckets, failures)
}

// finish 时段聚类并组装路口结果
func (j *Junction) finish(algorithm string, opts timing.Options, buckets []entity.BucketResult, failures []*entity.OptimizationFailure) *entity.JunctionResult {
	metrics.BucketsTotal.WithLabelValues(algorithm, "ok").Add(float64(len(buckets)))
	metrics.BucketsTotal.WithLabelValues(algorithm, "failed").Add(float64(len(failures)))
	for _, b := range buckets {
		metrics.PlanCycle.WithLabelValues(algorithm).Observe(b.Cycle)
	}
	segments := timing.NewTimeOfDaySegmenter(opts).WithStages(j.stages).Segment(buckets)
	j.attachRings(segments)
	log.Infof("junction %d (%s): %d buckets, %d failures, %d plans", j.id, algorithm, len(buckets), len(failures), len(segments))
	return &entity.JunctionResult{
		JunctionID: j.id,
		Algorithm:  algorithm,
		Buckets:    buckets,
		Segments:   segments,
		Failures:   failures,
		Ambiguous:  j.layout.Ambiguous,
	}
}
