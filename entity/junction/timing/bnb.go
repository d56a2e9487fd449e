package timing

import (
	"context"
	"fmt"
	"math"

	"git.fiblab.net/general/common/v2/mathutil"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/utils/container"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/utils/metrics"
)

// searchNode 分支定界搜索树节点
type searchNode struct {
	layer      int              // 已确定时长的阶段数
	cumulative float64          // 已确定阶段的时长之和
	plan       entity.PhasePlan // 前layer个阶段已确定，其余为按需求比例的暂定时长
}

// stageSearch 固定周期下的一次阶段时长搜索
type stageSearch struct {
	opts       Options
	stages     []entity.StageDefinition
	demand     []stageDemand
	cycle      float64
	downstream []float64 // downstream[k] = Σ_{j>k} 最短时长
	queue      func(entity.PhasePlan) (float64, error)
}

func newStageSearch(
	opts Options,
	stages []entity.StageDefinition,
	demand []stageDemand,
	cycle float64,
	queue func(entity.PhasePlan) (float64, error),
) *stageSearch {
	n := len(stages)
	downstream := make([]float64, n)
	for k := n - 2; k >= 0; k-- {
		downstream[k] = downstream[k+1] + stages[k+1].MinTotal()
	}
	return &stageSearch{
		opts:       opts,
		stages:     stages,
		demand:     demand,
		cycle:      cycle,
		downstream: downstream,
		queue:      queue,
	}
}

// candidates 阶段时长候选值：lower + i*step (< upper) 以及 upper
func candidates(lower, upper, step float64) []float64 {
	if step <= 0 {
		step = 1
	}
	res := make([]float64, 0)
	for d := lower; d < upper; d = lower + float64(len(res))*step {
		res = append(res, d)
	}
	return append(res, upper)
}

// run 执行搜索
// 功能：逐个阶段确定时长，使全周期排队估计最小
// 参数：ctx-取消与时限，planNo-方案号
// 返回：最优方案、其排队估计；没有可行叶节点时返回ErrSearchExhausted
// 算法说明：
// 1. 根节点为整个周期按需求比例分配的方案，以其排队估计为界放入最小堆
// 2. 查看界最小的节点，若界不小于当前最优、节点数超过上限或超时则结束，否则弹出扩展
// 3. 第k个阶段的候选时长从最短时长到上界，步长为step；
//    上界为剩余周期扣除后续最短时长（provisional_cap时再与暂定时长取小）
// 4. 倒数第二层的子节点直接以剩余周期作为最后一个阶段的时长，成为叶节点并更新最优
// 5. 其余子节点把剩余周期按需求比例重新分配给后续阶段，排队估计小于当前最优才入堆
func (s *stageSearch) run(ctx context.Context, planNo int32) (entity.PhasePlan, float64, error) {
	n := len(s.stages)
	if n == 0 {
		return entity.PhasePlan{}, mathutil.INF, fmt.Errorf("%w: no stage", entity.ErrConfiguration)
	}
	root := entity.NewPhasePlan(planNo, s.stages)
	if n == 1 {
		root.Stages[0].SetDuration(s.cycle)
		root.Recompute()
		q, err := s.queue(root)
		return root, q, err
	}
	reallocate(s.demand, &root, 0, s.cycle)
	root.Recompute()
	rootQ, err := s.queue(root)
	if err != nil {
		return entity.PhasePlan{}, mathutil.INF, err
	}

	pq := container.NewPriorityQueue[searchNode]()
	pq.HeapPush(searchNode{plan: root}, rootQ)
	best := mathutil.INF
	var bestPlan entity.PhasePlan
	expanded := 0
	defer func() { metrics.SearchNodes.Observe(float64(expanded)) }()
	for !pq.Empty() {
		if ctx.Err() != nil {
			metrics.SearchTruncated.WithLabelValues("timeout").Inc()
			break
		}
		if s.opts.MaxNodes > 0 && expanded >= s.opts.MaxNodes {
			metrics.SearchTruncated.WithLabelValues("max_nodes").Inc()
			break
		}
		if _, bound := pq.First(); bound >= best {
			break
		}
		node, _ := pq.HeapPop()
		expanded++
		k := node.layer
		lower := s.stages[k].MinTotal()
		capBudget := math.Floor(s.cycle - node.cumulative - s.downstream[k])
		if capBudget < lower {
			continue
		}
		upper := capBudget
		if s.opts.ProvisionalCap {
			upper = min(math.Floor(node.plan.Stages[k].Duration()), capBudget)
		}
		if upper < lower {
			upper = lower
		}
		for _, d := range candidates(lower, upper, s.opts.Step) {
			child := searchNode{layer: k + 1, cumulative: node.cumulative + d, plan: node.plan.Clone()}
			child.plan.Stages[k].SetDuration(d)
			if child.layer == n-1 {
				child.plan.Stages[n-1].SetDuration(s.cycle - child.cumulative)
				child.plan.Recompute()
				q, err := s.queue(child.plan)
				if err != nil {
					return entity.PhasePlan{}, mathutil.INF, err
				}
				if q < best {
					best, bestPlan = q, child.plan
				}
				continue
			}
			reallocate(s.demand, &child.plan, child.layer, s.cycle-child.cumulative)
			child.plan.Recompute()
			q, err := s.queue(child.plan)
			if err != nil {
				return entity.PhasePlan{}, mathutil.INF, err
			}
			if q < best {
				pq.HeapPush(child, q)
			}
		}
	}
	if best >= mathutil.INF {
		if err := ctx.Err(); err != nil {
			return entity.PhasePlan{}, mathutil.INF, fmt.Errorf("%w: %w", entity.ErrSearchExhausted, err)
		}
		return entity.PhasePlan{}, mathutil.INF, fmt.Errorf("%w: cycle %.0fs after %d nodes", entity.ErrSearchExhausted, s.cycle, expanded)
	}
	log.Debugf("cycle %.0fs: best queue %.2f after %d nodes (%d left in frontier), durations %v",
		s.cycle, best, expanded, pq.Len(), lo.Map(bestPlan.Stages, func(st entity.StageTiming, _ int) float64 { return st.Duration() }))
	return bestPlan, best, nil
}
