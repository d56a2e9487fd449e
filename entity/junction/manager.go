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
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/utils/config"
)

// Junction管理器
type JunctionManager struct {
	ctx entity.ITaskContext

	data      map[int32]*Junction
	junctions []*Junction
}

// NewManager 创建Junction管理器实例
// 参数：ctx-任务上下文
func NewManager(ctx entity.ITaskContext) *JunctionManager {
	return &JunctionManager{
		ctx:       ctx,
		data:      make(map[int32]*Junction),
		junctions: make([]*Junction, 0),
	}
}

// Init 初始化所有Junction
// 功能：并行校验并构造路口，未被选中的路口直接跳过
// 参数：configs-路口配置列表
// 返回：全部配置错误（errors.Join），任一路口非法时不保留任何路口
func (m *JunctionManager) Init(configs []entity.JunctionConfig) error {
	rc := m.ctx.RuntimeConfig()
	selected := lo.Filter(configs, func(c entity.JunctionConfig, _ int) bool { return rc.Selected(c.ID) })
	type built struct {
		j   *Junction
		err error
	}
	res := parallel.GoMap(selected, func(c entity.JunctionConfig) built {
		j, err := newJunction(c)
		return built{j: j, err: err}
	})
	errs := make([]error, 0)
	junctions := make([]*Junction, 0, len(res))
	data := make(map[int32]*Junction)
	for _, b := range res {
		if b.err != nil {
			errs = append(errs, b.err)
			continue
		}
		if _, ok := data[b.j.id]; ok {
			errs = append(errs, fmt.Errorf("%w: duplicated junction id %d", entity.ErrConfiguration, b.j.id))
			continue
		}
		data[b.j.id] = b.j
		junctions = append(junctions, b.j)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	slices.SortFunc(junctions, func(a, b *Junction) int { return int(a.id - b.id) })
	m.junctions = junctions
	m.data = data
	log.Infof("%d junctions initialized (%d configured)", len(junctions), len(configs))
	return nil
}

// Get 根据ID获取Junction实例，如果不存在则panic
func (m *JunctionManager) Get(id int32) entity.IJunction {
	if junction, ok := m.data[id]; !ok {
		log.Panicf("no id %d in junction data", id)
		return nil
	} else {
		return junction
	}
}

// GetOrError 根据ID获取Junction实例，如果不存在则返回错误
func (m *JunctionManager) GetOrError(id int32) (entity.IJunction, error) {
	if junction, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in junction data", id)
	} else {
		return junction, nil
	}
}

// Options 由控制配置得到算法参数
func Options(c config.Control) timing.Options {
	return timing.Options{
		Interval:             c.Interval,
		StartLoss:            c.StartLoss,
		CoverageQuantile:     c.Webster.CoverageQuantile,
		MaxClusters:          c.Segment.MaxClusters,
		MinInterval:          c.Segment.MinInterval,
		Step:                 c.Search.Step,
		MaxNodes:             c.Search.MaxNodes,
		Timeout:              time.Duration(c.Search.Timeout * float64(time.Second)),
		ProvisionalCap:       c.Search.ProvisionalCap,
		ExhaustiveCycleLimit: c.Search.ExhaustiveCycleLimit,
	}
}

// Run 对所有路口执行配置的配时算法
// 功能：按路口分组样本，路口之间并行计算，每个路口依次运行各算法
// 参数：ctx-取消控制，samples-全部流量样本
// 返回：每个(路口,算法)一个结果，按路口ID与算法顺序排列；没有样本的路口不输出
func (m *JunctionManager) Run(ctx context.Context, samples []entity.FlowSample) []*entity.JunctionResult {
	rc := m.ctx.RuntimeConfig()
	opts := Options(rc.C)
	groups := lo.GroupBy(samples, func(s entity.FlowSample) int32 { return s.JunctionID })
	for id, g := range groups {
		if _, ok := m.data[id]; !ok && rc.Selected(id) {
			log.Warnf("ignore %d samples of unknown junction %d", len(g), id)
		}
	}
	active := lo.Filter(m.junctions, func(j *Junction, _ int) bool { return len(groups[j.id]) > 0 })
	results := parallel.GoMap(active, func(j *Junction) []*entity.JunctionResult {
		res := make([]*entity.JunctionResult, 0)
		for _, algorithm := range rc.Algorithms() {
			switch algorithm {
			case entity.AlgorithmWebster:
				res = append(res, j.runWebster(opts, groups[j.id]))
			case entity.AlgorithmBnB:
				res = append(res, j.runBnB(ctx, opts, groups[j.id]))
			}
		}
		return res
	})
	return lo.Flatten(results)
}
