package timing

import (
	"math"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity"
)

// Webster 公式中对Yr的截断范围
const (
	minCriticalRatio = 0.1
	maxCriticalRatio = 0.9
)

// WebsterAllocator Webster解析配时
type WebsterAllocator struct {
	startLoss float64
}

// NewWebsterAllocator 创建Webster配时器
func NewWebsterAllocator(opts Options) *WebsterAllocator {
	return &WebsterAllocator{startLoss: opts.StartLoss}
}

// Allocate 计算单个时间片的周期与绿信比
// 功能：对代表场景应用Webster公式，并迭代修正低于最小绿的阶段
// 参数：sc-代表场景
// 返回：时间片配时结果
// 算法说明：
// 1. Yr = Σyi，损失时间 L = Σall_red + start_loss * n
// 2. T = (1.5L + 5) / (1 - Yc)，Yc为截断到[0.1, 0.9]的Yr；T截断到[min_cycle, max_cycle]得到Tmm
// 3. Yr>0时 g = yi/Yr*(Tmm-L) + start_loss - yellow，否则取绿灯下限
// 4. 迭代：低于绿灯下限（最小绿与行人清空取大）的阶段固定为下限，其余阶段按yi比例重新分配剩余时间；
//    直到没有新的阶段低于下限或迭代次数达到阶段数
// 5. 绿灯向下取整，黄灯与全红保持不变
func (a *WebsterAllocator) Allocate(sc *StageScenario) entity.BucketResult {
	n := len(sc.Stages)
	yi := lo.Map(sc.Stages, func(s StageLoad, _ int) float64 { return s.Yi })
	yr := lo.Sum(yi)
	lost := lo.SumBy(sc.Stages, func(s StageLoad) float64 { return s.Stage.AllRed }) + a.startLoss*float64(n)
	yc := lo.Clamp(yr, minCriticalRatio, maxCriticalRatio)
	t := (1.5*lost + 5) / (1 - yc)
	tmm := lo.Clamp(t, sc.Bounds.Min, sc.Bounds.Max)
	if minSum := lo.SumBy(sc.Stages, func(s StageLoad) float64 { return s.Stage.MinTotal() }); tmm < minSum {
		log.Warnf("minimum clearance %.1fs of %v exceeds cycle %.1fs", minSum, sc.Bucket, tmm)
		tmm = minSum
	}

	green := make([]float64, n)
	frozen := make([]bool, n)
	if yr > 0 {
		for i, s := range sc.Stages {
			green[i] = yi[i]/yr*(tmm-lost) + a.startLoss - s.Stage.Yellow
		}
		for range n {
			changed := false
			for i, s := range sc.Stages {
				if !frozen[i] && green[i] < s.Stage.GreenFloor() {
					frozen[i] = true
					changed = true
				}
			}
			if !changed {
				break
			}
			a.redistribute(sc, yi, tmm, green, frozen)
		}
	} else {
		frozen = lo.Times(n, func(int) bool { return true })
	}

	res := entity.BucketResult{
		Bucket: sc.Bucket,
		Stages: make([]entity.StageResult, n),
		Yr:     yr,
		T:      t,
		Tmm:    tmm,
	}
	for i, s := range sc.Stages {
		g := s.Stage.GreenFloor()
		if !frozen[i] {
			g = max(math.Floor(green[i]), g)
		}
		flowRatio := 0.
		if yr > 0 {
			flowRatio = yi[i] / yr
		}
		res.Stages[i] = entity.StageResult{
			StageNo:    s.Stage.No,
			Green:      g,
			Yellow:     s.Stage.Yellow,
			AllRed:     s.Stage.AllRed,
			Yi:         yi[i],
			GreenRatio: g / tmm,
			FlowRatio:  flowRatio,
		}
		res.Cycle += res.Stages[i].Duration()
	}
	return res
}

// redistribute 固定阶段取下限后，其余阶段按流率比分配剩余周期
func (a *WebsterAllocator) redistribute(sc *StageScenario, yi []float64, tmm float64, green []float64, frozen []bool) {
	rest := tmm
	restLost := 0.
	restYr := 0.
	for i, s := range sc.Stages {
		if frozen[i] {
			green[i] = s.Stage.GreenFloor()
			rest -= s.Stage.MinTotal()
		} else {
			restLost += s.Stage.AllRed + a.startLoss
			restYr += yi[i]
		}
	}
	for i, s := range sc.Stages {
		if frozen[i] {
			continue
		}
		if restYr <= 0 {
			green[i] = s.Stage.GreenFloor()
			frozen[i] = true
			continue
		}
		green[i] = math.Floor(yi[i]/restYr*(rest-restLost) + a.startLoss - s.Stage.Yellow)
	}
}
