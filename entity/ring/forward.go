package ring

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity"
)

func errRingCount(n int) error {
	return fmt.Errorf("%w: ring plan must have %d rings, got %d", entity.ErrConfiguration, entity.RingNum, n)
}

func errPhaseNo(p entity.PhaseNo) error {
	return fmt.Errorf("%w: phase %d has no ring (must be 1-8)", entity.ErrConfiguration, p)
}

// pickMain 选择环内多个相位中的主相位
// 功能：优先直行（偶数）相位，其次左转（奇数）相位，同类取声明顺序中的第一个
func pickMain(phases []entity.PhaseNo) entity.PhaseNo {
	if len(phases) == 1 {
		return phases[0]
	}
	if p, ok := lo.Find(phases, entity.PhaseNo.IsThrough); ok {
		return p
	}
	return phases[0]
}

// splitStage 将阶段中的相位按环拆分并检查合法性
func splitStage(i int, stage entity.StageDefinition) (ringPhases [entity.RingNum][]entity.PhaseNo, overlaps []entity.PhaseRef, group int, err error) {
	if len(stage.Phases) == 0 {
		err = fmt.Errorf("%w: stage %d has an empty phase set", entity.ErrConfiguration, stage.No)
		return
	}
	group = -1
	for _, ref := range stage.Phases {
		if ref.Overlap {
			overlaps = append(overlaps, ref)
			continue
		}
		if !ref.No.Valid() {
			err = errPhaseNo(ref.No)
			return
		}
		if group == -1 {
			group = ref.No.BarrierGroup()
		} else if group != ref.No.BarrierGroup() {
			err = fmt.Errorf("%w: stage %d mixes phases on both sides of the barrier", entity.ErrConfiguration, stage.No)
			return
		}
		m := ref.No.Ring()
		if !slices.Contains(ringPhases[m], ref.No) {
			ringPhases[m] = append(ringPhases[m], ref.No)
		}
	}
	if group == -1 {
		err = fmt.Errorf("%w: stage %d (index %d) has no ring phase", entity.ErrConfiguration, stage.No, i)
	}
	return
}

// FromStages 阶段序列转双环结构
// 功能：将线性阶段序列转换为NEMA双环表示
// 参数：stages-阶段定义，durations-各阶段时长（nil表示使用各阶段最短时长）
// 返回：双环结构，配置非法时返回ErrConfiguration
// 算法说明：
// 1. 逐阶段将相位拆分到环0（1-4）与环1（5-8），非数字标识为搭接相位
// 2. 环内多个相位时选取主相位（直行优先），其余相位作为主相位的搭接候选
// 3. 阶段所在屏障分组变化时，两环前一个相位同时置屏障；最后一个阶段后无条件置屏障
// 4. 主相位与上一相位相同且中间无屏障时合并（时长累加），否则新建相位
// 5. 某环在该阶段没有相位时用占位相位填充，保证两环时刻对齐
// 6. 全部阶段扫描完后统一确定搭接相位归属
func FromStages(stages []entity.StageDefinition, durations []float64) (*Layout, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: no stage", entity.ErrConfiguration)
	}
	if durations != nil && len(durations) != len(stages) {
		return nil, fmt.Errorf("%w: %d durations for %d stages", entity.ErrConfiguration, len(durations), len(stages))
	}
	l := &Layout{}
	cands := newCandidates()
	prevGroup := -1
	t := 0.
	for i, stage := range stages {
		ringPhases, overlaps, group, err := splitStage(i, stage)
		if err != nil {
			return nil, err
		}
		d := stage.MinTotal()
		if durations != nil {
			d = durations[i]
		}
		// 搭接相位的候选主相位为本阶段中的全部环相位
		all := append(slices.Clone(ringPhases[0]), ringPhases[1]...)
		for _, o := range overlaps {
			cands.add(o, all...)
		}
		if prevGroup != -1 && group != prevGroup {
			for m := range l.Rings {
				l.Rings[m][len(l.Rings[m])-1].Barrier = true
			}
		}
		prevGroup = group
		for m := range l.Rings {
			main := entity.PlaceholderPhase
			if len(ringPhases[m]) > 0 {
				main = pickMain(ringPhases[m])
				for _, p := range ringPhases[m] {
					if p != main {
						cands.add(entity.MainPhase(p), main)
					}
				}
			}
			l.Rings[m] = appendStage(l.Rings[m], main, i, t, d, stage)
		}
		t += d
	}
	for m := range l.Rings {
		l.Rings[m][len(l.Rings[m])-1].Barrier = true
	}
	l.Overlaps, l.Ambiguous = cands.resolve()
	for _, id := range l.Ambiguous {
		log.Debugf("overlap %s has no unique owner main phase", id)
	}
	for m := range l.Rings {
		for j := range l.Rings[m] {
			e := &l.Rings[m][j]
			if !e.IsPlaceholder() {
				e.Overlaps = l.Overlaps[e.Main]
			}
		}
	}
	return l, nil
}

// appendStage 将一个阶段追加到环中，可合并时合并
func appendStage(r []Entry, main entity.PhaseNo, stageIndex int, start, d float64, stage entity.StageDefinition) []Entry {
	if n := len(r); n > 0 && r[n-1].Main == main && !r[n-1].Barrier {
		last := &r[n-1]
		last.End += d
		last.Stages = append(last.Stages, stageIndex)
		last.Yellow, last.AllRed = stage.Yellow, stage.AllRed
		last.MinGreen, last.Pedestrian = stage.MinGreen, stage.Pedestrian
		return r
	}
	return append(r, Entry{
		Main:       main,
		Start:      start,
		End:        start + d,
		Yellow:     stage.Yellow,
		AllRed:     stage.AllRed,
		MinGreen:   stage.MinGreen,
		Pedestrian: stage.Pedestrian,
		Stages:     []int{stageIndex},
	})
}
