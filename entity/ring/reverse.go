package ring

import (
	"fmt"
	"math"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity"
)

const eps = 1e-6

// ToStages 双环结构转阶段序列
// 功能：把已持久化的环-屏障方案解释为阶段定义
// 参数：l-双环结构
// 返回：阶段定义、各阶段时长
// 算法说明：
// 1. 两环同时遍历，每次以两环当前相位剩余时长的最小值切出一个阶段
// 2. 阶段的相位集合为切片内两环的主相位及其搭接相位
// 3. 阶段的全红/黄灯/最小绿/行人清空取在该切片内结束的相位的最大值
// 4. 跳过时长为0的相位（占位）
func ToStages(l *Layout) ([]entity.StageDefinition, []float64, error) {
	var idx [entity.RingNum]int
	var remaining [entity.RingNum]float64
	skip := func(m int) {
		for idx[m] < len(l.Rings[m]) && l.Rings[m][idx[m]].Duration() <= eps {
			idx[m]++
		}
		if idx[m] < len(l.Rings[m]) {
			remaining[m] = l.Rings[m][idx[m]].Duration()
		}
	}
	for m := range l.Rings {
		skip(m)
	}
	stages := make([]entity.StageDefinition, 0)
	durations := make([]float64, 0)
	for {
		done := lo.CountBy(lo.Range(entity.RingNum), func(m int) bool { return idx[m] >= len(l.Rings[m]) })
		if done == entity.RingNum {
			break
		}
		if done > 0 {
			return nil, nil, fmt.Errorf("%w: rings end at different times", entity.ErrConfiguration)
		}
		cut := math.Min(remaining[0], remaining[1])
		stage := entity.StageDefinition{No: int32(len(stages) + 1)}
		for m := range l.Rings {
			e := l.Rings[m][idx[m]]
			if !e.IsPlaceholder() {
				stage.Phases = append(stage.Phases, entity.MainPhase(e.Main))
				stage.Phases = append(stage.Phases, e.Overlaps...)
			}
		}
		for m := range l.Rings {
			remaining[m] -= cut
			if remaining[m] > eps {
				continue
			}
			e := l.Rings[m][idx[m]]
			stage.Yellow = max(stage.Yellow, e.Yellow)
			stage.AllRed = max(stage.AllRed, e.AllRed)
			stage.MinGreen = max(stage.MinGreen, e.MinGreen)
			stage.Pedestrian = max(stage.Pedestrian, e.Pedestrian)
			idx[m]++
			skip(m)
		}
		if len(stage.Phases) == 0 {
			return nil, nil, fmt.Errorf("%w: stage %d has an empty phase set", entity.ErrConfiguration, stage.No)
		}
		stage.Phases = lo.UniqBy(stage.Phases, entity.PhaseRef.Key)
		stages = append(stages, stage)
		durations = append(durations, cut)
	}
	return stages, durations, nil
}
