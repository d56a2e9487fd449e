// 双环（NEMA环-屏障）结构与线性阶段序列之间的相互转换
package ring

import (
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity"
)

var log = logrus.WithField("module", "ring")

// Entry 环中的一个相位
type Entry struct {
	Main       entity.PhaseNo    // 主相位，0为占位
	Overlaps   []entity.PhaseRef // 挂在主相位上的搭接相位
	Barrier    bool              // 该相位结束后是否为屏障
	Start, End float64           // 周期内的起止时刻
	Yellow     float64
	AllRed     float64
	MinGreen   float64
	Pedestrian float64
	Stages     []int // 覆盖的阶段下标（升序）
}

// Duration 相位时长
func (e Entry) Duration() float64 {
	return e.End - e.Start
}

// IsPlaceholder 是否为占位相位
func (e Entry) IsPlaceholder() bool {
	return e.Main == entity.PlaceholderPhase
}

// Covers 是否覆盖某阶段
func (e Entry) Covers(stage int) bool {
	return lo.Contains(e.Stages, stage)
}

// ContinuesAfter 相位在该阶段之后是否仍然持续（跨阶段）
func (e Entry) ContinuesAfter(stage int) bool {
	return len(e.Stages) > 0 && e.Stages[len(e.Stages)-1] > stage
}

// Serves 相位是否作为主相位或搭接相位放行ref
func (e Entry) Serves(ref entity.PhaseRef) bool {
	if !ref.Overlap && ref.No == e.Main {
		return true
	}
	return lo.ContainsBy(e.Overlaps, func(o entity.PhaseRef) bool { return o.Key() == ref.Key() })
}

// Layout 双环结构
type Layout struct {
	Rings     [entity.RingNum][]Entry
	Overlaps  map[entity.PhaseNo][]entity.PhaseRef // 主相位->搭接相位
	Ambiguous []string                             // 归属存在并列的搭接相位
}

// Cycle 环的总时长（两环相等）
func (l *Layout) Cycle() float64 {
	res := 0.
	for _, r := range l.Rings {
		if len(r) > 0 {
			res = max(res, r[len(r)-1].End)
		}
	}
	return res
}

// EntryOf 某阶段在某环中所处的相位
// 返回：相位下标，不存在返回-1
func (l *Layout) EntryOf(ring int, stage int) int {
	for i, e := range l.Rings[ring] {
		if e.Covers(stage) {
			return i
		}
	}
	return -1
}

// Phases 环中出现的所有主相位（去重，不含占位）
func (l *Layout) Phases() []entity.PhaseNo {
	res := make([]entity.PhaseNo, 0)
	for _, r := range l.Rings {
		for _, e := range r {
			if !e.IsPlaceholder() {
				res = append(res, e.Main)
			}
		}
	}
	return lo.Uniq(res)
}

// Document 转为环-屏障配时文档
// 功能：生成持久化用的文档，绿灯 = 结束 - 开始 - 黄灯 - 全红
func (l *Layout) Document(planNo int32) *entity.RingPlan {
	doc := &entity.RingPlan{
		PlanNo: planNo,
		Cycle:  l.Cycle(),
		Rings:  make([][]entity.RingPhase, entity.RingNum),
	}
	for m, r := range l.Rings {
		doc.Rings[m] = lo.Map(r, func(e Entry, _ int) entity.RingPhase {
			yellow, allRed := e.Yellow, e.AllRed
			if e.IsPlaceholder() {
				yellow, allRed = 0, 0
			}
			return entity.RingPhase{
				Phase:      e.Main,
				Overlaps:   e.Overlaps,
				Start:      e.Start,
				End:        e.End,
				Green:      e.Duration() - yellow - allRed,
				Yellow:     yellow,
				AllRed:     allRed,
				MinGreen:   e.MinGreen,
				Pedestrian: e.Pedestrian,
				Barrier:    e.Barrier,
			}
		})
	}
	return doc
}

// FromDocument 由环-屏障文档构造双环结构
// 功能：按各相位时长累加得到起止时刻，用于反向转换
func FromDocument(doc *entity.RingPlan) (*Layout, error) {
	if len(doc.Rings) != entity.RingNum {
		return nil, errRingCount(len(doc.Rings))
	}
	l := &Layout{Overlaps: make(map[entity.PhaseNo][]entity.PhaseRef)}
	for m, r := range doc.Rings {
		t := 0.
		for _, p := range r {
			if p.Phase != entity.PlaceholderPhase && !p.Phase.Valid() {
				return nil, errPhaseNo(p.Phase)
			}
			e := Entry{
				Main:       p.Phase,
				Overlaps:   p.Overlaps,
				Barrier:    p.Barrier,
				Start:      t,
				End:        t + p.Split(),
				Yellow:     p.Yellow,
				AllRed:     p.AllRed,
				MinGreen:   p.MinGreen,
				Pedestrian: p.Pedestrian,
			}
			t = e.End
			l.Rings[m] = append(l.Rings[m], e)
			if len(p.Overlaps) > 0 {
				l.Overlaps[p.Phase] = lo.UniqBy(append(l.Overlaps[p.Phase], p.Overlaps...), entity.PhaseRef.Key)
			}
		}
	}
	return l, nil
}
