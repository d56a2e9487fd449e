package ring

import (
	"slices"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity"
)

// candidates 搭接相位的候选主相位（按声明顺序记录）
type candidates struct {
	order []entity.PhaseRef
	mains map[string][]entity.PhaseNo
}

func newCandidates() *candidates {
	return &candidates{mains: make(map[string][]entity.PhaseNo)}
}

func (c *candidates) add(ref entity.PhaseRef, mains ...entity.PhaseNo) {
	key := ref.Key()
	if _, ok := c.mains[key]; !ok {
		c.order = append(c.order, ref)
		c.mains[key] = make([]entity.PhaseNo, 0)
	}
	c.mains[key] = append(c.mains[key], mains...)
}

// resolve 确定搭接相位归属
// 功能：在全部阶段扫描完成后，为每个搭接相位选择唯一的主相位
// 返回：主相位->搭接相位列表，以及存在并列的搭接相位标识
// 算法说明：
// 1. 只有一个候选主相位时直接挂接
// 2. 否则取被引用次数最多的主相位
// 3. 次数并列时，若标识带有"P<n>"提示且n在并列候选中，则挂在n上
// 4. 仍无法区分时取声明顺序最早的候选，并记为歧义（不丢弃）
func (c *candidates) resolve() (map[entity.PhaseNo][]entity.PhaseRef, []string) {
	res := make(map[entity.PhaseNo][]entity.PhaseRef)
	ambiguous := make([]string, 0)
	for _, ref := range c.order {
		mains := c.mains[ref.Key()]
		if len(mains) == 0 {
			// 阶段中只有搭接相位，没有可挂接的主相位
			ambiguous = append(ambiguous, ref.Key())
			continue
		}
		uniq := lo.Uniq(mains)
		var owner entity.PhaseNo
		if len(uniq) == 1 {
			owner = uniq[0]
		} else {
			counts := lo.CountValues(mains)
			best := lo.Max(lo.Values(counts))
			tied := lo.Filter(uniq, func(p entity.PhaseNo, _ int) bool { return counts[p] == best })
			switch {
			case len(tied) == 1:
				owner = tied[0]
			case ref.Overlap && ref.No != 0 && slices.Contains(tied, ref.No):
				owner = ref.No
			default:
				owner = tied[0]
				ambiguous = append(ambiguous, ref.Key())
			}
		}
		if owner == entity.PlaceholderPhase {
			continue
		}
		res[owner] = append(res[owner], ref)
	}
	return res, ambiguous
}
