package ring_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity/ring"
)

func stage(no int32, ids ...string) entity.StageDefinition {
	refs := make([]entity.PhaseRef, len(ids))
	for i, id := range ids {
		ref, err := entity.ParsePhaseRef(id)
		if err != nil {
			panic(err)
		}
		refs[i] = ref
	}
	return entity.StageDefinition{No: no, Phases: refs, MinGreen: 10, Yellow: 3, AllRed: 2}
}

func mains(r []ring.Entry) []entity.PhaseNo {
	res := make([]entity.PhaseNo, len(r))
	for i, e := range r {
		res[i] = e.Main
	}
	return res
}

func TestFromStagesStandard(t *testing.T) {
	stages := []entity.StageDefinition{stage(1, "2", "6"), stage(2, "1", "5"), stage(3, "4", "8"), stage(4, "3", "7")}
	l, err := ring.FromStages(stages, nil)
	require.Nil(t, err)
	assert.Equal(t, []entity.PhaseNo{2, 1, 4, 3}, mains(l.Rings[0]))
	assert.Equal(t, []entity.PhaseNo{6, 5, 8, 7}, mains(l.Rings[1]))
	for m := range l.Rings {
		barriers := []bool{false, true, false, true}
		for i, e := range l.Rings[m] {
			assert.Equal(t, barriers[i], e.Barrier, "ring %d entry %d", m, i)
			assert.Equal(t, 15*float64(i), e.Start)
			assert.Equal(t, 15., e.Duration())
		}
	}
	assert.Equal(t, 60., l.Cycle())
	assert.Empty(t, l.Ambiguous)
	assert.ElementsMatch(t, []entity.PhaseNo{1, 2, 3, 4, 5, 6, 7, 8}, l.Phases())

	back, durations, err := ring.ToStages(l)
	require.Nil(t, err)
	assert.Equal(t, []float64{15, 15, 15, 15}, durations)
	require.Len(t, back, 4)
	for i := range stages {
		assert.Equal(t, stages[i].Phases, back[i].Phases)
		assert.Equal(t, stages[i].No, back[i].No)
		assert.Equal(t, stages[i].MinTotal(), back[i].MinTotal())
	}
}

func TestFromStagesMergeAndPlaceholder(t *testing.T) {
	// 相位2跨越前两个阶段；第三阶段环1没有相位
	stages := []entity.StageDefinition{stage(1, "2", "6"), stage(2, "2", "5"), stage(3, "4")}
	l, err := ring.FromStages(stages, []float64{20, 15, 25})
	require.Nil(t, err)
	require.Equal(t, []entity.PhaseNo{2, 4}, mains(l.Rings[0]))
	require.Equal(t, []entity.PhaseNo{6, 5, entity.PlaceholderPhase}, mains(l.Rings[1]))

	r0 := l.Rings[0]
	assert.Equal(t, []int{0, 1}, r0[0].Stages)
	assert.Equal(t, 35., r0[0].Duration())
	assert.True(t, r0[0].ContinuesAfter(0))
	assert.False(t, r0[0].ContinuesAfter(1))
	assert.True(t, r0[0].Barrier)
	assert.True(t, l.Rings[1][1].Barrier)
	assert.False(t, l.Rings[1][0].Barrier)
	// 两环在屏障处对齐
	assert.Equal(t, r0[0].End, l.Rings[1][1].End)
	assert.True(t, l.Rings[1][2].IsPlaceholder())
	assert.Equal(t, 2, l.EntryOf(1, 2))
	assert.Equal(t, 1, l.EntryOf(1, 1))
	assert.Equal(t, 0, l.EntryOf(0, 1))
	assert.Equal(t, -1, l.EntryOf(0, 5))

	doc := l.Document(7)
	assert.Equal(t, int32(7), doc.PlanNo)
	assert.Equal(t, 60., doc.Cycle)
	ph := doc.Rings[1][2]
	assert.Equal(t, 0., ph.Yellow)
	assert.Equal(t, 25., ph.Green)
	assert.Equal(t, 30., doc.Rings[0][0].Green)

	back, durations, err := ring.ToStages(l)
	require.Nil(t, err)
	assert.Equal(t, []float64{20, 15, 25}, durations)
	assert.Equal(t, []entity.PhaseRef{entity.MainPhase(4)}, back[2].Phases)
}

func TestOverlapResolution(t *testing.T) {
	// 搭接相位A在两个阶段中都与相位2同时出现
	l, err := ring.FromStages([]entity.StageDefinition{stage(1, "2", "6", "A"), stage(2, "2", "5", "A")}, nil)
	require.Nil(t, err)
	assert.Equal(t, []entity.PhaseRef{entity.OverlapOf("A", 0)}, l.Overlaps[2])
	assert.Equal(t, l.Overlaps[2], l.Rings[0][0].Overlaps)
	assert.Empty(t, l.Ambiguous)

	// 并列时使用P<n>提示
	l, err = ring.FromStages([]entity.StageDefinition{stage(1, "2", "6", "P6"), stage(2, "4", "8")}, nil)
	require.Nil(t, err)
	assert.Equal(t, []entity.PhaseRef{entity.OverlapOf("P6", 6)}, l.Overlaps[6])
	assert.Empty(t, l.Ambiguous)

	// 无法区分时取最早的候选并记录
	l, err = ring.FromStages([]entity.StageDefinition{stage(1, "2", "6", "B"), stage(2, "4", "8", "B")}, nil)
	require.Nil(t, err)
	assert.Equal(t, []entity.PhaseRef{entity.OverlapOf("B", 0)}, l.Overlaps[2])
	assert.Equal(t, []string{"B"}, l.Ambiguous)

	// 同环多个相位时直行相位为主相位，左转相位挂在其上
	l, err = ring.FromStages([]entity.StageDefinition{stage(1, "1", "2", "6"), stage(2, "4", "8")}, nil)
	require.Nil(t, err)
	assert.Equal(t, entity.PhaseNo(2), l.Rings[0][0].Main)
	assert.Equal(t, []entity.PhaseRef{entity.MainPhase(1)}, l.Overlaps[2])
	assert.True(t, l.Rings[0][0].Serves(entity.MainPhase(1)))
	assert.False(t, l.Rings[0][0].Serves(entity.MainPhase(4)))
}

func TestFromStagesErrors(t *testing.T) {
	cases := map[string][]entity.StageDefinition{
		"empty stage":  {stage(1, "2", "6"), {No: 2}},
		"phase 9":      {{No: 1, Phases: []entity.PhaseRef{entity.MainPhase(9)}}},
		"mixed sides":  {stage(1, "2", "4")},
		"overlap only": {stage(1, "A")},
		"no stage":     {},
	}
	for name, stages := range cases {
		_, err := ring.FromStages(stages, nil)
		assert.ErrorIs(t, err, entity.ErrConfiguration, name)
	}
	_, err := ring.FromStages([]entity.StageDefinition{stage(1, "2")}, []float64{1, 2})
	assert.ErrorIs(t, err, entity.ErrConfiguration)
	_, err = entity.ParsePhaseRef("9")
	assert.ErrorIs(t, err, entity.ErrConfiguration)
}

func TestDocumentRoundTrip(t *testing.T) {
	stages := []entity.StageDefinition{stage(1, "2", "6", "A"), stage(2, "1", "5"), stage(3, "4", "8"), stage(4, "3", "8")}
	l, err := ring.FromStages(stages, []float64{30, 12, 25, 13})
	require.Nil(t, err)
	doc := l.Document(1)
	parsed, err := ring.FromDocument(doc)
	require.Nil(t, err)
	assert.Equal(t, l.Cycle(), parsed.Cycle())
	a, da, err := ring.ToStages(l)
	require.Nil(t, err)
	b, db, err := ring.ToStages(parsed)
	require.Nil(t, err)
	assert.Equal(t, da, db)
	assert.Equal(t, a, b)
	assert.Equal(t, []float64{30, 12, 25, 13}, da)

	_, err = ring.FromDocument(&entity.RingPlan{Rings: make([][]entity.RingPhase, 1)})
	assert.ErrorIs(t, err, entity.ErrConfiguration)

	doc.Rings[1] = doc.Rings[1][:len(doc.Rings[1])-1]
	broken, err := ring.FromDocument(doc)
	require.Nil(t, err)
	_, _, err = ring.ToStages(broken)
	assert.ErrorIs(t, err, entity.ErrConfiguration)
}
