package junction_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity/junction"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/utils/config"
)

type testContext struct {
	rc *config.RuntimeConfig
	jm entity.IJunctionManager
}

func (c *testContext) JunctionManager() entity.IJunctionManager { return c.jm }
func (c *testContext) RuntimeConfig() *config.RuntimeConfig     { return c.rc }

func newTestContext(t *testing.T, control config.Control) *testContext {
	rc, err := config.NewRuntimeConfig(config.Config{
		Input: config.Input{
			Junctions: config.InputPath{File: "junctions.yaml"},
			Flow:      config.InputPath{File: "flows.yaml"},
		},
		Control: control,
	})
	require.Nil(t, err)
	ctx := &testContext{rc: rc}
	ctx.jm = junction.NewManager(ctx)
	return ctx
}

func ref(id string) entity.PhaseRef {
	r, err := entity.ParsePhaseRef(id)
	if err != nil {
		panic(err)
	}
	return r
}

func junctionConfig(id int32) entity.JunctionConfig {
	return entity.JunctionConfig{
		ID: id,
		Phases: []entity.PhaseDefinition{
			{No: 2, SaturationFlow: 1800}, {No: 6, SaturationFlow: 1800},
			{No: 4, SaturationFlow: 1600}, {No: 8, SaturationFlow: 1600},
		},
		Stages: []entity.StageDefinition{
			{No: 2, Phases: []entity.PhaseRef{ref("4"), ref("8")}, MinGreen: 10, Yellow: 3, AllRed: 2},
			{No: 1, Phases: []entity.PhaseRef{ref("2"), ref("6")}, MinGreen: 10, Yellow: 3, AllRed: 2},
		},
	}
}

func flowSamples(id int32) []entity.FlowSample {
	res := make([]entity.FlowSample, 0)
	for d := range 3 {
		for b := range 10 {
			add := func(stage int32, phase, road string, rate float64) {
				res = append(res, entity.FlowSample{
					JunctionID:     id,
					DayNo:          1,
					PeriodNo:       1,
					PlanNo:         1,
					Date:           fmt.Sprintf("2024-05-0%d", d+1),
					Time:           fmt.Sprintf("07:%02d", b*6),
					StageNo:        stage,
					Phase:          phase,
					Road:           road,
					Lane:           road + "1",
					FlowRate:       rate + float64(10*d),
					SaturationFlow: 1800,
				})
			}
			add(1, "2", "N", 600)
			add(1, "6", "S", 500)
			add(2, "4", "E", 300)
			add(2, "8", "W", 250)
		}
	}
	return res
}

func TestManagerInit(t *testing.T) {
	ctx := newTestContext(t, config.Control{})
	m := junction.NewManager(ctx)
	require.Nil(t, m.Init([]entity.JunctionConfig{junctionConfig(1), junctionConfig(2)}))
	j := m.Get(1)
	assert.Equal(t, int32(1), j.ID())
	// 阶段按编号排序
	assert.Equal(t, int32(1), j.Stages()[0].No)
	p, ok := j.Phase(4)
	assert.True(t, ok)
	assert.Equal(t, 1600., p.SaturationFlow)
	_, ok = j.Phase(3)
	assert.False(t, ok)
	_, err := m.GetOrError(3)
	assert.NotNil(t, err)
	assert.Panics(t, func() { m.Get(3) })
}

func TestManagerInitErrors(t *testing.T) {
	ctx := newTestContext(t, config.Control{})
	bad := junctionConfig(2)
	bad.Stages[0].Phases = []entity.PhaseRef{ref("2"), ref("4")}
	noStage := junctionConfig(3)
	noStage.Stages = nil
	dupPhase := junctionConfig(4)
	dupPhase.Phases = append(dupPhase.Phases, entity.PhaseDefinition{No: 2})
	cycle := junctionConfig(5)
	cycle.MinCycle, cycle.MaxCycle = 100, 80
	for _, c := range []entity.JunctionConfig{bad, noStage, dupPhase, cycle} {
		m := junction.NewManager(ctx)
		err := m.Init([]entity.JunctionConfig{junctionConfig(1), c})
		assert.ErrorIs(t, err, entity.ErrConfiguration, "junction %d", c.ID)
	}
	m := junction.NewManager(ctx)
	assert.ErrorIs(t, m.Init([]entity.JunctionConfig{junctionConfig(1), junctionConfig(1)}), entity.ErrConfiguration)
}

func TestManagerInitFromRingPlan(t *testing.T) {
	ctx := newTestContext(t, config.Control{})
	c := junctionConfig(7)
	c.Stages = nil
	c.RingPlan = &entity.RingPlan{
		PlanNo: 1,
		Rings: [][]entity.RingPhase{
			{{Phase: 2, Green: 25, Yellow: 3, AllRed: 2, Barrier: true}, {Phase: 4, Green: 15, Yellow: 3, AllRed: 2, Barrier: true}},
			{{Phase: 6, Green: 25, Yellow: 3, AllRed: 2, Barrier: true}, {Phase: 8, Green: 15, Yellow: 3, AllRed: 2, Barrier: true}},
		},
	}
	m := junction.NewManager(ctx)
	require.Nil(t, m.Init([]entity.JunctionConfig{c}))
	stages := m.Get(7).Stages()
	require.Len(t, stages, 2)
	assert.Equal(t, []entity.PhaseRef{entity.MainPhase(2), entity.MainPhase(6)}, stages[0].Phases)
	assert.Equal(t, 3., stages[1].Yellow)
}

func TestManagerRun(t *testing.T) {
	ctx := newTestContext(t, config.Control{Algorithm: config.AlgorithmBoth, JunctionIDs: []int32{1}})
	m := junction.NewManager(ctx)
	require.Nil(t, m.Init([]entity.JunctionConfig{junctionConfig(1), junctionConfig(2)}))
	_, err := m.GetOrError(2)
	assert.NotNil(t, err)

	samples := append(flowSamples(1), flowSamples(2)...)
	results := m.Run(context.Background(), samples)
	require.Len(t, results, 2)
	assert.Equal(t, entity.AlgorithmWebster, results[0].Algorithm)
	assert.Equal(t, entity.AlgorithmBnB, results[1].Algorithm)
	for _, res := range results {
		assert.Equal(t, int32(1), res.JunctionID)
		assert.Len(t, res.Buckets, 10)
		assert.Empty(t, res.Failures)
		require.Len(t, res.Segments, 1)
		seg := res.Segments[0]
		assert.Equal(t, "07:00", seg.Start)
		assert.Equal(t, "07:54", seg.End)
		require.Len(t, seg.Plan.Stages, 2)
		sum := 0.
		for _, st := range seg.Plan.Stages {
			assert.GreaterOrEqual(t, st.Duration(), 15.)
			sum += st.Duration()
		}
		assert.InDelta(t, seg.Plan.Cycle, sum, 1e-9)
		require.NotNil(t, seg.Rings)
		assert.InDelta(t, seg.Plan.Cycle, seg.Rings.Cycle, 1e-9)
		for _, b := range res.Buckets {
			assert.GreaterOrEqual(t, b.Cycle, 30.)
			assert.LessOrEqual(t, b.Cycle, 150.)
		}
	}
}

func TestManagerRunFailure(t *testing.T) {
	ctx := newTestContext(t, config.Control{Algorithm: config.AlgorithmBnB})
	m := junction.NewManager(ctx)
	c := junctionConfig(1)
	c.MaxCycle = 25
	c.MinCycle = 20
	require.Nil(t, m.Init([]entity.JunctionConfig{c}))
	results := m.Run(context.Background(), flowSamples(1))
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Buckets)
	assert.Len(t, results[0].Failures, 10)
	assert.ErrorIs(t, results[0].Failures[0], entity.ErrSearchExhausted)
	assert.Empty(t, results[0].Segments)
}
