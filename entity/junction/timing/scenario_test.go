package timing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity/junction/timing"
)

func sample(date string, stage int32, phase, road, lane string, rate float64) entity.FlowSample {
	return entity.FlowSample{
		JunctionID:     1,
		DayNo:          1,
		PeriodNo:       1,
		PlanNo:         1,
		Date:           date,
		Time:           "07:00",
		StageNo:        stage,
		Phase:          phase,
		Road:           road,
		Lane:           lane,
		FlowRate:       rate,
		SaturationFlow: 1800,
		MinCycle:       50,
	}
}

func scenarioSamples() []entity.FlowSample {
	samples := []entity.FlowSample{
		sample("d1", 1, "2", "N", "a", 360),
		sample("d1", 1, "2", "N", "b", 540),
		sample("d1", 2, "4", "E", "c", 180),
		sample("d2", 1, "2", "N", "a", 720),
		sample("d2", 2, "4", "E", "c", 360),
		sample("d3", 1, "2", "N", "a", 180),
		sample("d3", 2, "4", "E", "c", 180),
	}
	invalid := sample("d1", 1, "2", "N", "x", 5000)
	invalid.SaturationFlow = 0
	unknown := sample("d1", 9, "2", "N", "y", 5000)
	unknown.Phase = ""
	for i := range samples {
		if samples[i].StageNo == 2 {
			samples[i].Yellow, samples[i].AllRed, samples[i].MinGreen = 4, 1, 12
		}
	}
	return append(samples, invalid, unknown)
}

func TestBuildStageScenarios(t *testing.T) {
	stages := []entity.StageDefinition{
		{No: 1, Phases: []entity.PhaseRef{entity.MainPhase(2), entity.MainPhase(6)}, MinGreen: 10, Yellow: 3, AllRed: 2},
		{No: 2, Phases: []entity.PhaseRef{entity.MainPhase(4), entity.MainPhase(8)}, MinGreen: 10, Yellow: 3, AllRed: 2},
	}
	res := timing.BuildStageScenarios(scenarioSamples(), stages, timing.CycleBounds{Min: 60, Max: 150}, 0.5)
	require.Len(t, res, 1)
	sc := res[0]
	assert.Equal(t, "07:00", sc.Bucket.Time)
	assert.Equal(t, []string{"d1", "d2"}, sc.Dates)
	assert.InDelta(t, 0.35, sc.Stages[0].Yi, 1e-9)
	assert.InDelta(t, 0.15, sc.Stages[1].Yi, 1e-9)
	// 配置中的约束保留，样本中的约束覆盖配置
	assert.Equal(t, 3., sc.Stages[0].Stage.Yellow)
	assert.Equal(t, 4., sc.Stages[1].Stage.Yellow)
	assert.Equal(t, 1., sc.Stages[1].Stage.AllRed)
	assert.Equal(t, 12., sc.Stages[1].Stage.MinGreen)
	assert.Equal(t, timing.CycleBounds{Min: 50, Max: 150}, sc.Bounds)
}

func TestBuildStageScenariosMissingStage(t *testing.T) {
	stages := []entity.StageDefinition{
		{No: 1, Phases: []entity.PhaseRef{entity.MainPhase(2)}, MinGreen: 10, Yellow: 3},
		{No: 3, Phases: []entity.PhaseRef{entity.MainPhase(4)}, MinGreen: 10, Yellow: 3},
	}
	res := timing.BuildStageScenarios(scenarioSamples(), stages, timing.CycleBounds{Min: 60, Max: 150}, 0.9)
	require.Len(t, res, 1)
	assert.Equal(t, 0., res[0].Stages[1].Yi)
	assert.Equal(t, []string{"d2"}, res[0].Dates)
}

func TestBuildPhaseScenarios(t *testing.T) {
	res := timing.BuildPhaseScenarios(scenarioSamples(), timing.CycleBounds{Min: 60, Max: 150}, 0.5)
	require.Len(t, res, 1)
	sc := res[0]
	assert.Equal(t, []string{"d1", "d2"}, sc.Dates)
	require.Len(t, sc.Flows, 2)
	n := sc.Flows[0]
	assert.Equal(t, entity.MainPhase(2), n.Phase)
	assert.Equal(t, "N", n.Road)
	assert.InDelta(t, 540, n.FlowRate, 1e-9)
	assert.Equal(t, 1800., n.SaturationFlow)
	assert.InDelta(t, 540, n.RoadFlowRate, 1e-9)
	e := sc.Flows[1]
	assert.Equal(t, entity.MainPhase(4), e.Phase)
	assert.InDelta(t, 270, e.FlowRate, 1e-9)
}
