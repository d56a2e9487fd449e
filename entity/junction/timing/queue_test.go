package timing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity/junction/timing"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity/ring"
)

func mainStage(no int32, phases ...entity.PhaseNo) entity.StageDefinition {
	refs := make([]entity.PhaseRef, len(phases))
	for i, p := range phases {
		refs[i] = entity.MainPhase(p)
	}
	return entity.StageDefinition{No: no, Phases: refs, MinGreen: 10, Yellow: 3, AllRed: 2}
}

func flow(p entity.PhaseNo, road string, rate float64) entity.PhaseFlow {
	return entity.PhaseFlow{
		Phase:          entity.MainPhase(p),
		Road:           road,
		FlowRate:       rate,
		SaturationFlow: 1800,
		RoadFlowRate:   rate,
	}
}

func sat1800(entity.PhaseNo) float64 { return 1800 }

func TestQueueEstimate(t *testing.T) {
	stages := []entity.StageDefinition{mainStage(1, 2, 6), mainStage(2, 4, 8)}
	l, err := ring.FromStages(stages, []float64{30, 30})
	require.Nil(t, err)
	e := timing.NewQueueEstimator(timing.DefaultOptions(), sat1800)

	res := e.Estimate(l, nil, 60)
	assert.Equal(t, 0., res.Total)
	assert.Empty(t, res.Phases)

	res = e.Estimate(l, []entity.PhaseFlow{flow(2, "N", 600)}, 60)
	require.Len(t, res.Phases, 1)
	pq := res.Phases[0]
	assert.Equal(t, 0, pq.Ring)
	assert.Equal(t, entity.MainPhase(2), pq.Phase)
	// 绿灯内消散完毕：最大排队约60米，最小排队为0
	assert.InDelta(t, 60, pq.Max, 1)
	assert.Equal(t, 0., pq.Min)
	assert.False(t, pq.Oversaturated)
	assert.InDelta(t, pq.Max/2, res.Total, 1e-9)

	low := e.Estimate(l, []entity.PhaseFlow{flow(2, "N", 300)}, 60)
	assert.Less(t, low.Total, res.Total)

	both := e.Estimate(l, []entity.PhaseFlow{flow(2, "N", 600), flow(8, "W", 200)}, 60)
	assert.Len(t, both.Phases, 2)
	assert.Greater(t, both.Total, res.Total)
}

func TestQueueLongerRed(t *testing.T) {
	stages := []entity.StageDefinition{mainStage(1, 2, 6), mainStage(2, 4, 8)}
	flows := []entity.PhaseFlow{flow(2, "N", 600)}
	e := timing.NewQueueEstimator(timing.DefaultOptions(), sat1800)
	short, err := ring.FromStages(stages, []float64{40, 20})
	require.Nil(t, err)
	long, err := ring.FromStages(stages, []float64{20, 40})
	require.Nil(t, err)
	// 相位2的红灯越长排队越长
	assert.Less(t, e.Estimate(short, flows, 60).Total, e.Estimate(long, flows, 60).Total)
}

func TestQueueBranches(t *testing.T) {
	stages := []entity.StageDefinition{mainStage(1, 2, 6), mainStage(2, 4, 8)}
	l, err := ring.FromStages(stages, []float64{30, 30})
	require.Nil(t, err)
	e := timing.NewQueueEstimator(timing.DefaultOptions(), sat1800)

	// 绿灯结束时仍有剩余排队
	res := e.Estimate(l, []entity.PhaseFlow{flow(2, "N", 900)}, 60)
	require.Len(t, res.Phases, 1)
	pq := res.Phases[0]
	assert.False(t, pq.Oversaturated)
	assert.InDelta(t, 268.6, pq.Max, 0.5)
	assert.InDelta(t, 17.9, pq.Min, 0.5)
	assert.InDelta(t, (pq.Max+pq.Min)/2, res.Total, 1e-9)

	// 绿灯内无法消散：最大=最小=周期*|wf1|
	res = e.Estimate(l, []entity.PhaseFlow{flow(2, "N", 1200)}, 60)
	pq = res.Phases[0]
	assert.True(t, pq.Oversaturated)
	assert.InDelta(t, 1800, pq.Max, 0.5)
	assert.Equal(t, pq.Max, pq.Min)
}

func TestQueueMonotonicInFlow(t *testing.T) {
	stages := []entity.StageDefinition{mainStage(1, 2, 6), mainStage(2, 4, 8)}
	e := timing.NewQueueEstimator(timing.DefaultOptions(), sat1800)
	for _, split := range [][2]float64{{30, 90}, {15, 105}, {60, 60}, {30, 30}, {40, 20}} {
		l, err := ring.FromStages(stages, split[:])
		require.Nil(t, err)
		cycle := split[0] + split[1]
		prev := 0.
		for q := 0.; q <= 5000; q += 25 {
			total := e.Estimate(l, []entity.PhaseFlow{flow(2, "N", q)}, cycle).Total
			require.GreaterOrEqual(t, total, prev-1e-9, "split %v flow %v", split, q)
			prev = total
		}
	}
}
