package trafficlight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApproachTrackerWindow(t *testing.T) {
	m, err := NewConflictModel(
		[]LaneSpec{{ID: 1, SaturationFlow: 4}, {ID: 2, SaturationFlow: 1}},
		[]SignalGroup{{ID: 1, Lanes: []int32{1}}, {ID: 2, Lanes: []int32{2}}},
		nil,
	)
	require.NoError(t, err)
	tracker := NewApproachTracker(m, 5)
	require.Len(t, tracker.All(), 2)
	a := tracker.Get(1)
	require.NotNil(t, a)
	assert.Nil(t, tracker.Get(3))

	for now := 1.; now <= 4; now++ {
		tracker.Update(now, 1, &Snapshot{Lanes: map[int32]LaneSample{1: {Arrivals: 1, Queue: int32(now)}}})
	}
	assert.InDelta(t, 1, a.ArrivalRate(), 1e-9)
	assert.InDelta(t, 0.25, a.Load(), 1e-9)
	assert.Equal(t, int32(4), a.Queue())
	// 缺失的车道视为无到达
	assert.Zero(t, tracker.Get(2).Load())

	// 无快照时保持排队，到达率随时间窗滑动
	tracker.Update(5, 1, nil)
	assert.Equal(t, int32(4), a.Queue())
	assert.InDelta(t, 0.8, a.ArrivalRate(), 1e-9)

	tracker.Update(6, 1, &Snapshot{Lanes: map[int32]LaneSample{1: {Queue: 2}}})
	// t=1的样本移出时间窗(1, 6]
	assert.InDelta(t, 3./5, a.ArrivalRate(), 1e-9)
	assert.Equal(t, int32(2), a.Queue())

	for now := 7.; now <= 10; now++ {
		tracker.Update(now, 1, nil)
	}
	assert.Zero(t, a.ArrivalRate())
	assert.Zero(t, a.Load())
}

func TestApproachLoadSaturates(t *testing.T) {
	a := newApproach(LaneSpec{ID: 1, SaturationFlow: 0.5})
	a.observe(1, 1, 300, LaneSample{Arrivals: 2}, true)
	assert.Equal(t, 2., a.ArrivalRate())
	assert.Equal(t, 1., a.Load())
}

func TestApproachClearingTime(t *testing.T) {
	a := newApproach(LaneSpec{ID: 1, SaturationFlow: 0.5})
	assert.Zero(t, a.clearingTime(90))

	a.queue = 4
	a.arrivalRate = 0.3
	assert.InDelta(t, 20, a.clearingTime(90), 1e-9)
	assert.Equal(t, 10., a.clearingTime(10))

	a.arrivalRate = 0.6
	assert.Equal(t, 90., a.clearingTime(90))
}

func TestApproachNeedsStabilization(t *testing.T) {
	a := newApproach(LaneSpec{ID: 1, SaturationFlow: 0.5})
	a.observe(10, 1, 300, LaneSample{}, true)
	// 无需求
	assert.False(t, a.NeedsStabilization(100, 3, 0, 30))

	a.observe(11, 1, 300, LaneSample{Arrivals: 1, Queue: 1}, true)
	assert.Equal(t, 9., a.redSince)
	assert.False(t, a.NeedsStabilization(20, 3, 0, 30))
	assert.False(t, a.NeedsStabilization(30, 3, 5, 30))
	assert.True(t, a.NeedsStabilization(31, 3, 5, 30))
	assert.True(t, a.NeedsStabilization(36, 3, 0, 30))

	a.setGreen(true, 36)
	assert.True(t, a.Green())
	assert.False(t, a.NeedsStabilization(100, 3, 0, 30))

	a.setGreen(false, 50)
	assert.Equal(t, 50., a.redSince)
	assert.False(t, a.NeedsStabilization(60, 3, 0, 30))
	assert.True(t, a.NeedsStabilization(77, 3, 0, 30))
}
