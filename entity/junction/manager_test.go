package junction

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/clock"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/lane"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/config"
)

type testContext struct {
	clock           *clock.Clock
	laneManager     *lane.LaneManager
	junctionManager *JunctionManager
	rc              *config.RuntimeConfig
}

func (c *testContext) Clock() *clock.Clock                      { return c.clock }
func (c *testContext) LaneManager() entity.ILaneManager         { return c.laneManager }
func (c *testContext) JunctionManager() entity.IJunctionManager { return c.junctionManager }
func (c *testContext) RuntimeConfig() *config.RuntimeConfig     { return c.rc }

// newTestContext 路口1为南北/东西两相位；路口2的信号灯组含冲突车道，信控被禁用
func newTestContext(t *testing.T) *testContext {
	t.Helper()
	c := config.Config{
		Control:      config.Control{Step: config.ControlStep{Total: 1000, Interval: 1}},
		TrafficLight: config.DefaultTrafficLight(),
		Junctions: []config.Junction{
			{
				ID: 1,
				Lanes: []config.Lane{
					{ID: 1, SaturationFlow: 0.5, ArrivalRate: 0.2, Arrival: config.ArrivalUniform},
					{ID: 2, SaturationFlow: 0.5, ArrivalRate: 0.2, Arrival: config.ArrivalUniform},
					{ID: 3, SaturationFlow: 0.5, ArrivalRate: 0.2, Arrival: config.ArrivalUniform},
					{ID: 4, SaturationFlow: 0.5, ArrivalRate: 0.2, Arrival: config.ArrivalUniform},
				},
				Groups: []config.SignalGroup{
					{ID: 1, Lanes: []int32{1, 2}},
					{ID: 2, Lanes: []int32{3, 4}},
				},
				Conflicts: []config.Conflict{{Lane: 1, With: []int32{3, 4}}, {Lane: 2, With: []int32{3, 4}}},
			},
			{
				ID: 2,
				Lanes: []config.Lane{
					{ID: 21, SaturationFlow: 0.5, ArrivalRate: 0.2},
					{ID: 22, SaturationFlow: 0.5, ArrivalRate: 0.2},
				},
				Groups:    []config.SignalGroup{{ID: 1, Lanes: []int32{21, 22}}},
				Conflicts: []config.Conflict{{Lane: 21, With: []int32{22}}},
			},
		},
	}
	require.NoError(t, c.Validate())
	ctx := &testContext{
		clock: clock.New(c.Control.Step),
		rc:    config.NewRuntimeConfig(c),
	}
	ctx.laneManager = lane.NewManager(ctx)
	ctx.junctionManager = NewManager(ctx)
	ctx.laneManager.Init(c.Junctions)
	ctx.junctionManager.Init(c.Junctions, ctx.laneManager)
	return ctx
}

func (c *testContext) step() {
	c.clock.Tick()
	c.laneManager.Prepare()
	c.junctionManager.Prepare()
	c.junctionManager.Update(c.clock.DT)
	c.laneManager.Update(c.clock.DT)
}

func TestJunctionManagerInit(t *testing.T) {
	ctx := newTestContext(t)
	m := ctx.junctionManager

	j1 := m.Get(1)
	assert.True(t, j1.HasTrafficLight())
	assert.Len(t, j1.Lanes(), 4)
	assert.Equal(t, j1, ctx.laneManager.Get(3).ParentJunction())

	j2, err := m.GetOrError(2)
	require.NoError(t, err)
	assert.False(t, j2.HasTrafficLight())
	state, _, _ := ctx.laneManager.Get(21).Light()
	assert.Equal(t, mapv2.LightState_LIGHT_STATE_RED, state)

	_, err = m.GetOrError(3)
	assert.Error(t, err)
	assert.Panics(t, func() { m.Get(3) })
	assert.Equal(t, int32(-1), (*Junction)(nil).ID())
}

func TestJunctionManagerRun(t *testing.T) {
	ctx := newTestContext(t)
	ns := []int32{1, 2}
	ew := []int32{3, 4}
	isGreen := func(id int32) bool {
		state, _, _ := ctx.laneManager.Get(id).Light()
		return state == mapv2.LightState_LIGHT_STATE_GREEN
	}
	sawNS, sawEW := false, false
	for i := 0; i < 600; i++ {
		ctx.step()
		nsGreen := isGreen(ns[0]) || isGreen(ns[1])
		ewGreen := isGreen(ew[0]) || isGreen(ew[1])
		require.False(t, nsGreen && ewGreen, "step %d", i)
		assert.Equal(t, isGreen(ns[0]), isGreen(ns[1]))
		sawNS = sawNS || nsGreen
		sawEW = sawEW || ewGreen
		for _, id := range []int32{1, 2, 3, 4} {
			require.LessOrEqual(t, ctx.laneManager.Get(id).Queue(), int32(20), "step %d lane %d", i, id)
		}
	}
	assert.True(t, sawNS)
	assert.True(t, sawEW)
	for _, id := range []int32{1, 2, 3, 4} {
		assert.Positive(t, ctx.laneManager.Get(id).Discharged(), "lane %d", id)
	}
	// 禁用信控的路口始终全红
	assert.Zero(t, ctx.laneManager.Get(21).Discharged())
	ctx.junctionManager.Heartbeat()
}

func TestJunctionManagerEnqueue(t *testing.T) {
	ctx := newTestContext(t)
	m := ctx.junctionManager
	assert.NoError(t, m.Enqueue(1, 3))
	assert.Error(t, m.Enqueue(1, 21))
	assert.ErrorIs(t, m.Enqueue(2, 21), ErrDisabledTrafficLight)
	assert.Error(t, m.Enqueue(3, 1))
}

func TestTrafficLightService(t *testing.T) {
	ctx := newTestContext(t)
	m := ctx.junctionManager
	bg := context.Background()

	res, err := m.GetTrafficLight(bg, connect.NewRequest(&mapv2.GetTrafficLightRequest{JunctionId: 1}))
	require.NoError(t, err)
	tl := res.Msg.TrafficLight
	require.NotNil(t, tl)
	assert.Equal(t, int32(1), tl.JunctionId)
	require.Len(t, tl.Phases, 2)
	assert.Equal(t, []mapv2.LightState{
		mapv2.LightState_LIGHT_STATE_GREEN, mapv2.LightState_LIGHT_STATE_GREEN,
		mapv2.LightState_LIGHT_STATE_RED, mapv2.LightState_LIGHT_STATE_RED,
	}, tl.Phases[0].States)
	assert.Equal(t, int32(-1), res.Msg.PhaseIndex)

	res, err = m.GetTrafficLight(bg, connect.NewRequest(&mapv2.GetTrafficLightRequest{JunctionId: 2}))
	require.NoError(t, err)
	assert.Nil(t, res.Msg.TrafficLight)

	_, err = m.GetTrafficLight(bg, connect.NewRequest(&mapv2.GetTrafficLightRequest{JunctionId: 3}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = m.SetTrafficLight(bg, connect.NewRequest(&mapv2.SetTrafficLightRequest{}))
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	_, err = m.SetTrafficLightStatus(bg, connect.NewRequest(&mapv2.SetTrafficLightStatusRequest{JunctionId: 1, Ok: false}))
	require.NoError(t, err)
	// 下一次Prepare生效
	assert.True(t, m.Get(1).HasTrafficLight())
	ctx.step()
	assert.False(t, m.Get(1).HasTrafficLight())

	_, err = m.SetTrafficLightStatus(bg, connect.NewRequest(&mapv2.SetTrafficLightStatusRequest{JunctionId: 2, Ok: true}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	_, err = m.SetTrafficLightStatus(bg, connect.NewRequest(&mapv2.SetTrafficLightStatusRequest{JunctionId: 3, Ok: true}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}
