package trafficlight

import (
	"testing"

	"git.fiblab.net/general/common/v2/mathutil"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/clock"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/config"
)

type fakeContext struct {
	entity.ITaskContext
	clock *clock.Clock
}

func (c *fakeContext) Clock() *clock.Clock {
	return c.clock
}

// fakeLane 检测读数固定的车道
type fakeLane struct {
	id        int32
	sample    entity.LaneSample
	state     mapv2.LightState
	total     float64
	remaining float64
}

func (l *fakeLane) ID() int32                 { return l.id }
func (l *fakeLane) Sample() entity.LaneSample { return l.sample }
func (l *fakeLane) OutLinkID() (int32, bool)  { return 0, false }
func (l *fakeLane) SaturationFlow() float64   { return 0.5 }
func (l *fakeLane) SetLight(s mapv2.LightState, total, remaining float64) {
	l.state, l.total, l.remaining = s, total, remaining
}

func newTestAdaptive(t *testing.T) (*AdaptiveTrafficLight, *fakeContext, []*fakeLane) {
	t.Helper()
	ctx := &fakeContext{clock: clock.New(config.ControlStep{Start: 0, Total: 1000, Interval: 1})}
	lanes := []*fakeLane{
		{id: 2},
		{id: 1, sample: entity.LaneSample{Arrivals: 1, Queue: 3}},
	}
	tl, err := NewAdaptiveTrafficLight(
		ctx, 5, config.DefaultTrafficLight(),
		[]entity.ILaneTrafficLightSetter{lanes[0], lanes[1]},
		[]SignalGroup{{ID: 1, Lanes: []int32{1}}, {ID: 2, Lanes: []int32{2}}},
		map[int32][]int32{1: {2}},
	)
	require.NoError(t, err)
	return tl, ctx, lanes
}

// step 推进一步：先写灯色，再决策
func step(ctx *fakeContext, tl *AdaptiveTrafficLight) {
	ctx.clock.Tick()
	tl.Prepare()
	tl.Update(ctx.clock.DT)
}

func TestAdaptiveTrafficLight(t *testing.T) {
	tl, ctx, lanes := newTestAdaptive(t)
	lane2, lane1 := lanes[0], lanes[1]
	assert.True(t, tl.Ok())
	assert.Equal(t, int32(-1), tl.Step())
	assert.Equal(t, mathutil.INF, tl.RemainingTime())

	// 相位表按受控车道ID升序给出灯色
	prog := tl.Get()
	assert.Equal(t, int32(5), prog.JunctionId)
	require.Len(t, prog.Phases, 2)
	assert.Equal(t, 5., prog.Phases[0].Duration)
	assert.Equal(t, []mapv2.LightState{
		mapv2.LightState_LIGHT_STATE_GREEN, mapv2.LightState_LIGHT_STATE_RED,
	}, prog.Phases[0].States)

	// t=1 请求车道1的相位，t=4放行
	step(ctx, tl)
	assert.Equal(t, StateRequested, tl.Controller().State())
	assert.Equal(t, 3., tl.RemainingTime())

	step(ctx, tl)
	assert.Equal(t, mapv2.LightState_LIGHT_STATE_RED, lane1.state)
	assert.Equal(t, 2., lane1.remaining)
	assert.Equal(t, mathutil.INF, lane2.remaining)

	step(ctx, tl)
	step(ctx, tl)
	assert.Equal(t, StateActive, tl.Controller().State())
	assert.Equal(t, int32(0), tl.Step())

	step(ctx, tl)
	assert.Equal(t, mapv2.LightState_LIGHT_STATE_GREEN, lane1.state)
	assert.Equal(t, mapv2.LightState_LIGHT_STATE_RED, lane2.state)
	assert.Contains(t, tl.Status(), "ACTIVE phase[1]")

	require.NoError(t, tl.Enqueue(1))
	assert.ErrorIs(t, tl.Enqueue(3), ErrUnknownLane)

	// 关闭：撤下绿灯组，黄灯后全红，决策暂停
	tl.SetOk(false)
	assert.True(t, tl.Ok())
	step(ctx, tl)
	assert.False(t, tl.Ok())
	assert.Equal(t, StateIdle, tl.Controller().State())
	assert.Equal(t, mapv2.LightState_LIGHT_STATE_YELLOW, lane1.state)
	assert.Equal(t, 3., lane1.remaining)
	assert.Contains(t, tl.Status(), "(disabled)")
	for i := 0; i < 3; i++ {
		step(ctx, tl)
	}
	assert.Equal(t, mapv2.LightState_LIGHT_STATE_RED, lane1.state)
	assert.Equal(t, StateIdle, tl.Controller().State())

	// 重新开启后从IDLE恢复决策
	tl.SetOk(true)
	step(ctx, tl)
	assert.True(t, tl.Ok())
	assert.Equal(t, StateRequested, tl.Controller().State())
}

func TestAdaptiveTrafficLightConfigError(t *testing.T) {
	ctx := &fakeContext{clock: clock.New(config.ControlStep{Total: 10, Interval: 1})}
	lanes := []entity.ILaneTrafficLightSetter{&fakeLane{id: 1}, &fakeLane{id: 2}}

	tc := config.DefaultTrafficLight()
	tc.StabilizationStrategy = "ROUND_ROBIN"
	_, err := NewAdaptiveTrafficLight(ctx, 1, tc, lanes, []SignalGroup{{ID: 1, Lanes: []int32{1, 2}}}, nil)
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = NewAdaptiveTrafficLight(ctx, 1, config.DefaultTrafficLight(), lanes,
		[]SignalGroup{{ID: 1, Lanes: []int32{1, 2}}}, map[int32][]int32{1: {2}})
	assert.ErrorIs(t, err, ErrConflictInGroup)
}

func TestParamsFromConfig(t *testing.T) {
	tc := config.DefaultTrafficLight()
	tc.StabilizationStrategy = "PRIORITIZE_HIGHER_POSITIONS"
	tc.CheckDownstream = true
	p, err := ParamsFromConfig(tc)
	require.NoError(t, err)
	assert.Equal(t, StrategyPrioritizeHigherPositions, p.Strategy)
	assert.True(t, p.CheckDownstream)

	// 默认配置与默认控制参数一致
	p, err = ParamsFromConfig(config.DefaultTrafficLight())
	require.NoError(t, err)
	assert.Equal(t, DefaultParams(), p)

	tc.MinGreenTime = 0
	_, err = ParamsFromConfig(tc)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestLaneSignalGroup(t *testing.T) {
	g := newLaneSignalGroup(1, 2)
	s, total, _ := g.light(0)
	assert.Equal(t, mapv2.LightState_LIGHT_STATE_RED, s)
	assert.Equal(t, mathutil.INF, total)

	// 非绿灯时撤下无效
	g.Drop(1)
	s, _, _ = g.light(1)
	assert.Equal(t, mapv2.LightState_LIGHT_STATE_RED, s)

	g.Onset(5)
	s, _, _ = g.light(6)
	assert.Equal(t, mapv2.LightState_LIGHT_STATE_GREEN, s)

	g.Drop(10)
	s, total, remaining := g.light(11)
	assert.Equal(t, mapv2.LightState_LIGHT_STATE_YELLOW, s)
	assert.Equal(t, 2., total)
	assert.Equal(t, 1., remaining)
	s, _, _ = g.light(12)
	assert.Equal(t, mapv2.LightState_LIGHT_STATE_RED, s)

	noYellow := newLaneSignalGroup(2, 0)
	noYellow.Onset(0)
	noYellow.Drop(1)
	s, _, _ = noYellow.light(1)
	assert.Equal(t, mapv2.LightState_LIGHT_STATE_RED, s)

	assert.Greater(t, lightRank(mapv2.LightState_LIGHT_STATE_GREEN), lightRank(mapv2.LightState_LIGHT_STATE_YELLOW))
	assert.Greater(t, lightRank(mapv2.LightState_LIGHT_STATE_YELLOW), lightRank(mapv2.LightState_LIGHT_STATE_RED))
}
