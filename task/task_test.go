package task

import (
	"os"
	"testing"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/config"
)

func loadExample(t *testing.T) config.Config {
	t.Helper()
	data, err := os.ReadFile("../configs/example.yaml")
	require.NoError(t, err)
	c, err := config.Load(data)
	require.NoError(t, err)
	return c
}

func green(ctx *Context, id int32) bool {
	state, _, _ := ctx.LaneManager().Get(id).Light()
	return state == mapv2.LightState_LIGHT_STATE_GREEN
}

func TestContextStandaloneSteps(t *testing.T) {
	c := loadExample(t)
	ctx := NewContext("test", c, nil, false)
	ctx.Init()
	assert.Equal(t, 0., ctx.Clock().T)

	ids := []int32{1, 2, 3, 4, 21, 22, 23}
	for i := 0; i < 900; i++ {
		ctx.prepare()
		ctx.update()
		ns := green(ctx, 1) || green(ctx, 2)
		ew := green(ctx, 3) || green(ctx, 4)
		require.False(t, ns && ew, "t=%v", ctx.Clock().T)
		require.False(t, green(ctx, 23) && (green(ctx, 21) || green(ctx, 22)), "t=%v", ctx.Clock().T)
		// 需求低于通行能力，排队保持有界
		for _, id := range ids {
			require.LessOrEqual(t, ctx.LaneManager().Get(id).Queue(), int32(40), "t=%v lane %d", ctx.Clock().T, id)
		}
	}
	assert.Equal(t, 900., ctx.Clock().T)
	for _, id := range ids {
		assert.Positive(t, ctx.LaneManager().Get(id).Discharged(), "lane %d", id)
	}
	j, err := ctx.JunctionManager().GetOrError(2)
	require.NoError(t, err)
	assert.True(t, j.HasTrafficLight())
	assert.Equal(t, c.TrafficLight, ctx.RuntimeConfig().TL)
	ctx.Close()
}

func TestContextRun(t *testing.T) {
	c := loadExample(t)
	c.Control.Step.Total = 200
	ctx := NewContext("test", c, nil, false)
	ctx.Run()
	assert.True(t, ctx.closed.Load())
	assert.Equal(t, ctx.Clock().END_STEP-1, ctx.Clock().InternalStep)
}
