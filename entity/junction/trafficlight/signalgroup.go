package trafficlight

import (
	"git.fiblab.net/general/common/v2/mathutil"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
)

// laneSignalGroup 车道侧的信号灯组
// 功能：接收ONSET/DROP指令，维护灯色：放行为绿灯，撤下后先黄灯yellowTime秒再转红灯
type laneSignalGroup struct {
	id         int32
	yellowTime float64
	state      mapv2.LightState
	since      float64 // 进入当前灯色的时刻
}

func newLaneSignalGroup(id int32, yellowTime float64) *laneSignalGroup {
	return &laneSignalGroup{
		id:         id,
		yellowTime: yellowTime,
		state:      mapv2.LightState_LIGHT_STATE_RED,
	}
}

func (g *laneSignalGroup) ID() int32 {
	return g.id
}

func (g *laneSignalGroup) Onset(t float64) {
	g.state = mapv2.LightState_LIGHT_STATE_GREEN
	g.since = t
}

func (g *laneSignalGroup) Drop(t float64) {
	if g.state != mapv2.LightState_LIGHT_STATE_GREEN {
		return
	}
	g.state = mapv2.LightState_LIGHT_STATE_YELLOW
	g.since = t
	if g.yellowTime <= 0 {
		g.state = mapv2.LightState_LIGHT_STATE_RED
	}
}

// light 当前灯色、本灯色总时长与剩余时长
// 说明：绿灯与红灯的结束时刻由控制器实时决定，时长记为INF
func (g *laneSignalGroup) light(now float64) (mapv2.LightState, float64, float64) {
	if g.state == mapv2.LightState_LIGHT_STATE_YELLOW {
		if now-g.since < g.yellowTime-timeEps {
			return g.state, g.yellowTime, g.yellowTime - (now - g.since)
		}
		g.state = mapv2.LightState_LIGHT_STATE_RED
		g.since += g.yellowTime
	}
	return g.state, mathutil.INF, mathutil.INF
}

// lightRank 车道属于多个组时取放行程度最高的灯色
func lightRank(s mapv2.LightState) int {
	switch s {
	case mapv2.LightState_LIGHT_STATE_GREEN:
		return 2
	case mapv2.LightState_LIGHT_STATE_YELLOW:
		return 1
	}
	return 0
}
