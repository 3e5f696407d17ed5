package junction

import (
	"errors"

	"git.fiblab.net/general/common/v2/mathutil"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/config"
)

var (
	ErrDisabledTrafficLight = errors.New("traffic light is disabled for the junction")
)

type Junction struct {
	ctx entity.ITaskContext

	id           int32
	laneIDs      []int32
	trafficLight ITrafficLight          // 信号灯模块，配置错误时为nil（全红）
	lanes        map[int32]entity.ILane // 车道id->车道指针映射表
}

// newJunction 创建并初始化一个新的Junction实例
// 功能：根据路口配置关联车道并创建自适应信号灯
// 参数：ctx-任务上下文，base-路口配置，laneManager-车道管理器
// 返回：初始化完成的Junction实例
// 说明：信控配置错误只在此记录一次，路口退化为永久全红
func newJunction(
	ctx entity.ITaskContext,
	base config.Junction,
	laneManager entity.ILaneManager,
) *Junction {
	j := &Junction{
		ctx:     ctx,
		id:      base.ID,
		laneIDs: lo.Map(base.Lanes, func(l config.Lane, _ int) int32 { return l.ID }),
		lanes:   make(map[int32]entity.ILane),
	}

	lanes := make([]entity.ILaneTrafficLightSetter, 0, len(j.laneIDs))
	for _, laneID := range j.laneIDs {
		lane := laneManager.Get(laneID)
		lane.SetParentJunctionWhenInit(j)
		j.lanes[laneID] = lane
		lanes = append(lanes, lane)
	}

	groups := lo.Map(base.Groups, func(g config.SignalGroup, _ int) trafficlight.SignalGroup {
		return trafficlight.SignalGroup{ID: g.ID, Lanes: g.Lanes}
	})
	tl, err := trafficlight.NewAdaptiveTrafficLight(
		ctx, j.id, ctx.RuntimeConfig().TL, lanes, groups, base.ConflictMap(),
	)
	if err != nil {
		log.Errorf("junction %d: traffic light disabled: %v", j.id, err)
		for _, lane := range lanes {
			lane.SetLight(mapv2.LightState_LIGHT_STATE_RED, mathutil.INF, mathutil.INF)
		}
	} else {
		j.trafficLight = tl
	}
	return j
}

// prepare 准备阶段，将信控结果写入车道
func (j *Junction) prepare() {
	if j.trafficLight != nil {
		j.trafficLight.Prepare()
	}
}

// update 更新阶段，执行信号灯的决策逻辑
// 参数：dt-时间步长
func (j *Junction) update(dt float64) {
	if j.trafficLight != nil {
		j.trafficLight.Update(dt)
	}
}

// ID 获取Junction的唯一标识符
// 返回：Junction的ID，如果Junction为nil则返回-1
func (j *Junction) ID() int32 {
	if j == nil {
		return -1
	}
	return j.id
}

// Lanes 获取Junction内的所有车道映射
func (j *Junction) Lanes() map[int32]entity.ILane {
	return j.lanes
}

// HasTrafficLight 判断是否有正常工作的信号灯
func (j *Junction) HasTrafficLight() bool {
	return j.trafficLight != nil && j.trafficLight.Ok()
}

// setStatus 设置信号灯状态
// 参数：ok-信号灯状态，true表示正常工作，false表示失效（全红）
// 返回：设置结果，如果信号灯被禁用则返回错误
func (j *Junction) setStatus(ok bool) error {
	if j.trafficLight == nil {
		return ErrDisabledTrafficLight
	}
	j.trafficLight.SetOk(ok)
	return nil
}

// enqueue 强制车道进入稳定化队列
func (j *Junction) enqueue(laneID int32) error {
	if j.trafficLight == nil {
		return ErrDisabledTrafficLight
	}
	return j.trafficLight.Enqueue(laneID)
}
