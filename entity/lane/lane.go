package lane

import (
	"fmt"
	"math"

	"git.fiblab.net/general/common/v2/mathutil"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/config"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/randengine"
)

// Lane 受信控的进口车道
// 功能：以排队模型表示车道：车辆按到达过程进入排队，绿灯时以饱和流率驶入下游路段
// 说明：Update阶段修改排队，Prepare阶段生成供信控读取的检测读数，两者不并发
type Lane struct {
	ctx entity.ITaskContext

	id             int32
	saturationFlow float64 // 饱和流率（veh/s）
	arrivalRate    float64 // 平均到达率（veh/s）
	uniform        bool    // 均匀到达
	generator      *randengine.Engine
	outLink        *Link            // 下游路段
	parentJunction entity.IJunction // 所在路口

	queue           int32   // 排队车辆数
	arrived         int32   // 上次Prepare以来到达的车辆数
	arrivalCredit   float64 // 均匀到达的累积量
	dischargeCredit float64 // 驶离能力的累积量
	discharged      int64   // 累计驶离车辆数

	sample entity.LaneSample // 检测读数（Prepare时更新）

	lightState              mapv2.LightState // 车道信号灯状态
	lightStateTotalTime     float64          // 车道信号灯本相位总时长
	lightStateRemainingTime float64          // 车道信号灯下一次切换时间
}

// newLane 创建并初始化一个新的Lane实例
// 参数：ctx-任务上下文，base-车道配置，links-下游路段映射表
// 返回：初始化完成的Lane实例
// 说明：初始为红灯；每条车道持有独立的随机数引擎，种子由全局种子与车道ID决定
func newLane(ctx entity.ITaskContext, base config.Lane, links map[int32]*Link) *Lane {
	l := &Lane{
		ctx:                     ctx,
		id:                      base.ID,
		saturationFlow:          base.SaturationFlow,
		arrivalRate:             base.ArrivalRate,
		uniform:                 base.Arrival == config.ArrivalUniform,
		generator:               randengine.New(ctx.RuntimeConfig().C.Seed + uint64(base.ID)),
		lightState:              mapv2.LightState_LIGHT_STATE_RED,
		lightStateTotalTime:     mathutil.INF,
		lightStateRemainingTime: mathutil.INF,
	}
	if base.OutLink != nil {
		link, ok := links[*base.OutLink]
		if !ok {
			log.Panicf("lane %d: no id %d in link data", l.id, *base.OutLink)
		}
		l.outLink = link
	}
	return l
}

// prepare 准备阶段，生成检测读数
func (l *Lane) prepare() {
	l.sample = entity.LaneSample{Arrivals: l.arrived, Queue: l.queue}
	l.arrived = 0
}

// update 更新阶段，执行车辆到达与驶离
// 参数：dt-时间步长
// 算法说明：
// 1. 到达：泊松到达按均值rate*dt采样，均匀到达累积rate*dt取整
// 2. 驶离：仅绿灯且有排队时以饱和流率累积驶离能力，受下游路段剩余空间限制
// 3. 无排队或非绿灯时驶离能力清零，不跨相位累积
func (l *Lane) update(dt float64) {
	var n int32
	if l.uniform {
		l.arrivalCredit += l.arrivalRate * dt
		n = int32(math.Floor(l.arrivalCredit + 1e-9))
		l.arrivalCredit -= float64(n)
	} else {
		n = l.generator.Poisson(l.arrivalRate * dt)
	}
	l.queue += n
	l.arrived += n

	if l.lightState != mapv2.LightState_LIGHT_STATE_GREEN || l.queue == 0 {
		l.dischargeCredit = 0
		return
	}
	l.dischargeCredit += l.saturationFlow * dt
	want := min(int32(math.Floor(l.dischargeCredit+1e-9)), l.queue)
	got := want
	if l.outLink != nil {
		got = l.outLink.receive(want)
	}
	l.queue -= got
	l.discharged += int64(got)
	l.dischargeCredit -= float64(got)
	if got < want {
		// 下游受阻
		l.dischargeCredit = math.Min(l.dischargeCredit, 1)
	}
}

// SetParentJunctionWhenInit 设置lane所在junction
func (l *Lane) SetParentJunctionWhenInit(parent entity.IJunction) {
	l.parentJunction = parent
}

func (l *Lane) String() string {
	return fmt.Sprintf("Lane %d", l.id)
}

func (l *Lane) ID() int32 {
	return l.id
}

func (l *Lane) SaturationFlow() float64 {
	return l.saturationFlow
}

func (l *Lane) ArrivalRate() float64 {
	return l.arrivalRate
}

func (l *Lane) Queue() int32 {
	return l.queue
}

func (l *Lane) Discharged() int64 {
	return l.discharged
}

// Sample 上一次Prepare时的检测读数
func (l *Lane) Sample() entity.LaneSample {
	return l.sample
}

func (l *Lane) OutLink() entity.ILink {
	if l.outLink == nil {
		return nil
	}
	return l.outLink
}

// OutLinkID 下游路段ID，没有下游路段返回false
func (l *Lane) OutLinkID() (int32, bool) {
	if l.outLink == nil {
		return 0, false
	}
	return l.outLink.id, true
}

func (l *Lane) ParentJunction() entity.IJunction {
	return l.parentJunction
}

// 信号灯

// 获取信号灯状态
func (l *Lane) Light() (mapv2.LightState, float64, float64) {
	return l.lightState, l.lightStateTotalTime, l.lightStateRemainingTime
}

// 设置信号灯状态
func (l *Lane) SetLight(state mapv2.LightState, totalTime float64, remainingTime float64) {
	l.lightState = state
	l.lightStateTotalTime = totalTime
	l.lightStateRemainingTime = remainingTime
}
