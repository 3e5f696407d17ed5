package junction

import (
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
)

// 依赖倒置，表达junction对信号灯实现的接口需求

// 给外部读取的信控接口
type ITrafficLightGetter interface {
	Get() *mapv2.TrafficLight // 相位表
	Step() int32              // 当前放行相位，-1表示无
	RemainingTime() float64   // 距下一次放行的时间
	Ok() bool                 // 当前信控开关情况
	Status() string           // 状态摘要
}

// 信号灯接口
type ITrafficLight interface {
	ITrafficLightGetter
	Prepare()          // 准备阶段，处理各种写入buffer，将信控结果写入到lane中
	Update(dt float64) // 更新阶段，更新信控结果

	SetOk(ok bool)              // 设置信控开关情况（true信控工作|false信控失效-全红）
	Enqueue(laneID int32) error // 强制车道进入稳定化队列
}
