package entity

import (
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
)

// 车道检测器一步内的读数
type LaneSample struct {
	Arrivals int32 // 上一步到达的车辆数
	Queue    int32 // 当前排队车辆数
}

// entity/lane/lane.go的依赖倒置
type ILane interface {
	ILaneTrafficLightSetter

	// 初始化

	SetParentJunctionWhenInit(parent IJunction) // 设置lane所在junction

	// Print

	String() string

	// getter

	ID() int32                 // 获取Lane ID
	SaturationFlow() float64   // 饱和流率（veh/s）
	ArrivalRate() float64      // 配置的平均到达率（veh/s）
	Queue() int32              // 当前排队车辆数
	Discharged() int64         // 累计驶离车辆数
	OutLink() ILink            // 下游路段，可能为nil
	ParentJunction() IJunction // 获取Lane所在的Junction

	// 车道状态

	Light() (state mapv2.LightState, totalTime float64, remainingTime float64) // 获取信号灯状态
}

// 车道的信控接口
type ILaneTrafficLightSetter interface {
	ID() int32
	Sample() LaneSample                                                        // 上一次Prepare时的检测读数
	OutLinkID() (int32, bool)                                                  // 下游路段ID
	SaturationFlow() float64                                                   // 饱和流率（veh/s）
	SetLight(state mapv2.LightState, totalTime float64, remainingTime float64) // 设置信号灯状态
}

// entity/lane/link.go的依赖倒置
type ILink interface {
	ID() int32          // 获取路段ID
	Occupancy() float64 // 上一次Prepare时的占有率[0,1]
	Count() float64     // 当前路段车辆数
	Capacity() float64  // 路段容量（veh）
}

// entity/junction/junction.go的依赖倒置
type IJunction interface {
	ID() int32              // 获取Junction ID
	Lanes() map[int32]ILane // 获取Junction内的所有车道（Lane ID -> Lane）
	HasTrafficLight() bool  // 判断是否有信号灯
}
