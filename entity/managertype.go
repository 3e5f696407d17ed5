package entity

import (
	"git.fiblab.net/sim/syncer/v3"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/config"
)

// Manager依赖倒置

// entity/lane/manager.go的依赖倒置
type ILaneManager interface {
	Init(junctions []config.Junction) // 初始化

	// 输入Lane ID，查找Lane，如果不存在则panic
	Get(id int32) ILane
	// 输入Lane ID，查找Lane，如果不存在则返回error
	GetOrError(id int32) (ILane, error)
	// 输入Link ID，查找Link，如果不存在则返回error
	GetLinkOrError(id int32) (ILink, error)

	Prepare()          // 准备阶段
	Update(dt float64) // 更新阶段
}

// entity/junction/manager.go的依赖倒置
type IJunctionManager interface {
	Init(junctions []config.Junction, laneManager ILaneManager) // 初始化
	Register(sidecar *syncer.Sidecar)                           // 注册到Sidecar

	// 输入Junction ID，查找Junction，如果不存在则panic
	Get(id int32) IJunction
	// 输入Junction ID，查找Junction，如果不存在则返回error
	GetOrError(id int32) (IJunction, error)

	Prepare()          // 准备阶段
	Update(dt float64) // 更新阶段
	Heartbeat()        // 输出各路口信控状态
}
