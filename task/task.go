package task

import (
	"sync/atomic"

	"git.fiblab.net/sim/syncer/v3"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/clock"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/lane"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/config"
)

const (
	SelfName = "tsc" // 本程序在模拟任务集群中的名字
)

// Context 仿真任务上下文
// 功能：包含一次仿真任务的所有变量和状态
// 说明：管理时钟、车道与路口管理器、配置，以及与syncer的交互
type Context struct {
	// 任务名
	job string
	// 关闭指令
	closed atomic.Bool

	// 时钟
	clock *clock.Clock

	// 辅助程序，处理分布式模式下相关调用；为nil时以独立模式运行且不提供RPC
	sidecar *syncer.Sidecar
	// sidecar close channel
	sidecarCloseCh chan struct{}
	serving        bool

	// Lane管理器
	laneManager entity.ILaneManager
	// Junction管理器
	junctionManager entity.IJunctionManager

	// 运行时配置文件
	runtimeConfig *config.RuntimeConfig
}

// NewContext 创建新的仿真任务上下文
// 参数：
//   - job: 任务名称
//   - c: 配置对象
//   - sidecar: sidecar实例，可为nil
//   - startSidecarServe: 是否启动sidecar服务
//
// 返回：创建完成的Context实例，需调用Init或Run完成初始化
func NewContext(
	job string,
	c config.Config,
	sidecar *syncer.Sidecar,
	startSidecarServe bool,
) *Context {
	ctx := &Context{
		job:            job,
		sidecar:        sidecar,
		sidecarCloseCh: make(chan struct{}),
	}
	ctx.clock = clock.New(c.Control.Step)
	ctx.runtimeConfig = config.NewRuntimeConfig(c)

	ctx.laneManager = lane.NewManager(ctx)
	ctx.junctionManager = junction.NewManager(ctx)

	if ctx.sidecar != nil {
		ctx.clock.Register(ctx.sidecar)
		ctx.junctionManager.Register(ctx.sidecar)
		// sidecar协程，用于提供gRPC服务
		if startSidecarServe {
			ctx.serving = true
			go func() {
				err := ctx.sidecar.Serve()
				if err != nil {
					log.Panicf("failed to serve: %v", err)
				}
				ctx.sidecarCloseCh <- struct{}{}
			}()
		}
	}
	return ctx
}

func (ctx *Context) Clock() *clock.Clock {
	return ctx.clock
}

func (ctx *Context) LaneManager() entity.ILaneManager {
	return ctx.laneManager
}

func (ctx *Context) JunctionManager() entity.IJunctionManager {
	return ctx.junctionManager
}

func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

// Init 初始化时钟、车道与路口
func (ctx *Context) Init() {
	ctx.clock.Init()
	junctions := ctx.runtimeConfig.All.Junctions
	ctx.laneManager.Init(junctions)
	ctx.junctionManager.Init(junctions, ctx.laneManager)
	log.Infof("job %s: steps [%d, %d), dt=%v", ctx.job, ctx.clock.START_STEP, ctx.clock.END_STEP, ctx.clock.DT)
}

func (ctx *Context) Close() {
	if ctx.closed.Load() {
		return
	}
	if ctx.sidecar != nil {
		ctx.sidecar.Close()
		if ctx.serving {
			// wait for graceful stop
			<-ctx.sidecarCloseCh
		}
	}
	ctx.closed.Store(true)
}
