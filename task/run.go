package task

import (
	"flag"
	"sync"
)

var (
	heartBeatInterval = flag.Int("log.heartbeat_interval", 100, "心跳日志间隔步数")
)

// prepare 准备阶段，每步执行一次
// 算法说明：
// 1. 更新时钟
// 2. 心跳日志：定期输出时间与各路口信控状态
// 3. 车道管理器生成检测读数，之后路口管理器将信控结果写入车道
func (ctx *Context) prepare() {
	ctx.clock.Tick()

	if ctx.clock.InternalStep%int32(*heartBeatInterval) == 0 {
		hour, minute, second := ctx.clock.GetHourMinuteSecond()
		log.Infof(
			"STEP: %d(%d:%d:%.2f)",
			ctx.clock.InternalStep,
			hour, minute, second,
		)
		ctx.junctionManager.Heartbeat()
	}

	ctx.laneManager.Prepare()     // lane
	ctx.junctionManager.Prepare() // junction
}

// update 更新阶段，每步执行一次
// 说明：路口只读取Prepare阶段生成的检测读数，车道只读取Prepare阶段写入的灯色，两者并行执行
func (ctx *Context) update() {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx.junctionManager.Update(ctx.clock.DT) // junction
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx.laneManager.Update(ctx.clock.DT) // lane
	}()
	wg.Wait()
}

// Run 运行
// 说明：有sidecar时按syncer协议逐步同步，否则独立运行至结束步
func (ctx *Context) Run() {
	ctx.Init()
	if ctx.sidecar != nil {
		// init syncer
		ctx.sidecar.Step(false)
	}
	for {
		ctx.prepare()
		if ctx.sidecar != nil {
			// 通知准备阶段完成
			log.Debugf("step %d: prepare complete and call NotifyStepReady", ctx.clock.InternalStep)
			ctx.sidecar.NotifyStepReady()
		}
		ctx.update()
		log.Debugf("step %d: update complete", ctx.clock.InternalStep)
		last := ctx.clock.InternalStep+1 >= ctx.clock.END_STEP
		close := last
		if ctx.sidecar != nil {
			close = ctx.sidecar.Step(last)
		}
		if close || ctx.closed.Load() {
			break
		}
	}
	log.Infof("engine complete")
	ctx.Close()
}
