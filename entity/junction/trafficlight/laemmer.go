// 提供Läemmer自适应信号灯控制算法
// 每步根据车道负荷累积相位优先级指数并贪心选择相位，同时由稳定化机制保证每条车道的等待时间有界
package trafficlight

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
)

var (
	ErrInvalidParams = errors.New("invalid traffic light parameters")
	ErrUnknownGroup  = errors.New("unknown signal group")
)

// Params 控制参数
type Params struct {
	MinGreenTime           float64      // 最小绿灯时间（秒）
	IntergreenTime         float64      // 绿灯间隔（清空）时间（秒）
	DesiredCycleTime       float64      // 期望周期（秒）
	MaxCycleTime           float64      // 最大周期（秒），用于截断排队消散时间估计
	LookBackTime           float64      // 到达率统计的回看时间窗（秒）
	StabilizationThreshold float64      // 预测等待时间达到该值的车道进入稳定化队列（秒）
	StabilizationLookAhead int          // 预留周期时间时考虑的相位外关键车道数
	Strategy               StrategyKind // 稳定化相位选择策略
	CheckDownstream        bool         // 是否检查下游占有率
	DownstreamThreshold    float64      // 下游占有率否决阈值
	MaxGroups              int          // 穷举相位的信号灯组数量上限
	PruneDominated         bool         // 是否剔除被支配的相位
}

// DefaultParams 默认控制参数
func DefaultParams() Params {
	return Params{
		MinGreenTime:           5,
		IntergreenTime:         3,
		DesiredCycleTime:       60,
		MaxCycleTime:           90,
		LookBackTime:           300,
		StabilizationThreshold: 30,
		StabilizationLookAhead: 3,
		Strategy:               StrategyHeuristic,
		CheckDownstream:        false,
		DownstreamThreshold:    0.9,
		MaxGroups:              20,
		PruneDominated:         true,
	}
}

// Validate 校验控制参数
func (p Params) Validate() error {
	switch {
	case p.MinGreenTime <= 0:
		return fmt.Errorf("%w: min green time %v must be positive", ErrInvalidParams, p.MinGreenTime)
	case p.IntergreenTime < 0:
		return fmt.Errorf("%w: intergreen time %v must not be negative", ErrInvalidParams, p.IntergreenTime)
	case p.DesiredCycleTime <= 0:
		return fmt.Errorf("%w: desired cycle time %v must be positive", ErrInvalidParams, p.DesiredCycleTime)
	case p.MaxCycleTime < p.DesiredCycleTime:
		return fmt.Errorf("%w: max cycle time %v is shorter than desired cycle time %v", ErrInvalidParams, p.MaxCycleTime, p.DesiredCycleTime)
	case p.LookBackTime <= 0:
		return fmt.Errorf("%w: look back time %v must be positive", ErrInvalidParams, p.LookBackTime)
	case p.StabilizationThreshold <= 0:
		return fmt.Errorf("%w: stabilization threshold %v must be positive", ErrInvalidParams, p.StabilizationThreshold)
	case p.StabilizationLookAhead < 0:
		return fmt.Errorf("%w: stabilization look ahead %d must not be negative", ErrInvalidParams, p.StabilizationLookAhead)
	case p.DownstreamThreshold <= 0 || p.DownstreamThreshold > 1:
		return fmt.Errorf("%w: downstream threshold %v must be in (0, 1]", ErrInvalidParams, p.DownstreamThreshold)
	}
	if _, ok := strategyNames[p.Strategy]; !ok {
		return fmt.Errorf("%w: %v", ErrInvalidParams, p.Strategy)
	}
	return nil
}

// ISignalGroup 外部信号灯组，接收控制器下发的指令
type ISignalGroup interface {
	ID() int32
	Onset(t float64) // 开始放行
	Drop(t float64)  // 结束放行，进入清空
}

// Controller Läemmer自适应信号灯控制器
// 功能：单个路口的实时决策循环，每步决定哪个相位放行
// 说明：非并发安全，每个路口一个实例；内部状态只由UpdateState/Enqueue/Reset修改
type Controller struct {
	junctionID int32
	params     Params

	model      *ConflictModel
	phases     []*Phase
	tracker    *ApproachTracker
	optimizer  *optimizer
	stabilizer *stabilizer
	sm         *phaseStateMachine

	queue   StabilizationQueue
	episode *episode // 当前稳定化过程，nil表示无

	signals  map[int32]ISignalGroup
	lastTime float64
	started  bool
}

// NewController 创建控制器
// 功能：校验参数与路口静态数据，生成相位表，初始化估计器、优化器、稳定化选择器与状态机
// 参数：junctionID-路口ID，params-控制参数，lanes-受控车道，groups-信号灯组，conflicts-车道冲突关系
// 返回：控制器或配置错误
// 说明：没有合法相位时记录一次警告，控制器永远保持IDLE
func NewController(
	junctionID int32,
	params Params,
	lanes []LaneSpec,
	groups []SignalGroup,
	conflicts map[int32][]int32,
) (*Controller, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("junction %d: %w", junctionID, err)
	}
	model, err := NewConflictModel(lanes, groups, conflicts)
	if err != nil {
		return nil, fmt.Errorf("junction %d: %w", junctionID, err)
	}
	c := &Controller{
		junctionID: junctionID,
		params:     params,
		model:      model,
		phases: GeneratePhases(model, GeneratorOptions{
			MaxGroups:      params.MaxGroups,
			PruneDominated: params.PruneDominated,
		}),
		tracker: NewApproachTracker(model, params.LookBackTime),
		sm:      newPhaseStateMachine(model, params.MinGreenTime, params.IntergreenTime),
		signals: make(map[int32]ISignalGroup),
	}
	if len(c.phases) == 0 {
		log.Warnf("junction %d has no legal phase, traffic light stays idle", junctionID)
	}
	c.optimizer = newOptimizer(c.phases, params)
	c.stabilizer = &stabilizer{
		params:  params,
		model:   model,
		tracker: c.tracker,
		strategy: NewStrategy(params.Strategy, params, func(id int32) float64 {
			if a := c.tracker.Get(id); a != nil {
				return a.load
			}
			return 0
		}),
	}
	log.Debugf("junction %d: %d lanes, %d groups, phases %v", junctionID, len(model.lanes), len(model.groups), c.phases)
	return c, nil
}

// Bind 绑定外部信号灯组，之后产生的指令会同时下发给它们
func (c *Controller) Bind(groups ...ISignalGroup) error {
	for _, g := range groups {
		if _, ok := c.model.groupIdx[g.ID()]; !ok {
			return fmt.Errorf("junction %d group %d: %w", c.junctionID, g.ID(), ErrUnknownGroup)
		}
		c.signals[g.ID()] = g
	}
	return nil
}

// UpdateState 每步唯一的入口
// 功能：吸收检测快照，推进相位状态机，维护稳定化队列并在需要时请求新相位
// 参数：now-当前时间，snap-本步检测快照（可为nil，视为无到达）
// 返回：本步产生的ONSET/DROP指令（同时已下发给绑定的信号灯组）
// 算法说明：
// 1. 估计器吸收快照，非放行相位累积优先级指数
// 2. 到期的请求相位放行，被放行相位指数清零，稳定化过程开始计时
// 3. 预测等待时间超过阈值的车道进入稳定化队列
// 4. 结束已完成的稳定化过程，队列非空时为队首选择调节相位
// 5. 存在调节相位时请求之（稳定化总是优先）；否则空闲时选指数最大的相位，放行满最小绿灯后仅当其余相位指数严格大于放行相位时切换
func (c *Controller) UpdateState(now float64, snap *Snapshot) []Command {
	if len(c.phases) == 0 {
		return nil
	}
	interval := 0.
	if snap != nil {
		interval = snap.Interval
	}
	dt := interval
	if c.started {
		dt = now - c.lastTime
	}
	if interval <= 0 {
		interval = dt
	}
	c.lastTime = now
	c.started = true

	c.tracker.Update(now, interval, snap)
	c.optimizer.accrue(dt, c.phases, c.tracker, c.sm.active)

	cmds := make([]Command, 0)
	onsets, activated := c.sm.Tick(now)
	cmds = append(cmds, onsets...)
	c.syncGreen(now)
	if activated != nil {
		c.onActivated(activated, now)
	}

	c.admit(now)
	c.stabilize(now)
	cmds = append(cmds, c.decide(now, snap)...)
	c.syncGreen(now)

	c.deliver(cmds)
	return cmds
}

// onActivated 相位开始放行
func (c *Controller) onActivated(p *Phase, now float64) {
	log.Debugf("junction %d: %v active at %.2f", c.junctionID, p, now)
	c.optimizer.reset(p)
	if e := c.episode; e != nil && e.phase == p && !e.started {
		c.stabilizer.begin(e, &c.queue, now)
	}
}

// admit 车道进入稳定化队列
func (c *Controller) admit(now float64) {
	delay := c.sm.switchDelay(now)
	for _, a := range c.tracker.approaches {
		if a.stabilize {
			continue
		}
		if a.NeedsStabilization(now, c.params.IntergreenTime, delay, c.params.StabilizationThreshold) {
			a.stabilize = true
			c.queue.Push(a)
			log.Debugf("junction %d: lane %d enters stabilization at %.2f", c.junctionID, a.id, now)
		}
	}
}

// stabilize 稳定化过程的结束与开启
func (c *Controller) stabilize(now float64) {
	if e := c.episode; e != nil && c.stabilizer.finished(e, &c.queue, now) {
		c.stabilizer.close(e, &c.queue, now)
		c.episode = nil
		log.Debugf("junction %d: stabilization of %v finished at %.2f", c.junctionID, e.phase, now)
	}
	if c.episode != nil || c.queue.Len() == 0 {
		return
	}
	e := c.stabilizer.open(&c.queue, c.phases)
	if e == nil {
		return
	}
	c.episode = e
	log.Debugf("junction %d: stabilize lanes %v with %v, idle %.2f", c.junctionID, c.queue.IDs(), e.phase, e.tIdle)
	if c.sm.state == StateActive && c.sm.active == e.phase {
		c.stabilizer.begin(e, &c.queue, now)
	}
}

// decide 选择并请求相位
func (c *Controller) decide(now float64, snap *Snapshot) []Command {
	var next *Phase
	if c.episode != nil {
		next = c.episode.phase
	} else {
		switch c.sm.state {
		case StateRequested:
			return nil
		case StateActive:
			if !c.sm.canSwitch(now) {
				return nil
			}
			next = c.optimizer.challenge(c.phases, c.sm.active, c.tracker, snap)
		default:
			next = c.optimizer.selectPhase(c.phases, nil, c.tracker, snap)
		}
	}
	if next == nil {
		return nil
	}
	cmds, ok := c.sm.Request(next, now)
	if ok {
		log.Debugf("junction %d: request %v at %.2f", c.junctionID, next, now)
	}
	return cmds
}

// syncGreen 根据绿灯组更新车道放行状态
func (c *Controller) syncGreen(now float64) {
	for li, a := range c.tracker.approaches {
		green := lo.SomeBy(c.model.laneGroups[li], func(gi int) bool {
			return c.sm.green[c.model.groups[gi].ID]
		})
		a.setGreen(green, now)
	}
}

func (c *Controller) deliver(cmds []Command) {
	for _, cmd := range cmds {
		s, ok := c.signals[cmd.GroupID]
		if !ok {
			continue
		}
		if cmd.Kind == CommandOnset {
			s.Onset(cmd.Time)
		} else {
			s.Drop(cmd.Time)
		}
	}
}

// Enqueue 强制车道进入稳定化队列（人工干预与测试）
func (c *Controller) Enqueue(laneID int32) error {
	a := c.tracker.Get(laneID)
	if a == nil {
		return fmt.Errorf("junction %d lane %d: %w", c.junctionID, laneID, ErrUnknownLane)
	}
	a.stabilize = true
	c.queue.Push(a)
	return nil
}

// Reset 撤下全部绿灯组并清空稳定化状态，控制器回到IDLE
func (c *Controller) Reset(now float64) []Command {
	cmds := c.sm.Reset(now)
	c.episode = nil
	for _, a := range c.queue.Items() {
		a.stabilize = false
		a.regulationTime = 0
	}
	c.queue = StabilizationQueue{}
	c.syncGreen(now)
	c.deliver(cmds)
	return cmds
}

// 诊断信息（只读）

func (c *Controller) JunctionID() int32 {
	return c.junctionID
}

func (c *Controller) Params() Params {
	return c.params
}

// Phases 相位表，下标即Position
func (c *Controller) Phases() []*Phase {
	return c.phases
}

func (c *Controller) State() State {
	return c.sm.state
}

// ActivePhase 放行中的相位，不存在返回nil
func (c *Controller) ActivePhase() *Phase {
	return c.sm.active
}

// RequestedPhase 等待放行的相位，不存在返回nil
func (c *Controller) RequestedPhase() *Phase {
	return c.sm.requested
}

// OnsetTime ACTIVE时为放行开始时刻，REQUESTED时为计划放行时刻
func (c *Controller) OnsetTime() float64 {
	return c.sm.since
}

// GreenGroups 当前绿灯组ID（升序）
func (c *Controller) GreenGroups() []int32 {
	return c.sm.GreenGroups()
}

// Loads 车道ID -> 负荷
func (c *Controller) Loads() map[int32]float64 {
	return lo.SliceToMap(c.tracker.approaches, func(a *Approach) (int32, float64) {
		return a.id, a.load
	})
}

// Indices 相位优先级指数，下标即Position
func (c *Controller) Indices() []float64 {
	return append([]float64(nil), c.optimizer.indices...)
}

// StabilizationQueue 稳定化队列中的车道ID（队首在前）
func (c *Controller) StabilizationQueue() []int32 {
	return c.queue.IDs()
}

// RegulationPhase 当前稳定化过程的调节相位，不存在返回nil
func (c *Controller) RegulationPhase() *Phase {
	if c.episode == nil {
		return nil
	}
	return c.episode.phase
}

// IdleTime 当前稳定化过程的空闲时间，不存在返回0
func (c *Controller) IdleTime() float64 {
	if c.episode == nil {
		return 0
	}
	return c.episode.tIdle
}

// Approach 车道估计器，不存在返回nil
func (c *Controller) Approach(laneID int32) *Approach {
	return c.tracker.Get(laneID)
}
