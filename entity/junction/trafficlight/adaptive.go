package trafficlight

import (
	"fmt"
	"strings"

	"git.fiblab.net/general/common/v2/mathutil"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/config"
)

// ParamsFromConfig 将配置文件中的信控参数转换为控制参数
func ParamsFromConfig(c config.TrafficLight) (Params, error) {
	kind, err := ParseStrategy(c.StabilizationStrategy)
	if err != nil {
		return Params{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	p := Params{
		MinGreenTime:           c.MinGreenTime,
		IntergreenTime:         c.IntergreenTime,
		DesiredCycleTime:       c.DesiredCycleTime,
		MaxCycleTime:           c.MaxCycleTime,
		LookBackTime:           c.LookBackTime,
		StabilizationThreshold: c.StabilizationThreshold,
		StabilizationLookAhead: c.StabilizationLookAhead,
		Strategy:               kind,
		CheckDownstream:        c.CheckDownstream,
		DownstreamThreshold:    c.DownstreamThreshold,
		MaxGroups:              c.MaxGroups,
		PruneDominated:         c.PruneDominated,
	}
	return p, p.Validate()
}

// AdaptiveTrafficLight 自适应信号灯
// 功能：将Läemmer控制器接入车道：每步由车道检测读数构建快照驱动控制器，并把信号灯组的灯色写入车道
type AdaptiveTrafficLight struct {
	ctx        entity.ITaskContext
	controller *Controller
	lanes      []entity.ILaneTrafficLightSetter // 受控车道（按ID升序）
	groups     []*laneSignalGroup               // 信号灯组（按ID升序）
	laneGroups map[int32][]*laneSignalGroup     // 车道ID -> 所属信号灯组
	ok         bool                             // 信号灯状态，true为开启，false为关闭（全红）
	okBuffer   bool                             // 信号灯状态buffer，用于交互式接口写入
}

// NewAdaptiveTrafficLight 创建自适应信号灯
// 功能：由车道与路口静态数据创建控制器，并为每个信号灯组创建车道侧实现
// 参数：ctx-任务上下文，junctionID-路口ID，tl-信控参数，lanes-受控车道，groups-信号灯组，conflicts-车道冲突关系
// 返回：自适应信号灯或配置错误
func NewAdaptiveTrafficLight(
	ctx entity.ITaskContext,
	junctionID int32,
	tl config.TrafficLight,
	lanes []entity.ILaneTrafficLightSetter,
	groups []SignalGroup,
	conflicts map[int32][]int32,
) (*AdaptiveTrafficLight, error) {
	params, err := ParamsFromConfig(tl)
	if err != nil {
		return nil, fmt.Errorf("junction %d: %w", junctionID, err)
	}
	specs := lo.Map(lanes, func(lane entity.ILaneTrafficLightSetter, _ int) LaneSpec {
		spec := LaneSpec{ID: lane.ID(), SaturationFlow: lane.SaturationFlow()}
		if id, ok := lane.OutLinkID(); ok {
			spec.OutLinks = []int32{id}
		}
		return spec
	})
	c, err := NewController(junctionID, params, specs, groups, conflicts)
	if err != nil {
		return nil, err
	}
	l := &AdaptiveTrafficLight{
		ctx:        ctx,
		controller: c,
		lanes:      make([]entity.ILaneTrafficLightSetter, 0, len(lanes)),
		groups:     make([]*laneSignalGroup, 0, len(c.model.groups)),
		laneGroups: make(map[int32][]*laneSignalGroup),
		ok:         true,
		okBuffer:   true,
	}
	byID := lo.SliceToMap(lanes, func(lane entity.ILaneTrafficLightSetter) (int32, entity.ILaneTrafficLightSetter) {
		return lane.ID(), lane
	})
	for _, spec := range c.model.lanes {
		l.lanes = append(l.lanes, byID[spec.ID])
	}
	for _, g := range c.model.groups {
		sg := newLaneSignalGroup(g.ID, tl.YellowTime)
		l.groups = append(l.groups, sg)
		for _, id := range g.Lanes {
			l.laneGroups[id] = append(l.laneGroups[id], sg)
		}
	}
	if err := c.Bind(lo.Map(l.groups, func(g *laneSignalGroup, _ int) ISignalGroup { return g })...); err != nil {
		return nil, err
	}
	return l, nil
}

// Prepare 准备阶段，处理开关buffer并将信号灯组的灯色写入车道
// 说明：关闭时撤下所有绿灯组，经黄灯后全红；重新开启后从IDLE开始
func (l *AdaptiveTrafficLight) Prepare() {
	now := l.ctx.Clock().T
	if l.ok != l.okBuffer {
		l.ok = l.okBuffer
		if !l.ok {
			cmds := l.controller.Reset(now)
			log.Infof("junction %d: traffic light disabled, drop %d groups", l.controller.junctionID, len(cmds))
		} else {
			log.Infof("junction %d: traffic light enabled", l.controller.junctionID)
		}
	}
	for _, lane := range l.lanes {
		state, total, remaining := l.laneLight(lane.ID(), now)
		lane.SetLight(state, total, remaining)
	}
}

// laneLight 车道灯色：取所属信号灯组中放行程度最高者；红灯且已在等待放行时给出剩余时间
func (l *AdaptiveTrafficLight) laneLight(laneID int32, now float64) (mapv2.LightState, float64, float64) {
	state, total, remaining := mapv2.LightState_LIGHT_STATE_RED, mathutil.INF, mathutil.INF
	for _, g := range l.laneGroups[laneID] {
		s, t, r := g.light(now)
		if lightRank(s) > lightRank(state) {
			state, total, remaining = s, t, r
		}
	}
	if state == mapv2.LightState_LIGHT_STATE_RED {
		if p := l.controller.RequestedPhase(); p != nil && p.HasLane(laneID) {
			remaining = max(0, l.controller.OnsetTime()-now)
		}
	}
	return state, total, remaining
}

// Update 更新阶段，由车道检测读数构建快照并驱动控制器
// 参数：dt-时间步长
func (l *AdaptiveTrafficLight) Update(dt float64) {
	if !l.ok {
		return
	}
	snap := &Snapshot{
		Interval: dt,
		Lanes:    make(map[int32]LaneSample, len(l.lanes)),
		Links:    make(map[int32]float64),
	}
	for _, lane := range l.lanes {
		s := lane.Sample()
		snap.Lanes[lane.ID()] = LaneSample{Arrivals: s.Arrivals, Queue: s.Queue}
		if id, ok := lane.OutLinkID(); ok {
			if link, err := l.ctx.LaneManager().GetLinkOrError(id); err == nil {
				snap.Links[id] = link.Occupancy()
			}
		}
	}
	l.controller.UpdateState(l.ctx.Clock().T, snap)
}

// Get 获取相位表
// 功能：将相位表转换为信号灯程序的形式，每个相位的时长为最小绿灯时间
// 说明：States按受控车道ID升序排列
func (l *AdaptiveTrafficLight) Get() *mapv2.TrafficLight {
	return &mapv2.TrafficLight{
		JunctionId: l.controller.junctionID,
		Phases: lo.Map(l.controller.phases, func(p *Phase, _ int) *mapv2.Phase {
			return &mapv2.Phase{
				Duration: l.controller.params.MinGreenTime,
				States: lo.Map(l.lanes, func(lane entity.ILaneTrafficLightSetter, _ int) mapv2.LightState {
					if p.HasLane(lane.ID()) {
						return mapv2.LightState_LIGHT_STATE_GREEN
					}
					return mapv2.LightState_LIGHT_STATE_RED
				}),
			}
		}),
	}
}

// Step 放行相位在相位表中的位置，无放行相位返回-1
func (l *AdaptiveTrafficLight) Step() int32 {
	if p := l.controller.ActivePhase(); p != nil {
		return int32(p.Position)
	}
	return -1
}

// RemainingTime 等待放行时为距放行的时间，其余情况由控制器实时决定，返回INF
func (l *AdaptiveTrafficLight) RemainingTime() float64 {
	if l.controller.State() == StateRequested {
		return max(0, l.controller.OnsetTime()-l.ctx.Clock().T)
	}
	return mathutil.INF
}

// SetOk 设置信号灯的开关状态，下一次Prepare生效
func (l *AdaptiveTrafficLight) SetOk(ok bool) {
	l.okBuffer = ok
}

func (l *AdaptiveTrafficLight) Ok() bool {
	return l.ok
}

// Enqueue 强制车道进入稳定化队列
func (l *AdaptiveTrafficLight) Enqueue(laneID int32) error {
	return l.controller.Enqueue(laneID)
}

func (l *AdaptiveTrafficLight) Controller() *Controller {
	return l.controller
}

// Status 信控状态摘要，用于心跳日志
func (l *AdaptiveTrafficLight) Status() string {
	c := l.controller
	var sb strings.Builder
	sb.WriteString(c.State().String())
	if p := c.ActivePhase(); p != nil {
		fmt.Fprintf(&sb, " %v", p)
	}
	if p := c.RequestedPhase(); p != nil {
		fmt.Fprintf(&sb, " -> %v", p)
	}
	if q := c.StabilizationQueue(); len(q) > 0 {
		fmt.Fprintf(&sb, " stabilize=%v", q)
	}
	if !l.ok {
		sb.WriteString(" (disabled)")
	}
	return sb.String()
}
