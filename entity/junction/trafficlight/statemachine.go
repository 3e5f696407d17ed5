package trafficlight

import (
	"fmt"
)

const (
	timeEps = 1e-9
)

// State 相位状态机的状态
type State int32

const (
	StateIdle      State = iota // 无相位放行
	StateRequested              // 已选中相位，等待绿灯间隔后放行
	StateActive                 // 相位放行中
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRequested:
		return "REQUESTED"
	case StateActive:
		return "ACTIVE"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// CommandKind 信号灯组指令类型
type CommandKind int32

const (
	CommandOnset CommandKind = iota // 开始放行
	CommandDrop                     // 结束放行（进入清空）
)

func (k CommandKind) String() string {
	if k == CommandOnset {
		return "ONSET"
	}
	return "DROP"
}

// Command 下发给外部信号灯组的指令
type Command struct {
	Time    float64
	GroupID int32
	Kind    CommandKind
}

// phaseStateMachine 相位状态机
// 功能：持有权威的放行/请求相位，保证最小绿灯与绿灯间隔，产生ONSET/DROP指令
// 说明：状态转移只在合法相位之间进行，被撤下的组在新组放行前至少经过绿灯间隔
type phaseStateMachine struct {
	model      *ConflictModel
	minGreen   float64
	intergreen float64

	state     State
	active    *Phase  // 放行中的相位（REQUESTED时为nil）
	requested *Phase  // 等待放行的相位
	since     float64 // ACTIVE：放行开始时刻；REQUESTED：计划放行时刻
	green     map[int32]bool
}

func newPhaseStateMachine(model *ConflictModel, minGreen, intergreen float64) *phaseStateMachine {
	return &phaseStateMachine{
		model:      model,
		minGreen:   minGreen,
		intergreen: intergreen,
		state:      StateIdle,
		green:      make(map[int32]bool),
	}
}

// current 当前相位：REQUESTED时为请求相位，ACTIVE时为放行相位
func (m *phaseStateMachine) current() *Phase {
	switch m.state {
	case StateRequested:
		return m.requested
	case StateActive:
		return m.active
	}
	return nil
}

// canSwitch 放行相位是否已满足最小绿灯
func (m *phaseStateMachine) canSwitch(now float64) bool {
	return m.state != StateActive || now-m.since >= m.minGreen-timeEps
}

// switchDelay 从now起，另一相位最早还需多久才能被请求
// 说明：ACTIVE时为最小绿灯剩余时间；REQUESTED时为到计划放行时刻的时间加最小绿灯；IDLE为0
func (m *phaseStateMachine) switchDelay(now float64) float64 {
	switch m.state {
	case StateActive:
		return max(0, m.since+m.minGreen-now)
	case StateRequested:
		return max(0, m.since-now) + m.minGreen
	}
	return 0
}

// Request 请求切换到相位p
// 功能：接受后立即撤下不属于p的绿灯组，保留重叠组，计划在now+绿灯间隔放行p
// 返回：产生的DROP指令，是否接受
// 说明：p与当前/请求相位相同，或放行相位未满足最小绿灯时拒绝
func (m *phaseStateMachine) Request(p *Phase, now float64) ([]Command, bool) {
	if p == nil || p == m.current() || !m.canSwitch(now) {
		return nil, false
	}
	cmds := m.dropExcept(p, now)
	m.state = StateRequested
	m.active = nil
	m.requested = p
	m.since = now + m.intergreen
	return cmds, true
}

// Tick 推进状态机
// 功能：请求相位到期（含错过的步）时放行其全部新组，进入ACTIVE
// 返回：产生的ONSET指令，本步被激活的相位（未激活为nil）
func (m *phaseStateMachine) Tick(now float64) ([]Command, *Phase) {
	if m.state != StateRequested || now < m.since-timeEps {
		return nil, nil
	}
	p := m.requested
	m.assertCompatible(p)
	cmds := make([]Command, 0, len(p.Groups))
	for _, g := range p.Groups {
		if !m.green[g] {
			m.green[g] = true
			cmds = append(cmds, Command{Time: now, GroupID: g, Kind: CommandOnset})
		}
	}
	m.state = StateActive
	m.active = p
	m.requested = nil
	m.since = now
	return cmds, p
}

// Reset 撤下全部绿灯组，回到IDLE
func (m *phaseStateMachine) Reset(now float64) []Command {
	cmds := m.dropExcept(nil, now)
	m.state = StateIdle
	m.active = nil
	m.requested = nil
	return cmds
}

func (m *phaseStateMachine) dropExcept(p *Phase, now float64) []Command {
	cmds := make([]Command, 0, len(m.green))
	for _, g := range m.model.groups {
		if !m.green[g.ID] || (p != nil && p.HasGroup(g.ID)) {
			continue
		}
		delete(m.green, g.ID)
		cmds = append(cmds, Command{Time: now, GroupID: g.ID, Kind: CommandDrop})
	}
	return cmds
}

// assertCompatible 放行前检查：仍为绿灯的组必须属于待放行相位，且放行后不存在冲突车道对
func (m *phaseStateMachine) assertCompatible(p *Phase) {
	lanes := p.laneSet.clone()
	for g := range m.green {
		if !p.HasGroup(g) {
			log.Panicf("activate %v while group %d outside the phase is green", p, g)
		}
		lanes.or(m.model.groupLanes[m.model.groupIdx[g]])
	}
	if m.model.setConflicts(lanes, lanes) {
		log.Panicf("activate %v with conflicting green lanes", p)
	}
}

// GreenGroups 当前绿灯组ID
func (m *phaseStateMachine) GreenGroups() []int32 {
	ids := make([]int32, 0, len(m.green))
	for _, g := range m.model.groups {
		if m.green[g.ID] {
			ids = append(ids, g.ID)
		}
	}
	return ids
}
