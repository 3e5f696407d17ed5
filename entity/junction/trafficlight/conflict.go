package trafficlight

import (
	"errors"
	"fmt"
	"math/bits"
	"sort"

	"github.com/samber/lo"
)

var (
	ErrDuplicateID     = errors.New("duplicate id")
	ErrUnknownLane     = errors.New("unknown lane")
	ErrEmptyGroup      = errors.New("signal group without lanes")
	ErrUngroupedLane   = errors.New("lane is not in any signal group")
	ErrSaturationFlow  = errors.New("saturation flow must be positive")
	ErrConflictInGroup = errors.New("signal group contains conflicting lanes")
)

// LaneSpec 受控车道的静态描述
type LaneSpec struct {
	ID             int32   // 车道ID
	SaturationFlow float64 // 饱和流率（veh/s）
	OutLinks       []int32 // 下游路段ID，用于下游占有率检查
}

// SignalGroup 信号灯组，组内车道同时切换
type SignalGroup struct {
	ID    int32
	Lanes []int32
}

// bitset 定长位集合，用于车道集合与信号灯组集合
type bitset []uint64

func newBitset(n int) bitset {
	return make(bitset, (n+63)/64)
}

func (s bitset) add(i int) {
	s[i/64] |= 1 << (uint(i) % 64)
}

func (s bitset) has(i int) bool {
	return s[i/64]&(1<<(uint(i)%64)) != 0
}

func (s bitset) clone() bitset {
	c := make(bitset, len(s))
	copy(c, s)
	return c
}

func (s bitset) or(o bitset) {
	for i := range s {
		s[i] |= o[i]
	}
}

func (s bitset) intersects(o bitset) bool {
	for i := range s {
		if s[i]&o[i] != 0 {
			return true
		}
	}
	return false
}

func (s bitset) subsetOf(o bitset) bool {
	for i := range s {
		if s[i]&^o[i] != 0 {
			return false
		}
	}
	return true
}

func (s bitset) count() int {
	n := 0
	for _, w := range s {
		n += bits.OnesCount64(w)
	}
	return n
}

// each 按升序遍历集合中的元素
func (s bitset) each(f func(i int)) {
	for wi, w := range s {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			f(wi*64 + b)
			w &^= 1 << uint(b)
		}
	}
}

// ConflictModel 冲突模型
// 功能：描述路口内受控车道、信号灯组与车道冲突关系，初始化后只读
// 说明：冲突关系在构建时对称化；车道按ID升序编号，信号灯组按ID升序编号
type ConflictModel struct {
	lanes     []LaneSpec
	laneIndex map[int32]int
	groups    []SignalGroup
	groupIdx  map[int32]int

	conflicts  []bitset // 车道下标 -> 与之冲突的车道集合
	groupLanes []bitset // 信号灯组下标 -> 组内车道集合
	laneGroups [][]int  // 车道下标 -> 所属信号灯组下标
	compatible []bitset // 信号灯组下标 -> 与之相容的其它信号灯组集合
}

// NewConflictModel 构建冲突模型
// 功能：校验车道、信号灯组与冲突数据，生成下标化的冲突关系
// 参数：lanes-受控车道，groups-信号灯组，conflicts-车道ID到冲突车道ID列表
// 返回：冲突模型或配置错误
// 说明：没有车道和信号灯组的路口是合法的，此时不产生任何相位
func NewConflictModel(lanes []LaneSpec, groups []SignalGroup, conflicts map[int32][]int32) (*ConflictModel, error) {
	m := &ConflictModel{
		lanes:     append([]LaneSpec(nil), lanes...),
		laneIndex: make(map[int32]int, len(lanes)),
		groups:    make([]SignalGroup, len(groups)),
		groupIdx:  make(map[int32]int, len(groups)),
	}
	sort.Slice(m.lanes, func(i, j int) bool { return m.lanes[i].ID < m.lanes[j].ID })
	for i, l := range m.lanes {
		if _, ok := m.laneIndex[l.ID]; ok {
			return nil, fmt.Errorf("lane %d: %w", l.ID, ErrDuplicateID)
		}
		if l.SaturationFlow <= 0 {
			return nil, fmt.Errorf("lane %d: %w", l.ID, ErrSaturationFlow)
		}
		m.laneIndex[l.ID] = i
	}
	nLanes := len(m.lanes)

	// 信号灯组
	for i, g := range groups {
		m.groups[i] = SignalGroup{ID: g.ID, Lanes: lo.Uniq(g.Lanes)}
	}
	sort.Slice(m.groups, func(i, j int) bool { return m.groups[i].ID < m.groups[j].ID })
	m.groupLanes = make([]bitset, len(m.groups))
	m.laneGroups = make([][]int, nLanes)
	for gi, g := range m.groups {
		if _, ok := m.groupIdx[g.ID]; ok {
			return nil, fmt.Errorf("signal group %d: %w", g.ID, ErrDuplicateID)
		}
		m.groupIdx[g.ID] = gi
		if len(g.Lanes) == 0 {
			return nil, fmt.Errorf("signal group %d: %w", g.ID, ErrEmptyGroup)
		}
		set := newBitset(nLanes)
		for _, id := range g.Lanes {
			li, ok := m.laneIndex[id]
			if !ok {
				return nil, fmt.Errorf("signal group %d references lane %d: %w", g.ID, id, ErrUnknownLane)
			}
			set.add(li)
			m.laneGroups[li] = append(m.laneGroups[li], gi)
		}
		m.groupLanes[gi] = set
	}
	for li, gs := range m.laneGroups {
		if len(gs) == 0 {
			return nil, fmt.Errorf("lane %d: %w", m.lanes[li].ID, ErrUngroupedLane)
		}
	}

	// 冲突关系（对称化，忽略自身）
	m.conflicts = make([]bitset, nLanes)
	for i := range m.conflicts {
		m.conflicts[i] = newBitset(nLanes)
	}
	for id, others := range conflicts {
		li, ok := m.laneIndex[id]
		if !ok {
			return nil, fmt.Errorf("conflict entry of lane %d: %w", id, ErrUnknownLane)
		}
		for _, other := range others {
			oi, ok := m.laneIndex[other]
			if !ok {
				return nil, fmt.Errorf("conflict %d-%d: %w", id, other, ErrUnknownLane)
			}
			if oi == li {
				continue
			}
			m.conflicts[li].add(oi)
			m.conflicts[oi].add(li)
		}
	}
	for gi, set := range m.groupLanes {
		if m.setConflicts(set, set) {
			return nil, fmt.Errorf("signal group %d: %w", m.groups[gi].ID, ErrConflictInGroup)
		}
	}

	// 信号灯组间相容关系
	m.compatible = make([]bitset, len(m.groups))
	for i := range m.groups {
		m.compatible[i] = newBitset(len(m.groups))
	}
	for i := range m.groups {
		for j := i + 1; j < len(m.groups); j++ {
			if !m.setConflicts(m.groupLanes[i], m.groupLanes[j]) {
				m.compatible[i].add(j)
				m.compatible[j].add(i)
			}
		}
	}
	return m, nil
}

// setConflicts 判断两个车道集合之间是否存在冲突车道对
func (m *ConflictModel) setConflicts(a, b bitset) bool {
	found := false
	a.each(func(i int) {
		if !found && m.conflicts[i].intersects(b) {
			found = true
		}
	})
	return found
}

// Conflict 判断两条车道是否冲突，未知车道视为不冲突
func (m *ConflictModel) Conflict(a, b int32) bool {
	ai, ok1 := m.laneIndex[a]
	bi, ok2 := m.laneIndex[b]
	if !ok1 || !ok2 {
		return false
	}
	return m.conflicts[ai].has(bi)
}

// Lanes 受控车道（按ID升序）
func (m *ConflictModel) Lanes() []LaneSpec {
	return m.lanes
}

// Groups 信号灯组（按ID升序）
func (m *ConflictModel) Groups() []SignalGroup {
	return m.groups
}

// GroupLanes 返回信号灯组的车道ID
func (m *ConflictModel) GroupLanes(groupID int32) []int32 {
	gi, ok := m.groupIdx[groupID]
	if !ok {
		return nil
	}
	return m.laneIDs(m.groupLanes[gi])
}

func (m *ConflictModel) laneIDs(set bitset) []int32 {
	ids := make([]int32, 0, set.count())
	set.each(func(i int) { ids = append(ids, m.lanes[i].ID) })
	return ids
}
