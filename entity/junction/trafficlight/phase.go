package trafficlight

import (
	"math/bits"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

const (
	// 位掩码枚举可支持的信号灯组数量上限，超过则改用贪心构造
	maxEnumerableGroups = 30
)

// Phase 相位：一组互不冲突、可同时放行的信号灯组
// 说明：初始化后只读；ID由升序组ID拼接而成，与组的给出顺序无关
type Phase struct {
	ID       string  // 规范ID，如 "1-3"
	Position int     // 在相位列表中的位置
	Groups   []int32 // 组ID（升序）
	Lanes    []int32 // 放行车道ID（升序）

	groupSet bitset
	laneSet  bitset
	laneMap  map[int32]struct{}
}

// HasLane 判断相位是否放行指定车道
func (p *Phase) HasLane(id int32) bool {
	_, ok := p.laneMap[id]
	return ok
}

// HasGroup 判断相位是否包含指定信号灯组
func (p *Phase) HasGroup(id int32) bool {
	return lo.Contains(p.Groups, id)
}

func (p *Phase) String() string {
	return "phase[" + p.ID + "]"
}

// GeneratorOptions 相位生成参数
type GeneratorOptions struct {
	MaxGroups      int  // 穷举的信号灯组数量上限
	PruneDominated bool // 是否剔除被严格支配的相位
}

// GeneratePhases 生成所有合法相位
// 功能：枚举信号灯组的子集，剔除含冲突车道对的子集，可选地剔除放行车道集合被其它合法相位严格包含的相位
// 参数：m-冲突模型，opts-生成参数
// 返回：相位列表，按组数降序、组ID字典序排列；Position即下标
// 算法说明：
// 1. 组数不超过上限时，按位掩码枚举所有非空子集，子集内每个组都与其余组相容才合法
// 2. 组数超过上限时记录警告，以每个组为种子贪心构造极大相容集合
// 3. 支配检查：若存在子集外的组与子集全部相容且带来新的车道，则子集被严格支配
func GeneratePhases(m *ConflictModel, opts GeneratorOptions) []*Phase {
	n := len(m.groups)
	if n == 0 {
		return nil
	}
	limit := opts.MaxGroups
	if limit <= 0 || limit > maxEnumerableGroups {
		limit = maxEnumerableGroups
	}

	var sets []bitset
	if n <= limit {
		sets = enumerateGroupSets(m)
	} else {
		log.Warnf("%d signal groups exceed enumeration limit %d, use greedy phase construction", n, limit)
		sets = greedyGroupSets(m)
	}

	phases := make([]*Phase, 0, len(sets))
	for _, set := range sets {
		lanes := newBitset(len(m.lanes))
		set.each(func(gi int) { lanes.or(m.groupLanes[gi]) })
		if opts.PruneDominated && dominated(m, set, lanes) {
			continue
		}
		phases = append(phases, newPhase(m, set, lanes))
	}
	sort.SliceStable(phases, func(i, j int) bool {
		a, b := phases[i].Groups, phases[j].Groups
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
	for i, p := range phases {
		p.Position = i
	}
	return phases
}

// enumerateGroupSets 位掩码枚举全部合法的信号灯组子集
func enumerateGroupSets(m *ConflictModel) []bitset {
	n := len(m.groups)
	compat := lo.Map(m.compatible, func(s bitset, _ int) uint64 { return s[0] })
	sets := make([]bitset, 0)
	for mask := uint64(1); mask < 1<<uint(n); mask++ {
		ok := true
		for w := mask; w != 0; {
			i := bits.TrailingZeros64(w)
			w &^= 1 << uint(i)
			if mask&^(1<<uint(i))&^compat[i] != 0 {
				ok = false
				break
			}
		}
		if ok {
			set := newBitset(n)
			set[0] = mask
			sets = append(sets, set)
		}
	}
	return sets
}

// greedyGroupSets 以每个组为种子按ID顺序贪心扩展为极大相容集合，按成员去重
func greedyGroupSets(m *ConflictModel) []bitset {
	n := len(m.groups)
	seen := make(map[string]struct{})
	sets := make([]bitset, 0, n)
	for seed := 0; seed < n; seed++ {
		set := newBitset(n)
		set.add(seed)
		for j := 0; j < n; j++ {
			if j == seed {
				continue
			}
			if set.subsetOf(m.compatible[j]) {
				set.add(j)
			}
		}
		key := groupKey(m, set)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		sets = append(sets, set)
	}
	return sets
}

// dominated 判断放行车道集合是否被另一合法相位严格包含
// 说明：若某合法相位的车道严格包含本集合，则并集仍合法，
// 因此必然存在单个可加入的组带来新车道，只需检查单组扩展
func dominated(m *ConflictModel, set bitset, lanes bitset) bool {
	for g := range m.groups {
		if set.has(g) {
			continue
		}
		if set.subsetOf(m.compatible[g]) && !m.groupLanes[g].subsetOf(lanes) {
			return true
		}
	}
	return false
}

func newPhase(m *ConflictModel, set bitset, lanes bitset) *Phase {
	p := &Phase{
		groupSet: set,
		laneSet:  lanes,
		Groups:   make([]int32, 0, set.count()),
		Lanes:    m.laneIDs(lanes),
	}
	set.each(func(gi int) { p.Groups = append(p.Groups, m.groups[gi].ID) })
	p.ID = groupKey(m, set)
	p.laneMap = lo.SliceToMap(p.Lanes, func(id int32) (int32, struct{}) { return id, struct{}{} })
	return p
}

// groupKey 规范ID：升序组ID以"-"连接
func groupKey(m *ConflictModel, set bitset) string {
	parts := make([]string, 0, set.count())
	set.each(func(gi int) { parts = append(parts, strconv.Itoa(int(m.groups[gi].ID))) })
	return strings.Join(parts, "-")
}
