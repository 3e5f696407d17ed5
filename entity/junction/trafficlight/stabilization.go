package trafficlight

import (
	"fmt"
	"math"
	"sort"

	"github.com/samber/lo"
)

// StrategyKind 稳定化相位选择策略
type StrategyKind int32

const (
	StrategyHeuristic                    StrategyKind = iota // 总负荷最高
	StrategyMaxLaneCount                                     // 覆盖的排队车道最多
	StrategyCombineSimilarRegulationTime                     // 覆盖的调节时间相近的车道最多
	StrategyPrioritizeHigherPositions                        // 相位列表位置最靠前
)

var strategyNames = map[StrategyKind]string{
	StrategyHeuristic:                    "HEURISTIC",
	StrategyMaxLaneCount:                 "MAX_LANE_COUNT",
	StrategyCombineSimilarRegulationTime: "COMBINE_SIMILAR_REGULATION_TIME",
	StrategyPrioritizeHigherPositions:    "PRIORITIZE_HIGHER_POSITIONS",
}

func (k StrategyKind) String() string {
	if s, ok := strategyNames[k]; ok {
		return s
	}
	return fmt.Sprintf("StrategyKind(%d)", int32(k))
}

// ParseStrategy 根据名称解析策略，空字符串为HEURISTIC
func ParseStrategy(name string) (StrategyKind, error) {
	if name == "" {
		return StrategyHeuristic, nil
	}
	for k, s := range strategyNames {
		if s == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown stabilization strategy %q", name)
}

// StabilizationStrategy 稳定化相位选择能力
// 说明：给定非空稳定化队列，选出放行队首车道的唯一相位
type StabilizationStrategy interface {
	SelectPhase(queue []*Approach, phases []*Phase) *Phase
}

// NewStrategy 根据策略类型创建选择器
// 参数：kind-策略类型，params-控制参数，loads-按车道ID查询负荷（为nil时仅使用队列中车道的负荷）
func NewStrategy(kind StrategyKind, params Params, loads func(id int32) float64) StabilizationStrategy {
	switch kind {
	case StrategyMaxLaneCount:
		return maxLaneCountStrategy{}
	case StrategyCombineSimilarRegulationTime:
		return similarRegulationStrategy{params: params}
	case StrategyPrioritizeHigherPositions:
		return positionStrategy{}
	default:
		return heuristicStrategy{loads: loads}
	}
}

// candidate 放行队首车道的候选相位及其评价
type candidate struct {
	phase  *Phase
	queued int     // 覆盖的排队车道数
	load   float64 // 相位车道负荷之和
	score  float64 // 策略自定义评价
}

// selectCandidate 在放行队首车道的相位中按better选优，完全相同时位置靠前者胜出
func selectCandidate(queue []*Approach, phases []*Phase, loads func(id int32) float64, score func(p *Phase) float64, better func(a, b candidate) bool) *Phase {
	if len(queue) == 0 {
		return nil
	}
	if loads == nil {
		loads = func(id int32) float64 {
			if a, ok := lo.Find(queue, func(a *Approach) bool { return a.id == id }); ok {
				return a.load
			}
			return 0
		}
	}
	head := queue[0]
	var best *candidate
	for _, p := range phases {
		if !p.HasLane(head.id) {
			continue
		}
		c := candidate{
			phase:  p,
			queued: lo.CountBy(queue, func(a *Approach) bool { return p.HasLane(a.id) }),
			load:   lo.SumBy(p.Lanes, loads),
		}
		if score != nil {
			c.score = score(p)
		}
		if best == nil || better(c, *best) {
			best = &c
		}
	}
	if best == nil {
		return nil
	}
	return best.phase
}

type heuristicStrategy struct {
	loads func(id int32) float64
}

func (s heuristicStrategy) SelectPhase(queue []*Approach, phases []*Phase) *Phase {
	return selectCandidate(queue, phases, s.loads, nil, func(a, b candidate) bool {
		if a.load != b.load {
			return a.load > b.load
		}
		return a.queued > b.queued
	})
}

type maxLaneCountStrategy struct{}

func (maxLaneCountStrategy) SelectPhase(queue []*Approach, phases []*Phase) *Phase {
	return selectCandidate(queue, phases, nil, nil, func(a, b candidate) bool {
		return a.queued > b.queued
	})
}

// similarRegulationStrategy 优先合并调节时间与队首车道相近（差值不超过最小绿灯）的排队车道
type similarRegulationStrategy struct {
	params Params
}

func (s similarRegulationStrategy) estimate(a *Approach) float64 {
	return math.Max(s.params.MinGreenTime, a.load*s.params.DesiredCycleTime) + a.carry
}

func (s similarRegulationStrategy) SelectPhase(queue []*Approach, phases []*Phase) *Phase {
	if len(queue) == 0 {
		return nil
	}
	head := s.estimate(queue[0])
	similar := func(p *Phase) float64 {
		return float64(lo.CountBy(queue, func(a *Approach) bool {
			return p.HasLane(a.id) && math.Abs(s.estimate(a)-head) <= s.params.MinGreenTime
		}))
	}
	return selectCandidate(queue, phases, nil, similar, func(a, b candidate) bool {
		if a.score != b.score {
			return a.score > b.score
		}
		return a.queued > b.queued
	})
}

type positionStrategy struct{}

func (positionStrategy) SelectPhase(queue []*Approach, phases []*Phase) *Phase {
	return selectCandidate(queue, phases, nil, nil, func(a, b candidate) bool { return false })
}

// StabilizationQueue 稳定化队列，先进先出，车道不重复
type StabilizationQueue struct {
	items []*Approach
}

// Push 加入队尾，已在队列中则忽略
func (q *StabilizationQueue) Push(a *Approach) bool {
	if q.Contains(a) {
		return false
	}
	q.items = append(q.items, a)
	return true
}

// Remove 移出队列
func (q *StabilizationQueue) Remove(a *Approach) {
	q.items = lo.Without(q.items, a)
}

func (q *StabilizationQueue) Contains(a *Approach) bool {
	return lo.Contains(q.items, a)
}

func (q *StabilizationQueue) Len() int {
	return len(q.items)
}

// Items 队列内容（队首在前）
func (q *StabilizationQueue) Items() []*Approach {
	return q.items
}

// IDs 队列中车道ID（队首在前）
func (q *StabilizationQueue) IDs() []int32 {
	return lo.Map(q.items, func(a *Approach, _ int) int32 { return a.id })
}

// episode 一次稳定化过程
type episode struct {
	phase   *Phase
	tIdle   float64
	scale   float64
	started bool
	start   float64
	lanes   []*Approach // 起始时被覆盖的排队车道
}

// stabilizer 稳定化选择器
// 功能：为稳定化队列选择相位、计算空闲时间与调节时间，并判定一次稳定化过程的结束
type stabilizer struct {
	params   Params
	model    *ConflictModel
	tracker  *ApproachTracker
	strategy StabilizationStrategy
}

// reserve 为车道预留的周期时间
func (s *stabilizer) reserve(a *Approach) float64 {
	return math.Max(a.load*s.params.DesiredCycleTime+s.params.IntergreenTime, s.params.MinGreenTime)
}

// budget 计算相位的空闲时间与调节时间缩放系数
// 算法说明：
// 1. 为相位内负荷最高的车道预留 max(负荷×期望周期+绿灯间隔, 最小绿灯)
// 2. 相位外按负荷降序选取两两冲突的有负荷车道（至多lookAhead条），同样预留
// 3. tIdle = max(0, 期望周期 - 预留总和)，scale = min(1, 期望周期/预留总和)
func (s *stabilizer) budget(p *Phase) (tIdle, scale float64) {
	var busiest *Approach
	outside := make([]*Approach, 0)
	for _, a := range s.tracker.approaches {
		if p.HasLane(a.id) {
			if busiest == nil || a.load > busiest.load {
				busiest = a
			}
		} else if a.load > 0 {
			outside = append(outside, a)
		}
	}
	total := 0.
	if busiest != nil {
		total += s.reserve(busiest)
	}
	sort.SliceStable(outside, func(i, j int) bool { return outside[i].load > outside[j].load })
	chain := make([]*Approach, 0, s.params.StabilizationLookAhead)
	for _, a := range outside {
		if len(chain) >= s.params.StabilizationLookAhead {
			break
		}
		if lo.EveryBy(chain, func(c *Approach) bool { return s.model.Conflict(a.id, c.id) }) {
			chain = append(chain, a)
			total += s.reserve(a)
		}
	}
	if total <= 0 {
		return s.params.DesiredCycleTime, 1
	}
	return math.Max(0, s.params.DesiredCycleTime-total), math.Min(1, s.params.DesiredCycleTime/total)
}

// open 为稳定化队列打开一次稳定化过程
func (s *stabilizer) open(queue *StabilizationQueue, phases []*Phase) *episode {
	p := s.strategy.SelectPhase(queue.Items(), phases)
	if p == nil {
		return nil
	}
	tIdle, scale := s.budget(p)
	return &episode{phase: p, tIdle: tIdle, scale: scale}
}

// begin 相位开始放行，为被覆盖的排队车道分配调节时间
// 说明：调节时间 = max(最小绿灯, 预留×scale - 绿灯间隔) + 上次结转，结转随即清零
func (s *stabilizer) begin(e *episode, queue *StabilizationQueue, now float64) {
	e.started = true
	e.start = now
	e.lanes = e.lanes[:0]
	for _, a := range queue.Items() {
		if !e.phase.HasLane(a.id) {
			continue
		}
		a.regulationTime = math.Max(s.params.MinGreenTime, s.reserve(a)*e.scale-s.params.IntergreenTime) + a.carry
		a.carry = 0
		e.lanes = append(e.lanes, a)
	}
}

// finished 判断稳定化过程是否结束
// 说明：放行已达最小绿灯，且每条仍在队列中的被覆盖车道都已用完调节时间或排队清空
func (s *stabilizer) finished(e *episode, queue *StabilizationQueue, now float64) bool {
	if !e.started {
		return false
	}
	elapsed := now - e.start
	if elapsed < s.params.MinGreenTime {
		return false
	}
	return lo.EveryBy(e.lanes, func(a *Approach) bool {
		return !queue.Contains(a) || elapsed >= a.regulationTime || a.queue == 0
	})
}

// close 结束稳定化过程：被覆盖车道出队，提前清空的车道结转未用完的调节时间
func (s *stabilizer) close(e *episode, queue *StabilizationQueue, now float64) {
	elapsed := now - e.start
	for _, a := range e.lanes {
		if !queue.Contains(a) {
			continue
		}
		if a.queue == 0 && elapsed < a.regulationTime {
			a.carry = math.Min(a.regulationTime-elapsed, s.params.DesiredCycleTime)
		} else {
			a.carry = 0
		}
		a.regulationTime = 0
		a.stabilize = false
		queue.Remove(a)
	}
}
