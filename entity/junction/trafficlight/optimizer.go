package trafficlight

import (
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/container"
)

// optimizer 优先级指数优化器
// 功能：为每个相位累积优先级指数，贪心选出指数最大的相位，可选地否决下游拥堵的相位
type optimizer struct {
	indices             []float64 // 相位Position -> 优先级指数
	checkDownstream     bool
	downstreamThreshold float64
	clearingLimit       float64 // 放行相位排队消散时间估计的上限
}

func newOptimizer(phases []*Phase, params Params) *optimizer {
	return &optimizer{
		indices:             make([]float64, len(phases)),
		checkDownstream:     params.CheckDownstream,
		downstreamThreshold: params.DownstreamThreshold,
		clearingLimit:       params.DesiredCycleTime,
	}
}

// accrue 累积优先级指数
// 说明：除当前放行相位外，每个相位的指数按其未放行车道的负荷之和随时间增长
func (o *optimizer) accrue(dt float64, phases []*Phase, tracker *ApproachTracker, active *Phase) {
	if dt <= 0 {
		return
	}
	for _, p := range phases {
		if p == active {
			continue
		}
		load := lo.SumBy(p.Lanes, func(id int32) float64 {
			a := tracker.Get(id)
			if a == nil || a.green {
				return 0
			}
			return a.load
		})
		o.indices[p.Position] += load * dt
	}
}

// reset 相位得到放行后指数清零
func (o *optimizer) reset(p *Phase) {
	o.indices[p.Position] = 0
}

func (o *optimizer) index(p *Phase) float64 {
	return o.indices[p.Position]
}

// activeIndex 放行相位参与比较的指数
// 说明：放行相位自身不累积指数，以其车道负荷×剩余排队消散时间之和参与比较，
// 与等待相位的 负荷×等待时间 同量纲；消散时间以期望周期为上限
func (o *optimizer) activeIndex(p *Phase, tracker *ApproachTracker) float64 {
	return lo.SumBy(p.Lanes, func(id int32) float64 {
		a := tracker.Get(id)
		if a == nil {
			return 0
		}
		return a.load * a.clearingTime(o.clearingLimit)
	})
}

// vetoed 相位的任一下游路段占有率达到阈值
func (o *optimizer) vetoed(p *Phase, tracker *ApproachTracker, snap *Snapshot) bool {
	if !o.checkDownstream || snap == nil {
		return false
	}
	for _, id := range p.Lanes {
		a := tracker.Get(id)
		if a == nil {
			continue
		}
		for _, link := range a.outLinks {
			if snap.Links[link] >= o.downstreamThreshold {
				return true
			}
		}
	}
	return false
}

// selectPhase 选出指数最大的相位
// 功能：将指数为正的相位（排除exclude）按指数降序、位置升序排队，依次弹出，跳过被下游否决的相位
// 返回：选中的相位，无合格相位时返回nil
func (o *optimizer) selectPhase(phases []*Phase, exclude *Phase, tracker *ApproachTracker, snap *Snapshot) *Phase {
	heap := container.NewPriorityQueue[*Phase]()
	for _, p := range phases {
		if p == exclude || o.indices[p.Position] <= 0 {
			continue
		}
		heap.Push(p, -o.indices[p.Position]) // 小顶堆，指数越大越靠前
	}
	heap.Heapify()
	for heap.Len() > 0 {
		p, _ := heap.HeapPop()
		if o.vetoed(p, tracker, snap) {
			log.Debugf("%v vetoed by downstream occupancy", p)
			continue
		}
		return p
	}
	return nil
}

// challenge 放行相位满足最小绿灯后的挑战者
// 功能：在其余相位中选出指数最大者，只有其指数严格大于放行相位的指数时才返回
// 返回：应切换到的相位，继续放行当前相位时返回nil
func (o *optimizer) challenge(phases []*Phase, active *Phase, tracker *ApproachTracker, snap *Snapshot) *Phase {
	p := o.selectPhase(phases, active, tracker, snap)
	if p == nil || o.indices[p.Position] <= o.activeIndex(active, tracker) {
		return nil
	}
	return p
}
