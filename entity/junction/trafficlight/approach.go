package trafficlight

import (
	"math"
)

// LaneSample 单条车道在一个仿真步内的检测数据
type LaneSample struct {
	Arrivals int32 // 本步到达的车辆数
	Queue    int32 // 当前排队车辆数
}

// Snapshot 每步一次、只读的检测数据快照，由外部仿真构建
type Snapshot struct {
	Interval float64              // 到达计数覆盖的时间长度（秒）
	Lanes    map[int32]LaneSample // 车道ID -> 检测数据，缺失视为无到达
	Links    map[int32]float64    // 下游路段ID -> 占有率[0,1]
}

type arrivalSample struct {
	t float64
	n int32
}

// Approach 受控车道的运行时估计
// 功能：维护滚动到达率、排队长度、负荷以及稳定化所需的等待与调节时间
type Approach struct {
	id             int32
	saturationFlow float64
	outLinks       []int32

	samples        []arrivalSample // 时间窗内的到达样本
	windowArrivals int32
	origin         float64 // 观测起点
	observed       bool
	arrivalRate    float64
	queue          int32
	load           float64

	green      bool
	redSince   float64
	greenSince float64

	stabilize      bool    // 是否在稳定化队列中
	regulationTime float64 // 本次稳定化分配的调节时间
	carry          float64 // 上次稳定化未用完的调节时间
}

func newApproach(l LaneSpec) *Approach {
	return &Approach{
		id:             l.ID,
		saturationFlow: l.SaturationFlow,
		outLinks:       l.OutLinks,
		samples:        make([]arrivalSample, 0),
	}
}

func (a *Approach) ID() int32               { return a.id }
func (a *Approach) SaturationFlow() float64 { return a.saturationFlow }
func (a *Approach) ArrivalRate() float64    { return a.arrivalRate }
func (a *Approach) Queue() int32            { return a.queue }
func (a *Approach) Load() float64           { return a.load }
func (a *Approach) Green() bool             { return a.green }
func (a *Approach) RegulationTime() float64 { return a.regulationTime }

// observe 吸收一个检测样本并更新到达率与负荷
// 说明：到达率为回看时间窗内的到达数除以窗口实际覆盖长度，无样本时为0
func (a *Approach) observe(now, interval, lookBack float64, sample LaneSample, ok bool) {
	if !a.observed {
		a.observed = true
		a.origin = now - interval
		a.redSince = a.origin
	}
	if ok {
		a.queue = sample.Queue
		if sample.Arrivals > 0 {
			a.samples = append(a.samples, arrivalSample{t: now, n: sample.Arrivals})
			a.windowArrivals += sample.Arrivals
		}
	}
	cut := now - lookBack
	drop := 0
	for drop < len(a.samples) && a.samples[drop].t <= cut {
		a.windowArrivals -= a.samples[drop].n
		drop++
	}
	if drop > 0 {
		a.samples = a.samples[drop:]
	}
	covered := now - math.Max(a.origin, cut)
	if covered <= 0 || a.windowArrivals <= 0 {
		a.arrivalRate = 0
	} else {
		a.arrivalRate = float64(a.windowArrivals) / covered
	}
	a.load = math.Min(1, a.arrivalRate/a.saturationFlow)
}

// setGreen 更新放行状态，仅在状态变化时记录时刻
func (a *Approach) setGreen(green bool, now float64) {
	if a.green == green {
		return
	}
	a.green = green
	if green {
		a.greenSince = now
	} else {
		a.redSince = now
	}
}

// hasDemand 是否存在需求（排队或到达）
func (a *Approach) hasDemand() bool {
	return a.queue > 0 || a.load > 0
}

// clearingTime 以饱和流率消散当前排队所需的时间估计
// 说明：到达率不低于饱和流率时无法消散，返回limit
func (a *Approach) clearingTime(limit float64) float64 {
	if a.queue <= 0 {
		return 0
	}
	net := a.saturationFlow - a.arrivalRate
	if net <= 0 {
		return limit
	}
	return math.Min(limit, float64(a.queue)/net)
}

// NeedsStabilization 判断车道是否需要稳定化保障
// 功能：预测车道最早得到放行前的等待时间，超过阈值则需要稳定化
// 参数：now-当前时间，intergreen-绿灯间隔，switchDelay-放行相位最早可被切换前的剩余时间（不超过最小绿灯），threshold-准入阈值
// 返回：true表示需要进入稳定化队列
// 说明：预测只取决于车道自身的红灯时长与有界的切换耗时，与放行车道的排队长度无关
func (a *Approach) NeedsStabilization(now, intergreen, switchDelay, threshold float64) bool {
	if a.green || !a.hasDemand() {
		return false
	}
	return now-a.redSince+switchDelay+intergreen >= threshold
}

// ApproachTracker 路口全部受控车道的估计器
type ApproachTracker struct {
	lookBack   float64
	approaches []*Approach
	data       map[int32]*Approach
}

// NewApproachTracker 为冲突模型中的每条车道创建估计器
func NewApproachTracker(m *ConflictModel, lookBack float64) *ApproachTracker {
	t := &ApproachTracker{
		lookBack:   lookBack,
		approaches: make([]*Approach, len(m.lanes)),
		data:       make(map[int32]*Approach, len(m.lanes)),
	}
	for i, l := range m.lanes {
		a := newApproach(l)
		t.approaches[i] = a
		t.data[l.ID] = a
	}
	return t
}

// Update 吸收一步的检测快照
// 参数：now-当前时间，interval-本步到达计数覆盖的时间长度，snap-检测快照（可为nil）
func (t *ApproachTracker) Update(now, interval float64, snap *Snapshot) {
	for _, a := range t.approaches {
		var sample LaneSample
		ok := false
		if snap != nil {
			sample, ok = snap.Lanes[a.id]
		}
		a.observe(now, interval, t.lookBack, sample, ok)
	}
}

// Get 根据车道ID获取估计器，不存在返回nil
func (t *ApproachTracker) Get(id int32) *Approach {
	return t.data[id]
}

// All 全部车道估计器（按车道ID升序）
func (t *ApproachTracker) All() []*Approach {
	return t.approaches
}
