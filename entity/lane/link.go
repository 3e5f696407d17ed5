package lane

import (
	"math"
	"sync"

	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/config"
)

// Link 下游路段
// 功能：接收进口车道驶离的车辆，按驶离流率清空，提供占有率供信控下游检查
// 说明：多条车道可能并发驶入同一路段，receive使用互斥锁
type Link struct {
	id        int32
	capacity  float64 // 容量（veh）
	drainRate float64 // 驶离流率（veh/s）

	mtx       sync.Mutex
	count     float64 // 当前车辆数
	occupancy float64 // 占有率（Prepare时更新）
}

func newLink(base config.Link) *Link {
	return &Link{
		id:        base.ID,
		capacity:  base.Capacity,
		drainRate: base.DrainRate,
	}
}

func (k *Link) prepare() {
	k.occupancy = math.Min(1, k.count/k.capacity)
}

func (k *Link) update(dt float64) {
	k.count = math.Max(0, k.count-k.drainRate*dt)
}

// receive 接收至多n辆车
// 返回：实际接收的车辆数（受剩余空间限制）
func (k *Link) receive(n int32) int32 {
	k.mtx.Lock()
	defer k.mtx.Unlock()
	space := int32(math.Floor(k.capacity - k.count + 1e-9))
	n = max(0, min(n, space))
	k.count += float64(n)
	return n
}

func (k *Link) ID() int32 {
	return k.id
}

// Occupancy 上一次Prepare时的占有率[0,1]
func (k *Link) Occupancy() float64 {
	return k.occupancy
}

func (k *Link) Count() float64 {
	return k.count
}

func (k *Link) Capacity() float64 {
	return k.capacity
}
