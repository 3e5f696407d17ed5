package lane

import (
	"fmt"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/config"
)

// LaneManager Lane管理器
// 功能：管理所有进口车道与下游路段，提供创建、查找、逐步更新等功能
type LaneManager struct {
	ctx entity.ITaskContext

	data  map[int32]*Lane
	lanes []*Lane

	linkData map[int32]*Link
	links    []*Link
}

// NewManager 创建Lane管理器实例
// 参数：ctx-任务上下文
// 返回：新创建的Lane管理器实例
func NewManager(ctx entity.ITaskContext) *LaneManager {
	return &LaneManager{
		ctx:      ctx,
		data:     make(map[int32]*Lane),
		lanes:    make([]*Lane, 0),
		linkData: make(map[int32]*Link),
		links:    make([]*Link, 0),
	}
}

// Init 初始化所有Lane与Link
// 功能：根据路口配置创建下游路段与进口车道，建立ID映射关系
// 参数：junctions-路口配置列表
// 说明：先创建路段再并行创建车道，车道引用不存在的路段时panic
func (m *LaneManager) Init(junctions []config.Junction) {
	m.links = lo.FlatMap(junctions, func(j config.Junction, _ int) []*Link {
		return lo.Map(j.Links, func(base config.Link, _ int) *Link { return newLink(base) })
	})
	m.linkData = lo.SliceToMap(m.links, func(k *Link) (int32, *Link) {
		return k.id, k
	})
	bases := lo.FlatMap(junctions, func(j config.Junction, _ int) []config.Lane {
		return j.Lanes
	})
	m.lanes = parallel.GoMap(bases, func(base config.Lane) *Lane {
		return newLane(m.ctx, base, m.linkData)
	})
	m.data = lo.SliceToMap(m.lanes, func(l *Lane) (int32, *Lane) {
		return l.id, l
	})
	log.Infof("Lane: %d, Link: %d", len(m.lanes), len(m.links))
}

// Get 根据ID获取Lane实例，如果不存在则panic
func (m *LaneManager) Get(id int32) entity.ILane {
	if lane, ok := m.data[id]; !ok {
		log.Panicf("no id %d in lane data", id)
		return nil
	} else {
		return lane
	}
}

// GetOrError 根据ID获取Lane实例，如果不存在则返回错误
func (m *LaneManager) GetOrError(id int32) (entity.ILane, error) {
	if lane, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in lane data", id)
	} else {
		return lane, nil
	}
}

// GetLinkOrError 根据ID获取Link实例，如果不存在则返回错误
func (m *LaneManager) GetLinkOrError(id int32) (entity.ILink, error) {
	if link, ok := m.linkData[id]; !ok {
		return nil, fmt.Errorf("no id %d in link data", id)
	} else {
		return link, nil
	}
}

// Prepare 准备阶段，生成所有车道的检测读数与路段占有率
// 说明：使用并行处理提高性能
func (m *LaneManager) Prepare() {
	parallel.GoFor(m.lanes, func(l *Lane) { l.prepare() })
	parallel.GoFor(m.links, func(k *Link) { k.prepare() })
}

// Update 更新阶段，执行车辆到达、驶离与路段清空
// 参数：dt-时间步长
// 说明：车道驶入路段完成后再清空路段
func (m *LaneManager) Update(dt float64) {
	parallel.GoFor(m.lanes, func(l *Lane) { l.update(dt) })
	parallel.GoFor(m.links, func(k *Link) { k.update(dt) })
}
