package junction

import (
	"fmt"

	"git.fiblab.net/general/common/v2/parallel"
	mapv2connect "git.fiblab.net/sim/protos/v2/go/city/map/v2/mapv2connect"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/config"
)

// Junction管理器
type JunctionManager struct {
	mapv2connect.UnimplementedTrafficLightServiceHandler

	ctx entity.ITaskContext

	data      map[int32]*Junction
	junctions []*Junction
}

// NewManager 创建Junction管理器实例
// 参数：ctx-任务上下文
// 返回：新创建的Junction管理器实例
func NewManager(ctx entity.ITaskContext) *JunctionManager {
	return &JunctionManager{
		ctx:       ctx,
		data:      make(map[int32]*Junction),
		junctions: make([]*Junction, 0),
	}
}

// Init 初始化所有Junction及其信控
// 参数：junctions-路口配置列表，laneManager-车道管理器
// 说明：各路口相互独立，使用并行处理提高初始化效率
func (m *JunctionManager) Init(junctions []config.Junction, laneManager entity.ILaneManager) {
	m.junctions = parallel.GoMap(junctions, func(base config.Junction) *Junction {
		return newJunction(m.ctx, base, laneManager)
	})
	m.data = lo.SliceToMap(m.junctions, func(j *Junction) (int32, *Junction) {
		return j.id, j
	})
	log.Infof("Junction: %d, with traffic light: %d", len(m.junctions),
		lo.CountBy(m.junctions, func(j *Junction) bool { return j.trafficLight != nil }))
}

// Get 根据ID获取Junction实例，如果不存在则panic
func (m *JunctionManager) Get(id int32) entity.IJunction {
	if junction, ok := m.data[id]; !ok {
		log.Panicf("no id %d in junction data", id)
		return nil
	} else {
		return junction
	}
}

// GetOrError 根据ID获取Junction实例，如果不存在则返回错误
func (m *JunctionManager) GetOrError(id int32) (entity.IJunction, error) {
	if junction, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in junction data", id)
	} else {
		return junction, nil
	}
}

// Prepare 准备阶段，所有路口将信控结果写入车道
// 说明：各路口互不共享可变状态，使用并行处理提高性能
func (m *JunctionManager) Prepare() {
	parallel.GoFor(m.junctions, func(j *Junction) { j.prepare() })
}

// Update 更新阶段，所有路口执行信控决策
// 参数：dt-时间步长
func (m *JunctionManager) Update(dt float64) {
	parallel.GoFor(m.junctions, func(j *Junction) { j.update(dt) })
}

// Heartbeat 输出各路口信控状态
func (m *JunctionManager) Heartbeat() {
	for _, j := range m.junctions {
		if j.trafficLight == nil {
			log.Infof("junction %d: no traffic light", j.id)
			continue
		}
		log.Infof("junction %d: %s", j.id, j.trafficLight.Status())
	}
}

// Enqueue 强制指定路口的车道进入稳定化队列（人工干预）
func (m *JunctionManager) Enqueue(junctionID, laneID int32) error {
	j, ok := m.data[junctionID]
	if !ok {
		return fmt.Errorf("no id %d in junction data", junctionID)
	}
	return j.enqueue(laneID)
}
