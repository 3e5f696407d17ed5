package config

// ControlStep 指定模拟器模拟时间范围和间隔的配置项
// 功能：定义仿真时间控制参数
// 说明：控制仿真的时间范围与步长
type ControlStep struct {
	Start    int32   `yaml:"start"`    // 开始步数
	Total    int32   `yaml:"total"`    // 总步数
	Interval float64 `yaml:"interval"` // 每步的时间间隔
}

// Control 模拟器控制配置
type Control struct {
	Step ControlStep `yaml:"step"`
	Seed uint64      `yaml:"seed,omitempty"` // 到达过程的随机数种子
}

// TrafficLight 自适应信控参数
// 功能：所有路口共享的Läemmer控制参数，缺省字段取DefaultTrafficLight中的值
type TrafficLight struct {
	MinGreenTime           float64 `yaml:"min_green_time"`           // 最小绿灯时间（秒）
	IntergreenTime         float64 `yaml:"intergreen_time"`          // 绿灯间隔时间（秒）
	DesiredCycleTime       float64 `yaml:"desired_cycle_time"`       // 期望周期（秒）
	MaxCycleTime           float64 `yaml:"max_cycle_time"`           // 最大周期（秒）
	LookBackTime           float64 `yaml:"look_back_time"`           // 到达率统计时间窗（秒）
	StabilizationThreshold float64 `yaml:"stabilization_threshold"`  // 稳定化准入阈值（秒）
	StabilizationStrategy  string  `yaml:"stabilization_strategy"`   // 稳定化相位选择策略
	StabilizationLookAhead int     `yaml:"stabilization_look_ahead"` // 预留周期时间时考虑的相位外关键车道数
	CheckDownstream        bool    `yaml:"check_downstream"`         // 是否检查下游占有率
	DownstreamThreshold    float64 `yaml:"downstream_threshold"`     // 下游占有率否决阈值
	YellowTime             float64 `yaml:"yellow_time"`              // 清空期间的黄灯时长（秒），其余为红灯
	MaxGroups              int     `yaml:"max_groups"`               // 穷举相位的信号灯组数量上限
	PruneDominated         bool    `yaml:"prune_dominated"`          // 是否剔除被支配的相位
}

// Link 下游路段
type Link struct {
	ID        int32   `yaml:"id"`
	Capacity  float64 `yaml:"capacity"`   // 容量（veh）
	DrainRate float64 `yaml:"drain_rate"` // 驶离流率（veh/s）
}

// Lane 受信控的进口车道
type Lane struct {
	ID             int32   `yaml:"id"`
	SaturationFlow float64 `yaml:"saturation_flow"`    // 饱和流率（veh/s）
	ArrivalRate    float64 `yaml:"arrival_rate"`       // 平均到达率（veh/s）
	Arrival        string  `yaml:"arrival,omitempty"`  // 到达过程：POISSON（默认）或UNIFORM
	OutLink        *int32  `yaml:"out_link,omitempty"` // 下游路段ID
}

// SignalGroup 信号灯组
type SignalGroup struct {
	ID    int32   `yaml:"id"`
	Lanes []int32 `yaml:"lanes"`
}

// Conflict 车道冲突关系，声明一侧即可
type Conflict struct {
	Lane int32   `yaml:"lane"`
	With []int32 `yaml:"with"`
}

// Junction 路口静态数据
type Junction struct {
	ID        int32         `yaml:"id"`
	Lanes     []Lane        `yaml:"lanes"`
	Links     []Link        `yaml:"links,omitempty"`
	Groups    []SignalGroup `yaml:"groups"`
	Conflicts []Conflict    `yaml:"conflicts,omitempty"`
}

// Config YAML配置文件的根结构
// 功能：定义整个仿真系统的配置结构
// 说明：包含控制、信控参数与路口数据
type Config struct {
	Control      Control      `yaml:"control"`       // 模拟过程控制
	TrafficLight TrafficLight `yaml:"traffic_light"` // 信控参数
	Junctions    []Junction   `yaml:"junctions"`     // 路口
}
