package config

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
	"gopkg.in/yaml.v2"
)

const (
	ArrivalPoisson = "POISSON" // 泊松到达
	ArrivalUniform = "UNIFORM" // 均匀到达（确定性）
)

var (
	ErrInvalidConfig = errors.New("invalid config")
)

// DefaultTrafficLight 默认信控参数
func DefaultTrafficLight() TrafficLight {
	return TrafficLight{
		MinGreenTime:           5,
		IntergreenTime:         3,
		DesiredCycleTime:       60,
		MaxCycleTime:           90,
		LookBackTime:           300,
		StabilizationThreshold: 30,
		StabilizationStrategy:  "HEURISTIC",
		StabilizationLookAhead: 3,
		CheckDownstream:        false,
		DownstreamThreshold:    0.9,
		YellowTime:             3,
		MaxGroups:              20,
		PruneDominated:         true,
	}
}

// Load 解析YAML配置
// 功能：以默认信控参数为底解析配置（未知字段报错），并进行基本校验
// 参数：data-YAML文本
// 返回：配置与错误
func Load(data []byte) (Config, error) {
	c := Config{
		Control:      Control{Step: ControlStep{Interval: 1}},
		TrafficLight: DefaultTrafficLight(),
	}
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate 校验配置项与ID引用，信号灯组与冲突关系的一致性由信控模块校验
func (c Config) Validate() error {
	if c.Control.Step.Interval <= 0 {
		return fmt.Errorf("%w: step interval %v must be positive", ErrInvalidConfig, c.Control.Step.Interval)
	}
	if c.Control.Step.Total < 0 {
		return fmt.Errorf("%w: step total %d must not be negative", ErrInvalidConfig, c.Control.Step.Total)
	}
	if c.TrafficLight.YellowTime < 0 || c.TrafficLight.YellowTime > c.TrafficLight.IntergreenTime {
		return fmt.Errorf("%w: yellow time %v must be in [0, intergreen time %v]",
			ErrInvalidConfig, c.TrafficLight.YellowTime, c.TrafficLight.IntergreenTime)
	}
	if dup, ok := duplicate(lo.Map(c.Junctions, func(j Junction, _ int) int32 { return j.ID })); ok {
		return fmt.Errorf("%w: duplicate junction id %d", ErrInvalidConfig, dup)
	}
	lanes := lo.FlatMap(c.Junctions, func(j Junction, _ int) []int32 {
		return lo.Map(j.Lanes, func(l Lane, _ int) int32 { return l.ID })
	})
	if dup, ok := duplicate(lanes); ok {
		return fmt.Errorf("%w: duplicate lane id %d", ErrInvalidConfig, dup)
	}
	links := lo.FlatMap(c.Junctions, func(j Junction, _ int) []int32 {
		return lo.Map(j.Links, func(k Link, _ int) int32 { return k.ID })
	})
	if dup, ok := duplicate(links); ok {
		return fmt.Errorf("%w: duplicate link id %d", ErrInvalidConfig, dup)
	}
	for _, j := range c.Junctions {
		own := lo.Map(j.Links, func(k Link, _ int) int32 { return k.ID })
		for _, l := range j.Lanes {
			if l.OutLink != nil && !lo.Contains(own, *l.OutLink) {
				return fmt.Errorf("%w: lane %d references unknown link %d", ErrInvalidConfig, l.ID, *l.OutLink)
			}
			if l.ArrivalRate < 0 {
				return fmt.Errorf("%w: lane %d arrival rate %v must not be negative", ErrInvalidConfig, l.ID, l.ArrivalRate)
			}
			if l.Arrival != "" && l.Arrival != ArrivalPoisson && l.Arrival != ArrivalUniform {
				return fmt.Errorf("%w: lane %d arrival %q", ErrInvalidConfig, l.ID, l.Arrival)
			}
		}
		for _, k := range j.Links {
			if k.Capacity <= 0 || k.DrainRate < 0 {
				return fmt.Errorf("%w: link %d capacity %v drain rate %v", ErrInvalidConfig, k.ID, k.Capacity, k.DrainRate)
			}
		}
	}
	return nil
}

func duplicate(ids []int32) (int32, bool) {
	dups := lo.FindDuplicates(ids)
	if len(dups) == 0 {
		return 0, false
	}
	return dups[0], true
}

// ConflictMap 将冲突列表转为车道ID -> 冲突车道ID
func (j Junction) ConflictMap() map[int32][]int32 {
	m := make(map[int32][]int32, len(j.Conflicts))
	for _, c := range j.Conflicts {
		m[c.Lane] = append(m[c.Lane], c.With...)
	}
	return m
}

// RuntimeConfig 运行时配置
// 功能：存储仿真运行时的配置信息
type RuntimeConfig struct {
	All Config       // 全部配置
	C   Control      // 全局控制配置
	TL  TrafficLight // 信控参数
}

// NewRuntimeConfig 根据配置初始化运行时配置
func NewRuntimeConfig(config Config) *RuntimeConfig {
	return &RuntimeConfig{
		All: config,
		C:   config.Control,
		TL:  config.TrafficLight,
	}
}
