// 随机数引擎，包装了golang.org/x/exp/rand，提供车辆到达过程所需的随机数生成方法
package randengine

import (
	"flag"
	"math"

	"golang.org/x/exp/rand"
)

const (
	// 均值超过该值时泊松分布改用正态近似
	poissonNormalThreshold = 30
)

var (
	seedOffset = flag.Uint64("rand.seed_offset", 0, "seed offset") // 种子偏移量，用于调整随机数生成
)

// Engine 随机数引擎（非线程安全，每个使用者持有独立实例）
type Engine struct {
	*rand.Rand // 底层随机数生成器
}

// New 创建随机数引擎
// 参数：seed-随机数种子
// 说明：种子偏移量允许在不修改配置的情况下调整随机数序列
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + *seedOffset))}
}

// PTrue 以指定概率返回true
func (e *Engine) PTrue(p float64) bool {
	return e.Float64() < p
}

// Poisson 按泊松分布生成随机整数
// 参数：lambda-均值
// 返回：非负整数
// 算法说明：
// 1. lambda<=0时返回0
// 2. lambda较小时使用乘积法：连乘均匀随机数直至小于exp(-lambda)
// 3. lambda较大时使用正态近似 N(lambda, lambda) 并取整
func (e *Engine) Poisson(lambda float64) int32 {
	if lambda <= 0 {
		return 0
	}
	if lambda >= poissonNormalThreshold {
		return int32(math.Max(0, math.Round(lambda+math.Sqrt(lambda)*e.NormFloat64())))
	}
	limit := math.Exp(-lambda)
	k := int32(0)
	for p := e.Float64(); p > limit; p *= e.Float64() {
		k++
	}
	return k
}
