package entity

import (
	"github.com/tsinghua-fib-lab/agentsociety-tsc/clock"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/config"
)

type ITaskContext interface {
	Clock() *clock.Clock
	LaneManager() ILaneManager
	JunctionManager() IJunctionManager
	RuntimeConfig() *config.RuntimeConfig
}
