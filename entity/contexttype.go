package entity

import (
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/utils/config"
)

type ITaskContext interface {
	JunctionManager() IJunctionManager
	RuntimeConfig() *config.RuntimeConfig
}
