package entity

import "context"

// Manager依赖倒置

// entity/junction/manager.go的依赖倒置
type IJunctionManager interface {
	Init(configs []JunctionConfig) error // 初始化，配置错误在此返回

	// 输入Junction ID，查找Junction，如果不存在则panic
	Get(id int32) IJunction
	// 输入Junction ID，查找Junction，如果不存在则返回error
	GetOrError(id int32) (IJunction, error)

	// 对所有路口执行配时计算
	Run(ctx context.Context, samples []FlowSample) []*JunctionResult
}

// entity/junction/junction.go的依赖倒置
type IJunction interface {
	ID() int32
	Stages() []StageDefinition
	Phase(no PhaseNo) (PhaseDefinition, bool)
}
