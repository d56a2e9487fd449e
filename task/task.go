package task

import (
	"context"
	"time"

	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity/junction"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/utils/config"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/utils/input"
)

// Context 配时任务上下文
// 功能：包含一次配时任务的所有变量和状态
type Context struct {
	// 任务名，用于输出文档的标识
	job string

	// Junction管理器
	junctionManager entity.IJunctionManager

	// 运行时配置文件
	runtimeConfig *config.RuntimeConfig

	// 用于初始化的输入
	initRes *input.Input
}

// NewContext 创建新的配时任务上下文
// 参数：job-任务名称，rc-运行时配置
func NewContext(job string, rc *config.RuntimeConfig) *Context {
	ctx := &Context{
		job:           job,
		runtimeConfig: rc,
	}
	ctx.junctionManager = junction.NewManager(ctx)
	return ctx
}

func (ctx *Context) GetInput() *input.Input {
	return ctx.initRes
}

func (ctx *Context) JunctionManager() entity.IJunctionManager {
	return ctx.junctionManager
}

func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

// Init 加载输入并初始化路口
// 说明：输入读取失败或路口配置非法时直接panic，不进入计算
func (ctx *Context) Init(c context.Context) {
	initRes, err := input.Init(c, ctx.runtimeConfig)
	if err != nil {
		log.Panicf("failed to load input: %v", err)
	}
	ctx.initRes = initRes
	log.Infof("Junction: %v", len(initRes.Junctions))
	log.Infof("FlowSample: %v", len(initRes.Samples))

	if err := ctx.junctionManager.Init(initRes.Junctions); err != nil {
		log.Panicf("invalid junction config: %v", err)
	}
}

// Run 执行配时任务
// 功能：初始化、对全部路口运行配置的算法、写出结果
// 参数：c-取消控制（取消后各时间片搜索返回当前最优解）
// 返回：每个(路口,算法)的结果
func (ctx *Context) Run(c context.Context) []*entity.JunctionResult {
	start := time.Now()
	ctx.Init(c)
	results := ctx.junctionManager.Run(c, ctx.initRes.Samples)
	failures := 0
	for _, r := range results {
		failures += len(r.Failures)
	}
	log.Infof("%d results (%d failed buckets) in %v", len(results), failures, time.Since(start))
	if err := ctx.writeOutput(c, results); err != nil {
		log.Panicf("failed to write output: %v", err)
	}
	return results
}
