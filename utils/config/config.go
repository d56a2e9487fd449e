package config

import (
	"errors"
	"fmt"
	"slices"
)

// 可选的算法
const (
	AlgorithmWebster = "webster"
	AlgorithmBnB     = "bnb"
	AlgorithmBoth    = "both"
)

var ErrInvalidConfig = errors.New("invalid config")

// RuntimeConfig 运行时配置
// 功能：填充默认值并校验后的配置
type RuntimeConfig struct {
	All Config  // 全部配置
	C   Control // 计算控制配置
}

// NewRuntimeConfig 根据配置构造运行时配置
// 功能：填充缺省值，检查取值范围
// 参数：config-原始配置对象
// 返回：运行时配置，配置非法时返回ErrInvalidConfig
// 算法说明：
// 1. 缺省值：algorithm=webster，interval=6，start_loss=3，coverage_quantile=0.9，
//    max_clusters=1，min_interval=30，step=2
// 2. 校验：分位点在(0,1]内，步长与时间片长度为正，算法在可选集合内
// 3. 输入必须能给出路口配置与流量来源（文件、数据库或合成）
func NewRuntimeConfig(config Config) (*RuntimeConfig, error) {
	c := &config.Control
	if c.Algorithm == "" {
		c.Algorithm = AlgorithmWebster
	}
	if c.Interval == 0 {
		c.Interval = 6
	}
	if c.StartLoss == 0 {
		c.StartLoss = 3
	}
	if c.Webster.CoverageQuantile == 0 {
		c.Webster.CoverageQuantile = 0.9
	}
	if c.Segment.MaxClusters == 0 {
		c.Segment.MaxClusters = 1
	}
	if c.Segment.MinInterval == 0 {
		c.Segment.MinInterval = 30
	}
	if c.Search.Step == 0 {
		c.Search.Step = 2
	}

	if !slices.Contains([]string{AlgorithmWebster, AlgorithmBnB, AlgorithmBoth}, c.Algorithm) {
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfig, c.Algorithm)
	}
	if c.Webster.CoverageQuantile <= 0 || c.Webster.CoverageQuantile > 1 {
		return nil, fmt.Errorf("%w: coverage_quantile %v out of (0,1]", ErrInvalidConfig, c.Webster.CoverageQuantile)
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if c.Search.Step <= 0 {
		return nil, fmt.Errorf("%w: search step must be positive", ErrInvalidConfig)
	}
	if c.StartLoss < 0 || c.Segment.MaxClusters < 0 || c.Segment.MinInterval < 0 ||
		c.Search.MaxNodes < 0 || c.Search.Timeout < 0 || c.Search.ExhaustiveCycleLimit < 0 {
		return nil, fmt.Errorf("%w: negative control value", ErrInvalidConfig)
	}

	in := config.Input
	if in.Junctions.Empty() {
		return nil, fmt.Errorf("%w: no junction input", ErrInvalidConfig)
	}
	if in.Synthetic == nil && in.Flow.Empty() {
		return nil, fmt.Errorf("%w: no flow input", ErrInvalidConfig)
	}
	if in.Synthetic != nil && in.Synthetic.Days <= 0 {
		return nil, fmt.Errorf("%w: synthetic days must be positive", ErrInvalidConfig)
	}
	if in.Synthetic != nil && (in.Synthetic.MissingRate < 0 || in.Synthetic.MissingRate >= 1) {
		return nil, fmt.Errorf("%w: synthetic missing rate must be in [0, 1)", ErrInvalidConfig)
	}
	needMongo := in.Junctions.File == "" || (in.Synthetic == nil && in.Flow.File == "") || config.Output.Mongo != nil
	if needMongo && in.URI == "" {
		return nil, fmt.Errorf("%w: mongo source without uri", ErrInvalidConfig)
	}

	return &RuntimeConfig{All: config, C: config.Control}, nil
}

// Algorithms 需要运行的算法
func (rc *RuntimeConfig) Algorithms() []string {
	if rc.C.Algorithm == AlgorithmBoth {
		return []string{AlgorithmWebster, AlgorithmBnB}
	}
	return []string{rc.C.Algorithm}
}

// Selected 路口是否参与计算
func (rc *RuntimeConfig) Selected(id int32) bool {
	return len(rc.C.JunctionIDs) == 0 || slices.Contains(rc.C.JunctionIDs, id)
}
