package entity

import (
	"errors"
	"fmt"
)

var (
	// 配置错误：缺失或非法的相位/阶段属性、相位不属于任何环、空阶段
	ErrConfiguration = errors.New("configuration error")
	// 分支定界搜索结束但没有找到可行的叶节点
	ErrSearchExhausted = errors.New("search exhausted without a feasible plan")
	// 时间片内没有有效样本
	ErrEmptyScenario = errors.New("no valid flow sample in bucket")
)

// OptimizationFailure 单个时间片优化失败
// 说明：调用方应保留该时间片原有/默认方案，其余时间片照常计算
type OptimizationFailure struct {
	Bucket BucketKey
	Err    error
}

func (e *OptimizationFailure) Error() string {
	return fmt.Sprintf("optimization failed for %v: %v", e.Bucket, e.Err)
}

func (e *OptimizationFailure) Unwrap() error {
	return e.Err
}
