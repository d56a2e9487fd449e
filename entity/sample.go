package entity

import "fmt"

// FlowSample 单个时间片（默认6分钟）内单条车道的流量样本
// 功能：由流量采集模块提供，已经标注了日计划、时段、方案与阶段
type FlowSample struct {
	JunctionID     int32   `yaml:"junction_id" bson:"junction_id"`
	DayNo          int32   `yaml:"day_no" bson:"day_no"`
	PeriodNo       int32   `yaml:"period_no" bson:"period_no"`
	PlanNo         int32   `yaml:"plan_no" bson:"plan_no"`
	Date           string  `yaml:"date" bson:"date"`                             // 日期，如2024-05-01
	Time           string  `yaml:"time" bson:"time"`                             // 时间片起点，HH:MM
	StageNo        int32   `yaml:"stage_no" bson:"stage_no"`                     // 所属阶段
	Phase          string  `yaml:"phase" bson:"phase"`                           // 相位标识
	Road           string  `yaml:"road,omitempty" bson:"road,omitempty"`         // 进口道
	Lane           string  `yaml:"lane,omitempty" bson:"lane,omitempty"`         // 车道
	FlowRate       float64 `yaml:"flow_rate" bson:"flow_rate"`                   // 流率（veh/h）
	SaturationFlow float64 `yaml:"saturation_flow" bson:"saturation_flow"`       // 饱和流率（veh/h），为0的样本不参与计算
	MinCycle       float64 `yaml:"min_cycle" bson:"min_cycle"`                   // 最小周期
	MaxCycle       float64 `yaml:"max_cycle" bson:"max_cycle"`                   // 最大周期
	Yellow         float64 `yaml:"yellow" bson:"yellow"`                         // 黄灯
	AllRed         float64 `yaml:"all_red" bson:"all_red"`                       // 全红
	MinGreen       float64 `yaml:"min_green" bson:"min_green"`                   // 最小绿
	Pedestrian     float64 `yaml:"pedestrian,omitempty" bson:"pedestrian"`       // 行人清空
}

// Context 样本所属的日计划/时段/方案
func (s FlowSample) Context() ContextKey {
	return ContextKey{DayNo: s.DayNo, PeriodNo: s.PeriodNo, PlanNo: s.PlanNo}
}

// Bucket 样本所属的时间片
func (s FlowSample) Bucket() BucketKey {
	return BucketKey{ContextKey: s.Context(), Time: s.Time}
}

// Yi 流率比
func (s FlowSample) Yi() float64 {
	return s.FlowRate / s.SaturationFlow
}

// ContextKey (日计划, 时段, 方案)
type ContextKey struct {
	DayNo    int32 `yaml:"day_no" bson:"day_no"`
	PeriodNo int32 `yaml:"period_no" bson:"period_no"`
	PlanNo   int32 `yaml:"plan_no" bson:"plan_no"`
}

func (k ContextKey) String() string {
	return fmt.Sprintf("day=%d period=%d plan=%d", k.DayNo, k.PeriodNo, k.PlanNo)
}

// Less 排序用
func (k ContextKey) Less(o ContextKey) bool {
	if k.DayNo != o.DayNo {
		return k.DayNo < o.DayNo
	}
	if k.PeriodNo != o.PeriodNo {
		return k.PeriodNo < o.PeriodNo
	}
	return k.PlanNo < o.PlanNo
}

// BucketKey (日计划, 时段, 方案, 时间片)
type BucketKey struct {
	ContextKey `yaml:",inline" bson:",inline"`
	Time       string `yaml:"time" bson:"time"`
}

func (k BucketKey) String() string {
	return fmt.Sprintf("%v time=%s", k.ContextKey, k.Time)
}

// Less 排序用，时间为零填充的HH:MM，可直接按字符串比较
func (k BucketKey) Less(o BucketKey) bool {
	if k.ContextKey != o.ContextKey {
		return k.ContextKey.Less(o.ContextKey)
	}
	return k.Time < o.Time
}

// PhaseFlow 某时间片内某进口道某相位的代表流量
type PhaseFlow struct {
	Phase          PhaseRef
	Road           string
	FlowRate       float64 // 车道流率最大值（veh/h）
	SaturationFlow float64 // 饱和流率（veh/h）
	RoadFlowRate   float64 // 同进口道各相位流率均值
}

// RingPhase 环-屏障结构中的一个相位（持久化文档格式）
type RingPhase struct {
	Phase      PhaseNo    `yaml:"phase" bson:"phase"` // 0为占位
	Overlaps   []PhaseRef `yaml:"overlaps,omitempty" bson:"overlaps,omitempty"`
	Start      float64    `yaml:"start,omitempty" bson:"start,omitempty"`
	End        float64    `yaml:"end,omitempty" bson:"end,omitempty"`
	Green      float64    `yaml:"green" bson:"green"`
	Yellow     float64    `yaml:"yellow" bson:"yellow"`
	AllRed     float64    `yaml:"all_red" bson:"all_red"`
	MinGreen   float64    `yaml:"min_green,omitempty" bson:"min_green,omitempty"`
	Pedestrian float64    `yaml:"pedestrian,omitempty" bson:"pedestrian,omitempty"`
	Barrier    bool       `yaml:"barrier,omitempty" bson:"barrier,omitempty"`
}

// Split 相位总时长
func (p RingPhase) Split() float64 {
	return p.Green + p.Yellow + p.AllRed
}

// RingPlan 环-屏障配时文档
type RingPlan struct {
	PlanNo int32         `yaml:"plan_no" bson:"plan_no"`
	Cycle  float64       `yaml:"cycle" bson:"cycle"`
	Rings  [][]RingPhase `yaml:"rings" bson:"rings"`
}

// JunctionConfig 路口静态配置
// 说明：Stages为空时由RingPlan反向转换得到阶段定义
type JunctionConfig struct {
	ID       int32             `yaml:"id" bson:"id"`
	Name     string            `yaml:"name,omitempty" bson:"name,omitempty"`
	Phases   []PhaseDefinition `yaml:"phases" bson:"phases"`
	Stages   []StageDefinition `yaml:"stages,omitempty" bson:"stages,omitempty"`
	RingPlan *RingPlan         `yaml:"ring_plan,omitempty" bson:"ring_plan,omitempty"`
	MinCycle float64           `yaml:"min_cycle,omitempty" bson:"min_cycle,omitempty"` // 样本缺省时的周期下限
	MaxCycle float64           `yaml:"max_cycle,omitempty" bson:"max_cycle,omitempty"` // 样本缺省时的周期上限
}
