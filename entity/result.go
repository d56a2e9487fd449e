package entity

// 配时算法
const (
	AlgorithmWebster = "webster" // Webster解析法 + 时段聚类
	AlgorithmBnB     = "bnb"     // 排队长度最小的分支定界搜索 + 时段聚类
)

// StageResult 单个时间片单个阶段的配时结果
type StageResult struct {
	StageNo    int32   `yaml:"stage_no" bson:"stage_no"`
	Green      float64 `yaml:"green" bson:"green"`
	Yellow     float64 `yaml:"yellow" bson:"yellow"`
	AllRed     float64 `yaml:"all_red" bson:"all_red"`
	Yi         float64 `yaml:"yi" bson:"yi"` // Webster为流率比，分支定界为阶段周期流量
	GreenRatio float64 `yaml:"green_ratio" bson:"green_ratio"`
	FlowRatio  float64 `yaml:"flow_ratio" bson:"flow_ratio"`
}

// Duration 阶段总时长
func (s StageResult) Duration() float64 {
	return s.Green + s.Yellow + s.AllRed
}

// BucketResult 单个时间片的配时结果
type BucketResult struct {
	Bucket BucketKey     `yaml:"bucket" bson:"bucket"`
	Stages []StageResult `yaml:"stages" bson:"stages"`
	Yr     float64       `yaml:"yr,omitempty" bson:"yr,omitempty"`   // 关键流率比之和
	T      float64       `yaml:"t,omitempty" bson:"t,omitempty"`     // Webster周期
	Tmm    float64       `yaml:"tmm,omitempty" bson:"tmm,omitempty"` // 截断到[min_cycle, max_cycle]的周期
	Cycle  float64       `yaml:"cycle" bson:"cycle"`                 // 各阶段时长之和
	Queue  float64       `yaml:"queue,omitempty" bson:"queue,omitempty"`
}

// Plan 转为配时方案
func (r BucketResult) Plan() PhasePlan {
	p := PhasePlan{PlanNo: r.Bucket.PlanNo, Stages: make([]StageTiming, len(r.Stages))}
	for i, s := range r.Stages {
		p.Stages[i] = StageTiming{StageNo: s.StageNo, Green: s.Green, Yellow: s.Yellow, AllRed: s.AllRed}
	}
	p.Recompute()
	return p
}

// StageRatio 聚类后的绿信比与流量比
type StageRatio struct {
	StageNo    int32   `yaml:"stage_no" bson:"stage_no"`
	GreenRatio float64 `yaml:"green_ratio" bson:"green_ratio"`
	FlowRatio  float64 `yaml:"flow_ratio" bson:"flow_ratio"`
}

// Segment 时段聚类得到的一段稳定方案
type Segment struct {
	Context ContextKey   `yaml:"context" bson:"context"`
	Label   int          `yaml:"label" bson:"label"`
	Start   string       `yaml:"start" bson:"start"` // 第一个时间片
	End     string       `yaml:"end" bson:"end"`     // 最后一个时间片
	Plan    PhasePlan    `yaml:"plan" bson:"plan"`
	Ratios  []StageRatio `yaml:"ratios,omitempty" bson:"ratios,omitempty"`
	Rings   *RingPlan    `yaml:"rings,omitempty" bson:"rings,omitempty"`
}

// JunctionResult 单个路口单个算法的全部输出
type JunctionResult struct {
	JunctionID int32                  `yaml:"junction_id" bson:"junction_id"`
	Algorithm  string                 `yaml:"algorithm" bson:"algorithm"`
	Buckets    []BucketResult         `yaml:"buckets,omitempty" bson:"buckets,omitempty"`
	Segments   []Segment              `yaml:"segments" bson:"segments"`
	Failures   []*OptimizationFailure `yaml:"-" bson:"-"`
	Ambiguous  []string               `yaml:"ambiguous_overlaps,omitempty" bson:"ambiguous_overlaps,omitempty"`
}
