package entity

import (
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// 相位编号常量
const (
	PlaceholderPhase PhaseNo = 0 // 环中空位（屏障对齐用的零相位）
	MaxPhaseNo       PhaseNo = 8 // 标准双环最大相位编号
	RingNum                  = 2 // 环数
)

// PhaseNo NEMA相位编号（1-8），0表示占位相位
type PhaseNo int32

// Valid 判断是否为合法的NEMA相位编号
func (p PhaseNo) Valid() bool {
	return p >= 1 && p <= MaxPhaseNo
}

// Ring 相位所在的环：1-4为环0，5-8为环1
func (p PhaseNo) Ring() int {
	if p <= 4 {
		return 0
	}
	return 1
}

// BarrierGroup 相位所在的屏障分组
// 功能：{1,2,5,6}属于分组0，{3,4,7,8}属于分组1，两环必须同时跨越屏障
func (p PhaseNo) BarrierGroup() int {
	if (p-1)%4 < 2 {
		return 0
	}
	return 1
}

// IsThrough 偶数相位为直行相位
func (p PhaseNo) IsThrough() bool {
	return p%2 == 0
}

// PhaseRef 阶段中引用的相位
// 功能：显式的标签类型，取代字符串前缀约定
// 说明：
//   - Overlap=false：主相位MainPhase(No)
//   - Overlap=true：搭接相位OverlapOf，ID为配置中的原始标识（如"A"、"P2"），No为其提示的归属相位（未知为0）
type PhaseRef struct {
	Overlap bool
	No      PhaseNo
	ID      string
}

// MainPhase 构造主相位引用
func MainPhase(no PhaseNo) PhaseRef {
	return PhaseRef{No: no}
}

// OverlapOf 构造搭接相位引用
func OverlapOf(id string, owner PhaseNo) PhaseRef {
	return PhaseRef{Overlap: true, No: owner, ID: id}
}

// ParsePhaseRef 解析相位标识
// 功能：将配置中的相位标识转为PhaseRef
// 参数：s-相位标识，纯数字为主相位，"P<n>"为指向相位n的行人搭接，其余非数字标识为搭接相位
// 返回：相位引用，数字超出1-8或为空时返回ErrConfiguration
func ParsePhaseRef(s string) (PhaseRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PhaseRef{}, fmt.Errorf("%w: empty phase id", ErrConfiguration)
	}
	if n, err := strconv.Atoi(s); err == nil {
		no := PhaseNo(n)
		if !no.Valid() {
			return PhaseRef{}, fmt.Errorf("%w: phase %d has no ring (must be 1-8)", ErrConfiguration, n)
		}
		return MainPhase(no), nil
	}
	var owner PhaseNo
	if strings.HasPrefix(s, "P") {
		if n, err := strconv.Atoi(s[1:]); err == nil && PhaseNo(n).Valid() {
			owner = PhaseNo(n)
		}
	}
	return OverlapOf(s, owner), nil
}

// Key 作为map键使用的唯一标识
func (r PhaseRef) Key() string {
	if r.Overlap {
		return r.ID
	}
	return strconv.Itoa(int(r.No))
}

func (r PhaseRef) String() string {
	return r.Key()
}

// UnmarshalYAML 支持`2`与`"A"`两种写法
func (r *PhaseRef) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	ref, err := ParsePhaseRef(s)
	if err != nil {
		return err
	}
	*r = ref
	return nil
}

func (r PhaseRef) MarshalYAML() (interface{}, error) {
	return r.Key(), nil
}

// UnmarshalBSONValue 支持数据库中以数字或字符串存储的相位
func (r *PhaseRef) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	var s string
	switch t {
	case bsontype.String:
		s = raw.StringValue()
	case bsontype.Int32:
		s = strconv.Itoa(int(raw.Int32()))
	case bsontype.Int64:
		s = strconv.FormatInt(raw.Int64(), 10)
	case bsontype.Double:
		s = strconv.Itoa(int(raw.Double()))
	default:
		return fmt.Errorf("%w: unsupported bson type %v for phase", ErrConfiguration, t)
	}
	ref, err := ParsePhaseRef(s)
	if err != nil {
		return err
	}
	*r = ref
	return nil
}

func (r PhaseRef) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(r.Key())
}

// PhaseDefinition 相位定义（路口配置中的只读数据）
type PhaseDefinition struct {
	No             PhaseNo `yaml:"no" bson:"no"`                                     // NEMA相位编号
	SaturationFlow float64 `yaml:"saturation_flow" bson:"saturation_flow"`           // 饱和流率（veh/h）
	LaneGroup      string  `yaml:"lane_group,omitempty" bson:"lane_group,omitempty"` // 车道组
}

// StageDefinition 阶段定义
// 说明：阶段在一个周期内全序排列，Phases中的主相位两两不重叠（显式搭接除外）
type StageDefinition struct {
	No         int32      `yaml:"no" bson:"no"`                 // 阶段编号（从1开始）
	Phases     []PhaseRef `yaml:"phases" bson:"phases"`         // 阶段包含的相位
	MinGreen   float64    `yaml:"min_green" bson:"min_green"`   // 最小绿
	Yellow     float64    `yaml:"yellow" bson:"yellow"`         // 黄灯
	AllRed     float64    `yaml:"all_red" bson:"all_red"`       // 全红
	Pedestrian float64    `yaml:"pedestrian" bson:"pedestrian"` // 行人清空时间
}

// GreenFloor 绿灯下限：最小绿与行人清空取大
func (s StageDefinition) GreenFloor() float64 {
	return max(s.MinGreen, s.Pedestrian)
}

// MinTotal 阶段最短时长（绿灯下限+黄灯+全红）
func (s StageDefinition) MinTotal() float64 {
	return s.GreenFloor() + s.Yellow + s.AllRed
}

// MainPhases 阶段中所有主相位
func (s StageDefinition) MainPhases() []PhaseNo {
	res := make([]PhaseNo, 0, len(s.Phases))
	for _, p := range s.Phases {
		if !p.Overlap {
			res = append(res, p.No)
		}
	}
	return res
}

// StageTiming 阶段配时
type StageTiming struct {
	StageNo int32   `yaml:"stage_no" bson:"stage_no"`
	Green   float64 `yaml:"green" bson:"green"`
	Yellow  float64 `yaml:"yellow" bson:"yellow"`
	AllRed  float64 `yaml:"all_red" bson:"all_red"`
}

// Duration 阶段总时长
func (s StageTiming) Duration() float64 {
	return s.Green + s.Yellow + s.AllRed
}

// SetDuration 按总时长反推绿灯时间
func (s *StageTiming) SetDuration(d float64) {
	s.Green = d - s.Yellow - s.AllRed
}

// PhasePlan 配时方案（输出）
// 说明：Cycle总是等于各阶段时长之和
type PhasePlan struct {
	PlanNo int32         `yaml:"plan_no" bson:"plan_no"`
	Cycle  float64       `yaml:"cycle" bson:"cycle"`
	Stages []StageTiming `yaml:"stages" bson:"stages"`
}

// NewPhasePlan 以阶段定义的黄灯、全红和最短时长初始化方案
func NewPhasePlan(planNo int32, stages []StageDefinition) PhasePlan {
	p := PhasePlan{PlanNo: planNo, Stages: make([]StageTiming, len(stages))}
	for i, s := range stages {
		p.Stages[i] = StageTiming{StageNo: s.No, Green: s.GreenFloor(), Yellow: s.Yellow, AllRed: s.AllRed}
	}
	p.Recompute()
	return p
}

// Clone 深拷贝，搜索分支之间不得共享同一方案
func (p PhasePlan) Clone() PhasePlan {
	stages := make([]StageTiming, len(p.Stages))
	copy(stages, p.Stages)
	p.Stages = stages
	return p
}

// Durations 各阶段时长
func (p PhasePlan) Durations() []float64 {
	res := make([]float64, len(p.Stages))
	for i, s := range p.Stages {
		res[i] = s.Duration()
	}
	return res
}

// Recompute 重新计算周期 cycle = Σ 阶段时长
func (p *PhasePlan) Recompute() {
	p.Cycle = 0
	for _, s := range p.Stages {
		p.Cycle += s.Duration()
	}
}

// Equal 比较两个方案的阶段配时是否完全一致（忽略方案号）
func (p PhasePlan) Equal(o PhasePlan) bool {
	if len(p.Stages) != len(o.Stages) {
		return false
	}
	for i := range p.Stages {
		if p.Stages[i] != o.Stages[i] {
			return false
		}
	}
	return true
}
