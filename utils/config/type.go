package config

// InputPath 指定输入数据来源的配置（MongoDB、文件系统）
// 说明：File不为空时优先从文件读取
type InputPath struct {
	DB   string `yaml:"db,omitempty"`   // 数据库名
	Col  string `yaml:"col,omitempty"`  // 集合名
	File string `yaml:"file,omitempty"` // 文件路径（优先级高于MongoDB）
}

// GetDb 获取数据库名
func (p InputPath) GetDb() string {
	return p.DB
}

// GetColl 获取集合名
func (p InputPath) GetColl() string {
	return p.Col
}

// Empty 是否未配置任何来源
func (p InputPath) Empty() bool {
	return p.File == "" && (p.DB == "" || p.Col == "")
}

// Synthetic 合成流量样本的配置项
type Synthetic struct {
	Days        int     `yaml:"days"`                   // 生成的天数
	Seed        uint64  `yaml:"seed,omitempty"`         // 随机数种子
	MissingRate float64 `yaml:"missing_rate,omitempty"` // 检测器失效的概率，失效样本饱和流率记为0
}

// Input 指定全部输入数据的配置项
type Input struct {
	URI       string     `yaml:"uri,omitempty"`       // MongoDB连接字符串
	Flow      InputPath  `yaml:"flow,omitempty"`      // 流量样本
	Junctions InputPath  `yaml:"junctions"`           // 路口配置
	Synthetic *Synthetic `yaml:"synthetic,omitempty"` // 不为空时生成合成样本而不读取流量样本
}

// Output 输出配置项
type Output struct {
	File    string     `yaml:"file,omitempty"`    // YAML结果文件
	Mongo   *InputPath `yaml:"mongo,omitempty"`   // 结果写入的MongoDB集合
	Metrics string     `yaml:"metrics,omitempty"` // Prometheus文本格式指标文件
}

// Webster Webster算法配置
type Webster struct {
	CoverageQuantile float64 `yaml:"coverage_quantile,omitempty"` // 场景覆盖分位点
}

// Segment 时段聚类配置
type Segment struct {
	MaxClusters int     `yaml:"max_clusters,omitempty"` // 每个(日计划,时段,方案)最多的方案数
	MinInterval float64 `yaml:"min_interval,omitempty"` // 一个方案的最短持续时间（分钟）
}

// Search 分支定界搜索配置
type Search struct {
	Step                 float64 `yaml:"step,omitempty"`                   // 阶段时长与周期的搜索步长（秒）
	MaxNodes             int     `yaml:"max_nodes,omitempty"`              // 单次阶段搜索最多扩展的节点数，0为不限制
	Timeout              float64 `yaml:"timeout,omitempty"`                // 单个时间片的搜索时限（秒），0为不限制
	ProvisionalCap       bool    `yaml:"provisional_cap,omitempty"`        // 阶段时长搜索上界额外受暂定时长约束（更快，可能错过最优）
	ExhaustiveCycleLimit int     `yaml:"exhaustive_cycle_limit,omitempty"` // 候选周期数不超过该值时遍历全部周期
}

// Control 配时计算控制配置
type Control struct {
	Algorithm   string  `yaml:"algorithm"`              // webster | bnb | both
	Interval    float64 `yaml:"interval,omitempty"`     // 时间片长度（分钟）
	StartLoss   float64 `yaml:"start_loss,omitempty"`   // 每个阶段的启动损失时间（秒）
	Webster     Webster `yaml:"webster,omitempty"`      // Webster算法
	Segment     Segment `yaml:"segment,omitempty"`      // 时段聚类
	Search      Search  `yaml:"search,omitempty"`       // 分支定界搜索
	JunctionIDs []int32 `yaml:"junction_ids,omitempty"` // 参与计算的路口，为空则全部
}

// Config YAML配置文件的根结构
type Config struct {
	Input   Input   `yaml:"input"`   // 输入
	Output  Output  `yaml:"output"`  // 输出
	Control Control `yaml:"control"` // 计算过程控制
}
