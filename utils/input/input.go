package input

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"git.fiblab.net/general/common/v2/mongoutil"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/utils/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/yaml.v2"
)

var ErrInvalidSample = errors.New("invalid flow sample")

// Input 输入数据
// 功能：存储配时计算所需的路口配置与流量样本
type Input struct {
	Junctions []entity.JunctionConfig
	Samples   []entity.FlowSample
}

// Init 加载输入数据
// 功能：根据配置从文件或MongoDB加载路口配置与流量样本，或生成合成样本
// 参数：ctx-取消控制，rc-运行时配置
// 返回：输入数据；读取或解析失败时返回错误
// 算法说明：
// 1. 配置了数据库连接时建立MongoDB客户端，结束后断开
// 2. 路口配置：文件优先，其次数据库；只保留被选中的路口
// 3. 流量样本：配置了合成参数时由路口配置生成，否则文件优先，其次数据库
// 4. 样本校验：非法样本记录日志后剔除，未被选中路口的样本直接丢弃
func Init(ctx context.Context, rc *config.RuntimeConfig) (*Input, error) {
	in := rc.All.Input
	var client *mongo.Client
	if in.URI != "" {
		client = mongoutil.NewClient(in.URI)
		defer client.Disconnect(context.Background())
	}
	filter := bson.M{}
	if len(rc.C.JunctionIDs) > 0 {
		filter = bson.M{"id": bson.M{"$in": rc.C.JunctionIDs}}
	}
	junctions, err := load[entity.JunctionConfig](ctx, client, in.Junctions, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load junctions: %w", err)
	}
	junctions = lo.Filter(junctions, func(c entity.JunctionConfig, _ int) bool { return rc.Selected(c.ID) })
	res := &Input{Junctions: junctions}

	if in.Synthetic != nil {
		res.Samples = Synthesize(junctions, *in.Synthetic, rc.C.Interval)
		log.Infof("synthesized %d flow samples for %d junctions", len(res.Samples), len(junctions))
		return res, nil
	}
	if len(rc.C.JunctionIDs) > 0 {
		filter = bson.M{"junction_id": bson.M{"$in": rc.C.JunctionIDs}}
	}
	samples, err := load[entity.FlowSample](ctx, client, in.Flow, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load flow samples: %w", err)
	}
	res.Samples = FilterSamples(samples, rc.Selected)
	return res, nil
}

// load 从YAML文件或MongoDB集合读取文档列表
func load[T any](ctx context.Context, client *mongo.Client, path config.InputPath, filter bson.M) ([]T, error) {
	res := make([]T, 0)
	if path.File != "" {
		data, err := os.ReadFile(path.File)
		if err != nil {
			return nil, err
		}
		if err := yaml.UnmarshalStrict(data, &res); err != nil {
			return nil, fmt.Errorf("%s: %w", path.File, err)
		}
		log.Infof("load %d records from %s", len(res), path.File)
		return res, nil
	}
	if client == nil {
		return nil, fmt.Errorf("no uri for %s.%s", path.DB, path.Col)
	}
	log.Infof("start fetching from %s.%s", path.DB, path.Col)
	coll := mongoutil.GetMongoColl(client, path)
	cursor, err := coll.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 0}))
	if err != nil {
		return nil, err
	}
	if err := cursor.All(ctx, &res); err != nil {
		return nil, err
	}
	log.Infof("finish fetching %d records from %s.%s", len(res), path.DB, path.Col)
	return res, nil
}

// ValidateSample 检查单个样本
// 说明：时间必须为HH:MM；流率不得为负；相位标识必须可解析。饱和流率为0的样本由算法剔除，这里不处理
func ValidateSample(s entity.FlowSample) error {
	if _, err := time.Parse("15:04", s.Time); err != nil || len(s.Time) != 5 {
		return fmt.Errorf("%w: bad time %q", ErrInvalidSample, s.Time)
	}
	if s.FlowRate < 0 {
		return fmt.Errorf("%w: negative flow rate %v", ErrInvalidSample, s.FlowRate)
	}
	if s.SaturationFlow < 0 {
		return fmt.Errorf("%w: negative saturation flow %v", ErrInvalidSample, s.SaturationFlow)
	}
	if _, err := entity.ParsePhaseRef(s.Phase); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSample, err)
	}
	return nil
}

// FilterSamples 剔除非法样本与未被选中路口的样本
// 参数：samples-原始样本，selected-路口是否参与计算
// 返回：保留的样本（保持原顺序）
func FilterSamples(samples []entity.FlowSample, selected func(int32) bool) []entity.FlowSample {
	res := make([]entity.FlowSample, 0, len(samples))
	invalid := 0
	for _, s := range samples {
		if !selected(s.JunctionID) {
			continue
		}
		if err := ValidateSample(s); err != nil {
			invalid++
			log.Debugf("ignore sample of junction %d at %s %s: %v", s.JunctionID, s.Date, s.Time, err)
			continue
		}
		res = append(res, s)
	}
	if invalid > 0 {
		log.Warnf("ignore %d invalid flow samples", invalid)
	}
	return res
}
