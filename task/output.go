package task

import (
	"context"
	"fmt"
	"os"
	"time"

	"git.fiblab.net/general/common/v2/mongoutil"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/utils/metrics"
	"go.mongodb.org/mongo-driver/bson"
	"gopkg.in/yaml.v2"
)

// failureDoc 优化失败的时间片
type failureDoc struct {
	Bucket entity.BucketKey `yaml:"bucket" bson:"bucket"`
	Reason string           `yaml:"reason" bson:"reason"`
}

// resultDoc 单个(路口,算法)的输出文档
type resultDoc struct {
	Job                   string `yaml:"job" bson:"job"`
	entity.JunctionResult `yaml:",inline" bson:",inline"`
	Failed                []failureDoc `yaml:"failures,omitempty" bson:"failures,omitempty"`
}

// outputFile YAML结果文件的根结构
type outputFile struct {
	Job       string      `yaml:"job"`
	CreatedAt string      `yaml:"created_at"`
	Results   []resultDoc `yaml:"results"`
}

func (ctx *Context) documents(results []*entity.JunctionResult) []resultDoc {
	return lo.Map(results, func(r *entity.JunctionResult, _ int) resultDoc {
		return resultDoc{
			Job:            ctx.job,
			JunctionResult: *r,
			Failed: lo.Map(r.Failures, func(f *entity.OptimizationFailure, _ int) failureDoc {
				return failureDoc{Bucket: f.Bucket, Reason: f.Err.Error()}
			}),
		}
	})
}

// writeOutput 写出结果
// 功能：按配置写YAML文件、MongoDB集合与Prometheus指标文件，未配置的输出跳过
// 说明：MongoDB中先删除同名任务的旧结果再插入
func (ctx *Context) writeOutput(c context.Context, results []*entity.JunctionResult) error {
	out := ctx.runtimeConfig.All.Output
	docs := ctx.documents(results)
	if out.File != "" {
		data, err := yaml.Marshal(outputFile{
			Job:       ctx.job,
			CreatedAt: time.Now().Format(time.RFC3339),
			Results:   docs,
		})
		if err != nil {
			return err
		}
		if err := os.WriteFile(out.File, data, 0o644); err != nil {
			return err
		}
		log.Infof("write %d results to %s", len(docs), out.File)
	}
	if out.Mongo != nil && len(docs) > 0 {
		client := mongoutil.NewClient(ctx.runtimeConfig.All.Input.URI)
		defer client.Disconnect(context.Background())
		coll := mongoutil.GetMongoColl(client, *out.Mongo)
		if _, err := coll.DeleteMany(c, bson.M{"job": ctx.job}); err != nil {
			return fmt.Errorf("failed to clean %s.%s: %w", out.Mongo.DB, out.Mongo.Col, err)
		}
		if _, err := coll.InsertMany(c, lo.ToAnySlice(docs)); err != nil {
			return fmt.Errorf("failed to insert into %s.%s: %w", out.Mongo.DB, out.Mongo.Col, err)
		}
		log.Infof("write %d results to %s.%s", len(docs), out.Mongo.DB, out.Mongo.Col)
	}
	if out.Metrics != "" {
		if err := metrics.WriteTextfile(out.Metrics); err != nil {
			return err
		}
		log.Infof("write metrics to %s", out.Metrics)
	}
	return nil
}
