// Package feast 提供基于 Feast 在线特征库的物品先验分数来源。
//
// 使用场景：先验分数（曝光统计、人工标注聚合等）由特征工程链路
// 维护在 Feast 里，训练侧拉一份目录级快照喂给负采样与重排。
package feast

import (
	"context"
	"fmt"
	"strconv"

	feastsdk "github.com/feast-dev/feast/sdk/go"
	feasttypes "github.com/feast-dev/feast/sdk/go/protos/feast/types"

	"github.com/zhuotongchen/crowd-coachable-recommendations/core"
)

// PriorProvider 按目录批量拉取物品先验分数。
type PriorProvider struct {
	client  *feastsdk.GrpcClient
	project string
	// Feature 是先验分数特征的全名，如 "item_stats:prior_score"
	Feature string
	// EntityKey 是物品实体键名，缺省 "item_id"
	EntityKey string
}

// NewPriorProvider 创建 Feast gRPC 先验来源。port 为 0 时取 6565。
func NewPriorProvider(host string, port int, project, feature string) (*PriorProvider, error) {
	if feature == "" {
		return nil, fmt.Errorf("feast: feature name is required")
	}
	if port == 0 {
		port = 6565
	}
	client, err := feastsdk.NewGrpcClient(host, port)
	if err != nil {
		return nil, fmt.Errorf("feast: create grpc client: %w", err)
	}
	return &PriorProvider{
		client:    client,
		project:   project,
		Feature:   feature,
		EntityKey: "item_id",
	}, nil
}

// PriorScores 拉取目录内全部物品的先验分数，顺序与目录一致。
// 特征缺失的物品取 0。
func (p *PriorProvider) PriorScores(ctx context.Context, catalog *core.Catalog) ([]float64, error) {
	if catalog.Len() == 0 {
		return nil, nil
	}

	entities := make([]feastsdk.Row, catalog.Len())
	for i := 0; i < catalog.Len(); i++ {
		entities[i] = feastsdk.Row{p.EntityKey: feastsdk.Int64Val(catalog.At(i).ID)}
	}

	resp, err := p.client.GetOnlineFeatures(ctx, &feastsdk.OnlineFeaturesRequest{
		Features: []string{p.Feature},
		Entities: entities,
		Project:  p.project,
	})
	if err != nil {
		return nil, fmt.Errorf("feast: get online features: %w", err)
	}

	rows := resp.Rows()
	if len(rows) != catalog.Len() {
		return nil, fmt.Errorf("feast: response row count mismatch: expected %d, got %d", catalog.Len(), len(rows))
	}

	out := make([]float64, catalog.Len())
	for i, row := range rows {
		if val, ok := row[p.Feature]; ok {
			out[i] = toFloat(val)
		}
	}
	return out, nil
}

// Close 释放客户端。
func (p *PriorProvider) Close() error {
	p.client = nil
	return nil
}

// toFloat 把 SDK 返回的 proto 包装值转为 float64。
// Row 的值类型是 *types.Value（oneof），必须经访问器解包；
// 缺失/未知类型取 0。
func toFloat(val *feasttypes.Value) float64 {
	switch v := val.GetVal().(type) {
	case *feasttypes.Value_DoubleVal:
		return v.DoubleVal
	case *feasttypes.Value_FloatVal:
		return float64(v.FloatVal)
	case *feasttypes.Value_Int64Val:
		return float64(v.Int64Val)
	case *feasttypes.Value_Int32Val:
		return float64(v.Int32Val)
	case *feasttypes.Value_BoolVal:
		if v.BoolVal {
			return 1
		}
		return 0
	case *feasttypes.Value_StringVal:
		if f, err := strconv.ParseFloat(v.StringVal, 64); err == nil {
			return f
		}
		return 0
	default:
		return 0
	}
}
