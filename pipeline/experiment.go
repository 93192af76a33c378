package pipeline

import (
	"context"

	"github.com/zhuotongchen/crowd-coachable-recommendations/core"
	"github.com/zhuotongchen/crowd-coachable-recommendations/store"
	"github.com/zhuotongchen/crowd-coachable-recommendations/train"
)

// Experiment 把编排器、可选的向量导出器与评估参数捆成一次完整实验。
type Experiment struct {
	Orch    *train.Orchestrator
	Catalog *core.Catalog
	// Exporter 非 nil 时，拟合成功后把物品向量发布到存储
	Exporter *store.EmbeddingExporter
	// TopK 是评估截断位置，缺省 10
	TopK int
}

// Result 是一次实验的产出。
type Result struct {
	// Scores 是重排分数：模型分数加上数据集先验
	Scores  [][]float64
	Metrics Metrics
}

// Run 执行完整实验：校验数据集、拟合、打分（模型分 + 先验）、评估、导出。
//
// 约定：目标矩阵必须有正例，校验在任何训练资源分配之前完成。
func (e *Experiment) Run(ctx context.Context, v *core.Interactions) (*Result, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}

	if err := e.Orch.Fit(ctx, v); err != nil {
		return nil, err
	}

	scores, err := e.Orch.Transform(ctx, v)
	if err != nil {
		return nil, err
	}
	for _, row := range scores {
		for i := range row {
			row[i] += v.Prior[i]
		}
	}

	result := &Result{
		Scores:  scores,
		Metrics: Evaluate(scores, v.Target, e.TopK),
	}

	if e.Exporter != nil && e.Catalog != nil {
		embeddings, err := e.Orch.ItemEmbeddings()
		if err != nil {
			return nil, err
		}
		if err := e.Exporter.Export(ctx, e.Catalog, embeddings); err != nil {
			return nil, err
		}
	}
	return result, nil
}
