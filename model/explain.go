package model

import (
	"math"
	"sort"
)

// Attribution 是单个 token 对物品嵌入的贡献。
type Attribution struct {
	Token  int     // token id
	Weight float64 // 沿嵌入方向的投影贡献，已按输入特征加权
}

// encoderWeights 是解释器需要的可选能力：暴露均值头的行向量。
type encoderWeights interface {
	encoderRow(t int) []float64
}

// Explainer 把物品嵌入拆解到输入 token 上：
// token t 的贡献 = x_t * <W_mu[t], e> / ||e||，e 为该物品当前嵌入。
// 贡献按绝对值降序返回，用于下游可解释性展示。
type Explainer struct {
	tower *ItemTower
}

func newExplainer(t *ItemTower) *Explainer {
	return &Explainer{tower: t}
}

// Explain 返回物品 i 的 token 归因列表（绝对值降序）。
// 内容模型不暴露编码权重时返回 nil。
func (e *Explainer) Explain(i int) []Attribution {
	enc, ok := e.tower.content.(encoderWeights)
	if !ok {
		return nil
	}

	emb := e.tower.Embed(i)
	var norm float64
	for _, v := range emb {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return nil
	}

	bag := e.tower.bags[i]
	out := make([]Attribution, 0, len(bag.Idx))
	for k, t := range bag.Idx {
		row := enc.encoderRow(t)
		var dot float64
		for j, v := range emb {
			dot += row[j] * v
		}
		out = append(out, Attribution{Token: t, Weight: bag.X[k] * dot / norm})
	}
	sort.Slice(out, func(a, b int) bool {
		return math.Abs(out[a].Weight) > math.Abs(out[b].Weight)
	})
	return out
}
