package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/zhuotongchen/crowd-coachable-recommendations/core"
)

// RankingObjective 是成对排序目标（BPR）。
//
// 核心思想：
//   - 用户侧为自由嵌入表，物品侧复用内容塔的共享嵌入
//   - 每条训练边 (user, item, weight) 现场采样 n 个负例构成三元组
//   - 损失 = -weight * mean_k log sigmoid(s_pos - s_neg_k)
//
// 训练/验证共用同一条路径，仅负例数量不同（n_negatives vs valid_n_negatives）。
type RankingObjective struct {
	users *Param

	nNeg, validNNeg int
	sampler         *NegativeSampler
	data            *core.Interactions
	tower           *ItemTower
}

// NewRankingObjective 创建排序目标。用户嵌入表随机初始化。
func NewRankingObjective(numUsers, dim int, nNeg, validNNeg int, tower *ItemTower, seed int64) *RankingObjective {
	rng := rand.New(rand.NewSource(seed))
	return &RankingObjective{
		users:     NewParam("ranking.user_embedding", numUsers, dim, 1/math.Sqrt(float64(dim)), rng),
		nNeg:      nNeg,
		validNNeg: validNNeg,
		tower:     tower,
		sampler:   NewNegativeSampler(nNeg, true, false, 0),
	}
}

// SetTrainingData 绑定交互数据集与负采样器。
func (r *RankingObjective) SetTrainingData(v *core.Interactions, sampler *NegativeSampler) {
	r.data = v
	if sampler != nil {
		r.sampler = sampler
	}
}

// Parameters 返回排序侧参数（用户嵌入表）。
func (r *RankingObjective) Parameters() []*Param {
	return []*Param{r.users}
}

// NumUsers 返回用户嵌入表的行数。
func (r *RankingObjective) NumUsers() int { return r.users.Rows }

// Score 返回 (user, item) 的模型分数：用户向量与物品嵌入内积。
func (r *RankingObjective) Score(u, i int) float64 {
	uv := r.users.Row(u)
	iv := r.tower.Embed(i)
	var s float64
	for j := range uv {
		s += uv[j] * iv[j]
	}
	return s
}

// ScoreAll 返回用户 u 对全部物品的分数向量。
func (r *RankingObjective) ScoreAll(u int) []float64 {
	n := r.tower.NumItems()
	out := make([]float64, n)
	uv := r.users.Row(u)
	for i := 0; i < n; i++ {
		iv := r.tower.Embed(i)
		var s float64
		for j := range uv {
			s += uv[j] * iv[j]
		}
		out[i] = s
	}
	return out
}

// Step 对一批训练边计算平均 BPR 损失。
// gradScale > 0 时按该系数累积梯度（用户表 + 经内容塔回传的编码器）；
// validation=true 时使用 valid_n_negatives。
func (r *RankingObjective) Step(edges []core.Edge, gradScale float64, validation bool, rng *rand.Rand) (float64, error) {
	if len(edges) == 0 {
		return 0, nil
	}
	if r.data == nil {
		return 0, fmt.Errorf("model: ranking objective has no training data bound")
	}

	numItems := r.tower.NumItems()
	nNeg := r.nNeg
	if validation {
		nNeg = r.validNNeg
	}

	scale := gradScale / float64(len(edges))
	var total float64
	for _, e := range edges {
		uv := r.users.Row(e.User)
		ep := r.tower.Embed(e.Item)

		var posterior []float64
		if r.sampler.PosteriorWeight > 0 {
			posterior = r.ScoreAll(e.User)
		}
		negs, err := r.sampler.Sample(numItems, e.Item, nNeg, posterior, rng)
		if err != nil {
			return 0, err
		}
		if len(negs) == 0 {
			continue
		}

		sp := dot(uv, ep)
		invK := 1 / float64(len(negs))

		var loss float64
		var du []float64
		var dep []float64
		if scale > 0 {
			du = make([]float64, len(uv))
			dep = make([]float64, len(ep))
		}

		for _, k := range negs {
			ek := r.tower.Embed(k)
			sk := dot(uv, ek)
			delta := sp - sk
			loss += -e.Weight * invK * logSigmoid(delta)

			if scale > 0 {
				// dL/dsp = -w/K * sigmoid(-delta); dL/dsk 相反
				g := e.Weight * invK * sigmoid(-delta)
				dek := make([]float64, len(ek))
				for j := range uv {
					du[j] += scale * g * (ek[j] - ep[j])
					dep[j] += -scale * g * uv[j]
					dek[j] = scale * g * uv[j]
				}
				r.tower.Backprop(k, dek)
			}
		}

		if scale > 0 {
			gu := r.users.GradRow(e.User)
			for j := range gu {
				gu[j] += du[j]
			}
			r.tower.Backprop(e.Item, dep)
		}
		total += loss
	}
	return total / float64(len(edges)), nil
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// logSigmoid 数值稳定的 log(sigmoid(x))。
func logSigmoid(x float64) float64 {
	if x >= 0 {
		return -math.Log1p(math.Exp(-x))
	}
	return x - math.Log1p(math.Exp(x))
}
