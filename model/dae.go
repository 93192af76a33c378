package model

import (
	"fmt"
	"math"
	"math/rand"
)

func init() {
	RegisterContentModel("dae", NewDAE)
}

// DAE 是去噪自编码的内容模型变体（"dae"）。
//
// 与 VAE 的差异：
//   - 无方差头、无 KL 项，不实现 BetaSetter
//   - 训练期对词袋输入做随机丢弃（去噪），验证期走完整输入
type DAE struct {
	wMu, bMu *Param
	wDec     *Param
	bDec     *Param

	vocab   int
	dim     int
	dropout float64
}

// NewDAE 创建 DAE 内容模型。
func NewDAE(cfg ContentConfig) (ContentModel, error) {
	if cfg.VocabSize <= 0 || cfg.EmbedDim <= 0 {
		return nil, fmt.Errorf("dae: vocab size and embed dim must be positive, got %d/%d", cfg.VocabSize, cfg.EmbedDim)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	scale := 1 / math.Sqrt(float64(cfg.EmbedDim))
	return &DAE{
		wMu:     NewParam("item_tower.w_mu", cfg.VocabSize, cfg.EmbedDim, scale, rng),
		bMu:     NewZeroParam("item_tower.b_mu", 1, cfg.EmbedDim),
		wDec:    NewParam("item_tower.w_dec", cfg.EmbedDim, cfg.VocabSize, scale, rng),
		bDec:    NewZeroParam("item_tower.b_dec", 1, cfg.VocabSize),
		vocab:   cfg.VocabSize,
		dim:     cfg.EmbedDim,
		dropout: 0.5,
	}, nil
}

func (m *DAE) Name() string { return "dae" }

// EmbedDim 返回嵌入维度。
func (m *DAE) EmbedDim() int { return m.dim }

// Parameters 返回全部参数。
func (m *DAE) Parameters() []*Param {
	return []*Param{m.wMu, m.bMu, m.wDec, m.bDec}
}

// Embed 返回物品嵌入（完整输入，不加噪）。
func (m *DAE) Embed(bag *Bag) []float64 {
	out := make([]float64, m.dim)
	copy(out, m.bMu.Row(0))
	for k, t := range bag.Idx {
		x := bag.X[k]
		row := m.wMu.Row(t)
		for j := 0; j < m.dim; j++ {
			out[j] += x * row[j]
		}
	}
	return out
}

// BackpropEmbedding 把外部对嵌入的梯度反传进编码器。
func (m *DAE) BackpropEmbedding(bag *Bag, grad []float64) {
	bGrad := m.bMu.GradRow(0)
	for j := 0; j < m.dim; j++ {
		bGrad[j] += grad[j]
	}
	for k, t := range bag.Idx {
		x := bag.X[k]
		row := m.wMu.GradRow(t)
		for j := 0; j < m.dim; j++ {
			row[j] += x * grad[j]
		}
	}
}

// Loss 计算去噪重构损失，gradScale > 0 时累积梯度。
func (m *DAE) Loss(bag *Bag, gradScale float64, rng *rand.Rand) float64 {
	// 训练期输入丢弃；keep[k]=0 表示该 token 被丢弃
	keep := make([]float64, len(bag.Idx))
	inv := 1.0
	if gradScale > 0 && m.dropout > 0 {
		inv = 1 / (1 - m.dropout)
		for k := range keep {
			if rng.Float64() >= m.dropout {
				keep[k] = 1
			}
		}
	} else {
		for k := range keep {
			keep[k] = 1
		}
	}

	z := make([]float64, m.dim)
	copy(z, m.bMu.Row(0))
	for k, t := range bag.Idx {
		x := bag.X[k] * keep[k] * inv
		if x == 0 {
			continue
		}
		row := m.wMu.Row(t)
		for j := 0; j < m.dim; j++ {
			z[j] += x * row[j]
		}
	}

	logits := make([]float64, m.vocab)
	copy(logits, m.bDec.Row(0))
	for j := 0; j < m.dim; j++ {
		zj := z[j]
		row := m.wDec.Row(j)
		for v := 0; v < m.vocab; v++ {
			logits[v] += zj * row[v]
		}
	}
	logZ := logSumExp(logits)

	total := bag.Total
	if total < 1 {
		total = 1
	}
	var recon float64
	for k, t := range bag.Idx {
		recon += bag.Cnt[k] * (logZ - logits[t])
	}
	recon /= total

	if gradScale == 0 {
		return recon
	}

	// logZ 在损失里以 bag.Total/total 的权重出现（空词袋时为 0），
	// softmax 项按同一权重缩放
	mass := bag.Total / total
	dLogits := make([]float64, m.vocab)
	for v := 0; v < m.vocab; v++ {
		dLogits[v] = gradScale * mass * math.Exp(logits[v]-logZ)
	}
	for k, t := range bag.Idx {
		dLogits[t] -= gradScale * bag.Cnt[k] / total
	}

	dz := make([]float64, m.dim)
	bDecGrad := m.bDec.GradRow(0)
	for j := 0; j < m.dim; j++ {
		row := m.wDec.Row(j)
		gRow := m.wDec.GradRow(j)
		zj := z[j]
		var acc float64
		for v := 0; v < m.vocab; v++ {
			acc += dLogits[v] * row[v]
			gRow[v] += dLogits[v] * zj
		}
		dz[j] = acc
	}
	for v := 0; v < m.vocab; v++ {
		bDecGrad[v] += dLogits[v]
	}

	bGrad := m.bMu.GradRow(0)
	for j := 0; j < m.dim; j++ {
		bGrad[j] += dz[j]
	}
	for k, t := range bag.Idx {
		x := bag.X[k] * keep[k] * inv
		if x == 0 {
			continue
		}
		row := m.wMu.GradRow(t)
		for j := 0; j < m.dim; j++ {
			row[j] += x * dz[j]
		}
	}
	return recon
}

// encoderRow 暴露编码权重给解释器（只读）。
func (m *DAE) encoderRow(t int) []float64 { return m.wMu.Row(t) }
