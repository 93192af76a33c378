package model

import (
	"fmt"
	"math"
	"math/rand"
)

func init() {
	RegisterContentModel("vae", NewVAE)
}

// VAE 是变分自编码的内容模型（默认变体 "vae"）。
//
// 核心思想：
//   - 编码器把标题词袋映射为高斯后验 (mu, logvar)，mu 即共享的物品嵌入
//   - 解码器从重参数化采样 z 重构词袋的多项分布
//   - 损失 = 重构交叉熵 + beta * KL 散度（beta 经 SetBeta 下发）
//
// 工程特征：
//   - 全部前向/反向为手写解析梯度，无自动微分依赖
//   - logvar 截断在 [-10, 10]，避免 exp 溢出
type VAE struct {
	wMu, bMu *Param // 编码均值头
	wLv, bLv *Param // 编码对数方差头
	wDec     *Param // 解码权重 (dim × vocab)
	bDec     *Param // 解码偏置 (vocab)

	vocab int
	dim   int
	beta  float64
}

// NewVAE 创建 VAE 内容模型。
func NewVAE(cfg ContentConfig) (ContentModel, error) {
	if cfg.VocabSize <= 0 || cfg.EmbedDim <= 0 {
		return nil, fmt.Errorf("vae: vocab size and embed dim must be positive, got %d/%d", cfg.VocabSize, cfg.EmbedDim)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	scale := 1 / math.Sqrt(float64(cfg.EmbedDim))
	return &VAE{
		wMu:   NewParam("item_tower.w_mu", cfg.VocabSize, cfg.EmbedDim, scale, rng),
		bMu:   NewZeroParam("item_tower.b_mu", 1, cfg.EmbedDim),
		wLv:   NewParam("item_tower.w_logvar", cfg.VocabSize, cfg.EmbedDim, scale*0.1, rng),
		bLv:   NewZeroParam("item_tower.b_logvar", 1, cfg.EmbedDim),
		wDec:  NewParam("item_tower.w_dec", cfg.EmbedDim, cfg.VocabSize, scale, rng),
		bDec:  NewZeroParam("item_tower.b_dec", 1, cfg.VocabSize),
		vocab: cfg.VocabSize,
		dim:   cfg.EmbedDim,
		beta:  cfg.Beta,
	}, nil
}

func (m *VAE) Name() string { return "vae" }

// EmbedDim 返回嵌入维度。
func (m *VAE) EmbedDim() int { return m.dim }

// SetBeta 设置 KL 正则强度。
func (m *VAE) SetBeta(beta float64) { m.beta = beta }

// Parameters 返回全部参数。
func (m *VAE) Parameters() []*Param {
	return []*Param{m.wMu, m.bMu, m.wLv, m.bLv, m.wDec, m.bDec}
}

// Embed 返回物品嵌入（均值头，不采样）。
func (m *VAE) Embed(bag *Bag) []float64 {
	return m.encode(bag, m.wMu, m.bMu, false)
}

// encode 计算线性头输出；clampOut 用于 logvar 截断。
func (m *VAE) encode(bag *Bag, w, b *Param, clampOut bool) []float64 {
	out := make([]float64, m.dim)
	copy(out, b.Row(0))
	for k, t := range bag.Idx {
		x := bag.X[k]
		row := w.Row(t)
		for j := 0; j < m.dim; j++ {
			out[j] += x * row[j]
		}
	}
	if clampOut {
		for j := range out {
			out[j] = clamp(out[j], -10, 10)
		}
	}
	return out
}

// BackpropEmbedding 把外部（排序目标）对 mu 的梯度反传进均值头。
func (m *VAE) BackpropEmbedding(bag *Bag, grad []float64) {
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

// Loss 计算单个物品的 VAE 损失，gradScale > 0 时累积解析梯度。
func (m *VAE) Loss(bag *Bag, gradScale float64, rng *rand.Rand) float64 {
	mu := m.encode(bag, m.wMu, m.bMu, false)
	lv := m.encode(bag, m.wLv, m.bLv, true)

	// 重参数化：训练期采样，验证期取均值（确定性）
	eps := make([]float64, m.dim)
	z := make([]float64, m.dim)
	for j := 0; j < m.dim; j++ {
		if gradScale > 0 {
			eps[j] = rng.NormFloat64()
		}
		z[j] = mu[j] + eps[j]*math.Exp(0.5*lv[j])
	}

	// 解码为整个词表上的 logits
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

	// 多项重构损失（按 token 总数归一）
	total := bag.Total
	if total < 1 {
		total = 1
	}
	var recon float64
	for k, t := range bag.Idx {
		recon += bag.Cnt[k] * (logZ - logits[t])
	}
	recon /= total

	// KL(q(z|x) || N(0, I))
	var kl float64
	for j := 0; j < m.dim; j++ {
		kl += -0.5 * (1 + lv[j] - mu[j]*mu[j] - math.Exp(lv[j]))
	}

	loss := recon + m.beta*kl
	if gradScale == 0 {
		return loss
	}

	// 反向：softmax 交叉熵。logZ 在损失里以 bag.Total/total 的权重出现
	// （空词袋时为 0），softmax 项按同一权重缩放
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

	// z = mu + eps*exp(0.5*lv) 链式回传 + KL 项
	dMu := make([]float64, m.dim)
	dLv := make([]float64, m.dim)
	for j := 0; j < m.dim; j++ {
		dMu[j] = dz[j] + gradScale*m.beta*mu[j]
		dLv[j] = dz[j]*eps[j]*0.5*math.Exp(0.5*lv[j]) + gradScale*m.beta*0.5*(math.Exp(lv[j])-1)
	}

	m.backpropHead(bag, m.wMu, m.bMu, dMu)
	m.backpropHead(bag, m.wLv, m.bLv, dLv)
	return loss
}

func (m *VAE) backpropHead(bag *Bag, w, b *Param, grad []float64) {
	bGrad := b.GradRow(0)
	for j := 0; j < m.dim; j++ {
		bGrad[j] += grad[j]
	}
	for k, t := range bag.Idx {
		x := bag.X[k]
		row := w.GradRow(t)
		for j := 0; j < m.dim; j++ {
			row[j] += x * grad[j]
		}
	}
}

// decoderRow 暴露解码权重给解释器（只读）。
func (m *VAE) decoderRow(j int) []float64 { return m.wDec.Row(j) }

// encoderRow 暴露均值头权重给解释器（只读）。
func (m *VAE) encoderRow(t int) []float64 { return m.wMu.Row(t) }
