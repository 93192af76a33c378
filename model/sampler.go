package model

import (
	"fmt"
	"math"
	"math/rand"
)

// PriorTransform 是作用在先验分数上的纯单调变换，在推导采样权重之前应用。
// 默认恒等；常用的数值稳定变换见 LogClipPrior。
type PriorTransform func(prior []float64) []float64

// IdentityPrior 恒等变换。
func IdentityPrior(prior []float64) []float64 { return prior }

// LogClipPrior 返回变换 log(clip(prior + 1/numItems, 0, +inf))。
// 加 1/numItems 抬底避免 log(0)，下界截断避免负概率，再进对数域保证数值稳定。
func LogClipPrior(numItems int) PriorTransform {
	floor := 1 / float64(numItems)
	return func(prior []float64) []float64 {
		out := make([]float64, len(prior))
		for i, p := range prior {
			v := p + floor
			if v < 0 {
				v = 0
			}
			out[i] = math.Log(v)
		}
		return out
	}
}

// NegativeSampler 把先验/后验分数转为负采样分布。
//
// 采样策略（两个独立开关，各带强度）：
//   - SampleWithPrior: 使用变换后的先验分数作为采样 logits
//   - PosteriorWeight: 以该权重混入模型当前后验（softmax 后线性混合）
//   - 都关闭时退化为均匀采样
//
// Replacement 控制同一三元组的负例集合内是否允许重复物品。
type NegativeSampler struct {
	N               int
	Replacement     bool
	SampleWithPrior bool
	PosteriorWeight float64

	priorProbs []float64 // 变换并归一化后的先验分布；nil 表示未设置
}

// NewNegativeSampler 创建负采样器。
func NewNegativeSampler(n int, replacement, sampleWithPrior bool, posteriorWeight float64) *NegativeSampler {
	return &NegativeSampler{
		N:               n,
		Replacement:     replacement,
		SampleWithPrior: sampleWithPrior,
		PosteriorWeight: posteriorWeight,
	}
}

// SetPrior 应用先验变换并预计算采样分布（softmax over 变换后 logits）。
// fcn 为 nil 时取恒等变换。
func (s *NegativeSampler) SetPrior(prior []float64, fcn PriorTransform) {
	if fcn == nil {
		fcn = IdentityPrior
	}
	logits := fcn(prior)
	s.priorProbs = softmaxProbs(logits)
}

// Sample 为一个 (anchor, positive) 对采样 n 个负例物品下标。
// posterior 为该 anchor 对全部物品的当前模型分数；PosteriorWeight > 0 时参与混合。
// Replacement=false 时保证负例互不重复且不含 positive。
//
// 正例的概率在采样前被置零并重归一（不用拒绝采样：拒绝采样在
// 全部质量落在正例上时不会终止）。剩余质量耗尽时报错。
func (s *NegativeSampler) Sample(numItems, positive, n int, posterior []float64, rng *rand.Rand) ([]int, error) {
	if n <= 0 {
		return nil, nil
	}
	if !s.Replacement && n > numItems-1 {
		return nil, fmt.Errorf("model: cannot sample %d distinct negatives from %d items", n, numItems)
	}

	probs := s.mixedProbs(numItems, posterior)
	if positive >= 0 && positive < numItems {
		probs[positive] = 0
	}
	var mass float64
	for _, p := range probs {
		mass += p
	}

	out := make([]int, 0, n)
	for len(out) < n {
		j := -1
		if mass > 0 {
			j = drawCategorical(probs, mass, rng)
		}
		if j < 0 {
			return nil, fmt.Errorf("model: no sampling mass outside the positive item (%d of %d negatives drawn)", len(out), n)
		}
		out = append(out, j)
		if !s.Replacement {
			mass -= probs[j]
			probs[j] = 0
		}
	}
	return out, nil
}

// mixedProbs 组合均匀/先验/后验分布。
func (s *NegativeSampler) mixedProbs(numItems int, posterior []float64) []float64 {
	base := make([]float64, numItems)
	if s.SampleWithPrior && len(s.priorProbs) == numItems {
		copy(base, s.priorProbs)
	} else {
		u := 1 / float64(numItems)
		for i := range base {
			base[i] = u
		}
	}

	if s.PosteriorWeight > 0 && len(posterior) == numItems {
		post := softmaxProbs(posterior)
		p := s.PosteriorWeight
		for i := range base {
			base[i] = (1-p)*base[i] + p*post[i]
		}
	}
	return base
}

func softmaxProbs(logits []float64) []float64 {
	max := math.Inf(-1)
	for _, v := range logits {
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(v - max)
		sum += out[i]
	}
	if sum == 0 {
		u := 1 / float64(len(logits))
		for i := range out {
			out[i] = u
		}
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// drawCategorical 按未归一化的 probs 采样一个下标（mass 为其总和）。
// 概率为零的下标永不返回；全部为零时返回 -1。
func drawCategorical(probs []float64, mass float64, rng *rand.Rand) int {
	r := rng.Float64() * mass
	var cum float64
	last := -1
	for i, p := range probs {
		if p <= 0 {
			continue
		}
		cum += p
		last = i
		if r < cum {
			return i
		}
	}
	return last
}
