package model

import (
	"math"
	"math/rand"
	"testing"
)

// testBag 构造一个小词袋：token 1 出现两次，token 3 出现一次（词表 6）。
func testBag(t *testing.T) *Bag {
	t.Helper()
	cnt := []float64{2, 1}
	var sq, total float64
	for _, c := range cnt {
		sq += c * c
		total += c
	}
	norm := math.Sqrt(sq)
	x := make([]float64, len(cnt))
	for i, c := range cnt {
		x[i] = c / norm
	}
	return &Bag{Idx: []int{1, 3}, Cnt: cnt, X: x, Total: total}
}

// checkGradients 用中心差分校验解析梯度。
// lossFn 每次调用必须使用同一随机序列（内部重置种子），保证可微的确定性函数。
func checkGradients(t *testing.T, params []*Param, lossFn func() float64) {
	t.Helper()
	const h = 1e-5

	// 数值梯度先算（lossFn 的副作用会污染 Grad，之后统一清零）
	numeric := make([][]float64, len(params))
	for pi, p := range params {
		numeric[pi] = make([]float64, len(p.Data))
		for i := range p.Data {
			orig := p.Data[i]
			p.Data[i] = orig + h
			up := lossFn()
			p.Data[i] = orig - h
			down := lossFn()
			p.Data[i] = orig
			numeric[pi][i] = (up - down) / (2 * h)
		}
	}

	for _, p := range params {
		p.ZeroGrad()
	}
	lossFn()

	for pi, p := range params {
		for i := range p.Grad {
			a, n := p.Grad[i], numeric[pi][i]
			tol := 1e-5 + 1e-3*math.Max(math.Abs(a), math.Abs(n))
			if math.Abs(a-n) > tol {
				t.Errorf("%s[%d]: analytic %.8f vs numeric %.8f", p.Name, i, a, n)
			}
		}
	}
}

func TestVAE_GradientNumeric(t *testing.T) {
	m, err := NewVAE(ContentConfig{VocabSize: 6, EmbedDim: 3, Beta: 0.5, Seed: 1})
	if err != nil {
		t.Fatalf("NewVAE() error = %v", err)
	}
	vae := m.(*VAE)
	bag := testBag(t)

	checkGradients(t, vae.Parameters(), func() float64 {
		return vae.Loss(bag, 1.0, rand.New(rand.NewSource(9)))
	})
}

func TestDAE_GradientNumeric(t *testing.T) {
	m, err := NewDAE(ContentConfig{VocabSize: 6, EmbedDim: 3, Seed: 2})
	if err != nil {
		t.Fatalf("NewDAE() error = %v", err)
	}
	dae := m.(*DAE)
	bag := testBag(t)

	checkGradients(t, dae.Parameters(), func() float64 {
		return dae.Loss(bag, 1.0, rand.New(rand.NewSource(4)))
	})
}

// gradNormSq 返回全部参数梯度的平方和。
func gradNormSq(params []*Param) float64 {
	var sum float64
	for _, p := range params {
		for _, g := range p.Grad {
			sum += g * g
		}
	}
	return sum
}

func TestVAE_EmptyBagZeroGradient(t *testing.T) {
	// 无标题物品的词袋为空：损失为 0，且不能向解码器/编码器漏梯度
	m, err := NewVAE(ContentConfig{VocabSize: 6, EmbedDim: 3, Beta: 0.5, Seed: 1})
	if err != nil {
		t.Fatalf("NewVAE() error = %v", err)
	}
	vae := m.(*VAE)

	loss := vae.Loss(&Bag{}, 1.0, rand.New(rand.NewSource(9)))
	if loss != 0 {
		t.Errorf("empty-bag loss = %v, want 0", loss)
	}
	if g := gradNormSq(vae.Parameters()); g != 0 {
		t.Errorf("empty-bag gradient norm^2 = %v, want 0", g)
	}
}

func TestDAE_EmptyBagZeroGradient(t *testing.T) {
	m, err := NewDAE(ContentConfig{VocabSize: 6, EmbedDim: 3, Seed: 2})
	if err != nil {
		t.Fatalf("NewDAE() error = %v", err)
	}
	dae := m.(*DAE)

	loss := dae.Loss(&Bag{}, 1.0, rand.New(rand.NewSource(4)))
	if loss != 0 {
		t.Errorf("empty-bag loss = %v, want 0", loss)
	}
	if g := gradNormSq(dae.Parameters()); g != 0 {
		t.Errorf("empty-bag gradient norm^2 = %v, want 0", g)
	}
}

func TestVAE_ValidationDeterministic(t *testing.T) {
	m, err := NewVAE(ContentConfig{VocabSize: 6, EmbedDim: 3, Beta: 0.2, Seed: 3})
	if err != nil {
		t.Fatalf("NewVAE() error = %v", err)
	}
	bag := testBag(t)

	// gradScale=0 不采样重参数化噪声，重复调用结果必须一致
	a := m.Loss(bag, 0, rand.New(rand.NewSource(1)))
	b := m.Loss(bag, 0, rand.New(rand.NewSource(99)))
	if a != b {
		t.Errorf("validation loss not deterministic: %v vs %v", a, b)
	}
	if math.IsNaN(a) || math.IsInf(a, 0) {
		t.Errorf("loss not finite: %v", a)
	}
}

func TestVAE_BetaScalesKL(t *testing.T) {
	bag := testBag(t)
	mk := func(beta float64) ContentModel {
		m, err := NewVAE(ContentConfig{VocabSize: 6, EmbedDim: 3, Beta: beta, Seed: 5})
		if err != nil {
			t.Fatalf("NewVAE() error = %v", err)
		}
		return m
	}

	// 同一参数下 loss(beta) = recon + beta*kl，kl > 0 时随 beta 单调
	l0 := mk(0).Loss(bag, 0, nil)
	l1 := mk(1).Loss(bag, 0, nil)
	l2 := mk(2).Loss(bag, 0, nil)
	kl1 := l1 - l0
	kl2 := (l2 - l0) / 2
	if kl1 <= 0 {
		t.Fatalf("kl = %v, want > 0", kl1)
	}
	if math.Abs(kl1-kl2) > 1e-9 {
		t.Errorf("kl not linear in beta: %v vs %v", kl1, kl2)
	}
}
