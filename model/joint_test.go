package model

import (
	"math"
	"math/rand"
	"testing"

	"github.com/zhuotongchen/crowd-coachable-recommendations/core"
)

func testJointModel(t *testing.T, hp Hyperparams) *JointModel {
	t.Helper()
	inputs := &core.TokenBatch{
		IDs: [][]int{
			{1, 2, 0},
			{3, 0, 0},
			{2, 4, 5},
			{1, 5, 0},
		},
		Mask: [][]int{
			{1, 1, 0},
			{1, 0, 0},
			{1, 1, 1},
			{1, 1, 0},
		},
	}
	m, err := NewJointModel(inputs, 6, 3, hp)
	if err != nil {
		t.Fatalf("NewJointModel() error = %v", err)
	}
	m.SetTrainingData(2, 1, &core.Interactions{})
	return m
}

func testJointBatch() Batch {
	return Batch{
		Edges: []core.Edge{
			{User: 0, Item: 1, Weight: 1},
			{User: 2, Item: 3, Weight: 1},
		},
		Items: []int{0, 1, 2, 3},
	}
}

// alpha=0 时混合损失只剩内容流（按循环常数归一）。
func TestJointModel_AlphaZero(t *testing.T) {
	m := testJointModel(t, Hyperparams{Alpha: 0, Beta: 0.1, NNegatives: 2, EmbedDim: 3, Seed: 7})
	b := testJointBatch()

	got, err := m.ValidationStep(b, 0)
	if err != nil {
		t.Fatalf("ValidationStep() error = %v", err)
	}
	ct := m.tower.Loss(b.Items, 0, nil)
	want := ct / m.ctCycles
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("blended loss = %v, want content-only %v", got, want)
	}
}

// alpha=1 时混合损失只剩排序流。
func TestJointModel_AlphaOne(t *testing.T) {
	m := testJointModel(t, Hyperparams{Alpha: 1, Beta: 0.1, NNegatives: 2, EmbedDim: 3, Seed: 7})
	b := testJointBatch()

	m.rng = rand.New(rand.NewSource(31))
	got, err := m.ValidationStep(b, 0)
	if err != nil {
		t.Fatalf("ValidationStep() error = %v", err)
	}
	ft, err := m.ranking.Step(b.Edges, 0, true, rand.New(rand.NewSource(31)))
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	want := ft / m.ftCycles
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("blended loss = %v, want ranking-only %v", got, want)
	}
}

// 中间 alpha 的混合公式：(1-alpha)/ct_cycles * ct + alpha/ft_cycles * ft。
func TestJointModel_BlendFormula(t *testing.T) {
	m := testJointModel(t, Hyperparams{Alpha: 0.3, Beta: 0.1, NNegatives: 2, EmbedDim: 3, Seed: 7})
	b := testJointBatch()

	m.rng = rand.New(rand.NewSource(13))
	got, err := m.ValidationStep(b, 0)
	if err != nil {
		t.Fatalf("ValidationStep() error = %v", err)
	}

	ft, err := m.ranking.Step(b.Edges, 0, true, rand.New(rand.NewSource(13)))
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	ct := m.tower.Loss(b.Items, 0, nil)
	want := (1-0.3)/m.ctCycles*ct + 0.3/m.ftCycles*ft
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("blended loss = %v, want %v", got, want)
	}
}

// 验证步不得累积任何梯度。
func TestJointModel_ValidationNoGradients(t *testing.T) {
	m := testJointModel(t, Hyperparams{Alpha: 0.5, Beta: 0.1, NNegatives: 2, EmbedDim: 3, Seed: 7})
	b := testJointBatch()

	m.ZeroGrad()
	if _, err := m.ValidationStep(b, 0); err != nil {
		t.Fatalf("ValidationStep() error = %v", err)
	}
	for _, p := range m.Parameters() {
		for i, g := range p.Grad {
			if g != 0 {
				t.Fatalf("%s[%d]: validation accumulated gradient %v", p.Name, i, g)
			}
		}
	}
}

// 训练步在 0 < alpha < 1 时两条流都要有梯度流入。
func TestJointModel_TrainingGradientsFlow(t *testing.T) {
	m := testJointModel(t, Hyperparams{Alpha: 0.5, Beta: 0.1, NNegatives: 2, EmbedDim: 3, Seed: 7})
	b := testJointBatch()

	m.ZeroGrad()
	if _, err := m.TrainingStep(b, 0); err != nil {
		t.Fatalf("TrainingStep() error = %v", err)
	}
	nonZero := func(name string) bool {
		for _, p := range m.Parameters() {
			if p.Name != name {
				continue
			}
			for _, g := range p.Grad {
				if g != 0 {
					return true
				}
			}
		}
		return false
	}
	if !nonZero("ranking.user_embedding") {
		t.Error("no gradient reached the user embedding table")
	}
	if !nonZero("item_tower.w_mu") {
		t.Error("no gradient reached the shared encoder head")
	}
	if !nonZero("item_tower.w_dec") {
		t.Error("no gradient reached the decoder")
	}
}

func TestJointModel_FreezeAndNumTrainable(t *testing.T) {
	m := testJointModel(t, Hyperparams{NNegatives: 1, EmbedDim: 3, Seed: 7})
	if m.NumTrainable() == 0 {
		t.Fatal("fresh model reports zero trainable parameters")
	}
	m.Freeze()
	if got := m.NumTrainable(); got != 0 {
		t.Errorf("NumTrainable() after Freeze = %d, want 0", got)
	}
}

func TestJointModel_UnknownVariant(t *testing.T) {
	inputs := &core.TokenBatch{IDs: [][]int{{1}}, Mask: [][]int{{1}}}
	_, err := NewJointModel(inputs, 6, 1, Hyperparams{Variant: "transformer-xl", NNegatives: 1, EmbedDim: 3})
	if err == nil {
		t.Fatal("expected fail-fast error for unregistered variant")
	}
}

func TestJointModel_StateDictRoundTrip(t *testing.T) {
	hp := Hyperparams{Alpha: 0.5, NNegatives: 1, EmbedDim: 3, Seed: 7}
	src := testJointModel(t, hp)
	dst := testJointModel(t, Hyperparams{Alpha: 0.5, NNegatives: 1, EmbedDim: 3, Seed: 99})

	if err := dst.LoadStateDict(src.StateDict(), true); err != nil {
		t.Fatalf("LoadStateDict() error = %v", err)
	}
	for i := 0; i < src.NumItems(); i++ {
		a, b := src.ItemEmbedding(i), dst.ItemEmbedding(i)
		for j := range a {
			if a[j] != b[j] {
				t.Fatalf("item %d embedding differs after state dict load", i)
			}
		}
	}
}
