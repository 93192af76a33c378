package model

import (
	"math/rand"
	"strings"
	"testing"
)

func TestSupportedVariants(t *testing.T) {
	got := SupportedVariants()
	want := map[string]bool{"vae": false, "dae": false}
	for _, n := range got {
		if _, ok := want[n]; ok {
			want[n] = true
		}
	}
	for n, seen := range want {
		if !seen {
			t.Errorf("variant %q not registered", n)
		}
	}
}

func TestBuildContentModel_Unknown(t *testing.T) {
	_, err := BuildContentModel("gru4rec", ContentConfig{VocabSize: 4, EmbedDim: 2})
	if err == nil {
		t.Fatal("expected error for unknown variant")
	}
	if !strings.Contains(err.Error(), "supported") {
		t.Errorf("error should list supported variants, got %q", err.Error())
	}
}

func TestBuildContentModel_BetaWired(t *testing.T) {
	m, err := BuildContentModel("vae", ContentConfig{VocabSize: 4, EmbedDim: 2, Beta: 0.7, Seed: 1})
	if err != nil {
		t.Fatalf("BuildContentModel() error = %v", err)
	}
	if got := m.(*VAE).beta; got != 0.7 {
		t.Errorf("beta = %v, want 0.7", got)
	}
}

func TestBuildContentModel_InvalidConfig(t *testing.T) {
	if _, err := BuildContentModel("vae", ContentConfig{VocabSize: 0, EmbedDim: 2}); err == nil {
		t.Fatal("expected error for zero vocab size")
	}
}

func TestLoadStateDict_Partial(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a := NewParam("enc.w", 2, 2, 0.5, rng)
	b := NewParam("dec.w", 2, 2, 0.5, rng)
	origB := append([]float64(nil), b.Data...)

	// 只带 enc.w 的权重，外加一个形状不符与一个多余项
	weights := []WeightTensor{
		{Name: "enc.w", Shape: []int{2, 2}, Data: []float64{1, 2, 3, 4}},
		{Name: "dec.w", Shape: []int{3, 3}, Data: make([]float64, 9)},
		{Name: "extra.w", Shape: []int{1, 1}, Data: []float64{9}},
	}

	if err := LoadStateDict([]*Param{a, b}, weights, false); err != nil {
		t.Fatalf("LoadStateDict(strict=false) error = %v", err)
	}
	for i, want := range []float64{1, 2, 3, 4} {
		if a.Data[i] != want {
			t.Errorf("enc.w[%d] = %v, want %v", i, a.Data[i], want)
		}
	}
	for i := range origB {
		if b.Data[i] != origB[i] {
			t.Errorf("dec.w[%d] overwritten by mismatched tensor", i)
		}
	}

	if err := LoadStateDict([]*Param{a, b}, weights, true); err == nil {
		t.Fatal("LoadStateDict(strict=true) should fail on shape mismatch")
	}
}

func TestExplainer_Attributions(t *testing.T) {
	tower := testTower(t)
	ex := tower.ToExplainer()

	attrs := ex.Explain(0)
	if len(attrs) == 0 {
		t.Fatal("expected attributions for item with tokens")
	}
	// 绝对值降序
	for i := 1; i < len(attrs); i++ {
		if abs(attrs[i].Weight) > abs(attrs[i-1].Weight)+1e-12 {
			t.Errorf("attributions not sorted by |weight|: %v", attrs)
		}
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
