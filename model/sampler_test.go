package model

import (
	"math"
	"math/rand"
	"testing"
)

func TestNegativeSampler_WithoutReplacement(t *testing.T) {
	tests := []struct {
		name     string
		numItems int
		positive int
		n        int
	}{
		{"small catalog", 5, 2, 3},
		{"max distinct", 4, 0, 3},
		{"single negative", 10, 9, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewNegativeSampler(tt.n, false, false, 0)
			rng := rand.New(rand.NewSource(42))
			// 多轮采样都满足：无重复、不含正例
			for round := 0; round < 50; round++ {
				negs, err := s.Sample(tt.numItems, tt.positive, tt.n, nil, rng)
				if err != nil {
					t.Fatalf("Sample() error = %v", err)
				}
				if len(negs) != tt.n {
					t.Fatalf("len(negs) = %d, want %d", len(negs), tt.n)
				}
				seen := make(map[int]bool)
				for _, j := range negs {
					if j == tt.positive {
						t.Errorf("negative set contains positive item %d", j)
					}
					if seen[j] {
						t.Errorf("duplicate negative %d with replacement=false", j)
					}
					seen[j] = true
					if j < 0 || j >= tt.numItems {
						t.Errorf("negative %d out of range", j)
					}
				}
			}
		})
	}
}

func TestNegativeSampler_TooManyDistinct(t *testing.T) {
	s := NewNegativeSampler(5, false, false, 0)
	if _, err := s.Sample(4, 0, 5, nil, rand.New(rand.NewSource(1))); err == nil {
		t.Fatal("expected error when n > numItems-1 without replacement")
	}
}

func TestNegativeSampler_WithReplacement(t *testing.T) {
	s := NewNegativeSampler(8, true, false, 0)
	rng := rand.New(rand.NewSource(7))
	negs, err := s.Sample(3, 1, 8, nil, rng)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if len(negs) != 8 {
		t.Fatalf("len(negs) = %d, want 8", len(negs))
	}
	for _, j := range negs {
		if j == 1 {
			t.Error("negative set contains positive item")
		}
	}
}

func TestNegativeSampler_PriorBias(t *testing.T) {
	// 物品 0 的先验远大于其它：带先验采样时它应占多数
	prior := []float64{10, 0, 0, 0}
	s := NewNegativeSampler(1, true, true, 0)
	s.SetPrior(prior, nil)

	rng := rand.New(rand.NewSource(11))
	hits := 0
	const rounds = 500
	for i := 0; i < rounds; i++ {
		negs, err := s.Sample(4, 3, 1, nil, rng)
		if err != nil {
			t.Fatalf("Sample() error = %v", err)
		}
		if negs[0] == 0 {
			hits++
		}
	}
	if hits < rounds*8/10 {
		t.Errorf("prior-weighted sampling picked dominant item only %d/%d times", hits, rounds)
	}
}

func TestLogClipPrior(t *testing.T) {
	fcn := LogClipPrior(4) // floor = 0.25
	got := fcn([]float64{0, 0.75, -0.25})
	want := []float64{math.Log(0.25), math.Log(1.0), math.Inf(-1)}
	for i := range want {
		if math.IsInf(want[i], -1) {
			if !math.IsInf(got[i], -1) {
				t.Errorf("got[%d] = %v, want -Inf", i, got[i])
			}
			continue
		}
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	// -Inf logit 经 softmax 后概率应为 0
	s := NewNegativeSampler(1, true, true, 0)
	s.SetPrior([]float64{0, 0.75, -0.25}, fcn)
	if s.priorProbs[2] != 0 {
		t.Errorf("clipped-to-zero prior got probability %v, want 0", s.priorProbs[2])
	}
}

func TestNegativeSampler_SingleItemCatalog(t *testing.T) {
	// 只有正例一个物品可采：必须立刻报错而不是无限循环
	s := NewNegativeSampler(1, true, false, 0)
	if _, err := s.Sample(1, 0, 1, nil, rand.New(rand.NewSource(5))); err == nil {
		t.Fatal("expected error when the positive is the only item")
	}
}

func TestNegativeSampler_AllMassOnPositive(t *testing.T) {
	// LogClipPrior 把其余物品的概率截断为 0，全部质量落在正例上
	s := NewNegativeSampler(1, true, true, 0)
	s.SetPrior([]float64{-1, -1, 5}, LogClipPrior(3))
	if s.priorProbs[0] != 0 || s.priorProbs[1] != 0 {
		t.Fatalf("clipped priors = %v, want zero mass outside item 2", s.priorProbs)
	}
	if _, err := s.Sample(3, 2, 1, nil, rand.New(rand.NewSource(5))); err == nil {
		t.Fatal("expected error when all sampling mass sits on the positive")
	}
}

func TestNegativeSampler_MassExhaustedWithoutReplacement(t *testing.T) {
	// 正例之外只剩一个有质量的物品，却要采两个互异负例
	s := NewNegativeSampler(2, false, true, 0)
	s.SetPrior([]float64{-1, 3, 5}, LogClipPrior(3))
	negs, err := s.Sample(3, 2, 2, nil, rand.New(rand.NewSource(5)))
	if err == nil {
		t.Fatalf("Sample() = %v, want error once the remaining mass is exhausted", negs)
	}
}

func TestNegativeSampler_PosteriorMix(t *testing.T) {
	// 后验强烈偏向物品 2；posteriorWeight=1 时应几乎只采它
	s := NewNegativeSampler(1, true, false, 1.0)
	posterior := []float64{0, 0, 20, 0}
	rng := rand.New(rand.NewSource(3))
	hits := 0
	const rounds = 200
	for i := 0; i < rounds; i++ {
		negs, err := s.Sample(4, 0, 1, posterior, rng)
		if err != nil {
			t.Fatalf("Sample() error = %v", err)
		}
		if negs[0] == 2 {
			hits++
		}
	}
	if hits < rounds*9/10 {
		t.Errorf("posterior sampling picked dominant item only %d/%d times", hits, rounds)
	}
}
