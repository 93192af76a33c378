package model

import (
	"math"
	"math/rand"
	"testing"

	"github.com/zhuotongchen/crowd-coachable-recommendations/core"
)

// testTower 构建一个 4 物品的小内容塔（VAE 变体）。
func testTower(t *testing.T) *ItemTower {
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
	content, err := BuildContentModel("vae", ContentConfig{VocabSize: 6, EmbedDim: 3, Beta: 0.1, Seed: 11})
	if err != nil {
		t.Fatalf("BuildContentModel() error = %v", err)
	}
	tower, err := NewItemTower(content, inputs, 6)
	if err != nil {
		t.Fatalf("NewItemTower() error = %v", err)
	}
	return tower
}

func TestRankingObjective_GradientNumeric(t *testing.T) {
	tower := testTower(t)
	r := NewRankingObjective(2, 3, 2, 2, tower, 21)
	r.SetTrainingData(&core.Interactions{}, NewNegativeSampler(2, true, false, 0))

	edges := []core.Edge{
		{User: 0, Item: 1, Weight: 1},
		{User: 1, Item: 2, Weight: 0.5},
	}

	params := append(tower.Parameters(), r.Parameters()...)
	checkGradients(t, params, func() float64 {
		loss, err := r.Step(edges, 1.0, false, rand.New(rand.NewSource(17)))
		if err != nil {
			t.Fatalf("Step() error = %v", err)
		}
		return loss
	})
}

func TestRankingObjective_Score(t *testing.T) {
	tower := testTower(t)
	r := NewRankingObjective(2, 3, 1, 1, tower, 22)

	// Score 与 ScoreAll 必须一致
	all := r.ScoreAll(0)
	for i := 0; i < tower.NumItems(); i++ {
		if got := r.Score(0, i); math.Abs(got-all[i]) > 1e-12 {
			t.Errorf("Score(0,%d) = %v, ScoreAll = %v", i, got, all[i])
		}
	}
}

func TestRankingObjective_NoDataBound(t *testing.T) {
	tower := testTower(t)
	r := NewRankingObjective(1, 3, 1, 1, tower, 23)
	edges := []core.Edge{{User: 0, Item: 0, Weight: 1}}
	if _, err := r.Step(edges, 0, true, rand.New(rand.NewSource(1))); err == nil {
		t.Fatal("expected error when no training data is bound")
	}
}

func TestRankingObjective_EmptyBatch(t *testing.T) {
	tower := testTower(t)
	r := NewRankingObjective(1, 3, 1, 1, tower, 24)
	loss, err := r.Step(nil, 0, true, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if loss != 0 {
		t.Errorf("empty batch loss = %v, want 0", loss)
	}
}
