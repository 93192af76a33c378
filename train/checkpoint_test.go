package train

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zhuotongchen/crowd-coachable-recommendations/model"
)

func testWeights(v float64) []model.WeightTensor {
	return []model.WeightTensor{{Name: "w", Shape: []int{1, 2}, Data: []float64{v, v}}}
}

func TestCheckpointManager_KeepsBestOnly(t *testing.T) {
	root := t.TempDir()
	cm, err := NewCheckpointManager(root, "exp")
	if err != nil {
		t.Fatalf("NewCheckpointManager() error = %v", err)
	}

	if err := cm.Save(0, 1.5, testWeights(1)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	first := cm.BestPath()
	if err := cm.Save(1, 0.8, testWeights(2)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := cm.Save(2, 0.9, testWeights(3)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	best := cm.BestPath()
	if !strings.Contains(best, "epoch=1") {
		t.Errorf("best path = %q, want the epoch=1 snapshot", best)
	}
	if _, err := os.Stat(first); !os.IsNotExist(err) {
		t.Errorf("superseded snapshot %q still on disk", first)
	}

	ckpt, err := LoadCheckpoint(best)
	if err != nil {
		t.Fatalf("LoadCheckpoint() error = %v", err)
	}
	if ckpt.Epoch != 1 || ckpt.ValLoss != 0.8 {
		t.Errorf("loaded epoch=%d val_loss=%v, want 1 / 0.8", ckpt.Epoch, ckpt.ValLoss)
	}
	if ckpt.Weights[0].Data[0] != 2 {
		t.Errorf("loaded weights = %v, want the epoch=1 values", ckpt.Weights[0].Data)
	}
}

func TestCheckpointManager_VersionsIncrement(t *testing.T) {
	root := t.TempDir()
	a, err := NewCheckpointManager(root, "exp")
	if err != nil {
		t.Fatalf("NewCheckpointManager() error = %v", err)
	}
	b, err := NewCheckpointManager(root, "exp")
	if err != nil {
		t.Fatalf("NewCheckpointManager() error = %v", err)
	}

	if !strings.Contains(a.Dir(), "version_0") {
		t.Errorf("first dir = %q, want version_0", a.Dir())
	}
	if !strings.Contains(b.Dir(), "version_1") {
		t.Errorf("second dir = %q, want version_1", b.Dir())
	}
}

func TestCheckpointManager_Fallback(t *testing.T) {
	cm, err := NewCheckpointManager(t.TempDir(), "exp")
	if err != nil {
		t.Fatalf("NewCheckpointManager() error = %v", err)
	}
	if got := cm.BestPath(); got != "" {
		t.Fatalf("BestPath() before any save = %q, want empty", got)
	}

	path, err := cm.SaveFallback(testWeights(7))
	if err != nil {
		t.Fatalf("SaveFallback() error = %v", err)
	}
	if filepath.Base(path) != FallbackName {
		t.Errorf("fallback file = %q, want %q", filepath.Base(path), FallbackName)
	}
	ckpt, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint() error = %v", err)
	}
	if ckpt.Weights[0].Data[0] != 7 {
		t.Errorf("fallback weights = %v, want 7s", ckpt.Weights[0].Data)
	}
}
