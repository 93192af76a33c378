package train

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zhuotongchen/crowd-coachable-recommendations/model"
)

// FallbackName 是兜底权重文件名。正常 checkpoint 流程失败时，
// 拟合结束前会把当前权重手动落到这个文件，保证训练成果不丢。
const FallbackName = "state-dict.pth"

// Checkpoint 是一次落盘的模型快照。
type Checkpoint struct {
	Epoch   int                  `json:"epoch"`
	ValLoss float64              `json:"val_loss"`
	Weights []model.WeightTensor `json:"weights"`
}

// CheckpointManager 管理一次拟合的 checkpoint 目录。
//
// 目录布局：root/<experiment>/version_<N>/checkpoints/，
// N 按已有版本递增，每次拟合一个新版本目录。
// 只保留验证损失最优的一份快照（top-1）。
type CheckpointManager struct {
	dir      string
	bestPath string
	bestLoss float64
	hasBest  bool
}

// NewCheckpointManager 创建下一个版本的 checkpoint 目录。
func NewCheckpointManager(root, experiment string) (*CheckpointManager, error) {
	base := filepath.Join(root, experiment)
	version := nextVersion(base)
	dir := filepath.Join(base, fmt.Sprintf("version_%d", version), "checkpoints")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("train: create checkpoint dir: %w", err)
	}
	return &CheckpointManager{dir: dir}, nil
}

// nextVersion 扫描已有 version_N 子目录，返回下一个可用编号。
func nextVersion(base string) int {
	entries, err := os.ReadDir(base)
	if err != nil {
		return 0
	}
	next := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "version_") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), "version_"))
		if err == nil && n+1 > next {
			next = n + 1
		}
	}
	return next
}

// Dir 返回本次拟合的 checkpoint 目录。
func (c *CheckpointManager) Dir() string { return c.dir }

// Save 落盘一个 epoch 的快照；验证损失刷新最优时替换旧的最优文件。
func (c *CheckpointManager) Save(epoch int, valLoss float64, weights []model.WeightTensor) error {
	if c.hasBest && valLoss >= c.bestLoss {
		return nil
	}
	path := filepath.Join(c.dir, fmt.Sprintf("epoch=%d-val_loss=%.4f.json", epoch, valLoss))
	if err := writeCheckpoint(path, &Checkpoint{Epoch: epoch, ValLoss: valLoss, Weights: weights}); err != nil {
		return err
	}
	if c.hasBest && c.bestPath != path {
		os.Remove(c.bestPath)
	}
	c.bestPath = path
	c.bestLoss = valLoss
	c.hasBest = true
	return nil
}

// BestPath 返回最优快照路径；尚无快照时返回空串。
func (c *CheckpointManager) BestPath() string {
	if !c.hasBest {
		return ""
	}
	return c.bestPath
}

// SaveFallback 把当前权重写进目录下的兜底文件并返回其路径。
func (c *CheckpointManager) SaveFallback(weights []model.WeightTensor) (string, error) {
	path := filepath.Join(c.dir, FallbackName)
	if err := writeCheckpoint(path, &Checkpoint{Epoch: -1, Weights: weights}); err != nil {
		return "", err
	}
	return path, nil
}

func writeCheckpoint(path string, ckpt *Checkpoint) error {
	data, err := json.Marshal(ckpt)
	if err != nil {
		return fmt.Errorf("train: marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("train: write checkpoint %s: %w", path, err)
	}
	return nil
}

// LoadCheckpoint 从路径读回一个快照。
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("train: read checkpoint %s: %w", path, err)
	}
	var ckpt Checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return nil, fmt.Errorf("train: parse checkpoint %s: %w", path, err)
	}
	return &ckpt, nil
}
