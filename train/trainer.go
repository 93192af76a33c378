package train

import (
	"context"
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"github.com/zhuotongchen/crowd-coachable-recommendations/model"
)

// TrainerConfig 是训练循环配置。
type TrainerConfig struct {
	// MaxEpochs 是 epoch 上限（至少 1）
	MaxEpochs int
	// MaxSteps > 0 时对全局优化步数设上限，提前终止训练
	MaxSteps int
	// DoValidation 开启逐 epoch 验证与最优 checkpoint 落盘
	DoValidation bool
	// Workers 是验证评估的并行分片数（只读打分，可安全并行）
	Workers int
}

// Trainer 驱动训练循环：逐 epoch 遍历组合 batch 流、更新参数、
// 验证并落最优 checkpoint。
type Trainer struct {
	cfg    TrainerConfig
	logger *Logger
	ckpt   *CheckpointManager
}

// NewTrainer 创建训练器。logger / ckpt 可为 nil（不记日志 / 不落盘）。
func NewTrainer(cfg TrainerConfig, logger *Logger, ckpt *CheckpointManager) *Trainer {
	if cfg.MaxEpochs < 1 {
		cfg.MaxEpochs = 1
	}
	return &Trainer{cfg: cfg, logger: logger, ckpt: ckpt}
}

// Fit 执行完整训练：返回前保证要么有最优 checkpoint，要么由调用方兜底。
func (t *Trainer) Fit(ctx context.Context, m *model.JointModel, trainLoader, validLoader *CycleLoader) error {
	if trainLoader.Len() == 0 {
		return fmt.Errorf("train: training loader is empty")
	}

	opt := NewAdamW(m.OptimizerConfig())
	steps := 0

	for epoch := 0; epoch < t.cfg.MaxEpochs; epoch++ {
		trainLoader.Reset()
		var epochLoss float64
		numBatches := 0

		for trainLoader.HasNext() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if t.cfg.MaxSteps > 0 && steps >= t.cfg.MaxSteps {
				break
			}
			b := trainLoader.Next()
			m.ZeroGrad()
			loss, err := m.TrainingStep(b, numBatches)
			if err != nil {
				return fmt.Errorf("train: epoch %d step %d: %w", epoch, numBatches, err)
			}
			opt.Step(m.Parameters())
			epochLoss += loss
			numBatches++
			steps++
		}
		if numBatches > 0 {
			epochLoss /= float64(numBatches)
		}

		metrics := map[string]float64{"train_loss": epochLoss}
		if t.cfg.DoValidation && validLoader != nil {
			valLoss, err := t.validate(ctx, m, validLoader)
			if err != nil {
				return fmt.Errorf("train: epoch %d validation: %w", epoch, err)
			}
			metrics["val_loss"] = valLoss
			if t.ckpt != nil {
				if err := t.ckpt.Save(epoch, valLoss, m.StateDict()); err != nil {
					return err
				}
			}
		}
		t.logger.LogMetrics(epoch, metrics)

		if t.cfg.MaxSteps > 0 && steps >= t.cfg.MaxSteps {
			break
		}
	}
	return nil
}

// validate 对验证流做一轮只读评估，分片并行。
func (t *Trainer) validate(ctx context.Context, m *model.JointModel, validLoader *CycleLoader) (float64, error) {
	batches := validLoader.Batches()
	if len(batches) == 0 {
		return 0, nil
	}

	workers := t.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(batches) {
		workers = len(batches)
	}

	sums := make([]float64, workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			rng := rand.New(rand.NewSource(int64(7919 + w)))
			for i := w; i < len(batches); i += workers {
				if err := gctx.Err(); err != nil {
					return err
				}
				loss, err := m.EvalStep(batches[i], rng)
				if err != nil {
					return err
				}
				sums[w] += loss
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var total float64
	for _, s := range sums {
		total += s
	}
	return total / float64(len(batches)), nil
}
