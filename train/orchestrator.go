package train

import (
	"context"
	"io"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/zhuotongchen/crowd-coachable-recommendations/core"
	"github.com/zhuotongchen/crowd-coachable-recommendations/model"
	"github.com/zhuotongchen/crowd-coachable-recommendations/tokenize"
)

// OrchestratorConfig 是一次实验的编排配置。
type OrchestratorConfig struct {
	// Tokenizer 为 nil 时使用自包含哈希分词器
	Tokenizer core.Tokenizer
	// MaxLength 是标题编码长度，缺省 32
	MaxLength int
	// BatchSize 是排序流 batch 大小，缺省 64。
	// 验证 batch 与内容 batch 按约定派生：
	// validBatch = batch*nNeg*2/validNNeg，vaeBatch = 6*batch
	BatchSize int
	// MaxEpochs 是名义 epoch 上限，缺省 50；实际 epoch 数按内容流
	// 循环常数回缩：max(5, MaxEpochs/ctCycles)
	MaxEpochs int
	// MaxSteps > 0 时限制全局优化步数
	MaxSteps int
	// Workers 是验证/打分的并行度
	Workers int
	// LogDir / Experiment 决定 checkpoint 目录布局，缺省 "logs" / "joint"
	LogDir     string
	Experiment string
	// LogOut 为 nil 时日志写控制台
	LogOut io.Writer

	HP model.Hyperparams
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.Tokenizer == nil {
		c.Tokenizer = tokenize.NewHashing(0)
	}
	if c.MaxLength <= 0 {
		c.MaxLength = 32
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.MaxEpochs <= 0 {
		c.MaxEpochs = 50
	}
	if c.LogDir == "" {
		c.LogDir = "logs"
	}
	if c.Experiment == "" {
		c.Experiment = "joint"
	}
	if c.HP.NNegatives <= 0 {
		c.HP.NNegatives = 4
	}
	return c
}

// Orchestrator 编排联合模型的完整拟合/推理生命周期。
//
// 核心思想：
//   - 目录在构造时只分词一次，编码批在所有模型副本间共享只读
//   - 每次 Fit 都从头构建一个新模型训练；只有在 checkpoint 解析成功后
//     才把它换成对外生效的模型，失败时旧模型保持可用
//   - checkpoint 路径历史只增不减，注记步号与历史长度对齐
type Orchestrator struct {
	cfg     OrchestratorConfig
	catalog *core.Catalog
	inputs  *core.TokenBatch
	vocab   int

	model  *model.JointModel
	frozen bool
	ckpts  []string
	logger *Logger
}

// NewOrchestrator 构建编排器并一次性编码目录标题。
func NewOrchestrator(catalog *core.Catalog, cfg OrchestratorConfig) (*Orchestrator, error) {
	cfg = cfg.withDefaults()
	if catalog == nil || catalog.Len() == 0 {
		return nil, core.NewDomainError(core.ModuleTrain, core.ErrorCodeInvalidInput, "orchestrator: empty catalog")
	}

	inputs, err := cfg.Tokenizer.EncodeBatch(catalog.Titles(), core.EncodeOptions{MaxLength: cfg.MaxLength, Truncate: true})
	if err != nil {
		return nil, err
	}

	hparams := cfg.HP.Flat()
	hparams["tokenizer"] = cfg.Tokenizer.Name()
	hparams["batch_size"] = cfg.BatchSize
	hparams["max_epochs"] = cfg.MaxEpochs

	return &Orchestrator{
		cfg:     cfg,
		catalog: catalog,
		inputs:  inputs,
		vocab:   cfg.Tokenizer.VocabSize(),
		logger:  NewLogger(cfg.Experiment, hparams, cfg.LogOut),
	}, nil
}

// Model 返回当前对外生效的模型；尚未拟合成功时为 nil。
func (o *Orchestrator) Model() *model.JointModel { return o.model }

// CheckpointPaths 返回历次拟合解析出的 checkpoint 路径（只增历史的副本）。
func (o *Orchestrator) CheckpointPaths() []string {
	out := make([]string, len(o.ckpts))
	copy(out, o.ckpts)
	return out
}

// Freeze 冻结编排器：后续 Fit 全部为恒等空操作。
func (o *Orchestrator) Freeze() {
	o.frozen = true
	if o.model != nil {
		o.model.Freeze()
	}
}

// Fit 在交互数据集上拟合一个全新模型。
//
// 约定：
//   - v 为 nil 或编排器已冻结时，不做任何事（对外模型保持原引用）
//   - 目标矩阵无正例时报错
//   - 验证按 MaxEpochs > 1 自动开启；最优（或兜底）checkpoint 解析成功后
//     才替换对外模型，并把路径追加进历史
func (o *Orchestrator) Fit(ctx context.Context, v *core.Interactions) error {
	if v == nil || o.frozen {
		return nil
	}
	if o.model != nil && o.model.NumTrainable() == 0 {
		return nil
	}
	if err := v.Validate(); err != nil {
		return err
	}

	hp := o.cfg.HP
	m, err := model.NewJointModel(o.inputs, o.vocab, v.NumUsers(), hp)
	if err != nil {
		return err
	}

	doValidation := o.cfg.MaxEpochs > 1
	trainLoader, validLoader, err := o.buildLoaders(v, doValidation)
	if err != nil {
		return err
	}
	ctCycles, ftCycles := trainLoader.CtCycles(), trainLoader.FtCycles()
	m.SetTrainingData(ctCycles, ftCycles, v)

	// 内容流循环越多说明排序数据越厚，名义 epoch 相应回缩
	epochs := int(math.Max(5, float64(o.cfg.MaxEpochs)/ctCycles))

	ckpt, err := NewCheckpointManager(o.cfg.LogDir, o.cfg.Experiment)
	if err != nil {
		return err
	}

	trainer := NewTrainer(TrainerConfig{
		MaxEpochs:    epochs,
		MaxSteps:     o.cfg.MaxSteps,
		DoValidation: doValidation,
		Workers:      o.cfg.Workers,
	}, o.logger, ckpt)

	if err := trainer.Fit(ctx, m, trainLoader, validLoader); err != nil {
		return err
	}

	path := ckpt.BestPath()
	if path == "" {
		o.logger.Warnf("no checkpoint produced, saving weights to %s", FallbackName)
		path, err = ckpt.SaveFallback(m.StateDict())
		if err != nil {
			return err
		}
	}
	loaded, err := LoadCheckpoint(path)
	if err != nil {
		return err
	}
	if err := m.LoadStateDict(loaded.Weights, false); err != nil {
		return err
	}

	o.model = m
	o.ckpts = append(o.ckpts, path)
	o.logger.Annotate(path)
	return nil
}

// buildLoaders 按约定派生 batch 大小并组装训练/验证组合流。
// withValidation=false 时不构建验证流（返回 nil）。
func (o *Orchestrator) buildLoaders(v *core.Interactions, withValidation bool) (*CycleLoader, *CycleLoader, error) {
	hp := o.cfg.HP
	vaeBatch := 6 * o.cfg.BatchSize

	edges := v.TrainEdges()
	seed := hp.Seed

	trainRanking, err := NewRankingLoader(edges, o.cfg.BatchSize, true, seed+101)
	if err != nil {
		return nil, nil, err
	}
	trainContent, err := NewContentLoader(v.NumItems(), vaeBatch, true, seed+102)
	if err != nil {
		return nil, nil, err
	}
	trainLoader := NewCycleLoader(trainRanking, trainContent)
	if !withValidation {
		return trainLoader, nil, nil
	}

	validNNeg := hp.ValidNNegatives
	if validNNeg <= 0 {
		validNNeg = hp.NNegatives
	}
	validBatch := o.cfg.BatchSize * hp.NNegatives * 2 / validNNeg
	if validBatch < 1 {
		validBatch = 1
	}
	validRanking, err := NewRankingLoader(edges, validBatch, false, seed+103)
	if err != nil {
		return nil, nil, err
	}
	validContent, err := NewContentLoader(v.NumItems(), vaeBatch, false, seed+104)
	if err != nil {
		return nil, nil, err
	}
	return trainLoader, NewCycleLoader(validRanking, validContent), nil
}

// Transform 为数据集中的每个用户计算对全部物品的模型分数。
// 行对应用户、列对应物品；用户维度按 Workers 并行。
func (o *Orchestrator) Transform(ctx context.Context, v *core.Interactions) ([][]float64, error) {
	if o.model == nil {
		return nil, core.NewDomainError(core.ModuleTrain, core.ErrorCodeNotFound, "orchestrator: no fitted model")
	}
	if v.NumUsers() != o.model.NumUsers() {
		return nil, core.NewDomainError(core.ModuleTrain, core.ErrorCodeInvalidInput, "orchestrator: dataset users do not match fitted model")
	}

	numUsers := v.NumUsers()
	scores := make([][]float64, numUsers)

	workers := o.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for u := 0; u < numUsers; u++ {
		u := u
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scores[u] = o.model.ScoreAll(u)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

// ItemEmbeddings 返回当前模型的全部物品嵌入（导出到在线存储用）。
func (o *Orchestrator) ItemEmbeddings() ([][]float64, error) {
	if o.model == nil {
		return nil, core.NewDomainError(core.ModuleTrain, core.ErrorCodeNotFound, "orchestrator: no fitted model")
	}
	out := make([][]float64, o.model.NumItems())
	for i := range out {
		out[i] = o.model.ItemEmbedding(i)
	}
	return out, nil
}

// Explainer 返回当前模型的 token 归因解释器。
func (o *Orchestrator) Explainer() (*model.Explainer, error) {
	if o.model == nil {
		return nil, core.NewDomainError(core.ModuleTrain, core.ErrorCodeNotFound, "orchestrator: no fitted model")
	}
	return o.model.ToExplainer(), nil
}
