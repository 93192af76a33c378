package model

import (
	"fmt"
	"math/rand"

	"github.com/zhuotongchen/crowd-coachable-recommendations/core"
)

// Hyperparams 是联合模型的超参数束。
type Hyperparams struct {
	// Alpha 是混合权重：排序（fine-tune）流乘 alpha，内容流乘 1-alpha。
	// 注意这与 alpha 通常表示主目标的直觉相反，公式以此处为准。
	Alpha float64
	// Beta 是内容模型的正则强度
	Beta float64
	// NNegatives / ValidNNegatives 是训练/验证期每条边的负例数
	NNegatives      int
	ValidNNegatives int
	// LR / WeightDecay 是 AdamW 的学习率与权重衰减（全参数统一）
	LR          float64
	WeightDecay float64
	// Replacement 控制负例集合内是否允许重复
	Replacement bool
	// SampleWithPrior / SampleWithPosterior 是负采样的两个独立开关
	SampleWithPrior     bool
	SampleWithPosterior float64
	// PriorFcn 是先验分数的单调变换，nil 取恒等
	PriorFcn PriorTransform
	// Variant 是内容模型变体名（注册表查找），空取 "vae"
	Variant string
	// EmbedDim 是共享嵌入维度
	EmbedDim int
	// Seed 是参数初始化与采样种子
	Seed int64
}

// withDefaults 补全缺省值。
func (h Hyperparams) withDefaults() Hyperparams {
	if h.ValidNNegatives == 0 {
		h.ValidNNegatives = h.NNegatives
	}
	if h.Variant == "" {
		h.Variant = "vae"
	}
	if h.EmbedDim == 0 {
		h.EmbedDim = 32
	}
	if h.LR == 0 {
		h.LR = 0.01
	}
	return h
}

// Flat 导出扁平的超参记录，供日志汇入。
func (h Hyperparams) Flat() map[string]any {
	return map[string]any{
		"alpha":                 h.Alpha,
		"beta":                  h.Beta,
		"n_negatives":           h.NNegatives,
		"valid_n_negatives":     h.ValidNNegatives,
		"lr":                    h.LR,
		"weight_decay":          h.WeightDecay,
		"replacement":           h.Replacement,
		"sample_with_prior":     h.SampleWithPrior,
		"sample_with_posterior": h.SampleWithPosterior,
		"variant":               h.Variant,
		"embed_dim":             h.EmbedDim,
	}
}

// OptimizerConfig 是模型对外暴露的优化器配置：全参数单一优化器。
type OptimizerConfig struct {
	LR          float64
	WeightDecay float64
}

// Batch 是联合训练的一个组合批：排序边 + 内容物品下标。
type Batch struct {
	Edges []core.Edge
	Items []int
}

// JointModel 同时持有排序目标与内容塔，对外暴露单一标量损失：
//
//	loss = (1-alpha)/ct_cycles * mean(content_loss) + alpha/ft_cycles * mean(ranking_loss)
//
// 其中 ct_cycles / ft_cycles 是数据层给出的循环常数：各流按"另一条流"的
// 相对批数归一，使得一个 epoch 累计下来两条流贡献的梯度量级可比。
type JointModel struct {
	HP Hyperparams

	tower   *ItemTower
	ranking *RankingObjective

	ctCycles, ftCycles float64
	rng                *rand.Rand
}

// NewJointModel 构建联合模型。
// inputs 是目录级共享输入批（构造后只读）；变体名未注册时立即报错。
func NewJointModel(inputs *core.TokenBatch, vocabSize, numUsers int, hp Hyperparams) (*JointModel, error) {
	hp = hp.withDefaults()

	content, err := BuildContentModel(hp.Variant, ContentConfig{
		VocabSize: vocabSize,
		EmbedDim:  hp.EmbedDim,
		Beta:      hp.Beta,
		Seed:      hp.Seed,
	})
	if err != nil {
		return nil, err
	}

	tower, err := NewItemTower(content, inputs, vocabSize)
	if err != nil {
		return nil, fmt.Errorf("model: build item tower: %w", err)
	}

	ranking := NewRankingObjective(numUsers, hp.EmbedDim, hp.NNegatives, hp.ValidNNegatives, tower, hp.Seed+1)

	return &JointModel{
		HP:       hp,
		tower:    tower,
		ranking:  ranking,
		ctCycles: 1,
		ftCycles: 1,
		rng:      rand.New(rand.NewSource(hp.Seed + 2)),
	}, nil
}

// SetTrainingData 存储循环归一常数并把排序训练数据下发给排序目标。
func (m *JointModel) SetTrainingData(ctCycles, ftCycles float64, v *core.Interactions) {
	if ctCycles >= 1 {
		m.ctCycles = ctCycles
	}
	if ftCycles >= 1 {
		m.ftCycles = ftCycles
	}

	sampler := NewNegativeSampler(m.HP.NNegatives, m.HP.Replacement, m.HP.SampleWithPrior, m.HP.SampleWithPosterior)
	if v != nil {
		sampler.SetPrior(v.Prior, m.HP.PriorFcn)
	}
	m.ranking.SetTrainingData(v, sampler)
}

// TrainingStep 执行一个训练步：返回混合损失并累积梯度。
func (m *JointModel) TrainingStep(b Batch, _ int) (float64, error) {
	return m.step(b, true)
}

// ValidationStep 与训练步共用同一条路径，仅不累积梯度且用验证负例数。
func (m *JointModel) ValidationStep(b Batch, _ int) (float64, error) {
	return m.eval(b, m.rng)
}

// EvalStep 是只读的验证步：不写任何参数状态，随机源由调用方注入，
// 可以安全地在多个 goroutine 间并行（各自持有独立 rng）。
func (m *JointModel) EvalStep(b Batch, rng *rand.Rand) (float64, error) {
	return m.eval(b, rng)
}

func (m *JointModel) step(b Batch, train bool) (float64, error) {
	if !train {
		return m.eval(b, m.rng)
	}
	ftCoef := m.HP.Alpha / m.ftCycles
	ctCoef := (1 - m.HP.Alpha) / m.ctCycles

	ftLoss, err := m.ranking.Step(b.Edges, ftCoef, false, m.rng)
	if err != nil {
		return 0, err
	}
	ctLoss := m.tower.Loss(b.Items, ctCoef, m.rng)

	return ctCoef*ctLoss + ftCoef*ftLoss, nil
}

func (m *JointModel) eval(b Batch, rng *rand.Rand) (float64, error) {
	ftCoef := m.HP.Alpha / m.ftCycles
	ctCoef := (1 - m.HP.Alpha) / m.ctCycles

	ftLoss, err := m.ranking.Step(b.Edges, 0, true, rng)
	if err != nil {
		return 0, err
	}
	ctLoss := m.tower.Loss(b.Items, 0, nil)

	return ctCoef*ctLoss + ftCoef*ftLoss, nil
}

// Parameters 返回全部参数：内容塔 + 用户嵌入表。
func (m *JointModel) Parameters() []*Param {
	return append(m.tower.Parameters(), m.ranking.Parameters()...)
}

// NumTrainable 返回可训练标量参数个数。
func (m *JointModel) NumTrainable() int {
	return NumTrainable(m.Parameters())
}

// Freeze 冻结全部参数（预训练导入后不再微调的场景）。
func (m *JointModel) Freeze() {
	for _, p := range m.Parameters() {
		p.RequiresGrad = false
	}
}

// ZeroGrad 清零全部梯度。
func (m *JointModel) ZeroGrad() {
	for _, p := range m.Parameters() {
		p.ZeroGrad()
	}
}

// OptimizerConfig 返回单一优化器配置：全参数共用学习率与权重衰减。
func (m *JointModel) OptimizerConfig() OptimizerConfig {
	return OptimizerConfig{LR: m.HP.LR, WeightDecay: m.HP.WeightDecay}
}

// Score 返回 (user, item) 的模型分数。
func (m *JointModel) Score(u, i int) float64 { return m.ranking.Score(u, i) }

// ScoreAll 返回用户对全部物品的分数向量。
func (m *JointModel) ScoreAll(u int) []float64 { return m.ranking.ScoreAll(u) }

// ItemEmbedding 返回物品 i 的共享嵌入。
func (m *JointModel) ItemEmbedding(i int) []float64 { return m.tower.Embed(i) }

// NumItems 返回目录物品数。
func (m *JointModel) NumItems() int { return m.tower.NumItems() }

// NumUsers 返回用户嵌入表行数（即拟合数据集的用户数）。
func (m *JointModel) NumUsers() int { return m.ranking.NumUsers() }

// ToExplainer 委托内容塔构建归因解释器。
func (m *JointModel) ToExplainer() *Explainer { return m.tower.ToExplainer() }

// StateDict 导出全部参数。
func (m *JointModel) StateDict() []WeightTensor {
	return StateDict(m.Parameters())
}

// LoadStateDict 加载参数；strict=false 为部分加载语义。
func (m *JointModel) LoadStateDict(weights []WeightTensor, strict bool) error {
	return LoadStateDict(m.Parameters(), weights, strict)
}
