package model

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
)

// ContentConfig 是内容模型构造配置。
type ContentConfig struct {
	VocabSize int     // 输入维度（分词器词表大小）
	EmbedDim  int     // 物品嵌入维度
	Beta      float64 // 正则强度（变体支持时经 BetaSetter 下发）
	Seed      int64   // 参数初始化种子
}

// ContentBuilder 根据配置构建一个内容模型变体。
// 各变体在 init 中调用 RegisterContentModel(name, builder) 即可被配置驱动。
type ContentBuilder func(cfg ContentConfig) (ContentModel, error)

// ContentModel 是内容塔内部的文本生成式模型契约。
//
// 约定：
//   - Embed 返回物品的确定性嵌入（均值头），供排序目标共享
//   - Loss 计算单个物品的重构/正则损失，gradScale > 0 时按该系数累积梯度
//   - BackpropEmbedding 把排序目标对嵌入的梯度反传进编码器参数
type ContentModel interface {
	Name() string
	EmbedDim() int
	Embed(bag *Bag) []float64
	Loss(bag *Bag, gradScale float64, rng *rand.Rand) float64
	BackpropEmbedding(bag *Bag, grad []float64)
	Parameters() []*Param
}

// BetaSetter 是可选能力：支持正则强度的变体实现它。
// 构造时若变体支持则调用，与配置中的 beta 对齐。
type BetaSetter interface {
	SetBeta(beta float64)
}

var (
	contentBuilders   = make(map[string]ContentBuilder)
	contentBuildersMu sync.RWMutex
)

// RegisterContentModel 注册一种内容模型变体的构建逻辑。
// 建议在变体文件的 init 中调用，例如：func init() { RegisterContentModel("vae", NewVAE) }
func RegisterContentModel(name string, builder ContentBuilder) {
	if name == "" || builder == nil {
		return
	}
	contentBuildersMu.Lock()
	defer contentBuildersMu.Unlock()
	contentBuilders[name] = builder
}

// SupportedVariants 返回当前已注册的内容模型变体列表（排序），用于错误提示与校验。
func SupportedVariants() []string {
	contentBuildersMu.RLock()
	defer contentBuildersMu.RUnlock()
	names := make([]string, 0, len(contentBuilders))
	for n := range contentBuilders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// BuildContentModel 按名称构建内容模型变体；未注册的名称立即报错（fail-fast），
// 不会分配任何训练资源。
func BuildContentModel(name string, cfg ContentConfig) (ContentModel, error) {
	contentBuildersMu.RLock()
	builder, ok := contentBuilders[name]
	contentBuildersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("model: unknown content model variant %q (supported: %v)", name, SupportedVariants())
	}
	m, err := builder(cfg)
	if err != nil {
		return nil, fmt.Errorf("model: build content model %q: %w", name, err)
	}
	if bs, ok := m.(BetaSetter); ok {
		bs.SetBeta(cfg.Beta)
	}
	return m, nil
}
