package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/zhuotongchen/crowd-coachable-recommendations/core"
)

// Bag 是单个物品标题的词袋表示（内容模型的稀疏输入）。
//
// 约定：
//   - Idx 为去重后的 token id，Cnt 为对应出现次数
//   - X 为 L2 归一化后的输入特征，Total 为 token 总数
type Bag struct {
	Idx   []int
	Cnt   []float64
	X     []float64
	Total float64
}

// BuildBags 将定形 TokenBatch 转为词袋序列（每个物品一个）。
// padding 位置（mask=0）被跳过；构建一次后只读。
func BuildBags(inputs *core.TokenBatch, vocabSize int) ([]*Bag, error) {
	bags := make([]*Bag, inputs.NumRows())
	for i := range inputs.IDs {
		counts := make(map[int]float64)
		for j, id := range inputs.IDs[i] {
			if inputs.Mask[i][j] == 0 {
				continue
			}
			if id < 0 || id >= vocabSize {
				return nil, fmt.Errorf("model: token id %d out of vocab size %d", id, vocabSize)
			}
			counts[id]++
		}

		bag := &Bag{
			Idx: make([]int, 0, len(counts)),
			Cnt: make([]float64, 0, len(counts)),
		}
		var sq, total float64
		for id, c := range counts {
			bag.Idx = append(bag.Idx, id)
			bag.Cnt = append(bag.Cnt, c)
			sq += c * c
			total += c
		}
		bag.Total = total
		bag.X = make([]float64, len(bag.Cnt))
		if sq > 0 {
			norm := math.Sqrt(sq)
			for k, c := range bag.Cnt {
				bag.X[k] = c / norm
			}
		}
		bags[i] = bag
	}
	return bags, nil
}

// ItemTower 是内容塔：包装一个内容模型，对外提供
// 物品级嵌入、训练损失与推理期的归因解释器。
//
// 核心思想：
//   - 目录只分词一次，词袋在所有模型副本间共享只读
//   - 排序目标与内容目标共享同一套嵌入参数（均值头）
type ItemTower struct {
	content ContentModel
	bags    []*Bag
}

// NewItemTower 由内容模型与目录级输入批构建物品塔。
func NewItemTower(content ContentModel, inputs *core.TokenBatch, vocabSize int) (*ItemTower, error) {
	bags, err := BuildBags(inputs, vocabSize)
	if err != nil {
		return nil, err
	}
	return &ItemTower{content: content, bags: bags}, nil
}

// NumItems 返回塔覆盖的物品数。
func (t *ItemTower) NumItems() int { return len(t.bags) }

// EmbedDim 返回嵌入维度。
func (t *ItemTower) EmbedDim() int { return t.content.EmbedDim() }

// Embed 返回物品 i 的嵌入。
func (t *ItemTower) Embed(i int) []float64 {
	return t.content.Embed(t.bags[i])
}

// Loss 返回一批物品的平均内容损失；gradScale > 0 时按该系数累积梯度。
func (t *ItemTower) Loss(items []int, gradScale float64, rng *rand.Rand) float64 {
	if len(items) == 0 {
		return 0
	}
	scale := gradScale / float64(len(items))
	var sum float64
	for _, i := range items {
		sum += t.content.Loss(t.bags[i], scale, rng)
	}
	return sum / float64(len(items))
}

// Backprop 将排序目标对物品 i 嵌入的梯度反传进编码器。
func (t *ItemTower) Backprop(i int, grad []float64) {
	t.content.BackpropEmbedding(t.bags[i], grad)
}

// Parameters 返回内容模型的全部参数。
func (t *ItemTower) Parameters() []*Param {
	return t.content.Parameters()
}

// ToExplainer 构建归因解释器，把物品嵌入拆解到输入 token 上。
func (t *ItemTower) ToExplainer() *Explainer {
	return newExplainer(t)
}
