package train

import (
	"fmt"
	"math/rand"

	"github.com/zhuotongchen/crowd-coachable-recommendations/core"
	"github.com/zhuotongchen/crowd-coachable-recommendations/model"
)

// RankingLoader 把训练边切成 batch，每个 epoch 重洗顺序。
type RankingLoader struct {
	edges     []core.Edge
	batchSize int
	order     []int
	pos       int
	rng       *rand.Rand
	shuffle   bool
}

// NewRankingLoader 创建排序流加载器。batchSize 必须为正。
func NewRankingLoader(edges []core.Edge, batchSize int, shuffle bool, seed int64) (*RankingLoader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("train: ranking batch size must be positive, got %d", batchSize)
	}
	order := make([]int, len(edges))
	for i := range order {
		order[i] = i
	}
	return &RankingLoader{
		edges:     edges,
		batchSize: batchSize,
		order:     order,
		rng:       rand.New(rand.NewSource(seed)),
		shuffle:   shuffle,
	}, nil
}

// NumBatches 返回一个 epoch 的 batch 数（向上取整）。
func (l *RankingLoader) NumBatches() int {
	if len(l.edges) == 0 {
		return 0
	}
	return (len(l.edges) + l.batchSize - 1) / l.batchSize
}

// Reset 重置到 epoch 开头；shuffle 开启时重洗顺序。
func (l *RankingLoader) Reset() {
	l.pos = 0
	if l.shuffle {
		l.rng.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}
}

// Next 返回下一个 batch；epoch 耗尽时回绕到开头（循环语义由上层组合器控制）。
func (l *RankingLoader) Next() []core.Edge {
	if len(l.edges) == 0 {
		return nil
	}
	if l.pos >= len(l.edges) {
		l.Reset()
	}
	end := l.pos + l.batchSize
	if end > len(l.edges) {
		end = len(l.edges)
	}
	out := make([]core.Edge, 0, end-l.pos)
	for _, idx := range l.order[l.pos:end] {
		out = append(out, l.edges[idx])
	}
	l.pos = end
	return out
}

// ContentLoader 把目录物品下标切成 batch，供内容流消费。
type ContentLoader struct {
	numItems  int
	batchSize int
	order     []int
	pos       int
	rng       *rand.Rand
	shuffle   bool
}

// NewContentLoader 创建内容流加载器，覆盖 [0, numItems) 的全部物品。
func NewContentLoader(numItems, batchSize int, shuffle bool, seed int64) (*ContentLoader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("train: content batch size must be positive, got %d", batchSize)
	}
	if numItems <= 0 {
		return nil, fmt.Errorf("train: content loader needs at least one item, got %d", numItems)
	}
	order := make([]int, numItems)
	for i := range order {
		order[i] = i
	}
	return &ContentLoader{
		numItems:  numItems,
		batchSize: batchSize,
		order:     order,
		rng:       rand.New(rand.NewSource(seed)),
		shuffle:   shuffle,
	}, nil
}

// NumBatches 返回一个 epoch 的 batch 数。
func (l *ContentLoader) NumBatches() int {
	return (l.numItems + l.batchSize - 1) / l.batchSize
}

// Reset 重置到 epoch 开头。
func (l *ContentLoader) Reset() {
	l.pos = 0
	if l.shuffle {
		l.rng.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}
}

// Next 返回下一个物品下标 batch，耗尽时回绕。
func (l *ContentLoader) Next() []int {
	if l.pos >= l.numItems {
		l.Reset()
	}
	end := l.pos + l.batchSize
	if end > l.numItems {
		end = l.numItems
	}
	out := make([]int, end-l.pos)
	copy(out, l.order[l.pos:end])
	l.pos = end
	return out
}

// CycleLoader 把排序流与内容流组合为联合 batch 流。
//
// 核心思想（max-size-cycle）：
//   - 一个 epoch 产出 max(m, n) 个组合 batch，m/n 为两条流各自的 batch 数
//   - 较短的流在 epoch 内循环补齐，保证每步两条流都有数据
//   - 循环常数 ct_cycles = max(1, m/n)、ft_cycles = max(1, n/m) 由此而来，
//     损失按它们归一使两条流在一个 epoch 内的梯度量级可比
type CycleLoader struct {
	ranking *RankingLoader
	content *ContentLoader

	length int
	pos    int
}

// NewCycleLoader 组合两条流。任一流为空时组合长度取另一条的长度。
func NewCycleLoader(ranking *RankingLoader, content *ContentLoader) *CycleLoader {
	m, n := ranking.NumBatches(), content.NumBatches()
	length := m
	if n > length {
		length = n
	}
	return &CycleLoader{ranking: ranking, content: content, length: length}
}

// Len 返回一个 epoch 的组合 batch 数：max(m, n)。
func (c *CycleLoader) Len() int { return c.length }

// CtCycles 返回内容流的循环常数 max(1, ftBatches/ctBatches)。
func (c *CycleLoader) CtCycles() float64 {
	m, n := c.ranking.NumBatches(), c.content.NumBatches()
	if n == 0 || m <= n {
		return 1
	}
	return float64(m) / float64(n)
}

// FtCycles 返回排序流的循环常数 max(1, ctBatches/ftBatches)。
func (c *CycleLoader) FtCycles() float64 {
	m, n := c.ranking.NumBatches(), c.content.NumBatches()
	if m == 0 || n <= m {
		return 1
	}
	return float64(n) / float64(m)
}

// Reset 开启新 epoch：两条流都回到开头并重洗。
func (c *CycleLoader) Reset() {
	c.pos = 0
	c.ranking.Reset()
	c.content.Reset()
}

// HasNext 报告本 epoch 是否还有组合 batch。
func (c *CycleLoader) HasNext() bool { return c.pos < c.length }

// Next 返回下一个组合 batch。
func (c *CycleLoader) Next() model.Batch {
	c.pos++
	return model.Batch{
		Edges: c.ranking.Next(),
		Items: c.content.Next(),
	}
}

// Batches 物化一个 epoch 的全部组合 batch（并行验证用）。
func (c *CycleLoader) Batches() []model.Batch {
	c.Reset()
	out := make([]model.Batch, 0, c.length)
	for c.HasNext() {
		out = append(out, c.Next())
	}
	return out
}
