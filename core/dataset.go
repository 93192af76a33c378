package core

import "fmt"

// Edge 是一条训练交互边：用户下标、物品下标、事件权重。
type Edge struct {
	User   int
	Item   int
	Weight float64
}

// Interactions 是一次拟合所需的交互数据集（对应上游数据集协作方的契约）。
//
// 结构：
//   - Users: 有序用户 ID 列表，下标即模型内部用户编号
//   - Train: 训练边矩阵（user × item 权重）
//   - Target: 留出的评估目标矩阵，拟合前必须至少有一个非零条目
//   - Prior: 每个物品的先验分数向量，既用于负采样也在评估时加到模型输出上
//
// 构造后只读。
type Interactions struct {
	Users  []string
	Train  *CSR
	Target *CSR
	Prior  []float64
}

// NewInteractions 由训练边与目标三元组构建数据集。
// prior 为 nil 时使用全零先验。
func NewInteractions(users []string, numItems int, train []Edge, target []Triplet, prior []float64) (*Interactions, error) {
	numUsers := len(users)
	if numUsers == 0 {
		return nil, fmt.Errorf("interactions: empty user list")
	}
	if prior == nil {
		prior = make([]float64, numItems)
	}
	if len(prior) != numItems {
		return nil, fmt.Errorf("interactions: prior length %d != num items %d", len(prior), numItems)
	}

	trips := make([]Triplet, 0, len(train))
	for _, e := range train {
		trips = append(trips, Triplet{Row: e.User, Col: e.Item, Value: e.Weight})
	}
	trainCSR, err := NewCSR(numUsers, numItems, trips)
	if err != nil {
		return nil, fmt.Errorf("interactions: build train matrix: %w", err)
	}
	targetCSR, err := NewCSR(numUsers, numItems, target)
	if err != nil {
		return nil, fmt.Errorf("interactions: build target matrix: %w", err)
	}

	return &Interactions{Users: users, Train: trainCSR, Target: targetCSR, Prior: prior}, nil
}

// NumUsers 返回用户数。
func (v *Interactions) NumUsers() int { return len(v.Users) }

// NumItems 返回物品数。
func (v *Interactions) NumItems() int { return v.Train.Cols() }

// TrainEdges 按 (user, item) 顺序展开训练边，供数据加载层切 batch。
func (v *Interactions) TrainEdges() []Edge {
	edges := make([]Edge, 0, v.Train.NNZ())
	for u := 0; u < v.Train.Rows(); u++ {
		cols, vals := v.Train.Row(u)
		for i, c := range cols {
			edges = append(edges, Edge{User: u, Item: c, Weight: vals[i]})
		}
	}
	return edges
}

// Validate 校验数据集可用于拟合：目标矩阵必须有正例。
func (v *Interactions) Validate() error {
	if v.Target == nil || v.Target.NNZ() == 0 {
		return NewDomainError(ModuleDataset, ErrorCodeInvalidInput, "interactions: target matrix has no nonzero entries")
	}
	return nil
}
