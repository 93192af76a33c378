package pipeline

import (
	"math"
	"sort"

	"github.com/zhuotongchen/crowd-coachable-recommendations/core"
)

// Metrics 是排序质量指标（对有评估目标的用户取平均）。
type Metrics struct {
	HitRate float64 // 目标物品进入 top-k 的用户比例
	Recall  float64 // top-k 覆盖的目标物品比例
	NDCG    float64 // 二值相关的归一化折损累计增益
	K       int
	Users   int // 参与统计的用户数
}

// Evaluate 对每个有目标物品的用户计算 top-k 指标并取平均。
// scores 行对应用户、列对应物品，行序与 target 一致。
func Evaluate(scores [][]float64, target *core.CSR, k int) Metrics {
	if k <= 0 {
		k = 10
	}
	m := Metrics{K: k}

	for u := 0; u < target.Rows(); u++ {
		cols, _ := target.Row(u)
		if len(cols) == 0 || u >= len(scores) {
			continue
		}
		relevant := make(map[int]bool, len(cols))
		for _, c := range cols {
			relevant[c] = true
		}

		top := topK(scores[u], k)

		hits := 0
		var dcg float64
		for rank, item := range top {
			if relevant[item] {
				hits++
				dcg += 1 / math.Log2(float64(rank)+2)
			}
		}
		var idcg float64
		ideal := len(relevant)
		if ideal > k {
			ideal = k
		}
		for i := 0; i < ideal; i++ {
			idcg += 1 / math.Log2(float64(i)+2)
		}

		if hits > 0 {
			m.HitRate++
		}
		m.Recall += float64(hits) / float64(len(relevant))
		if idcg > 0 {
			m.NDCG += dcg / idcg
		}
		m.Users++
	}

	if m.Users > 0 {
		n := float64(m.Users)
		m.HitRate /= n
		m.Recall /= n
		m.NDCG /= n
	}
	return m
}

// topK 返回分数最高的 k 个物品下标（降序，平分时取下标小的）。
func topK(scores []float64, k int) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})
	if k > len(idx) {
		k = len(idx)
	}
	return idx[:k]
}
