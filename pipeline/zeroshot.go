// Package pipeline 把各组件串成端到端实验：
// 零样本环境合成、日志响应解析、数据集组装、拟合、重排打分与排序质量评估。
package pipeline

import (
	"fmt"

	"github.com/zhuotongchen/crowd-coachable-recommendations/core"
)

// CreateZeroShot 合成零样本交互数据集：每个物品一个合成用户，
// 该用户的历史（与评估目标）就是这个物品本身。
//
// 使用场景：目录冷启动时没有任何真实交互，先用自监督信号把
// 内容塔和排序目标拉到同一空间，再用真实响应迭代。
func CreateZeroShot(catalog *core.Catalog) (*core.Interactions, error) {
	n := catalog.Len()
	if n == 0 {
		return nil, core.NewDomainError(core.ModuleDataset, core.ErrorCodeInvalidInput, "pipeline: empty catalog")
	}

	users := make([]string, n)
	train := make([]core.Edge, n)
	target := make([]core.Triplet, n)
	for i := 0; i < n; i++ {
		users[i] = fmt.Sprintf("zero-shot-%d", catalog.At(i).ID)
		train[i] = core.Edge{User: i, Item: i, Weight: 1}
		target[i] = core.Triplet{Row: i, Col: i, Value: 1}
	}
	return core.NewInteractions(users, n, train, target, nil)
}
