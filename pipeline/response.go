package pipeline

import (
	"sort"
	"strconv"

	"github.com/zhuotongchen/crowd-coachable-recommendations/core"
	"github.com/zhuotongchen/crowd-coachable-recommendations/pkg/conv"
)

// Response 是一条日志化的多步响应：一个用户按顺序选择了若干物品。
type Response struct {
	UserID string
	// Items 是按选择顺序排列的物品 ID
	Items []int64
}

// Event 是解析后的加权训练事件。
type Event struct {
	UserID string
	ItemID int64
	Weight float64
}

// StepWeightsFromConfig 把松散配置节（key 为步号字符串）转为稠密权重表。
// 缺省步权重为 1。
func StepWeightsFromConfig(m map[string]any, maxSteps int) []float64 {
	out := make([]float64, maxSteps)
	for i := range out {
		out[i] = 1
	}
	for k, v := range conv.MapToFloat64(m) {
		if i, err := strconv.Atoi(k); err == nil && i >= 0 && i < maxSteps {
			out[i] = v
		}
	}
	return out
}

// ParseResponses 把多步响应展开为加权事件。
// 第 k 步选择的权重取 stepWeights[k]；越界的步沿用最后一个权重；
// 权重为 0 的步被丢弃。stepWeights 为空时所有步权重为 1。
func ParseResponses(responses []Response, stepWeights []float64) []Event {
	events := make([]Event, 0, len(responses))
	for _, r := range responses {
		for k, id := range r.Items {
			w := 1.0
			if len(stepWeights) > 0 {
				idx := k
				if idx >= len(stepWeights) {
					idx = len(stepWeights) - 1
				}
				w = stepWeights[idx]
			}
			if w == 0 {
				continue
			}
			events = append(events, Event{UserID: r.UserID, ItemID: id, Weight: w})
		}
	}
	return events
}

// BuildInteractions 由训练事件与评估事件组装交互数据集。
// 用户表取两组事件中出现过的用户 ID 去重排序；目录中不存在的物品 ID 报错。
func BuildInteractions(catalog *core.Catalog, trainEvents, targetEvents []Event, prior []float64) (*core.Interactions, error) {
	userIdx := make(map[string]int)
	var users []string
	for _, e := range append(append([]Event{}, trainEvents...), targetEvents...) {
		if _, ok := userIdx[e.UserID]; !ok {
			userIdx[e.UserID] = 0
			users = append(users, e.UserID)
		}
	}
	sort.Strings(users)
	for i, u := range users {
		userIdx[u] = i
	}

	resolve := func(e Event) (int, int, error) {
		item, ok := catalog.IndexOf(e.ItemID)
		if !ok {
			return 0, 0, core.NewDomainError(core.ModuleDataset, core.ErrorCodeNotFound,
				"pipeline: event references unknown item "+strconv.FormatInt(e.ItemID, 10))
		}
		return userIdx[e.UserID], item, nil
	}

	train := make([]core.Edge, 0, len(trainEvents))
	for _, e := range trainEvents {
		u, i, err := resolve(e)
		if err != nil {
			return nil, err
		}
		train = append(train, core.Edge{User: u, Item: i, Weight: e.Weight})
	}

	target := make([]core.Triplet, 0, len(targetEvents))
	for _, e := range targetEvents {
		u, i, err := resolve(e)
		if err != nil {
			return nil, err
		}
		target = append(target, core.Triplet{Row: u, Col: i, Value: e.Weight})
	}

	return core.NewInteractions(users, catalog.Len(), train, target, prior)
}
