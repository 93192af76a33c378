// Package ccr 是一个群体可指导的推荐模型训练工具包
// (Crowd-Coachable Recommendations)。
//
// 设计要点：
// - 联合目标：成对排序（BPR）与变分内容重构共享同一套物品嵌入
// - 循环均衡：双数据流按 max-size-cycle 组合，损失按循环常数归一
// - 编排安全：每次拟合训练全新模型，checkpoint 解析成功后才对外生效
package ccr

import (
	"github.com/zhuotongchen/crowd-coachable-recommendations/core"
	"github.com/zhuotongchen/crowd-coachable-recommendations/model"
	"github.com/zhuotongchen/crowd-coachable-recommendations/train"
)

// 轻量 facade：便于用户直接 import 根包使用核心抽象。
type Catalog = core.Catalog
type Item = core.Item
type Interactions = core.Interactions
type Tokenizer = core.Tokenizer
type Hyperparams = model.Hyperparams
type JointModel = model.JointModel
type Orchestrator = train.Orchestrator
type OrchestratorConfig = train.OrchestratorConfig

var (
	NewItem         = core.NewItem
	NewCatalog      = core.NewCatalog
	NewInteractions = core.NewInteractions
	NewOrchestrator = train.NewOrchestrator
)
