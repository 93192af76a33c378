// Package store 提供 core.Store 的内存与 Redis 实现，
// 以及把训练产出的物品向量发布到存储的导出器。
//
// 注意：接口定义在 core 包，此包只含实现。
package store
