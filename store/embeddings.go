package store

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/zhuotongchen/crowd-coachable-recommendations/core"
)

// EmbeddingExporter 把训练产出的物品向量发布到 Store，
// 供在线召回按物品 ID 查表。
//
// 键格式：<prefix>:<item_id>，值为 JSON 数组。
type EmbeddingExporter struct {
	store  core.Store
	prefix string
	// ChunkSize 是单次 BatchSet 的条目数上限
	ChunkSize int
	// Workers 是并行写入的分片数
	Workers int
}

// NewEmbeddingExporter 创建导出器。prefix 为空时使用 "emb:item"。
func NewEmbeddingExporter(s core.Store, prefix string) *EmbeddingExporter {
	if prefix == "" {
		prefix = "emb:item"
	}
	return &EmbeddingExporter{store: s, prefix: prefix, ChunkSize: 256, Workers: 4}
}

func (e *EmbeddingExporter) key(id int64) string {
	return fmt.Sprintf("%s:%d", e.prefix, id)
}

// Export 把目录内每个物品的向量写入存储，按 ChunkSize 分片并行。
// embeddings 的行序必须与目录一致。
func (e *EmbeddingExporter) Export(ctx context.Context, catalog *core.Catalog, embeddings [][]float64) error {
	if len(embeddings) != catalog.Len() {
		return core.NewDomainError(core.ModuleStore, core.ErrorCodeInvalidInput,
			fmt.Sprintf("store: %d embeddings for %d catalog items", len(embeddings), catalog.Len()))
	}

	chunk := e.ChunkSize
	if chunk < 1 {
		chunk = 256
	}
	workers := e.Workers
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < catalog.Len(); start += chunk {
		start := start
		end := start + chunk
		if end > catalog.Len() {
			end = catalog.Len()
		}
		g.Go(func() error {
			kvs := make(map[string][]byte, end-start)
			for i := start; i < end; i++ {
				data, err := json.Marshal(embeddings[i])
				if err != nil {
					return fmt.Errorf("store: marshal embedding for item %d: %w", catalog.At(i).ID, err)
				}
				kvs[e.key(catalog.At(i).ID)] = data
			}
			return e.store.BatchSet(gctx, kvs)
		})
	}
	return g.Wait()
}

// Load 读回单个物品的向量。
func (e *EmbeddingExporter) Load(ctx context.Context, id int64) ([]float64, error) {
	data, err := e.store.Get(ctx, e.key(id))
	if err != nil {
		return nil, err
	}
	var out []float64
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("store: parse embedding for item %d: %w", id, err)
	}
	return out, nil
}
