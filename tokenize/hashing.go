// Package tokenize 提供 core.Tokenizer 的两种实现：
// 自包含的哈希分词器（默认，无外部文件依赖）与预训练 subword 分词器适配。
package tokenize

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/zhuotongchen/crowd-coachable-recommendations/core"
)

// PadID 是补齐 token 的保留 id，两种实现共用。
const PadID = 0

// Hashing 是基于词哈希的分词器。
//
// 核心思想：
//   - 标题按空白切词、转小写，每个词通过 FNV 哈希映射到固定大小的桶
//   - 无需词表文件，目录多大都能用；哈希冲突以牺牲少量区分度为代价换取零依赖
//   - 桶号 0 保留给 padding，实际词落在 [1, Buckets)
//
// 使用场景：
//   - 测试/原型：无网络、无模型文件
//   - 小目录训练：标题词汇量远小于桶数时冲突可忽略
type Hashing struct {
	// Buckets 是哈希桶数（即词表大小），必须 >= 2
	Buckets int
}

// NewHashing 创建哈希分词器。buckets <= 1 时使用默认 1024。
func NewHashing(buckets int) *Hashing {
	if buckets <= 1 {
		buckets = 1024
	}
	return &Hashing{Buckets: buckets}
}

func (h *Hashing) Name() string { return "hashing" }

// VocabSize 返回词表大小（桶数）。
func (h *Hashing) VocabSize() int { return h.Buckets }

// EncodeBatch 将标题批量编码为定形 TokenBatch。
func (h *Hashing) EncodeBatch(titles []string, opt core.EncodeOptions) (*core.TokenBatch, error) {
	if opt.MaxLength <= 0 {
		return nil, fmt.Errorf("tokenize: max length must be positive, got %d", opt.MaxLength)
	}

	ids := make([][]int, len(titles))
	mask := make([][]int, len(titles))
	for i, title := range titles {
		words := strings.Fields(strings.ToLower(strings.TrimSpace(title)))
		if len(words) > opt.MaxLength {
			if !opt.Truncate {
				return nil, fmt.Errorf("tokenize: title %d has %d tokens, exceeds max length %d", i, len(words), opt.MaxLength)
			}
			words = words[:opt.MaxLength]
		}

		row := make([]int, opt.MaxLength)
		m := make([]int, opt.MaxLength)
		for j, w := range words {
			row[j] = h.tokenID(w)
			m[j] = 1
		}
		ids[i] = row
		mask[i] = m
	}

	return &core.TokenBatch{IDs: ids, Mask: mask}, nil
}

// tokenID 将单词哈希到 [1, Buckets)，0 保留给 padding。
func (h *Hashing) tokenID(word string) int {
	f := fnv.New32a()
	f.Write([]byte(word))
	return 1 + int(f.Sum32()%uint32(h.Buckets-1))
}
