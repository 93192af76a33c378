package core

// EncodeOptions 是标题编码的固定配置：补齐到 MaxLength，超长截断。
// 同一配置在目录分词与模型内部共享，保证所有模型副本看到同一形状的输入。
type EncodeOptions struct {
	MaxLength int
	Truncate  bool
}

// TokenBatch 是整个目录一次性编码出的定形输入批。
//
// 约束：
//   - IDs/Mask 形状均为 [目录大小][MaxLength]
//   - 构造一次后只读：多个模型副本共享同一份，禁止原地修改
type TokenBatch struct {
	IDs  [][]int // token id，右侧补 pad id
	Mask [][]int // attention mask：1 有效 0 补齐
}

// NumRows 返回批内行数（即目录大小）。
func (b *TokenBatch) NumRows() int { return len(b.IDs) }

// Tokenizer 是分词协作方的契约。
//
// 设计原则：
//   - 定义在领域层（core），由 tokenize 包实现
//   - 预训练分词器（subword）与自包含哈希分词器均实现此接口
type Tokenizer interface {
	// Name 返回分词器名称（用于日志/超参记录）
	Name() string

	// VocabSize 返回词表大小，内容模型以此决定输入维度
	VocabSize() int

	// EncodeBatch 将一组标题编码为定形 TokenBatch
	EncodeBatch(titles []string, opt EncodeOptions) (*TokenBatch, error)
}
