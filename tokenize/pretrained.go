package tokenize

import (
	"fmt"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"

	"github.com/zhuotongchen/crowd-coachable-recommendations/core"
)

// Pretrained 是预训练 subword 分词器的适配器（HuggingFace tokenizer.json 格式）。
//
// 编码输出与 Hashing 同构：定形 [目录大小][MaxLength] 的 id + mask，
// 超长标题截断、不足补 PadID，保证内容模型不感知分词器种类。
type Pretrained struct {
	tk   *tokenizer.Tokenizer
	name string
}

// NewPretrainedFromFile 从 tokenizer.json 加载预训练分词器。
func NewPretrainedFromFile(path string) (*Pretrained, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("tokenize: load pretrained tokenizer: %w", err)
	}
	return &Pretrained{tk: tk, name: "pretrained"}, nil
}

func (p *Pretrained) Name() string { return p.name }

// VocabSize 返回词表大小（含附加 token）。
func (p *Pretrained) VocabSize() int { return p.tk.GetVocabSize(true) }

// EncodeBatch 将标题批量编码为定形 TokenBatch。
// 分词器自身可能不做统一补齐，这里手动补到 MaxLength。
func (p *Pretrained) EncodeBatch(titles []string, opt core.EncodeOptions) (*core.TokenBatch, error) {
	if opt.MaxLength <= 0 {
		return nil, fmt.Errorf("tokenize: max length must be positive, got %d", opt.MaxLength)
	}

	if opt.Truncate {
		p.tk.WithTruncation(&tokenizer.TruncationParams{
			MaxLength: opt.MaxLength,
			Strategy:  tokenizer.LongestFirst,
			Stride:    0,
		})
	}

	inputBatch := make([]tokenizer.EncodeInput, len(titles))
	for i, title := range titles {
		inputBatch[i] = tokenizer.NewSingleEncodeInput(tokenizer.NewInputSequence(title))
	}

	encodings, err := p.tk.EncodeBatch(inputBatch, true)
	if err != nil {
		return nil, fmt.Errorf("tokenize: encode batch: %w", err)
	}

	ids := make([][]int, len(encodings))
	mask := make([][]int, len(encodings))
	for i, enc := range encodings {
		row := make([]int, opt.MaxLength)
		m := make([]int, opt.MaxLength)
		copyLen := len(enc.Ids)
		if copyLen > opt.MaxLength {
			copyLen = opt.MaxLength
		}
		for j := 0; j < copyLen; j++ {
			row[j] = enc.Ids[j]
			m[j] = 1
		}
		ids[i] = row
		mask[i] = m
	}

	return &core.TokenBatch{IDs: ids, Mask: mask}, nil
}
