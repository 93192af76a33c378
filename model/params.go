package model

import (
	"fmt"
	"math"
	"math/rand"
)

// Param 是一个可训练参数张量（行主序存储的二维矩阵，向量取 Cols=1）。
//
// 设计要点：
//   - Data 与 Grad 等长；优化器只更新 RequiresGrad 的参数
//   - Name 全局唯一，checkpoint 按 Name+形状做部分加载
type Param struct {
	Name         string
	Rows, Cols   int
	Data         []float64
	Grad         []float64
	RequiresGrad bool
}

// NewParam 创建随机初始化的参数：均匀分布 [-scale, scale]。
func NewParam(name string, rows, cols int, scale float64, rng *rand.Rand) *Param {
	n := rows * cols
	data := make([]float64, n)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * scale
	}
	return &Param{
		Name: name, Rows: rows, Cols: cols,
		Data: data, Grad: make([]float64, n),
		RequiresGrad: true,
	}
}

// NewZeroParam 创建零初始化的参数（偏置项常用）。
func NewZeroParam(name string, rows, cols int) *Param {
	n := rows * cols
	return &Param{
		Name: name, Rows: rows, Cols: cols,
		Data: make([]float64, n), Grad: make([]float64, n),
		RequiresGrad: true,
	}
}

// Row 返回第 r 行的只读视图。
func (p *Param) Row(r int) []float64 {
	return p.Data[r*p.Cols : (r+1)*p.Cols]
}

// GradRow 返回第 r 行梯度的可写视图。
func (p *Param) GradRow(r int) []float64 {
	return p.Grad[r*p.Cols : (r+1)*p.Cols]
}

// ZeroGrad 清零梯度。
func (p *Param) ZeroGrad() {
	for i := range p.Grad {
		p.Grad[i] = 0
	}
}

// WeightTensor 是参数的序列化形态（checkpoint 中的一项）。
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// StateDict 导出全部参数为可序列化的权重列表。
func StateDict(params []*Param) []WeightTensor {
	out := make([]WeightTensor, 0, len(params))
	for _, p := range params {
		data := make([]float64, len(p.Data))
		copy(data, p.Data)
		out = append(out, WeightTensor{Name: p.Name, Shape: []int{p.Rows, p.Cols}, Data: data})
	}
	return out
}

// LoadStateDict 将权重列表加载进参数。
// strict=false 时与 load_state_dict(strict=False) 语义一致：
// 缺失的参数保留当前内存值，多余的权重被忽略；形状不符视为缺失。
// strict=true 时任何缺失/多余/形状不符都返回错误。
func LoadStateDict(params []*Param, weights []WeightTensor, strict bool) error {
	byName := make(map[string]WeightTensor, len(weights))
	for _, w := range weights {
		byName[w.Name] = w
	}

	loaded := make(map[string]bool, len(params))
	for _, p := range params {
		w, ok := byName[p.Name]
		if !ok || len(w.Shape) != 2 || w.Shape[0] != p.Rows || w.Shape[1] != p.Cols || len(w.Data) != len(p.Data) {
			if strict {
				return fmt.Errorf("model: state dict missing or mismatched parameter %q", p.Name)
			}
			continue
		}
		copy(p.Data, w.Data)
		loaded[p.Name] = true
	}

	if strict {
		for name := range byName {
			if !loaded[name] {
				return fmt.Errorf("model: state dict has unexpected parameter %q", name)
			}
		}
	}
	return nil
}

// NumTrainable 统计可训练标量参数个数。
func NumTrainable(params []*Param) int {
	n := 0
	for _, p := range params {
		if p.RequiresGrad {
			n += len(p.Data)
		}
	}
	return n
}

// 数值工具：模型各处共用的标量函数。

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func logSumExp(xs []float64) float64 {
	max := math.Inf(-1)
	for _, x := range xs {
		if x > max {
			max = x
		}
	}
	if math.IsInf(max, -1) {
		return max
	}
	var sum float64
	for _, x := range xs {
		sum += math.Exp(x - max)
	}
	return max + math.Log(sum)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
