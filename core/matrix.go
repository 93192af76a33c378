package core

import "fmt"

// CSR 是按行压缩的稀疏矩阵（Compressed Sparse Row）。
//
// 使用场景：
//   - 训练边矩阵：user × item 的交互权重
//   - 评估目标矩阵：留出的 (user, item) 正例
//
// 构造后只读；按行遍历是唯一的热路径，不提供修改接口。
type CSR struct {
	rows, cols int
	indptr     []int
	indices    []int
	data       []float64
}

// Triplet 是一条稀疏矩阵元素 (row, col, value)。
type Triplet struct {
	Row, Col int
	Value    float64
}

// NewCSR 由 (row, col, value) 三元组构建 CSR。
// 同一 (row, col) 出现多次时权重累加；value 为 0 的条目被丢弃。
func NewCSR(rows, cols int, triplets []Triplet) (*CSR, error) {
	merged := make(map[[2]int]float64, len(triplets))
	for _, t := range triplets {
		if t.Row < 0 || t.Row >= rows || t.Col < 0 || t.Col >= cols {
			return nil, fmt.Errorf("csr: triplet (%d,%d) out of shape (%d,%d)", t.Row, t.Col, rows, cols)
		}
		merged[[2]int{t.Row, t.Col}] += t.Value
	}

	counts := make([]int, rows)
	for k, v := range merged {
		if v == 0 {
			delete(merged, k)
			continue
		}
		counts[k[0]]++
	}

	indptr := make([]int, rows+1)
	for r := 0; r < rows; r++ {
		indptr[r+1] = indptr[r] + counts[r]
	}

	nnz := indptr[rows]
	indices := make([]int, nnz)
	data := make([]float64, nnz)
	next := make([]int, rows)
	copy(next, indptr[:rows])
	for k, v := range merged {
		pos := next[k[0]]
		indices[pos] = k[1]
		data[pos] = v
		next[k[0]]++
	}

	// 行内按列排序，保证遍历顺序稳定
	for r := 0; r < rows; r++ {
		lo, hi := indptr[r], indptr[r+1]
		for i := lo + 1; i < hi; i++ {
			for j := i; j > lo && indices[j-1] > indices[j]; j-- {
				indices[j-1], indices[j] = indices[j], indices[j-1]
				data[j-1], data[j] = data[j], data[j-1]
			}
		}
	}

	return &CSR{rows: rows, cols: cols, indptr: indptr, indices: indices, data: data}, nil
}

// Rows 返回行数。
func (m *CSR) Rows() int { return m.rows }

// Cols 返回列数。
func (m *CSR) Cols() int { return m.cols }

// NNZ 返回非零元素个数。
func (m *CSR) NNZ() int { return len(m.data) }

// Row 返回第 r 行的列下标与取值切片（只读视图）。
func (m *CSR) Row(r int) (cols []int, vals []float64) {
	lo, hi := m.indptr[r], m.indptr[r+1]
	return m.indices[lo:hi], m.data[lo:hi]
}

// At 返回 (r, c) 处的取值，不存在时为 0。
func (m *CSR) At(r, c int) float64 {
	cols, vals := m.Row(r)
	for i, cc := range cols {
		if cc == c {
			return vals[i]
		}
		if cc > c {
			break
		}
	}
	return 0
}

// RowSet 返回第 r 行非零列的集合，用于负采样排除已交互物品。
func (m *CSR) RowSet(r int) map[int]struct{} {
	cols, _ := m.Row(r)
	set := make(map[int]struct{}, len(cols))
	for _, c := range cols {
		set[c] = struct{}{}
	}
	return set
}
