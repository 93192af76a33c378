package train

import (
	"math"

	"github.com/zhuotongchen/crowd-coachable-recommendations/model"
)

// AdamW 是带解耦权重衰减的 Adam 优化器。
//
// 工程特征：
//   - 一阶/二阶矩按参数名惰性分配，跨 Step 持久
//   - 偏置校正按全局步数计算
//   - 权重衰减直接作用在参数上（不进梯度），冻结参数完全跳过
type AdamW struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Epsilon     float64
	WeightDecay float64

	step int
	m    map[string][]float64
	v    map[string][]float64
}

// NewAdamW 由模型的优化器配置创建 AdamW，矩估计用标准缺省值。
func NewAdamW(cfg model.OptimizerConfig) *AdamW {
	return &AdamW{
		LR:          cfg.LR,
		Beta1:       0.9,
		Beta2:       0.999,
		Epsilon:     1e-8,
		WeightDecay: cfg.WeightDecay,
		m:           make(map[string][]float64),
		v:           make(map[string][]float64),
	}
}

// Step 按当前累积梯度更新一次全部参数。
func (o *AdamW) Step(params []*model.Param) {
	o.step++
	c1 := 1 - math.Pow(o.Beta1, float64(o.step))
	c2 := 1 - math.Pow(o.Beta2, float64(o.step))

	for _, p := range params {
		if !p.RequiresGrad {
			continue
		}
		m, ok := o.m[p.Name]
		if !ok {
			m = make([]float64, len(p.Data))
			o.m[p.Name] = m
		}
		v, ok := o.v[p.Name]
		if !ok {
			v = make([]float64, len(p.Data))
			o.v[p.Name] = v
		}

		for i, g := range p.Grad {
			m[i] = o.Beta1*m[i] + (1-o.Beta1)*g
			v[i] = o.Beta2*v[i] + (1-o.Beta2)*g*g
			mHat := m[i] / c1
			vHat := v[i] / c2
			p.Data[i] -= o.LR * (mHat/(math.Sqrt(vHat)+o.Epsilon) + o.WeightDecay*p.Data[i])
		}
	}
}

// StepCount 返回已执行的更新步数。
func (o *AdamW) StepCount() int { return o.step }
