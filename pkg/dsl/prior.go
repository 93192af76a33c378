// Package dsl 把配置中的先验变换表达式编译为可执行的 PriorTransform，
// 使用 CEL (Common Expression Language) 实现。
//
// 表达式按元素作用在先验分数向量上，可用变量与函数：
//   - x: 当前物品的先验分数（double）
//   - n: 目录物品数（int）
//   - log(v): 自然对数
//   - clip(v, lo, hi): 截断到 [lo, hi]
//
// 示例（常用的数值稳定变换）：
//
//	log(clip(x + 1.0 / double(n), 0.0, 1.0e308))
package dsl

import (
	"fmt"
	"math"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/zhuotongchen/crowd-coachable-recommendations/model"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，定义变量和函数
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("x", cel.DoubleType),
		cel.Variable("n", cel.IntType),
		cel.Function("log",
			cel.Overload("log_double", []*cel.Type{cel.DoubleType}, cel.DoubleType,
				cel.UnaryBinding(func(arg ref.Val) ref.Val {
					v, ok := arg.(types.Double)
					if !ok {
						return types.NewErr("log: expected double")
					}
					return types.Double(math.Log(float64(v)))
				}))),
		cel.Function("clip",
			cel.Overload("clip_double", []*cel.Type{cel.DoubleType, cel.DoubleType, cel.DoubleType}, cel.DoubleType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					v, ok1 := args[0].(types.Double)
					lo, ok2 := args[1].(types.Double)
					hi, ok3 := args[2].(types.Double)
					if !ok1 || !ok2 || !ok3 {
						return types.NewErr("clip: expected doubles")
					}
					out := float64(v)
					if out < float64(lo) {
						out = float64(lo)
					}
					if out > float64(hi) {
						out = float64(hi)
					}
					return types.Double(out)
				}))),
	)
}

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = initCELEnv()
	})
	return celEnv, celEnvErr
}

// CompilePrior 把表达式编译为 PriorTransform。
// 表达式编译一次，变换对向量逐元素求值。
func CompilePrior(expr string) (model.PriorTransform, error) {
	if expr == "" {
		return model.IdentityPrior, nil
	}

	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("dsl: init env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("dsl: compile %q: %w", expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.DoubleType) {
		return nil, fmt.Errorf("dsl: expression %q must return double, got %s", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("dsl: program %q: %w", expr, err)
	}

	return func(prior []float64) []float64 {
		out := make([]float64, len(prior))
		n := int64(len(prior))
		for i, p := range prior {
			val, _, err := prg.Eval(map[string]any{"x": p, "n": n})
			if err != nil {
				// 单点求值失败回退为原值，避免整批变换中断
				out[i] = p
				continue
			}
			if d, ok := val.Value().(float64); ok {
				out[i] = d
			} else {
				out[i] = p
			}
		}
		return out
	}, nil
}
