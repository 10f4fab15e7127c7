package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/pkg/conv"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

// getCELEnv 获取或创建 CEL 环境，唯一变量为 item
func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("item", cel.DynType),
		)
	})
	return celEnv, celEnvErr
}

// Program 是编译好的物品资格表达式，使用 CEL (Common Expression Language)。
// 编译一次，可被并发 Eval。
//
// 可用字段：
//   - item.item_id / item.name / item.category / item.price / item.image_url
//   - item.rating / item.popularity_score（可能缺失，用 has() 判断）
//
// 示例：
//   - `item.price > 0.0`
//   - `item.category != "Discontinued" && (!has(item.rating) || item.rating >= 2.0)`
type Program struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式，要求返回 bool。空表达式返回 nil（表示全部放行）。
func Compile(expr string) (*Program, error) {
	if expr == "" {
		return nil, nil
	}
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("compile %q: expression must return bool, got %s", expr, out)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}
	return &Program{expr: expr, prg: prg}, nil
}

func (p *Program) String() string { return p.expr }

// Eligible 对一个物品求值
func (p *Program) Eligible(item core.ItemRecord) (bool, error) {
	out, _, err := p.prg.Eval(map[string]any{"item": itemInput(item)})
	if err != nil {
		return false, fmt.Errorf("eval %q on item %d: %w", p.expr, item.ItemID, err)
	}
	b, ok := conv.TypeAssert[types.Bool](out)
	if !ok {
		return false, fmt.Errorf("eval %q on item %d: expected bool, got %T", p.expr, item.ItemID, out.Value())
	}
	return bool(b), nil
}

// itemInput 构建 CEL 输入；可选字段缺失时不写入，has() 返回 false
func itemInput(it core.ItemRecord) map[string]any {
	m := map[string]any{
		"item_id":   int64(it.ItemID),
		"name":      it.Name,
		"category":  it.Category,
		"price":     it.Price,
		"image_url": it.ImageURL,
	}
	if it.Rating != nil {
		m["rating"] = *it.Rating
	}
	if it.PopularityScore != nil {
		m["popularity_score"] = *it.PopularityScore
	}
	return m
}
