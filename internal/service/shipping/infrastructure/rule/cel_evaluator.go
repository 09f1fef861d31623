package rule

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/shipping/domain"
)

// CELEvaluator 是 domain.ConditionEvaluator 接口的一个具体实现。
// 它把第三方 cel-go 的 API 适配到我们自己的领域接口。
type CELEvaluator struct {
	env      *cel.Env
	programs sync.Map // expression -> cel.Program
}

// NewCELEvaluator 创建一个新的条件评估器，声明所有可用的事实变量。
func NewCELEvaluator() (*CELEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("product_id", cel.StringType),
		cel.Variable("province_code", cel.StringType),
		cel.Variable("city", cel.StringType),
		cel.Variable("city_id", cel.IntType),
		cel.Variable("coupon", cel.StringType),
		cel.Variable("subtotal", cel.DoubleType),
		cel.Variable("item_count", cel.IntType),
		cel.Variable("weight_kg", cel.DoubleType),
		// 允许 subtotal >= 2000 这类 double 与 int 字面量的比较
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, err
	}
	return &CELEvaluator{env: env}, nil
}

// Evaluate 实现了 domain.ConditionEvaluator 接口。
func (e *CELEvaluator) Evaluate(expression string, fact domain.Fact) (bool, error) {
	prg, err := e.program(expression)
	if err != nil {
		metrics.ConditionErrorsTotal.Inc()
		return false, err
	}

	// 1. 将领域对象 Fact 转换为 CEL 的 activation
	activation, err := factToMap(fact)
	if err != nil {
		return false, err
	}

	// 2. 执行评估
	out, _, err := prg.Eval(activation)
	if err != nil {
		metrics.ConditionErrorsTotal.Inc()
		return false, fmt.Errorf("evaluate condition %q: %w", expression, err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		metrics.ConditionErrorsTotal.Inc()
		return false, fmt.Errorf("condition %q returned %s, want bool", expression, out.Type().TypeName())
	}
	return result, nil
}

// program 编译并缓存表达式。
func (e *CELEvaluator) program(expression string) (cel.Program, error) {
	if cached, ok := e.programs.Load(expression); ok {
		return cached.(cel.Program), nil
	}

	ast, iss := e.env.Compile(expression)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile condition %q: %w", expression, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) && !ast.OutputType().IsExactType(cel.DynType) {
		return nil, fmt.Errorf("condition %q has type %s, want bool", expression, ast.OutputType())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build condition %q: %w", expression, err)
	}
	e.programs.Store(expression, prg)
	return prg, nil
}

func factToMap(fact domain.Fact) (map[string]interface{}, error) {
	// 大多数规则引擎都是基于 map[string]interface{} 工作的，这里沿用 json 标签作为变量名
	data, err := json.Marshal(fact)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	// json 把整数解成 float64，需要还原为 CEL 的 int
	m["city_id"] = fact.CityID
	m["item_count"] = fact.ItemCount
	return m, nil
}
