package approval

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Knetic/govaluate"
)

var conditionVarPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// EvaluateConditions 对请求载荷求值步骤谓词
// 支持的语法：
//   - days > 3
//   - {{leave_type}} == "annual"
//   - estimated_cost >= 10000 && priority == "high"
//
// 空表达式视为无条件命中。
func EvaluateConditions(expr string, payload map[string]any) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}

	// 先把 {{ path }} 形式的变量替换为占位符，避免 govaluate 解析出错
	placeholders := make(map[string]string)
	processed := conditionVarPattern.ReplaceAllStringFunc(expr, func(match string) string {
		content := strings.TrimSpace(match[2 : len(match)-2])
		name := fmt.Sprintf("var%d", len(placeholders))
		placeholders[name] = content
		return name
	})

	expression, err := govaluate.NewEvaluableExpression(processed)
	if err != nil {
		return false, fmt.Errorf("解析条件表达式失败: %w", err)
	}

	parameters := make(map[string]interface{})
	for name, path := range placeholders {
		parameters[name] = lookupPayloadPath(payload, path)
	}
	for _, v := range expression.Vars() {
		if _, exists := parameters[v]; exists {
			continue
		}
		parameters[v] = lookupPayloadPath(payload, v)
	}

	result, err := expression.Evaluate(parameters)
	if err != nil {
		return false, fmt.Errorf("求值条件表达式失败: %w", err)
	}

	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("条件表达式结果不是布尔值: %v", result)
	}
	return matched, nil
}

// lookupPayloadPath 按点号路径取载荷字段，缺失返回 nil
func lookupPayloadPath(payload map[string]any, path string) any {
	path = strings.TrimSpace(path)
	if payload == nil || path == "" {
		return nil
	}
	segments := strings.Split(path, ".")
	var current any = payload
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return normalizeConditionValue(current)
}

// normalizeConditionValue 统一数值类型，govaluate 内部按 float64 比较
func normalizeConditionValue(v any) any {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}
