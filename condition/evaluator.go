package condition

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/formpulse/automate/logger"
	"github.com/formpulse/automate/model"
	"go.uber.org/zap"
)

// Evaluate runs the workflow's condition set against the trigger data. An
// empty set passes. All conditions share the logic of the first one: AND
// requires every condition to pass, OR requires at least one.
func Evaluate(conditions []model.Condition, data map[string]any) bool {
	if len(conditions) == 0 {
		return true
	}
	logic := conditions[0].Logic
	if logic != model.LOGIC_OR {
		logic = model.LOGIC_AND
	}
	for _, cond := range conditions {
		passed := evaluateOne(cond, data)
		if logic == model.LOGIC_AND && !passed {
			return false
		}
		if logic == model.LOGIC_OR && passed {
			return true
		}
	}
	return logic == model.LOGIC_AND
}

func evaluateOne(cond model.Condition, data map[string]any) bool {
	actual := LookupPath(data, cond.Field)
	switch cond.Operator {
	case model.OP_EQUALS:
		return looseEquals(actual, cond.Value)
	case model.OP_NOT_EQUALS:
		return !looseEquals(actual, cond.Value)
	case model.OP_CONTAINS:
		return strings.Contains(lowerString(actual), lowerString(cond.Value))
	case model.OP_NOT_CONTAINS:
		return !strings.Contains(lowerString(actual), lowerString(cond.Value))
	case model.OP_STARTS_WITH:
		return strings.HasPrefix(lowerString(actual), lowerString(cond.Value))
	case model.OP_ENDS_WITH:
		return strings.HasSuffix(lowerString(actual), lowerString(cond.Value))
	case model.OP_GREATER_THAN:
		a, b, ok := numericPair(actual, cond.Value)
		return ok && a > b
	case model.OP_LESS_THAN:
		a, b, ok := numericPair(actual, cond.Value)
		return ok && a < b
	case model.OP_GREATER_THAN_OR_EQUAL:
		a, b, ok := numericPair(actual, cond.Value)
		return ok && a >= b
	case model.OP_LESS_THAN_OR_EQUAL:
		a, b, ok := numericPair(actual, cond.Value)
		return ok && a <= b
	case model.OP_IS_EMPTY:
		return isEmpty(actual)
	case model.OP_IS_NOT_EMPTY:
		return !isEmpty(actual)
	case model.OP_MATCHES_REGEX:
		re, err := regexp.Compile(fmt.Sprintf("%v", cond.Value))
		if err != nil {
			logger.Warn("invalid condition regex", zap.String("field", cond.Field), zap.Error(err))
			return false
		}
		return re.MatchString(fmt.Sprintf("%v", actual))
	case model.OP_IN:
		return inList(actual, cond.Value)
	case model.OP_NOT_IN:
		return !inList(actual, cond.Value)
	default:
		logger.Warn("unknown condition operator", zap.String("operator", string(cond.Operator)), zap.String("field", cond.Field))
		return false
	}
}

// LookupPath resolves a dot-separated path through nested maps. A missing
// segment yields nil.
func LookupPath(data map[string]any, path string) any {
	var current any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}

// looseEquals compares numerically when both operands parse as numbers,
// otherwise as case-insensitive strings. nil only equals nil.
func looseEquals(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}
	if a, aok := toNumber(actual); aok {
		if b, bok := toNumber(expected); bok {
			return a == b
		}
	}
	return strings.EqualFold(fmt.Sprintf("%v", actual), fmt.Sprintf("%v", expected))
}

func numericPair(actual, expected any) (float64, float64, bool) {
	a, aok := toNumber(actual)
	b, bok := toNumber(expected)
	return a, b, aok && bok
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func lowerString(v any) string {
	if v == nil {
		return ""
	}
	return strings.ToLower(fmt.Sprintf("%v", v))
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch val := v.(type) {
	case string:
		return val == ""
	case bool:
		return !val
	}
	if n, ok := toNumber(v); ok {
		return n == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

func inList(actual, configured any) bool {
	list, ok := configured.([]any)
	if !ok {
		return false
	}
	for _, item := range list {
		if looseEquals(actual, item) {
			return true
		}
	}
	return false
}
