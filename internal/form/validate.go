package form

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/robfig/cron/v3"

	"github.com/soochol/flowdeck/internal/flowdeck"
)

// Validate checks the values of every visible field of node. Hidden fields
// are ignored so that stale values left behind by a sub-type switch never
// block the user. All violations are returned joined.
func Validate(node flowdeck.NodeInstance, def flowdeck.NodeDefinition, catalog []flowdeck.ToolInfo) error {
	var errs []error
	for _, f := range Resolve(node, def, catalog) {
		v, ok := node.Data[f.Name]
		if !ok || v == nil || v == "" {
			continue
		}
		if err := validateField(node, f, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validateField(node flowdeck.NodeInstance, f VisibleField, v any) error {
	violation := func(format string, args ...any) error {
		return flowdeck.Violationf(node.ID, f.Name, format, args...)
	}

	switch f.Kind {
	case flowdeck.KindNumber:
		if _, ok := toNumber(v); !ok {
			return violation("expected a number, got %v", v)
		}
	case flowdeck.KindBoolean:
		if _, ok := v.(bool); !ok {
			return violation("expected true or false")
		}
	case flowdeck.KindSelect:
		if len(f.Options) == 0 {
			return nil
		}
		s := fmt.Sprint(v)
		for _, o := range f.Options {
			if o.Value == s {
				return nil
			}
		}
		return violation("%q is not one of the allowed options", s)
	case flowdeck.KindJSON:
		switch val := v.(type) {
		case map[string]any, []any:
		case string:
			var tmp any
			if err := json.Unmarshal([]byte(val), &tmp); err != nil {
				return violation("invalid JSON: %v", err)
			}
		default:
			return violation("expected a JSON object or array")
		}
	}

	switch f.Name {
	case "cron":
		if _, err := ParseCron(fmt.Sprint(v)); err != nil {
			return violation("invalid cron expression: %v", err)
		}
	case "expression":
		if _, err := expr.Compile(fmt.Sprint(v), expr.AllowUndefinedVariables()); err != nil {
			return violation("invalid condition: %v", err)
		}
	}
	return nil
}

// ParseCron accepts six-field (with seconds) or standard five-field expressions.
func ParseCron(spec string) (cron.Schedule, error) {
	parser6 := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if sched, err := parser6.Parse(spec); err == nil {
		return sched, nil
	}
	parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return parser5.Parse(spec)
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
