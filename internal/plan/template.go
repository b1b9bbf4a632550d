package plan

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

// placeholderRe matches {{step_<id>_result}}, tolerating inner whitespace.
var placeholderRe = regexp.MustCompile(`\{\{\s*step_(\d+)_result\s*\}\}`)

// References returns the distinct step ids referenced by placeholders
// anywhere in args, sorted ascending.
func References(args map[string]any) []int {
	seen := map[int]bool{}
	walkStrings(args, func(s string) {
		for _, m := range placeholderRe.FindAllStringSubmatch(s, -1) {
			if id, err := strconv.Atoi(m[1]); err == nil {
				seen[id] = true
			}
		}
	})
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func walkStrings(v any, fn func(string)) {
	switch t := v.(type) {
	case string:
		fn(t)
	case map[string]any:
		for _, e := range t {
			walkStrings(e, fn)
		}
	case []any:
		for _, e := range t {
			walkStrings(e, fn)
		}
	}
}

// Substitute returns a copy of args with placeholders replaced by the
// results of earlier steps. A string that is exactly one placeholder takes
// the raw result value; a placeholder embedded in longer text is replaced by
// the result rendered as text (strings verbatim, everything else as JSON).
// Referencing a step with no result is an error.
func Substitute(args map[string]any, results map[int]any) (map[string]any, error) {
	out, err := substitute(args, results)
	if err != nil {
		return nil, err
	}
	m, _ := out.(map[string]any)
	return m, nil
}

func substitute(v any, results map[int]any) (any, error) {
	switch t := v.(type) {
	case string:
		return substituteString(t, results)
	case map[string]any:
		if t == nil {
			return map[string]any(nil), nil
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			r, err := substitute(e, results)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			r, err := substitute(e, results)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	}
	return v, nil
}

func substituteString(s string, results map[int]any) (any, error) {
	if m := placeholderRe.FindStringSubmatchIndex(s); m != nil && m[0] == 0 && m[1] == len(s) {
		id, _ := strconv.Atoi(s[m[2]:m[3]])
		val, ok := results[id]
		if !ok {
			return nil, fmt.Errorf("unresolved placeholder {{step_%d_result}}", id)
		}
		return val, nil
	}

	var missing error
	out := placeholderRe.ReplaceAllStringFunc(s, func(ph string) string {
		id, _ := strconv.Atoi(placeholderRe.FindStringSubmatch(ph)[1])
		val, ok := results[id]
		if !ok {
			if missing == nil {
				missing = fmt.Errorf("unresolved placeholder {{step_%d_result}}", id)
			}
			return ph
		}
		return textOf(val)
	})
	if missing != nil {
		return nil, missing
	}
	return out, nil
}

func textOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
