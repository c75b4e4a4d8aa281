package structured

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/codefionn/castcheck/internal/logger"
)

const ellipsis = "..."

// ErrNothingToRepair is returned by Repair when called without a validation
// error.
var ErrNothingToRepair = errors.New("structured: repair needs a validation error")

// Repair truncates over-long strings named by verr and re-validates. Too
// short strings and lists are left alone. data is not modified. When the
// repaired record still fails, verr itself is returned.
func Repair(ctx context.Context, data map[string]interface{}, verr *ValidationError, shape *Shape) (Record, error) {
	if verr == nil {
		return nil, ErrNothingToRepair
	}
	if data == nil {
		data = verr.Data
	}
	log := logger.FromContext(ctx)
	log.Warn("attempting auto-fix for %d validation error(s) in %s", len(verr.Violations), verr.Shape)

	fixed, _ := deepCopy(data).(map[string]interface{})
	if fixed == nil {
		return nil, verr
	}

	for _, v := range verr.Violations {
		switch v.Kind {
		case KindTooLong:
			s, ok := lookup(fixed, v.Path).(string)
			if !ok {
				continue
			}
			truncated := Truncate(s, v.Limit)
			if assign(fixed, v.Path, truncated) {
				log.Warn("auto-truncated field '%s' from %d to %d characters", v.Path, len([]rune(s)), len([]rune(truncated)))
			}
		case KindTooShort, KindListTooShort:
			log.Warn("cannot auto-fix %s for field '%s'", v.Kind, v.Path)
		}
	}

	if remaining := Validate(fixed, shape); len(remaining) > 0 {
		log.Error("auto-fix failed, returning original validation error")
		return nil, verr
	}
	return fixed, nil
}

// Truncate shortens s to at most max characters. The cut backs off to the
// last space when that keeps more than 80% of the budget, and an ellipsis
// is appended within the budget.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}

	budget := max
	if max > len(ellipsis) {
		budget = max - len(ellipsis)
	}

	cut := runes[:budget]
	if last := lastSpace(cut); last >= 0 && float64(last) > float64(max)*0.8 {
		cut = cut[:last]
	}

	out := strings.TrimRight(string(cut), " \t\n")
	if max > len(ellipsis) {
		out += ellipsis
	}
	return out
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return -1
}

func lookup(root interface{}, path string) interface{} {
	cur := root
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]interface{}:
			cur = node[seg]
		case []interface{}:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			cur = node[i]
		default:
			return nil
		}
	}
	return cur
}

func assign(root map[string]interface{}, path string, value interface{}) bool {
	segs := strings.Split(path, ".")
	parent := lookup(root, strings.Join(segs[:len(segs)-1], "."))
	if len(segs) == 1 {
		parent = root
	}
	last := segs[len(segs)-1]

	switch node := parent.(type) {
	case map[string]interface{}:
		node[last] = value
		return true
	case []interface{}:
		i, err := strconv.Atoi(last)
		if err != nil || i < 0 || i >= len(node) {
			return false
		}
		node[i] = value
		return true
	}
	return false
}

func deepCopy(v interface{}) interface{} {
	switch node := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(node))
		for k, val := range node {
			out[k] = deepCopy(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(node))
		for i, val := range node {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
