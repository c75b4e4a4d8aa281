package structured

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ViolationKind classifies a constraint failure.
type ViolationKind string

const (
	KindTooLong      ViolationKind = "too_long"
	KindTooShort     ViolationKind = "too_short"
	KindListTooShort ViolationKind = "list_too_short"
	KindListTooLong  ViolationKind = "list_too_long"
	KindOutOfRange   ViolationKind = "out_of_range"
	KindEnum         ViolationKind = "enum"
	KindMissing      ViolationKind = "missing"
	KindType         ViolationKind = "type"
	KindOther        ViolationKind = "other"
)

// Violation is one failed constraint. Path joins keys and list indices with
// dots, e.g. "verified_claims.0.confidence".
type Violation struct {
	Path    string
	Kind    ViolationKind
	Message string
	Actual  int
	Limit   int
}

// Validate checks data against the shape and returns every violation found.
func Validate(data map[string]interface{}, shape *Shape) []Violation {
	var v validator
	v.object("", data, shape)
	return v.out
}

type validator struct {
	out []Violation
}

func (v *validator) add(path string, kind ViolationKind, msg string, actual, limit int) {
	v.out = append(v.out, Violation{Path: path, Kind: kind, Message: msg, Actual: actual, Limit: limit})
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func (v *validator) object(prefix string, data map[string]interface{}, shape *Shape) {
	if shape == nil {
		return
	}
	for _, f := range shape.Fields {
		path := joinPath(prefix, f.Name)
		value, ok := data[f.Name]
		if !ok {
			if !f.Optional {
				v.add(path, KindMissing, "Field required", 0, 0)
			}
			continue
		}
		if value == nil && f.Optional {
			continue
		}
		v.field(path, value, f)
	}
}

func (v *validator) field(path string, value interface{}, f Field) {
	switch f.Type {
	case TypeAny:
		return
	case TypeString:
		s, ok := value.(string)
		if !ok {
			v.add(path, KindType, "Input should be a valid string", 0, 0)
			return
		}
		v.str(path, s, f)
	case TypeNumber, TypeInteger:
		n, ok := value.(float64)
		if !ok {
			v.add(path, KindType, "Input should be a valid number", 0, 0)
			return
		}
		if f.Type == TypeInteger && n != math.Trunc(n) {
			v.add(path, KindType, "Input should be a valid integer", 0, 0)
			return
		}
		v.number(path, n, f)
	case TypeBool:
		if _, ok := value.(bool); !ok {
			v.add(path, KindType, "Input should be a valid boolean", 0, 0)
		}
	case TypeList:
		items, ok := value.([]interface{})
		if !ok {
			v.add(path, KindType, "Input should be a valid list", 0, 0)
			return
		}
		v.list(path, items, f)
	case TypeObject:
		obj, ok := value.(map[string]interface{})
		if !ok {
			v.add(path, KindType, "Input should be a valid dictionary", 0, 0)
			return
		}
		v.object(path, obj, f.Shape)
	}
}

func (v *validator) str(path, s string, f Field) {
	n := utf8.RuneCountInString(s)
	if f.MinLength > 0 && n < f.MinLength {
		v.add(path, KindTooShort, fmt.Sprintf("String should have at least %d characters", f.MinLength), n, f.MinLength)
	}
	if f.MaxLength > 0 && n > f.MaxLength {
		v.add(path, KindTooLong, fmt.Sprintf("String should have at most %d characters", f.MaxLength), n, f.MaxLength)
	}
	if len(f.Enum) > 0 && !contains(f.Enum, s) {
		v.add(path, KindEnum, "Input should be "+quoteAlternatives(f.Enum), 0, 0)
	}
}

func (v *validator) number(path string, n float64, f Field) {
	if f.Min != nil && n < *f.Min {
		v.add(path, KindOutOfRange, "Input should be greater than or equal to "+formatNumber(*f.Min), 0, 0)
	}
	if f.Max != nil && n > *f.Max {
		v.add(path, KindOutOfRange, "Input should be less than or equal to "+formatNumber(*f.Max), 0, 0)
	}
}

func (v *validator) list(path string, items []interface{}, f Field) {
	n := len(items)
	if f.MinItems > 0 && n < f.MinItems {
		v.add(path, KindListTooShort, fmt.Sprintf("List should have at least %d items after validation, not %d", f.MinItems, n), n, f.MinItems)
	}
	if f.MaxItems > 0 && n > f.MaxItems {
		v.add(path, KindListTooLong, fmt.Sprintf("List should have at most %d items after validation, not %d", f.MaxItems, n), n, f.MaxItems)
	}
	if f.Items == nil {
		return
	}
	for i, item := range items {
		p := joinPath(path, strconv.Itoa(i))
		if item == nil && f.Items.Optional {
			continue
		}
		v.field(p, item, *f.Items)
	}
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

// quoteAlternatives renders "'a', 'b' or 'c'".
func quoteAlternatives(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + v + "'"
	}
	if len(quoted) == 1 {
		return quoted[0]
	}
	return strings.Join(quoted[:len(quoted)-1], ", ") + " or " + quoted[len(quoted)-1]
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
