package campaign

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Notifuse/outreach/internal/domain"
)

// SegmentMatcher evaluates segment criteria against contacts. It holds no state and
// never returns an error: data it cannot interpret is a non-match.
type SegmentMatcher struct{}

func NewSegmentMatcher() *SegmentMatcher {
	return &SegmentMatcher{}
}

// fieldValue is the result of a path lookup; Defined is false for missing or null values
type fieldValue struct {
	Value   interface{}
	Defined bool
}

// GetField resolves a dot path in the contact document
func (m *SegmentMatcher) GetField(contact *domain.Contact, path string) (interface{}, bool) {
	doc, err := contact.Document()
	if err != nil {
		return nil, false
	}
	f := lookup(doc, path)
	return f.Value, f.Defined
}

// MatchesRule reports whether one rule holds for the contact
func (m *SegmentMatcher) MatchesRule(contact *domain.Contact, rule domain.SegmentRule) bool {
	doc, err := contact.Document()
	if err != nil {
		return false
	}
	return matchRule(doc, rule)
}

// EvaluateCriteria applies the criteria logic: AND of no rules is true, OR of no rules is false
func (m *SegmentMatcher) EvaluateCriteria(contact *domain.Contact, criteria domain.SegmentCriteria) bool {
	doc, err := contact.Document()
	if err != nil {
		return false
	}
	return evaluate(doc, criteria)
}

// FilterEligible keeps the contacts that are eligible and match the criteria, preserving order
func (m *SegmentMatcher) FilterEligible(contacts []*domain.Contact, criteria domain.SegmentCriteria) []*domain.Contact {
	out := make([]*domain.Contact, 0, len(contacts))
	for _, c := range contacts {
		if c == nil || !c.IsEligible() {
			continue
		}
		if m.EvaluateCriteria(c, criteria) {
			out = append(out, c)
		}
	}
	return out
}

func evaluate(doc []byte, criteria domain.SegmentCriteria) bool {
	switch criteria.Logic {
	case domain.SegmentLogicAnd:
		for _, rule := range criteria.Rules {
			if !matchRule(doc, rule) {
				return false
			}
		}
		return true
	case domain.SegmentLogicOr:
		for _, rule := range criteria.Rules {
			if matchRule(doc, rule) {
				return true
			}
		}
		return false
	}
	return false
}

func lookup(doc []byte, path string) fieldValue {
	if path == "" {
		return fieldValue{}
	}
	parts := strings.Split(path, ".")
	for i, p := range parts {
		parts[i] = gjson.Escape(p)
	}
	res := gjson.GetBytes(doc, strings.Join(parts, "."))
	if !res.Exists() || res.Type == gjson.Null {
		return fieldValue{}
	}
	return fieldValue{Value: res.Value(), Defined: true}
}

func matchRule(doc []byte, rule domain.SegmentRule) bool {
	field := lookup(doc, rule.Field)
	ruleValue := fieldValue{Value: rule.Value, Defined: true}

	switch rule.Operator {
	case domain.OperatorEquals:
		return coerceString(field) == coerceString(ruleValue)
	case domain.OperatorNotEquals:
		return coerceString(field) != coerceString(ruleValue)
	case domain.OperatorContains:
		return containsFold(coerceString(field), coerceString(ruleValue))
	case domain.OperatorNotContains:
		return !containsFold(coerceString(field), coerceString(ruleValue))
	case domain.OperatorIn:
		list, ok := domain.ListValue(rule.Value)
		return ok && includes(list, field)
	case domain.OperatorNotIn:
		list, ok := domain.ListValue(rule.Value)
		return ok && !includes(list, field)
	case domain.OperatorGreaterThan:
		a, b := coerceNumber(field), coerceNumber(ruleValue)
		return !math.IsNaN(a) && !math.IsNaN(b) && a > b
	case domain.OperatorLessThan:
		a, b := coerceNumber(field), coerceNumber(ruleValue)
		return !math.IsNaN(a) && !math.IsNaN(b) && a < b
	case domain.OperatorExists:
		return field.Defined
	case domain.OperatorNotExists:
		return !field.Defined
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// includes is a strict membership test: numbers compare by value, strings and booleans
// by identity, arrays and objects never match.
func includes(list []interface{}, field fieldValue) bool {
	if !field.Defined {
		return false
	}
	for _, candidate := range list {
		if strictEqual(field.Value, candidate) {
			return true
		}
	}
	return false
}

func strictEqual(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// coerceString renders a value the way a loosely typed template would print it:
// missing values read "undefined", null reads "null", arrays are comma joined.
func coerceString(f fieldValue) string {
	if !f.Defined {
		return "undefined"
	}
	return stringify(f.Value)
}

func stringify(v interface{}) string {
	if n, ok := toFloat(v); ok {
		return formatNumber(n)
	}
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case []interface{}:
		parts := make([]string, len(val))
		for i, item := range val {
			if item != nil {
				parts[i] = stringify(item)
			}
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(val, ",")
	case map[string]interface{}:
		return "[object Object]"
	}
	return "[object Object]"
}

func formatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	}
	abs := math.Abs(n)
	if abs != 0 && (abs >= 1e21 || abs < 1e-6) {
		s := strconv.FormatFloat(n, 'e', -1, 64)
		// 1e-07 -> 1e-7, 1e+21 -> 1e+21
		mantissa, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		digits := strings.TrimLeft(exp[1:], "0")
		return mantissa + "e" + sign + digits
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// coerceNumber converts loosely: blank strings and null are 0, booleans are 0 or 1,
// anything unparseable is NaN.
func coerceNumber(f fieldValue) float64 {
	if !f.Defined {
		return math.NaN()
	}
	if n, ok := toFloat(f.Value); ok {
		return n
	}
	switch v := f.Value.(type) {
	case nil:
		return 0
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		return parseNumber(v)
	case []interface{}, []string:
		return parseNumber(stringify(v))
	}
	return math.NaN()
}

func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "0x") || strings.HasPrefix(lower, "0o") || strings.HasPrefix(lower, "0b") {
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	}
	// ParseFloat also accepts "inf", "nan" and underscores, none of which are numbers here
	if strings.ContainsAny(lower, "_in") {
		return math.NaN()
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return n
}
