package campaign

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Notifuse/outreach/internal/domain"
)

func testContact() *domain.Contact {
	return &domain.Contact{
		ID:              "c1",
		Email:           "jane@acme.io",
		Status:          domain.ContactStatusVerified,
		EngagementScore: 6,
		Attributes: map[string]interface{}{
			"firstName": "Jane",
			"company":   "Acme Robotics",
			"source":    "webinar",
			"tags":      []interface{}{"vip", "beta"},
			"revenue":   "1200",
			"employees": float64(42),
			"optIn":     true,
			"nickname":  nil,
			"custom": map[string]interface{}{
				"industry": "saas",
				"address":  map[string]interface{}{"city": "Lisbon"},
			},
		},
	}
}

func TestSegmentMatcher_GetField(t *testing.T) {
	m := NewSegmentMatcher()
	c := testContact()

	v, ok := m.GetField(c, "firstName")
	require.True(t, ok)
	assert.Equal(t, "Jane", v)

	v, ok = m.GetField(c, "custom.address.city")
	require.True(t, ok)
	assert.Equal(t, "Lisbon", v)

	v, ok = m.GetField(c, "employees")
	require.True(t, ok)
	assert.Equal(t, float64(42), v)

	v, ok = m.GetField(c, "email")
	require.True(t, ok)
	assert.Equal(t, "jane@acme.io", v)

	_, ok = m.GetField(c, "custom.address.zip")
	assert.False(t, ok, "missing leaf")

	_, ok = m.GetField(c, "missing.deeper.path")
	assert.False(t, ok, "missing intermediate segment")

	_, ok = m.GetField(c, "nickname")
	assert.False(t, ok, "null is undefined")

	_, ok = m.GetField(c, "nickname.first")
	assert.False(t, ok, "path through null")

	// path characters that gjson would otherwise interpret are literal
	_, ok = m.GetField(c, "tags.#")
	assert.False(t, ok)
}

func TestSegmentMatcher_MatchesRule(t *testing.T) {
	m := NewSegmentMatcher()
	c := testContact()

	tests := []struct {
		name string
		rule domain.SegmentRule
		want bool
	}{
		// equals / not_equals compare string renderings
		{"equals string", domain.SegmentRule{Field: "source", Operator: domain.OperatorEquals, Value: "webinar"}, true},
		{"equals is case sensitive", domain.SegmentRule{Field: "source", Operator: domain.OperatorEquals, Value: "Webinar"}, false},
		{"equals number vs string", domain.SegmentRule{Field: "employees", Operator: domain.OperatorEquals, Value: "42"}, true},
		{"equals string vs number", domain.SegmentRule{Field: "revenue", Operator: domain.OperatorEquals, Value: float64(1200)}, true},
		{"equals bool", domain.SegmentRule{Field: "optIn", Operator: domain.OperatorEquals, Value: "true"}, true},
		{"equals array rendering", domain.SegmentRule{Field: "tags", Operator: domain.OperatorEquals, Value: "vip,beta"}, true},
		{"equals missing field", domain.SegmentRule{Field: "nope", Operator: domain.OperatorEquals, Value: "x"}, false},
		{"not_equals", domain.SegmentRule{Field: "source", Operator: domain.OperatorNotEquals, Value: "ads"}, true},
		{"not_equals same", domain.SegmentRule{Field: "source", Operator: domain.OperatorNotEquals, Value: "webinar"}, false},

		// contains is case insensitive
		{"contains", domain.SegmentRule{Field: "company", Operator: domain.OperatorContains, Value: "ROBOT"}, true},
		{"contains miss", domain.SegmentRule{Field: "company", Operator: domain.OperatorContains, Value: "globex"}, false},
		{"contains in tags", domain.SegmentRule{Field: "tags", Operator: domain.OperatorContains, Value: "Beta"}, true},
		{"not_contains", domain.SegmentRule{Field: "company", Operator: domain.OperatorNotContains, Value: "globex"}, true},
		{"not_contains hit", domain.SegmentRule{Field: "company", Operator: domain.OperatorNotContains, Value: "acme"}, false},

		// in / not_in: strict membership
		{"in", domain.SegmentRule{Field: "source", Operator: domain.OperatorIn, Value: []interface{}{"ads", "webinar"}}, true},
		{"in miss", domain.SegmentRule{Field: "source", Operator: domain.OperatorIn, Value: []interface{}{"ads"}}, false},
		{"in without coercion", domain.SegmentRule{Field: "employees", Operator: domain.OperatorIn, Value: []interface{}{"42"}}, false},
		{"in numeric", domain.SegmentRule{Field: "employees", Operator: domain.OperatorIn, Value: []interface{}{float64(42), 7}}, true},
		{"in non-array value", domain.SegmentRule{Field: "source", Operator: domain.OperatorIn, Value: "webinar"}, false},
		{"in missing field", domain.SegmentRule{Field: "nope", Operator: domain.OperatorIn, Value: []interface{}{"x"}}, false},
		{"not_in", domain.SegmentRule{Field: "source", Operator: domain.OperatorNotIn, Value: []interface{}{"ads"}}, true},
		{"not_in hit", domain.SegmentRule{Field: "source", Operator: domain.OperatorNotIn, Value: []interface{}{"webinar"}}, false},
		{"not_in non-array value", domain.SegmentRule{Field: "source", Operator: domain.OperatorNotIn, Value: "ads"}, false},
		{"in typed string slice", domain.SegmentRule{Field: "source", Operator: domain.OperatorIn, Value: []string{"ads", "webinar"}}, true},
		{"in typed int slice", domain.SegmentRule{Field: "employees", Operator: domain.OperatorIn, Value: []int{7, 42}}, true},
		{"in typed slice without coercion", domain.SegmentRule{Field: "employees", Operator: domain.OperatorIn, Value: []string{"42"}}, false},
		{"in fixed array", domain.SegmentRule{Field: "source", Operator: domain.OperatorIn, Value: [2]string{"webinar", "ads"}}, true},
		{"not_in typed slice", domain.SegmentRule{Field: "source", Operator: domain.OperatorNotIn, Value: []string{"ads"}}, true},
		{"not_in typed slice hit", domain.SegmentRule{Field: "source", Operator: domain.OperatorNotIn, Value: []string{"webinar"}}, false},

		// greater_than / less_than coerce to numbers
		{"greater_than", domain.SegmentRule{Field: "employees", Operator: domain.OperatorGreaterThan, Value: float64(10)}, true},
		{"greater_than string field", domain.SegmentRule{Field: "revenue", Operator: domain.OperatorGreaterThan, Value: "1000"}, true},
		{"greater_than equal", domain.SegmentRule{Field: "employees", Operator: domain.OperatorGreaterThan, Value: float64(42)}, false},
		{"less_than", domain.SegmentRule{Field: "engagementScore", Operator: domain.OperatorLessThan, Value: float64(7)}, true},
		{"greater_than NaN field", domain.SegmentRule{Field: "company", Operator: domain.OperatorGreaterThan, Value: float64(0)}, false},
		{"less_than NaN field", domain.SegmentRule{Field: "company", Operator: domain.OperatorLessThan, Value: float64(1e9)}, false},
		{"greater_than NaN value", domain.SegmentRule{Field: "employees", Operator: domain.OperatorGreaterThan, Value: "lots"}, false},
		{"greater_than missing field", domain.SegmentRule{Field: "nope", Operator: domain.OperatorGreaterThan, Value: float64(-1)}, false},
		{"greater_than bool", domain.SegmentRule{Field: "optIn", Operator: domain.OperatorGreaterThan, Value: float64(0)}, true},

		// exists / not_exists
		{"exists", domain.SegmentRule{Field: "custom.industry", Operator: domain.OperatorExists}, true},
		{"exists null", domain.SegmentRule{Field: "nickname", Operator: domain.OperatorExists}, false},
		{"not_exists", domain.SegmentRule{Field: "lastName", Operator: domain.OperatorNotExists}, true},
		{"not_exists present", domain.SegmentRule{Field: "firstName", Operator: domain.OperatorNotExists}, false},

		// unknown operators fail closed
		{"unknown operator", domain.SegmentRule{Field: "firstName", Operator: "starts_with", Value: "J"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.MatchesRule(c, tt.rule))
		})
	}
}

func TestSegmentMatcher_EqualsMatchesStringRendering(t *testing.T) {
	m := NewSegmentMatcher()
	c := testContact()

	fields := []string{"firstName", "employees", "revenue", "optIn", "tags", "custom", "nope", "nickname"}
	values := []interface{}{"Jane", float64(42), "42", "1200", true, "true", "undefined", "[object Object]", nil, "vip,beta"}

	for _, field := range fields {
		for _, value := range values {
			rule := domain.SegmentRule{Field: field, Operator: domain.OperatorEquals, Value: value}
			v, ok := m.GetField(c, field)
			expected := coerceString(fieldValue{Value: v, Defined: ok}) == stringify(value)
			assert.Equal(t, expected, m.MatchesRule(c, rule), "field=%s value=%v", field, value)
		}
	}
}

func TestSegmentMatcher_EvaluateCriteria(t *testing.T) {
	m := NewSegmentMatcher()
	c := testContact()

	match := domain.SegmentRule{Field: "source", Operator: domain.OperatorEquals, Value: "webinar"}
	miss := domain.SegmentRule{Field: "source", Operator: domain.OperatorEquals, Value: "ads"}

	assert.True(t, m.EvaluateCriteria(c, domain.SegmentCriteria{Logic: domain.SegmentLogicAnd}))
	assert.False(t, m.EvaluateCriteria(c, domain.SegmentCriteria{Logic: domain.SegmentLogicOr}))

	assert.True(t, m.EvaluateCriteria(c, domain.SegmentCriteria{Logic: domain.SegmentLogicAnd, Rules: []domain.SegmentRule{match, match}}))
	assert.False(t, m.EvaluateCriteria(c, domain.SegmentCriteria{Logic: domain.SegmentLogicAnd, Rules: []domain.SegmentRule{match, miss}}))
	assert.True(t, m.EvaluateCriteria(c, domain.SegmentCriteria{Logic: domain.SegmentLogicOr, Rules: []domain.SegmentRule{miss, match}}))
	assert.False(t, m.EvaluateCriteria(c, domain.SegmentCriteria{Logic: domain.SegmentLogicOr, Rules: []domain.SegmentRule{miss, miss}}))

	// unknown logic never matches
	assert.False(t, m.EvaluateCriteria(c, domain.SegmentCriteria{Logic: "XOR", Rules: []domain.SegmentRule{match}}))
}

func TestSegmentMatcher_FailsClosedOnBadData(t *testing.T) {
	m := NewSegmentMatcher()
	c := testContact()
	// channels cannot be marshalled to JSON
	c.Attributes["broken"] = make(chan int)

	assert.False(t, m.EvaluateCriteria(c, domain.SegmentCriteria{Logic: domain.SegmentLogicAnd}))
	assert.False(t, m.MatchesRule(c, domain.SegmentRule{Field: "email", Operator: domain.OperatorExists}))
}

func TestSegmentMatcher_FilterEligible(t *testing.T) {
	m := NewSegmentMatcher()

	verified := testContact()
	generic := testContact()
	generic.ID = "c2"
	generic.Status = domain.ContactStatusVerifiedGeneric
	unsubscribed := testContact()
	unsubscribed.ID = "c3"
	unsubscribed.Status = domain.ContactStatusUnsubscribed
	otherSource := testContact()
	otherSource.ID = "c4"
	otherSource.Attributes = map[string]interface{}{"source": "ads"}

	criteria := domain.SegmentCriteria{Logic: domain.SegmentLogicAnd, Rules: []domain.SegmentRule{
		{Field: "source", Operator: domain.OperatorEquals, Value: "webinar"},
	}}

	got := m.FilterEligible([]*domain.Contact{verified, nil, generic, unsubscribed, otherSource}, criteria)
	require.Len(t, got, 2)
	assert.Equal(t, "c1", got[0].ID)
	assert.Equal(t, "c2", got[1].ID)
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "42", formatNumber(42))
	assert.Equal(t, "1.5", formatNumber(1.5))
	assert.Equal(t, "-0.25", formatNumber(-0.25))
	assert.Equal(t, "1e-7", formatNumber(1e-7))
	assert.Equal(t, "1e+21", formatNumber(1e21))
	assert.Equal(t, "0", formatNumber(0))
}

func TestParseNumber(t *testing.T) {
	assert.Equal(t, float64(0), parseNumber("  "))
	assert.Equal(t, float64(12.5), parseNumber(" 12.5 "))
	assert.Equal(t, float64(16), parseNumber("0x10"))
	assert.Equal(t, float64(1000), parseNumber("1e3"))
	assert.True(t, isNaN(parseNumber("nan")))
	assert.True(t, isNaN(parseNumber("inf")))
	assert.True(t, isNaN(parseNumber("12abc")))
}

func isNaN(f float64) bool {
	return f != f
}
