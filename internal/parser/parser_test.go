package parser

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() ParsedChatData {
	return ParsedChatData{
		ProductCategoryDecided: true,
		Message:                "Here are red backpacks.",
		Summary:                "Showing red backpacks",
		CategoryName:           "backpack",
		QuickActions:           []string{"Under $50", "Show blue"},
		ActiveFilters:          map[string]any{"color": "red"},
	}
}

func TestParseRoundTrip(t *testing.T) {
	text, err := Wrap(sample())
	require.NoError(t, err)

	got, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, sample(), *got)
	assert.Equal(t, sample(), *TryParse(text))
}

func TestParseFailures(t *testing.T) {
	inner := func(v map[string]any) string {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		outer, err := json.Marshal(map[string]string{"reply": string(b)})
		require.NoError(t, err)
		return string(outer)
	}
	full := func() map[string]any {
		return map[string]any{
			"product_category_decided": false,
			"message":                  "m",
			"summary":                  "s",
			"category_name":            "",
			"quick_actions":            []string{},
			"active_filters":           map[string]any{},
		}
	}
	missing := full()
	delete(missing, "summary")
	wrongType := full()
	wrongType["product_category_decided"] = "yes"
	nullFilters := full()
	nullFilters["active_filters"] = nil
	badActions := full()
	badActions["quick_actions"] = []any{1, 2}

	tests := []struct {
		name string
		text string
		kind ErrorKind
	}{
		{"not json", "Sure! Here you go", KindOuterJSON},
		{"array", `[1,2]`, KindNotObject},
		{"null", `null`, KindNotObject},
		{"no reply", `{"message":"hi"}`, KindMissingReply},
		{"reply not string", `{"reply":{"message":"hi"}}`, KindMissingReply},
		{"empty reply", `{"reply":""}`, KindMissingReply},
		{"inner not json", `{"reply":"hello there"}`, KindInnerJSON},
		{"inner missing field", inner(missing), KindShape},
		{"inner wrong type", inner(wrongType), KindShape},
		{"inner null filters", inner(nullFilters), KindShape},
		{"inner non-string actions", inner(badActions), KindShape},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.text)
			assert.Nil(t, got)
			require.Error(t, err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.kind, pe.Kind)
			assert.True(t, IsParseError(err))
			assert.Nil(t, TryParse(tt.text))
		})
	}

	assert.NotNil(t, TryParse(inner(full())))
}

func TestParseErrorUnwraps(t *testing.T) {
	_, err := Parse("{")
	var syntaxErr *json.SyntaxError
	assert.True(t, errors.As(err, &syntaxErr))
	assert.Contains(t, err.Error(), "Response is not a valid JSON object")
}

func TestShapeErrorListsFields(t *testing.T) {
	_, err := Parse(`{"reply":"{}"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected fields: product_category_decided, message, summary, category_name, quick_actions, active_filters")
}
