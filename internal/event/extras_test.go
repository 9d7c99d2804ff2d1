package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtrasFromRaw(t *testing.T) {
	extras := ExtrasFromRaw(map[string]interface{}{
		"text":    "hello",
		"number":  12.5,
		"flag":    true,
		"list":    []interface{}{"a", "b", 3.0},
		"nested":  map[string]interface{}{"k": "v"},
		"missing": nil,
	})

	assert.Equal(t, StringValue("hello"), extras["text"])
	assert.Equal(t, NumberValue(12.5), extras["number"])
	assert.Equal(t, BoolValue(true), extras["flag"])
	assert.Equal(t, StringListValue([]string{"a", "b", "3"}), extras["list"])
	assert.Equal(t, ExtraString, extras["nested"].Kind, "nested objects flatten to strings")
	assert.Equal(t, StringValue(""), extras["missing"])
}

func TestExtraValueString(t *testing.T) {
	assert.Equal(t, "hello", StringValue("hello").String())
	assert.Equal(t, "12.5", NumberValue(12.5).String())
	assert.Equal(t, "true", BoolValue(true).String())
	assert.Equal(t, "a,b", StringListValue([]string{"a", "b"}).String())
}

func TestExtraValueMarshalJSON(t *testing.T) {
	data, err := json.Marshal(map[string]ExtraValue{
		"s": StringValue("x"),
		"n": NumberValue(2),
		"b": BoolValue(false),
		"l": StringListValue([]string{"a", "b"}),
	})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "x", decoded["s"])
	assert.Equal(t, float64(2), decoded["n"])
	assert.Equal(t, false, decoded["b"])
	assert.Equal(t, "a,b", decoded["l"], "lists serialize to their flattened string form")
}
