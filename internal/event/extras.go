package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type ExtraKind int

const (
	ExtraString ExtraKind = iota
	ExtraNumber
	ExtraBool
	ExtraStringList
)

// ExtraValue is the tagged union carried in notification extras. The
// normalizer converts every raw extra into one of these four shapes, so the
// delivery engine never has to inspect open-typed values at serialization
// time.
type ExtraValue struct {
	Kind ExtraKind
	Str  string
	Num  float64
	Bool bool
	List []string
}

func StringValue(s string) ExtraValue {
	return ExtraValue{Kind: ExtraString, Str: s}
}

func NumberValue(n float64) ExtraValue {
	return ExtraValue{Kind: ExtraNumber, Num: n}
}

func BoolValue(b bool) ExtraValue {
	return ExtraValue{Kind: ExtraBool, Bool: b}
}

func StringListValue(list []string) ExtraValue {
	return ExtraValue{Kind: ExtraStringList, List: list}
}

// String flattens the value for contexts that need a plain string form
// (query parameters, history snapshots).
func (v ExtraValue) String() string {
	switch v.Kind {
	case ExtraNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case ExtraBool:
		return strconv.FormatBool(v.Bool)
	case ExtraStringList:
		return strings.Join(v.List, ",")
	default:
		return v.Str
	}
}

func (v ExtraValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ExtraNumber:
		return json.Marshal(v.Num)
	case ExtraBool:
		return json.Marshal(v.Bool)
	case ExtraStringList:
		// Collections are flattened to their string form so endpoints only
		// ever see primitive JSON values in extras.
		return json.Marshal(strings.Join(v.List, ","))
	default:
		return json.Marshal(v.Str)
	}
}

// ExtrasFromRaw converts an open-typed extras map (as decoded from JSON or a
// broker payload) into the tagged union. Nested objects and mixed collections
// are flattened to their string form.
func ExtrasFromRaw(raw map[string]interface{}) map[string]ExtraValue {
	if len(raw) == 0 {
		return nil
	}

	extras := make(map[string]ExtraValue, len(raw))
	for key, value := range raw {
		extras[key] = extraFromValue(value)
	}
	return extras
}

func extraFromValue(value interface{}) ExtraValue {
	switch v := value.(type) {
	case nil:
		return StringValue("")
	case string:
		return StringValue(v)
	case bool:
		return BoolValue(v)
	case float64:
		return NumberValue(v)
	case int:
		return NumberValue(float64(v))
	case int64:
		return NumberValue(float64(v))
	case []string:
		return StringListValue(v)
	case []interface{}:
		list := make([]string, len(v))
		for i, item := range v {
			list[i] = flattenToString(item)
		}
		return StringListValue(list)
	default:
		return StringValue(flattenToString(v))
	}
}

func flattenToString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		if data, err := json.Marshal(value); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", value)
	}
}
