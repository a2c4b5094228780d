package chain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

func parseHexUint(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 16, 64)
}

// decodeJSONValue maps an arbitrary JSON payload into our Value tagged
// union. This is the boundary at which a dynamically-shaped chain payload
// becomes a statically-typed tree the rest of the fleet pattern-matches on,
// generalizing the teacher's flattenCadenceValue (which does the same walk
// over cadence.Value instead of encoding/json's interface{} decode tree).
func decodeJSONValue(raw json.RawMessage) Value {
	if len(raw) == 0 {
		return Null()
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return Null()
	}
	return fromGeneric(generic)
}

// ValueFromJSON decodes raw the same way a live Query/QueryMap/RuntimeCall
// response does, for shovel unit tests to build a realistic fixture without
// a live chain connection. It is the only supported way to construct a
// Value outside of this package that actually exercises fromGeneric, rather
// than bypassing it via the Uint/Int/Float/etc. constructors.
func ValueFromJSON(raw string) Value {
	return decodeJSONValue(json.RawMessage(raw))
}

func fromGeneric(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i)
		}
		f, _ := t.Float64()
		return Float(f)
	case float64:
		if t == float64(int64(t)) {
			return Int(int64(t))
		}
		return Float(t)
	case []any:
		vals := make([]Value, 0, len(t))
		for _, item := range t {
			vals = append(vals, fromGeneric(item))
		}
		if len(vals) == 0 {
			return EmptySeq("")
		}
		return Seq(vals)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sortStrings(keys)
		vals := make([]Value, 0, len(keys))
		for _, k := range keys {
			vals = append(vals, fromGeneric(t[k]))
		}
		return Map(keys, vals)
	default:
		return String(fmt.Sprintf("%v", t))
	}
}

// sortStrings is a tiny insertion sort to avoid pulling in "sort" for a
// handful of map keys per payload; field counts here are small (single and
// low double digits).
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// MarshalJSON lets a Value be sent back out as a request parameter (e.g.
// query params), round-tripping through the same shape it was decoded from.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.Str)
	case KindInt:
		return json.Marshal(v.Int)
	case KindUint:
		return json.Marshal(v.Uint)
	case KindFloat:
		return json.Marshal(v.Float)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindBytes:
		return json.Marshal(fmt.Sprintf("0x%x", v.Bytes))
	case KindSeq:
		return json.Marshal(v.Seq)
	case KindMap:
		m := make(map[string]Value, len(v.MapKeys))
		for i, k := range v.MapKeys {
			m[k] = v.MapVals[i]
		}
		return json.Marshal(m)
	default:
		return []byte("null"), nil
	}
}
