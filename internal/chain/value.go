package chain

import "fmt"

// Kind identifies the runtime shape of a Value, mirroring how a Substrate
// SCALE-decoded payload comes back from the node: a dynamically typed tree of
// scalars, sequences and named fields. Modeled after the dynamic payloads
// flattened in the teacher's flattenCadenceValue, generalized to a static
// tagged union instead of duck-typing on interface{}.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindUint
	KindFloat
	KindBool
	KindBytes
	KindSeq
	KindMap
)

// Value is a SCALE-decoded chain value. Exactly one of the typed fields is
// meaningful, selected by Kind. Seq and Map hold nested Values so arbitrarily
// nested event/extrinsic payloads can be walked without reflection.
type Value struct {
	Kind  Kind
	Str   string
	Int   int64
	Uint  uint64
	Float float64
	Bool  bool
	Bytes []byte
	Seq   []Value
	// Map preserves insertion order because column naming must be stable
	// across identical payloads; a Go map would reorder keys.
	MapKeys []string
	MapVals []Value
	// VecHint records the element width declared by the storage/call type
	// for an empty Array, e.g. "u8"/"u16"/"u32"/"u64", so an empty list still
	// derives an Array(UInt<N>) column instead of being ambiguous.
	VecHint string
}

func Null() Value                { return Value{Kind: KindNull} }
func String(s string) Value      { return Value{Kind: KindString, Str: s} }
func Int(v int64) Value          { return Value{Kind: KindInt, Int: v} }
func Uint(v uint64) Value        { return Value{Kind: KindUint, Uint: v} }
func Float(v float64) Value      { return Value{Kind: KindFloat, Float: v} }
func Bool(v bool) Value          { return Value{Kind: KindBool, Bool: v} }
func BytesValue(b []byte) Value  { return Value{Kind: KindBytes, Bytes: b} }
func Seq(vs []Value) Value       { return Value{Kind: KindSeq, Seq: vs} }
func EmptySeq(vecHint string) Value {
	return Value{Kind: KindSeq, Seq: nil, VecHint: vecHint}
}

// Map builds a Value from ordered keys/values. Panics if the lengths differ,
// which would indicate a bug in the caller, not bad chain data.
func Map(keys []string, vals []Value) Value {
	if len(keys) != len(vals) {
		panic(fmt.Sprintf("chain.Map: %d keys but %d values", len(keys), len(vals)))
	}
	return Value{Kind: KindMap, MapKeys: keys, MapVals: vals}
}

// AsUint reads v as an unsigned on-chain quantity regardless of whether the
// decoder classified it as KindInt or KindUint. JSON-RPC number decoding
// (decodeJSONValue) only ever produces KindInt/KindFloat -- KindUint is
// reserved for values built explicitly via Uint(...) as outgoing call
// parameters -- so every decoded balance/netuid/stake field must be read
// through this helper rather than the bare Uint field.
func (v Value) AsUint() uint64 {
	switch v.Kind {
	case KindUint:
		return v.Uint
	case KindInt:
		return uint64(v.Int)
	case KindFloat:
		return uint64(v.Float)
	default:
		return 0
	}
}

// Get returns the value for a map key, and whether it was present.
func (v Value) Get(key string) (Value, bool) {
	if v.Kind != KindMap {
		return Value{}, false
	}
	for i, k := range v.MapKeys {
		if k == key {
			return v.MapVals[i], true
		}
	}
	return Value{}, false
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "<null>"
	case KindString:
		return v.Str
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindUint:
		return fmt.Sprintf("%d", v.Uint)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindBytes:
		return fmt.Sprintf("0x%x", v.Bytes)
	default:
		return fmt.Sprintf("<%v>", v.Kind)
	}
}
