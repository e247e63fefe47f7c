package llmk

import "golang.org/x/exp/constraints"

// ValueUint32 returns the KV's value coerced to uint32, or 0 if the stored
// type is not numeric.
func (kv GGUFMetadataKV) ValueUint32() uint32 { return ValueNumeric[uint32](kv) }

// ValueUint64 returns the KV's value coerced to uint64, or 0 if the stored
// type is not numeric.
func (kv GGUFMetadataKV) ValueUint64() uint64 { return ValueNumeric[uint64](kv) }

// ValueFloat32 returns the KV's value coerced to float32, or 0 if the
// stored type is not numeric.
func (kv GGUFMetadataKV) ValueFloat32() float32 { return ValueNumeric[float32](kv) }

// ValueString returns the KV's value as a string, or "" if it is not a
// string.
func (kv GGUFMetadataKV) ValueString() string {
	if s, ok := kv.Value.(string); ok {
		return s
	}
	return ""
}

// ValueBool returns the KV's value as a bool, or false if it is not a bool.
func (kv GGUFMetadataKV) ValueBool() bool {
	if b, ok := kv.Value.(bool); ok {
		return b
	}
	return false
}

// ValueArray returns the KV's value as an array, or a zero value if it is
// not an array.
func (kv GGUFMetadataKV) ValueArray() GGUFMetadataKVArrayValue {
	if a, ok := kv.Value.(GGUFMetadataKVArrayValue); ok {
		return a
	}
	return GGUFMetadataKVArrayValue{}
}

// ValueNumeric coerces kv's stored value, whatever concrete numeric type it
// was decoded as, to T. This mirrors the teacher's generic accessor: GGUF
// KV values travel the file as one of a dozen concrete numeric types, but
// callers (plan builder, architecture accessors) want a single hyperparameter
// type regardless of which width the model file happened to use.
func ValueNumeric[T constraints.Integer | constraints.Float](kv GGUFMetadataKV) T {
	switch v := kv.Value.(type) {
	case uint8:
		return T(v)
	case int8:
		return T(v)
	case uint16:
		return T(v)
	case int16:
		return T(v)
	case uint32:
		return T(v)
	case int32:
		return T(v)
	case float32:
		return T(v)
	case uint64:
		return T(v)
	case int64:
		return T(v)
	case float64:
		return T(v)
	default:
		return 0
	}
}

// ValuesUint64 coerces every element of an array-typed KV value to uint64.
func (av GGUFMetadataKVArrayValue) ValuesUint64() []uint64 {
	return valuesNumeric[uint64](av)
}

// ValuesString returns the array's elements as strings, skipping any
// non-string element.
func (av GGUFMetadataKVArrayValue) ValuesString() []string {
	out := make([]string, 0, len(av.Array))
	for _, e := range av.Array {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func valuesNumeric[T constraints.Integer | constraints.Float](av GGUFMetadataKVArrayValue) []T {
	out := make([]T, len(av.Array))
	for i, e := range av.Array {
		switch v := e.(type) {
		case uint8:
			out[i] = T(v)
		case int8:
			out[i] = T(v)
		case uint16:
			out[i] = T(v)
		case int16:
			out[i] = T(v)
		case uint32:
			out[i] = T(v)
		case int32:
			out[i] = T(v)
		case float32:
			out[i] = T(v)
		case uint64:
			out[i] = T(v)
		case int64:
			out[i] = T(v)
		case float64:
			out[i] = T(v)
		}
	}
	return out
}
