// Package llmk parses the GGUF container format, builds a materialization
// plan from its tensor table, and streams weights into either a contiguous
// F32 layout or a block-preserving Q8_0 layout for CPU inference.
package llmk

import (
	"encoding/binary"
	"fmt"
	"io"
)

// GGUFMagic is the four bytes a GGUF file opens with.
type GGUFMagic uint32

const GGUFMagicGGUFLe GGUFMagic = 0x46554747 // "GGUF" little-endian

// GGUFVersion is the GGUF container version.
type GGUFVersion uint32

const (
	GGUFVersionV1 GGUFVersion = iota + 1
	GGUFVersionV2
	GGUFVersionV3
)

// GGUFMetadataValueType is the typed-value discriminator stored alongside
// every KV entry and every array element type.
type GGUFMetadataValueType uint32

const (
	GGUFMetadataValueTypeUint8 GGUFMetadataValueType = iota
	GGUFMetadataValueTypeInt8
	GGUFMetadataValueTypeUint16
	GGUFMetadataValueTypeInt16
	GGUFMetadataValueTypeUint32
	GGUFMetadataValueTypeInt32
	GGUFMetadataValueTypeFloat32
	GGUFMetadataValueTypeBool
	GGUFMetadataValueTypeString
	GGUFMetadataValueTypeArray
	GGUFMetadataValueTypeUint64
	GGUFMetadataValueTypeInt64
	GGUFMetadataValueTypeFloat64
	_GGUFMetadataValueTypeCount
)

// GGUFMetadataKV is one key/value entry from the header's metadata table.
type GGUFMetadataKV struct {
	Key       string
	ValueType GGUFMetadataValueType
	Value     any
}

// GGUFMetadataKVArrayValue is the decoded payload of an array-typed KV entry.
type GGUFMetadataKVArrayValue struct {
	Type GGUFMetadataValueType
	Len  uint64
	Array []any
}

// GGUFMetadataKVs is the ordered list of KV entries read from the header.
type GGUFMetadataKVs []GGUFMetadataKV

// Get looks up a KV entry by exact key match.
func (kvs GGUFMetadataKVs) Get(key string) (GGUFMetadataKV, bool) {
	for i := range kvs {
		if kvs[i].Key == key {
			return kvs[i], true
		}
	}
	return GGUFMetadataKV{}, false
}

// GGUFHeader is the fixed-shape prologue of a GGUF file, read in full
// before the tensor table.
type GGUFHeader struct {
	Magic           GGUFMagic
	Version         GGUFVersion
	TensorCount     uint64
	MetadataKVCount uint64
	MetadataKV      GGUFMetadataKVs
}

// reader wraps a positioned stream with the little-endian typed readers the
// header, KV, and tensor-table parsers all share.
type reader struct {
	f io.ReadSeeker
	v GGUFVersion
}

func (rd reader) pos() int64 {
	p, _ := rd.f.Seek(0, io.SeekCurrent)
	return p
}

func (rd reader) readUint32() (uint32, error) {
	var v uint32
	if err := binary.Read(rd.f, binary.LittleEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func (rd reader) readUint64() (uint64, error) {
	var v uint64
	if err := binary.Read(rd.f, binary.LittleEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// readLength reads a table length, which is a u32 in GGUF v1 and a u64 from
// v2 onward.
func (rd reader) readLength() (uint64, error) {
	if rd.v <= GGUFVersionV1 {
		v, err := rd.readUint32()
		return uint64(v), err
	}
	return rd.readUint64()
}

func (rd reader) readString() (string, error) {
	l, err := rd.readLength()
	if err != nil {
		return "", fmt.Errorf("read string length: %w", err)
	}
	b := make([]byte, l)
	if _, err := io.ReadFull(rd.f, b); err != nil {
		return "", fmt.Errorf("read string bytes: %w", err)
	}
	return string(b), nil
}

func (rd reader) skipString() error {
	l, err := rd.readLength()
	if err != nil {
		return fmt.Errorf("read string length: %w", err)
	}
	_, err = rd.f.Seek(int64(l), io.SeekCurrent)
	return err
}

// readValue reads one typed scalar value. Arrays are handled by readArray,
// which is mutually recursive with readValue through GGUFMetadataValueTypeArray.
func (rd reader) readValue(t GGUFMetadataValueType) (any, error) {
	switch t {
	case GGUFMetadataValueTypeUint8:
		var v uint8
		err := binary.Read(rd.f, binary.LittleEndian, &v)
		return v, err
	case GGUFMetadataValueTypeInt8:
		var v int8
		err := binary.Read(rd.f, binary.LittleEndian, &v)
		return v, err
	case GGUFMetadataValueTypeUint16:
		var v uint16
		err := binary.Read(rd.f, binary.LittleEndian, &v)
		return v, err
	case GGUFMetadataValueTypeInt16:
		var v int16
		err := binary.Read(rd.f, binary.LittleEndian, &v)
		return v, err
	case GGUFMetadataValueTypeUint32:
		return rd.readUint32()
	case GGUFMetadataValueTypeInt32:
		var v int32
		err := binary.Read(rd.f, binary.LittleEndian, &v)
		return v, err
	case GGUFMetadataValueTypeFloat32:
		var v float32
		err := binary.Read(rd.f, binary.LittleEndian, &v)
		return v, err
	case GGUFMetadataValueTypeBool:
		var v uint8
		err := binary.Read(rd.f, binary.LittleEndian, &v)
		return v != 0, err
	case GGUFMetadataValueTypeString:
		return rd.readString()
	case GGUFMetadataValueTypeArray:
		return rd.readArray()
	case GGUFMetadataValueTypeUint64:
		return rd.readUint64()
	case GGUFMetadataValueTypeInt64:
		var v int64
		err := binary.Read(rd.f, binary.LittleEndian, &v)
		return v, err
	case GGUFMetadataValueTypeFloat64:
		var v float64
		err := binary.Read(rd.f, binary.LittleEndian, &v)
		return v, err
	default:
		return nil, newErr(KindCorrupt, "metadata", rd.pos(), fmt.Errorf("invalid value type %d", t))
	}
}

func (rd reader) readArray() (GGUFMetadataKVArrayValue, error) {
	var av GGUFMetadataKVArrayValue
	et, err := rd.readUint32()
	if err != nil {
		return av, fmt.Errorf("read array element type: %w", err)
	}
	av.Type = GGUFMetadataValueType(et)
	av.Len, err = rd.readLength()
	if err != nil {
		return av, fmt.Errorf("read array length: %w", err)
	}
	av.Array = make([]any, av.Len)
	for i := uint64(0); i < av.Len; i++ {
		av.Array[i], err = rd.readValue(av.Type)
		if err != nil {
			return av, fmt.Errorf("read array element %d: %w", i, err)
		}
	}
	return av, nil
}

// skipValue discards one typed scalar value without allocating, used by the
// lightweight summary reader which only cares about a handful of keys.
func (rd reader) skipValue(t GGUFMetadataValueType) error {
	var n int64
	switch t {
	case GGUFMetadataValueTypeUint8, GGUFMetadataValueTypeInt8, GGUFMetadataValueTypeBool:
		n = 1
	case GGUFMetadataValueTypeUint16, GGUFMetadataValueTypeInt16:
		n = 2
	case GGUFMetadataValueTypeUint32, GGUFMetadataValueTypeInt32, GGUFMetadataValueTypeFloat32:
		n = 4
	case GGUFMetadataValueTypeUint64, GGUFMetadataValueTypeInt64, GGUFMetadataValueTypeFloat64:
		n = 8
	case GGUFMetadataValueTypeString:
		return rd.skipString()
	case GGUFMetadataValueTypeArray:
		et, err := rd.readUint32()
		if err != nil {
			return fmt.Errorf("read array element type: %w", err)
		}
		l, err := rd.readLength()
		if err != nil {
			return fmt.Errorf("read array length: %w", err)
		}
		for i := uint64(0); i < l; i++ {
			if err := rd.skipValue(GGUFMetadataValueType(et)); err != nil {
				return fmt.Errorf("skip array element %d: %w", i, err)
			}
		}
		return nil
	default:
		return newErr(KindCorrupt, "metadata", rd.pos(), fmt.Errorf("invalid value type %d", t))
	}
	_, err := rd.f.Seek(n, io.SeekCurrent)
	return err
}

const (
	maxKeyLen   = 4096
	maxNameLen  = 1 << 20 // 1 MiB
	maxNDims    = 16
)

// readHeader reads the magic, version, counts, and the full KV table,
// matching spec.md §4.C steps 1-3 and §6's on-disk layout.
func readHeader(f io.ReadSeeker) (GGUFHeader, error) {
	var h GGUFHeader
	rd := reader{f: f}

	magic, err := rd.readUint32()
	if err != nil {
		return h, newErr(KindIoShort, "header", rd.pos(), err)
	}
	h.Magic = GGUFMagic(magic)
	if h.Magic != GGUFMagicGGUFLe {
		return h, newErr(KindUnsupportedFormat, "header", 0, fmt.Errorf("bad magic %08x", magic))
	}

	ver, err := rd.readUint32()
	if err != nil {
		return h, newErr(KindIoShort, "header", rd.pos(), err)
	}
	h.Version = GGUFVersion(ver)
	rd.v = h.Version

	h.TensorCount, err = rd.readUint64()
	if err != nil {
		return h, newErr(KindIoShort, "header", rd.pos(), err)
	}
	h.MetadataKVCount, err = rd.readUint64()
	if err != nil {
		return h, newErr(KindIoShort, "header", rd.pos(), err)
	}

	h.MetadataKV = make(GGUFMetadataKVs, 0, h.MetadataKVCount)
	for i := uint64(0); i < h.MetadataKVCount; i++ {
		kv, err := readKV(rd)
		if err != nil {
			return h, err
		}
		h.MetadataKV = append(h.MetadataKV, kv)
	}
	return h, nil
}

func readKV(rd reader) (GGUFMetadataKV, error) {
	var kv GGUFMetadataKV
	kl, err := rd.readLength()
	if err != nil {
		return kv, newErr(KindIoShort, "metadata", rd.pos(), err)
	}
	if kl == 0 || kl > maxKeyLen {
		return kv, newErr(KindCorrupt, "metadata", rd.pos(), fmt.Errorf("bad key length %d", kl))
	}
	kb := make([]byte, kl)
	if _, err := io.ReadFull(rd.f, kb); err != nil {
		return kv, newErr(KindIoShort, "metadata", rd.pos(), err)
	}
	kv.Key = string(kb)

	vt, err := rd.readUint32()
	if err != nil {
		return kv, newErr(KindIoShort, "metadata", rd.pos(), err)
	}
	kv.ValueType = GGUFMetadataValueType(vt)
	if kv.ValueType >= _GGUFMetadataValueTypeCount {
		return kv, newErr(KindCorrupt, "metadata", rd.pos(), fmt.Errorf("bad value type %d", vt))
	}
	kv.Value, err = rd.readValue(kv.ValueType)
	if err != nil {
		return kv, newErr(KindCorrupt, "metadata", rd.pos(), err)
	}
	return kv, nil
}
