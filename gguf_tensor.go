package llmk

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// GGUFTensorInfo is one entry from the tensor descriptor table.
type GGUFTensorInfo struct {
	Name    string
	NDims   uint32
	Dims    []uint64
	Type    GGMLType
	Offset  uint64 // relative to the data section
}

// Elements returns the total element count across all dimensions.
func (ti GGUFTensorInfo) Elements() uint64 {
	n := uint64(1)
	for _, d := range ti.Dims {
		n *= d
	}
	return n
}

// Bytes returns the raw encoded byte size of the tensor.
func (ti GGUFTensorInfo) Bytes() uint64 {
	return ti.Type.RowSizeOf(ti.Dims)
}

// GGUFTensorInfos is the ordered tensor descriptor table.
type GGUFTensorInfos []GGUFTensorInfo

// Get looks up a tensor by exact name.
func (tis GGUFTensorInfos) Get(name string) (GGUFTensorInfo, bool) {
	for i := range tis {
		if tis[i].Name == name {
			return tis[i], true
		}
	}
	return GGUFTensorInfo{}, false
}

// TensorRole classifies a tensor name into its functional position in the
// decoder stack, per spec.md §4.C's role-parsing rule.
type TensorRole uint8

const (
	RoleNone TensorRole = iota
	RoleTokenEmbd
	RoleOutput
	RoleOutputNorm
	RoleAttnNorm
	RoleAttnQ
	RoleAttnK
	RoleAttnV
	RoleAttnOutput
	RoleFFNNorm
	RoleFFNGate
	RoleFFNUp
	RoleFFNDown
)

// ParseRole classifies name into a (role, layer) pair. Layer is -1 for
// global (non-per-layer) roles. Names outside the recognized alphabet
// return (RoleNone, -1, false) — they are ignored, not fatal, per spec.
func ParseRole(name string) (role TensorRole, layer int, ok bool) {
	switch name {
	case "token_embd.weight":
		return RoleTokenEmbd, -1, true
	case "output.weight":
		return RoleOutput, -1, true
	case "output_norm.weight", "norm.weight":
		return RoleOutputNorm, -1, true
	}

	const prefix = "blk."
	if !strings.HasPrefix(name, prefix) {
		return RoleNone, -1, false
	}
	rest := name[len(prefix):]
	dot := strings.IndexByte(rest, '.')
	if dot < 0 {
		return RoleNone, -1, false
	}
	l, err := strconv.Atoi(rest[:dot])
	if err != nil || l < 0 {
		return RoleNone, -1, false
	}
	suffix := rest[dot+1:]
	var r TensorRole
	switch suffix {
	case "attn_norm.weight":
		r = RoleAttnNorm
	case "attn_q.weight":
		r = RoleAttnQ
	case "attn_k.weight":
		r = RoleAttnK
	case "attn_v.weight":
		r = RoleAttnV
	case "attn_output.weight":
		r = RoleAttnOutput
	case "ffn_norm.weight":
		r = RoleFFNNorm
	case "ffn_gate.weight":
		r = RoleFFNGate
	case "ffn_up.weight":
		r = RoleFFNUp
	case "ffn_down.weight":
		r = RoleFFNDown
	default:
		return RoleNone, -1, false
	}
	return r, l, true
}

// readTensorTable reads h.TensorCount tensor descriptors starting at the
// reader's current position, validating name/dims bounds per spec §4.C
// step 4. Hyperparameters are not checked here; BuildPlan applies their
// sanity ceiling before reading the table.
func readTensorTable(f io.ReadSeeker, v GGUFVersion, count uint64) (GGUFTensorInfos, error) {
	rd := reader{f: f, v: v}
	infos := make(GGUFTensorInfos, 0, count)
	for i := uint64(0); i < count; i++ {
		nl, err := rd.readLength()
		if err != nil {
			return nil, newErr(KindIoShort, "tensor_table", rd.pos(), err)
		}
		if nl == 0 || nl > maxNameLen {
			return nil, newErr(KindCorrupt, "tensor_table", rd.pos(), fmt.Errorf("bad name length %d", nl))
		}
		nb := make([]byte, nl)
		if _, err := io.ReadFull(f, nb); err != nil {
			return nil, newErr(KindIoShort, "tensor_table", rd.pos(), err)
		}

		nd, err := rd.readUint32()
		if err != nil {
			return nil, newErr(KindIoShort, "tensor_table", rd.pos(), err)
		}
		if nd == 0 || nd > maxNDims {
			return nil, newErr(KindCorrupt, "tensor_table", rd.pos(), fmt.Errorf("bad ndims %d", nd))
		}
		dims := make([]uint64, nd)
		for d := uint32(0); d < nd; d++ {
			// v1 dims are u32, v2+ are u64 — same width rule as table lengths.
			dims[d], err = rd.readLength()
			if err != nil {
				return nil, newErr(KindIoShort, "tensor_table", rd.pos(), err)
			}
		}

		gt, err := rd.readUint32()
		if err != nil {
			return nil, newErr(KindIoShort, "tensor_table", rd.pos(), err)
		}
		off, err := rd.readUint64()
		if err != nil {
			return nil, newErr(KindIoShort, "tensor_table", rd.pos(), err)
		}

		infos = append(infos, GGUFTensorInfo{
			Name:   string(nb),
			NDims:  nd,
			Dims:   dims,
			Type:   GGMLType(gt),
			Offset: off,
		})
	}
	return infos, nil
}
