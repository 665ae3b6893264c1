package dotfiles

import (
	"fmt"

	"github.com/roach88/dotlog/internal/codec"
)

// VarTag is the record tag for environment variables.
const VarTag = "dotfiles-var"

const (
	kindSet    uint64 = 0
	kindDelete uint64 = 1
)

// VarRecord is one change to the variable set: VarSet or VarDelete.
type VarRecord interface {
	isVarRecord()
}

// VarSet creates or replaces a variable.
type VarSet struct {
	Name   string
	Value  string
	Export bool
}

// VarDelete removes a variable.
type VarDelete struct {
	Name string
}

func (VarSet) isVarRecord()    {}
func (VarDelete) isVarRecord() {}

// Var is the projected value of one variable.
type Var struct {
	Value  string `json:"value"`
	Export bool   `json:"export"`
}

// VarState maps variable names to their current values.
type VarState map[string]Var

// VarCodec serializes variable records. Writes use v1.
var VarCodec = codec.New[VarRecord](VarTag, "v1", encodeVarV1).
	Handle("v0", decodeVarV0).
	Handle("v1", decodeVarV1)

func encodeVarV1(r VarRecord) ([]byte, error) {
	switch r := r.(type) {
	case VarSet:
		return codec.EncodeVariant(kindSet, r.Name, r.Value, r.Export)
	case VarDelete:
		return codec.EncodeVariant(kindDelete, r.Name)
	default:
		return nil, fmt.Errorf("encode var: unsupported record %T", r)
	}
}

func decodeVarV0(data []byte) (VarRecord, error) {
	return decodeVar(data, false)
}

func decodeVarV1(data []byte) (VarRecord, error) {
	return decodeVar(data, true)
}

func decodeVar(data []byte, withExport bool) (VarRecord, error) {
	kind, fields, err := codec.Variant(data)
	if err != nil {
		return nil, err
	}
	switch kind {
	case kindSet:
		n := 2
		if withExport {
			n = 3
		}
		if err := codec.Expect(fields, n); err != nil {
			return nil, err
		}
		var v VarSet
		if err := codec.Field(fields[0], &v.Name); err != nil {
			return nil, err
		}
		if err := codec.Field(fields[1], &v.Value); err != nil {
			return nil, err
		}
		if withExport {
			if err := codec.Field(fields[2], &v.Export); err != nil {
				return nil, err
			}
		}
		return v, nil
	case kindDelete:
		if err := codec.Expect(fields, 1); err != nil {
			return nil, err
		}
		var d VarDelete
		if err := codec.Field(fields[0], &d.Name); err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, codec.UnknownKind(kind)
	}
}

// ApplyVar folds one record into state. state is modified in place and
// returned.
func ApplyVar(state VarState, r VarRecord) (VarState, error) {
	if state == nil {
		state = VarState{}
	}
	switch r := r.(type) {
	case VarSet:
		state[r.Name] = Var{Value: r.Value, Export: r.Export}
	case VarDelete:
		delete(state, r.Name)
	default:
		return state, fmt.Errorf("apply var: unsupported record %T", r)
	}
	return state, nil
}
