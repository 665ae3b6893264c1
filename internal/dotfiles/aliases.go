package dotfiles

import (
	"fmt"

	"github.com/roach88/dotlog/internal/codec"
)

// AliasTag is the record tag for shell aliases.
const AliasTag = "dotfiles-alias"

// AliasRecord is one change to the alias set: AliasSet or AliasDelete.
type AliasRecord interface {
	isAliasRecord()
}

// AliasSet creates or replaces an alias.
type AliasSet struct {
	Name  string
	Value string
}

// AliasDelete removes an alias.
type AliasDelete struct {
	Name string
}

func (AliasSet) isAliasRecord()    {}
func (AliasDelete) isAliasRecord() {}

// AliasState maps alias names to their expansions.
type AliasState map[string]string

// AliasCodec serializes alias records. Writes use v0.
var AliasCodec = codec.New[AliasRecord](AliasTag, "v0", encodeAliasV0).
	Handle("v0", decodeAliasV0)

func encodeAliasV0(r AliasRecord) ([]byte, error) {
	switch r := r.(type) {
	case AliasSet:
		return codec.EncodeVariant(kindSet, r.Name, r.Value)
	case AliasDelete:
		return codec.EncodeVariant(kindDelete, r.Name)
	default:
		return nil, fmt.Errorf("encode alias: unsupported record %T", r)
	}
}

func decodeAliasV0(data []byte) (AliasRecord, error) {
	kind, fields, err := codec.Variant(data)
	if err != nil {
		return nil, err
	}
	switch kind {
	case kindSet:
		if err := codec.Expect(fields, 2); err != nil {
			return nil, err
		}
		var a AliasSet
		if err := codec.Field(fields[0], &a.Name); err != nil {
			return nil, err
		}
		if err := codec.Field(fields[1], &a.Value); err != nil {
			return nil, err
		}
		return a, nil
	case kindDelete:
		if err := codec.Expect(fields, 1); err != nil {
			return nil, err
		}
		var d AliasDelete
		if err := codec.Field(fields[0], &d.Name); err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, codec.UnknownKind(kind)
	}
}

// ApplyAlias folds one record into state. state is modified in place and
// returned.
func ApplyAlias(state AliasState, r AliasRecord) (AliasState, error) {
	if state == nil {
		state = AliasState{}
	}
	switch r := r.(type) {
	case AliasSet:
		state[r.Name] = r.Value
	case AliasDelete:
		delete(state, r.Name)
	default:
		return state, fmt.Errorf("apply alias: unsupported record %T", r)
	}
	return state, nil
}
