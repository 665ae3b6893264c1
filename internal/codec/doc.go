// Package codec provides the versioned binary codec for record payloads.
//
// Payloads are CBOR (RFC 8949) with Core Deterministic Encoding. Every
// domain variant is written as an array whose first element is the variant
// kind:
//
//	[0, "EDITOR", "vim", true]   // SetVar in dotfiles-var/v1
//	[1, "EDITOR"]                // DeleteVar
//
// A Codec maps each version string of one tag to a decoder. Decoding is
// strict and fails with a DecodeError when:
//   - the version has no registered decoder (no default is ever guessed)
//   - the stream is shorter than its declared framing
//   - bytes trail the top-level array
//   - the array's field count does not match the kind
//
// Usage:
//
//	var Vars = codec.New[VarRecord]("dotfiles-var", "v1", encodeVar).
//	    Handle("v0", decodeVarV0).
//	    Handle("v1", decodeVarV1)
//
//	version, data, err := Vars.Serialize(SetVar{Name: "EDITOR", Value: "vim"})
//	rec, err := Vars.Deserialize(data, version)
package codec
