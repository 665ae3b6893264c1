// Package dotfiles holds the synced shell configuration types: environment
// variables and aliases.
//
// Each type is a closed union of Set and Delete records stored under its
// own tag. The current state is the projection of every host's records in
// global order; the last Set or Delete of a name wins, with no merge of
// concurrent values.
//
// # Wire formats
//
// Variables (tag "dotfiles-var"):
//
//	v0: Set = [0, name, value]          (export is false)
//	v1: Set = [0, name, value, export]  (current)
//	    Delete = [1, name]              (both versions)
//
// Aliases (tag "dotfiles-alias"):
//
//	v0: Set = [0, name, value]  Delete = [1, name]  (current)
//
// Every version that was ever written stays decodable.
package dotfiles
