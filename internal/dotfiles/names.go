package dotfiles

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeVarName returns the NFC form of name, or a NameError if it is
// not a portable shell identifier ([A-Za-z_][A-Za-z0-9_]*).
func NormalizeVarName(name string) (string, error) {
	name = norm.NFC.String(name)
	if name == "" {
		return "", &NameError{Kind: "var", Name: name, Reason: "empty"}
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return "", &NameError{Kind: "var", Name: name, Reason: "must be a shell identifier"}
		}
	}
	return name, nil
}

// NormalizeAliasName returns the NFC form of name, or a NameError if it
// contains whitespace, '=', quotes, or control characters.
func NormalizeAliasName(name string) (string, error) {
	name = norm.NFC.String(name)
	if name == "" {
		return "", &NameError{Kind: "alias", Name: name, Reason: "empty"}
	}
	if strings.ContainsAny(name, "=\"'`") {
		return "", &NameError{Kind: "alias", Name: name, Reason: "contains '=' or a quote"}
	}
	for _, r := range name {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", &NameError{Kind: "alias", Name: name, Reason: "contains whitespace"}
		}
	}
	return name, nil
}
