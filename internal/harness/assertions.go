package harness

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/dotlog/internal/dotfiles"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Host     string
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Host != "" {
		fmt.Fprintf(&buf, " on %s", e.Host)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n  Actual: %s", e.Expected, e.Actual)
	return buf.String()
}

func (h *Harness) checkAssertion(ctx context.Context, a Assertion) error {
	switch a.Type {
	case AssertVars:
		return h.assertVars(ctx, a)
	case AssertAliases:
		return h.assertAliases(ctx, a)
	case AssertConverged:
		return h.assertConverged(ctx)
	case AssertLog:
		return h.assertLog(ctx, a)
	case AssertVerify:
		_, err := h.byName[a.Host].records.Verify(ctx, "")
		return err
	case AssertDeterministic:
		return h.assertDeterministic(ctx, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertVars checks the host's variable projection equals a.Vars exactly.
func (h *Harness) assertVars(ctx context.Context, a Assertion) error {
	state, err := h.byName[a.Host].vars.State(ctx)
	if err != nil {
		return err
	}
	got := toVarValues(state)
	want := a.Vars
	if want == nil {
		want = map[string]VarValue{}
	}
	if !reflect.DeepEqual(got, want) {
		return &AssertionError{Type: a.Type, Host: a.Host, Expected: fmt.Sprint(want), Actual: fmt.Sprint(got)}
	}
	return nil
}

// assertAliases checks the host's alias projection equals a.Aliases exactly.
func (h *Harness) assertAliases(ctx context.Context, a Assertion) error {
	state, err := h.byName[a.Host].aliases.State(ctx)
	if err != nil {
		return err
	}
	got := map[string]string(state)
	want := a.Aliases
	if want == nil {
		want = map[string]string{}
	}
	if !reflect.DeepEqual(got, want) {
		return &AssertionError{Type: a.Type, Host: a.Host, Expected: fmt.Sprint(want), Actual: fmt.Sprint(got)}
	}
	return nil
}

// assertConverged checks that every host projects the same state as the
// first host.
func (h *Harness) assertConverged(ctx context.Context) error {
	type projected struct {
		vars    dotfiles.VarState
		aliases dotfiles.AliasState
	}
	var first projected
	for i, env := range h.hosts {
		vars, err := env.vars.State(ctx)
		if err != nil {
			return err
		}
		aliases, err := env.aliases.State(ctx)
		if err != nil {
			return err
		}
		cur := projected{vars: vars, aliases: aliases}
		if i == 0 {
			first = cur
			continue
		}
		if !reflect.DeepEqual(first, cur) {
			return &AssertionError{
				Type:     AssertConverged,
				Host:     env.name,
				Expected: fmt.Sprintf("%s state %v %v", h.hosts[0].name, first.vars, first.aliases),
				Actual:   fmt.Sprintf("%v %v", cur.vars, cur.aliases),
			}
		}
	}
	return nil
}

// assertLog checks that host holds of's log for tag as exactly idx
// 0..count-1 in replay order.
func (h *Harness) assertLog(ctx context.Context, a Assertion) error {
	env, of := h.byName[a.Host], h.byName[a.Of]
	recs, err := env.records.AllTagged(ctx, a.Tag)
	if err != nil {
		return err
	}

	var idxs []uint64
	for _, rec := range recs {
		if rec.Host == of.id {
			idxs = append(idxs, rec.Idx)
		}
	}
	ok := len(idxs) == a.Count
	for i := 0; ok && i < len(idxs); i++ {
		ok = idxs[i] == uint64(i)
	}
	if !ok {
		return &AssertionError{
			Type:     AssertLog,
			Host:     a.Host,
			Expected: fmt.Sprintf("%s/%s idx 0..%d", a.Of, a.Tag, a.Count-1),
			Actual:   fmt.Sprint(idxs),
		}
	}
	return nil
}

// assertDeterministic projects twice and compares.
func (h *Harness) assertDeterministic(ctx context.Context, a Assertion) error {
	env := h.byName[a.Host]
	first, err := env.vars.State(ctx)
	if err != nil {
		return err
	}
	second, err := env.vars.State(ctx)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(first, second) {
		return &AssertionError{Type: a.Type, Host: a.Host, Expected: fmt.Sprint(first), Actual: fmt.Sprint(second)}
	}
	return nil
}
