package dotfiles

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/dotlog/internal/codec"
	"github.com/roach88/dotlog/internal/metrics"
	"github.com/roach88/dotlog/internal/projection"
	"github.com/roach88/dotlog/internal/record"
)

// Backend is the record log the stores push to and project from.
// Implemented by *recstore.Store.
type Backend interface {
	projection.Source
	Push(ctx context.Context, tag string, plaintext []byte, version string) (record.Record, error)
}

// Option configures a VarStore or AliasStore.
type Option func(*options)

type options struct {
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// WithMetrics records projection metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// typedLog pushes and projects one tag's closed union V into state S.
type typedLog[S, V any] struct {
	backend Backend
	codec   *codec.Codec[V]
	apply   projection.ApplyFunc[S, V]
	empty   func() S
	opts    options
}

func (l *typedLog[S, V]) push(ctx context.Context, v V) (record.Record, error) {
	version, data, err := l.codec.Serialize(v)
	if err != nil {
		return record.Record{}, err
	}
	return l.backend.Push(ctx, l.codec.Tag(), data, version)
}

func (l *typedLog[S, V]) state(ctx context.Context) (S, error) {
	return projection.ProjectWith(ctx, l.backend, l.codec.Tag(), l.codec, l.empty(), l.apply,
		projection.Options{Metrics: l.opts.metrics, Logger: l.opts.logger})
}

// VarEntry is one variable in List order.
type VarEntry struct {
	Name string `json:"name"`
	Var
}

// VarStore sets, deletes and lists environment variables.
type VarStore struct {
	log      typedLog[VarState, VarRecord]
	onChange func(ctx context.Context, state VarState) error
}

// NewVarStore creates a variable store over b.
func NewVarStore(b Backend, opts ...Option) *VarStore {
	return &VarStore{log: typedLog[VarState, VarRecord]{
		backend: b,
		codec:   VarCodec,
		apply:   ApplyVar,
		empty:   func() VarState { return VarState{} },
		opts:    buildOptions(opts),
	}}
}

// OnChange registers fn to run with the fresh state after every successful
// Set or Delete. fn must be safe to call repeatedly with the same state.
func (s *VarStore) OnChange(fn func(ctx context.Context, state VarState) error) {
	s.onChange = fn
}

// Set creates or replaces a variable.
func (s *VarStore) Set(ctx context.Context, name, value string, export bool) error {
	name, err := NormalizeVarName(name)
	if err != nil {
		return err
	}
	if _, err := s.log.push(ctx, VarSet{Name: name, Value: value, Export: export}); err != nil {
		return fmt.Errorf("set var %s: %w", name, err)
	}
	return s.changed(ctx)
}

// Delete removes a variable. It returns ErrNotFound if name is not set.
func (s *VarStore) Delete(ctx context.Context, name string) error {
	name, err := NormalizeVarName(name)
	if err != nil {
		return err
	}
	state, err := s.State(ctx)
	if err != nil {
		return err
	}
	if _, ok := state[name]; !ok {
		return fmt.Errorf("delete var %s: %w", name, ErrNotFound)
	}
	if _, err := s.log.push(ctx, VarDelete{Name: name}); err != nil {
		return fmt.Errorf("delete var %s: %w", name, err)
	}
	return s.changed(ctx)
}

// State returns the current projection.
func (s *VarStore) State(ctx context.Context) (VarState, error) {
	return s.log.state(ctx)
}

// List returns every variable sorted by name.
func (s *VarStore) List(ctx context.Context) ([]VarEntry, error) {
	state, err := s.State(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]VarEntry, 0, len(state))
	for name, v := range state {
		entries = append(entries, VarEntry{Name: name, Var: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (s *VarStore) changed(ctx context.Context) error {
	if s.onChange == nil {
		return nil
	}
	state, err := s.State(ctx)
	if err != nil {
		return err
	}
	if err := s.onChange(ctx, state); err != nil {
		s.log.opts.logger.Warn("var change hook failed", "error", err)
		return fmt.Errorf("var change hook: %w", err)
	}
	return nil
}

// AliasEntry is one alias in List order.
type AliasEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AliasStore sets, deletes and lists shell aliases.
type AliasStore struct {
	log      typedLog[AliasState, AliasRecord]
	onChange func(ctx context.Context, state AliasState) error
}

// NewAliasStore creates an alias store over b.
func NewAliasStore(b Backend, opts ...Option) *AliasStore {
	return &AliasStore{log: typedLog[AliasState, AliasRecord]{
		backend: b,
		codec:   AliasCodec,
		apply:   ApplyAlias,
		empty:   func() AliasState { return AliasState{} },
		opts:    buildOptions(opts),
	}}
}

// OnChange registers fn to run with the fresh state after every successful
// Set or Delete. fn must be safe to call repeatedly with the same state.
func (s *AliasStore) OnChange(fn func(ctx context.Context, state AliasState) error) {
	s.onChange = fn
}

// Set creates or replaces an alias.
func (s *AliasStore) Set(ctx context.Context, name, value string) error {
	name, err := NormalizeAliasName(name)
	if err != nil {
		return err
	}
	if _, err := s.log.push(ctx, AliasSet{Name: name, Value: value}); err != nil {
		return fmt.Errorf("set alias %s: %w", name, err)
	}
	return s.changed(ctx)
}

// Delete removes an alias. It returns ErrNotFound if name is not set.
func (s *AliasStore) Delete(ctx context.Context, name string) error {
	name, err := NormalizeAliasName(name)
	if err != nil {
		return err
	}
	state, err := s.State(ctx)
	if err != nil {
		return err
	}
	if _, ok := state[name]; !ok {
		return fmt.Errorf("delete alias %s: %w", name, ErrNotFound)
	}
	if _, err := s.log.push(ctx, AliasDelete{Name: name}); err != nil {
		return fmt.Errorf("delete alias %s: %w", name, err)
	}
	return s.changed(ctx)
}

// State returns the current projection.
func (s *AliasStore) State(ctx context.Context) (AliasState, error) {
	return s.log.state(ctx)
}

// List returns every alias sorted by name.
func (s *AliasStore) List(ctx context.Context) ([]AliasEntry, error) {
	state, err := s.State(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]AliasEntry, 0, len(state))
	for name, value := range state {
		entries = append(entries, AliasEntry{Name: name, Value: value})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (s *AliasStore) changed(ctx context.Context) error {
	if s.onChange == nil {
		return nil
	}
	state, err := s.State(ctx)
	if err != nil {
		return err
	}
	if err := s.onChange(ctx, state); err != nil {
		s.log.opts.logger.Warn("alias change hook failed", "error", err)
		return fmt.Errorf("alias change hook: %w", err)
	}
	return nil
}
