package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/dotlog/internal/dotfiles"
	"github.com/roach88/dotlog/internal/host"
	"github.com/roach88/dotlog/internal/recstore"
	"github.com/roach88/dotlog/internal/seal"
	"github.com/roach88/dotlog/internal/store"
	"github.com/roach88/dotlog/internal/testutil"
)

const (
	defaultClockStart = 1000
	defaultClockStep  = 1000

	// concurrentMaxRetries bounds retries for concurrent_var_set writers.
	concurrentMaxRetries = 1000
)

// sharedKey is the key every scenario host holds.
var sharedKey = testutil.Key(0x5A)

// hostEnv is one simulated device.
type hostEnv struct {
	name    string
	id      host.ID
	db      *store.Store
	clock   *testutil.DeterministicClock
	records *recstore.Store
	vars    *dotfiles.VarStore
	aliases *dotfiles.AliasStore
}

// Harness is the test execution engine.
// It runs scenarios with deterministic clocks and host ids.
type Harness struct {
	hosts  []*hostEnv
	byName map[string]*hostEnv
	byID   map[host.ID]string
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each host runs on a fresh in-memory database. Step failures that were
// not expected and failed assertions are collected in the result; Run
// itself only returns an error when the environment cannot be built.
func Run(scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}
	defer h.close()

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Steps {
		h.executeStep(ctx, i, step, result)
	}

	for i, assertion := range scenario.Assertions {
		if err := h.checkAssertion(ctx, assertion); err != nil {
			result.AddError(fmt.Sprintf("assertion %d (%s): %v", i, assertion.Type, err))
		}
	}

	for _, env := range h.hosts {
		state, err := h.snapshot(ctx, env)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", env.name, err)
		}
		result.Hosts = append(result.Hosts, state)
	}
	return result, nil
}

func newHarness(scenario *Scenario) (*Harness, error) {
	start, step := scenario.Clock.Start, scenario.Clock.Step
	if start == 0 {
		start = defaultClockStart
	}
	if step == 0 {
		step = defaultClockStep
	}

	h := &Harness{
		byName: make(map[string]*hostEnv),
		byID:   make(map[host.ID]string),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	for i, name := range scenario.Hosts {
		db, err := store.Open(":memory:")
		if err != nil {
			h.close()
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		env := &hostEnv{
			name:  name,
			id:    testutil.HostID(byte(i + 1)),
			db:    db,
			clock: testutil.NewDeterministicClock(start, step),
		}
		env.records, err = h.facade(env)
		if err != nil {
			db.Close()
			h.close()
			return nil, err
		}
		env.vars = dotfiles.NewVarStore(env.records, dotfiles.WithLogger(h.logger))
		env.aliases = dotfiles.NewAliasStore(env.records, dotfiles.WithLogger(h.logger))

		h.hosts = append(h.hosts, env)
		h.byName[name] = env
		h.byID[env.id] = name
	}
	return h, nil
}

func (h *Harness) facade(env *hostEnv, opts ...recstore.Option) (*recstore.Store, error) {
	opts = append([]recstore.Option{
		recstore.WithClock(env.clock),
		recstore.WithLogger(h.logger),
	}, opts...)
	return recstore.New(env.db, sharedKey, env.id, opts...)
}

func (h *Harness) close() {
	for _, env := range h.hosts {
		env.db.Close()
	}
}

// executeStep runs one step and records it in the trace. An error that
// matches the step's expect_error is a pass.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) {
	event := TraceEvent{Step: i, Action: step.Action, Host: step.Host, Name: step.Name}

	var err error
	switch step.Action {
	case ActionVarSet:
		err = h.byName[step.Host].vars.Set(ctx, step.Name, step.Value, step.Export)
		event.Tag = dotfiles.VarTag
	case ActionVarDelete:
		err = h.byName[step.Host].vars.Delete(ctx, step.Name)
		event.Tag = dotfiles.VarTag
	case ActionAliasSet:
		err = h.byName[step.Host].aliases.Set(ctx, step.Name, step.Value)
		event.Tag = dotfiles.AliasTag
	case ActionAliasDelete:
		err = h.byName[step.Host].aliases.Delete(ctx, step.Name)
		event.Tag = dotfiles.AliasTag
	case ActionSync:
		event.From, event.To = step.From, step.To
		var res recstore.ImportResult
		res, err = h.sync(ctx, h.byName[step.From], h.byName[step.To])
		event.Imported, event.Skipped = res.Imported, res.Skipped
	case ActionConcurrentVarSet:
		event.Tag = dotfiles.VarTag
		event.Pushes = step.Writers * step.Count
		err = h.concurrentVarSet(ctx, h.byName[step.Host], step)
	}

	if err == nil && event.Tag != "" && step.Action != ActionConcurrentVarSet {
		head, ok, herr := h.byName[step.Host].db.Head(ctx, h.byName[step.Host].id, event.Tag)
		if herr == nil && ok {
			event.Idx, event.Timestamp = head.Idx, head.Timestamp
		}
	}

	switch {
	case err != nil && step.ExpectError != "":
		class := errorClass(err)
		event.Error = class
		if class != step.ExpectError {
			result.AddError(fmt.Sprintf("step %d (%s): expected %s error, got %v", i, step.Action, step.ExpectError, err))
		}
	case err != nil:
		event.Error = errorClass(err)
		result.AddError(fmt.Sprintf("step %d (%s): %v", i, step.Action, err))
	case step.ExpectError != "":
		result.AddError(fmt.Sprintf("step %d (%s): expected %s error, got success", i, step.Action, step.ExpectError))
	}
	result.AddTrace(event)
}

// sync copies every record held by from into to.
func (h *Harness) sync(ctx context.Context, from, to *hostEnv) (recstore.ImportResult, error) {
	recs, err := from.records.Export(ctx, "")
	if err != nil {
		return recstore.ImportResult{}, err
	}
	return to.records.Import(ctx, recs)
}

// concurrentVarSet races step.Writers facades for the same host, each
// setting step.Count variables named <name>_<writer>_<i>.
func (h *Harness) concurrentVarSet(ctx context.Context, env *hostEnv, step Step) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for w := 0; w < step.Writers; w++ {
		rs, err := h.facade(env, recstore.WithMaxRetries(concurrentMaxRetries))
		if err != nil {
			return err
		}
		vars := dotfiles.NewVarStore(rs, dotfiles.WithLogger(h.logger))

		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < step.Count; i++ {
				name := fmt.Sprintf("%s_%d_%d", step.Name, w, i)
				if err := vars.Set(ctx, name, step.Value, step.Export); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
					return
				}
			}
		}(w)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// errorClass maps an error onto the names used by expect_error.
func errorClass(err error) string {
	switch {
	case errors.Is(err, dotfiles.ErrNotFound):
		return "not_found"
	case errors.Is(err, dotfiles.ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, recstore.ErrValidation):
		return "validation"
	case errors.Is(err, store.ErrAppendConflict):
		return "conflict"
	case errors.Is(err, seal.ErrAuthentication):
		return "auth"
	default:
		return "other"
	}
}

// snapshot captures a host's projected state and record index.
func (h *Harness) snapshot(ctx context.Context, env *hostEnv) (HostState, error) {
	vars, err := env.vars.State(ctx)
	if err != nil {
		return HostState{}, err
	}
	aliases, err := env.aliases.State(ctx)
	if err != nil {
		return HostState{}, err
	}
	recs, err := env.records.Export(ctx, "")
	if err != nil {
		return HostState{}, err
	}

	state := HostState{
		Name:    env.name,
		Vars:    toVarValues(vars),
		Aliases: map[string]string(aliases),
		Records: make([]RecordRef, 0, len(recs)),
	}
	for _, rec := range recs {
		state.Records = append(state.Records, RecordRef{
			Host:    h.byID[rec.Host],
			Tag:     rec.Tag,
			Idx:     rec.Idx,
			Version: rec.Version,
		})
	}
	// Concurrent writers make the interleaving of one host's records
	// timing dependent; the set is not.
	sort.SliceStable(state.Records, func(i, j int) bool {
		a, b := state.Records[i], state.Records[j]
		if a.Tag != b.Tag {
			return a.Tag < b.Tag
		}
		if a.Host != b.Host {
			return a.Host < b.Host
		}
		return a.Idx < b.Idx
	})
	return state, nil
}

func toVarValues(vars dotfiles.VarState) map[string]VarValue {
	out := make(map[string]VarValue, len(vars))
	for name, v := range vars {
		out[name] = VarValue{Value: v.Value, Export: v.Export}
	}
	return out
}
