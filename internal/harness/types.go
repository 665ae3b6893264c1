package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Step      int    `json:"step"`
	Action    string `json:"action"`
	Host      string `json:"host,omitempty"`
	Name      string `json:"name,omitempty"`
	Tag       string `json:"tag,omitempty"`
	Idx       uint64 `json:"idx"`
	Timestamp int64  `json:"timestamp,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Imported  int    `json:"imported,omitempty"`
	Skipped   int    `json:"skipped,omitempty"`
	Pushes    int    `json:"pushes,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step and assertion succeeded.
	Pass bool `json:"pass"`

	// Trace lists the executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains step and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Hosts is the final state of every host, in scenario order.
	Hosts []HostState `json:"hosts"`
}

// HostState is one host's final projected state and record index.
type HostState struct {
	Name    string              `json:"name"`
	Vars    map[string]VarValue `json:"vars"`
	Aliases map[string]string   `json:"aliases"`
	Records []RecordRef         `json:"records"`
}

// VarValue is the expected or projected value of one variable.
type VarValue struct {
	Value  string `yaml:"value" json:"value"`
	Export bool   `yaml:"export" json:"export"`
}

// RecordRef identifies a stored record by scenario host name.
type RecordRef struct {
	Host    string `json:"host"`
	Tag     string `json:"tag"`
	Idx     uint64 `json:"idx"`
	Version string `json:"version"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Hosts:  []HostState{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a trace event.
func (r *Result) AddTrace(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
