package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a multi-host conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Hosts lists host names. The i-th host gets testutil.HostID(i+1), so
	// earlier hosts sort first on timestamp ties.
	Hosts []string `yaml:"hosts"`

	// Clock configures every host's deterministic clock.
	Clock ClockConfig `yaml:"clock,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// ClockConfig sets the first reading and the increment per reading.
// Zero values default to start 1000 and step 1000.
type ClockConfig struct {
	Start int64 `yaml:"start"`
	Step  int64 `yaml:"step"`
}

// Step is one action on one host, or a sync between two hosts.
type Step struct {
	Action string `yaml:"action"`
	Host   string `yaml:"host,omitempty"`

	// var_set, var_delete, alias_set, alias_delete, concurrent_var_set
	Name   string `yaml:"name,omitempty"`
	Value  string `yaml:"value,omitempty"`
	Export bool   `yaml:"export,omitempty"`

	// sync
	From string `yaml:"from,omitempty"`
	To   string `yaml:"to,omitempty"`

	// concurrent_var_set
	Writers int `yaml:"writers,omitempty"`
	Count   int `yaml:"count,omitempty"`

	// ExpectError names the error class the step must fail with:
	// not_found, invalid_name, validation, conflict, auth.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Action constants.
const (
	ActionVarSet           = "var_set"
	ActionVarDelete        = "var_delete"
	ActionAliasSet         = "alias_set"
	ActionAliasDelete      = "alias_delete"
	ActionSync             = "sync"
	ActionConcurrentVarSet = "concurrent_var_set"
)

// Assertion validates final state.
type Assertion struct {
	Type string `yaml:"type"`
	Host string `yaml:"host,omitempty"`

	// vars
	Vars map[string]VarValue `yaml:"vars,omitempty"`

	// aliases
	Aliases map[string]string `yaml:"aliases,omitempty"`

	// log
	Of    string `yaml:"of,omitempty"`
	Tag   string `yaml:"tag,omitempty"`
	Count int    `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertVars          = "vars"
	AssertAliases       = "aliases"
	AssertConverged     = "converged"
	AssertLog           = "log"
	AssertVerify        = "verify"
	AssertDeterministic = "deterministic"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and that every
// host reference names a declared host.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Hosts) == 0 {
		return fmt.Errorf("hosts list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	hosts := make(map[string]bool, len(s.Hosts))
	for _, h := range s.Hosts {
		if hosts[h] {
			return fmt.Errorf("host %q declared twice", h)
		}
		hosts[h] = true
	}
	known := func(where, h string) error {
		if !hosts[h] {
			return fmt.Errorf("%s: unknown host %q", where, h)
		}
		return nil
	}

	for i, step := range s.Steps {
		where := fmt.Sprintf("step %d", i)
		switch step.Action {
		case ActionVarSet, ActionVarDelete, ActionAliasSet, ActionAliasDelete:
			if err := known(where, step.Host); err != nil {
				return err
			}
		case ActionSync:
			if err := known(where, step.From); err != nil {
				return err
			}
			if err := known(where, step.To); err != nil {
				return err
			}
		case ActionConcurrentVarSet:
			if err := known(where, step.Host); err != nil {
				return err
			}
			if step.Writers < 1 || step.Count < 1 {
				return fmt.Errorf("%s: writers and count must be positive", where)
			}
		default:
			return fmt.Errorf("%s: unknown action %q", where, step.Action)
		}
	}

	for i, a := range s.Assertions {
		where := fmt.Sprintf("assertion %d", i)
		switch a.Type {
		case AssertVars, AssertAliases, AssertVerify, AssertDeterministic:
			if err := known(where, a.Host); err != nil {
				return err
			}
		case AssertLog:
			if err := known(where, a.Host); err != nil {
				return err
			}
			if err := known(where, a.Of); err != nil {
				return err
			}
			if a.Tag == "" {
				return fmt.Errorf("%s: tag is required", where)
			}
		case AssertConverged:
		default:
			return fmt.Errorf("%s: unknown assertion type %q", where, a.Type)
		}
	}
	return nil
}
