// Package harness runs multi-host conformance scenarios against the record
// store.
//
// A scenario declares a set of hosts, a sequence of steps (variable and
// alias changes, record exchange between hosts, concurrent pushes) and
// assertions over each host's projected state. Every host gets its own
// in-memory database, its own deterministic clock and a fixed host id, so
// identical scenarios produce identical traces for golden comparison.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	hosts: [h1, h2]
//	clock: { start: 1000, step: 1000 }
//	steps:
//	  - host: h1
//	    action: var_set
//	    name: EDITOR
//	    value: vim
//	    export: true
//	  - action: sync
//	    from: h1
//	    to: h2
//	  - host: h2
//	    action: var_delete
//	    name: MISSING
//	    expect_error: not_found
//	assertions:
//	  - type: vars
//	    host: h2
//	    vars: { EDITOR: { value: vim, export: true } }
//	  - type: converged
//
// # Actions
//
//   - var_set, var_delete: change a variable on host
//   - alias_set, alias_delete: change an alias on host
//   - sync: export every record held by from and import it into to
//   - concurrent_var_set: writers goroutines each set count variables on
//     host through separate facades over the same database
//
// # Assertion Types
//
//   - vars: host's variable projection equals vars exactly
//   - aliases: host's alias projection equals aliases exactly
//   - converged: every host projects identical variables and aliases
//   - log: host holds of's log for tag as idx 0..count-1
//   - verify: every record on host authenticates
//   - deterministic: projecting twice on host gives identical state
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/lww.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
