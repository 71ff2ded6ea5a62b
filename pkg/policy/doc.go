// Package policy checks collected host facts against Open Policy Agent (OPA)
// policies.
//
// A policy is a Rego module with a deny rule. Its input document holds the
// fact tree, the run state of every plugin, and the collection context:
//
//	{
//	    "facts":   {"os": "linux", "platform": {...}},
//	    "plugins": [{"name": "os", "generation": "legacy", "state": "ran"}],
//	    "context": {"run_id": "...", "timestamp": "..."}
//	}
//
// Each element of deny is a violation. It is either a message string or an
// object with "message" and optional "path" and "severity" keys:
//
//	# Kernel must be collected on Linux hosts.
//	# severity: error
//	package hostfacts.kernel
//
//	import rego.v1
//
//	deny contains {"message": "kernel facts missing", "path": "kernel"} if {
//	    input.facts.os == "linux"
//	    not input.facts.kernel
//	}
//
// Modules use the rego.v1 import for the contains/if/in keywords.
//
// # Built-in Policies
//
//   - plugin-failures (warning): one violation per failed plugin
//   - platform-identified (error): the os and platform facts exist
//
// Built-ins can be replaced by loading a policy of the same name or turned
// off with DisablePolicy.
//
// # Usage
//
//	eng, err := policy.NewEngine(ctx, logger)
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"/etc/hostfacts/policies"}); err != nil {
//	    return err
//	}
//	result, err := eng.Evaluate(ctx, input)
//
// A result fails when any violation has severity error or critical.
package policy
