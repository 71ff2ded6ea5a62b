package policy

// BuiltinPolicies returns the policies every engine starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		pluginFailuresPolicy(),
		platformIdentifiedPolicy(),
	}
}

// pluginFailuresPolicy reports plugins whose body failed.
func pluginFailuresPolicy() Policy {
	return Policy{
		Name:        "plugin-failures",
		Description: "Reports plugins that failed during collection",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package hostfacts.plugins

import rego.v1

deny contains violation if {
	some p in input.plugins
	p.state == "failed"
	violation := {
		"message": sprintf("plugin %s failed", [p.name]),
	}
}
`,
	}
}

// platformIdentifiedPolicy requires the facts inventory tooling keys on.
func platformIdentifiedPolicy() Policy {
	return Policy{
		Name:        "platform-identified",
		Description: "Requires the os and platform facts",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package hostfacts.platform

import rego.v1

deny contains violation if {
	some attr in ["os", "platform"]
	not input.facts[attr]
	violation := {
		"message": sprintf("fact %s was not collected", [attr]),
		"path": attr,
	}
}
`,
	}
}
