// Package config loads the hostfacts configuration file.
//
// The file is YAML. Every field is optional; omitted fields keep the values
// from Default:
//
//	plugin_path:
//	  - /etc/hostfacts/plugins
//	  - /usr/local/share/hostfacts/plugins
//	plugin_language: lua
//	builtin_collectors: true
//	disabled_plugins:
//	  - linux::passwd
//	hint_path:
//	  - /etc/hostfacts/hints
//	policy_path:
//	  - /etc/hostfacts/policies
//	disabled_policies:
//	  - plugin-failures
//	telemetry:
//	  logging:
//	    level: debug
//	    format: json
//	  metrics:
//	    textfile: /var/lib/node_exporter/hostfacts.prom
//
// Parsed values are validated with go-playground/validator struct tags.
// A Config is handed to engine.NewSystem, which keeps its own copy.
package config
