package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(context.Background(), zerolog.New(nil).Level(zerolog.Disabled))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func newInput(t *testing.T, factsJSON string, plugins ...PluginStatus) *Input {
	t.Helper()
	facts, err := DecodeFacts([]byte(factsJSON))
	if err != nil {
		t.Fatalf("DecodeFacts() error = %v", err)
	}
	return &Input{Facts: facts, Plugins: plugins, Context: &Context{RunID: "test"}}
}

func writePolicy(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNewEngine_Builtins(t *testing.T) {
	var names []string
	for _, p := range newTestEngine(t).ListPolicies() {
		names = append(names, p.Name)
	}
	if diff := cmp.Diff([]string{"platform-identified", "plugin-failures"}, names); diff != "" {
		t.Errorf("built-in policies mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate_Builtins(t *testing.T) {
	tests := []struct {
		name       string
		facts      string
		plugins    []PluginStatus
		wantPassed bool
		want       []Violation
	}{
		{
			name:       "healthy host",
			facts:      `{"os": "linux", "platform": {"family": "debian"}}`,
			plugins:    []PluginStatus{{Name: "os", Generation: "legacy", State: "ran"}},
			wantPassed: true,
			want:       []Violation{},
		},
		{
			name:       "failed plugin warns",
			facts:      `{"os": "linux", "platform": "debian"}`,
			plugins:    []PluginStatus{{Name: "linux::passwd", Generation: "legacy", State: "failed"}},
			wantPassed: true,
			want: []Violation{
				{Policy: "plugin-failures", Message: "plugin linux::passwd failed", Severity: SeverityWarning},
			},
		},
		{
			name:       "missing platform fails",
			facts:      `{"os": "linux"}`,
			wantPassed: false,
			want: []Violation{
				{Policy: "platform-identified", Path: "platform", Message: "fact platform was not collected", Severity: SeverityError},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := newTestEngine(t).Evaluate(context.Background(), newInput(t, tt.facts, tt.plugins...))
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if result.Passed != tt.wantPassed {
				t.Errorf("Passed = %v, want %v", result.Passed, tt.wantPassed)
			}
			if diff := cmp.Diff(tt.want, result.Violations); diff != "" {
				t.Errorf("violations mismatch (-want +got):\n%s", diff)
			}
			if len(result.Evaluated) != 2 {
				t.Errorf("Evaluated = %v", result.Evaluated)
			}
		})
	}
}

func TestLoadPolicies(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "memory.rego", `# Hosts need at least 2 GiB of memory.
# severity: critical
package hostfacts.memory

import rego.v1

deny contains v if {
	input.facts.memory.total_mb < 2048
	v := {"message": sprintf("only %d MB of memory", [input.facts.memory.total_mb]), "path": "memory/total_mb"}
}
`)
	writePolicy(t, dir, "virt.json", `{
  "name": "virtualization",
  "severity": "info",
  "rego": "package hostfacts.virt\n\nimport rego.v1\n\ndeny contains \"guest\" if input.facts.virtualization.role == \"guest\"\n"
}`)
	writePolicy(t, dir, "notes.txt", "ignored")

	eng := newTestEngine(t)
	if err := eng.DisablePolicy("platform-identified"); err != nil {
		t.Fatal(err)
	}
	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies() error = %v", err)
	}

	memory, err := eng.GetPolicy("memory")
	if err != nil {
		t.Fatalf("GetPolicy() error = %v", err)
	}
	if memory.Description != "Hosts need at least 2 GiB of memory." || memory.Severity != SeverityCritical {
		t.Errorf("memory policy = %+v", memory)
	}

	result, err := eng.Evaluate(context.Background(), newInput(t,
		`{"memory": {"total_mb": 1024}, "virtualization": {"role": "guest"}}`))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	want := []Violation{
		{Policy: "memory", Path: "memory/total_mb", Message: "only 1024 MB of memory", Severity: SeverityCritical},
		{Policy: "virtualization", Message: "guest", Severity: SeverityInfo},
	}
	if diff := cmp.Diff(want, result.Violations); diff != "" {
		t.Errorf("violations mismatch (-want +got):\n%s", diff)
	}
	if result.Passed {
		t.Error("critical violation should fail the result")
	}
	if diff := cmp.Diff([]string{"memory", "plugin-failures", "virtualization"}, result.Evaluated); diff != "" {
		t.Errorf("evaluated mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadPolicies_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
	}{
		{
			name: "missing path",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "absent")
			},
		},
		{
			name: "invalid rego",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writePolicy(t, dir, "bad.rego", "package hostfacts.bad\n\ndeny contains if {\n")
				return dir
			},
		},
		{
			name: "unknown severity",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writePolicy(t, dir, "loud.rego", "# severity: loud\npackage hostfacts.loud\n")
				return dir
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := newTestEngine(t).LoadPolicies(context.Background(), []string{tt.setup(t)}); err == nil {
				t.Error("LoadPolicies() should fail")
			}
		})
	}
}

func TestEvaluate_RuntimeErrorIsWarning(t *testing.T) {
	eng := newTestEngine(t)
	err := eng.Add(context.Background(), Policy{
		Name:    "conflict",
		Enabled: true,
		Rego: `package hostfacts.conflict

import rego.v1

value = 1 if input.facts.os
value = 2 if input.facts.os

deny contains "never" if value == 3
`,
	})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	result, err := eng.Evaluate(context.Background(), newInput(t, `{"os": "linux", "platform": "x"}`))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("Warnings = %v, want one", result.Warnings)
	}
	if !result.Passed {
		t.Error("an evaluation error alone should not fail the result")
	}
}

func TestEnableDisable(t *testing.T) {
	eng := newTestEngine(t)

	if err := eng.DisablePolicy("missing"); err == nil {
		t.Error("DisablePolicy() should fail for an unknown policy")
	}
	if err := eng.DisablePolicy("platform-identified"); err != nil {
		t.Fatal(err)
	}

	result, err := eng.Evaluate(context.Background(), newInput(t, `{}`))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result.Passed {
		t.Errorf("disabled policy was evaluated: %+v", result.Violations)
	}

	if err := eng.EnablePolicy("platform-identified"); err != nil {
		t.Fatal(err)
	}
	result, err = eng.Evaluate(context.Background(), newInput(t, `{}`))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.Passed {
		t.Error("re-enabled policy should fail an empty tree")
	}
}

func TestParseRego(t *testing.T) {
	p := parseRego("/etc/policies/kernel.rego", `
# Kernel facts
# are required.
# severity: error

# not part of the description
package hostfacts.kernel
`)

	want := &Policy{
		Name:        "kernel",
		Description: "Kernel facts are required.",
		Severity:    SeverityError,
		Enabled:     true,
	}
	if diff := cmp.Diff(want, p, cmpopts.IgnoreFields(Policy{}, "Rego")); diff != "" {
		t.Errorf("parseRego() mismatch (-want +got):\n%s", diff)
	}
}
