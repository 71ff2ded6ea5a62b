package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/openfroyo/hostfacts/pkg/policy"
	"github.com/openfroyo/hostfacts/pkg/telemetry"
)

var errCheckFailed = errors.New("policy check failed")

func newCheckCommand() *cobra.Command {
	var (
		policyPaths []string
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Collect facts and evaluate policies against them",
		Long: `Collect all facts, then evaluate the built-in policies and every Rego
policy under the policy path against the fact tree.

Each policy's deny rule lists violations. The command fails when any violation
has severity error or critical.`,
		Example: `  # Check against site policies
  hostfacts check --policy-path /etc/hostfacts/policies

  # Machine-readable report
  hostfacts check --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, r *runtime) error {
				eng, err := policy.NewEngine(ctx, telemetry.ComponentLogger(r.logger, "policy-engine"))
				if err != nil {
					return err
				}

				paths := append(append([]string(nil), r.cfg.PolicyPath...), policyPaths...)
				if len(paths) > 0 {
					if err := eng.LoadPolicies(ctx, paths); err != nil {
						return err
					}
				}
				for _, name := range r.cfg.DisabledPolicies {
					if err := eng.DisablePolicy(name); err != nil {
						r.logger.Warn().Err(err).Msg("Cannot disable policy")
					}
				}

				if err := r.sys.CollectAll(ctx, false); err != nil {
					return err
				}
				input, err := r.policyInput()
				if err != nil {
					return err
				}

				result, err := eng.Evaluate(ctx, input)
				if err != nil {
					return err
				}

				if jsonOutput {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					enc.SetEscapeHTML(false)
					if err := enc.Encode(result); err != nil {
						return err
					}
				} else if err := renderResult(cmd, result); err != nil {
					return err
				}

				if !result.Passed {
					return errCheckFailed
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&policyPaths, "policy-path", nil, "policy file or directory (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	return cmd
}

// policyInput snapshots the fact tree and plugin states.
func (r *runtime) policyInput() (*policy.Input, error) {
	data, err := r.sys.SerializeAll(false)
	if err != nil {
		return nil, err
	}
	facts, err := policy.DecodeFacts(data)
	if err != nil {
		return nil, err
	}

	plugins := r.sys.Plugins()
	statuses := make([]policy.PluginStatus, 0, len(plugins))
	for _, p := range plugins {
		statuses = append(statuses, policy.PluginStatus{
			Name:       p.Name(),
			Generation: string(p.Generation()),
			State:      string(p.State()),
		})
	}

	return &policy.Input{
		Facts:   facts,
		Plugins: statuses,
		Context: &policy.Context{Timestamp: time.Now().UTC()},
	}, nil
}

func renderResult(cmd *cobra.Command, result *policy.Result) error {
	w := cmd.OutOrStdout()
	for _, warning := range result.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warning)
	}

	if len(result.Violations) == 0 {
		_, err := fmt.Fprintf(w, "%d policies passed\n", len(result.Evaluated))
		return err
	}

	rows := make([][]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		path := v.Path
		if path == "" {
			path = "-"
		}
		rows = append(rows, []string{v.Policy, string(v.Severity), path, v.Message})
	}
	return renderTable(w, []string{"POLICY", "SEVERITY", "PATH", "MESSAGE"}, rows, 1, map[string]lipgloss.Color{
		string(policy.SeverityInfo):     colorGood,
		string(policy.SeverityWarning):  colorWarn,
		string(policy.SeverityError):    colorBad,
		string(policy.SeverityCritical): colorBad,
	})
}
