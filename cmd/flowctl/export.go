package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/meikuraledutech/flow"
	"github.com/meikuraledutech/flow/export"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func readState(path string) (flow.GraphState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return flow.GraphState{}, err
	}
	var t flow.Template
	if err := json.Unmarshal(raw, &t); err != nil {
		return flow.GraphState{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return flow.NewGraphState(t.Nodes, t.Edges)
}

// explain lists every problem of an aggregated validation error on its own
// line.
func explain(err error) error {
	errs := multierr.Errors(err)
	if len(errs) < 2 {
		return err
	}
	lines := make([]string, len(errs))
	for i, e := range errs {
		lines[i] = "  - " + e.Error()
	}
	return fmt.Errorf("%d problems:\n%s", len(errs), strings.Join(lines, "\n"))
}

func newExportCmd(o *options) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <template.json>",
		Short: "Validate a saved template and write its task CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := readState(args[0])
			if err != nil {
				return err
			}
			b, err := export.Build(st, flow.ExportOptions{AllowIsolatedTasks: o.cfg.AllowIsolatedTasks})
			if err != nil {
				return explain(err)
			}
			if out == "" {
				_, err := cmd.OutOrStdout().Write(append(b.CSV, '\n'))
				return err
			}
			if err := os.WriteFile(out, b.CSV, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d tasks to %s\n", len(b.Order), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the CSV to this file instead of stdout")
	return cmd
}

func newOrderCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "order <template.json>",
		Short: "Print the task slugs of a saved template in execution order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := readState(args[0])
			if err != nil {
				return err
			}
			order, err := flow.Linearize(st.Tasks())
			if err != nil {
				return err
			}
			for _, slug := range order {
				fmt.Fprintln(cmd.OutOrStdout(), slug)
			}
			return nil
		},
	}
}
