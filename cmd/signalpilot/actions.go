package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalpilot/signalpilot/internal/app"
	"github.com/signalpilot/signalpilot/internal/orchestrator"
)

func newActionsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "Inspect the actions offered to the models",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List action names and summaries",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				reg, err := g.actionRegistry()
				if err != nil {
					return err
				}
				for _, def := range reg.List() {
					fmt.Fprintf(cmd.OutOrStdout(), "%-28s %s\n", def.Name(), def.Metadata().Description)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "describe [name...]",
			Short: "Print the prompt-ready description of actions",
			RunE: func(cmd *cobra.Command, args []string) error {
				reg, err := g.actionRegistry()
				if err != nil {
					return err
				}
				if len(args) == 0 {
					fmt.Fprint(cmd.OutOrStdout(), reg.Descriptions())
					return nil
				}
				for _, name := range args {
					def, ok := reg.Get(name)
					if !ok {
						return fmt.Errorf("unknown action %q", name)
					}
					fmt.Fprint(cmd.OutOrStdout(), def.Description())
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "schema [name]",
			Short: "Print the JSON function-calling schemas",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				reg, err := g.actionRegistry()
				if err != nil {
					return err
				}
				var v any = reg.Schemas()
				if len(args) == 1 {
					def, ok := reg.Get(args[0])
					if !ok {
						return fmt.Errorf("unknown action %q", args[0])
					}
					v = def.ToolSchema()
				}
				var buf bytes.Buffer
				enc := json.NewEncoder(&buf)
				enc.SetIndent("", "  ")
				if err := enc.Encode(v); err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(buf.Bytes())
				return err
			},
		},
	)
	return cmd
}

// actionRegistry builds the registry without model clients. It is only
// good for inspection.
func (g *globals) actionRegistry() (*orchestrator.ActionRegistry, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.NewActionRegistry(cfg, nil)
}
