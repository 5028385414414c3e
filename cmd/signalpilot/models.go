package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalpilot/signalpilot/internal/app"
	"github.com/signalpilot/signalpilot/internal/router"
)

func newModelsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect the configured models",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Probe the model of every role",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := g.loadApp(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer a.Close()

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "Roles:")
				for _, role := range router.Roles() {
					fmt.Fprintf(out, "  %-10s %s\n", role, a.Clients[role].Model())
				}

				status := a.ModelStatus(cmd.Context())
				models := make([]string, 0, len(status))
				for m := range status {
					models = append(models, m)
				}
				sort.Strings(models)

				fmt.Fprintln(out, "\nModels:")
				down := 0
				for _, m := range models {
					st := status[m]
					if st.Available {
						fmt.Fprintf(out, "  %-40s ✓ %s\n", m, st.Latency.Round(time.Millisecond))
						continue
					}
					down++
					fmt.Fprintf(out, "  %-40s ✗ %s\n", m, st.Error)
				}
				if down > 0 {
					return fmt.Errorf("%d of %d models unavailable", down, len(models))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List the catalog by weight",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := g.loadConfig()
				if err != nil {
					return err
				}
				for _, m := range app.NewRouter(cfg).Models() {
					fmt.Fprintf(cmd.OutOrStdout(), "  %-40s %-12s %4d %s\n", m.Ref, m.Alias, m.Weight, m.Template)
				}
				return nil
			},
		},
	)
	return cmd
}
