package main

import (
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/signalpilot/signalpilot/internal/analysis"
)

func newAskCmd(g *globals) *cobra.Command {
	var (
		filters      []string
		conversation string
		showResults  bool
	)
	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Plan and write analysis code for one query",
		Example: `  signalpilot ask "plot the vehicle speed over time"
  signalpilot ask --filter "gear is 3" "what is the mean engine speed"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.loadApp(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			serveMetrics(ctx, a.Config.Metrics.Addr, a.Logger)

			if conversation == "" {
				conversation = uuid.NewString()
			}
			ans, err := a.Assistant.Ask(ctx, analysis.Query{
				ConversationID:   conversation,
				Text:             strings.Join(args, " "),
				FilterConditions: filters,
			})
			if err != nil {
				return err
			}
			printAnswer(cmd.OutOrStdout(), ans, showResults)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "filter condition to apply (repeatable)")
	cmd.Flags().StringVar(&conversation, "conversation", "", "conversation ID for working memory (default: random)")
	cmd.Flags().BoolVar(&showResults, "results", false, "print every action result")
	return cmd
}

func printAnswer(w io.Writer, ans *analysis.Answer, showResults bool) {
	if ans.Reply != "" {
		fmt.Fprintln(w, ans.Reply)
		return
	}
	fmt.Fprintf(w, "Query: %s\nRole:  %s\n\n", ans.Query, ans.Role)
	fmt.Fprintf(w, "Plan:\n%s\n\n", ans.Plan)
	fmt.Fprintf(w, "Code:\n%s\n", ans.Code)
	if !showResults {
		return
	}
	fmt.Fprintln(w, "\nResults:")
	for _, r := range ans.Results {
		fmt.Fprintf(w, "  %-28s %-8s %s\n", r.ActionType, r.Status, r.CreatedAt.Format("15:04:05"))
	}
}
