package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/signalpilot/signalpilot/internal/orchestrator"
	"github.com/signalpilot/signalpilot/internal/state"
)

var exitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

func newAgentCmd(g *globals) *cobra.Command {
	var (
		message      string
		conversation string
		transcript   string
	)
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Chat with the agent, which calls the analysis actions itself",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.loadApp(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			serveMetrics(ctx, a.Config.Metrics.Addr, a.Logger)

			if conversation == "" {
				conversation = "cli:" + uuid.NewString()
			}
			s := &agentSession{
				orch:         a.Orchestrator,
				conversation: conversation,
				out:          cmd.OutOrStdout(),
			}
			if message != "" {
				err = s.turn(ctx, message)
			} else {
				err = s.interactive(ctx, cmd.InOrStdin())
			}
			if transcript != "" {
				if terr := writeTranscript(transcript, a.Conversations.Get(conversation)); terr != nil {
					a.Logger.Error("writing transcript", "path", transcript, "error", terr)
				}
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "send a single message and exit")
	cmd.Flags().StringVarP(&conversation, "conversation", "s", "", "conversation ID (default: random)")
	cmd.Flags().StringVar(&transcript, "transcript", "", "write the conversation as YAML to this file on exit")
	return cmd
}

type agentSession struct {
	orch         *orchestrator.Orchestrator
	conversation string
	out          io.Writer
}

// interactive reads one message per line until EOF, an exit command or
// cancellation. A failed turn is reported and the loop goes on.
func (s *agentSession) interactive(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(s.out, "Interactive mode (type 'exit' or Ctrl+C to quit)")
	fmt.Fprintln(s.out)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(s.out, "You: ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out, "\nGoodbye!")
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out, "\nGoodbye!")
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}
		if exitCommands[strings.ToLower(line)] {
			fmt.Fprintln(s.out, "Goodbye!")
			return nil
		}
		if err := s.turn(ctx, line); err != nil {
			fmt.Fprintf(s.out, "\nError: %v\n\n", err)
		}
	}
}

func (s *agentSession) turn(ctx context.Context, message string) error {
	res, err := s.orch.Run(ctx, s.conversation, message)
	if res != nil {
		for i, call := range res.ToolCalls {
			fmt.Fprintf(s.out, "  ↳ %s: %s\n", call.Action, res.Results[i].Status)
		}
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "\nSignalPilot:\n%s\n\n", res.Response)
	return nil
}

func writeTranscript(path string, h *state.History) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := h.WriteYAML(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
