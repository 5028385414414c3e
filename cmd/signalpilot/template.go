package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/signalpilot/signalpilot/internal/chattemplate"
	"github.com/signalpilot/signalpilot/internal/provider"
)

func newTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Work with chat templates",
	}

	var (
		name         string
		model        string
		file         string
		noGeneration bool
	)
	format := &cobra.Command{
		Use:   "format",
		Short: "Render a YAML list of messages with a chat template",
		Example: `  signalpilot template format --template llama31 --file msgs.yaml
  cat msgs.yaml | signalpilot template format --model mixtral-8x7b-instruct`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tmpl, err := resolveTemplate(name, model)
			if err != nil {
				return err
			}
			messages, err := readMessages(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			out, err := tmpl.Format(messages, !noGeneration)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	format.Flags().StringVarP(&name, "template", "t", "", "template name ("+strings.Join(chattemplate.Names(), ", ")+")")
	format.Flags().StringVar(&model, "model", "", "pick the template from a model name")
	format.Flags().StringVarP(&file, "file", "f", "-", "YAML file of {role, content} messages, - for stdin")
	format.Flags().BoolVar(&noGeneration, "no-generation-prompt", false, "do not open an assistant turn")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the known templates",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, n := range chattemplate.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
		},
	}

	cmd.AddCommand(format, list)
	return cmd
}

func resolveTemplate(name, model string) (chattemplate.Template, error) {
	switch {
	case name != "":
		return chattemplate.Lookup(name)
	case model != "":
		tmpl, ok := chattemplate.ForModel(model)
		if !ok {
			return nil, fmt.Errorf("no chat template matches model %q", model)
		}
		return tmpl, nil
	}
	return nil, errors.New("one of --template or --model is required")
}

func readMessages(path string, stdin io.Reader) ([]provider.Message, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading messages: %w", err)
	}
	var messages []provider.Message
	if err := yaml.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("parsing messages: %w", err)
	}
	if len(messages) == 0 {
		return nil, errors.New("no messages to format")
	}
	return messages, nil
}
