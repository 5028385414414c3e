package chattemplate

import (
	"strings"

	"github.com/signalpilot/signalpilot/internal/provider"
)

const (
	llamaBeginOfText = "<|begin_of_text|>"
	llamaStartHeader = "<|start_header_id|>"
	llamaEndHeader   = "<|end_header_id|>\n\n"
	llamaEndOfTurn   = "<|eot_id|>"

	mixtralBOS      = "<s>"
	mixtralEOS      = "</s>"
	mixtralInst     = "[INST] "
	mixtralInstEnd  = " [/INST]"
	phindSystem     = "### System Prompt\n"
	phindUser       = "### User Message\n"
	phindAssistant  = "### Assistant\n"
	phindTurnSuffix = "\n\n"
)

// Llama3 is the Meta Llama 3 instruct format. The system message is kept
// as its own header block.
type Llama3 struct{}

func (Llama3) Name() string { return "llama3" }

func (Llama3) Format(messages []provider.Message, addGenerationPrompt bool) (string, error) {
	return formatLlama(messages, addGenerationPrompt)
}

// Llama31 is the Llama 3.1 instruct format, which shares the Llama 3
// header and end-of-turn tokens.
type Llama31 struct{}

func (Llama31) Name() string { return "llama31" }

func (Llama31) Format(messages []provider.Message, addGenerationPrompt bool) (string, error) {
	return formatLlama(messages, addGenerationPrompt)
}

func formatLlama(messages []provider.Message, addGenerationPrompt bool) (string, error) {
	c, err := split(messages)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString(llamaBeginOfText)
	if c.hasSystem {
		writeLlamaTurn(&sb, provider.RoleSystem, c.system)
	}
	for _, m := range c.turns {
		writeLlamaTurn(&sb, m.Role, m.Content)
	}
	if addGenerationPrompt {
		sb.WriteString(llamaStartHeader + string(provider.RoleAssistant) + llamaEndHeader)
	}
	return sb.String(), nil
}

func writeLlamaTurn(sb *strings.Builder, role provider.Role, content string) {
	sb.WriteString(llamaStartHeader)
	sb.WriteString(string(role))
	sb.WriteString(llamaEndHeader)
	sb.WriteString(strings.TrimSpace(content))
	sb.WriteString(llamaEndOfTurn)
}

// Mixtral is the Mixtral 8x7B instruct format. It has no system role, so
// the system text is folded into the first instruction. The closing
// [/INST] already opens the assistant turn, so the generation prompt adds
// nothing. A non-empty Primer is appended to steer the answer's start.
type Mixtral struct {
	Primer string
}

func (Mixtral) Name() string { return "mixtral" }

func (t Mixtral) Format(messages []provider.Message, _ bool) (string, error) {
	c, err := split(messages)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString(mixtralBOS)
	if c.hasSystem && len(c.turns) == 0 {
		sb.WriteString(mixtralInst + strings.TrimSpace(c.system) + mixtralInstEnd)
	}
	for i, m := range c.turns {
		content := strings.TrimSpace(m.Content)
		if m.Role == provider.RoleUser {
			if i == 0 && c.hasSystem {
				content = strings.TrimSpace(c.system) + "\n\n" + content
			}
			sb.WriteString(mixtralInst + content + mixtralInstEnd)
			continue
		}
		sb.WriteString(content + mixtralEOS)
	}
	if t.Primer != "" {
		sb.WriteString(" " + t.Primer)
	}
	return sb.String(), nil
}

// Phind is the Phind CodeLlama format with markdown section headers.
type Phind struct{}

func (Phind) Name() string { return "phind" }

func (Phind) Format(messages []provider.Message, addGenerationPrompt bool) (string, error) {
	c, err := split(messages)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if c.hasSystem {
		sb.WriteString(phindSystem + strings.TrimSpace(c.system) + phindTurnSuffix)
	}
	for _, m := range c.turns {
		header := phindUser
		if m.Role == provider.RoleAssistant {
			header = phindAssistant
		}
		sb.WriteString(header + strings.TrimSpace(m.Content) + phindTurnSuffix)
	}
	if addGenerationPrompt {
		sb.WriteString(phindAssistant)
	}
	return sb.String(), nil
}
