package action

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDescriptionLengthMismatch matches every *LengthMismatchError.
var ErrDescriptionLengthMismatch = errors.New("description length mismatch")

// LengthMismatchError reports an action whose declared parameter list
// and metadata disagree. It is a declaration bug in the action itself.
type LengthMismatchError struct {
	Action       string
	Parameters   int
	Descriptions int
	// What was counted against the parameters; defaults to
	// "parameter descriptions".
	What string
}

func (e *LengthMismatchError) Error() string {
	what := e.What
	if what == "" {
		what = "parameter descriptions"
	}
	return fmt.Sprintf("%s: %d parameters but %d %s", e.Action, e.Parameters, e.Descriptions, what)
}

func (e *LengthMismatchError) Is(target error) bool {
	return target == ErrDescriptionLengthMismatch
}

const (
	actionNamePlaceholder   = "{action_name}"
	argumentListPlaceholder = "{argument_list}"
	itemIndent              = "    "
)

// invocationTemplate is the call shape the model is told to emit.
const invocationTemplate = "    ```json\n" +
	"    {\n" +
	"        \"action\": {\n" +
	"            \"reason\": ...,\n" +
	"            \"name\": \"" + actionNamePlaceholder + "\",\n" +
	"            \"arguments\": {\n" +
	"                " + argumentListPlaceholder + "\n" +
	"            }\n" +
	"        }\n" +
	"    }\n" +
	"    ```"

// argumentIndent is the column of the first argument inside
// invocationTemplate; continuation lines start at the same column.
var argumentIndent = templateColumn(invocationTemplate, argumentListPlaceholder)

func templateColumn(template, placeholder string) string {
	for _, line := range strings.Split(template, "\n") {
		if i := strings.Index(line, placeholder); i >= 0 {
			return strings.Repeat(" ", i)
		}
	}
	return ""
}

// Build renders the prompt-ready description of an action. The output is
// a pure function of its inputs.
func Build(name string, params []Parameter, meta Metadata) (string, error) {
	if len(meta.ParameterDescriptions) != len(params) {
		return "", &LengthMismatchError{
			Action:       name,
			Parameters:   len(params),
			Descriptions: len(meta.ParameterDescriptions),
		}
	}

	var sb strings.Builder
	writeHeader(&sb, name, params)
	sb.WriteString("Description: ")
	sb.WriteString(meta.Description)
	sb.WriteString("\n\n")
	writeArgs(&sb, params, meta.ParameterDescriptions)
	if meta.Returns != "" {
		sb.WriteString("Returns:\n")
		sb.WriteString(itemIndent + "* " + meta.Returns + "\n\n")
	}
	if examples := nonEmpty(meta.Examples); len(examples) > 0 {
		sb.WriteString("Example:\n")
		for i, ex := range examples {
			if i > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(itemIndent + "* " + ex)
		}
		sb.WriteString("\n\n")
	}
	sb.WriteString("To use this action, write:\n")
	sb.WriteString(invocation(name, params))
	sb.WriteString("\n")
	return sb.String(), nil
}

func writeHeader(sb *strings.Builder, name string, params []Parameter) {
	sb.WriteString("### ")
	sb.WriteString(name)
	sb.WriteString("(")
	for i, p := range params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.Name + ": " + p.Type)
	}
	sb.WriteString(")\n")
}

func writeArgs(sb *strings.Builder, params []Parameter, descriptions []string) {
	sb.WriteString("Args:\n")
	if len(params) == 0 {
		sb.WriteString(itemIndent + "None\n\n")
		return
	}
	for i, p := range params {
		fmt.Fprintf(sb, "%s* %s (%s): %s\n", itemIndent, p.Name, p.Type, descriptions[i])
	}
	sb.WriteString("\n")
}

func invocation(name string, params []Parameter) string {
	out := strings.Replace(invocationTemplate, actionNamePlaceholder, name, 1)
	if len(params) == 0 {
		return strings.Replace(out, "\n"+argumentIndent+argumentListPlaceholder, "", 1)
	}
	args := make([]string, len(params))
	for i, p := range params {
		args[i] = fmt.Sprintf("%q: ...", p.Name)
	}
	return strings.Replace(out, argumentListPlaceholder, strings.Join(args, ",\n"+argumentIndent), 1)
}

func nonEmpty(items []string) []string {
	var out []string
	for _, s := range items {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
