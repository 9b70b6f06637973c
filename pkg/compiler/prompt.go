package compiler

import "strings"

// RenderPrompt substitutes {name} placeholders in a prompt template with the
// given values and concatenates appendValues to the end. Placeholders are
// replaced strictly in place, never re-ordered. An unresolved placeholder
// renders as the empty string: generation is best-effort, a missing binding
// must not abort the run.
func RenderPrompt(template string, values map[string]string, appendValues []string) string {
	var out strings.Builder

	for i := 0; i < len(template); {
		open := strings.IndexByte(template[i:], '{')
		if open < 0 {
			out.WriteString(template[i:])

			break
		}

		open += i
		out.WriteString(template[i:open])

		closing := strings.IndexByte(template[open:], '}')
		if closing < 0 {
			out.WriteString(template[open:])

			break
		}

		closing += open
		name := template[open+1 : closing]

		if isPlaceholderName(name) {
			out.WriteString(values[name])
		} else {
			out.WriteString(template[open : closing+1])
		}

		i = closing + 1
	}

	for _, extra := range appendValues {
		if extra == "" {
			continue
		}

		if out.Len() > 0 {
			out.WriteString("\n\n")
		}

		out.WriteString(extra)
	}

	return out.String()
}

func isPlaceholderName(name string) bool {
	if name == "" {
		return false
	}

	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}

	return true
}

// RenderStepPrompt renders a prepare script's prompt against resolved input
// values, honoring the append flag of each mapping.
func (s *StepScript) RenderStepPrompt(resolved map[string]string) string {
	values := make(map[string]string, len(s.Inputs))

	var appends []string

	for _, input := range s.Inputs {
		value := resolved[input.Name]
		if input.Append {
			appends = append(appends, value)

			continue
		}

		values[input.Name] = value
	}

	return RenderPrompt(s.Prompt, values, appends)
}
