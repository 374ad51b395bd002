package definition

import (
	"fmt"
	"strings"
)

// Mermaid renders def as a mermaid stateDiagram-v2. Failure edges are drawn
// only when they leave the state. A submachine is drawn as a composite
// state named after it.
func Mermaid(def *Definition) string {
	var sb strings.Builder
	sb.WriteString("stateDiagram-v2\n")
	writeDiagram(&sb, def, "    ")
	return sb.String()
}

func writeDiagram(sb *strings.Builder, def *Definition, indent string) {
	fmt.Fprintf(sb, "%s[*] --> %s\n", indent, def.Initial)

	for _, tr := range def.Transitions {
		label := tr.Event
		transit := tr.Transit
		if transit == "" {
			transit = def.transitOf(tr.From)
		}
		if transit != "" && transit != tr.From {
			label += " [" + transit + "]"
		}
		fmt.Fprintf(sb, "%s%s --> %s: %s\n", indent, tr.From, tr.Success, label)

		if tr.Failure != "" && tr.Failure != tr.From {
			fmt.Fprintf(sb, "%s%s --> %s: %s failed\n", indent, tr.From, tr.Failure, tr.Event)
		}
	}

	if def.Submachine != nil {
		name := def.Submachine.Name
		if name == "" {
			name = "submachine"
		}
		fmt.Fprintf(sb, "%sstate %s {\n", indent, name)
		writeDiagram(sb, def.Submachine, indent+"    ")
		fmt.Fprintf(sb, "%s}\n", indent)
	}
}
