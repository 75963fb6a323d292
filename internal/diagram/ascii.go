package diagram

import (
	"fmt"
	"strings"
)

// statusTag returns a short ASCII indicator for a status string.
func statusTag(status string) string {
	switch status {
	case StatusSelected:
		return "[SEL]"
	case StatusMatched:
		return "[HIT]"
	default:
		return ""
	}
}

// kindTag marks synthetic blocks.
func kindTag(kind NodeKind) string {
	switch kind {
	case NodeKindSubprocess:
		return "[CALL]"
	case NodeKindParallel:
		return "[FORK]"
	case NodeKindAssessment:
		return "[CHECK]"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as a text-based ASCII diagram.
// Lanes are drawn one after another, each as a vertical chain of boxes.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	// Title.
	if model.Title != "" {
		b.WriteString(fmt.Sprintf("=== %s ===\n", model.Title))
	}

	refs := make(map[string][]Edge)
	labels := make(map[string]string)
	for _, lane := range model.Lanes {
		labels[lane.Entry().ID] = lane.Label
	}
	for _, e := range model.Edges {
		refs[e.From] = append(refs[e.From], e)
	}

	for i, lane := range model.Lanes {
		entry := lane.Entry()
		header := fmt.Sprintf("\n--- [%d] %s ---", i, lane.Label)
		if tag := statusTag(entry.Status); tag != "" {
			header += " " + tag
		}
		b.WriteString(header + "\n")

		blocks := lane.Nodes[1:]
		if len(blocks) == 0 {
			b.WriteString("  (empty)\n")
			continue
		}
		for j, node := range blocks {
			box := makeBox(node)
			for k, line := range box.lines {
				b.WriteString(line)
				// Cross-lane references go next to the box's first content row.
				if k == 1 {
					for _, e := range refs[node.ID] {
						b.WriteString(fmt.Sprintf("  ─→ %s (%s)", labels[e.To], e.Label))
					}
				}
				b.WriteByte('\n')
			}
			if j < len(blocks)-1 {
				renderConnector(&b)
			}
		}
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node.
func makeBox(node *Node) asciiBox {
	// Build content lines.
	title := firstLine(node.Label)
	if tag := kindTag(node.Kind); tag != "" {
		title = tag + " " + title
	}
	if tag := statusTag(node.Status); tag != "" {
		title += " " + tag
	}
	contentLines := []string{title}
	if node.Entity != "" {
		contentLines = append(contentLines, "@ "+node.Entity)
	}
	for _, line := range strings.Split(strings.TrimRight(node.Detail, "\n"), "\n") {
		if line != "" {
			contentLines = append(contentLines, line)
		}
	}

	// Calculate width in runes.
	maxLen := 0
	for _, line := range contentLines {
		if n := len([]rune(line)); n > maxLen {
			maxLen = n
		}
	}
	width := maxLen + 4 // 2 border + 2 padding

	// Build box lines.
	var lines []string
	top := "┌" + strings.Repeat("─", width-2) + "┐"
	bot := "└" + strings.Repeat("─", width-2) + "┘"
	lines = append(lines, top)
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-len([]rune(content)))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, bot)

	return asciiBox{lines: lines, width: width}
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// renderConnector draws a vertical connector between boxes.
func renderConnector(b *strings.Builder) {
	b.WriteString("  │\n")
	b.WriteString("  ▼\n")
}
