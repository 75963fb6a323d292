package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderASCIILinear(t *testing.T) {
	output := RenderASCII(Build(linearModel(), nil))
	assert.NotEmpty(t, output)

	// Verify title.
	assert.Contains(t, output, "=== Intake ===")
	assert.Contains(t, output, "--- [0] Intake ---")

	// Verify box-drawing characters.
	assert.Contains(t, output, "┌")
	assert.Contains(t, output, "┐")
	assert.Contains(t, output, "└")
	assert.Contains(t, output, "┘")
	assert.Contains(t, output, "▼")

	// Verify node content.
	assert.Contains(t, output, "Receive Document")
	assert.Contains(t, output, "@ Ops Mail Clerk Ana")
	assert.Contains(t, output, "form A")
	assert.Equal(t, 2, strings.Count(output, "▼"), "connectors only between boxes")
}

func TestRenderASCIIReferences(t *testing.T) {
	output := RenderASCII(Build(referenceModel(), nil))

	assert.Contains(t, output, "[CALL] Run Subprocess")
	assert.Contains(t, output, "[FORK] Parallel Procedures")
	assert.Contains(t, output, "[CHECK] Formal Assessment")
	assert.Contains(t, output, "─→ Billing (calls)")
	assert.Contains(t, output, "─→ Parallel Subprocess 2 (forks)")
	assert.Contains(t, output, "─→ Assessment Failure 1 (on failure)")
	assert.Contains(t, output, "--- [4] Assessment Failure 1 ---\n  (empty)")
}

func TestRenderASCIIStatus(t *testing.T) {
	model := &DiagramModel{
		Title: "Test",
		Lanes: []*Lane{{
			ID:    "f0",
			Label: "Main",
			Nodes: []*Node{
				{ID: "f0_start", Label: "Main", Kind: NodeKindStart, Status: StatusSelected},
				{ID: "f0_b0", Label: "Notify", Kind: NodeKindStep, Status: StatusMatched},
			},
		}},
	}

	output := RenderASCII(model)
	assert.Contains(t, output, "--- [0] Main --- [SEL]")
	assert.Contains(t, output, "Notify [HIT]")
}

func TestMakeBoxAlignsWideRunes(t *testing.T) {
	box := makeBox(&Node{Label: "Señal", Detail: "añadir\nx"})
	width := len([]rune(box.lines[0]))
	for _, line := range box.lines {
		assert.Equal(t, width, len([]rune(line)), line)
	}
}
