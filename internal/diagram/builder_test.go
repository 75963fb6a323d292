package diagram

import (
	"testing"

	"github.com/rendis/flowlanes/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test model builders ---

func linearModel() *model.Model {
	m := model.New()
	m.RenameFrame(0, "Intake")
	root := m.Frame(0)
	root.AddBlock("Receive Document", "Ops Mail Clerk Ana", "form A")
	root.AddBlock("Enter Data to IT", "", "form A")
	root.AddBlock("Archive Document", "", "")
	return m
}

func referenceModel() *model.Model {
	m := model.New()
	root := m.Frame(0)
	root.AddBlock(model.RunSubprocess, "", "Billing")
	root.AddBlock(model.ParallelProcedures, "", "Parallel Subprocess 1\nParallel Subprocess 2\n")
	root.AddBlock(model.FormalAssessment, "", "Condition: paid\nOn Failure: Assessment Failure 1")
	root.AddBlock(model.RunSubprocess, "", "Nowhere")

	m.AddFrame("Billing").AddBlock("Sign Document", "", "invoice")
	m.AddFrame("Parallel Subprocess 1").AddBlock("Notify", "", "a")
	m.AddFrame("Parallel Subprocess 2").AddBlock("Notify", "", "b")
	m.AddFrame("Assessment Failure 1")
	return m
}

func nodeByID(d *DiagramModel, id string) *Node {
	for _, l := range d.Lanes {
		for _, n := range l.Nodes {
			if n.ID == id {
				return n
			}
		}
	}
	return nil
}

// --- Build tests ---

func TestBuildLinear(t *testing.T) {
	d := Build(linearModel(), nil)

	assert.Equal(t, "Intake", d.Title)
	require.Len(t, d.Lanes, 1)
	lane := d.Lanes[0]
	assert.Equal(t, "f0", lane.ID)
	assert.Equal(t, "Intake", lane.Label)
	require.Len(t, lane.Nodes, 4)

	entry := lane.Entry()
	assert.Equal(t, NodeKindStart, entry.Kind)
	assert.Equal(t, "f0_start", entry.ID)

	assert.Equal(t, "Receive Document\n(form A)", lane.Nodes[1].Label)
	assert.Equal(t, "Ops Mail Clerk Ana", lane.Nodes[1].Entity)
	assert.Equal(t, "Archive Document", lane.Nodes[3].Label)

	assert.Equal(t, []Edge{
		{From: "f0_start", To: "f0_b0", Kind: EdgeSequence},
		{From: "f0_b0", To: "f0_b1", Kind: EdgeSequence},
		{From: "f0_b1", To: "f0_b2", Kind: EdgeSequence},
	}, lane.Edges)
	assert.Empty(t, d.Edges)
	assert.Equal(t, 3, d.NodeCount())
}

func TestBuildReferences(t *testing.T) {
	d := Build(referenceModel(), nil)

	require.Len(t, d.Lanes, 5)
	assert.Equal(t, NodeKindSubprocess, nodeByID(d, "f0_b0").Kind)
	assert.Equal(t, NodeKindParallel, nodeByID(d, "f0_b1").Kind)
	assert.Equal(t, NodeKindAssessment, nodeByID(d, "f0_b2").Kind)

	// The dangling "Nowhere" call produces no edge.
	assert.Equal(t, []Edge{
		{From: "f0_b0", To: "f1_start", Label: "calls", Kind: EdgeCall},
		{From: "f0_b1", To: "f2_start", Label: "forks", Kind: EdgeFork},
		{From: "f0_b1", To: "f3_start", Label: "forks", Kind: EdgeFork},
		{From: "f0_b2", To: "f4_start", Label: "on failure", Kind: EdgeFailure},
	}, d.Edges)
}

func TestBuildEmptyLane(t *testing.T) {
	d := Build(model.New(), nil)
	require.Len(t, d.Lanes, 1)
	assert.Len(t, d.Lanes[0].Nodes, 1)
	assert.Empty(t, d.Lanes[0].Edges)
	assert.Equal(t, "Main Process", d.Title)
}

func TestBuildEmptyModel(t *testing.T) {
	d := Build(model.Empty(), nil)
	assert.Equal(t, "Diagram", d.Title)
	assert.Empty(t, d.Lanes)
}

func TestBuildDuplicateTitlesResolveToFirst(t *testing.T) {
	m := model.New()
	m.Frame(0).AddBlock(model.RunSubprocess, "", "Twin")
	m.AddFrame("Twin")
	m.AddFrame("Twin")

	d := Build(m, nil)
	require.Len(t, d.Edges, 1)
	assert.Equal(t, "f1_start", d.Edges[0].To)
}

func TestBuildOverlays(t *testing.T) {
	m := referenceModel()
	var sel model.Selection
	sel.SelectBlock(m.Frame(1).Block(0))
	sel.SelectFrame(m.Frame(2))

	d := Build(m, &Options{
		Selection: &sel,
		Matches: []model.BlockRef{
			{Frame: m.Frame(2), Block: m.Frame(2).Block(0)},
			{Frame: m.Frame(1), Block: m.Frame(1).Block(0)},
		},
	})

	assert.Equal(t, StatusSelected, nodeByID(d, "f1_b0").Status, "selection wins over match")
	assert.Equal(t, StatusMatched, nodeByID(d, "f2_b0").Status)
	assert.Equal(t, StatusSelected, nodeByID(d, "f2_start").Status)
	assert.Equal(t, "", nodeByID(d, "f0_b0").Status)
}

func TestBuildFollowsReorder(t *testing.T) {
	m := linearModel()
	f := m.Frame(0)
	require.True(t, f.SwapBlocks(f.Block(0), f.Block(2)))

	d := Build(m, nil)
	assert.Equal(t, "Archive Document", d.Lanes[0].Nodes[1].Label)
	assert.Equal(t, "Receive Document\n(form A)", d.Lanes[0].Nodes[3].Label)
}
