package diagram

import (
	"fmt"

	"github.com/rendis/flowlanes/internal/model"
)

// Options adds overlays to a built diagram.
type Options struct {
	Selection *model.Selection
	Matches   []model.BlockRef
}

// Build constructs a DiagramModel from a model. Each frame becomes a lane
// whose blocks are chained in order after an entry node. Synthetic blocks
// get an edge to the entry of every lane they reference; references to
// missing frames are dropped.
func Build(m *model.Model, opts *Options) *DiagramModel {
	if opts == nil {
		opts = &Options{}
	}

	d := &DiagramModel{Title: titleFromModel(m)}
	entries := make(map[string]string, m.Len())

	for _, f := range m.Frames() {
		lane := &Lane{ID: laneID(f.Index()), Label: f.Name()}
		entry := &Node{ID: entryID(f.Index()), Label: f.Name(), Kind: NodeKindStart}
		if sel := opts.Selection; sel != nil && sel.Frame() == f {
			entry.Status = StatusSelected
		}
		lane.Nodes = append(lane.Nodes, entry)

		prev := entry.ID
		for _, b := range f.Blocks() {
			node := blockToNode(f, b)
			lane.Nodes = append(lane.Nodes, node)
			lane.Edges = append(lane.Edges, Edge{From: prev, To: node.ID, Kind: EdgeSequence})
			prev = node.ID
		}
		d.Lanes = append(d.Lanes, lane)

		if _, dup := entries[f.Name()]; !dup {
			entries[f.Name()] = entry.ID
		}
	}

	for _, f := range m.Frames() {
		for _, b := range f.Blocks() {
			for _, ref := range model.References(b) {
				to, ok := entries[ref]
				if !ok {
					continue
				}
				kind := refKind(b.Name())
				d.Edges = append(d.Edges, Edge{
					From:  blockID(f.Index(), b.Index()),
					To:    to,
					Label: edgeLabel(kind),
					Kind:  kind,
				})
			}
		}
	}

	overlayStatus(d, m, opts)
	return d
}

// blockToNode maps a block to a diagram Node.
func blockToNode(f *model.Frame, b *model.Block) *Node {
	return &Node{
		ID:     blockID(f.Index(), b.Index()),
		Label:  nodeLabel(b),
		Kind:   blockKind(b.Name()),
		Entity: b.Entity(),
		Detail: b.Attributes(),
	}
}

// blockKind converts a block name to a NodeKind.
func blockKind(name string) NodeKind {
	switch name {
	case model.RunSubprocess:
		return NodeKindSubprocess
	case model.ParallelProcedures:
		return NodeKindParallel
	case model.FormalAssessment:
		return NodeKindAssessment
	default:
		return NodeKindStep
	}
}

func refKind(name string) EdgeKind {
	switch name {
	case model.RunSubprocess:
		return EdgeCall
	case model.ParallelProcedures:
		return EdgeFork
	default:
		return EdgeFailure
	}
}

func edgeLabel(k EdgeKind) string {
	switch k {
	case EdgeCall:
		return "calls"
	case EdgeFork:
		return "forks"
	case EdgeFailure:
		return "on failure"
	default:
		return ""
	}
}

// nodeLabel creates a human-readable label for a node: the step name, then
// the first attribute line in parentheses.
func nodeLabel(b *model.Block) string {
	if detail := firstLine(b.Attributes()); detail != "" {
		return fmt.Sprintf("%s\n(%s)", b.Name(), detail)
	}
	return b.Name()
}

// overlayStatus marks the selected block and every matched block.
func overlayStatus(d *DiagramModel, m *model.Model, opts *Options) {
	status := make(map[string]string, len(opts.Matches)+1)
	for _, ref := range opts.Matches {
		if ref.Frame != nil && ref.Block != nil {
			status[blockID(ref.Frame.Index(), ref.Block.Index())] = StatusMatched
		}
	}
	if sel := opts.Selection; sel != nil {
		if b := sel.Block(); b != nil {
			if f := m.FrameOf(b); f != nil && f.Owns(b) {
				status[blockID(f.Index(), b.Index())] = StatusSelected
			}
		}
	}
	if len(status) == 0 {
		return
	}
	for _, lane := range d.Lanes {
		for _, n := range lane.Nodes {
			if s, ok := status[n.ID]; ok {
				n.Status = s
			}
		}
	}
}

func laneID(frame int) string { return fmt.Sprintf("f%d", frame) }

func entryID(frame int) string { return fmt.Sprintf("f%d_start", frame) }

func blockID(frame, block int) string { return fmt.Sprintf("f%d_b%d", frame, block) }

// titleFromModel uses the root frame's name.
func titleFromModel(m *model.Model) string {
	if root := m.Frame(0); root != nil && root.Name() != "" {
		return root.Name()
	}
	return "Diagram"
}
