package diagram

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// ImageFormat selects the graphviz output.
type ImageFormat string

const (
	ImagePNG ImageFormat = "png"
	ImageSVG ImageFormat = "svg"
	ImageDOT ImageFormat = "dot"
)

func (f ImageFormat) graphviz() (graphviz.Format, error) {
	switch strings.ToLower(string(f)) {
	case "", "png":
		return graphviz.PNG, nil
	case "svg":
		return graphviz.SVG, nil
	case "dot":
		return graphviz.XDOT, nil
	default:
		return "", fmt.Errorf("diagram: unsupported image format %q", f)
	}
}

// RenderImage renders a DiagramModel with graphviz. Each lane is a cluster
// laid out top to bottom; references are dashed edges between clusters.
func RenderImage(ctx context.Context, model *DiagramModel, format ImageFormat) ([]byte, error) {
	gvFormat, err := format.graphviz()
	if err != nil {
		return nil, err
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.TBRank)
	graph.SetCompound(true)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	gvNodes := make(map[string]*cgraph.Node)
	for _, lane := range model.Lanes {
		sub, subErr := graph.CreateSubGraphByName("cluster_" + lane.ID)
		if subErr != nil {
			return nil, fmt.Errorf("diagram: create lane %s: %w", lane.ID, subErr)
		}
		sub.SetLabel(lane.Label)
		sub.SetStyle(cgraph.RoundedGraphStyle)

		for _, node := range lane.Nodes {
			gvNode, nErr := sub.CreateNodeByName(node.ID)
			if nErr != nil {
				return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
			}
			gvNode.SetLabel(strings.ReplaceAll(node.Label, "\n", `\n`))
			applyNodeStyle(gvNode, node)
			gvNodes[node.ID] = gvNode
		}
		for _, edge := range lane.Edges {
			fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
			if fromGV != nil && toGV != nil {
				if _, eErr := graph.CreateEdgeByName("", fromGV, toGV); eErr != nil {
					return nil, fmt.Errorf("diagram: create edge: %w", eErr)
				}
			}
		}
	}

	// Cross-lane references.
	for _, edge := range model.Edges {
		fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
		if fromGV == nil || toGV == nil {
			continue
		}
		e, eErr := graph.CreateEdgeByName("", fromGV, toGV)
		if eErr != nil {
			return nil, fmt.Errorf("diagram: create edge: %w", eErr)
		}
		e.SetStyle(cgraph.DashedEdgeStyle)
		if edge.Label != "" {
			e.SetLabel(edge.Label)
		}
		if edge.Kind == EdgeFailure {
			e.SetColor("#8b1a1a")
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, gvFormat, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", gvFormat, err)
	}

	return buf.Bytes(), nil
}

// applyNodeStyle sets graphviz attributes based on node kind and status.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	// Shape by kind.
	switch node.Kind {
	case NodeKindStep:
		gvNode.SetShape(cgraph.BoxShape)
	case NodeKindAssessment:
		gvNode.SetShape(cgraph.DiamondShape)
	case NodeKindSubprocess:
		gvNode.SetShape(cgraph.ParallelogramShape)
	case NodeKindParallel:
		gvNode.SetShape(cgraph.HexagonShape)
	case NodeKindStart:
		gvNode.SetShape(cgraph.EllipseShape)
	}

	// Color by status.
	if node.Status != "" {
		applyStatusColor(gvNode, node.Status)
	}
}

// applyStatusColor sets fill color and style based on status.
func applyStatusColor(gvNode *cgraph.Node, status string) {
	gvNode.SetStyle(cgraph.FilledNodeStyle)
	switch status {
	case StatusSelected:
		gvNode.SetFillColor("#1a5276")
		gvNode.SetFontColor("white")
	case StatusMatched:
		gvNode.SetFillColor("#b7791a")
		gvNode.SetFontColor("white")
	}
}
