// Package visualize renders the operator graph of a dataflow as a diagram.
package visualize

import (
	"strconv"

	"github.com/emicklei/dot"

	"github.com/l7mp/dflow/internal/dag"
	"github.com/l7mp/dflow/pkg/dataflow"
)

// Role is the position of an operator in the graph.
type Role string

const (
	RoleSource   Role = "source"
	RoleOperator Role = "operator"
	RoleTerminal Role = "terminal"
	RoleDangling Role = "dangling"
)

// Graph represents the visualization graph of a dataflow.
type Graph struct {
	Name      string
	Workers   int
	Operators []OperatorNode
	Edges     []Edge
}

// OperatorNode represents a single operator in the graph.
type OperatorNode struct {
	ID   int
	Name string
	Kind string
	Role Role
}

// Edge is a channel between two operators.
type Edge struct {
	From     int
	To       int
	Exchange bool
}

// Generator renders a graph in some diagram language.
type Generator interface {
	Generate(g *Graph) string
}

// BuildGraph constructs a visualization graph from the description of a dataflow.
func BuildGraph(name string, d dataflow.Description) *Graph {
	g := &Graph{
		Name:      name,
		Workers:   d.Workers,
		Operators: make([]OperatorNode, 0, len(d.Operators)),
		Edges:     make([]Edge, 0, len(d.Edges)),
	}

	topo := dag.New()
	for _, op := range d.Operators {
		topo.AddNode(nodeID(op.ID))
	}
	for _, e := range d.Edges {
		topo.AddEdge(nodeID(e.From), nodeID(e.To))
		g.Edges = append(g.Edges, Edge{From: e.From, To: e.To, Exchange: e.Exchange})
	}

	roots, leaves := labelSet(topo.Roots()), labelSet(topo.Leaves())
	for _, op := range d.Operators {
		role := RoleOperator
		_, root := roots[nodeID(op.ID)]
		_, leaf := leaves[nodeID(op.ID)]
		switch {
		case root && leaf:
			role = RoleDangling
		case root:
			role = RoleSource
		case leaf:
			role = RoleTerminal
		}
		g.Operators = append(g.Operators, OperatorNode{ID: op.ID, Name: op.Name, Kind: op.Kind, Role: role})
	}

	return g
}

// Sources returns the operators without inputs.
func (g *Graph) Sources() []OperatorNode { return g.withRole(RoleSource, RoleDangling) }

// Terminals returns the operators whose output nobody consumes.
func (g *Graph) Terminals() []OperatorNode { return g.withRole(RoleTerminal) }

func (g *Graph) withRole(roles ...Role) []OperatorNode {
	var ret []OperatorNode
	for _, op := range g.Operators {
		for _, r := range roles {
			if op.Role == r {
				ret = append(ret, op)
			}
		}
	}
	return ret
}

func nodeID(id int) string { return "op" + strconv.Itoa(id) }

func labelSet(labels []string) map[string]struct{} {
	ret := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		ret[l] = struct{}{}
	}
	return ret
}

// nodeStyle is the look of an operator in both diagram languages.
type nodeStyle struct {
	shape        string
	mermaidShape any
	style, fill  string
	outline      bool
}

func styleOf(op OperatorNode) nodeStyle {
	switch {
	case op.Role == RoleSource || op.Role == RoleDangling:
		return nodeStyle{shape: "ellipse", mermaidShape: dot.MermaidShapeStadium, style: "filled", fill: "lightgreen"}
	case op.Role == RoleTerminal:
		return nodeStyle{shape: "ellipse", mermaidShape: dot.MermaidShapeStadium, style: "filled", fill: "lightyellow"}
	case op.Kind == "arrange":
		// Arrangements hold state: show them like stored views.
		return nodeStyle{shape: "box", mermaidShape: dot.MermaidShapeCylinder, style: "filled,rounded", fill: "lightcyan"}
	default:
		return nodeStyle{shape: "box", mermaidShape: dot.MermaidShapeRound, style: "filled,rounded", fill: "lightblue", outline: true}
	}
}

// BuildDotGraph creates a Graphviz graph from the visualization graph.
func BuildDotGraph(g *Graph) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "LR") // Left to right layout.
	graph.Attr("newrank", "true")
	graph.Attr("label", g.Name+" ("+strconv.Itoa(g.Workers)+" workers)")
	graph.Attr("labelloc", "t")
	graph.Attr("fontsize", "16")

	nodes := make(map[int]dot.Node, len(g.Operators))
	for _, op := range g.Operators {
		st := styleOf(op)
		node := graph.Node(nodeID(op.ID)).
			Attr("label", op.Name).
			Attr("fontname", "helvetica").
			Attr("shape", st.shape).
			Attr("style", st.style).
			Attr("fillcolor", st.fill)
		if st.outline {
			node.Attr("color", "darkblue").Attr("penwidth", "2")
		}
		nodes[op.ID] = node
	}

	for _, e := range g.Edges {
		from, fromExists := nodes[e.From]
		to, toExists := nodes[e.To]
		if !fromExists || !toExists {
			continue
		}
		edge := graph.Edge(from, to)
		if e.Exchange {
			edge.Attr("label", "Exchange").
				Attr("style", "dashed").
				Attr("color", "blue").
				Attr("fontname", "helvetica").
				Attr("fontsize", "10")
		}
	}

	return graph
}

// BuildMermaidGraph creates a graph for the Mermaid renderer of the dot library. Mermaid takes its
// own node shapes and CSS-like styles, so Graphviz attributes are left out.
func BuildMermaidGraph(g *Graph) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)

	nodes := make(map[int]dot.Node, len(g.Operators))
	for _, op := range g.Operators {
		st := styleOf(op)
		style := "fill:" + st.fill
		if st.outline {
			style += ",stroke:darkblue,stroke-width:2px"
		}
		nodes[op.ID] = graph.Node(nodeID(op.ID)).
			Attr("label", op.Name).
			Attr("shape", st.mermaidShape).
			Attr("style", style)
	}

	for _, e := range g.Edges {
		from, fromExists := nodes[e.From]
		to, toExists := nodes[e.To]
		if !fromExists || !toExists {
			continue
		}
		edge := graph.Edge(from, to)
		if e.Exchange {
			edge.Attr("label", "Exchange")
		}
	}

	return graph
}
