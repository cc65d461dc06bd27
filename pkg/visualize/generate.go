package visualize

import (
	"fmt"
	"sort"

	"github.com/emicklei/dot"
)

// DotGenerator generates Graphviz DOT diagrams.
type DotGenerator struct{}

// Generate creates a Graphviz DOT diagram from the graph.
func (d *DotGenerator) Generate(g *Graph) string {
	return BuildDotGraph(g).String()
}

// MermaidGenerator generates Mermaid flowchart diagrams.
type MermaidGenerator struct{}

// Generate creates a Mermaid flowchart from the graph using the dot library, wrapped in a markdown
// code block.
func (m *MermaidGenerator) Generate(g *Graph) string {
	mermaid := dot.MermaidFlowchart(BuildMermaidGraph(g), dot.MermaidLeftToRight)
	return fmt.Sprintf("```mermaid\n%s\n```\n", mermaid)
}

var generators = map[string]Generator{
	"dot":     &DotGenerator{},
	"mermaid": &MermaidGenerator{},
}

// NewGenerator returns the generator of a diagram format.
func NewGenerator(format string) (Generator, error) {
	gen, ok := generators[format]
	if !ok {
		return nil, fmt.Errorf("unknown diagram format %q, expected one of %v", format, Formats())
	}
	return gen, nil
}

// Formats lists the supported diagram formats.
func Formats() []string {
	ret := make([]string, 0, len(generators))
	for f := range generators {
		ret = append(ret, f)
	}
	sort.Strings(ret)
	return ret
}
