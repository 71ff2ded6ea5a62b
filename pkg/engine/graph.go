package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/openfroyo/hostfacts/pkg/plugin"
)

// PluginGraph is the dependency graph between modern plugins. An edge runs
// from a producer to each plugin depending on an attribute it provides.
type PluginGraph struct {
	// Nodes holds one node per modern plugin, keyed by identifier.
	Nodes map[string]*GraphNode
	// Edges lists producer -> consumer pairs in a stable order.
	Edges []GraphEdge
	// Levels groups plugins so that each one's producers sit in earlier levels.
	Levels [][]string
	// Missing maps plugins to depended-on attributes nobody provides.
	Missing map[string][]string
}

// GraphNode is a plugin in a PluginGraph.
type GraphNode struct {
	Name      string   `json:"name"`
	Level     int      `json:"level"`
	State     string   `json:"state"`
	Producers []string `json:"producers"`
	Consumers []string `json:"consumers"`
}

// GraphEdge connects a producer to a consumer through an attribute.
type GraphEdge struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Attribute string `json:"attribute"`
}

// graphBuilder computes a PluginGraph from a ProvidesIndex.
type graphBuilder struct {
	index *ProvidesIndex

	// consumers maps plugins to the plugins depending on them
	consumers map[string][]string
	// producers maps plugins to the plugins they depend on
	producers map[string][]string
	inDegree  map[string]int
	edges     []GraphEdge
	missing   map[string][]string
}

func newGraphBuilder(index *ProvidesIndex) *graphBuilder {
	return &graphBuilder{
		index:     index,
		consumers: make(map[string][]string),
		producers: make(map[string][]string),
		inDegree:  make(map[string]int),
		edges:     make([]GraphEdge, 0),
		missing:   make(map[string][]string),
	}
}

// build links every indexed plugin to its producers, rejects cycles, and
// assigns levels.
func (b *graphBuilder) build() (*PluginGraph, error) {
	plugins := b.index.All()
	for _, p := range plugins {
		b.consumers[p.Name()] = make([]string, 0)
		b.producers[p.Name()] = make([]string, 0)
		b.inDegree[p.Name()] = 0
	}

	for _, p := range plugins {
		linked := make(map[string]bool)
		for _, attr := range p.Depends() {
			ps, ok := b.index.Providers(attr)
			if !ok {
				b.missing[p.Name()] = append(b.missing[p.Name()], attr)
				continue
			}
			for _, producer := range ps {
				if producer == p || linked[producer.Name()] {
					continue
				}
				linked[producer.Name()] = true
				b.consumers[producer.Name()] = append(b.consumers[producer.Name()], p.Name())
				b.producers[p.Name()] = append(b.producers[p.Name()], producer.Name())
				b.inDegree[p.Name()]++
				b.edges = append(b.edges, GraphEdge{From: producer.Name(), To: p.Name(), Attribute: attr})
			}
		}
	}

	if cycle := b.findCycle(plugins); cycle != nil {
		return nil, NewDependencyCycleError(cycle)
	}

	levels := b.levels()
	graph := &PluginGraph{
		Nodes:   make(map[string]*GraphNode, len(plugins)),
		Edges:   b.edges,
		Levels:  levels,
		Missing: b.missing,
	}
	for level, names := range levels {
		for _, name := range names {
			p, _ := b.index.Lookup(name)
			graph.Nodes[name] = &GraphNode{
				Name:      name,
				Level:     level,
				State:     string(p.State()),
				Producers: b.producers[name],
				Consumers: b.consumers[name],
			}
		}
	}
	return graph, nil
}

// findCycle runs a depth-first search over consumer edges and returns the
// first cycle found, closed on its starting plugin.
func (b *graphBuilder) findCycle(plugins []*plugin.Modern) []string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var visit func(name string, path []string) []string
	visit = func(name string, path []string) []string {
		visited[name] = true
		onStack[name] = true
		path = append(path, name)

		for _, next := range b.consumers[name] {
			if onStack[next] {
				return cyclePath(path, next)
			}
			if !visited[next] {
				if cycle := visit(next, path); cycle != nil {
					return cycle
				}
			}
		}
		onStack[name] = false
		return nil
	}

	for _, p := range plugins {
		if !visited[p.Name()] {
			if cycle := visit(p.Name(), nil); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// levels orders plugins with Kahn's algorithm. The graph is acyclic here.
func (b *graphBuilder) levels() [][]string {
	inDegree := make(map[string]int, len(b.inDegree))
	current := make([]string, 0)
	for name, degree := range b.inDegree {
		inDegree[name] = degree
		if degree == 0 {
			current = append(current, name)
		}
	}

	levels := make([][]string, 0)
	for len(current) > 0 {
		sort.Strings(current)
		levels = append(levels, current)

		next := make([]string, 0)
		for _, name := range current {
			for _, consumer := range b.consumers[name] {
				inDegree[consumer]--
				if inDegree[consumer] == 0 {
					next = append(next, consumer)
				}
			}
		}
		current = next
	}
	return levels
}

// ToDOT renders the graph in Graphviz format, one cluster per level.
// Unprovided attributes appear as dashed nodes.
func (g *PluginGraph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph plugins {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, names := range g.Levels {
		fmt.Fprintf(&sb, "  subgraph cluster_level_%d {\n", level)
		fmt.Fprintf(&sb, "    label=\"Level %d\";\n", level)
		sb.WriteString("    style=dashed;\n")
		for _, name := range names {
			node := g.Nodes[name]
			fmt.Fprintf(&sb, "    %q [fillcolor=%q, style=\"filled,rounded\"];\n", name, stateColor(node.State))
		}
		sb.WriteString("  }\n\n")
	}

	for _, e := range g.Edges {
		fmt.Fprintf(&sb, "  %q -> %q [label=%q];\n", e.From, e.To, e.Attribute)
	}

	consumers := make([]string, 0, len(g.Missing))
	for name := range g.Missing {
		consumers = append(consumers, name)
	}
	sort.Strings(consumers)
	for _, name := range consumers {
		for _, attr := range g.Missing[name] {
			fmt.Fprintf(&sb, "  %q [shape=ellipse, style=dashed];\n", attr)
			fmt.Fprintf(&sb, "  %q -> %q [style=dashed, color=red];\n", attr, name)
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

func stateColor(state string) string {
	switch plugin.RunState(state) {
	case plugin.StateRan:
		return "lightgreen"
	case plugin.StateFailed:
		return "lightcoral"
	default:
		return "white"
	}
}

// PluginGraph discovers plugins and returns the modern dependency graph.
// Nothing is executed. A dependency cycle is returned as an error.
func (s *System) PluginGraph(ctx context.Context) (*PluginGraph, error) {
	if err := s.LoadPlugins(ctx); err != nil {
		return nil, err
	}
	return newGraphBuilder(s.index).build()
}
