package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/openfroyo/hostfacts/pkg/plugin"
)

func TestPluginGraph_Levels(t *testing.T) {
	h := newHarness(t, []string{"root"}, func(c *fakeCatalog) {
		c.add("root", modernSet("kernel", []string{"kernel"}, []string{"platform/family", "os"}, nil, nil))
		c.add("root", modernSet("platform", []string{"platform"}, nil, nil, nil))
		c.add("root", modernSet("os", []string{"os"}, nil, nil, nil))
		c.add("root", modernSet("packages", []string{"packages"}, []string{"kernel/release", "virtualization"}, nil, nil))
		c.add("root", legacySet("hostname", "hostname", "web01", nil))
	})

	graph, err := h.sys.PluginGraph(context.Background())
	if err != nil {
		t.Fatalf("PluginGraph() error = %v", err)
	}

	wantLevels := [][]string{{"os", "platform"}, {"kernel"}, {"packages"}}
	if diff := cmp.Diff(wantLevels, graph.Levels); diff != "" {
		t.Errorf("levels mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string][]string{"packages": {"virtualization"}}, graph.Missing); diff != "" {
		t.Errorf("missing mismatch (-want +got):\n%s", diff)
	}

	kernel := graph.Nodes["kernel"]
	if kernel == nil || kernel.Level != 1 || kernel.State != string(plugin.StatePending) {
		t.Fatalf("kernel node = %+v", kernel)
	}
	if diff := cmp.Diff([]string{"platform", "os"}, kernel.Producers); diff != "" {
		t.Errorf("kernel producers mismatch (-want +got):\n%s", diff)
	}
	if _, ok := graph.Nodes["hostname"]; ok {
		t.Error("legacy plugins are not part of the graph")
	}

	dot := graph.ToDOT()
	for _, want := range []string{
		`"platform" -> "kernel" [label="platform/family"];`,
		`"kernel" -> "packages" [label="kernel/release"];`,
		`"virtualization" -> "packages" [style=dashed, color=red];`,
		"subgraph cluster_level_2",
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q:\n%s", want, dot)
		}
	}
}

func TestPluginGraph_SelfProducerIsNotAnEdge(t *testing.T) {
	h := newHarness(t, []string{"root"}, func(c *fakeCatalog) {
		c.add("root", modernSet("network", []string{"network"}, []string{"network/interfaces"}, nil, nil))
	})

	graph, err := h.sys.PluginGraph(context.Background())
	if err != nil {
		t.Fatalf("PluginGraph() error = %v", err)
	}
	if len(graph.Edges) != 0 || len(graph.Missing) != 0 {
		t.Errorf("edges = %v, missing = %v; want none", graph.Edges, graph.Missing)
	}
}

func TestPluginGraph_Cycle(t *testing.T) {
	h := newHarness(t, []string{"root"}, func(c *fakeCatalog) {
		c.add("root", modernSet("a", []string{"a"}, []string{"b"}, nil, nil))
		c.add("root", modernSet("b", []string{"b"}, []string{"a"}, nil, nil))
	})

	_, err := h.sys.PluginGraph(context.Background())
	if !IsDependencyCycle(err) {
		t.Fatalf("PluginGraph() error = %v, want dependency cycle", err)
	}
	ee, _ := AsFatal(err)
	if diff := cmp.Diff([]string{"a", "b", "a"}, ee.Cycle); diff != "" {
		t.Errorf("cycle mismatch (-want +got):\n%s", diff)
	}
}
