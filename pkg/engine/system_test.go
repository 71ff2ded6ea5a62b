package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/openfroyo/hostfacts/pkg/catalog"
	"github.com/openfroyo/hostfacts/pkg/config"
	"github.com/openfroyo/hostfacts/pkg/plugin"
)

// fakeCatalog serves plugins from memory, keyed by root and relative path.
type fakeCatalog struct {
	files map[string]map[string]plugin.Plugin
	loads map[string]int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		files: make(map[string]map[string]plugin.Plugin),
		loads: make(map[string]int),
	}
}

func (c *fakeCatalog) add(root string, p plugin.Plugin) {
	if c.files[root] == nil {
		c.files[root] = make(map[string]plugin.Plugin)
	}
	c.files[root][plugin.Denameify(p.Name(), ".star")] = p
}

func (c *fakeCatalog) Extension() string { return ".star" }

func (c *fakeCatalog) Discover(ctx context.Context, root string) ([]plugin.Plugin, error) {
	files, ok := c.files[root]
	if !ok {
		return nil, fmt.Errorf("plugin root %s does not exist", root)
	}
	rels := make([]string, 0, len(files))
	for rel := range files {
		rels = append(rels, rel)
	}
	sort.Strings(rels)

	out := make([]plugin.Plugin, 0, len(rels))
	for _, rel := range rels {
		out = append(out, files[rel])
	}
	return out, nil
}

func (c *fakeCatalog) Exists(root, rel string) bool {
	_, ok := c.files[root][rel]
	return ok
}

func (c *fakeCatalog) Load(ctx context.Context, root, rel string) (plugin.Plugin, error) {
	c.loads[filepath.Join(root, rel)]++
	p, ok := c.files[root][rel]
	if !ok {
		return nil, fmt.Errorf("no plugin at %s", rel)
	}
	return p, nil
}

type fakeHints struct {
	data      map[string]map[string]any
	refreshes int
}

func (h *fakeHints) Refresh() error {
	h.refreshes++
	return nil
}

func (h *fakeHints) Hint(name string) (map[string]any, bool) {
	v, ok := h.data[name]
	return v, ok
}

type harness struct {
	sys     *System
	catalog *fakeCatalog
	hints   *fakeHints
}

func newHarness(t *testing.T, roots []string, build func(c *fakeCatalog), mutate ...func(*config.Config)) *harness {
	t.Helper()

	cfg := config.Default()
	cfg.PluginPath = roots
	cfg.HintPath = []string{}
	for _, m := range mutate {
		m(cfg)
	}

	cat := newFakeCatalog()
	for _, root := range roots {
		cat.files[root] = make(map[string]plugin.Plugin)
	}
	build(cat)

	hints := &fakeHints{data: make(map[string]map[string]any)}
	sys, err := NewSystem(cfg,
		WithCatalog(cat),
		WithHints(hints),
		WithLogger(zerolog.New(nil).Level(zerolog.Disabled)),
	)
	if err != nil {
		t.Fatalf("NewSystem() error = %v", err)
	}
	return &harness{sys: sys, catalog: cat, hints: hints}
}

func legacySet(name, path string, value any, runs *int) *plugin.Legacy {
	return plugin.NewLegacy(name, name+".star", func(ctx context.Context, env plugin.LegacyEnv) error {
		if runs != nil {
			*runs++
		}
		return env.Set(path, value)
	})
}

func modernSet(name string, provides, depends []string, runs *int, body func(env plugin.Env) error) *plugin.Modern {
	return plugin.NewModern(name, name+".star", provides, depends, func(ctx context.Context, env plugin.Env) error {
		if runs != nil {
			*runs++
		}
		if body != nil {
			return body(env)
		}
		return nil
	})
}

func TestNewSystem_RequiresConfig(t *testing.T) {
	if _, err := NewSystem(nil); err == nil {
		t.Fatal("NewSystem(nil) should fail")
	}

	cfg := config.Default()
	cfg.PluginPath = nil
	if _, err := NewSystem(cfg); err == nil {
		t.Fatal("NewSystem() should reject an empty plugin path")
	}
}

func TestCollectAll_Idempotent(t *testing.T) {
	var legacyRuns, modernRuns int
	h := newHarness(t, []string{"root"}, func(c *fakeCatalog) {
		c.add("root", legacySet("kernel", "kernel/name", "Linux", &legacyRuns))
		c.add("root", modernSet("uptime", []string{"uptime"}, nil, &modernRuns, func(env plugin.Env) error {
			return env.Set("uptime/seconds", 42)
		}))
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := h.sys.CollectAll(ctx, false); err != nil {
			t.Fatalf("CollectAll() #%d error = %v", i, err)
		}
	}
	if legacyRuns != 1 || modernRuns != 1 {
		t.Errorf("runs = (%d legacy, %d modern), want (1, 1)", legacyRuns, modernRuns)
	}

	if err := h.sys.CollectAll(ctx, true); err != nil {
		t.Fatalf("CollectAll(force) error = %v", err)
	}
	if legacyRuns != 2 || modernRuns != 2 {
		t.Errorf("runs after force = (%d legacy, %d modern), want (2, 2)", legacyRuns, modernRuns)
	}

	if v, ok := h.sys.Get("uptime/seconds"); !ok || v != int64(42) {
		t.Errorf("Get(uptime/seconds) = %v, %v", v, ok)
	}
}

func TestCollectAll_DependencyOrder(t *testing.T) {
	var order []string
	record := func(name string) func(env plugin.Env) error {
		return func(env plugin.Env) error {
			order = append(order, name)
			return env.Set(name, name)
		}
	}

	h := newHarness(t, []string{"root"}, func(c *fakeCatalog) {
		c.add("root", modernSet("a", []string{"a"}, []string{"b", "c"}, nil, record("a")))
		c.add("root", modernSet("b", []string{"b"}, []string{"c"}, nil, record("b")))
		c.add("root", modernSet("c", []string{"c"}, nil, nil, record("c")))
	})

	if err := h.sys.CollectAll(context.Background(), false); err != nil {
		t.Fatalf("CollectAll() error = %v", err)
	}
	if diff := cmp.Diff([]string{"c", "b", "a"}, order); diff != "" {
		t.Errorf("execution order mismatch (-want +got):\n%s", diff)
	}
}

func TestCollectAll_DependencyCycle(t *testing.T) {
	var runs int
	h := newHarness(t, []string{"root"}, func(c *fakeCatalog) {
		c.add("root", modernSet("a", []string{"a"}, []string{"b"}, &runs, nil))
		c.add("root", modernSet("b", []string{"b"}, []string{"a"}, &runs, nil))
	})

	err := h.sys.CollectAll(context.Background(), false)
	if !IsDependencyCycle(err) {
		t.Fatalf("CollectAll() error = %v, want dependency cycle", err)
	}
	if !errors.Is(err, ErrDependencyCycle) {
		t.Error("errors.Is(err, ErrDependencyCycle) = false")
	}

	var ee *EngineError
	if !errors.As(err, &ee) {
		t.Fatalf("error is %T, want *EngineError", err)
	}
	if diff := cmp.Diff([]string{"a", "b", "a"}, ee.Cycle); diff != "" {
		t.Errorf("cycle mismatch (-want +got):\n%s", diff)
	}
	if runs != 0 {
		t.Errorf("bodies ran %d times, want 0", runs)
	}
}

func TestCollectAll_MissingAttribute(t *testing.T) {
	h := newHarness(t, []string{"root"}, func(c *fakeCatalog) {
		c.add("root", modernSet("network", []string{"network"}, []string{"nonexistent/attr"}, nil, nil))
	})

	err := h.sys.CollectAll(context.Background(), false)
	if !IsMissingAttribute(err) {
		t.Fatalf("CollectAll() error = %v, want missing attribute", err)
	}
}

func TestCollectAll_SelfProducerIsIgnored(t *testing.T) {
	var runs int
	h := newHarness(t, []string{"root"}, func(c *fakeCatalog) {
		c.add("root", modernSet("net", []string{"network"}, []string{"network/interfaces"}, &runs, nil))
	})

	if err := h.sys.CollectAll(context.Background(), false); err != nil {
		t.Fatalf("CollectAll() error = %v", err)
	}
	if runs != 1 {
		t.Errorf("runs = %d, want 1", runs)
	}
}

func TestCollectAll_SoftFailureIsolation(t *testing.T) {
	var okRuns int
	h := newHarness(t, []string{"root"}, func(c *fakeCatalog) {
		c.add("root", plugin.NewLegacy("bad", "bad.star", func(ctx context.Context, env plugin.LegacyEnv) error {
			return errors.New("command not found: dmidecode")
		}))
		c.add("root", plugin.NewLegacy("boom", "boom.star", func(ctx context.Context, env plugin.LegacyEnv) error {
			panic("unexpected nil")
		}))
		c.add("root", legacySet("good", "good", "yes", &okRuns))
		c.add("root", modernSet("shaky", []string{"shaky"}, nil, nil, func(env plugin.Env) error {
			return errors.New("parse failure")
		}))
	})

	if err := h.sys.CollectAll(context.Background(), false); err != nil {
		t.Fatalf("CollectAll() error = %v, want nil", err)
	}
	if okRuns != 1 {
		t.Errorf("good plugin ran %d times, want 1", okRuns)
	}

	want := map[string]plugin.RunState{
		"bad":   plugin.StateFailed,
		"boom":  plugin.StateFailed,
		"good":  plugin.StateRan,
		"shaky": plugin.StateFailed,
	}
	for _, p := range h.sys.Plugins() {
		if p.State() != want[p.Name()] {
			t.Errorf("%s state = %s, want %s", p.Name(), p.State(), want[p.Name()])
		}
	}

	// A failed plugin is not retried within the epoch.
	ran, err := h.sys.RequestPlugin(context.Background(), "bad", false)
	if err != nil || ran {
		t.Errorf("RequestPlugin(bad) = %v, %v; want false, nil", ran, err)
	}
}

func TestCollectAll_DuplicateRegistration(t *testing.T) {
	h := newHarness(t, []string{"first", "second"}, func(c *fakeCatalog) {
		c.add("first", legacySet("os", "os", "linux", nil))
		c.add("second", legacySet("os", "os", "darwin", nil))
	})

	if err := h.sys.CollectAll(context.Background(), false); err != nil {
		t.Fatalf("CollectAll() error = %v", err)
	}
	if v, _ := h.sys.Get("os"); v != "linux" {
		t.Errorf("os = %v, want linux", v)
	}
	if n := len(h.sys.Plugins()); n != 1 {
		t.Errorf("len(Plugins()) = %d, want 1", n)
	}
}

func TestCollectAll_MissingRootIsNotFatal(t *testing.T) {
	h := newHarness(t, []string{"root"}, func(c *fakeCatalog) {
		c.add("root", legacySet("os", "os", "linux", nil))
	}, func(cfg *config.Config) {
		cfg.PluginPath = []string{"nowhere", "root"}
	})

	if err := h.sys.CollectAll(context.Background(), false); err != nil {
		t.Fatalf("CollectAll() error = %v", err)
	}
	if _, ok := h.sys.Get("os"); !ok {
		t.Error("os was not collected")
	}
}

func TestCollectAll_Interrupt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var afterRuns int
	h := newHarness(t, []string{"root"}, func(c *fakeCatalog) {
		c.add("root", plugin.NewLegacy("a_hang", "a_hang.star", func(ctx context.Context, env plugin.LegacyEnv) error {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		}))
		c.add("root", legacySet("b_after", "after", true, &afterRuns))
	})

	err := h.sys.CollectAll(ctx, false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("CollectAll() error = %v, want context.Canceled", err)
	}
	if afterRuns != 0 {
		t.Errorf("collection continued after interrupt")
	}

	p, ok := h.sys.legacy.Lookup("a_hang")
	if !ok {
		t.Fatal("a_hang not registered")
	}
	if p.State() != plugin.StatePending {
		t.Errorf("interrupted plugin state = %s, want pending", p.State())
	}
}

func TestRequestPlugin_OnDemandDiscovery(t *testing.T) {
	h := newHarness(t, []string{"first", "second"}, func(c *fakeCatalog) {
		c.add("first", legacySet("linux::cpu", "cpu/model", "x86", nil))
		c.add("second", legacySet("linux::cpu", "cpu/model", "arm", nil))
	})
	ctx := context.Background()

	ran, err := h.sys.RequestPlugin(ctx, "linux::cpu", false)
	if err != nil || !ran {
		t.Fatalf("RequestPlugin() = %v, %v; want true, nil", ran, err)
	}
	if v, _ := h.sys.Get("cpu/model"); v != "x86" {
		t.Errorf("cpu/model = %v, want x86", v)
	}

	if n := h.catalog.loads[filepath.Join("second", "linux", "cpu.star")]; n != 0 {
		t.Errorf("second root loaded %d times, want 0", n)
	}

	ran, err = h.sys.RequestPlugin(ctx, "linux::missing", false)
	if err != nil || ran {
		t.Errorf("RequestPlugin(missing) = %v, %v; want false, nil", ran, err)
	}
}

func TestRequestPlugin_Memoized(t *testing.T) {
	var runs int
	h := newHarness(t, []string{"root"}, func(c *fakeCatalog) {
		c.add("root", legacySet("hostname", "hostname", "web01", &runs))
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := h.sys.RequestPlugin(ctx, "hostname", false); err != nil {
			t.Fatalf("RequestPlugin() error = %v", err)
		}
	}
	if runs != 1 {
		t.Errorf("runs = %d, want 1", runs)
	}

	if _, err := h.sys.RequestPlugin(ctx, "hostname", true); err != nil {
		t.Fatalf("RequestPlugin(force) error = %v", err)
	}
	if runs != 2 {
		t.Errorf("runs after force = %d, want 2", runs)
	}
}

func TestRequestPlugin_Disabled(t *testing.T) {
	var runs int
	h := newHarness(t, []string{"root"}, func(c *fakeCatalog) {
		c.add("root", legacySet("passwd", "etc/passwd", "x", &runs))
		c.add("root", modernSet("slow", []string{"slow"}, nil, &runs, nil))
	}, func(cfg *config.Config) {
		cfg.DisabledPlugins = []string{"passwd", "slow"}
	})
	ctx := context.Background()

	if err := h.sys.CollectAll(ctx, false); err != nil {
		t.Fatalf("CollectAll() error = %v", err)
	}
	for _, name := range []string{"passwd", "slow"} {
		ran, err := h.sys.RequestPlugin(ctx, name, true)
		if err != nil || ran {
			t.Errorf("RequestPlugin(%s) = %v, %v; want false, nil", name, ran, err)
		}
	}
	if runs != 0 {
		t.Errorf("disabled plugins ran %d times", runs)
	}
}

func TestRequestPlugin_LegacyRequiresModern(t *testing.T) {
	var order []string
	h := newHarness(t, []string{"root"}, func(c *fakeCatalog) {
		c.add("root", modernSet("kernel", []string{"kernel"}, nil, nil, func(env plugin.Env) error {
			order = append(order, "kernel")
			return env.Set("kernel/name", "Linux")
		}))
		c.add("root", modernSet("platform", []string{"platform"}, []string{"kernel/name"}, nil, func(env plugin.Env) error {
			order = append(order, "platform")
			name, _ := env.Get("kernel/name")
			return env.Set("platform", fmt.Sprintf("%v-generic", name))
		}))
		c.add("root", plugin.NewLegacy("report", "report.star", func(ctx context.Context, env plugin.LegacyEnv) error {
			if _, err := env.RequirePlugin(ctx, "platform"); err != nil {
				return err
			}
			order = append(order, "report")
			v, _ := env.Get("platform")
			return env.Set("report", v)
		}))
	})

	ctx := context.Background()
	if err := h.sys.LoadPlugins(ctx); err != nil {
		t.Fatalf("LoadPlugins() error = %v", err)
	}

	ran, err := h.sys.RequestPlugin(ctx, "report", false)
	if err != nil || !ran {
		t.Fatalf("RequestPlugin(report) = %v, %v", ran, err)
	}
	if diff := cmp.Diff([]string{"kernel", "platform", "report"}, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if v, _ := h.sys.Get("report"); v != "Linux-generic" {
		t.Errorf("report = %v", v)
	}
}

func TestRequestPlugin_FatalErrorCrossesLegacyFrame(t *testing.T) {
	h := newHarness(t, []string{"root"}, func(c *fakeCatalog) {
		c.add("root", modernSet("broken", []string{"broken"}, []string{"absent"}, nil, nil))
		c.add("root", plugin.NewLegacy("caller", "caller.star", func(ctx context.Context, env plugin.LegacyEnv) error {
			_, err := env.RequirePlugin(ctx, "broken")
			return fmt.Errorf("require failed: %w", err)
		}))
	})

	_, err := h.sys.RequestPlugin(context.Background(), "caller", false)
	if !IsMissingAttribute(err) {
		t.Fatalf("RequestPlugin() error = %v, want missing attribute", err)
	}
	if _, ok := err.(*EngineError); !ok {
		t.Errorf("error is %T, want the unwrapped *EngineError", err)
	}
}

func TestRequestPlugin_LegacyNameCycle(t *testing.T) {
	requires := func(name, other string) *plugin.Legacy {
		return plugin.NewLegacy(name, name+".star", func(ctx context.Context, env plugin.LegacyEnv) error {
			_, err := env.RequirePlugin(ctx, other)
			return err
		})
	}
	h := newHarness(t, []string{"root"}, func(c *fakeCatalog) {
		c.add("root", requires("a", "b"))
		c.add("root", requires("b", "a"))
	})

	_, err := h.sys.RequestPlugin(context.Background(), "a", false)
	if !IsDependencyCycle(err) {
		t.Fatalf("RequestPlugin() error = %v, want dependency cycle", err)
	}
}

func TestCollectAll_LuaNameCycleCaughtByPcall(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"a.lua": `pcall(require_plugin, "b")
set("a", 1)`,
		"b.lua": `require_plugin("a")`,
	}
	for name, src := range files {
		if err := os.WriteFile(filepath.Join(root, name), []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.Default()
	cfg.PluginPath = []string{root}
	cfg.PluginLanguage = config.LanguageLua
	cfg.HintPath = []string{}
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	sys, err := NewSystem(cfg,
		WithCatalog(catalog.NewLua(logger)),
		WithHints(&fakeHints{data: make(map[string]map[string]any)}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("NewSystem() error = %v", err)
	}

	err = sys.CollectAll(context.Background(), false)
	if !IsDependencyCycle(err) {
		t.Fatalf("CollectAll() error = %v, want dependency cycle", err)
	}
}

func TestRefresh_Scoped(t *testing.T) {
	var netRuns, cpuRuns int
	h := newHarness(t, []string{"root"}, func(c *fakeCatalog) {
		c.add("root", legacySet("network", "network/interfaces/eth0", "up", &netRuns))
		c.add("root", legacySet("cpu", "cpu/total", 8, &cpuRuns))
	})
	ctx := context.Background()

	if err := h.sys.CollectAll(ctx, false); err != nil {
		t.Fatalf("CollectAll() error = %v", err)
	}
	refreshesBefore := h.hints.refreshes

	if err := h.sys.Refresh(ctx, "network/interfaces"); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if netRuns != 2 {
		t.Errorf("network runs = %d, want 2", netRuns)
	}
	if cpuRuns != 1 {
		t.Errorf("cpu runs = %d, want 1", cpuRuns)
	}
	if h.hints.refreshes != refreshesBefore+1 {
		t.Errorf("hints refreshed %d times, want 1", h.hints.refreshes-refreshesBefore)
	}

	if err := h.sys.Refresh(ctx, ""); err != nil {
		t.Fatalf("Refresh(root) error = %v", err)
	}
	if netRuns != 3 || cpuRuns != 2 {
		t.Errorf("runs after root refresh = (%d, %d), want (3, 2)", netRuns, cpuRuns)
	}
}

func TestRefresh_HintsChangeResult(t *testing.T) {
	h := newHarness(t, []string{"root"}, func(c *fakeCatalog) {
		c.add("root", plugin.NewLegacy("cloud", "cloud.star", func(ctx context.Context, env plugin.LegacyEnv) error {
			if hint, ok := env.Hint("ec2"); ok {
				return env.Set("cloud/provider", hint["provider"])
			}
			return env.Set("cloud/provider", "none")
		}))
	})
	ctx := context.Background()

	if err := h.sys.CollectAll(ctx, false); err != nil {
		t.Fatalf("CollectAll() error = %v", err)
	}
	if v, _ := h.sys.Get("cloud/provider"); v != "none" {
		t.Fatalf("cloud/provider = %v, want none", v)
	}

	h.hints.data["ec2"] = map[string]any{"provider": "aws"}
	if err := h.sys.Refresh(ctx, "cloud"); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if v, _ := h.sys.Get("cloud/provider"); v != "aws" {
		t.Errorf("cloud/provider = %v, want aws", v)
	}
}

func TestSerializeSubtree(t *testing.T) {
	h := newHarness(t, []string{"root"}, func(c *fakeCatalog) {
		c.add("root", plugin.NewLegacy("os", "os.star", func(ctx context.Context, env plugin.LegacyEnv) error {
			for _, kv := range []struct {
				path  string
				value any
			}{
				{"os", "linux"},
				{"motd", "welcome\nto web01\n"},
				{"virtual", false},
				{"cpu/total", 4},
				{"cpu/mhz", 2400.5},
			} {
				if err := env.Set(kv.path, kv.value); err != nil {
					return err
				}
			}
			return nil
		}))
	})
	if err := h.sys.CollectAll(context.Background(), false); err != nil {
		t.Fatalf("CollectAll() error = %v", err)
	}

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr func(error) bool
	}{
		{name: "string as lines", path: "os", want: `["linux"]`},
		{name: "multiline string", path: "motd", want: `["welcome\n","to web01\n"]`},
		{name: "integer", path: "cpu/total", want: `4`},
		{name: "float", path: "cpu/mhz", want: `2400.5`},
		{name: "mapping", path: "cpu", want: `{"total":4,"mhz":2400.5}`},
		{name: "missing path", path: "nonexistent/path", wantErr: IsInvalidArgument},
		{name: "bool", path: "virtual", wantErr: IsUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.sys.SerializeSubtree(tt.path, false)
			if tt.wantErr != nil {
				if !tt.wantErr(err) {
					t.Fatalf("SerializeSubtree() error = %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SerializeSubtree() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, string(got)); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSerializeSubtree_MissingPathMessage(t *testing.T) {
	h := newHarness(t, []string{"root"}, func(c *fakeCatalog) {})

	_, err := h.sys.SerializeSubtree("/nonexistent/path", true)
	if err == nil {
		t.Fatal("expected error")
	}
	want := "cannot find an attribute named nonexistent/path"
	var ee *EngineError
	if !errors.As(err, &ee) || ee.Message != want {
		t.Errorf("error = %v, want message %q", err, want)
	}
}

func TestSerializeAll_PreservesInsertionOrder(t *testing.T) {
	h := newHarness(t, []string{"root"}, func(c *fakeCatalog) {
		c.add("root", plugin.NewLegacy("facts", "facts.star", func(ctx context.Context, env plugin.LegacyEnv) error {
			for _, p := range []string{"zeta", "alpha", "mid"} {
				if err := env.Set(p, p); err != nil {
					return err
				}
			}
			return nil
		}))
	})
	if err := h.sys.CollectAll(context.Background(), false); err != nil {
		t.Fatalf("CollectAll() error = %v", err)
	}

	for _, indent := range []bool{false, true} {
		out, err := h.sys.SerializeAll(indent)
		if err != nil {
			t.Fatalf("SerializeAll(%v) error = %v", indent, err)
		}
		if !gjson.ValidBytes(out) {
			t.Fatalf("SerializeAll(%v) produced invalid JSON: %s", indent, out)
		}

		var keys []string
		gjson.ParseBytes(out).ForEach(func(key, _ gjson.Result) bool {
			keys = append(keys, key.String())
			return true
		})
		if diff := cmp.Diff([]string{"zeta", "alpha", "mid"}, keys); diff != "" {
			t.Errorf("SerializeAll(%v) key order mismatch (-want +got):\n%s", indent, diff)
		}
	}
}

func TestSerialize_KeepsHTMLCharacters(t *testing.T) {
	h := newHarness(t, []string{"root"}, func(c *fakeCatalog) {
		c.add("root", legacySet("route", "network/default_gateway", "<none> & more", nil))
	})
	if err := h.sys.CollectAll(context.Background(), false); err != nil {
		t.Fatalf("CollectAll() error = %v", err)
	}

	for _, indent := range []bool{false, true} {
		all, err := h.sys.SerializeAll(indent)
		if err != nil {
			t.Fatalf("SerializeAll(%v) error = %v", indent, err)
		}
		sub, err := h.sys.SerializeSubtree("network", indent)
		if err != nil {
			t.Fatalf("SerializeSubtree(%v) error = %v", indent, err)
		}
		for _, out := range [][]byte{all, sub} {
			if !bytes.Contains(out, []byte(`"<none> & more"`)) {
				t.Errorf("indent=%v: expected raw HTML characters, got %s", indent, out)
			}
		}
	}
}

func TestContributors(t *testing.T) {
	h := newHarness(t, []string{"root"}, func(c *fakeCatalog) {
		c.add("root", legacySet("eth", "network/interfaces/eth0", "up", nil))
		c.add("root", legacySet("route", "network/default_gateway", "10.0.0.1", nil))
	})
	if err := h.sys.CollectAll(context.Background(), false); err != nil {
		t.Fatalf("CollectAll() error = %v", err)
	}

	got := h.sys.Contributors("network")
	sort.Strings(got)
	if diff := cmp.Diff([]string{"eth", "route"}, got); diff != "" {
		t.Errorf("Contributors(network) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"eth"}, h.sys.Contributors("network/interfaces/eth0")); diff != "" {
		t.Errorf("Contributors(eth0) mismatch (-want +got):\n%s", diff)
	}
}

func newBuiltinSystem(t *testing.T, cat *fakeCatalog, builtins ...plugin.Plugin) *System {
	t.Helper()
	cfg := config.Default()
	cfg.PluginPath = []string{"root"}
	cfg.HintPath = []string{}
	sys, err := NewSystem(cfg,
		WithCatalog(cat),
		WithHints(&fakeHints{data: make(map[string]map[string]any)}),
		WithBuiltins(builtins...),
		WithLogger(zerolog.New(nil).Level(zerolog.Disabled)),
	)
	if err != nil {
		t.Fatalf("NewSystem() error = %v", err)
	}
	return sys
}

func TestCollectAll_FileOverridesBuiltin(t *testing.T) {
	var builtinRuns int
	cat := newFakeCatalog()
	cat.files["root"] = make(map[string]plugin.Plugin)
	cat.add("root", legacySet("hostname", "hostname", "from-file", nil))

	sys := newBuiltinSystem(t, cat,
		legacySet("hostname", "hostname", "from-builtin", &builtinRuns),
		modernSet("uptime", []string{"uptime"}, nil, nil, func(env plugin.Env) error {
			return env.Set("uptime/seconds", 7)
		}),
	)
	if err := sys.CollectAll(context.Background(), false); err != nil {
		t.Fatalf("CollectAll() error = %v", err)
	}

	if v, _ := sys.Get("hostname"); v != "from-file" {
		t.Errorf("hostname = %v, want from-file", v)
	}
	if builtinRuns != 0 {
		t.Errorf("overridden builtin ran %d times", builtinRuns)
	}
	if v, ok := sys.Get("uptime/seconds"); !ok || v != int64(7) {
		t.Errorf("Get(uptime/seconds) = %v, %v", v, ok)
	}
}

func TestRequestPlugin_BuiltinFallback(t *testing.T) {
	cat := newFakeCatalog()
	cat.files["root"] = make(map[string]plugin.Plugin)
	sys := newBuiltinSystem(t, cat, legacySet("linux::cpu", "cpu/model", "builtin", nil))

	ran, err := sys.RequestPlugin(context.Background(), "linux::cpu", false)
	if err != nil || !ran {
		t.Fatalf("RequestPlugin() = %v, %v; want true, nil", ran, err)
	}
	if v, _ := sys.Get("cpu/model"); v != "builtin" {
		t.Errorf("cpu/model = %v, want builtin", v)
	}
	if n := cat.loads[filepath.Join("root", "linux", "cpu.star")]; n != 0 {
		t.Errorf("catalog loaded %d times for a missing file", n)
	}
}
