// Package engine collects host facts by running plugins into one shared tree.
//
// # Overview
//
// A System owns a single fact tree and two generations of plugins:
//
//   - Legacy plugins are addressed by identifier. They are run one at a time
//     and may pull in other plugins by name with require_plugin.
//   - Modern plugins declare the attribute paths they provide and depend on.
//     They run in dependency order, each producer before its consumers.
//
// CollectAll runs every legacy plugin, then every modern plugin:
//
//	sys, err := engine.NewSystem(cfg, engine.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := sys.CollectAll(ctx, false); err != nil {
//	    return err
//	}
//	out, err := sys.SerializeAll(true)
//
// # Failure Isolation
//
// A plugin body that returns an error or panics is marked failed and logged;
// the rest of the collection continues. Two conditions are never absorbed:
//
//   - A dependency cycle between modern plugins, or between legacy plugins
//     requiring each other by name.
//   - A modern dependency on an attribute no plugin provides.
//
// Both surface as *EngineError values that pass through every plugin frame
// unchanged and abort the collection. Context cancellation also propagates,
// leaving the interrupted plugin pending.
//
// # Memoization
//
// A plugin runs at most once per collection epoch. RequestPlugin with force
// re-runs a plugin and its modern dependencies; CollectAll with force starts
// a new epoch for all of them. Refresh re-runs only the plugins that wrote
// under a given path, as recorded by the tree's provenance index.
//
// # Built-in Plugins
//
// WithBuiltins adds plugins that have no file behind them. They are
// registered after every plugin root is searched and serve as the last
// resort of on-demand discovery, so a plugin file with the same identifier
// replaces them.
//
// # Dependency Graph
//
// PluginGraph returns the modern plugins grouped in levels, each plugin after
// its producers, without running anything. ToDOT renders it for Graphviz.
//
// # Serialization
//
// SerializeAll and SerializeSubtree render JSON with object keys in insertion
// order. A string node rendered on its own becomes an array of its lines.
package engine
