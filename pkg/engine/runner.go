package engine

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/openfroyo/hostfacts/pkg/plugin"
)

// ModernRunner executes modern plugins in dependency order.
type ModernRunner struct {
	index    *ProvidesIndex
	exec     executor
	disabled map[string]bool
	logger   zerolog.Logger
}

type visit int

const (
	visitPending visit = iota + 1
	visitDone
)

// session tracks one top-level resolution. A plugin is pending from the
// moment its dependencies start resolving until its body has run.
type session struct {
	force  bool
	visits map[*plugin.Modern]visit
	stack  []string
}

func newSession(force bool) *session {
	return &session{
		force:  force,
		visits: make(map[*plugin.Modern]visit),
		stack:  make([]string, 0),
	}
}

// newModernRunner creates a runner over index.
func newModernRunner(index *ProvidesIndex, exec executor, disabled map[string]bool, logger zerolog.Logger) *ModernRunner {
	return &ModernRunner{
		index:    index,
		exec:     exec,
		disabled: disabled,
		logger:   logger,
	}
}

// RunPlugin runs p after everything it depends on. With force the plugin and
// its dependencies execute again, each at most once for this call.
func (r *ModernRunner) RunPlugin(ctx context.Context, p *plugin.Modern, force bool) error {
	return r.run(ctx, newSession(force), p)
}

// RunAll runs every indexed plugin in one session. A dependency cycle or a
// missing attribute aborts the whole batch.
func (r *ModernRunner) RunAll(ctx context.Context, force bool) error {
	s := newSession(force)
	for _, p := range r.index.All() {
		if err := r.run(ctx, s, p); err != nil {
			if IsFatal(err) {
				r.logger.Error().Err(err).Msg("Encountered error while running plugins")
			}
			return err
		}
	}
	return nil
}

func (r *ModernRunner) run(ctx context.Context, s *session, p *plugin.Modern) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch s.visits[p] {
	case visitDone:
		return nil
	case visitPending:
		return NewDependencyCycleError(cyclePath(s.stack, p.Name()))
	}

	if !s.force && p.State() != plugin.StatePending {
		return nil
	}

	if r.disabled[p.Name()] {
		r.logger.Debug().Str("plugin", p.Name()).Msg("Skipping disabled plugin")
		s.visits[p] = visitDone
		return nil
	}

	s.visits[p] = visitPending
	s.stack = append(s.stack, p.Name())

	for _, attr := range p.Depends() {
		producers, ok := r.index.Providers(attr)
		if !ok {
			return NewMissingAttributeError(p.Name(), attr)
		}
		for _, dep := range producers {
			if dep == p {
				continue
			}
			if err := r.run(ctx, s, dep); err != nil {
				return err
			}
		}
	}

	err := r.exec.execute(ctx, p)

	s.stack = s.stack[:len(s.stack)-1]
	s.visits[p] = visitDone
	return err
}

// cyclePath returns the part of stack starting at name, closed with name.
func cyclePath(stack []string, name string) []string {
	for i, id := range stack {
		if id == name {
			cycle := append([]string(nil), stack[i:]...)
			return append(cycle, name)
		}
	}
	return []string{name, name}
}
