package engine

import (
	"context"
	"fmt"

	"github.com/openfroyo/hostfacts/pkg/plugin"
	"github.com/openfroyo/hostfacts/pkg/telemetry"
)

// execute runs one plugin body and settles its run-state.
//
// Any failure of the body is soft: logged, the plugin marked failed, nil
// returned. Dependency-cycle and missing-attribute errors raised by nested
// resolutions, and context cancellation, are returned unmodified instead.
func (s *System) execute(ctx context.Context, p plugin.Plugin) error {
	ctx, span := s.tracer.StartPluginSpan(ctx, p.Name(), string(p.Generation()))
	defer span.End()

	timer := telemetry.NewTimer()
	err := s.invoke(ctx, p)
	result := s.settle(p, err)

	s.metrics.RecordPluginRun(string(p.Generation()), string(p.State()), timer.Duration())
	switch {
	case err == nil:
		telemetry.RecordSuccess(span)
	case result == nil:
		telemetry.RecordError(span, err)
		span.SetAttributes(telemetry.AttrErrorKind.String(string(KindSoftFailure)))
		s.metrics.RecordError(string(KindSoftFailure))
	default:
		telemetry.RecordError(span, result)
	}

	return result
}

// invoke runs the body, turning a panic into an error.
func (s *System) invoke(ctx context.Context, p plugin.Plugin) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	env := &pluginEnv{sys: s, plugin: p}
	switch p := p.(type) {
	case *plugin.Legacy:
		return p.Execute(ctx, env)
	case *plugin.Modern:
		return p.Execute(ctx, env)
	default:
		return fmt.Errorf("unknown plugin type %T", p)
	}
}

// settle records the outcome of a body run and decides what propagates.
func (s *System) settle(p plugin.Plugin, err error) error {
	if err == nil {
		p.SetState(plugin.StateRan)
		return nil
	}

	if fatal, ok := AsFatal(err); ok {
		p.SetState(plugin.StateFailed)
		return fatal
	}

	if isInterrupt(err) {
		// Left pending so a later collection can retry it.
		return err
	}

	p.SetState(plugin.StateFailed)
	s.logger.Warn().
		Err(NewSoftFailure(p.Name(), err)).
		Str("plugin", p.Name()).
		Str("generation", string(p.Generation())).
		Str("source", p.Source()).
		Msg("Plugin threw an error")
	return nil
}
