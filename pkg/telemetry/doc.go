// Package telemetry provides the observability plumbing for hostfacts.
//
// It bundles three concerns:
//
//  1. Structured Logging - zerolog loggers with per-component fields
//  2. Metrics - a Prometheus registry of plugin and collection counters,
//     written to a node-exporter style textfile after a run
//  3. Tracing - OpenTelemetry spans around collections and plugin runs
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	logger, err := telemetry.NewLogger(cfg.Logging)
//	if err != nil {
//	    return err
//	}
//
//	metrics, err := telemetry.NewMetrics(cfg.Metrics)
//	if err != nil {
//	    return err
//	}
//
//	tracer, err := telemetry.NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
// Every type tolerates its disabled configuration: a disabled Metrics
// records nothing and a disabled Tracer hands out non-recording spans, so
// callers never branch on whether telemetry is on.
package telemetry
