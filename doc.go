// Package procflow runs user-supplied element processors on top of
// Watermill. A processor implements ProcessElement and, optionally, the
// Setup, StartBundle, FinishBundle and Teardown lifecycle methods. It
// declares which capabilities each method needs (the element, its
// timestamp, window or pane, side inputs, an output receiver) through
// ParameterDeclarer.
//
// NewShim resolves and validates that declaration once per processor type
// and adapts the processor to the engine-facing Fn. A processor that asks
// for its window is wrapped so that it is invoked once per window. A
// lifecycle tracker rejects calls made out of order, and every failure is
// tagged with the phase it happened in.
//
// Service hosts the Watermill router: RegisterProcessor attaches a Runner
// that decodes messages of a consume queue into elements, groups them into
// bundles and publishes outputs through the transport. The transport is
// read from Config (channel, kafka, rabbitmq, nats or aws).
//
// # Middleware
//
// The default chain adds correlation IDs, message logging, OpenTelemetry
// tracing, Prometheus router metrics, retries and poison queue forwarding.
// Custom middleware can be added via ServiceDependencies.Middlewares.
//
// # Phase hooks
//
// PhaseHooks observe every lifecycle call of every processor. LoggingHooks
// and MetricsHooks are installed by the service; AlertingHooks and custom
// hooks go through ServiceDependencies.Hooks.
package procflow
