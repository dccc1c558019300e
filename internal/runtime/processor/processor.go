// Package processor defines the surface a user-supplied element processor
// implements: the required per-element method, the optional lifecycle
// methods, and the parameter declaration that tells the adapter which
// capabilities each method needs.
package processor

import (
	"context"
	"time"

	"github.com/drblury/procflow/internal/runtime/engine"
)

// Processor is the minimum a processor implements.
type Processor[I, O any] interface {
	ProcessElement(ctx context.Context, args ElementArgs[I, O]) error
}

// Setupper is implemented by processors that acquire resources once per
// instance.
type Setupper interface {
	Setup(ctx context.Context, args LifecycleArgs) error
}

// BundleStarter is implemented by processors with per-bundle initialisation.
type BundleStarter[O any] interface {
	StartBundle(ctx context.Context, args BundleArgs[O]) error
}

// BundleFinisher is implemented by processors that flush at the end of a
// bundle.
type BundleFinisher[O any] interface {
	FinishBundle(ctx context.Context, args BundleArgs[O]) error
}

// Teardowner is implemented by processors that release resources.
type Teardowner interface {
	Teardown(ctx context.Context, args LifecycleArgs) error
}

// Preparer resets processor-local state before every bundle. It runs even
// when the processor has no StartBundle method.
type Preparer interface {
	PrepareForProcessing()
}

// TimestampSkewer reports how far before the input timestamp outputs may be
// stamped.
type TimestampSkewer interface {
	AllowedTimestampSkew() time.Duration
}

// DisplayDataPopulator contributes display metadata for the processor.
type DisplayDataPopulator interface {
	PopulateDisplayData(builder engine.DisplayBuilder)
}

// ParameterDeclarer declares the optional parameters of each lifecycle
// method. Parameters is called on a zero value of the processor type, so it
// must not depend on instance state.
type ParameterDeclarer interface {
	Parameters() Declaration
}
