package procflow

import (
	"database/sql"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"google.golang.org/protobuf/proto"

	runtimepkg "github.com/drblury/procflow/internal/runtime"
	ce "github.com/drblury/procflow/internal/runtime/cloudevents"
	configpkg "github.com/drblury/procflow/internal/runtime/config"
	"github.com/drblury/procflow/internal/runtime/engine"
	errspkg "github.com/drblury/procflow/internal/runtime/errors"
	idspkg "github.com/drblury/procflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/procflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/procflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/procflow/internal/runtime/metadata"
	"github.com/drblury/procflow/internal/runtime/processor"
	"github.com/drblury/procflow/internal/runtime/sideinput"
	"github.com/drblury/procflow/internal/runtime/signature"
	transportpkg "github.com/drblury/procflow/internal/runtime/transport"
	"github.com/drblury/procflow/internal/runtime/window"
	newtransport "github.com/drblury/procflow/transport"
)

type (
	Config               = configpkg.Config
	Options              = configpkg.Options
	Service              = runtimepkg.Service
	ServiceDependencies  = runtimepkg.ServiceDependencies
	Transport            = transportpkg.Transport
	TransportFactory     = transportpkg.Factory
	TransportFactoryFunc = transportpkg.FactoryFunc

	// Processor authoring
	Processor[I, O any]   = processor.Processor[I, O]
	Setupper              = processor.Setupper
	BundleStarter[O any]  = processor.BundleStarter[O]
	BundleFinisher[O any] = processor.BundleFinisher[O]
	Teardowner            = processor.Teardowner
	Preparer              = processor.Preparer
	TimestampSkewer       = processor.TimestampSkewer
	DisplayDataPopulator  = processor.DisplayDataPopulator
	ParameterDeclarer     = processor.ParameterDeclarer
	Declaration           = processor.Declaration
	Param                 = processor.Param
	ElementArgs[I, O any] = processor.ElementArgs[I, O]
	BundleArgs[O any]     = processor.BundleArgs[O]
	LifecycleArgs         = processor.LifecycleArgs
	OutputReceiver[O any] = processor.OutputReceiver[O]
	InputProvider[I any]  = processor.InputProvider[I]
	SideInputs            = processor.SideInputs
	DisplayBuilder        = engine.DisplayBuilder
	Descriptor            = signature.Descriptor
	Resolver              = signature.Resolver
	Fn[I any]             = engine.Fn[I]
	ElementData[I any]    = engine.ElementData[I]
	OutputEvent           = engine.OutputEvent
	OutputSink            = engine.OutputSink
	SideInputReader       = engine.SideInputReader

	// Windows and panes
	Window         = window.Window
	GlobalWindow   = window.GlobalWindow
	IntervalWindow = window.IntervalWindow
	PaneInfo       = window.PaneInfo
	PaneTiming     = window.Timing

	// Adapter and runners
	Shim[I, O any]                  = runtimepkg.Shim[I, O]
	ShimOption                      = runtimepkg.ShimOption
	ShimCodec                       = runtimepkg.ShimCodec
	JSONCodec                       = runtimepkg.JSONCodec
	ProtoCodec                      = runtimepkg.ProtoCodec
	ProcessorRegistry               = runtimepkg.ProcessorRegistry
	ProcessorRegistration[I, O any] = runtimepkg.ProcessorRegistration[I, O]
	Runner[I any]                   = runtimepkg.Runner[I]
	RunnerConfig                    = runtimepkg.RunnerConfig
	ElementDecoder[I any]           = runtimepkg.ElementDecoder[I]
	PublisherSink                   = runtimepkg.PublisherSink
	CollectingSink                  = runtimepkg.CollectingSink
	ProcessorInfo                   = runtimepkg.ProcessorInfo

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration
	RetryMiddlewareConfig  = runtimepkg.RetryMiddlewareConfig

	PhaseContext = runtimepkg.PhaseContext
	PhaseHooks   = runtimepkg.PhaseHooks
	PhaseMetrics = runtimepkg.PhaseMetrics

	SideInputStore     = sideinput.MapStore
	SQLSideInputStore  = sideinput.SQLStore
	SQLSideInputConfig = sideinput.SQLConfig

	Metadata = metadatapkg.Metadata

	LogFields = loggingpkg.LogFields
	Logger    = loggingpkg.Logger

	Event = ce.Event

	UndecodableElementError = runtimepkg.UndecodableElementError
	SignatureError          = errspkg.SignatureError
	CapabilityError         = errspkg.CapabilityError
	PhaseError              = errspkg.PhaseError
	LifecycleError          = errspkg.LifecycleError
	ConfigValidationError   = errspkg.ConfigValidationError

	Capabilities          = transportpkg.Capabilities
	TransportBuilder      = newtransport.Builder
	TransportConfig       = newtransport.Config
	TransportRegistry     = newtransport.Registry
	TransportCapabilities = newtransport.Capabilities
)

// Parameter constructors for ParameterDeclarer.
var (
	ParamElement        = processor.Element
	ParamRawContext     = processor.RawContext
	ParamWindow         = processor.Window
	ParamTimestamp      = processor.Timestamp
	ParamPane           = processor.Pane
	ParamOutputReceiver = processor.OutputReceiverParam
	ParamInputProvider  = processor.InputProviderParam
	ParamSideInput      = processor.SideInput
)

var (
	NewService     = runtimepkg.NewService
	ValidateConfig = configpkg.ValidateConfig
	LoadConfig     = configpkg.LoadFile
	ParseConfig    = configpkg.Parse

	NewResolver     = signature.NewResolver
	DefaultResolver = signature.DefaultResolver

	WithResolver          = runtimepkg.WithResolver
	WithProcessorRegistry = runtimepkg.WithProcessorRegistry
	WithHooks             = runtimepkg.WithHooks
	WithLogger            = runtimepkg.WithLogger

	RegisterProcessorType    = runtimepkg.RegisterProcessorType
	NewProcessorRegistry     = runtimepkg.NewProcessorRegistry
	DefaultProcessorRegistry = runtimepkg.DefaultProcessorRegistry

	NewPublisherSink       = runtimepkg.NewPublisherSink
	NewElementMessage      = runtimepkg.NewElementMessage
	NewProtoElementMessage = runtimepkg.NewProtoElementMessage
	PublishElement         = runtimepkg.PublishElement
	OutputEventType        = runtimepkg.OutputEventType

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RetryMiddleware         = runtimepkg.RetryMiddleware
	PoisonQueueMiddleware   = runtimepkg.PoisonQueueMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware
	IsRetryable             = runtimepkg.IsRetryable

	LoggingHooks    = runtimepkg.LoggingHooks
	MetricsHooks    = runtimepkg.MetricsHooks
	AlertingHooks   = runtimepkg.AlertingHooks
	NewPhaseMetrics = runtimepkg.NewPhaseMetrics

	NewSideInputStore = sideinput.NewMapStore

	FixedWindowFor = window.FixedWindowFor
	NoFiring       = window.NoFiring

	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	BuildTransport           = newtransport.Build

	NewCloudEvent         = ce.New
	CloudEventToMessage   = ce.ToMessage
	CloudEventFromMessage = ce.FromMessage

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal

	ErrProcessorRequired    = errspkg.ErrProcessorRequired
	ErrNilProcessor         = errspkg.ErrNilProcessor
	ErrUnknownProcessorType = errspkg.ErrUnknownProcessorType
	ErrServiceRequired      = errspkg.ErrServiceRequired
	ErrConsumeQueueRequired = errspkg.ErrConsumeQueueRequired
	ErrPublisherRequired    = errspkg.ErrPublisherRequired
	ErrSubscriberRequired   = errspkg.ErrSubscriberRequired
	ErrTopicRequired        = errspkg.ErrTopicRequired
	ErrConfigRequired       = errspkg.ErrConfigRequired
	ErrLoggerRequired       = errspkg.ErrLoggerRequired
	ErrSideInputNotFound    = errspkg.ErrSideInputNotFound
	ErrEnvelopeInvalid      = errspkg.ErrEnvelopeInvalid
	ErrWindowRequired       = errspkg.ErrWindowRequired
	ErrRunnerClosed         = errspkg.ErrRunnerClosed
	ErrElementRequired      = errspkg.ErrElementRequired
	ErrSetupFailed          = errspkg.ErrSetupFailed
	IsSignatureError        = errspkg.IsSignatureError
	IsCapabilityError       = errspkg.IsCapabilityError

	NewSlogLogger = loggingpkg.NewSlogLogger
	NopLogger     = loggingpkg.NopLogger

	NewMetadata = metadatapkg.New
	CreateULID  = idspkg.CreateULID
)

// RegisterProcessor adapts cfg.Processor and attaches it to the service router.
func RegisterProcessor[I, O any](svc *Service, cfg ProcessorRegistration[I, O]) (*Runner[I], error) {
	return runtimepkg.RegisterProcessor(svc, cfg)
}

// NewShim validates fn's signature and wraps it for the engine.
func NewShim[I, O any](fn Processor[I, O], opts ...ShimOption) (*Shim[I, O], error) {
	return runtimepkg.NewShim(fn, opts...)
}

// NewFn is NewShim returning the engine-facing view, windowed when fn asks
// for its window.
func NewFn[I, O any](fn Processor[I, O], opts ...ShimOption) (Fn[I], error) {
	return runtimepkg.NewFn(fn, opts...)
}

// NewRunner drives fn with messages decoded by decode.
func NewRunner[I any](fn Fn[I], decode ElementDecoder[I], sink OutputSink, cfg RunnerConfig) (*Runner[I], error) {
	return runtimepkg.NewRunner(fn, decode, sink, cfg)
}

// JSONElementDecoder decodes JSON payloads into I.
func JSONElementDecoder[I any]() ElementDecoder[I] {
	return runtimepkg.JSONElementDecoder[I]()
}

// ProtoElementDecoder decodes protojson payloads into T.
func ProtoElementDecoder[T proto.Message]() ElementDecoder[T] {
	return runtimepkg.ProtoElementDecoder[T]()
}

// CloudEventElementDecoder decodes CloudEvents whose data is the JSON form of I.
func CloudEventElementDecoder[I any]() ElementDecoder[I] {
	return runtimepkg.CloudEventElementDecoder[I]()
}

// ElementFromMessage reads the element timestamp, window and pane from msg.
func ElementFromMessage[I any](msg *message.Message, value I) (ElementData[I], error) {
	return runtimepkg.ElementFromMessage(msg, value)
}

// EncodeShim serializes s with codec.
func EncodeShim[I, O any](codec ShimCodec, s *Shim[I, O]) ([]byte, error) {
	return runtimepkg.EncodeShim(codec, s)
}

// DecodeShim rebuilds a shim serialized by EncodeShim.
func DecodeShim[I, O any](codec ShimCodec, data []byte, opts ...ShimOption) (*Shim[I, O], error) {
	return runtimepkg.DecodeShim[I, O](codec, data, opts...)
}

// ProcessorOf returns the processor wrapped by fn.
func ProcessorOf[I, O any](fn Fn[I]) (Processor[I, O], bool) {
	return runtimepkg.ProcessorOf[I, O](fn)
}

// SideInputAs reads the side input tag as T.
func SideInputAs[T any](s SideInputs, tag string) (T, error) {
	return processor.SideInputAs[T](s, tag)
}

// NewSQLSideInputStore keeps side inputs in a SQL table of db.
func NewSQLSideInputStore(db *sql.DB, cfg SQLSideInputConfig) (*SQLSideInputStore, error) {
	return sideinput.NewSQLStore(db, cfg)
}

// NewIntervalWindow returns the window [start, end).
func NewIntervalWindow(start, end time.Time) IntervalWindow {
	return IntervalWindow{Start: start, End: end}
}
