package processor

import "fmt"

// Method names a lifecycle method of a processor.
type Method int

const (
	MethodSetup Method = iota
	MethodStartBundle
	MethodProcessElement
	MethodFinishBundle
	MethodTeardown
)

// Methods lists every lifecycle method in call order.
var Methods = []Method{MethodSetup, MethodStartBundle, MethodProcessElement, MethodFinishBundle, MethodTeardown}

func (m Method) String() string {
	switch m {
	case MethodSetup:
		return "Setup"
	case MethodStartBundle:
		return "StartBundle"
	case MethodProcessElement:
		return "ProcessElement"
	case MethodFinishBundle:
		return "FinishBundle"
	case MethodTeardown:
		return "Teardown"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParamKind is the vocabulary of optional parameters a method may request.
type ParamKind int

const (
	ParamInvalid ParamKind = iota
	ParamElement
	ParamContext
	ParamWindow
	ParamTimestamp
	ParamPane
	ParamSideInput
	ParamOutputReceiver
	ParamInputProvider

	paramKindEnd
)

// Valid reports whether k is part of the vocabulary.
func (k ParamKind) Valid() bool {
	return k > ParamInvalid && k < paramKindEnd
}

func (k ParamKind) String() string {
	switch k {
	case ParamElement:
		return "Element"
	case ParamContext:
		return "Context"
	case ParamWindow:
		return "Window"
	case ParamTimestamp:
		return "Timestamp"
	case ParamPane:
		return "Pane"
	case ParamSideInput:
		return "SideInput"
	case ParamOutputReceiver:
		return "OutputReceiver"
	case ParamInputProvider:
		return "InputProvider"
	default:
		return fmt.Sprintf("ParamKind(%d)", int(k))
	}
}

// Param is one requested parameter. Tag is only meaningful for side inputs.
type Param struct {
	Kind ParamKind
	Tag  string
}

func (p Param) String() string {
	if p.Kind == ParamSideInput {
		return fmt.Sprintf("SideInput(%s)", p.Tag)
	}
	return p.Kind.String()
}

// Constructors for declarations.
var (
	Element             = Param{Kind: ParamElement}
	RawContext          = Param{Kind: ParamContext}
	Window              = Param{Kind: ParamWindow}
	Timestamp           = Param{Kind: ParamTimestamp}
	Pane                = Param{Kind: ParamPane}
	OutputReceiverParam = Param{Kind: ParamOutputReceiver}
	InputProviderParam  = Param{Kind: ParamInputProvider}
)

// SideInput requests the side input registered under tag.
func SideInput(tag string) Param {
	return Param{Kind: ParamSideInput, Tag: tag}
}

// Declaration lists the parameters requested by each lifecycle method, in
// binding order.
type Declaration struct {
	Setup          []Param
	StartBundle    []Param
	ProcessElement []Param
	FinishBundle   []Param
	Teardown       []Param
}

// For returns the parameters declared for m.
func (d Declaration) For(m Method) []Param {
	switch m {
	case MethodSetup:
		return d.Setup
	case MethodStartBundle:
		return d.StartBundle
	case MethodProcessElement:
		return d.ProcessElement
	case MethodFinishBundle:
		return d.FinishBundle
	case MethodTeardown:
		return d.Teardown
	default:
		return nil
	}
}
