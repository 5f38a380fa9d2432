package pipeline

import "github.com/zclconf/go-cty/cty"

// Pipeline is an ordered collection of transforms and the values flowing
// between them. It is not safe for concurrent modification.
type Pipeline struct {
	transforms []*Transform
	begin      *PCollection
}

// New creates an empty pipeline.
func New() *Pipeline {
	p := &Pipeline{}
	p.begin = &PCollection{name: "pipeline.begin", begin: true}
	return p
}

// Begin returns the synthetic marker value that root transforms may consume.
func (p *Pipeline) Begin() *PCollection { return p.begin }

// Transforms returns the transforms in application order.
func (p *Pipeline) Transforms() []*Transform {
	out := make([]*Transform, len(p.transforms))
	copy(out, p.transforms)
	return out
}

// Owns reports whether t was declared on this pipeline.
func (p *Pipeline) Owns(t *Transform) bool {
	return t != nil && t.pipeline == p
}

// Declare adds a transform without inputs and returns it. Inputs can be
// attached later with AddInput, which lets loaders link transforms that are
// declared in any order.
func (p *Pipeline) Declare(label string, fn Fn) *Transform {
	t := &Transform{
		label:    label,
		kind:     fn.Kind,
		payload:  fn.Payload,
		pipeline: p,
	}
	t.output = &PCollection{name: label, producer: t}
	for _, v := range fn.SideInputs {
		t.AddSideInput(v)
	}
	p.transforms = append(p.transforms, t)
	return t
}

// Apply declares a transform consuming inputs and returns its output.
func (p *Pipeline) Apply(label string, fn Fn, inputs ...*PCollection) *PCollection {
	t := p.Declare(label, fn)
	for _, in := range inputs {
		t.AddInput(in)
	}
	return t.output
}

// Transform is one application of user logic inside a pipeline.
type Transform struct {
	label      string
	kind       Kind
	payload    Payload
	inputs     []*PCollection
	sideInputs []*View
	output     *PCollection
	pipeline   *Pipeline
}

func (t *Transform) Label() string { return t.label }
func (t *Transform) Kind() Kind { return t.kind }
func (t *Transform) Payload() Payload { return t.payload }
func (t *Transform) Output() *PCollection { return t.output }
func (t *Transform) Inputs() []*PCollection { return append([]*PCollection(nil), t.inputs...) }
func (t *Transform) SideInputs() []*View { return append([]*View(nil), t.sideInputs...) }
func (t *Transform) AddInput(pc *PCollection) { t.inputs = append(t.inputs, pc) }
func (t *Transform) AddSideInput(v *View) { t.sideInputs = append(t.sideInputs, v) }

// PCollection is a reference to the data produced by one transform.
type PCollection struct {
	name     string
	producer *Transform
	begin    bool
}

// Unbound returns a reference to a collection that no transform produces.
// Loaders use it for references they cannot resolve; indexing such a
// pipeline fails.
func Unbound(name string) *PCollection {
	return &PCollection{name: name}
}

func (pc *PCollection) Name() string { return pc.name }

// Producer returns the transform producing pc, or nil for the begin marker
// and unbound references.
func (pc *PCollection) Producer() *Transform { return pc.producer }

// IsBegin reports whether pc is the pipeline-begin marker.
func (pc *PCollection) IsBegin() bool { return pc.begin }

// AsList views pc as a tuple of all of its elements.
func (pc *PCollection) AsList(name string) *View {
	return &View{name: name, kind: ViewList, source: pc}
}

// AsIter views pc as an iterable of its elements. It materializes like AsList.
func (pc *PCollection) AsIter(name string) *View {
	return &View{name: name, kind: ViewIter, source: pc}
}

// AsSingleton views pc as its single element.
func (pc *PCollection) AsSingleton(name string) *View {
	return &View{name: name, kind: ViewSingleton, source: pc}
}

// AsSingletonWithDefault views pc as its single element, or def when pc is empty.
func (pc *PCollection) AsSingletonWithDefault(name string, def cty.Value) *View {
	return &View{name: name, kind: ViewSingleton, source: pc, def: def, hasDefault: true}
}

// AsDict views pc, a collection of [key, value] pairs, as an object keyed by
// the string form of each key.
func (pc *PCollection) AsDict(name string) *View {
	return &View{name: name, kind: ViewDict, source: pc}
}

// ViewKind selects how a side input is materialized.
type ViewKind string

const (
	ViewList      ViewKind = "list"
	ViewIter      ViewKind = "iter"
	ViewSingleton ViewKind = "singleton"
	ViewDict      ViewKind = "dict"
)

// View is a named side input derived from a PCollection. It must be fully
// materialized before any transform referencing it runs.
type View struct {
	name       string
	kind       ViewKind
	source     *PCollection
	def        cty.Value
	hasDefault bool
}

func (v *View) Name() string { return v.name }
func (v *View) Kind() ViewKind { return v.kind }
func (v *View) Source() *PCollection { return v.source }

// Default returns the value used for an empty singleton view, if any.
func (v *View) Default() (cty.Value, bool) { return v.def, v.hasDefault }
