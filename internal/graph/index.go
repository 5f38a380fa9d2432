package graph

import "github.com/specialistvlad/burstbeam/internal/pipeline"

// Step is one indexed transform application.
type Step struct {
	name      string
	transform *pipeline.Transform
	inputs    []*pipeline.PCollection
	views     []*pipeline.View
}

// Name returns the stable step name (s<N>).
func (s *Step) Name() string { return s.name }

// Label returns the user-facing transform label.
func (s *Step) Label() string { return s.transform.Label() }

// Transform returns the underlying transform, including its payload.
func (s *Step) Transform() *pipeline.Transform { return s.transform }

// Inputs returns the step's data inputs in declaration order.
func (s *Step) Inputs() []*pipeline.PCollection { return s.inputs }

// SideInputs returns the step's side-input views in declaration order.
func (s *Step) SideInputs() []*pipeline.View { return s.views }

// Output returns the value produced by the step.
func (s *Step) Output() *pipeline.PCollection { return s.transform.Output() }

func (s *Step) String() string { return s.name + "(" + s.Label() + ")" }

// Index is the immutable dependency index of one pipeline run.
type Index struct {
	steps     []*Step
	byName    map[string]*Step
	byLabel   map[string]*Step
	producers map[*pipeline.PCollection]*Step
	consumers map[*pipeline.PCollection][]*Step
	roots     []*Step
	rootSet   map[*Step]struct{}
	views     []*pipeline.View
	viewsOf   map[*pipeline.PCollection][]*pipeline.View
}

// Steps returns every step in visitation order.
func (ix *Index) Steps() []*Step { return append([]*Step(nil), ix.steps...) }

// Len returns the number of indexed steps.
func (ix *Index) Len() int { return len(ix.steps) }

// Step looks a step up by its stable name.
func (ix *Index) Step(name string) (*Step, bool) {
	s, ok := ix.byName[name]
	return s, ok
}

// StepByLabel looks a step up by its transform label. When labels repeat,
// the first visited step wins.
func (ix *Index) StepByLabel(label string) (*Step, bool) {
	s, ok := ix.byLabel[label]
	return s, ok
}

// Roots returns the steps without data-input dependencies, in visitation order.
func (ix *Index) Roots() []*Step { return append([]*Step(nil), ix.roots...) }

// IsRoot reports whether s is in the root set.
func (ix *Index) IsRoot(s *Step) bool {
	_, ok := ix.rootSet[s]
	return ok
}

// Producer returns the step producing pc.
func (ix *Index) Producer(pc *pipeline.PCollection) (*Step, bool) {
	s, ok := ix.producers[pc]
	return s, ok
}

// Consumers returns the steps consuming pc as a data input, in visitation order.
func (ix *Index) Consumers(pc *pipeline.PCollection) []*Step {
	return append([]*Step(nil), ix.consumers[pc]...)
}

// Views returns every referenced side-input view, in first-reference order.
func (ix *Index) Views() []*pipeline.View { return append([]*pipeline.View(nil), ix.views...) }

// ViewsOf returns the views derived from pc.
func (ix *Index) ViewsOf(pc *pipeline.PCollection) []*pipeline.View {
	return append([]*pipeline.View(nil), ix.viewsOf[pc]...)
}

// Upstream returns the distinct steps s waits for, through data inputs and
// side-input sources, in first-reference order.
func (ix *Index) Upstream(s *Step) []*Step {
	seen := make(map[*Step]struct{})
	var out []*Step
	add := func(pc *pipeline.PCollection) {
		if p, ok := ix.producers[pc]; ok {
			if _, dup := seen[p]; !dup {
				seen[p] = struct{}{}
				out = append(out, p)
			}
		}
	}
	for _, in := range s.inputs {
		add(in)
	}
	for _, v := range s.views {
		add(v.Source())
	}
	return out
}

// Leaves returns the steps whose output is neither consumed nor viewed.
func (ix *Index) Leaves() []*Step {
	var out []*Step
	for _, s := range ix.steps {
		if len(ix.consumers[s.Output()]) == 0 && len(ix.viewsOf[s.Output()]) == 0 {
			out = append(out, s)
		}
	}
	return out
}
