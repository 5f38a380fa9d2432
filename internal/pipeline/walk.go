package pipeline

// Visitor receives the transforms of a pipeline during Walk.
type Visitor interface {
	// Enter is called when the walk reaches t, before any of t's producers
	// are walked. Returning false skips t and its producers; returning an
	// error stops the walk.
	Enter(t *Transform) (bool, error)
	// Leave is called once every producer of t (through data inputs and
	// side inputs) has been walked.
	Leave(t *Transform) error
}

// Walk drives v depth-first over every transform of p, in application order,
// walking each transform's producers before the transform itself. Producers
// that belong to another pipeline, and references without a producer, are
// not followed.
func Walk(p *Pipeline, v Visitor) error {
	for _, t := range p.transforms {
		if err := walk(p, t, v); err != nil {
			return err
		}
	}
	return nil
}

func walk(p *Pipeline, t *Transform, v Visitor) error {
	descend, err := v.Enter(t)
	if err != nil || !descend {
		return err
	}
	for _, in := range t.inputs {
		if in == nil {
			continue
		}
		if pr := in.producer; p.Owns(pr) {
			if err := walk(p, pr, v); err != nil {
				return err
			}
		}
	}
	for _, view := range t.sideInputs {
		if view.source == nil {
			continue
		}
		if pr := view.source.producer; p.Owns(pr) {
			if err := walk(p, pr, v); err != nil {
				return err
			}
		}
	}
	return v.Leave(t)
}
