package scheduler

import (
	"github.com/specialistvlad/burstbeam/internal/backend"
	"github.com/specialistvlad/burstbeam/internal/pipeline"
	"github.com/zclconf/go-cty/cty"
)

type eventKind int

const (
	evResult eventKind = iota
	evCompleted
	evFailed
	evViews
	evShutdown
)

// event is one message for the loop.
type event struct {
	kind   eventKind
	step   string
	output []cty.Value
	err    error
	result backend.Result
	views  []*pipeline.View
}
