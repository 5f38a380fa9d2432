package socketio

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/specialistvlad/burstbeam/internal/backend"
	"github.com/specialistvlad/burstbeam/internal/codec"
	"github.com/specialistvlad/burstbeam/internal/pipeline"
	"github.com/specialistvlad/burstbeam/internal/transform"
	"github.com/zclconf/go-cty/cty"
)

// Event names of the worker protocol. Every payload is one JSON string.
const (
	EventSubmit = "submit"
	EventCancel = "cancel"
	EventResult = "result"
)

type submitMsg struct {
	ID         string                     `json:"id"`
	Step       string                     `json:"step"`
	Label      string                     `json:"label"`
	Kind       string                     `json:"kind"`
	Expr       string                     `json:"expr,omitempty"`
	Values     json.RawMessage            `json:"values,omitempty"`
	Init       json.RawMessage            `json:"init,omitempty"`
	Inputs     []json.RawMessage          `json:"inputs"`
	SideInputs map[string]json.RawMessage `json:"side_inputs,omitempty"`
}

type cancelMsg struct {
	ID string `json:"id"`
}

type resultMsg struct {
	ID     string          `json:"id"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func encodeTask(id string, task backend.Task) (string, error) {
	msg := submitMsg{
		ID:    id,
		Step:  task.Step,
		Label: task.Label,
		Kind:  string(task.Kind),
		Expr:  task.Payload.Expr,
	}
	var err error
	if len(task.Payload.Values) > 0 {
		if msg.Values, err = codec.EncodeBag(task.Payload.Values); err != nil {
			return "", err
		}
	}
	if task.Payload.Init != cty.NilVal {
		if msg.Init, err = codec.EncodeValue(task.Payload.Init); err != nil {
			return "", err
		}
	}
	if msg.Inputs, err = codec.EncodeBags(task.Inputs); err != nil {
		return "", err
	}
	if len(task.SideInputs) > 0 {
		msg.SideInputs = make(map[string]json.RawMessage, len(task.SideInputs))
		for name, v := range task.SideInputs {
			if msg.SideInputs[name], err = codec.EncodeValue(v); err != nil {
				return "", fmt.Errorf("side input %q: %w", name, err)
			}
		}
	}
	b, err := json.Marshal(msg)
	return string(b), err
}

func decodeTask(raw string) (string, backend.Task, error) {
	var msg submitMsg
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return "", backend.Task{}, fmt.Errorf("decode submit: %w", err)
	}
	kind, err := pipeline.ParseKind(msg.Kind)
	if err != nil {
		return msg.ID, backend.Task{}, err
	}
	task := backend.Task{
		Step: msg.Step,
		Call: transform.Call{
			Label:   msg.Label,
			Kind:    kind,
			Payload: pipeline.Payload{Expr: msg.Expr},
		},
	}
	if len(msg.Values) > 0 {
		if task.Payload.Values, err = codec.DecodeBag(msg.Values); err != nil {
			return msg.ID, backend.Task{}, err
		}
	}
	if len(msg.Init) > 0 {
		if task.Payload.Init, err = codec.DecodeValue(msg.Init); err != nil {
			return msg.ID, backend.Task{}, err
		}
	}
	if task.Inputs, err = codec.DecodeBags(msg.Inputs); err != nil {
		return msg.ID, backend.Task{}, err
	}
	if len(msg.SideInputs) > 0 {
		task.SideInputs = make(map[string]cty.Value, len(msg.SideInputs))
		for name, b := range msg.SideInputs {
			if task.SideInputs[name], err = codec.DecodeValue(b); err != nil {
				return msg.ID, backend.Task{}, fmt.Errorf("side input %q: %w", name, err)
			}
		}
	}
	return msg.ID, task, nil
}

func encodeResult(id string, output []cty.Value, taskErr error) (string, error) {
	msg := resultMsg{ID: id}
	if taskErr != nil {
		msg.Error = taskErr.Error()
	} else {
		out, err := codec.EncodeBag(output)
		if err != nil {
			msg.Error = err.Error()
		} else {
			msg.Output = out
		}
	}
	b, err := json.Marshal(msg)
	return string(b), err
}

func decodeResult(raw string) (string, []cty.Value, error) {
	var msg resultMsg
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return "", nil, fmt.Errorf("decode result: %w", err)
	}
	if msg.Error != "" {
		return msg.ID, nil, errors.New(msg.Error)
	}
	out, err := codec.DecodeBag(msg.Output)
	return msg.ID, out, err
}

// payloadString extracts the JSON string argument of an event.
func payloadString(args []any) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("event without payload")
	}
	switch v := args[0].(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	return "", fmt.Errorf("unexpected payload type %T", args[0])
}

func encodeCancel(id string) (string, error) {
	b, err := json.Marshal(cancelMsg{ID: id})
	return string(b), err
}

func decodeCancel(raw string) (string, error) {
	var msg cancelMsg
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return "", fmt.Errorf("decode cancel: %w", err)
	}
	return msg.ID, nil
}
