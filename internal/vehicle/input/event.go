// Package input turns press/release edges from an input source into control
// surface calls.
package input

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownControl = errors.New("unknown control")
	ErrUnknownEdge    = errors.New("unknown edge")

	// ErrAborted is returned once the abort control was pressed. No further
	// events are mapped.
	ErrAborted = errors.New("input aborted")
)

// Control is a logical control of the input device.
type Control string

const (
	ControlForward    Control = "forward"
	ControlReverse    Control = "reverse"
	ControlSteerLeft  Control = "steer-left"
	ControlSteerRight Control = "steer-right"
	ControlAbort      Control = "abort"
)

// Controls lists every control in display order.
var Controls = []Control{ControlForward, ControlReverse, ControlSteerLeft, ControlSteerRight, ControlAbort}

func (c Control) Valid() bool {
	switch c {
	case ControlForward, ControlReverse, ControlSteerLeft, ControlSteerRight, ControlAbort:
		return true
	}
	return false
}

// Edge is a state transition of a control.
type Edge string

const (
	EdgePress   Edge = "press"
	EdgeRelease Edge = "release"
)

func (e Edge) Valid() bool {
	return e == EdgePress || e == EdgeRelease
}

// Event is one edge of one control.
// Wire form: {"control":"forward","edge":"press"}
type Event struct {
	Control Control `json:"control"`
	Edge    Edge    `json:"edge"`
}

func Press(c Control) Event   { return Event{Control: c, Edge: EdgePress} }
func Release(c Control) Event { return Event{Control: c, Edge: EdgeRelease} }

func (e Event) String() string {
	return fmt.Sprintf("%s/%s", e.Control, e.Edge)
}

// Validate checks that both the control and the edge are known.
func (e Event) Validate() error {
	if !e.Control.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownControl, e.Control)
	}
	if !e.Edge.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownEdge, e.Edge)
	}
	return nil
}

// ParseEvent decodes and validates the JSON form of an event.
func ParseEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode input event: %w", err)
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}
