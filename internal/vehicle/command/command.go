// Package command defines the instructions carried from the control surface
// to the dispatch loop. A Command is a sealed sum type: each variant holds
// exactly the typed arguments its operation needs.
package command

import (
	"errors"
	"fmt"

	"github.com/autopeer-io/rcbridge/internal/vehicle/actuator"
)

// ErrMalformed reports a command whose arguments do not match its kind.
var ErrMalformed = errors.New("malformed command")

// Kind identifies the operation a Command requests.
type Kind uint8

const (
	KindSteerToPosition Kind = iota
	KindSteerUntilStopped
	KindStopSteering
	KindDriveUntilStopped
	KindStopDrive
)

func (k Kind) String() string {
	switch k {
	case KindSteerToPosition:
		return "SteerToPosition"
	case KindSteerUntilStopped:
		return "SteerUntilStopped"
	case KindStopSteering:
		return "StopSteering"
	case KindDriveUntilStopped:
		return "DriveUntilStopped"
	case KindStopDrive:
		return "StopDrive"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Command is one discrete actuator instruction. Only the variants declared
// in this package implement it.
type Command interface {
	Kind() Kind
	// Validate reports ErrMalformed when the arguments cannot be executed.
	// Argument ranges are not checked; that is the device's concern.
	Validate() error
	isCommand()
}

// SteerToPosition seeks the steering motor to an absolute position.
type SteerToPosition struct {
	Target int32
}

// SteerUntilStopped runs the steering motor at Power until stopped.
type SteerUntilStopped struct {
	Power int8
}

// StopSteering stops the steering motor and holds it in State.
type StopSteering struct {
	State actuator.EndState
}

// DriveUntilStopped runs the propulsion motor at Power until stopped.
type DriveUntilStopped struct {
	Power int8
}

// StopDrive stops the propulsion motor and holds it in State.
type StopDrive struct {
	State actuator.EndState
}

func (SteerToPosition) Kind() Kind   { return KindSteerToPosition }
func (SteerUntilStopped) Kind() Kind { return KindSteerUntilStopped }
func (StopSteering) Kind() Kind      { return KindStopSteering }
func (DriveUntilStopped) Kind() Kind { return KindDriveUntilStopped }
func (StopDrive) Kind() Kind         { return KindStopDrive }

func (SteerToPosition) Validate() error   { return nil }
func (SteerUntilStopped) Validate() error { return nil }
func (DriveUntilStopped) Validate() error { return nil }

func (c StopSteering) Validate() error { return validateEndState(c.Kind(), c.State) }
func (c StopDrive) Validate() error    { return validateEndState(c.Kind(), c.State) }

func (SteerToPosition) isCommand()   {}
func (SteerUntilStopped) isCommand() {}
func (StopSteering) isCommand()      {}
func (DriveUntilStopped) isCommand() {}
func (StopDrive) isCommand()         {}

func validateEndState(k Kind, s actuator.EndState) error {
	if !s.Valid() {
		return fmt.Errorf("%w: %s without a terminal state (got %s)", ErrMalformed, k, s)
	}
	return nil
}

// Validate checks any command, including a nil one.
func Validate(c Command) error {
	if c == nil {
		return fmt.Errorf("%w: nil command", ErrMalformed)
	}
	return c.Validate()
}
