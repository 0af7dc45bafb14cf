// Package actuator defines the capability contract every motor driven by
// the dispatch loop must satisfy, together with the terminal states and
// speed profiles passed through to the hardware.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrRequestFailed is wrapped by every error returned from an actuator
// request that was rejected, timed out or could not be issued.
var ErrRequestFailed = errors.New("actuator request failed")

// Actuator is a live handle to one motor on the hardware link. Every call
// returns once the request has been issued to the device; completion on the
// device is not awaited. Implementations should return promptly once ctx
// ends. The dispatch loop stops waiting at the deadline either way.
type Actuator interface {
	// StartPower begins continuous actuation at a signed power; the sign
	// selects the direction.
	StartPower(ctx context.Context, power int8) error

	// Stop decelerates according to profile and settles into state.
	Stop(ctx context.Context, state EndState, profile Profile) error

	// GotoAbsolutePosition drives to an absolute position reference and
	// stops there.
	GotoAbsolutePosition(ctx context.Context, position int32) error
}

// EndState is how a stopped actuator holds its position.
type EndState uint8

const (
	// EndStateUnspecified is the zero value and never a valid terminal state.
	EndStateUnspecified EndState = iota
	// EndStateFloat lets the motor spin freely.
	EndStateFloat
	// EndStateBrake shorts the motor for passive resistance.
	EndStateBrake
	// EndStateHold actively locks the current position.
	EndStateHold
)

var endStateNames = map[EndState]string{
	EndStateUnspecified: "unspecified",
	EndStateFloat:       "float",
	EndStateBrake:       "brake",
	EndStateHold:        "hold",
}

func (s EndState) String() string {
	if name, ok := endStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("EndState(%d)", uint8(s))
}

// Valid reports whether s names a real terminal state.
func (s EndState) Valid() bool {
	return s >= EndStateFloat && s <= EndStateHold
}

// ParseEndState parses the lower-case name of a terminal state.
func ParseEndState(s string) (EndState, error) {
	for state, name := range endStateNames {
		if state.Valid() && strings.EqualFold(name, s) {
			return state, nil
		}
	}
	return EndStateUnspecified, fmt.Errorf("unknown end state %q", s)
}

// Profile selects which speed ramps the device applies to a request.
type Profile uint8

const (
	ProfileNone         Profile = 0
	ProfileAcceleration Profile = 1
	ProfileDeceleration Profile = 2
	ProfileAccDec       Profile = ProfileAcceleration | ProfileDeceleration
)

func (p Profile) String() string {
	switch p {
	case ProfileNone:
		return "none"
	case ProfileAcceleration:
		return "acceleration"
	case ProfileDeceleration:
		return "deceleration"
	case ProfileAccDec:
		return "accdec"
	default:
		return fmt.Sprintf("Profile(%d)", uint8(p))
	}
}

// ParseProfile parses the name returned by Profile.String.
func ParseProfile(s string) (Profile, error) {
	for _, p := range []Profile{ProfileNone, ProfileAcceleration, ProfileDeceleration, ProfileAccDec} {
		if strings.EqualFold(p.String(), s) {
			return p, nil
		}
	}
	return ProfileNone, fmt.Errorf("unknown profile %q", s)
}

// RequestError wraps ErrRequestFailed with the operation that failed.
func RequestError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRequestFailed, op, err)
}

// Operation names used in logs, metrics and wire payloads.
const (
	OpStartPower           = "start_power"
	OpStop                 = "stop"
	OpGotoAbsolutePosition = "goto_absolute_position"
)
