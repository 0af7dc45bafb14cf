package input

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/autopeer-io/rcbridge/internal/pkg/metrics"
	"github.com/autopeer-io/rcbridge/internal/vehicle/actuator"
	"github.com/autopeer-io/rcbridge/internal/vehicle/controls"
	"github.com/autopeer-io/rcbridge/pkg/log"
)

const (
	DefaultDrivePower int8 = 100
	DefaultSteerPower int8 = 25
)

// MapperOption configures a Mapper.
type MapperOption func(*Mapper)

// WithDrivePower sets the magnitude used for forward and reverse.
func WithDrivePower(p int8) MapperOption {
	return func(m *Mapper) { m.drivePower = p }
}

// WithSteerPower sets the magnitude used for steering.
func WithSteerPower(p int8) MapperOption {
	return func(m *Mapper) { m.steerPower = p }
}

func WithLogger(l log.Logger) MapperOption {
	return func(m *Mapper) { m.logger = l }
}

// Mapper forwards one control surface call per edge. Repeated presses of a
// held control and releases of a control that is not held are dropped.
// A Mapper is not safe for concurrent use.
type Mapper struct {
	vehicle    controls.Vehicle
	drivePower int8
	steerPower int8
	logger     log.Logger

	held    map[Control]bool
	aborted bool
}

func NewMapper(v controls.Vehicle, opts ...MapperOption) *Mapper {
	m := &Mapper{
		vehicle:    v,
		drivePower: DefaultDrivePower,
		steerPower: DefaultSteerPower,
		logger:     log.NewNopLogger(),
		held:       make(map[Control]bool, len(Controls)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle maps a single event. It returns ErrAborted on and after an abort
// press, and errors wrapping controls.ErrDispatchUnavailable unchanged.
func (m *Mapper) Handle(e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if m.aborted {
		return ErrAborted
	}

	pressed := e.Edge == EdgePress
	forward := m.held[e.Control] != pressed
	metrics.InputEvents.WithLabelValues(string(e.Control), string(e.Edge), strconv.FormatBool(forward)).Inc()
	if !forward {
		m.logger.Debug("Dropping repeated edge", "event", e.String())
		return nil
	}
	m.held[e.Control] = pressed

	m.logger.Debug("Mapping input edge", "event", e.String())
	if pressed {
		return m.press(e.Control)
	}
	return m.release(e.Control)
}

func (m *Mapper) press(c Control) error {
	switch c {
	case ControlForward:
		return m.vehicle.DriveUntilStopped(m.drivePower)
	case ControlReverse:
		return m.vehicle.DriveUntilStopped(-m.drivePower)
	case ControlSteerLeft:
		return m.vehicle.SteerUntilStopped(-m.steerPower)
	case ControlSteerRight:
		return m.vehicle.SteerUntilStopped(m.steerPower)
	case ControlAbort:
		m.aborted = true
		m.logger.Info("Abort pressed, braking")
		return errors.Join(
			m.vehicle.StopDrive(actuator.EndStateBrake),
			m.vehicle.StopSteer(actuator.EndStateBrake),
			ErrAborted,
		)
	}
	return fmt.Errorf("%w: %q", ErrUnknownControl, c)
}

func (m *Mapper) release(c Control) error {
	switch c {
	case ControlForward, ControlReverse:
		return m.vehicle.StopDrive(actuator.EndStateFloat)
	case ControlSteerLeft, ControlSteerRight:
		return m.vehicle.StopSteer(actuator.EndStateFloat)
	case ControlAbort:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownControl, c)
}

// Binding describes what an edge of a control does.
type Binding struct {
	Control   Control
	OnPress   string
	OnRelease string
}

// Bindings describes the current key map.
func (m *Mapper) Bindings() []Binding {
	return []Binding{
		{ControlForward, fmt.Sprintf("DriveUntilStopped(%d)", m.drivePower), "StopDrive(float)"},
		{ControlReverse, fmt.Sprintf("DriveUntilStopped(%d)", -m.drivePower), "StopDrive(float)"},
		{ControlSteerLeft, fmt.Sprintf("SteerUntilStopped(%d)", -m.steerPower), "StopSteer(float)"},
		{ControlSteerRight, fmt.Sprintf("SteerUntilStopped(%d)", m.steerPower), "StopSteer(float)"},
		{ControlAbort, "StopDrive(brake), StopSteer(brake), end input", "-"},
	}
}
