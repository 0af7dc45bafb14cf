// Package controls is the control surface of a vehicle: it turns intent
// calls into commands and hands them to the delivery channel without ever
// waiting on the hardware link.
package controls

import (
	"errors"
	"fmt"

	"github.com/autopeer-io/rcbridge/internal/pkg/metrics"
	"github.com/autopeer-io/rcbridge/internal/vehicle/actuator"
	"github.com/autopeer-io/rcbridge/internal/vehicle/command"
	"github.com/autopeer-io/rcbridge/internal/vehicle/queue"
	"github.com/autopeer-io/rcbridge/pkg/log"
)

// ErrDispatchUnavailable is returned when the dispatch loop is gone and the
// command can never be executed. Callers decide whether it is fatal; it is
// never retried here.
var ErrDispatchUnavailable = errors.New("dispatch unavailable")

// Steering is the steering half of the control surface.
type Steering interface {
	SteerByPosition(target int32) error
	SteerUntilStopped(power int8) error
	StopSteer(state actuator.EndState) error
}

// Motor is the propulsion half of the control surface.
type Motor interface {
	DriveUntilStopped(power int8) error
	StopDrive(state actuator.EndState) error
}

// Vehicle is the full control surface.
type Vehicle interface {
	Steering
	Motor
}

// Controls implements Vehicle on top of the sending half of the delivery
// channel. It is safe for concurrent use.
type Controls struct {
	tx     *queue.Sender[command.Command]
	logger log.Logger
}

var _ Vehicle = (*Controls)(nil)

func New(tx *queue.Sender[command.Command], logger log.Logger) *Controls {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Controls{tx: tx, logger: logger}
}

func (c *Controls) SteerByPosition(target int32) error {
	return c.send(command.SteerToPosition{Target: target})
}

func (c *Controls) SteerUntilStopped(power int8) error {
	return c.send(command.SteerUntilStopped{Power: power})
}

func (c *Controls) StopSteer(state actuator.EndState) error {
	return c.send(command.StopSteering{State: state})
}

func (c *Controls) DriveUntilStopped(power int8) error {
	return c.send(command.DriveUntilStopped{Power: power})
}

func (c *Controls) StopDrive(state actuator.EndState) error {
	return c.send(command.StopDrive{State: state})
}

func (c *Controls) send(cmd command.Command) error {
	kind := cmd.Kind().String()
	if err := c.tx.Send(cmd); err != nil {
		metrics.CommandsEnqueued.WithLabelValues(kind, "unavailable").Inc()
		c.logger.Debug("Command rejected, dispatch loop is gone", "kind", kind, "reason", err)
		return fmt.Errorf("%w: %s: %w", ErrDispatchUnavailable, kind, err)
	}
	metrics.CommandsEnqueued.WithLabelValues(kind, "success").Inc()
	return nil
}
