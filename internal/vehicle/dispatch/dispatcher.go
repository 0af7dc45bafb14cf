// Package dispatch implements the single consumer of the delivery channel.
// It issues each command to the steering or propulsion actuator in exactly
// the order the commands were enqueued.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/rcbridge/internal/pkg/metrics"
	"github.com/autopeer-io/rcbridge/internal/vehicle/actuator"
	"github.com/autopeer-io/rcbridge/internal/vehicle/command"
	"github.com/autopeer-io/rcbridge/internal/vehicle/queue"
	"github.com/autopeer-io/rcbridge/pkg/log"
)

const (
	// DefaultRequestTimeout bounds how long one request may take to issue
	// before the loop moves on to the next command.
	DefaultRequestTimeout = 2 * time.Second

	// DefaultStopProfile is applied to every stop request.
	DefaultStopProfile = actuator.ProfileAccDec
)

// Actuator roles, used as log and metric labels.
const (
	RoleSteering   = "steering"
	RolePropulsion = "propulsion"
)

// Result labels of rcbridge_commands_dispatched_total.
const (
	resultSuccess   = "success"
	resultFailed    = "failed"
	resultMalformed = "malformed"
)

// Dispatcher maps commands onto the two actuators of a vehicle. It is owned
// by a single goroutine. Requests are started in dequeue order; a request
// abandoned at its deadline may still complete after later ones.
type Dispatcher struct {
	steering   actuator.Actuator
	propulsion actuator.Actuator

	stopProfile    actuator.Profile
	requestTimeout time.Duration
	clock          clock.PassiveClock
	logger         log.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithStopProfile sets the profile used for every stop request.
func WithStopProfile(p actuator.Profile) Option {
	return func(d *Dispatcher) { d.stopProfile = p }
}

// WithRequestTimeout sets the per-request issue timeout. Zero disables it.
func WithRequestTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.requestTimeout = t }
}

// WithClock sets the clock used to measure request durations.
func WithClock(c clock.PassiveClock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a dispatcher for the given steering and propulsion actuators.
func New(steering, propulsion actuator.Actuator, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		steering:       steering,
		propulsion:     propulsion,
		stopProfile:    DefaultStopProfile,
		requestTimeout: DefaultRequestTimeout,
		clock:          clock.RealClock{},
		logger:         log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run consumes rx until the sending half is closed and drained, in which case
// it returns nil, or until ctx ends. Individual command failures never stop
// the loop.
func (d *Dispatcher) Run(ctx context.Context, rx *queue.Receiver[command.Command]) error {
	d.logger.Info("Dispatch loop running")
	defer metrics.QueueDepth.Set(0)

	for {
		cmd, err := rx.Recv(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				d.logger.Info("Delivery channel closed, dispatch loop exiting")
				return nil
			}
			return err
		}
		metrics.QueueDepth.Set(float64(rx.Len()))

		if err := d.Dispatch(ctx, cmd); err != nil {
			d.report(cmd, err)
		}
	}
}

// Dispatch issues a single command and returns its outcome. Run calls it for
// every dequeued command; it is exported for callers driving the loop by hand.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd command.Command) error {
	if err := command.Validate(cmd); err != nil {
		metrics.CommandsDispatched.WithLabelValues(kindLabel(cmd), resultMalformed).Inc()
		return err
	}

	var err error
	switch c := cmd.(type) {
	case command.SteerToPosition:
		err = d.invoke(ctx, RoleSteering, actuator.OpGotoAbsolutePosition, func(ctx context.Context) error {
			return d.steering.GotoAbsolutePosition(ctx, c.Target)
		})
	case command.SteerUntilStopped:
		err = d.invoke(ctx, RoleSteering, actuator.OpStartPower, func(ctx context.Context) error {
			return d.steering.StartPower(ctx, c.Power)
		})
	case command.StopSteering:
		err = d.invoke(ctx, RoleSteering, actuator.OpStop, func(ctx context.Context) error {
			return d.steering.Stop(ctx, c.State, d.stopProfile)
		})
	case command.DriveUntilStopped:
		err = d.invoke(ctx, RolePropulsion, actuator.OpStartPower, func(ctx context.Context) error {
			return d.propulsion.StartPower(ctx, c.Power)
		})
	case command.StopDrive:
		err = d.invoke(ctx, RolePropulsion, actuator.OpStop, func(ctx context.Context) error {
			return d.propulsion.Stop(ctx, c.State, d.stopProfile)
		})
	default:
		metrics.CommandsDispatched.WithLabelValues(kindLabel(cmd), resultMalformed).Inc()
		return fmt.Errorf("%w: unknown command %T", command.ErrMalformed, cmd)
	}

	result := resultSuccess
	if err != nil {
		result = resultFailed
	}
	metrics.CommandsDispatched.WithLabelValues(cmd.Kind().String(), result).Inc()
	return err
}

// invoke issues one request with the per-request timeout. The adapter runs
// on its own goroutine; once ctx ends the loop stops waiting for it, so an
// adapter that ignores ctx cannot hold back later commands. A panicking
// adapter is turned into a request error.
func (d *Dispatcher) invoke(ctx context.Context, role, op string, fn func(context.Context) error) error {
	if d.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.requestTimeout)
		defer cancel()
	}

	start := d.clock.Now()
	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("panic: %v", r)
			}
		}()
		result <- fn(ctx)
	}()

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		select {
		case err = <-result:
		default:
			err = fmt.Errorf("abandoned after %v: %w", d.clock.Since(start), ctx.Err())
		}
	}
	metrics.ActuatorRequestDuration.WithLabelValues(role, op).Observe(d.clock.Since(start).Seconds())

	if err == nil {
		return nil
	}
	if !errors.Is(err, actuator.ErrRequestFailed) {
		err = actuator.RequestError(op, err)
	}
	return fmt.Errorf("%s actuator: %w", role, err)
}

func (d *Dispatcher) report(cmd command.Command, err error) {
	kind := kindLabel(cmd)
	if errors.Is(err, command.ErrMalformed) {
		d.logger.Error(err, "Skipping malformed command", "kind", kind)
		return
	}
	d.logger.Error(err, "Actuator request failed", "kind", kind)
}

func kindLabel(cmd command.Command) string {
	if cmd == nil {
		return "nil"
	}
	return cmd.Kind().String()
}
