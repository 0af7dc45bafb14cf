// Package client composes the delivery channel, the control surface and the
// dispatch goroutine into one vehicle client.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/rcbridge/internal/pkg/metrics"
	fsmutil "github.com/autopeer-io/rcbridge/internal/pkg/util/fsm"
	"github.com/autopeer-io/rcbridge/internal/vehicle/actuator"
	"github.com/autopeer-io/rcbridge/internal/vehicle/command"
	"github.com/autopeer-io/rcbridge/internal/vehicle/controls"
	"github.com/autopeer-io/rcbridge/internal/vehicle/dispatch"
	"github.com/autopeer-io/rcbridge/internal/vehicle/link"
	"github.com/autopeer-io/rcbridge/internal/vehicle/queue"
	"github.com/autopeer-io/rcbridge/pkg/log"
)

// Lifecycle states.
const (
	StateConnecting = "connecting"
	StateRunning    = "running"
	StateStopped    = "stopped"
	StateFailed     = "failed"
)

// Lifecycle events.
const (
	EventConnected = "connected"
	EventFail      = "fail"
	EventStop      = "stop"
)

const (
	DefaultConnectTimeout = 10 * time.Second

	disconnectTimeout = 5 * time.Second
)

// Config describes the vehicle a Client drives.
type Config struct {
	Address        link.Address
	PropulsionPort link.Port
	SteeringPort   link.Port

	// ConnectTimeout bounds the hub connection. Zero means DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// DispatchOptions are passed to the dispatcher.
	DispatchOptions []dispatch.Option

	Logger log.Logger
}

// Client owns the dispatch goroutine and the control surface of one vehicle.
type Client struct {
	cfg       Config
	connector link.Connector
	logger    log.Logger

	tx       *queue.Sender[command.Command]
	controls *controls.Controls
	fsm      *fsm.FSM

	cancel context.CancelFunc
	done   chan struct{}
	err    error

	closeOnce sync.Once
}

// New starts the dispatch goroutine and returns at once. The goroutine
// connects to the hub and resolves both actuators before consuming commands;
// commands issued in the meantime are queued.
func New(ctx context.Context, connector link.Connector, cfg Config) *Client {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNopLogger()
	}

	tx, rx := queue.New[command.Command]()
	ctx, cancel := context.WithCancel(ctx)

	c := &Client{
		cfg:       cfg,
		connector: connector,
		logger:    cfg.Logger.WithValues("address", cfg.Address.String()),
		tx:        tx,
		controls:  controls.New(tx, cfg.Logger),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	c.fsm = c.newFSM()

	go c.run(ctx, rx)
	return c
}

func (c *Client) newFSM() *fsm.FSM {
	events := fsm.Events{
		{Name: EventConnected, Src: []string{StateConnecting}, Dst: StateRunning},
		{Name: EventFail, Src: []string{StateConnecting}, Dst: StateFailed},
		{Name: EventStop, Src: []string{StateRunning}, Dst: StateStopped},
	}

	callbacks := fsm.Callbacks{
		"enter_state":           c.onEnterState,
		"enter_" + StateRunning: fsmutil.WrapEvent(c.actionEnterRunning),
		"enter_" + StateFailed:  fsmutil.WrapEvent(c.actionEnterFailed),
		"enter_" + StateStopped: fsmutil.WrapEvent(c.actionEnterStopped),
	}

	return fsm.NewFSM(StateConnecting, events, callbacks)
}

func (c *Client) onEnterState(_ context.Context, e *fsm.Event) {
	c.logger.Debug("Client state changed", "from", e.Src, "to", e.Dst, "event", e.Event)
}

func (c *Client) actionEnterRunning(_ context.Context, _ *fsm.Event) error {
	metrics.LinkStatus.Set(1)
	c.logger.Info("Hub connected, dispatching commands")
	return nil
}

func (c *Client) actionEnterFailed(_ context.Context, e *fsm.Event) error {
	metrics.LinkStatus.Set(0)
	if len(e.Args) > 0 {
		if err, ok := e.Args[0].(error); ok {
			c.logger.Error(err, "Hub connection failed")
		}
	}
	return nil
}

func (c *Client) actionEnterStopped(_ context.Context, _ *fsm.Event) error {
	metrics.LinkStatus.Set(0)
	c.logger.Info("Client stopped")
	return nil
}

func (c *Client) transition(ctx context.Context, event string, args ...any) {
	if err := c.fsm.Event(ctx, event, args...); err != nil {
		var noTransition fsm.NoTransitionError
		if !errors.As(err, &noTransition) {
			c.logger.Error(err, "Client state transition failed", "event", event)
		}
	}
}

func (c *Client) run(ctx context.Context, rx *queue.Receiver[command.Command]) {
	defer close(c.done)
	defer c.cancel()

	hub, steering, propulsion, err := c.connect(ctx)
	if err != nil {
		rx.Close()
		if hub != nil {
			c.disconnect(hub)
		}
		c.err = err
		c.transition(context.Background(), EventFail, err)
		return
	}

	c.transition(ctx, EventConnected)

	opts := append([]dispatch.Option{dispatch.WithLogger(c.logger)}, c.cfg.DispatchOptions...)
	c.err = dispatch.New(steering, propulsion, opts...).Run(ctx, rx)

	// No consumer from here on, so later sends must fail instead of queueing.
	rx.Close()

	c.disconnect(hub)
	c.transition(context.Background(), EventStop)
}

func (c *Client) disconnect(hub link.Hub) {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	if err := hub.Disconnect(ctx); err != nil {
		c.logger.Error(err, "Failed to disconnect hub")
	}
}

// connect returns the hub alongside the error when it was connected but an
// actuator could not be resolved; the caller disconnects it.
func (c *Client) connect(ctx context.Context) (link.Hub, actuator.Actuator, actuator.Actuator, error) {
	c.logger.Info("Connecting to hub", "timeout", c.cfg.ConnectTimeout)

	hub, err := c.connector.Connect(ctx, c.cfg.Address, c.cfg.ConnectTimeout)
	if err != nil {
		return nil, nil, nil, connectionError("connect", err)
	}

	steering, err := hub.Actuator(ctx, c.cfg.SteeringPort)
	if err != nil {
		return hub, nil, nil, connectionError(fmt.Sprintf("resolve steering on port %s", c.cfg.SteeringPort), err)
	}

	propulsion, err := hub.Actuator(ctx, c.cfg.PropulsionPort)
	if err != nil {
		return hub, nil, nil, connectionError(fmt.Sprintf("resolve propulsion on port %s", c.cfg.PropulsionPort), err)
	}

	return hub, steering, propulsion, nil
}

func connectionError(stage string, err error) error {
	if errors.Is(err, link.ErrConnectionFailed) {
		return err
	}
	return link.ConnectionError(stage, err)
}

// Controls returns the control surface. It stays valid after Close; calls
// then fail with controls.ErrDispatchUnavailable.
func (c *Client) Controls() *controls.Controls {
	return c.controls
}

// Close closes the sending half of the delivery channel. Commands already
// queued are still issued, then the hub is disconnected and Done is closed.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.tx.Close()
	})
}

// Shutdown closes the client and waits for the dispatch goroutine. If ctx
// ends first, the goroutine is cancelled and ctx's error returned.
func (c *Client) Shutdown(ctx context.Context) error {
	c.Close()
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		c.cancel()
		<-c.done
		return ctx.Err()
	}
}

// Done is closed when the dispatch goroutine has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the dispatch goroutine exited: nil after a clean drain, an
// error wrapping link.ErrConnectionFailed if startup failed, or the context
// error if it was cancelled. It is only meaningful once Done is closed.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// State returns the current lifecycle state.
func (c *Client) State() string {
	return c.fsm.Current()
}

// Running reports whether commands are being dispatched.
func (c *Client) Running() bool {
	return c.State() == StateRunning
}
