// Package sim is an in-process stand-in for a controller hub. It is the
// default link driver when no hardware is attached, and keeps enough motor
// state to be inspected from tests.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/rcbridge/internal/vehicle/actuator"
	"github.com/autopeer-io/rcbridge/internal/vehicle/link"
	"github.com/autopeer-io/rcbridge/pkg/log"
)

// ErrPortEmpty is returned when no motor is attached to the requested port.
var ErrPortEmpty = errors.New("no motor attached")

// Config tunes the simulated hub.
type Config struct {
	// Latency is added to connecting and to every motor request.
	Latency time.Duration

	// Ports lists the ports with a motor attached. Empty means all ports.
	Ports []link.Port

	// Clock drives the latency timers. Defaults to the real clock.
	Clock clock.Clock

	Logger log.Logger
}

// Connector creates simulated hubs.
type Connector struct {
	cfg Config

	mu   sync.Mutex
	hubs map[link.Address]*Hub
}

var _ link.Connector = (*Connector)(nil)

func NewConnector(cfg Config) *Connector {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNopLogger()
	}
	if len(cfg.Ports) == 0 {
		cfg.Ports = []link.Port{link.PortA, link.PortB, link.PortC, link.PortD}
	}
	return &Connector{cfg: cfg, hubs: make(map[link.Address]*Hub)}
}

func (c *Connector) Connect(ctx context.Context, addr link.Address, timeout time.Duration) (link.Hub, error) {
	if addr.IsZero() {
		return nil, link.ConnectionError("connect", fmt.Errorf("%w: zero address", link.ErrInvalidAddress))
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	c.cfg.Logger.Info("[Sim] Connecting to hub", "address", addr.String())
	if err := c.wait(ctx); err != nil {
		return nil, link.ConnectionError("connect", err)
	}

	h := &Hub{
		addr:   addr,
		cfg:    c.cfg,
		motors: make(map[link.Port]*Motor, len(c.cfg.Ports)),
	}
	for _, p := range c.cfg.Ports {
		h.motors[p] = &Motor{port: p, hub: h}
	}

	c.mu.Lock()
	c.hubs[addr] = h
	c.mu.Unlock()

	c.cfg.Logger.Info("[Sim] Hub connected", "address", addr.String(), "ports", len(h.motors))
	return h, nil
}

// Hub returns the last hub connected at addr, if any.
func (c *Connector) Hub(addr link.Address) (*Hub, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.hubs[addr]
	return h, ok
}

func (c *Connector) wait(ctx context.Context) error {
	return sleep(ctx, c.cfg.Clock, c.cfg.Latency)
}

// Hub is a simulated hub connection.
type Hub struct {
	addr link.Address
	cfg  Config

	mu           sync.Mutex
	motors       map[link.Port]*Motor
	disconnected bool
}

var _ link.Hub = (*Hub)(nil)

func (h *Hub) Actuator(ctx context.Context, port link.Port) (actuator.Actuator, error) {
	if !port.Valid() {
		return nil, link.ConnectionError("resolve actuator", fmt.Errorf("%w: %s", link.ErrInvalidPort, port))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disconnected {
		return nil, link.ConnectionError("resolve actuator", errors.New("hub disconnected"))
	}
	m, ok := h.motors[port]
	if !ok {
		return nil, link.ConnectionError("resolve actuator", fmt.Errorf("%w: port %s", ErrPortEmpty, port))
	}
	return m, nil
}

// Motor returns the simulated motor on port, for inspection.
func (h *Hub) Motor(port link.Port) (*Motor, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.motors[port]
	return m, ok
}

func (h *Hub) Disconnect(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected = true
	h.cfg.Logger.Info("[Sim] Hub disconnected", "address", h.addr.String())
	return nil
}

func (h *Hub) connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.disconnected
}

// MotorState is a snapshot of a simulated motor.
type MotorState struct {
	Power    int8
	Target   int32
	Seeking  bool
	EndState actuator.EndState
	Requests int
}

// Motor is a simulated motor.
type Motor struct {
	port link.Port
	hub  *Hub

	mu    sync.Mutex
	state MotorState
}

var _ actuator.Actuator = (*Motor)(nil)

func (m *Motor) StartPower(ctx context.Context, power int8) error {
	return m.request(ctx, actuator.OpStartPower, func(s *MotorState) {
		s.Power = power
		s.Seeking = false
	}, "power", power)
}

func (m *Motor) Stop(ctx context.Context, state actuator.EndState, profile actuator.Profile) error {
	if !state.Valid() {
		return actuator.RequestError(actuator.OpStop, fmt.Errorf("invalid end state %s", state))
	}
	return m.request(ctx, actuator.OpStop, func(s *MotorState) {
		s.Power = 0
		s.Seeking = false
		s.EndState = state
	}, "endState", state, "profile", profile)
}

func (m *Motor) GotoAbsolutePosition(ctx context.Context, position int32) error {
	return m.request(ctx, actuator.OpGotoAbsolutePosition, func(s *MotorState) {
		s.Power = 0
		s.Target = position
		s.Seeking = true
	}, "position", position)
}

// State returns a snapshot of the motor.
func (m *Motor) State() MotorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Motor) request(ctx context.Context, op string, apply func(*MotorState), keysAndValues ...any) error {
	if !m.hub.connected() {
		return actuator.RequestError(op, errors.New("hub disconnected"))
	}
	if err := sleep(ctx, m.hub.cfg.Clock, m.hub.cfg.Latency); err != nil {
		return actuator.RequestError(op, err)
	}

	m.mu.Lock()
	apply(&m.state)
	m.state.Requests++
	m.mu.Unlock()

	m.hub.cfg.Logger.Debug("[Sim] Motor request issued", append([]any{"port", m.port.String(), "op", op}, keysAndValues...)...)
	return nil
}

func sleep(ctx context.Context, c clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := c.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
