package client

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/autopeer-io/rcbridge/internal/pkg/metrics"
	"github.com/autopeer-io/rcbridge/internal/vehicle/actuator"
	"github.com/autopeer-io/rcbridge/internal/vehicle/actuator/fake"
	"github.com/autopeer-io/rcbridge/internal/vehicle/controls"
	"github.com/autopeer-io/rcbridge/internal/vehicle/link"
	"github.com/autopeer-io/rcbridge/internal/vehicle/link/sim"
)

const waitTimeout = 5 * time.Second

var testAddr = link.Address{0x90, 0x84, 0x2b, 0x4e, 0x5b, 0x96}

// gatedConnector hands out fake actuators once released.
type gatedConnector struct {
	gate       chan struct{}
	err        error
	steering   *fake.Actuator
	propulsion *fake.Actuator

	// disconnectEntered, if set, is closed when Disconnect is called.
	// disconnectHold, if set, blocks Disconnect until closed or ctx ends.
	disconnectEntered chan struct{}
	disconnectHold    chan struct{}

	mu                 sync.Mutex
	disconnected       bool
	disconnectDeadline bool
}

func newGatedConnector() *gatedConnector {
	return &gatedConnector{
		gate:       make(chan struct{}),
		steering:   fake.New(),
		propulsion: fake.New(),
	}
}

func (g *gatedConnector) Connect(ctx context.Context, addr link.Address, timeout time.Duration) (link.Hub, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if g.err != nil {
		return nil, g.err
	}
	return g, nil
}

func (g *gatedConnector) Actuator(ctx context.Context, port link.Port) (actuator.Actuator, error) {
	switch port {
	case link.PortA:
		return g.propulsion, nil
	case link.PortB:
		return g.steering, nil
	}
	return nil, link.ErrInvalidPort
}

func (g *gatedConnector) Disconnect(ctx context.Context) error {
	g.mu.Lock()
	g.disconnected = true
	_, g.disconnectDeadline = ctx.Deadline()
	g.mu.Unlock()

	if g.disconnectEntered != nil {
		close(g.disconnectEntered)
	}
	if g.disconnectHold != nil {
		select {
		case <-g.disconnectHold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (g *gatedConnector) isDisconnected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.disconnected
}

func (g *gatedConnector) hadDisconnectDeadline() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.disconnectDeadline
}

func testConfig() Config {
	return Config{
		Address:        testAddr,
		PropulsionPort: link.PortA,
		SteeringPort:   link.PortB,
	}
}

func waitDone(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(waitTimeout):
		t.Fatal("dispatch goroutine did not exit")
	}
}

func TestCommandsQueuedBeforeConnect(t *testing.T) {
	conn := newGatedConnector()
	c := New(context.Background(), conn, testConfig())

	ctl := c.Controls()
	if err := ctl.DriveUntilStopped(100); err != nil {
		t.Fatal(err)
	}
	if err := ctl.StopDrive(actuator.EndStateBrake); err != nil {
		t.Fatal(err)
	}
	if err := ctl.SteerUntilStopped(-25); err != nil {
		t.Fatal(err)
	}
	if err := ctl.StopSteer(actuator.EndStateFloat); err != nil {
		t.Fatal(err)
	}

	if got := c.State(); got != StateConnecting {
		t.Errorf("State() before connect = %q, want %q", got, StateConnecting)
	}
	if len(conn.propulsion.Calls()) != 0 {
		t.Fatal("commands issued before the hub was connected")
	}

	close(conn.gate)

	propulsion := conn.propulsion.WaitForCalls(2, waitTimeout)
	steering := conn.steering.WaitForCalls(2, waitTimeout)

	wantPropulsion := []fake.Call{
		{Op: actuator.OpStartPower, Power: 100},
		{Op: actuator.OpStop, State: actuator.EndStateBrake, Profile: actuator.ProfileAccDec},
	}
	wantSteering := []fake.Call{
		{Op: actuator.OpStartPower, Power: -25},
		{Op: actuator.OpStop, State: actuator.EndStateFloat, Profile: actuator.ProfileAccDec},
	}
	if !reflect.DeepEqual(propulsion, wantPropulsion) {
		t.Errorf("propulsion calls = %v, want %v", propulsion, wantPropulsion)
	}
	if !reflect.DeepEqual(steering, wantSteering) {
		t.Errorf("steering calls = %v, want %v", steering, wantSteering)
	}

	if got := c.State(); got != StateRunning {
		t.Errorf("State() = %q, want %q", got, StateRunning)
	}
	if got := testutil.ToFloat64(metrics.LinkStatus); got != 1 {
		t.Errorf("link status = %v, want 1", got)
	}

	c.Close()
	waitDone(t, c)

	if err := c.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
	if got := c.State(); got != StateStopped {
		t.Errorf("State() = %q, want %q", got, StateStopped)
	}
	if !conn.isDisconnected() {
		t.Error("hub not disconnected after Close")
	}
	if got := testutil.ToFloat64(metrics.LinkStatus); got != 0 {
		t.Errorf("link status = %v, want 0", got)
	}
}

func TestCloseDrainsQueue(t *testing.T) {
	conn := newGatedConnector()
	c := New(context.Background(), conn, testConfig())

	for i := 0; i < 100; i++ {
		if err := c.Controls().SteerByPosition(int32(i)); err != nil {
			t.Fatal(err)
		}
	}
	c.Close()
	c.Close()
	close(conn.gate)
	waitDone(t, c)

	calls := conn.steering.Calls()
	if len(calls) != 100 {
		t.Fatalf("got %d steering calls, want 100", len(calls))
	}
	for i, call := range calls {
		if call.Position != int32(i) {
			t.Fatalf("call %d: position %d", i, call.Position)
		}
	}
}

func TestUnavailableAfterClose(t *testing.T) {
	conn := newGatedConnector()
	close(conn.gate)
	c := New(context.Background(), conn, testConfig())
	c.Close()

	if err := c.Controls().StopDrive(actuator.EndStateBrake); !errors.Is(err, controls.ErrDispatchUnavailable) {
		t.Errorf("StopDrive() after Close = %v, want ErrDispatchUnavailable", err)
	}
	waitDone(t, c)
}

func TestUnavailableOnceLoopExits(t *testing.T) {
	conn := newGatedConnector()
	conn.disconnectEntered = make(chan struct{})
	conn.disconnectHold = make(chan struct{})
	close(conn.gate)

	ctx, cancel := context.WithCancel(context.Background())
	c := New(ctx, conn, testConfig())
	if err := c.Controls().DriveUntilStopped(100); err != nil {
		t.Fatal(err)
	}
	if calls := conn.propulsion.WaitForCalls(1, waitTimeout); len(calls) != 1 {
		t.Fatalf("propulsion calls = %v, want one start", calls)
	}

	cancel()
	select {
	case <-conn.disconnectEntered:
	case <-time.After(waitTimeout):
		t.Fatal("hub was not disconnected after cancel")
	}

	// The loop is gone but the hub is still disconnecting.
	if err := c.Controls().StopDrive(actuator.EndStateBrake); !errors.Is(err, controls.ErrDispatchUnavailable) {
		t.Errorf("StopDrive() while disconnecting = %v, want ErrDispatchUnavailable", err)
	}

	close(conn.disconnectHold)
	waitDone(t, c)

	if err := c.Err(); !errors.Is(err, context.Canceled) {
		t.Errorf("Err() = %v, want context.Canceled", err)
	}
	if n := len(conn.propulsion.Calls()); n != 1 {
		t.Errorf("propulsion saw %d calls, want 1", n)
	}
}

func TestConnectionFailure(t *testing.T) {
	conn := newGatedConnector()
	conn.err = errors.New("hub not advertising")
	close(conn.gate)

	c := New(context.Background(), conn, testConfig())
	waitDone(t, c)

	if err := c.Err(); !errors.Is(err, link.ErrConnectionFailed) {
		t.Fatalf("Err() = %v, want ErrConnectionFailed", err)
	}
	if got := c.State(); got != StateFailed {
		t.Errorf("State() = %q, want %q", got, StateFailed)
	}
	if c.Running() {
		t.Error("Running() = true after failure")
	}

	for i := 0; i < 3; i++ {
		if err := c.Controls().DriveUntilStopped(50); !errors.Is(err, controls.ErrDispatchUnavailable) {
			t.Fatalf("DriveUntilStopped() = %v, want ErrDispatchUnavailable", err)
		}
	}
}

func TestActuatorResolutionFailure(t *testing.T) {
	connector := sim.NewConnector(sim.Config{Ports: []link.Port{link.PortA}})
	c := New(context.Background(), connector, testConfig())
	waitDone(t, c)

	err := c.Err()
	if !errors.Is(err, link.ErrConnectionFailed) || !errors.Is(err, sim.ErrPortEmpty) {
		t.Fatalf("Err() = %v, want ErrConnectionFailed wrapping ErrPortEmpty", err)
	}

	h, ok := connector.Hub(testAddr)
	if !ok {
		t.Fatal("hub was never connected")
	}
	if _, err := h.Actuator(context.Background(), link.PortA); err == nil {
		t.Error("hub still connected after resolution failure")
	}
}

func TestResolutionFailureDisconnectsWithDeadline(t *testing.T) {
	conn := newGatedConnector()
	close(conn.gate)

	cfg := testConfig()
	cfg.SteeringPort = link.PortC
	c := New(context.Background(), conn, cfg)
	waitDone(t, c)

	if err := c.Err(); !errors.Is(err, link.ErrInvalidPort) {
		t.Fatalf("Err() = %v, want ErrInvalidPort", err)
	}
	if !conn.isDisconnected() {
		t.Fatal("hub not disconnected after resolution failure")
	}
	if !conn.hadDisconnectDeadline() {
		t.Error("Disconnect called without a deadline")
	}
	if err := c.Controls().SteerUntilStopped(25); !errors.Is(err, controls.ErrDispatchUnavailable) {
		t.Errorf("SteerUntilStopped() = %v, want ErrDispatchUnavailable", err)
	}
}

func TestSimulatedVehicle(t *testing.T) {
	connector := sim.NewConnector(sim.Config{})
	c := New(context.Background(), connector, testConfig())

	ctl := c.Controls()
	_ = ctl.DriveUntilStopped(-100)
	_ = ctl.SteerByPosition(45)
	_ = ctl.StopDrive(actuator.EndStateHold)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}

	h, ok := connector.Hub(testAddr)
	if !ok {
		t.Fatal("hub was never connected")
	}
	drive, _ := h.Motor(link.PortA)
	steer, _ := h.Motor(link.PortB)

	if got := drive.State(); got.Requests != 2 || got.EndState != actuator.EndStateHold || got.Power != 0 {
		t.Errorf("propulsion state = %+v", got)
	}
	if got := steer.State(); got.Requests != 1 || got.Target != 45 || !got.Seeking {
		t.Errorf("steering state = %+v", got)
	}
}

func TestShutdownCancelsStuckConnect(t *testing.T) {
	conn := newGatedConnector()
	c := New(context.Background(), conn, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown() = %v, want DeadlineExceeded", err)
	}
	if err := c.Err(); !errors.Is(err, link.ErrConnectionFailed) {
		t.Errorf("Err() = %v, want ErrConnectionFailed", err)
	}
}
