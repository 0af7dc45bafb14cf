package input

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/autopeer-io/rcbridge/internal/pkg/metrics"
	"github.com/autopeer-io/rcbridge/internal/vehicle/actuator"
	"github.com/autopeer-io/rcbridge/internal/vehicle/command"
	"github.com/autopeer-io/rcbridge/internal/vehicle/controls"
	"github.com/autopeer-io/rcbridge/internal/vehicle/queue"
	"github.com/autopeer-io/rcbridge/pkg/mqtt/fake"
	"github.com/autopeer-io/rcbridge/pkg/mqtt/topic"
)

type recorder struct {
	tx *queue.Sender[command.Command]
	rx *queue.Receiver[command.Command]
}

func newRecorder() (*recorder, *controls.Controls) {
	r := &recorder{}
	r.tx, r.rx = queue.New[command.Command]()
	return r, controls.New(r.tx, nil)
}

// drain closes the sending half and returns everything queued.
func (r *recorder) drain(t *testing.T) []command.Command {
	t.Helper()
	r.tx.Close()
	var out []command.Command
	for {
		cmd, err := r.rx.Recv(context.Background())
		if errors.Is(err, queue.ErrClosed) {
			return out
		}
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, cmd)
	}
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		payload string
		want    Event
		wantErr error
	}{
		{`{"control":"forward","edge":"press"}`, Press(ControlForward), nil},
		{`{"control":"steer-left","edge":"release"}`, Release(ControlSteerLeft), nil},
		{`{"control":"jump","edge":"press"}`, Event{}, ErrUnknownControl},
		{`{"control":"abort","edge":"hold"}`, Event{}, ErrUnknownEdge},
	}
	for _, tt := range tests {
		got, err := ParseEvent([]byte(tt.payload))
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("ParseEvent(%s) error = %v, want %v", tt.payload, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseEvent(%s) = %v, want %v", tt.payload, got, tt.want)
		}
	}

	if _, err := ParseEvent([]byte(`not json`)); err == nil {
		t.Error("ParseEvent() accepted invalid JSON")
	}
}

func TestMapperKeyMap(t *testing.T) {
	r, ctl := newRecorder()
	m := NewMapper(ctl)

	events := []Event{
		Press(ControlForward), Release(ControlForward),
		Press(ControlReverse), Release(ControlReverse),
		Press(ControlSteerLeft), Release(ControlSteerLeft),
		Press(ControlSteerRight), Release(ControlSteerRight),
	}
	for _, e := range events {
		if err := m.Handle(e); err != nil {
			t.Fatalf("Handle(%s) = %v", e, err)
		}
	}

	want := []command.Command{
		command.DriveUntilStopped{Power: 100},
		command.StopDrive{State: actuator.EndStateFloat},
		command.DriveUntilStopped{Power: -100},
		command.StopDrive{State: actuator.EndStateFloat},
		command.SteerUntilStopped{Power: -25},
		command.StopSteering{State: actuator.EndStateFloat},
		command.SteerUntilStopped{Power: 25},
		command.StopSteering{State: actuator.EndStateFloat},
	}
	if got := r.drain(t); !reflect.DeepEqual(got, want) {
		t.Errorf("commands = %v, want %v", got, want)
	}
}

func TestMapperDeduplicatesEdges(t *testing.T) {
	r, ctl := newRecorder()
	m := NewMapper(ctl, WithDrivePower(60), WithSteerPower(10))

	dropped := testutil.ToFloat64(metrics.InputEvents.WithLabelValues("forward", "press", "false"))

	// Key repeat while held, then a stray release.
	for _, e := range []Event{
		Press(ControlForward), Press(ControlForward), Press(ControlForward),
		Release(ControlForward), Release(ControlForward),
		Release(ControlSteerRight),
		Press(ControlSteerRight),
	} {
		if err := m.Handle(e); err != nil {
			t.Fatal(err)
		}
	}

	want := []command.Command{
		command.DriveUntilStopped{Power: 60},
		command.StopDrive{State: actuator.EndStateFloat},
		command.SteerUntilStopped{Power: 10},
	}
	if got := r.drain(t); !reflect.DeepEqual(got, want) {
		t.Errorf("commands = %v, want %v", got, want)
	}
	if got := testutil.ToFloat64(metrics.InputEvents.WithLabelValues("forward", "press", "false")) - dropped; got != 2 {
		t.Errorf("dropped forward presses = %v, want 2", got)
	}
}

func TestMapperAbort(t *testing.T) {
	r, ctl := newRecorder()
	m := NewMapper(ctl)

	if err := m.Handle(Press(ControlForward)); err != nil {
		t.Fatal(err)
	}
	if err := m.Handle(Press(ControlAbort)); !errors.Is(err, ErrAborted) {
		t.Fatalf("abort = %v, want ErrAborted", err)
	}
	if err := m.Handle(Release(ControlForward)); !errors.Is(err, ErrAborted) {
		t.Errorf("after abort = %v, want ErrAborted", err)
	}

	want := []command.Command{
		command.DriveUntilStopped{Power: 100},
		command.StopDrive{State: actuator.EndStateBrake},
		command.StopSteering{State: actuator.EndStateBrake},
	}
	if got := r.drain(t); !reflect.DeepEqual(got, want) {
		t.Errorf("commands = %v, want %v", got, want)
	}
}

func TestMapperDispatchUnavailable(t *testing.T) {
	r, ctl := newRecorder()
	r.rx.Close()
	m := NewMapper(ctl)

	if err := m.Handle(Press(ControlReverse)); !errors.Is(err, controls.ErrDispatchUnavailable) {
		t.Errorf("Handle() = %v, want ErrDispatchUnavailable", err)
	}
}

func TestPump(t *testing.T) {
	t.Run("end of input", func(t *testing.T) {
		r, ctl := newRecorder()
		src := NewSliceSource(Press(ControlSteerLeft), Event{Control: "jump", Edge: EdgePress}, Release(ControlSteerLeft))
		if err := Pump(context.Background(), src, NewMapper(ctl)); err != nil {
			t.Fatalf("Pump() = %v", err)
		}
		if got := r.drain(t); len(got) != 2 {
			t.Errorf("got %d commands, want 2", len(got))
		}
	})

	t.Run("abort stops the pump", func(t *testing.T) {
		r, ctl := newRecorder()
		src := NewSliceSource(Press(ControlForward), Press(ControlAbort), Press(ControlReverse))
		if err := Pump(context.Background(), src, NewMapper(ctl)); err != nil {
			t.Fatalf("Pump() = %v", err)
		}
		if got := r.drain(t); len(got) != 3 {
			t.Errorf("got %d commands, want 3", len(got))
		}
	})

	t.Run("abort with dispatch gone", func(t *testing.T) {
		r, ctl := newRecorder()
		r.rx.Close()
		err := Pump(context.Background(), NewSliceSource(Press(ControlAbort)), NewMapper(ctl))
		if !errors.Is(err, controls.ErrDispatchUnavailable) || errors.Is(err, ErrAborted) {
			t.Errorf("Pump() = %v, want ErrDispatchUnavailable only", err)
		}
	})

	t.Run("dispatch gone", func(t *testing.T) {
		r, ctl := newRecorder()
		r.rx.Close()
		err := Pump(context.Background(), NewSliceSource(Press(ControlForward)), NewMapper(ctl))
		if !errors.Is(err, controls.ErrDispatchUnavailable) {
			t.Errorf("Pump() = %v, want ErrDispatchUnavailable", err)
		}
	})

	t.Run("context", func(t *testing.T) {
		_, ctl := newRecorder()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := Pump(ctx, NewSliceSource(Press(ControlForward)), NewMapper(ctl)); !errors.Is(err, context.Canceled) {
			t.Errorf("Pump() = %v, want context.Canceled", err)
		}
	})
}

func TestReaderSource(t *testing.T) {
	in := strings.NewReader(`{"control":"forward","edge":"press"}

garbage
{"control":"forward","edge":"release"}
`)
	src := NewReaderSource(in, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []Event
	for {
		e, err := src.Next(ctx)
		if errors.Is(err, ErrSourceClosed) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, e)
	}

	want := []Event{Press(ControlForward), Release(ControlForward)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestMQTTSource(t *testing.T) {
	mc := fake.New()
	ctx := context.Background()
	src, err := NewMQTTSource(ctx, mc, topic.NewBuilder("rc/v1"), "vh-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if src.Topic() != "rc/v1/input/vh-1" || !mc.Subscribed(src.Topic()) {
		t.Fatalf("not subscribed to %s", src.Topic())
	}

	mc.Deliver(ctx, src.Topic(), []byte(`{"control":"steer-right","edge":"press"}`))
	mc.Deliver(ctx, src.Topic(), []byte(`{"control":"steer-right"}`))
	mc.Deliver(ctx, src.Topic(), []byte(`{"control":"steer-right","edge":"release"}`))
	if mc.Deliver(ctx, "rc/v1/input/vh-2", []byte(`{"control":"abort","edge":"press"}`)) {
		t.Error("delivered a message for another vehicle")
	}

	if err := src.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if mc.Subscribed(src.Topic()) {
		t.Error("still subscribed after Close")
	}

	r, ctl := newRecorder()
	if err := Pump(ctx, src, NewMapper(ctl)); err != nil {
		t.Fatalf("Pump() = %v", err)
	}
	want := []command.Command{
		command.SteerUntilStopped{Power: 25},
		command.StopSteering{State: actuator.EndStateFloat},
	}
	if got := r.drain(t); !reflect.DeepEqual(got, want) {
		t.Errorf("commands = %v, want %v", got, want)
	}
}

func TestBindings(t *testing.T) {
	b := NewMapper(nil, WithDrivePower(80)).Bindings()
	if len(b) != len(Controls) {
		t.Fatalf("got %d bindings, want %d", len(b), len(Controls))
	}
	if b[1].Control != ControlReverse || b[1].OnPress != "DriveUntilStopped(-80)" {
		t.Errorf("reverse binding = %+v", b[1])
	}
}
