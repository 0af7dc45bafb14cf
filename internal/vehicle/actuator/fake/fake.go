// Package fake provides a recording actuator for tests.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/autopeer-io/rcbridge/internal/vehicle/actuator"
)

// Call is one recorded actuator invocation.
type Call struct {
	Op       string
	Power    int8
	State    actuator.EndState
	Profile  actuator.Profile
	Position int32
}

func (c Call) String() string {
	switch c.Op {
	case actuator.OpStartPower:
		return fmt.Sprintf("start(%d)", c.Power)
	case actuator.OpStop:
		return fmt.Sprintf("stop(%s,%s)", c.State, c.Profile)
	case actuator.OpGotoAbsolutePosition:
		return fmt.Sprintf("goto(%d)", c.Position)
	default:
		return c.Op
	}
}

// Actuator records every call. Failures can be injected per operation and
// calls can be held until Release is called.
type Actuator struct {
	mu      sync.Mutex
	calls   []Call
	fail    map[string]error
	panicOn string
	gate    chan struct{}
	changed chan struct{}
}

var _ actuator.Actuator = (*Actuator)(nil)

func New() *Actuator {
	return &Actuator{
		fail:    make(map[string]error),
		changed: make(chan struct{}, 1),
	}
}

// FailWith makes every subsequent call to op return err after recording it.
func (a *Actuator) FailWith(op string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fail[op] = err
}

// PanicOn makes every subsequent call to op panic after recording it.
func (a *Actuator) PanicOn(op string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.panicOn = op
}

// Hold blocks every subsequent call until Release or the call's context ends.
func (a *Actuator) Hold() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gate = make(chan struct{})
}

// Release unblocks held calls.
func (a *Actuator) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gate != nil {
		close(a.gate)
		a.gate = nil
	}
}

func (a *Actuator) StartPower(ctx context.Context, power int8) error {
	return a.record(ctx, Call{Op: actuator.OpStartPower, Power: power})
}

func (a *Actuator) Stop(ctx context.Context, state actuator.EndState, profile actuator.Profile) error {
	return a.record(ctx, Call{Op: actuator.OpStop, State: state, Profile: profile})
}

func (a *Actuator) GotoAbsolutePosition(ctx context.Context, position int32) error {
	return a.record(ctx, Call{Op: actuator.OpGotoAbsolutePosition, Position: position})
}

// Calls returns a copy of the recorded calls in issue order.
func (a *Actuator) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Call(nil), a.calls...)
}

// WaitForCalls blocks until at least n calls were recorded or timeout
// elapses, and returns the calls seen so far.
func (a *Actuator) WaitForCalls(n int, timeout time.Duration) []Call {
	deadline := time.After(timeout)
	for {
		calls := a.Calls()
		if len(calls) >= n {
			return calls
		}
		select {
		case <-a.changed:
		case <-deadline:
			return calls
		}
	}
}

func (a *Actuator) record(ctx context.Context, c Call) error {
	a.mu.Lock()
	a.calls = append(a.calls, c)
	err := a.fail[c.Op]
	shouldPanic := a.panicOn == c.Op
	gate := a.gate
	a.mu.Unlock()

	select {
	case a.changed <- struct{}{}:
	default:
	}

	if shouldPanic {
		panic(fmt.Sprintf("fake actuator: %s", c))
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return actuator.RequestError(c.Op, ctx.Err())
		}
	}

	if err != nil {
		return actuator.RequestError(c.Op, err)
	}
	return nil
}
