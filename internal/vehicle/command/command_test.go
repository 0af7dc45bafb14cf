package command

import (
	"errors"
	"testing"

	"github.com/autopeer-io/rcbridge/internal/vehicle/actuator"
)

func TestKind(t *testing.T) {
	tests := []struct {
		cmd  Command
		want Kind
		name string
	}{
		{SteerToPosition{Target: 90}, KindSteerToPosition, "SteerToPosition"},
		{SteerUntilStopped{Power: -25}, KindSteerUntilStopped, "SteerUntilStopped"},
		{StopSteering{State: actuator.EndStateFloat}, KindStopSteering, "StopSteering"},
		{DriveUntilStopped{Power: 100}, KindDriveUntilStopped, "DriveUntilStopped"},
		{StopDrive{State: actuator.EndStateBrake}, KindStopDrive, "StopDrive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cmd.Kind(); got != tt.want {
				t.Errorf("Kind() = %v, want %v", got, tt.want)
			}
			if got := tt.cmd.Kind().String(); got != tt.name {
				t.Errorf("String() = %q, want %q", got, tt.name)
			}
			if err := Validate(tt.cmd); err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestValidateMalformed(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
	}{
		{"nil", nil},
		{"stop steering without state", StopSteering{}},
		{"stop drive without state", StopDrive{}},
		{"stop drive with unknown state", StopDrive{State: actuator.EndState(42)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(tt.cmd); !errors.Is(err, ErrMalformed) {
				t.Errorf("Validate() = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestNoRangeValidation(t *testing.T) {
	// Extreme values are the device's concern, not the encoder's.
	for _, c := range []Command{
		SteerToPosition{Target: -1 << 31},
		SteerUntilStopped{Power: -128},
		DriveUntilStopped{Power: 127},
	} {
		if err := c.Validate(); err != nil {
			t.Errorf("%s: Validate() = %v", c.Kind(), err)
		}
	}
}
