package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*InputOptions)(nil)

// Input sources.
const (
	InputStdin = "stdin"
	InputMQTT  = "mqtt"
	InputNone  = "none"
)

// InputOptions configures where input edges come from and how they map to
// power values.
type InputOptions struct {
	// Source is "stdin", "mqtt" or "none".
	Source string `json:"source" mapstructure:"source"`

	// VehicleID names the vehicle in MQTT topics.
	VehicleID string `json:"vehicle-id" mapstructure:"vehicle-id"`

	DrivePower int8 `json:"drive-power" mapstructure:"drive-power"`
	SteerPower int8 `json:"steer-power" mapstructure:"steer-power"`
}

func NewInputOptions() *InputOptions {
	return &InputOptions{
		Source:     InputStdin,
		VehicleID:  "vh-001",
		DrivePower: 100,
		SteerPower: 25,
	}
}

func (o *InputOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	switch o.Source {
	case InputStdin, InputNone:
	case InputMQTT:
		if o.VehicleID == "" {
			errs = append(errs, fmt.Errorf("input.vehicle-id is required for the mqtt source"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid input source %q", o.Source))
	}
	if o.DrivePower < 1 || o.DrivePower > 100 {
		errs = append(errs, fmt.Errorf("input.drive-power must be in [1, 100], got %d", o.DrivePower))
	}
	if o.SteerPower < 1 || o.SteerPower > 100 {
		errs = append(errs, fmt.Errorf("input.steer-power must be in [1, 100], got %d", o.SteerPower))
	}

	return errs
}

func (o *InputOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Source, "input.source", o.Source, "Input source: 'stdin' (JSON lines), 'mqtt' or 'none'.")
	fs.StringVar(&o.VehicleID, "input.vehicle-id", o.VehicleID, "Vehicle ID used in the input and online topics.")
	fs.Int8Var(&o.DrivePower, "input.drive-power", o.DrivePower, "Power applied while forward or reverse is held.")
	fs.Int8Var(&o.SteerPower, "input.steer-power", o.SteerPower, "Power applied while a steering control is held.")
}
