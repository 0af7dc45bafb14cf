package options

import (
	"bytes"
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*HubOptions)(nil)

// Hub link drivers.
const (
	DriverSim  = "sim"
	DriverMQTT = "mqtt"
)

var (
	hubPorts     = []string{"A", "B", "C", "D"}
	stopProfiles = []string{"none", "acceleration", "deceleration", "accdec"}
)

// HubOptions describes the controller hub and how commands reach it.
type HubOptions struct {
	// Driver selects the hardware link: "sim" or "mqtt".
	Driver string `json:"driver" mapstructure:"driver"`

	// Address is the hub's hardware address, e.g. 90:84:2b:4e:5b:96.
	Address string `json:"address" mapstructure:"address"`

	PropulsionPort string `json:"propulsion-port" mapstructure:"propulsion-port"`
	SteeringPort   string `json:"steering-port" mapstructure:"steering-port"`

	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`

	// RequestTimeout bounds how long a single actuator request may take to
	// issue. Zero disables the bound.
	RequestTimeout time.Duration `json:"request-timeout" mapstructure:"request-timeout"`

	// StopProfile is applied to every stop request.
	StopProfile string `json:"stop-profile" mapstructure:"stop-profile"`

	// SimLatency is added to every request by the sim driver.
	SimLatency time.Duration `json:"sim-latency" mapstructure:"sim-latency"`
}

// NewHubOptions creates a HubOptions object with default parameters.
func NewHubOptions() *HubOptions {
	return &HubOptions{
		Driver:         DriverSim,
		Address:        "90:84:2b:4e:5b:96",
		PropulsionPort: "A",
		SteeringPort:   "B",
		ConnectTimeout: 10 * time.Second,
		RequestTimeout: 2 * time.Second,
		StopProfile:    "accdec",
		SimLatency:     20 * time.Millisecond,
	}
}

func (o *HubOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	if o.Driver != DriverSim && o.Driver != DriverMQTT {
		errs = append(errs, fmt.Errorf("invalid hub driver %q, must be %q or %q", o.Driver, DriverSim, DriverMQTT))
	}
	if hw, err := net.ParseMAC(o.Address); err != nil || len(hw) != 6 || strings.Count(o.Address, ":") != 5 {
		errs = append(errs, fmt.Errorf("invalid hub address %q, want six colon-separated hex octets", o.Address))
	} else if bytes.Equal(hw, make(net.HardwareAddr, 6)) {
		errs = append(errs, fmt.Errorf("invalid hub address %q, must not be all zero", o.Address))
	}

	propulsion, steering := strings.ToUpper(o.PropulsionPort), strings.ToUpper(o.SteeringPort)
	if !slices.Contains(hubPorts, propulsion) {
		errs = append(errs, fmt.Errorf("invalid propulsion port %q, must be one of %v", o.PropulsionPort, hubPorts))
	}
	if !slices.Contains(hubPorts, steering) {
		errs = append(errs, fmt.Errorf("invalid steering port %q, must be one of %v", o.SteeringPort, hubPorts))
	}
	if propulsion == steering && slices.Contains(hubPorts, propulsion) {
		errs = append(errs, fmt.Errorf("propulsion and steering share port %s", propulsion))
	}

	if !slices.Contains(stopProfiles, strings.ToLower(o.StopProfile)) {
		errs = append(errs, fmt.Errorf("invalid stop profile %q, must be one of %v", o.StopProfile, stopProfiles))
	}
	if o.ConnectTimeout < 0 || o.RequestTimeout < 0 || o.SimLatency < 0 {
		errs = append(errs, fmt.Errorf("hub timeouts and latency must not be negative"))
	}

	return errs
}

func (o *HubOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Driver, "hub.driver", o.Driver, "Hardware link driver: 'sim' or 'mqtt'.")
	fs.StringVar(&o.Address, "hub.address", o.Address, "Hardware address of the controller hub.")
	fs.StringVar(&o.PropulsionPort, "hub.propulsion-port", o.PropulsionPort, "Hub port of the propulsion motor (A-D).")
	fs.StringVar(&o.SteeringPort, "hub.steering-port", o.SteeringPort, "Hub port of the steering motor (A-D).")
	fs.DurationVar(&o.ConnectTimeout, "hub.connect-timeout", o.ConnectTimeout, "Timeout for connecting to the hub.")
	fs.DurationVar(&o.RequestTimeout, "hub.request-timeout", o.RequestTimeout, "Per-request issue timeout, 0 to wait forever.")
	fs.StringVar(&o.StopProfile, "hub.stop-profile", o.StopProfile, "Profile used for stop requests (none, acceleration, deceleration, accdec).")
	fs.DurationVar(&o.SimLatency, "hub.sim-latency", o.SimLatency, "Request latency of the sim driver.")
}
