// Package link describes the hardware link to a controller hub: connecting
// by hardware address and resolving the actuators plugged into its ports.
package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/autopeer-io/rcbridge/internal/vehicle/actuator"
)

var (
	// ErrConnectionFailed is wrapped by every error raised while connecting
	// to a hub or resolving its actuators.
	ErrConnectionFailed = errors.New("link connection failed")

	ErrInvalidAddress = errors.New("invalid hardware address")
	ErrInvalidPort    = errors.New("invalid hub port")
)

// Connector establishes hub connections.
type Connector interface {
	// Connect connects to the hub at addr, giving up after timeout.
	Connect(ctx context.Context, addr Address, timeout time.Duration) (Hub, error)
}

// Hub is a live connection to a controller hub.
type Hub interface {
	// Actuator resolves the motor attached to port.
	Actuator(ctx context.Context, port Port) (actuator.Actuator, error)

	// Disconnect releases the connection.
	Disconnect(ctx context.Context) error
}

// Address is a 6-octet hardware address, e.g. 90:84:2b:4e:5b:96.
type Address [6]byte

// ParseAddress parses a colon-hex hardware address.
func ParseAddress(s string) (Address, error) {
	var a Address
	if strings.Count(s, ":") != 5 {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	hw, err := net.ParseMAC(s)
	if err != nil || len(hw) != len(a) {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	copy(a[:], hw)
	return a, nil
}

// String returns the lower-case colon-hex form.
func (a Address) String() string {
	return net.HardwareAddr(a[:]).String()
}

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Port is a connector slot on the hub.
type Port uint8

const (
	PortA Port = iota
	PortB
	PortC
	PortD
)

// ParsePort parses a port letter, case-insensitively.
func ParsePort(s string) (Port, error) {
	if len(s) == 1 {
		c := s[0] | 0x20
		if c >= 'a' && c <= 'd' {
			return Port(c - 'a'), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPort, s)
}

func (p Port) String() string {
	if p <= PortD {
		return string(rune('A' + p))
	}
	return fmt.Sprintf("Port(%d)", uint8(p))
}

// Valid reports whether p is a known port.
func (p Port) Valid() bool {
	return p <= PortD
}

// ConnectionError wraps ErrConnectionFailed with the failing stage.
func ConnectionError(stage string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, stage, err)
}
