package rcagent

import (
	"errors"
	"testing"
	"time"

	"github.com/autopeer-io/rcbridge/internal/vehicle/link"
	"github.com/autopeer-io/rcbridge/pkg/options"
)

func TestNewClientConfig(t *testing.T) {
	o := options.NewHubOptions()
	o.Address = "90:84:2B:4E:5B:97"
	o.PropulsionPort = "c"
	o.SteeringPort = "D"
	o.ConnectTimeout = 3 * time.Second

	cfg, err := newClientConfig(o)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Address.String(); got != "90:84:2b:4e:5b:97" {
		t.Errorf("Address = %s", got)
	}
	if cfg.PropulsionPort != link.PortC || cfg.SteeringPort != link.PortD {
		t.Errorf("ports = %s, %s", cfg.PropulsionPort, cfg.SteeringPort)
	}
	if cfg.ConnectTimeout != 3*time.Second {
		t.Errorf("ConnectTimeout = %v", cfg.ConnectTimeout)
	}
	if len(cfg.DispatchOptions) != 2 {
		t.Errorf("got %d dispatch options, want 2", len(cfg.DispatchOptions))
	}
}

func TestNewClientConfigRejectsUnparsedOptions(t *testing.T) {
	tests := map[string]func(o *options.HubOptions){
		"address": func(o *options.HubOptions) { o.Address = "hub-1" },
		"port":    func(o *options.HubOptions) { o.SteeringPort = "E" },
		"profile": func(o *options.HubOptions) { o.StopProfile = "smooth" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			o := options.NewHubOptions()
			mutate(o)
			if _, err := newClientConfig(o); err == nil {
				t.Error("newClientConfig() = nil error")
			}
		})
	}

	o := options.NewHubOptions()
	o.PropulsionPort = "Z"
	if _, err := newClientConfig(o); !errors.Is(err, link.ErrInvalidPort) {
		t.Errorf("newClientConfig() = %v, want ErrInvalidPort", err)
	}
}
