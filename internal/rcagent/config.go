package rcagent

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/autopeer-io/rcbridge/internal/pkg/metrics"
	"github.com/autopeer-io/rcbridge/internal/pkg/mqtt/paths"
	httpserver "github.com/autopeer-io/rcbridge/internal/pkg/server/http"
	"github.com/autopeer-io/rcbridge/internal/vehicle/actuator"
	"github.com/autopeer-io/rcbridge/internal/vehicle/client"
	"github.com/autopeer-io/rcbridge/internal/vehicle/dispatch"
	"github.com/autopeer-io/rcbridge/internal/vehicle/link"
	"github.com/autopeer-io/rcbridge/internal/vehicle/link/mqttlink"
	"github.com/autopeer-io/rcbridge/internal/vehicle/link/sim"
	"github.com/autopeer-io/rcbridge/pkg/log"
	"github.com/autopeer-io/rcbridge/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/rcbridge/pkg/mqtt/topic"
	"github.com/autopeer-io/rcbridge/pkg/options"
)

// Config is the validated configuration of an Agent.
type Config struct {
	HubOptions   *options.HubOptions
	InputOptions *options.InputOptions
	MqttOptions  *options.MqttOptions
	HttpOptions  *options.HttpOptions

	// Stdin feeds the stdin input source. Defaults to os.Stdin.
	Stdin io.Reader
}

// onlineStatus is published retained on {root}/online/{vehicleID}.
type onlineStatus struct {
	VehicleID string `json:"vehicleId"`
	Online    bool   `json:"online"`
	Reason    string `json:"reason,omitempty"`
}

func (cfg *Config) NewAgent() (*Agent, error) {
	clientConfig, err := newClientConfig(cfg.HubOptions)
	if err != nil {
		return nil, fmt.Errorf("invalid hub options: %w", err)
	}

	a := &Agent{
		vehicleID: cfg.InputOptions.VehicleID,
		input:     cfg.InputOptions,
		stdin:     cfg.Stdin,
		logger:    log.WithName("agent"),
	}
	if a.stdin == nil {
		a.stdin = os.Stdin
	}

	if cfg.HubOptions.Driver == options.DriverMQTT || cfg.InputOptions.Source == options.InputMQTT {
		mc, topics, err := cfg.initMqttClientAndTopicBuilder()
		if err != nil {
			return nil, fmt.Errorf("failed to init mqtt client: %w", err)
		}
		a.mc, a.topics = mc, topics
	}

	switch cfg.HubOptions.Driver {
	case options.DriverMQTT:
		a.connector = mqttlink.NewConnector(a.mc, a.topics, log.WithName("mqttlink"))
	default:
		a.connector = sim.NewConnector(sim.Config{
			Latency: cfg.HubOptions.SimLatency,
			Logger:  log.WithName("sim"),
		})
	}

	a.clientConfig = clientConfig

	a.http = httpserver.NewServer(cfg.HttpOptions, a.ready, metrics.Registry)
	return a, nil
}

// newClientConfig turns the string-typed hub options into a client.Config.
func newClientConfig(o *options.HubOptions) (client.Config, error) {
	addr, err := link.ParseAddress(o.Address)
	if err != nil {
		return client.Config{}, err
	}
	propulsion, err := link.ParsePort(o.PropulsionPort)
	if err != nil {
		return client.Config{}, fmt.Errorf("propulsion port: %w", err)
	}
	steering, err := link.ParsePort(o.SteeringPort)
	if err != nil {
		return client.Config{}, fmt.Errorf("steering port: %w", err)
	}
	profile, err := actuator.ParseProfile(o.StopProfile)
	if err != nil {
		return client.Config{}, err
	}

	return client.Config{
		Address:        addr,
		PropulsionPort: propulsion,
		SteeringPort:   steering,
		ConnectTimeout: o.ConnectTimeout,
		DispatchOptions: []dispatch.Option{
			dispatch.WithStopProfile(profile),
			dispatch.WithRequestTimeout(o.RequestTimeout),
		},
		Logger: log.WithName("client"),
	}, nil
}

func (cfg *Config) initMqttClientAndTopicBuilder() (mqtt.Client, *mqtttopic.Builder, error) {
	vid := cfg.InputOptions.VehicleID
	topicBuilder := mqtttopic.NewBuilder(cfg.MqttOptions.TopicRoot)

	mqttConfig := cfg.MqttOptions.ToClientConfig()
	if mqttConfig.ClientID == "" {
		mqttConfig.ClientID = fmt.Sprintf("rcbridge-%s", vid)
	}

	offlinePayload, _ := json.Marshal(onlineStatus{
		VehicleID: vid,
		Online:    false,
		Reason:    "UnexpectedDisconnect",
	})

	mqttConfig.WillTopic = topicBuilder.Build(paths.Online, vid)
	mqttConfig.WillPayload = offlinePayload
	mqttConfig.WillQoS = 1
	mqttConfig.WillRetain = true

	mqttClient, err := mqtt.NewClient(mqttConfig)
	if err != nil {
		return nil, nil, err
	}

	return mqttClient, topicBuilder, nil
}
