package options

import (
	"io"

	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/rcbridge/internal/rcagent"
	"github.com/autopeer-io/rcbridge/pkg/app"
	"github.com/autopeer-io/rcbridge/pkg/log"
	"github.com/autopeer-io/rcbridge/pkg/options"
)

type BridgeOptions struct {
	HubOptions   *options.HubOptions   `json:"hub" mapstructure:"hub"`
	InputOptions *options.InputOptions `json:"input" mapstructure:"input"`
	MqttOptions  *options.MqttOptions  `json:"mqtt" mapstructure:"mqtt"`
	HttpOptions  *options.HttpOptions  `json:"http" mapstructure:"http"`
	Log          *log.Options          `json:"log" mapstructure:"log"`
}

var (
	_ app.NamedFlagSetOptions = (*BridgeOptions)(nil)
	_ app.LogOptionsProvider  = (*BridgeOptions)(nil)
)

func NewBridgeOptions() *BridgeOptions {
	o := &BridgeOptions{
		HubOptions:   options.NewHubOptions(),
		InputOptions: options.NewInputOptions(),
		MqttOptions:  options.NewMqttOptions(),
		HttpOptions:  options.NewHttpOptions(),
		Log:          log.NewOptions(),
	}

	return o
}

func (o *BridgeOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.HubOptions.AddFlags(fss.FlagSet("hub"))
	o.InputOptions.AddFlags(fss.FlagSet("input"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.Log.AddFlags(fss.FlagSet("Log"))
	return fss
}

func (o *BridgeOptions) Complete() error {
	return nil
}

// Validate skips the MQTT options unless a component uses the broker.
func (o *BridgeOptions) Validate() error {
	groups := [][]error{
		o.HubOptions.Validate(),
		o.InputOptions.Validate(),
		o.HttpOptions.Validate(),
		o.Log.Validate(),
	}
	if o.usesMqtt() {
		groups = append(groups, o.MqttOptions.Validate())
	}
	return app.AggregateErrors(groups...)
}

func (o *BridgeOptions) LogOptions() *log.Options {
	return o.Log
}

func (o *BridgeOptions) usesMqtt() bool {
	return o.HubOptions.Driver == options.DriverMQTT || o.InputOptions.Source == options.InputMQTT
}

func (o *BridgeOptions) Config(stdin io.Reader) (*rcagent.Config, error) {
	return &rcagent.Config{
		HubOptions:   o.HubOptions,
		InputOptions: o.InputOptions,
		MqttOptions:  o.MqttOptions,
		HttpOptions:  o.HttpOptions,
		Stdin:        stdin,
	}, nil
}
