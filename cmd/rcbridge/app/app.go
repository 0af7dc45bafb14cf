package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/rcbridge/cmd/rcbridge/app/options"
	"github.com/autopeer-io/rcbridge/pkg/app"
)

const (
	commandName = "rcbridge"
	commandDesc = `rcbridge drives a remote-controlled vehicle. Press and release edges
from stdin or MQTT are turned into an ordered stream of actuator commands
for the propulsion and steering motors of a controller hub, reached either
through a BLE-to-MQTT gateway or a built-in simulator.

Input events are JSON objects, one per line on stdin:

  {"control":"forward","edge":"press"}

Run 'rcbridge keys' to list the controls.`
)

func NewApp() *app.App {
	opts := options.NewBridgeOptions()
	application := app.NewApp(
		commandName,
		"Launch the rcbridge vehicle bridge",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
		app.WithSubCommands(newKeysCommand()),
	)
	return application
}

func run(opts *options.BridgeOptions) app.RunFunc {
	return func() error {
		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config(nil)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		agent, err := cfg.NewAgent()
		if err != nil {
			return fmt.Errorf("failed to create agent: %w", err)
		}

		return agent.Run(ctx)
	}
}
