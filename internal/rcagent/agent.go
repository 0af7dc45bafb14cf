// Package rcagent runs one vehicle: the hardware link, the dispatch client,
// the input pump and the health and metrics server.
package rcagent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/rcbridge/internal/pkg/mqtt/paths"
	httpserver "github.com/autopeer-io/rcbridge/internal/pkg/server/http"
	"github.com/autopeer-io/rcbridge/internal/vehicle/client"
	"github.com/autopeer-io/rcbridge/internal/vehicle/controls"
	"github.com/autopeer-io/rcbridge/internal/vehicle/input"
	"github.com/autopeer-io/rcbridge/internal/vehicle/link"
	"github.com/autopeer-io/rcbridge/pkg/log"
	"github.com/autopeer-io/rcbridge/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/rcbridge/pkg/mqtt/topic"
	"github.com/autopeer-io/rcbridge/pkg/options"
)

const shutdownTimeout = 10 * time.Second

type Agent struct {
	vehicleID string
	input     *options.InputOptions
	stdin     io.Reader
	logger    log.Logger

	mc     mqtt.Client
	topics *mqtttopic.Builder

	connector    link.Connector
	clientConfig client.Config
	http         *httpserver.Server

	client atomic.Pointer[client.Client]
}

// Run blocks until ctx ends, the input source ends or the hub connection
// fails. Commands queued when input ends are still issued before Run returns.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.logger.Info("Starting rcbridge", "vehicleID", a.vehicleID, "address", a.clientConfig.Address.String())

	if a.mc != nil {
		if err := a.mc.Start(ctx); err != nil {
			return err
		}
		defer a.stopMqtt()
		go a.announce(ctx)
	}

	// The dispatch goroutine outlives ctx so queued commands drain on shutdown.
	c := client.New(context.WithoutCancel(ctx), a.connector, a.clientConfig)
	a.client.Store(c)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.http.Start(gctx)
	})

	g.Go(func() error {
		defer cancel()
		err := a.pump(gctx, c)

		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		if serr := c.Shutdown(sctx); serr != nil {
			a.logger.Error(serr, "Dispatch did not drain before shutdown timeout")
		}
		return err
	})

	g.Go(func() error {
		select {
		case <-c.Done():
			if err := c.Err(); errors.Is(err, link.ErrConnectionFailed) {
				return err
			}
			return nil
		case <-gctx.Done():
			return nil
		}
	})

	err := g.Wait()
	a.logger.Info("Agent shutting down...")
	return err
}

func (a *Agent) pump(ctx context.Context, c *client.Client) error {
	var src input.Source
	switch a.input.Source {
	case options.InputNone:
		<-ctx.Done()
		return nil
	case options.InputMQTT:
		s, err := input.NewMQTTSource(ctx, a.mc, a.topics, a.vehicleID, log.WithName("input"))
		if err != nil {
			return err
		}
		defer func() { _ = s.Close(context.Background()) }()
		src = s
	default:
		s := input.NewReaderSource(a.stdin, log.WithName("input"))
		defer s.Close()
		src = s
	}

	m := input.NewMapper(c.Controls(),
		input.WithDrivePower(a.input.DrivePower),
		input.WithSteerPower(a.input.SteerPower),
		input.WithLogger(log.WithName("input")),
	)
	a.logger.Info("Reading input", "source", a.input.Source)

	err := input.Pump(ctx, src, m)
	switch {
	case err == nil:
		a.logger.Info("Input ended")
		return nil
	case ctx.Err() != nil:
		return nil
	case errors.Is(err, controls.ErrDispatchUnavailable):
		// The client watcher reports why dispatch ended.
		a.logger.Warn("Dispatch unavailable, input stopped", "error", err.Error())
		return nil
	}
	return err
}

// ready reports whether commands are being dispatched.
func (a *Agent) ready() bool {
	c := a.client.Load()
	return c != nil && c.Running()
}

// announce publishes the retained online marker once the broker is reachable.
func (a *Agent) announce(ctx context.Context) {
	if err := a.mc.AwaitConnection(ctx); err != nil {
		return
	}
	if err := a.publishOnline(ctx, true, ""); err != nil {
		a.logger.Error(err, "Failed to publish online status")
	}
}

func (a *Agent) publishOnline(ctx context.Context, online bool, reason string) error {
	payload, err := json.Marshal(onlineStatus{VehicleID: a.vehicleID, Online: online, Reason: reason})
	if err != nil {
		return err
	}
	return a.mc.Publish(ctx, a.topics.Build(paths.Online, a.vehicleID), 1, true, payload)
}

func (a *Agent) stopMqtt() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.publishOnline(ctx, false, "Shutdown"); err != nil {
		a.logger.Error(err, "Failed to publish offline status")
	}
	log.Info("Disconnecting MQTT client...")
	a.mc.Disconnect(ctx)
}
