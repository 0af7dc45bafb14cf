// Package mqttlink reaches a controller hub through a BLE-to-MQTT gateway.
// Requests are published as JSON encoded google.protobuf.Struct messages with
// QoS 1; a request counts as issued once the broker acknowledged it.
package mqttlink

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/autopeer-io/rcbridge/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/rcbridge/internal/vehicle/actuator"
	"github.com/autopeer-io/rcbridge/internal/vehicle/link"
	"github.com/autopeer-io/rcbridge/pkg/log"
	"github.com/autopeer-io/rcbridge/pkg/mqtt"
	"github.com/autopeer-io/rcbridge/pkg/mqtt/topic"
)

// QoS used for every gateway request.
const QoS = 1

// Gateway operations.
const (
	OpConnect    = "connect"
	OpDisconnect = "disconnect"
	OpAttach     = "attach"
)

var errHubDisconnected = errors.New("hub disconnected")

// Connector connects hubs through the gateway. The MQTT client must already
// be started.
type Connector struct {
	mc     mqtt.Client
	topics *topic.Builder
	logger log.Logger
}

var _ link.Connector = (*Connector)(nil)

func NewConnector(mc mqtt.Client, topics *topic.Builder, logger log.Logger) *Connector {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Connector{mc: mc, topics: topics, logger: logger}
}

func (c *Connector) Connect(ctx context.Context, addr link.Address, timeout time.Duration) (link.Hub, error) {
	if addr.IsZero() {
		return nil, link.ConnectionError("connect", fmt.Errorf("%w: zero address", link.ErrInvalidAddress))
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := c.mc.AwaitConnection(ctx); err != nil {
		return nil, link.ConnectionError("await broker", err)
	}

	h := &Hub{
		addr:   addr,
		mc:     c.mc,
		logger: c.logger,
		link:   c.topics.Build(paths.Link, addr.String()),
		motor:  c.topics.Build(paths.Motor, addr.String()),
	}

	if err := h.publish(ctx, h.link, map[string]any{
		"op":        OpConnect,
		"timeoutMs": timeout.Milliseconds(),
	}); err != nil {
		return nil, link.ConnectionError("connect", err)
	}

	c.logger.Info("Hub connect request acknowledged", "address", addr.String(), "topic", h.link)
	return h, nil
}

// Hub is a gateway-backed hub connection.
type Hub struct {
	addr   link.Address
	mc     mqtt.Client
	logger log.Logger

	link  string
	motor string

	seq          atomic.Int64
	disconnected atomic.Bool
}

var _ link.Hub = (*Hub)(nil)

// Actuator asks the gateway to attach the motor on port.
func (h *Hub) Actuator(ctx context.Context, port link.Port) (actuator.Actuator, error) {
	if !port.Valid() {
		return nil, link.ConnectionError("resolve actuator", fmt.Errorf("%w: %s", link.ErrInvalidPort, port))
	}
	if h.disconnected.Load() {
		return nil, link.ConnectionError("resolve actuator", errHubDisconnected)
	}
	if err := h.publish(ctx, h.motor, map[string]any{
		"op":   OpAttach,
		"port": port.String(),
	}); err != nil {
		return nil, link.ConnectionError("resolve actuator", err)
	}
	return &Motor{hub: h, port: port}, nil
}

func (h *Hub) Disconnect(ctx context.Context) error {
	if h.disconnected.Swap(true) {
		return nil
	}
	if err := h.publish(ctx, h.link, map[string]any{"op": OpDisconnect}); err != nil {
		return fmt.Errorf("disconnect %s: %w", h.addr, err)
	}
	h.logger.Info("Hub disconnect request acknowledged", "address", h.addr.String())
	return nil
}

func (h *Hub) publish(ctx context.Context, topic string, fields map[string]any) error {
	fields["seq"] = h.seq.Add(1)
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	payload, err := protojson.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return h.mc.Publish(ctx, topic, QoS, false, payload)
}

// Motor is one gateway-attached motor.
type Motor struct {
	hub  *Hub
	port link.Port
}

var _ actuator.Actuator = (*Motor)(nil)

func (m *Motor) StartPower(ctx context.Context, power int8) error {
	return m.request(ctx, actuator.OpStartPower, map[string]any{"power": int64(power)})
}

func (m *Motor) Stop(ctx context.Context, state actuator.EndState, profile actuator.Profile) error {
	if !state.Valid() {
		return actuator.RequestError(actuator.OpStop, fmt.Errorf("invalid end state %s", state))
	}
	return m.request(ctx, actuator.OpStop, map[string]any{
		"endState": state.String(),
		"profile":  profile.String(),
	})
}

func (m *Motor) GotoAbsolutePosition(ctx context.Context, position int32) error {
	return m.request(ctx, actuator.OpGotoAbsolutePosition, map[string]any{"position": int64(position)})
}

func (m *Motor) request(ctx context.Context, op string, args map[string]any) error {
	if m.hub.disconnected.Load() {
		return actuator.RequestError(op, errHubDisconnected)
	}
	args["op"] = op
	args["port"] = m.port.String()
	if err := m.hub.publish(ctx, m.hub.motor, args); err != nil {
		return actuator.RequestError(op, err)
	}
	return nil
}
