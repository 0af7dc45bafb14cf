package input

import (
	"context"
	"fmt"

	"github.com/autopeer-io/rcbridge/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/rcbridge/internal/vehicle/queue"
	"github.com/autopeer-io/rcbridge/pkg/log"
	"github.com/autopeer-io/rcbridge/pkg/mqtt"
	"github.com/autopeer-io/rcbridge/pkg/mqtt/topic"
)

// MQTTSource receives events published on {root}/input/{vehicleID}.
type MQTTSource struct {
	mc     mqtt.Client
	topic  string
	logger log.Logger

	tx     *queue.Sender[Event]
	events *queue.Receiver[Event]
}

// NewMQTTSource subscribes to the input topic of vehicleID. The MQTT client
// must already be started.
func NewMQTTSource(ctx context.Context, mc mqtt.Client, topics *topic.Builder, vehicleID string, logger log.Logger) (*MQTTSource, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	tx, rx := queue.New[Event]()
	s := &MQTTSource{
		mc:     mc,
		topic:  topics.Build(paths.Input, vehicleID),
		logger: logger,
		tx:     tx,
		events: rx,
	}

	if err := mc.Subscribe(ctx, s.topic, 1, s.onMessage); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", s.topic, err)
	}
	return s, nil
}

// onMessage runs on the client's receive path, so it only decodes and queues.
func (s *MQTTSource) onMessage(_ context.Context, topic string, payload []byte) {
	e, err := ParseEvent(payload)
	if err != nil {
		s.logger.Warn("Dropping input message", "topic", topic, "error", err.Error())
		return
	}
	if err := s.tx.Send(e); err != nil {
		s.logger.Debug("Input source closed, dropping event", "event", e.String())
	}
}

func (s *MQTTSource) Next(ctx context.Context) (Event, error) {
	return next(ctx, s.events)
}

// Topic returns the subscribed topic.
func (s *MQTTSource) Topic() string {
	return s.topic
}

// Close unsubscribes and ends the source once queued events are read.
func (s *MQTTSource) Close(ctx context.Context) error {
	s.tx.Close()
	return s.mc.Unsubscribe(ctx, s.topic)
}
