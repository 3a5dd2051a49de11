package events

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// MQTTClient is the subset of the shared MQTT client used for publishing.
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTPublisher publishes events to ews/{tenant}/alerts/{type}.
type MQTTPublisher struct {
	client MQTTClient
	qos    byte
	logger *zap.Logger
}

// NewMQTTPublisher creates an MQTTPublisher.
func NewMQTTPublisher(client MQTTClient, qos byte, logger *zap.Logger) *MQTTPublisher {
	return &MQTTPublisher{client: client, qos: qos, logger: logger}
}

// Topic returns the topic an event is published on.
func Topic(event Event) string {
	return fmt.Sprintf("ews/%s/alerts/%s", event.TenantID, event.Type)
}

func (p *MQTTPublisher) Publish(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := Topic(event)
	if err := p.client.Publish(topic, p.qos, false, payload); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", event.Type, topic, err)
	}

	p.logger.Debug("Published alert event to MQTT",
		zap.String("topic", topic),
		zap.String("alert_id", event.Alert.AlertID),
	)
	return nil
}
