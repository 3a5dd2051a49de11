package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqttcommon "wisefido-ews/common/mqtt"
	"wisefido-ews/internal/models"

	"go.uber.org/zap"
)

// ObservationMessage is the MQTT payload carrying one set of vitals.
type ObservationMessage struct {
	TenantID    string           `json:"tenant_id"`
	PatientID   string           `json:"patient_id"`
	RecordedBy  string           `json:"recorded_by"`
	Notes       string           `json:"notes"`
	ActionTaken string           `json:"action_taken"`
	Vitals      models.RawVitals `json:"vitals"`
}

// ObservationHandler submits a decoded message.
type ObservationHandler func(ctx context.Context, msg *ObservationMessage) error

// Subscriber is the subset of the shared MQTT client used for ingestion.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// ObservationConsumer turns MQTT vitals messages into observation submissions.
type ObservationConsumer struct {
	client  Subscriber
	topic   string
	qos     byte
	handler ObservationHandler
	timeout time.Duration
	logger  *zap.Logger
}

func NewObservationConsumer(client Subscriber, topic string, qos byte, handler ObservationHandler, logger *zap.Logger) *ObservationConsumer {
	return &ObservationConsumer{
		client:  client,
		topic:   topic,
		qos:     qos,
		handler: handler,
		timeout: 10 * time.Second,
		logger:  logger,
	}
}

// Start subscribes and blocks until ctx is done.
func (c *ObservationConsumer) Start(ctx context.Context) error {
	if err := c.client.Subscribe(c.topic, c.qos, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to observation topic: %w", err)
	}
	c.logger.Info("Observation consumer started", zap.String("topic", c.topic))

	<-ctx.Done()
	return nil
}

// Stop unsubscribes.
func (c *ObservationConsumer) Stop() {
	if err := c.client.Unsubscribe(c.topic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}
	c.logger.Info("Observation consumer stopped")
}

// handleMessage decodes and submits one message. Readings rejected by validation or for unknown
// patients are dropped with a warning; redelivery would not change the outcome.
func (c *ObservationConsumer) handleMessage(topic string, payload []byte) error {
	var msg ObservationMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal observation message: %w", err)
	}

	// topic format: ews/{tenant_id}/observations
	if msg.TenantID == "" {
		parts := strings.Split(topic, "/")
		if len(parts) >= 3 {
			msg.TenantID = parts[1]
		}
	}
	if msg.TenantID == "" || msg.PatientID == "" {
		return fmt.Errorf("observation message on %s lacks tenant_id or patient_id", topic)
	}
	if msg.RecordedBy == "" {
		msg.RecordedBy = "mqtt"
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	err := c.handler(ctx, &msg)
	switch {
	case err == nil:
		c.logger.Debug("Observation ingested",
			zap.String("tenant_id", msg.TenantID),
			zap.String("patient_id", msg.PatientID),
		)
		return nil
	case errors.Is(err, models.ErrInvalidObservation), errors.Is(err, models.ErrPatientNotActive):
		c.logger.Warn("Dropping observation message",
			zap.String("topic", topic),
			zap.String("patient_id", msg.PatientID),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("failed to submit observation for %s: %w", msg.PatientID, err)
}
