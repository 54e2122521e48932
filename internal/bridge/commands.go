package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/climate-ip/internal/infrastructure/mqtt"
)

// SourceMQTT marks commands received over MQTT.
const SourceMQTT = "mqtt"

// HandleCommand is the MQTT handler for climateip/command/{device}. It
// applies the command and publishes an ack; the returned error is only
// logged by the MQTT client.
func (b *Bridge) HandleCommand(topic string, payload []byte) error {
	deviceID, ok := mqtt.Topics{}.DeviceFromTopic(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected topic %q", ErrInvalidCommand, topic)
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		b.publishAck(deviceID, cmd, err)
		return err
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.Source == "" {
		cmd.Source = SourceMQTT
	}
	if cmd.Property == "" {
		err := fmt.Errorf("%w: property is required", ErrInvalidCommand)
		b.publishAck(deviceID, cmd, err)
		return err
	}

	b.logger.Info("received command",
		"command_id", cmd.ID,
		"device", deviceID,
		"property", cmd.Property,
		"value", cmd.Value)

	ctx, cancel := context.WithTimeout(b.baseContext(), commandTimeout)
	defer cancel()

	err := b.SetProperty(ctx, deviceID, cmd.Property, cmd.Value, cmd.Source)
	b.publishAck(deviceID, cmd, err)
	return err
}

func (b *Bridge) publishAck(deviceID string, cmd CommandMessage, cmdErr error) {
	if b.mqtt == nil {
		return
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	ack := AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Property:  cmd.Property,
		Status:    AckAccepted,
	}
	if cmdErr != nil {
		ack.Status = AckFailed
		ack.Error = &AckError{Code: ErrorCode(cmdErr), Message: cmdErr.Error()}
	}

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logger.Error("encoding ack failed", "device", deviceID, "error", err)
		return
	}
	err = b.mqtt.Publish(mqtt.Topics{}.Ack(deviceID), payload, b.qos, false)
	b.metrics.publish("ack", err)
	if err != nil {
		b.logger.Warn("publishing ack failed", "device", deviceID, "error", err)
	}
}
