package bridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nerrad567/climate-ip/internal/infrastructure/mqtt"
)

// Health reports the bridge and per-device status. The bridge is degraded
// while MQTT is disconnected or any device is unavailable.
func (b *Bridge) Health() HealthMessage {
	msg := HealthMessage{
		BridgeID:      b.id,
		Version:       b.version,
		Status:        HealthHealthy,
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(b.startTime).Seconds()),
		Devices:       make([]DeviceHealth, 0, len(b.order)),
	}

	if b.mqtt != nil {
		msg.MQTTConnected = b.mqtt.IsConnected()
		if !msg.MQTTConnected {
			msg.Status, msg.Reason = HealthDegraded, "MQTT disconnected"
		}
	}

	unavailable := 0
	for _, id := range b.order {
		e := b.devices[id]
		dh := DeviceHealth{
			ID:          id,
			Initialized: e.ready.Load(),
			Available:   e.dev.Snapshot().Available,
		}
		e.mu.Lock()
		if !e.lastPoll.IsZero() {
			t := e.lastPoll.UTC()
			dh.LastPoll = &t
		}
		if e.lastErr != nil {
			dh.LastError = e.lastErr.Error()
		}
		e.mu.Unlock()

		if !dh.Available {
			unavailable++
		}
		msg.Devices = append(msg.Devices, dh)
	}

	if unavailable > 0 && msg.Status == HealthHealthy {
		msg.Status, msg.Reason = HealthDegraded, "devices unavailable"
	}
	return msg
}

func (b *Bridge) healthLoop(ctx context.Context) {
	b.publishHealth("", "")

	ticker := time.NewTicker(b.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.publishHealth("", "")
		}
	}
}

// publishHealth publishes the current report, overriding the status when
// status is non-empty.
func (b *Bridge) publishHealth(status HealthStatus, reason string) {
	msg := b.Health()
	if status != "" {
		msg.Status, msg.Reason = status, reason
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("encoding health failed", "error", err)
		return
	}
	err = b.mqtt.Publish(mqtt.Topics{}.Health(), payload, b.qos, true)
	b.metrics.publish("health", err)
	if err != nil {
		b.logger.Debug("publishing health failed", "error", err)
	}
}
