package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every climate-ip topic.
const TopicPrefix = "climateip"

// Topics builds climate-ip MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.State("living-ac") // "climateip/state/living-ac"
type Topics struct{}

// State returns the retained attribute snapshot topic for a device.
func (Topics) State(deviceID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, deviceID)
}

// Command returns the topic a device receives commands on.
func (Topics) Command(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, deviceID)
}

// Ack returns the topic command results are published to.
func (Topics) Ack(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, deviceID)
}

// Health returns the periodic health report topic.
func (Topics) Health() string {
	return TopicPrefix + "/health"
}

// Status returns the retained online/offline topic (also the LWT topic).
func (Topics) Status() string {
	return TopicPrefix + "/status"
}

// AllCommands matches the command topic of every device.
func (Topics) AllCommands() string {
	return TopicPrefix + "/command/+"
}

// AllStates matches the state topic of every device.
func (Topics) AllStates() string {
	return TopicPrefix + "/state/+"
}

// DeviceFromTopic extracts the device ID from a state, command or ack topic.
func (Topics) DeviceFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicPrefix || parts[2] == "" {
		return "", false
	}
	switch parts[1] {
	case "state", "command", "ack":
		return parts[2], true
	}
	return "", false
}
