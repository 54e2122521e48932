// Package mqtt provides MQTT connectivity for the climate-ip bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained device state publishing
//   - Command subscriptions restored on reconnect
//   - Last Will and Testament (LWT) so consumers see the bridge go offline
//
// # Topics
//
//	climateip/status              bridge online/offline (retained, LWT)
//	climateip/health              periodic health report
//	climateip/state/{device}      attribute snapshot (retained)
//	climateip/command/{device}    {"property": "...", "value": ...}
//	climateip/ack/{device}        command result
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        deviceID, _ := mqtt.Topics{}.DeviceFromTopic(topic)
//	        return handle(deviceID, payload)
//	    })
package mqtt
