package connection

import (
	"encoding/json"
	"strings"
)

// testJSON is the canned reply of request_print: the device document a
// Samsung REST air conditioner returns from GET /devices.
const testJSON = `{
  "Devices": [
    {
      "Alarms": [
        {"alarmType": "Device", "code": "FilterAlarm", "id": "0", "triggeredTime": "2019-02-25T08:46:01"}
      ],
      "ConfigurationLink": {"href": "/devices/0/configuration"},
      "Diagnosis": {"diagnosisStart": "Ready"},
      "EnergyConsumption": {"saveLocation": "/files/usage.db"},
      "InformationLink": {"href": "/devices/0/information"},
      "Mode": {
        "modes": ["Auto"],
        "options": ["Comode_Off", "Sleep_0", "Autoclean_Off", "Spi_Off", "FilterCleaning_Off", "OutdoorTemp_63", "Volume_100"],
        "supportedModes": ["Cool", "Dry", "Wind", "Auto"]
      },
      "Operation": {"power": "On"},
      "Temperatures": [
        {"current": 22, "desired": 25, "id": "0", "maximum": 30, "minimum": 16, "unit": "Celsius"}
      ],
      "Wind": {"direction": "Fix", "maxSpeedLevel": 4, "speedLevel": 0},
      "id": "0",
      "name": "RAC",
      "resources": ["Alarms", "Configuration", "Diagnosis", "EnergyConsumption", "Information", "Mode", "Operation", "Temperatures", "Wind"],
      "type": "Air_Conditioner"
    }
  ]
}`

// TestJSON returns a fresh copy of the request_print reply.
func TestJSON() map[string]any {
	dec := json.NewDecoder(strings.NewReader(testJSON))
	dec.UseNumber()
	var v map[string]any
	if err := dec.Decode(&v); err != nil {
		panic("connection: invalid test fixture: " + err.Error())
	}
	return v
}
