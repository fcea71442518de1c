package mqtt

import "github.com/nugget/hearth/internal/buildinfo"

// DeviceInfo is the Home Assistant device registry block referenced by
// the discovery payload.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version"`
}

// SensorConfig is the discovery payload for an MQTT sensor.
type SensorConfig struct {
	Name                string     `json:"name"`
	UniqueID            string     `json:"unique_id"`
	StateTopic          string     `json:"state_topic"`
	AvailabilityTopic   string     `json:"availability_topic"`
	JsonAttributesTopic string     `json:"json_attributes_topic,omitempty"`
	ValueTemplate       string     `json:"value_template,omitempty"`
	Device              DeviceInfo `json:"device"`
	Icon                string     `json:"icon,omitempty"`
}

// NewDeviceInfo describes this Hearth instance. The instance id is the
// stable identifier; name is what Home Assistant shows.
func NewDeviceInfo(instanceID, name string) DeviceInfo {
	return DeviceInfo{
		Identifiers:  []string{instanceID},
		Name:         name,
		Manufacturer: "Hearth",
		Model:        "Hearth home assistant",
		SWVersion:    buildinfo.Version,
	}
}
