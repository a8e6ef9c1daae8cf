package mqtt

import "fmt"

// TopicPrefix is the root of every topic the gateway publishes or consumes.
const TopicPrefix = "homegw"

// Topics provides builders for gateway MQTT topics.
//
// Usage:
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DevicePresence("ll")
//	// Returns: "homegw/device/ll"
type Topics struct{}

// DevicePresence returns the retained presence topic of one device.
//
// Example: homegw/device/ll
func (Topics) DevicePresence(deviceID string) string {
	return fmt.Sprintf("%s/device/%s", TopicPrefix, deviceID)
}

// SystemStatus returns the gateway status topic (LWT and online/offline).
//
// Example: homegw/system/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// CommandDiscover returns the topic that triggers an immediate discovery cycle.
//
// Example: homegw/command/discover
func (Topics) CommandDiscover() string {
	return TopicPrefix + "/command/discover"
}
